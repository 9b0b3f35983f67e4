package middleware

import (
	"ledgerbot/core/logger"
	tghelpers "ledgerbot/core/telegram/helpers"
	"ledgerbot/core/telegram/state"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// StateGetter is the minimal interface required from an FSM manager.
type StateGetter interface {
	GetState(userID int64) state.State
}

// State returns a middleware that only passes the update through when the
// user is in the expected FSM state. A mismatch goes to onMismatch when set
// and is otherwise ignored, never silently handled by the wrong step.
func State(mgr StateGetter, expectedState state.State, onMismatch tele.HandlerFunc) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			userID := c.Sender().ID
			currentState := mgr.GetState(userID)
			ctx := tghelpers.BuildContext(c)
			if currentState == expectedState {
				logger.TG.LogAttrs(ctx, slog.LevelDebug, "fsm.match",
					slog.Int64("user_id", userID),
					slog.String("state", string(currentState)),
					slog.String("expected", string(expectedState)),
					slog.String("rid", logger.RIDFrom(ctx)),
				)
				return next(c)
			}
			logger.TG.LogAttrs(ctx, slog.LevelDebug, "fsm.skip",
				slog.Int64("user_id", userID),
				slog.String("state", string(currentState)),
				slog.String("expected", string(expectedState)),
				slog.String("rid", logger.RIDFrom(ctx)),
			)
			if onMismatch != nil {
				return onMismatch(c)
			}
			return nil
		}
	}
}
