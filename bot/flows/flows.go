// Package flows implements the bot's conversations: the main menu, the
// settings flows that register agents/suppliers/persons, expense recording
// and receipt upload. Each flow is a sequence of per-user FSM states.
package flows

import (
	"context"
	"strings"

	coreconfig "ledgerbot/core/config"
	"ledgerbot/core/logger"
	tgcore "ledgerbot/core/telegram"
	"ledgerbot/core/telegram/commands"
	tghelpers "ledgerbot/core/telegram/helpers"
	"ledgerbot/core/telegram/middleware"
	"ledgerbot/core/telegram/state"
	"ledgerbot/core/telegram/ui"
	"ledgerbot/ledger"
	"ledgerbot/routing"
	"ledgerbot/storage"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// Session is the slice of the session manager the flows need: sending
// outside an update context and serving the admin lifecycle commands.
type Session interface {
	Bot() *tele.Bot
	Restart(ctx context.Context) error
}

// Flows wires conversation handlers to their collaborators.
type Flows struct {
	cfg      *coreconfig.Config
	states   state.Manager
	store    ledger.Store
	uploader storage.Uploader
	resolver *routing.Resolver
	session  Session

	// download overrides photo retrieval in tests.
	download func(c tele.Context, photo *tele.Photo) ([]byte, error)
}

var _ ui.FallbackProvider = (*Flows)(nil)

// New constructs the conversation layer. The session may be nil in tests
// that never exercise timeout notices or admin commands.
func New(cfg *coreconfig.Config, states state.Manager, store ledger.Store, uploader storage.Uploader, resolver *routing.Resolver, session Session) *Flows {
	return &Flows{
		cfg:      cfg,
		states:   states,
		store:    store,
		uploader: uploader,
		resolver: resolver,
		session:  session,
	}
}

// Register binds commands and callbacks into the registry.
func (f *Flows) Register(reg *tgcore.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     f.cmdStart,
		Description: "Open the main menu",
	})
	reg.RegisterCommand("/settings", commands.Command{
		Handler:     f.cmdSettings,
		Description: "Manage agents, suppliers and persons",
	})
	reg.RegisterCommand("/add", commands.Command{
		Handler:     f.cmdAddExpense,
		Description: "Record an expense",
	})
	reg.RegisterCommand("/summary", commands.Command{
		Handler:     f.cmdSummary,
		Description: "Totals for the current month",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     f.cmdCancel,
		Description: "Cancel the current operation",
	})
	reg.RegisterCommand("/restart", commands.Command{
		Handler:     f.cmdRestart,
		Description: "Restart the bot session",
		AdminOnly:   true,
		Hidden:      true,
	})

	_ = reg.RegisterCallback(cbCreateAgent, f.onCreateAgent)
	_ = reg.RegisterCallback(cbCreateSupplier, f.onCreateSupplier)
	_ = reg.RegisterCallback(cbCreatePerson, f.onCreatePerson)
	_ = reg.RegisterCallback(cbAddExpense, f.onAddExpense)
	_ = reg.RegisterCallback(cbExpenseCat,
		middleware.State(f.states, StateAwaitingExpenseCategory, f.staleCallback)(f.onExpenseCategory))
	_ = reg.RegisterCallback(cbReceiptSkip,
		middleware.State(f.states, StateAwaitingReceiptDecision, f.staleCallback)(f.onReceiptSkip))

	reg.SetTextFallback(f.UnknownText())
}

// RegisterStates binds per-state input handlers into the FSM manager.
func (f *Flows) RegisterStates() {
	f.states.RegisterHandler(StateMainMenu, f.onMainMenuInput)
	f.states.RegisterHandler(StateAwaitingAgentName, f.onAgentName)
	f.states.RegisterHandler(StateAwaitingAgentID, f.onAgentID)
	f.states.RegisterHandler(StateAwaitingSupplierName, f.onSupplierName)
	f.states.RegisterHandler(StateAwaitingSupplierCategory, f.onSupplierCategory)
	f.states.RegisterHandler(StateAwaitingPersonName, f.onPersonName)
	f.states.RegisterHandler(StateAwaitingExpenseCategory, f.onExpenseCategoryInput)
	f.states.RegisterHandler(StateAwaitingExpenseAmount, f.onExpenseAmount)
	f.states.RegisterHandler(StateAwaitingExpenseNote, f.onExpenseNote)
	f.states.RegisterHandler(StateAwaitingReceiptDecision, f.onReceiptDecision)
}

// NotifyTimeout sends the idle-timeout notice. It runs on the state store's
// janitor goroutine, outside any update context.
func (f *Flows) NotifyTimeout(userID, chatID int64, last state.State) {
	if f.session == nil || chatID == 0 {
		return
	}
	bot := f.session.Bot()
	if bot == nil {
		return
	}
	if _, err := bot.Send(tele.ChatID(chatID), msgTimeout); err != nil {
		logger.Warn(context.Background(), "tg", "fsm.timeout.notify",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("state", string(last)),
			slog.String("err", err.Error()),
		)
	}
}

// cmdCancel aborts the active conversation, if any. Issuing it twice in a
// row is harmless.
func (f *Flows) cmdCancel(c tele.Context) error {
	userID := c.Sender().ID
	if !f.states.InProgress(userID) {
		return tghelpers.SendText(c, msgNothingToCancel)
	}
	f.states.Clear(userID)
	return tghelpers.SendText(c, msgCancelled)
}

func (f *Flows) cmdRestart(c tele.Context) error {
	if f.session == nil {
		return tghelpers.SendText(c, msgShortError)
	}
	ctx := tghelpers.BuildContext(c)
	if err := f.session.Restart(ctx); err != nil {
		logger.Error(ctx, "session", "session.restart",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, msgShortError)
	}
	return tghelpers.SendText(c, "Session restarted.")
}

// UnknownText handles free text from users with no active conversation:
// unknown commands get a generic reply, anything else a menu hint.
func (f *Flows) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		if strings.HasPrefix(strings.TrimSpace(c.Text()), "/") {
			return tghelpers.SendText(c, msgUnknownCommand)
		}
		return tghelpers.SendText(c, msgMenuHint)
	}
}

// UnknownPhoto acknowledges photos that arrive outside a receipt step.
func (f *Flows) UnknownPhoto() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, msgUnexpectedPhoto)
	}
}

// UnknownDocument mirrors UnknownPhoto for document uploads.
func (f *Flows) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, msgUnexpectedPhoto)
	}
}

// staleCallback answers button presses that arrive in the wrong state,
// usually from an old message's keyboard.
func (f *Flows) staleCallback(c tele.Context) error {
	return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
}

// UnknownCallback answers button presses that no longer map to anything.
func (f *Flows) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
	}
}
