// Package app assembles the bot: configuration, storage, conversation state,
// the session manager and the HTTP surface.
package app

import (
	"context"
	"fmt"

	"ledgerbot/bot/flows"
	"ledgerbot/bot/httpapi"
	"ledgerbot/bot/session"
	coreconfig "ledgerbot/core/config"
	"ledgerbot/core/bootstrap"
	"ledgerbot/core/logger"
	tgcore "ledgerbot/core/telegram"
	tghelpers "ledgerbot/core/telegram/helpers"
	"ledgerbot/core/telegram/router"
	"ledgerbot/core/telegram/sender"
	"ledgerbot/core/telegram/state"
	"ledgerbot/ledger/postgres"
	"ledgerbot/routing"
	"ledgerbot/storage/httpstore"
	"log/slog"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"
)

// App holds the assembled application.
type App struct {
	cfg      *Config
	db       *sqlx.DB
	states   state.Manager
	sessions *session.Manager
	flows    *flows.Flows
	server   *httpapi.Server
	sender   *sender.Dispatcher

	registry    *tgcore.Registry
	middlewares []tgcore.Middleware
	routes      []tgcore.Route
}

// New boots infrastructure and wires every component together. The returned
// App is ready to Run.
func New(cfg *Config) (*App, error) {
	res, err := bootstrap.Run(bootstrap.Options{
		Config:   &cfg.Config,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg: cfg,
		db:  res.DB,
	}

	a.sender = sender.NewDispatcher(sender.Options{})
	tghelpers.SetDispatcher(a.sender)

	store := postgres.NewStore(res.DB)
	uploader := httpstore.NewClient(cfg.Storage)
	resolver := routing.NewResolver(cfg.Storage)

	// The timeout callback closes over the app because the flows that send
	// the notice are built after the state manager they depend on.
	a.states = state.NewManager(state.Options{
		Timeout: cfg.Conversation.Timeout(),
		OnTimeout: func(userID, chatID int64, last state.State) {
			if a.flows != nil {
				a.flows.NotifyTimeout(userID, chatID, last)
			}
		},
	})

	a.sessions, err = session.NewManager(session.Options{
		Config: &cfg.Config,
		Wire:   a.wireBot,
	})
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}

	a.flows = flows.New(&cfg.Config, a.states, store, uploader, resolver, a.sessions)

	a.registry = tgcore.NewRegistry()
	a.flows.Register(a.registry)
	a.flows.RegisterStates()

	a.middlewares = tgcore.DefaultMiddlewares(&cfg.Config, nil)
	a.routes = append(a.routes, router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID: cfg.Telegram.AdminID,
	})...)
	a.routes = append(a.routes, router.TextRoutes(a.states, a.registry, router.TextOptions{
		UnknownText:     a.flows.UnknownText(),
		UnknownPhoto:    a.flows.UnknownPhoto(),
		UnknownDocument: a.flows.UnknownDocument(),
	})...)
	a.routes = append(a.routes, router.CallbackRoute(a.registry, router.CallbackOptions{
		NotFound: a.flows.UnknownCallback(),
	}))

	a.server = httpapi.New(&cfg.Config, a.sessions)
	return a, nil
}

// wireBot installs middlewares and routes on each freshly built bot. The
// session manager calls it on every (re)start.
func (a *App) wireBot(bot *tele.Bot) {
	tgcore.Apply(bot, a.registry, a.middlewares, a.routes)
}

// Run starts the configured update transport and blocks until ctx is
// cancelled, then tears everything down.
func (a *App) Run(ctx context.Context) error {
	defer a.close(ctx)

	switch a.cfg.Telegram.RunMode {
	case coreconfig.RunModeWebhook:
		return a.runWebhook(ctx)
	case coreconfig.RunModeLongpoll:
		return a.runLongpoll(ctx)
	default:
		return fmt.Errorf("app: unknown run mode %q", a.cfg.Telegram.RunMode)
	}
}

func (a *App) runWebhook(ctx context.Context) error {
	// Registration failures are recoverable through GET /setup_webhook, so
	// an unreachable provider at boot does not keep the server down.
	if err := a.sessions.SetupWebhook(ctx); err != nil {
		logger.Warn(ctx, "session", "webhook.setup",
			slog.String("status", "deferred"),
			slog.String("err", err.Error()),
		)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Run()
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) runLongpoll(ctx context.Context) error {
	if err := a.sessions.Start(ctx); err != nil {
		return err
	}

	// Status and health endpoints stay available in longpoll deployments
	// when a listen port is configured.
	errCh := make(chan error, 1)
	if a.cfg.Webhook.Port > 0 {
		go func() {
			errCh <- a.server.Run()
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// close shuts everything down in reverse dependency order. Each step is
// best-effort.
func (a *App) close(ctx context.Context) {
	if a.server != nil {
		if err := a.server.Shutdown(); err != nil {
			logger.Warn(ctx, "http", "http.shutdown",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}
	a.sessions.Teardown(context.WithoutCancel(ctx))
	a.sender.Close()
	tghelpers.SetDispatcher(nil)
	a.states.Close()
	if err := a.db.Close(); err != nil {
		logger.Warn(ctx, "db", "db.close",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}
