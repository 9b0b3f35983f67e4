// Package session owns the single live bot session: its lifecycle
// (start/stop/restart), webhook registration with the messaging provider,
// and the status snapshot served to health-check callers.
package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	coreconfig "ledgerbot/core/config"
	"ledgerbot/core/logger"
	tgcore "ledgerbot/core/telegram"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// Status is a read-only snapshot of the bot session.
type Status struct {
	Running      bool       `json:"running"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	RestartCount int        `json:"restart_count"`
	WebhookURL   string     `json:"webhook_url,omitempty"`
}

// API is the provider-side webhook registration surface.
type API interface {
	Register(ctx context.Context, publicURL string) error
	Unregister(ctx context.Context) error
}

type telegramAPI struct {
	client *http.Client
	token  string
}

func (a telegramAPI) Register(ctx context.Context, publicURL string) error {
	return tgcore.RegisterWebhook(ctx, a.client, a.token, publicURL)
}

func (a telegramAPI) Unregister(ctx context.Context) error {
	return tgcore.DeleteWebhook(ctx, a.client, a.token, false)
}

// Options configures a Manager.
type Options struct {
	Config *coreconfig.Config

	// Wire registers middlewares and routes on a freshly built bot.
	Wire func(bot *tele.Bot)

	// NewBot overrides bot construction, used by tests. Nil selects the
	// real telebot constructor.
	NewBot func() (*tele.Bot, error)

	// API overrides the provider webhook API, used by tests.
	API API

	// StopGrace bounds how long Stop waits for the polling loop to
	// acknowledge; 0 -> default.
	StopGrace time.Duration
}

// Manager owns the process-wide bot session. All lifecycle transitions are
// serialized under one lock; at most one session is running at any time.
type Manager struct {
	cfg       *coreconfig.Config
	wire      func(bot *tele.Bot)
	newBot    func() (*tele.Bot, error)
	api       API
	stopGrace time.Duration

	mu           sync.Mutex
	bot          *tele.Bot
	running      bool
	startedAt    time.Time
	restartCount int
	webhookURL   string
	runDone      chan struct{}

	setupMu   sync.Mutex
	setupWait chan struct{}
	setupErr  error
}

// NewManager constructs a stopped Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("session: nil config provided")
	}
	m := &Manager{
		cfg:       opts.Config,
		wire:      opts.Wire,
		newBot:    opts.NewBot,
		api:       opts.API,
		stopGrace: opts.StopGrace,
	}
	if m.stopGrace <= 0 {
		m.stopGrace = 5 * time.Second
	}
	if m.newBot == nil {
		m.newBot = m.buildBot
	}
	if m.api == nil {
		m.api = telegramAPI{client: tgcore.BuildHTTPClient(), token: opts.Config.Telegram.Token}
	}
	return m, nil
}

func (m *Manager) buildBot() (*tele.Bot, error) {
	settings := tele.Settings{
		Token:  m.cfg.Telegram.Token,
		Client: tgcore.BuildHTTPClient(),
	}
	if m.longpoll() {
		settings.Poller = tgcore.BuildPoller(tgcore.PollerOptions{
			RunMode:                m.cfg.Telegram.RunMode,
			LongPollTimeoutSeconds: m.cfg.Telegram.LongPollTimeoutSeconds,
		})
	}
	return tele.NewBot(settings)
}

func (m *Manager) longpoll() bool {
	return m.cfg.Telegram.RunMode == coreconfig.RunModeLongpoll
}

// Start spawns the session. When a session is already running it behaves
// like Restart.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		if !m.stopLocked(ctx) {
			logger.Warn(ctx, "session", "session.restart",
				slog.String("cause", "stop_grace_exceeded"),
			)
		}
	}
	return m.startLocked(ctx)
}

// startLocked builds the bot, wires handlers and marks the session running.
// Callers must hold m.mu.
func (m *Manager) startLocked(ctx context.Context) error {
	start := time.Now()
	bot, err := m.newBot()
	if err != nil {
		logger.Error(ctx, "session", "session.start",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("session start: %w", err)
	}
	if m.wire != nil {
		m.wire(bot)
	}

	m.bot = bot
	m.running = true
	m.startedAt = time.Now()
	m.restartCount++

	if m.longpoll() {
		runDone := make(chan struct{})
		m.runDone = runDone
		go func() {
			bot.Start()
			close(runDone)
		}()
	}

	logger.Info(ctx, "session", "session.start",
		slog.String("status", "ok"),
		slog.String("mode", m.cfg.Telegram.RunMode),
		slog.Int("count", m.restartCount),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return nil
}

// Stop signals the running session to halt and waits up to the grace period
// for acknowledgment. It reports whether the session stopped cleanly.
func (m *Manager) Stop(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(ctx)
}

// stopLocked halts the session. Callers must hold m.mu.
func (m *Manager) stopLocked(ctx context.Context) bool {
	if !m.running {
		return true
	}

	clean := true
	if m.longpoll() && m.bot != nil {
		m.bot.Stop()
		if m.runDone != nil {
			timer := time.NewTimer(m.stopGrace)
			select {
			case <-m.runDone:
				timer.Stop()
			case <-timer.C:
				clean = false
			case <-ctx.Done():
				timer.Stop()
				clean = false
			}
		}
	}

	m.bot = nil
	m.running = false
	m.runDone = nil

	logger.Info(ctx, "session", "session.stop",
		slog.Bool("collapsed", !clean),
	)
	return clean
}

// Restart stops the running session and starts a fresh one.
func (m *Manager) Restart(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.stopLocked(ctx) {
		logger.Warn(ctx, "session", "session.restart",
			slog.String("cause", "stop_grace_exceeded"),
		)
	}
	return m.startLocked(ctx)
}

// SetupWebhook starts the session if needed and registers the callback URL
// with the provider. It is idempotent: when a setup is already in flight,
// concurrent callers await its result instead of issuing a second
// registration call.
func (m *Manager) SetupWebhook(ctx context.Context) error {
	m.setupMu.Lock()
	if m.setupWait != nil {
		wait := m.setupWait
		m.setupMu.Unlock()
		select {
		case <-wait:
			return m.setupResult()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	wait := make(chan struct{})
	m.setupWait = wait
	m.setupMu.Unlock()

	err := m.doSetupWebhook(ctx)

	m.setupMu.Lock()
	m.setupErr = err
	m.setupWait = nil
	m.setupMu.Unlock()
	close(wait)
	return err
}

func (m *Manager) setupResult() error {
	m.setupMu.Lock()
	defer m.setupMu.Unlock()
	return m.setupErr
}

func (m *Manager) doSetupWebhook(ctx context.Context) error {
	publicURL := m.cfg.WebhookURL()
	if publicURL == "" {
		return fmt.Errorf("session: webhook base url not configured")
	}

	if !m.Running() {
		if err := m.Start(ctx); err != nil {
			return err
		}
	}

	if err := m.api.Register(ctx, publicURL); err != nil {
		logger.Error(ctx, "session", "webhook.register",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("webhook setup: %w", err)
	}

	m.mu.Lock()
	m.webhookURL = publicURL
	m.mu.Unlock()

	logger.Info(ctx, "session", "webhook.register",
		slog.String("status", "ok"),
		slog.String("public_url", publicURL),
	)
	return nil
}

// Teardown unregisters the webhook and stops the session. Each sub-step is
// best-effort: failures are logged and the remaining steps still run. It is
// a no-op for a session that never started.
func (m *Manager) Teardown(ctx context.Context) {
	if err := m.api.Unregister(ctx); err != nil {
		logger.Warn(ctx, "session", "webhook.unregister",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	} else {
		logger.Info(ctx, "session", "webhook.unregister",
			slog.String("status", "ok"),
		)
	}

	m.mu.Lock()
	if !m.stopLocked(ctx) {
		logger.Warn(ctx, "session", "session.teardown",
			slog.String("cause", "stop_grace_exceeded"),
		)
	}
	m.webhookURL = ""
	m.mu.Unlock()
}

// Running reports whether a session is live.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Status returns a read-only snapshot for health/status callers.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		Running:      m.running,
		RestartCount: m.restartCount,
		WebhookURL:   m.webhookURL,
	}
	if m.running && !m.startedAt.IsZero() {
		t := m.startedAt
		st.StartedAt = &t
	}
	return st
}

// ProcessUpdate hands one inbound update to the live bot. Handler execution
// happens on the caller's goroutine and does not hold the session lock.
func (m *Manager) ProcessUpdate(u tele.Update) error {
	m.mu.Lock()
	bot := m.bot
	running := m.running
	m.mu.Unlock()

	if !running || bot == nil {
		return fmt.Errorf("session: no active session")
	}
	bot.ProcessUpdate(u)
	return nil
}

// Bot exposes the live bot for senders that operate outside an update
// context (e.g. timeout notices). Returns nil when stopped.
func (m *Manager) Bot() *tele.Bot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bot
}
