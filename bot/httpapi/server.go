// Package httpapi exposes the bot over HTTP: the Telegram webhook endpoint
// plus small operational endpoints for webhook registration and status.
package httpapi

import (
	"context"
	"fmt"

	"ledgerbot/bot/session"
	coreconfig "ledgerbot/core/config"
	"ledgerbot/core/logger"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	tele "gopkg.in/telebot.v4"
)

// Sessions is the slice of the session manager the HTTP layer drives.
type Sessions interface {
	Running() bool
	SetupWebhook(ctx context.Context) error
	ProcessUpdate(u tele.Update) error
	Status() session.Status
}

// Server owns the fiber app and its routes.
type Server struct {
	app      *fiber.App
	cfg      *coreconfig.Config
	sessions Sessions
}

// New builds the HTTP server and registers its routes.
func New(cfg *coreconfig.Config, sessions Sessions) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit:             1 * 1024 * 1024,
		DisableStartupMessage: true,
	})

	s := &Server{
		app:      app,
		cfg:      cfg,
		sessions: sessions,
	}

	app.Post("/webhook/:token", s.handleWebhook)
	app.Get("/setup_webhook", s.handleSetupWebhook)
	app.Get("/status", s.handleStatus)
	app.Get("/health", s.handleStatus)

	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run blocks serving HTTP until Shutdown is called.
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Webhook.Listen, s.cfg.Webhook.Port)
	logger.Info(context.Background(), "http", "http.listen",
		slog.String("addr", addr),
	)
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithContext(context.Background())
}

// handleWebhook receives a Telegram update. The path token must match the
// bot token; anything else is rejected before the body is touched.
func (s *Server) handleWebhook(c *fiber.Ctx) error {
	if c.Params("token") != s.cfg.Telegram.Token {
		logger.Warn(c.UserContext(), "http", "webhook.reject",
			slog.String("status", "forbidden"),
			slog.String("token", truncateToken(c.Params("token"))),
			slog.String("ip", c.IP()),
		)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"status": "error"})
	}

	// A webhook call proves Telegram-side registration, so a dead session
	// here is recovered in place rather than dropping the update.
	if !s.sessions.Running() {
		if err := s.sessions.SetupWebhook(c.UserContext()); err != nil {
			logger.Error(c.UserContext(), "http", "webhook.recover",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"status": "error"})
		}
	}

	var update tele.Update
	if err := c.BodyParser(&update); err != nil {
		logger.Warn(c.UserContext(), "http", "webhook.decode",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"status": "error"})
	}

	if err := s.sessions.ProcessUpdate(update); err != nil {
		logger.Error(c.UserContext(), "http", "webhook.process",
			slog.String("status", "fail"),
			slog.Int("update_id", update.ID),
			slog.String("err", err.Error()),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"status": "error"})
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

// handleSetupWebhook starts the session if needed and registers the webhook
// with Telegram. Safe to call repeatedly.
func (s *Server) handleSetupWebhook(c *fiber.Ctx) error {
	if err := s.sessions.SetupWebhook(c.UserContext()); err != nil {
		logger.Error(c.UserContext(), "http", "webhook.setup",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"status": "error"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.sessions.Status())
}

// truncateToken keeps enough of a rejected token to correlate probes
// without logging a full credential.
func truncateToken(token string) string {
	if len(token) <= 6 {
		return token
	}
	return token[:6] + "..."
}
