package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ledgerbot/bot/session"
	coreconfig "ledgerbot/core/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type fakeSessions struct {
	running    bool
	setupErr   error
	processErr error

	setupCalls   int
	processed    []tele.Update
	statusResult session.Status
}

func (f *fakeSessions) Running() bool { return f.running }

func (f *fakeSessions) SetupWebhook(ctx context.Context) error {
	f.setupCalls++
	if f.setupErr == nil {
		f.running = true
	}
	return f.setupErr
}

func (f *fakeSessions) ProcessUpdate(u tele.Update) error {
	f.processed = append(f.processed, u)
	return f.processErr
}

func (f *fakeSessions) Status() session.Status { return f.statusResult }

func testServer(sessions Sessions) *Server {
	cfg := &coreconfig.Config{
		Telegram: coreconfig.TelegramConfig{Token: "123:abc"},
		Webhook:  coreconfig.WebhookConfig{BaseURL: "https://bot.example.com", Port: 8443},
	}
	return New(cfg, sessions)
}

func postUpdate(t *testing.T, srv *Server, token string, update tele.Update) *http.Response {
	t.Helper()
	body, err := json.Marshal(update)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webhook/"+token, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	return resp
}

func decodeStatus(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func sampleUpdate() tele.Update {
	return tele.Update{ID: 41, Message: &tele.Message{
		Sender: &tele.User{ID: 7},
		Chat:   &tele.Chat{ID: 700},
		Text:   "hello",
	}}
}

func TestWebhookRejectsWrongToken(t *testing.T) {
	sessions := &fakeSessions{running: true}
	srv := testServer(sessions)

	resp := postUpdate(t, srv, "999:wrong", sampleUpdate())
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "error", decodeStatus(t, resp)["status"])
	assert.Empty(t, sessions.processed)
}

func TestWebhookProcessesUpdate(t *testing.T) {
	sessions := &fakeSessions{running: true}
	srv := testServer(sessions)

	resp := postUpdate(t, srv, "123:abc", sampleUpdate())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeStatus(t, resp)["status"])

	require.Len(t, sessions.processed, 1)
	assert.Equal(t, 41, sessions.processed[0].ID)
	assert.Zero(t, sessions.setupCalls)
}

func TestWebhookRecoversDeadSession(t *testing.T) {
	sessions := &fakeSessions{running: false}
	srv := testServer(sessions)

	resp := postUpdate(t, srv, "123:abc", sampleUpdate())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, sessions.setupCalls)
	assert.Len(t, sessions.processed, 1)
}

func TestWebhookRecoveryFailure(t *testing.T) {
	sessions := &fakeSessions{running: false, setupErr: errors.New("no network")}
	srv := testServer(sessions)

	resp := postUpdate(t, srv, "123:abc", sampleUpdate())
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "error", decodeStatus(t, resp)["status"])
	assert.Empty(t, sessions.processed)
}

func TestWebhookProcessFailure(t *testing.T) {
	sessions := &fakeSessions{running: true, processErr: errors.New("boom")}
	srv := testServer(sessions)

	resp := postUpdate(t, srv, "123:abc", sampleUpdate())
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "error", decodeStatus(t, resp)["status"])
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	sessions := &fakeSessions{running: true}
	srv := testServer(sessions)

	req := httptest.NewRequest(http.MethodPost, "/webhook/123:abc", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Empty(t, sessions.processed)
}

func TestSetupWebhookEndpoint(t *testing.T) {
	sessions := &fakeSessions{}
	srv := testServer(sessions)

	req := httptest.NewRequest(http.MethodGet, "/setup_webhook", nil)
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeStatus(t, resp)["status"])
	assert.Equal(t, 1, sessions.setupCalls)

	sessions.setupErr = errors.New("telegram says no")
	resp, err = srv.App().Test(httptest.NewRequest(http.MethodGet, "/setup_webhook", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestStatusEndpoints(t *testing.T) {
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sessions := &fakeSessions{statusResult: session.Status{
		Running:      true,
		StartedAt:    &started,
		RestartCount: 3,
		WebhookURL:   "https://bot.example.com/webhook/123:abc",
	}}
	srv := testServer(sessions)

	for _, path := range []string{"/status", "/health"} {
		resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)

		body := decodeStatus(t, resp)
		assert.Equal(t, true, body["running"], path)
		assert.EqualValues(t, 3, body["restart_count"], path)
	}
}

func TestTruncateToken(t *testing.T) {
	assert.Equal(t, "123:ab...", truncateToken("123:abcdef"))
	assert.Equal(t, "abc", truncateToken("abc"))
}
