package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	coreconfig "ledgerbot/core/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type fakeAPI struct {
	mu          sync.Mutex
	registers   int32
	unregisters int32
	registerErr error
	delay       time.Duration
	lastURL     string
}

func (f *fakeAPI) Register(ctx context.Context, publicURL string) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	atomic.AddInt32(&f.registers, 1)
	f.mu.Lock()
	f.lastURL = publicURL
	f.mu.Unlock()
	return f.registerErr
}

func (f *fakeAPI) Unregister(ctx context.Context) error {
	atomic.AddInt32(&f.unregisters, 1)
	return nil
}

func webhookConfig() *coreconfig.Config {
	return &coreconfig.Config{
		Telegram: coreconfig.TelegramConfig{
			Token:   "123:abc",
			RunMode: coreconfig.RunModeWebhook,
		},
		Webhook: coreconfig.WebhookConfig{
			BaseURL: "https://bot.example.com",
			Port:    8443,
		},
	}
}

func offlineBot() (*tele.Bot, error) {
	return tele.NewBot(tele.Settings{Offline: true})
}

func newTestManager(t *testing.T, cfg *coreconfig.Config, api API, wire func(*tele.Bot)) *Manager {
	t.Helper()
	m, err := NewManager(Options{
		Config: cfg,
		Wire:   wire,
		NewBot: offlineBot,
		API:    api,
	})
	require.NoError(t, err)
	return m
}

func TestStartAndStatus(t *testing.T) {
	api := &fakeAPI{}
	m := newTestManager(t, webhookConfig(), api, nil)

	assert.False(t, m.Running())

	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.Running())

	st := m.Status()
	assert.True(t, st.Running)
	assert.Equal(t, 1, st.RestartCount)
	require.NotNil(t, st.StartedAt)

	require.NoError(t, m.Restart(context.Background()))
	assert.Equal(t, 2, m.Status().RestartCount)

	assert.True(t, m.Stop(context.Background()))
	assert.False(t, m.Running())
	assert.Nil(t, m.Status().StartedAt)
}

func TestSetupWebhookStartsAndRegisters(t *testing.T) {
	api := &fakeAPI{}
	m := newTestManager(t, webhookConfig(), api, nil)

	require.NoError(t, m.SetupWebhook(context.Background()))

	assert.True(t, m.Running())
	assert.EqualValues(t, 1, atomic.LoadInt32(&api.registers))
	assert.Equal(t, "https://bot.example.com/webhook/123:abc", api.lastURL)
	assert.Equal(t, api.lastURL, m.Status().WebhookURL)

	// Repeating is harmless; the session is reused.
	require.NoError(t, m.SetupWebhook(context.Background()))
	assert.Equal(t, 1, m.Status().RestartCount)
}

func TestSetupWebhookConcurrentCallersShareOneRegistration(t *testing.T) {
	api := &fakeAPI{delay: 50 * time.Millisecond}
	m := newTestManager(t, webhookConfig(), api, nil)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.SetupWebhook(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&api.registers))
}

func TestSetupWebhookRegistrationFailure(t *testing.T) {
	api := &fakeAPI{registerErr: errors.New("telegram says no")}
	m := newTestManager(t, webhookConfig(), api, nil)

	err := m.SetupWebhook(context.Background())
	require.Error(t, err)

	// The session itself started; only the registration failed, and the
	// status must not advertise a webhook that was never accepted.
	assert.True(t, m.Running())
	assert.Empty(t, m.Status().WebhookURL)
}

func TestProcessUpdateRequiresSession(t *testing.T) {
	var handled int32
	wire := func(b *tele.Bot) {
		b.Handle(tele.OnText, func(c tele.Context) error {
			atomic.AddInt32(&handled, 1)
			return nil
		})
	}
	m := newTestManager(t, webhookConfig(), &fakeAPI{}, wire)

	update := tele.Update{ID: 1, Message: &tele.Message{
		Sender: &tele.User{ID: 7},
		Chat:   &tele.Chat{ID: 700},
		Text:   "hello",
	}}

	require.Error(t, m.ProcessUpdate(update))
	assert.EqualValues(t, 0, atomic.LoadInt32(&handled))

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.ProcessUpdate(update))
	assert.EqualValues(t, 1, atomic.LoadInt32(&handled))
}

func TestTeardown(t *testing.T) {
	api := &fakeAPI{}
	m := newTestManager(t, webhookConfig(), api, nil)

	require.NoError(t, m.SetupWebhook(context.Background()))
	m.Teardown(context.Background())

	assert.False(t, m.Running())
	assert.Empty(t, m.Status().WebhookURL)
	assert.EqualValues(t, 1, atomic.LoadInt32(&api.unregisters))

	// Tearing down a stopped manager is a no-op apart from the provider
	// call, which is best-effort anyway.
	m.Teardown(context.Background())
	assert.False(t, m.Running())
}
