package state

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"ledgerbot/core/logger"
	tghelpers "ledgerbot/core/telegram/helpers"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// Options configures a conversation manager.
type Options struct {
	// Timeout is the idle window after which a conversation is abandoned.
	Timeout time.Duration
	// OnTimeout is invoked for each abandoned conversation.
	OnTimeout TimeoutFunc
}

type manager struct {
	sessions *cache.Cache
	timeout  time.Duration

	mu       sync.Mutex
	handlers map[State]tele.HandlerFunc

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

// NewManager constructs a Manager backed by an expiring in-memory store.
// Every input for a user resets that user's idle timer; when the timer
// expires the conversation is dropped and opts.OnTimeout fires from the
// store's janitor goroutine, independent of update arrival.
func NewManager(opts Options) Manager {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	cleanup := timeout / 4
	if cleanup < time.Second {
		cleanup = time.Second
	}

	m := &manager{
		sessions: cache.New(timeout, cleanup),
		timeout:  timeout,
		handlers: make(map[State]tele.HandlerFunc),
		locks:    make(map[int64]*sync.Mutex),
	}

	onTimeout := opts.OnTimeout
	m.sessions.OnEvicted(func(key string, value interface{}) {
		sess, ok := value.(*Session)
		if !ok || sess == nil || sess.done || sess.State == StateIdle {
			return
		}
		userID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return
		}
		logger.Debug(context.Background(), "tg", "fsm.timeout",
			slog.String("status", "ok"),
			slog.Int64("user_id", userID),
			slog.String("state", string(sess.State)),
		)
		if onTimeout != nil {
			onTimeout(userID, sess.ChatID, sess.State)
		}
	})

	return m
}

func sessionKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// session returns the live session for a user, creating one when create is
// set. Callers must hold m.mu.
func (m *manager) session(userID int64, create bool) *Session {
	if v, ok := m.sessions.Get(sessionKey(userID)); ok {
		if sess, ok := v.(*Session); ok {
			return sess
		}
	}
	if !create {
		return nil
	}
	sess := &Session{State: StateIdle, TempData: make(map[string]interface{})}
	m.sessions.Set(sessionKey(userID), sess, cache.DefaultExpiration)
	return sess
}

// touch resets the idle timer for the user's session.
func (m *manager) touch(userID int64, sess *Session) {
	m.sessions.Set(sessionKey(userID), sess, cache.DefaultExpiration)
}

// Get returns the session for a user if it exists, otherwise a default idle
// session. The returned value is a snapshot; mutate through the Manager.
func (m *manager) Get(userID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.session(userID, false)
	if sess == nil {
		return &Session{State: StateIdle, TempData: make(map[string]interface{})}
	}
	snap := &Session{State: sess.State, ChatID: sess.ChatID, TempData: make(map[string]interface{}, len(sess.TempData))}
	for k, v := range sess.TempData {
		snap.TempData[k] = v
	}
	return snap
}

// SetState moves the user to the given state and resets the idle timer.
func (m *manager) SetState(userID, chatID int64, st State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.session(userID, true)
	sess.State = st
	if chatID != 0 {
		sess.ChatID = chatID
	}
	m.touch(userID, sess)
}

// GetState returns the current FSM state of a user, or StateIdle if none exists.
func (m *manager) GetState(userID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess := m.session(userID, false); sess != nil {
		return sess.State
	}
	return StateIdle
}

// HasState checks if a user has an active state other than idle.
func (m *manager) HasState(userID int64) bool {
	return m.GetState(userID) != StateIdle
}

// SetTemp stores a scratch key/value pair and resets the idle timer.
func (m *manager) SetTemp(userID int64, key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.session(userID, true)
	sess.TempData[key] = value
	m.touch(userID, sess)
}

// GetTemp retrieves a scratch value by key.
func (m *manager) GetTemp(userID int64, key string) (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.session(userID, false)
	if sess == nil {
		return nil, false
	}
	val, ok := sess.TempData[key]
	return val, ok
}

// GetTempString retrieves a scratch value by key and asserts it as string.
func (m *manager) GetTempString(userID int64, key string) (string, bool) {
	val, found := m.GetTemp(userID, key)
	if !found {
		return "", false
	}
	s, ok := val.(string)
	if !ok {
		return "", false
	}
	return s, true
}

// ClearTemp removes a scratch key/value pair.
func (m *manager) ClearTemp(userID int64, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess := m.session(userID, false); sess != nil {
		delete(sess.TempData, key)
	}
}

// Clear removes the entire session for a user without firing the timeout
// callback.
func (m *manager) Clear(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess := m.session(userID, false); sess != nil {
		sess.done = true
	}
	m.sessions.Delete(sessionKey(userID))
}

// InProgress reports whether the user currently has an active FSM state.
func (m *manager) InProgress(userID int64) bool {
	return m.HasState(userID)
}

// RegisterHandler associates a state with its handler.
func (m *manager) RegisterHandler(st State, h tele.HandlerFunc) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[st] = h
}

func (m *manager) userLock(userID int64) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[userID] = l
	}
	return l
}

// ManagerHandler executes the handler registered for the user's current
// state, if any. Execution is serialized per user; different users proceed
// concurrently.
func (m *manager) ManagerHandler(c tele.Context) error {
	userID := c.Sender().ID

	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	current := m.GetState(userID)
	ctx := tghelpers.BuildContext(c)
	logger.Debug(ctx, "tg", "fsm.manager",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.String("state", string(current)),
	)

	m.mu.Lock()
	handler, ok := m.handlers[current]
	m.mu.Unlock()
	if ok {
		return handler(c)
	}
	return nil
}

// Close stops the expiry janitor. Pending sessions are dropped silently.
func (m *manager) Close() {
	m.sessions.Flush()
}
