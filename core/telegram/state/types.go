package state

import tele "gopkg.in/telebot.v4"

// State identifies a finite-state-machine step used in conversations.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"
)

// Session stores conversation state and temporary data for a user.
// A user has at most one Session at a time.
type Session struct {
	State    State
	ChatID   int64
	TempData map[string]interface{}

	// done marks sessions removed on completion or cancellation so the
	// eviction callback can tell them apart from idle timeouts.
	done bool
}

// TimeoutFunc is invoked when a conversation is abandoned after the idle
// window expires. It runs on the store's janitor goroutine.
type TimeoutFunc func(userID, chatID int64, last State)

// Manager orchestrates user sessions and FSM state transitions.
type Manager interface {
	// Get returns a snapshot of the user's session, or an idle session if
	// none exists.
	Get(userID int64) *Session

	SetState(userID, chatID int64, st State)
	GetState(userID int64) State
	HasState(userID int64) bool

	SetTemp(userID int64, key string, value interface{})
	GetTemp(userID int64, key string) (interface{}, bool)
	GetTempString(userID int64, key string) (string, bool)
	ClearTemp(userID int64, key string)

	// Clear completes the conversation: the session is removed and no
	// timeout notice fires for it.
	Clear(userID int64)

	InProgress(userID int64) bool

	// RegisterHandler binds a handler to a state. Input arriving while the
	// user is in that state is dispatched to the handler.
	RegisterHandler(st State, h tele.HandlerFunc)

	// ManagerHandler executes the handler for the user's current state,
	// serialized per user.
	ManagerHandler(c tele.Context) error

	// Close stops the background expiry machinery.
	Close()
}
