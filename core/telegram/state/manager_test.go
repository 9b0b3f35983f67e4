package state

import (
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func TestStateLifecycle(t *testing.T) {
	m := NewManager(Options{})
	defer m.Close()

	if got := m.GetState(1); got != StateIdle {
		t.Fatalf("fresh user state = %q, expected idle", got)
	}
	if m.InProgress(1) {
		t.Fatal("fresh user reported in progress")
	}

	m.SetState(1, 100, "awaiting_name")
	if got := m.GetState(1); got != "awaiting_name" {
		t.Fatalf("state = %q, expected awaiting_name", got)
	}
	if !m.InProgress(1) {
		t.Fatal("expected in progress")
	}

	// A second SetState replaces the first; one state per user.
	m.SetState(1, 100, "awaiting_amount")
	if got := m.GetState(1); got != "awaiting_amount" {
		t.Fatalf("state = %q, expected awaiting_amount", got)
	}
	if got := m.Get(1).ChatID; got != 100 {
		t.Fatalf("chat id = %d, expected 100", got)
	}

	if got := m.GetState(2); got != StateIdle {
		t.Fatalf("other user state = %q, expected idle", got)
	}

	m.Clear(1)
	if m.InProgress(1) {
		t.Fatal("cleared user still in progress")
	}
}

func TestTempData(t *testing.T) {
	m := NewManager(Options{})
	defer m.Close()

	m.SetTemp(1, "name", "Acme")
	m.SetTemp(1, "amount", int64(42))

	if s, ok := m.GetTempString(1, "name"); !ok || s != "Acme" {
		t.Fatalf("GetTempString = %q, %v", s, ok)
	}
	if _, ok := m.GetTempString(1, "amount"); ok {
		t.Fatal("non-string value passed GetTempString")
	}
	if v, ok := m.GetTemp(1, "amount"); !ok || v.(int64) != 42 {
		t.Fatalf("GetTemp = %v, %v", v, ok)
	}

	m.ClearTemp(1, "name")
	if _, ok := m.GetTemp(1, "name"); ok {
		t.Fatal("cleared key still present")
	}

	m.Clear(1)
	if _, ok := m.GetTemp(1, "amount"); ok {
		t.Fatal("temp data survived Clear")
	}
}

func TestTimeoutNotice(t *testing.T) {
	type notice struct {
		userID int64
		chatID int64
		last   State
	}
	fired := make(chan notice, 1)

	m := NewManager(Options{
		Timeout: 100 * time.Millisecond,
		OnTimeout: func(userID, chatID int64, last State) {
			fired <- notice{userID, chatID, last}
		},
	})
	defer m.Close()

	m.SetState(7, 700, "awaiting_name")

	// The janitor runs on a coarse interval; allow a few cycles.
	select {
	case n := <-fired:
		if n.userID != 7 || n.chatID != 700 || n.last != "awaiting_name" {
			t.Fatalf("unexpected notice: %+v", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout notice never fired")
	}
}

func TestClearSuppressesTimeoutNotice(t *testing.T) {
	fired := make(chan struct{}, 1)

	m := NewManager(Options{
		Timeout: 100 * time.Millisecond,
		OnTimeout: func(int64, int64, State) {
			fired <- struct{}{}
		},
	})
	defer m.Close()

	m.SetState(7, 700, "awaiting_name")
	m.Clear(7)

	select {
	case <-fired:
		t.Fatal("timeout notice fired for an explicitly ended conversation")
	case <-time.After(2500 * time.Millisecond):
	}
}

func TestManagerHandlerDispatch(t *testing.T) {
	bot, err := tele.NewBot(tele.Settings{Offline: true})
	if err != nil {
		t.Fatalf("offline bot: %v", err)
	}

	m := NewManager(Options{})
	defer m.Close()

	var calls int
	m.RegisterHandler("awaiting_name", func(c tele.Context) error {
		calls++
		return nil
	})

	c := bot.NewContext(tele.Update{Message: &tele.Message{
		Sender: &tele.User{ID: 7},
		Chat:   &tele.Chat{ID: 700},
		Text:   "hello",
	}})

	m.SetState(7, 700, "awaiting_name")
	if err := m.ManagerHandler(c); err != nil {
		t.Fatalf("ManagerHandler: %v", err)
	}
	if calls != 1 {
		t.Fatalf("handler calls = %d, expected 1", calls)
	}

	m.Clear(7)
	if err := m.ManagerHandler(c); err != nil {
		t.Fatalf("ManagerHandler after clear: %v", err)
	}
	if calls != 1 {
		t.Fatalf("handler ran without a matching state (calls = %d)", calls)
	}
}
