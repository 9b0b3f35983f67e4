package flows

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	coreconfig "ledgerbot/core/config"
	"ledgerbot/core/logger"
	"ledgerbot/core/telegram/state"
	"ledgerbot/ledger"
	"ledgerbot/routing"
	"ledgerbot/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestMain(m *testing.M) {
	_ = logger.InitLogger(nil)
	os.Exit(m.Run())
}

// recordingTransport answers every bot API call with a canned success and
// keeps the text of outgoing sendMessage calls for assertions.
type recordingTransport struct {
	mu    sync.Mutex
	texts []string
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		var payload struct {
			Text string `json:"text"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Text != "" {
			rt.mu.Lock()
			rt.texts = append(rt.texts, payload.Text)
			rt.mu.Unlock()
		}
	}
	body := `{"ok":true,"result":{"message_id":1,"date":1,"chat":{"id":700,"type":"private"}}}`
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

func (rt *recordingTransport) lastText() string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if len(rt.texts) == 0 {
		return ""
	}
	return rt.texts[len(rt.texts)-1]
}

type fakeStore struct {
	mu        sync.Mutex
	agents    []ledger.Agent
	suppliers []ledger.Supplier
	persons   []ledger.Person
	expenses  []ledger.Expense
	receipts  map[int64]string
	totals    []ledger.CategoryTotal

	appendErr error
	nextID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{receipts: make(map[int64]string)}
}

func (s *fakeStore) AppendExpense(ctx context.Context, e ledger.Expense) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return 0, s.appendErr
	}
	s.nextID++
	s.expenses = append(s.expenses, e)
	return s.nextID, nil
}

func (s *fakeStore) AttachReceipt(ctx context.Context, expenseID int64, receiptURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.receipts[expenseID] = receiptURL
	return nil
}

func (s *fakeStore) AppendAgent(ctx context.Context, a ledger.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.agents = append(s.agents, a)
	return nil
}

func (s *fakeStore) AppendSupplier(ctx context.Context, sp ledger.Supplier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.suppliers = append(s.suppliers, sp)
	return nil
}

func (s *fakeStore) AppendPerson(ctx context.Context, p ledger.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.persons = append(s.persons, p)
	return nil
}

func (s *fakeStore) SumByCategory(ctx context.Context, from, to time.Time) ([]ledger.CategoryTotal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals, nil
}

type fakeUploader struct {
	mu         sync.Mutex
	uploads    []uploadCall
	uploadErr  error
	resultLink string
}

type uploadCall struct {
	folderID string
	mimeType string
	size     int
}

func (u *fakeUploader) Upload(ctx context.Context, data []byte, folderID, mimeType string) (*storage.File, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.uploadErr != nil {
		return nil, u.uploadErr
	}
	u.uploads = append(u.uploads, uploadCall{folderID: folderID, mimeType: mimeType, size: len(data)})
	link := u.resultLink
	if link == "" {
		link = "https://docs.example.com/f/1"
	}
	return &storage.File{FileID: "file-1", PublicLink: link}, nil
}

type harness struct {
	flows    *Flows
	states   state.Manager
	store    *fakeStore
	uploader *fakeUploader
	bot      *tele.Bot
	sent     *recordingTransport
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	rt := &recordingTransport{}
	bot, err := tele.NewBot(tele.Settings{
		Token:   "123:abc",
		Offline: true,
		Client:  &http.Client{Transport: rt},
	})
	require.NoError(t, err)

	cfg := &coreconfig.Config{
		Telegram: coreconfig.TelegramConfig{Token: "123:abc"},
		Storage: coreconfig.StorageConfig{
			InvoiceDocFolder:    "fld-invoice",
			SupplierOtherFolder: "fld-supplier",
			PurchasingFolder:    "fld-purchasing",
			OtherFolder:         "fld-other",
			DefaultFolder:       "fld-default",
			CategoryFolders: map[string]string{
				"electricity": "fld-electricity",
			},
		},
	}

	states := state.NewManager(state.Options{})
	t.Cleanup(states.Close)

	store := newFakeStore()
	uploader := &fakeUploader{}
	f := New(cfg, states, store, uploader, routing.NewResolver(cfg.Storage), nil)

	return &harness{flows: f, states: states, store: store, uploader: uploader, bot: bot, sent: rt}
}

const (
	testUser int64 = 7
	testChat int64 = 700
)

func (h *harness) textCtx(text string) tele.Context {
	return h.bot.NewContext(tele.Update{Message: &tele.Message{
		Sender: &tele.User{ID: testUser},
		Chat:   &tele.Chat{ID: testChat},
		Text:   text,
	}})
}

func (h *harness) photoCtx() tele.Context {
	return h.bot.NewContext(tele.Update{Message: &tele.Message{
		Sender: &tele.User{ID: testUser},
		Chat:   &tele.Chat{ID: testChat},
		Photo:  &tele.Photo{File: tele.File{FileID: "ph-1"}},
	}})
}

func (h *harness) callbackCtx(unique, payload string) tele.Context {
	data := unique
	if payload != "" {
		data += "|" + payload
	}
	return h.bot.NewContext(tele.Update{Callback: &tele.Callback{
		Sender:  &tele.User{ID: testUser},
		Message: &tele.Message{Chat: &tele.Chat{ID: testChat}},
		Data:    data,
	}})
}

func TestAgentCreationFlow(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.flows.cmdStart(h.textCtx("/start")))
	assert.Equal(t, StateMainMenu, h.states.GetState(testUser))

	require.NoError(t, h.flows.onCreateAgent(h.callbackCtx(cbCreateAgent, "")))
	assert.Equal(t, StateAwaitingAgentName, h.states.GetState(testUser))

	require.NoError(t, h.flows.onAgentName(h.textCtx("Acme Collections")))
	assert.Equal(t, StateAwaitingAgentID, h.states.GetState(testUser))

	require.NoError(t, h.flows.onAgentID(h.textCtx("991122-14-5566")))
	assert.False(t, h.states.InProgress(testUser))

	require.Len(t, h.store.agents, 1)
	assert.Equal(t, ledger.Agent{Name: "Acme Collections", IC: "991122-14-5566"}, h.store.agents[0])
	assert.Equal(t, msgAgentSaved, h.sent.lastText())
}

func TestAgentNameRejectsPhoto(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.flows.onCreateAgent(h.callbackCtx(cbCreateAgent, "")))
	require.NoError(t, h.flows.onAgentName(h.photoCtx()))

	assert.Equal(t, StateAwaitingAgentName, h.states.GetState(testUser))
	assert.Equal(t, msgAskAgentName, h.sent.lastText())
}

func TestSupplierCreationFlow(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.flows.onCreateSupplier(h.callbackCtx(cbCreateSupplier, "")))
	require.NoError(t, h.flows.onSupplierName(h.textCtx("Paper Co")))
	require.NoError(t, h.flows.onSupplierCategory(h.textCtx("stationery")))

	require.Len(t, h.store.suppliers, 1)
	assert.Equal(t, ledger.Supplier{Name: "Paper Co", Category: "stationery"}, h.store.suppliers[0])
	assert.False(t, h.states.InProgress(testUser))
}

func TestPersonCreationFlow(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.flows.onCreatePerson(h.callbackCtx(cbCreatePerson, "")))
	require.NoError(t, h.flows.onPersonName(h.textCtx("Jordan")))

	require.Len(t, h.store.persons, 1)
	assert.Equal(t, "Jordan", h.store.persons[0].Name)
	assert.False(t, h.states.InProgress(testUser))
}

func TestCancelMidFlow(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.flows.onCreateAgent(h.callbackCtx(cbCreateAgent, "")))
	require.NoError(t, h.flows.onAgentName(h.textCtx("Acme")))

	require.NoError(t, h.flows.cmdCancel(h.textCtx("/cancel")))
	assert.False(t, h.states.InProgress(testUser))
	assert.Empty(t, h.store.agents)
	assert.Equal(t, msgCancelled, h.sent.lastText())

	// Cancelling again is harmless.
	require.NoError(t, h.flows.cmdCancel(h.textCtx("/cancel")))
	assert.Equal(t, msgNothingToCancel, h.sent.lastText())
}

func TestSaveFailureKeepsStateForRetry(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.flows.onCreateAgent(h.callbackCtx(cbCreateAgent, "")))
	require.NoError(t, h.flows.onAgentName(h.textCtx("Acme")))

	h.store.appendErr = errors.New("ledger offline")
	require.NoError(t, h.flows.onAgentID(h.textCtx("IC-1")))
	assert.Equal(t, StateAwaitingAgentID, h.states.GetState(testUser))
	assert.Equal(t, msgSaveRetry, h.sent.lastText())

	h.store.appendErr = nil
	require.NoError(t, h.flows.onAgentID(h.textCtx("IC-1")))
	assert.False(t, h.states.InProgress(testUser))
	require.Len(t, h.store.agents, 1)
}

func TestExpenseFlow(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.flows.cmdAddExpense(h.textCtx("/add")))
	assert.Equal(t, StateAwaitingExpenseCategory, h.states.GetState(testUser))

	require.NoError(t, h.flows.onExpenseCategory(h.callbackCtx(cbExpenseCat, "Electricity Bill")))
	assert.Equal(t, StateAwaitingExpenseAmount, h.states.GetState(testUser))

	require.NoError(t, h.flows.onExpenseAmount(h.textCtx("1,250.40")))
	assert.Equal(t, StateAwaitingExpenseNote, h.states.GetState(testUser))

	require.NoError(t, h.flows.onExpenseNote(h.textCtx("june bill")))
	assert.Equal(t, StateAwaitingReceiptDecision, h.states.GetState(testUser))

	require.Len(t, h.store.expenses, 1)
	e := h.store.expenses[0]
	assert.Equal(t, "Electricity Bill", e.Category)
	assert.True(t, e.Amount.Equal(decimal.RequireFromString("1250.40")), "amount = %s", e.Amount)
	assert.Equal(t, "june bill", e.Description)

	id, ok := h.states.GetTemp(testUser, keyExpenseID)
	require.True(t, ok)
	assert.EqualValues(t, 1, id)
}

func TestExpenseAmountValidation(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.flows.cmdAddExpense(h.textCtx("/add")))
	require.NoError(t, h.flows.onExpenseCategory(h.callbackCtx(cbExpenseCat, "Rent")))

	for _, bad := range []string{"abc", "-5", "0"} {
		require.NoError(t, h.flows.onExpenseAmount(h.textCtx(bad)))
		assert.Equal(t, StateAwaitingExpenseAmount, h.states.GetState(testUser), "input %q", bad)
		assert.Equal(t, msgAmountInvalid, h.sent.lastText(), "input %q", bad)
	}

	require.NoError(t, h.flows.onExpenseAmount(h.textCtx("88")))
	assert.Equal(t, StateAwaitingExpenseNote, h.states.GetState(testUser))
}

func TestExpenseDescriptionSkip(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.flows.cmdAddExpense(h.textCtx("/add")))
	require.NoError(t, h.flows.onExpenseCategory(h.callbackCtx(cbExpenseCat, "Rent")))
	require.NoError(t, h.flows.onExpenseAmount(h.textCtx("400")))
	require.NoError(t, h.flows.onExpenseNote(h.textCtx("-")))

	require.Len(t, h.store.expenses, 1)
	assert.Empty(t, h.store.expenses[0].Description)
}

func TestExpensePersistFailureKeepsState(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.flows.cmdAddExpense(h.textCtx("/add")))
	require.NoError(t, h.flows.onExpenseCategory(h.callbackCtx(cbExpenseCat, "Rent")))
	require.NoError(t, h.flows.onExpenseAmount(h.textCtx("400")))

	h.store.appendErr = errors.New("ledger offline")
	require.NoError(t, h.flows.onExpenseNote(h.textCtx("rent")))
	assert.Equal(t, StateAwaitingExpenseNote, h.states.GetState(testUser))
	assert.Empty(t, h.store.expenses)

	h.store.appendErr = nil
	require.NoError(t, h.flows.onExpenseNote(h.textCtx("rent")))
	assert.Equal(t, StateAwaitingReceiptDecision, h.states.GetState(testUser))
	require.Len(t, h.store.expenses, 1)
}

func recordExpense(t *testing.T, h *harness, category string) {
	t.Helper()
	require.NoError(t, h.flows.cmdAddExpense(h.textCtx("/add")))
	require.NoError(t, h.flows.onExpenseCategory(h.callbackCtx(cbExpenseCat, category)))
	require.NoError(t, h.flows.onExpenseAmount(h.textCtx("120")))
	require.NoError(t, h.flows.onExpenseNote(h.textCtx("-")))
	require.Equal(t, StateAwaitingReceiptDecision, h.states.GetState(testUser))
}

func TestReceiptPhotoUpload(t *testing.T) {
	h := newHarness(t)
	recordExpense(t, h, "Electricity Bill")

	h.flows.download = func(c tele.Context, photo *tele.Photo) ([]byte, error) {
		return []byte("jpeg-bytes"), nil
	}

	require.NoError(t, h.flows.onReceiptDecision(h.photoCtx()))

	assert.False(t, h.states.InProgress(testUser))
	require.Len(t, h.uploader.uploads, 1)
	up := h.uploader.uploads[0]
	assert.Equal(t, "fld-electricity", up.folderID)
	assert.Equal(t, "image/jpeg", up.mimeType)

	assert.Equal(t, "https://docs.example.com/f/1", h.store.receipts[1])
	assert.Equal(t, msgReceiptDone, h.sent.lastText())
}

func TestReceiptSkipByText(t *testing.T) {
	h := newHarness(t)
	recordExpense(t, h, "Rent")

	require.NoError(t, h.flows.onReceiptDecision(h.textCtx("no")))

	assert.False(t, h.states.InProgress(testUser))
	assert.Empty(t, h.uploader.uploads)
	assert.Empty(t, h.store.receipts)
	assert.Equal(t, msgReceiptSkipped, h.sent.lastText())
}

func TestReceiptSkipButton(t *testing.T) {
	h := newHarness(t)
	recordExpense(t, h, "Rent")

	require.NoError(t, h.flows.onReceiptSkip(h.callbackCtx(cbReceiptSkip, "")))
	assert.False(t, h.states.InProgress(testUser))
	assert.Empty(t, h.uploader.uploads)
}

func TestReceiptRepromptOnUnrelatedText(t *testing.T) {
	h := newHarness(t)
	recordExpense(t, h, "Rent")

	require.NoError(t, h.flows.onReceiptDecision(h.textCtx("maybe later")))
	assert.Equal(t, StateAwaitingReceiptDecision, h.states.GetState(testUser))
}

func TestReceiptUploadFailureKeepsState(t *testing.T) {
	h := newHarness(t)
	recordExpense(t, h, "Electricity Bill")

	h.flows.download = func(c tele.Context, photo *tele.Photo) ([]byte, error) {
		return []byte("jpeg-bytes"), nil
	}
	h.uploader.uploadErr = errors.New("store down")

	require.NoError(t, h.flows.onReceiptDecision(h.photoCtx()))
	assert.Equal(t, StateAwaitingReceiptDecision, h.states.GetState(testUser))
	assert.Equal(t, msgUploadRetry, h.sent.lastText())

	h.uploader.uploadErr = nil
	require.NoError(t, h.flows.onReceiptDecision(h.photoCtx()))
	assert.False(t, h.states.InProgress(testUser))
	assert.Equal(t, "https://docs.example.com/f/1", h.store.receipts[1])
}

func TestSummary(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.flows.cmdSummary(h.textCtx("/summary")))
	assert.Equal(t, "No records this month.", h.sent.lastText())

	h.store.totals = []ledger.CategoryTotal{
		{Category: "electricity", Total: decimal.RequireFromString("120.5")},
		{Category: "rent", Total: decimal.RequireFromString("400")},
	}
	require.NoError(t, h.flows.cmdSummary(h.textCtx("/summary")))
	out := h.sent.lastText()
	assert.Contains(t, out, "electricity: 120.50")
	assert.Contains(t, out, "rent: 400.00")
	assert.Contains(t, out, "Total: 520.50")
}

func TestUnknownTextReplies(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.flows.UnknownText()(h.textCtx("/bogus")))
	assert.Equal(t, msgUnknownCommand, h.sent.lastText())

	require.NoError(t, h.flows.UnknownText()(h.textCtx("hello there")))
	assert.Equal(t, msgMenuHint, h.sent.lastText())
}

func TestMainMenuTextReprompts(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.flows.cmdStart(h.textCtx("/start")))
	require.NoError(t, h.flows.onMainMenuInput(h.textCtx("what now")))
	assert.Equal(t, StateMainMenu, h.states.GetState(testUser))
	assert.Equal(t, msgUseButtons, h.sent.lastText())
}

func TestNotifyTimeoutWithoutSession(t *testing.T) {
	h := newHarness(t)
	// Must not panic when no session manager is attached.
	h.flows.NotifyTimeout(testUser, testChat, StateAwaitingAgentName)
}
