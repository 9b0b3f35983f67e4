package flows

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledgerbot/core/logger"
	"ledgerbot/core/telegram/callbacks"
	tghelpers "ledgerbot/core/telegram/helpers"
	"ledgerbot/core/telegram/keyboard"
	"ledgerbot/ledger"
	"ledgerbot/routing"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// expenseCategories lists the buttons offered when recording an expense.
// The Data value is the raw type token handed to the destination resolver
// when a receipt is uploaded.
var expenseCategories = []keyboard.InlineBtn{
	{Text: "💡 Electricity Bill", Unique: cbExpenseCat, Data: "Electricity Bill"},
	{Text: "📶 WiFi Bill", Unique: cbExpenseCat, Data: "WiFi Bill"},
	{Text: "🚿 Water Bill", Unique: cbExpenseCat, Data: "Water Bill"},
	{Text: "🏠 Rent", Unique: cbExpenseCat, Data: "Rent"},
	{Text: "💼 Salary", Unique: cbExpenseCat, Data: "Salary"},
	{Text: "🛒 Purchasing", Unique: cbExpenseCat, Data: routing.TypePurchasing},
	{Text: "🏭 Supplier (other)", Unique: cbExpenseCat, Data: routing.TypeSupplierOther},
	{Text: "📄 Other Bill", Unique: cbExpenseCat, Data: "Other Bill"},
}

func categoryMarkup() *tele.ReplyMarkup {
	return keyboard.InlineButtonsNPerRow(expenseCategories, 2)
}

func skipMarkup() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "Skip", Unique: cbReceiptSkip},
	})
}

func (f *Flows) cmdAddExpense(c tele.Context) error {
	f.states.SetState(c.Sender().ID, chatIDOf(c), StateAwaitingExpenseCategory)
	return tghelpers.SendMD(c, msgAskCategory, categoryMarkup())
}

// onAddExpense is the menu-button entry into the same flow.
func (f *Flows) onAddExpense(c tele.Context) error {
	return f.cmdAddExpense(c)
}

func (f *Flows) onExpenseCategory(c tele.Context) error {
	userID := c.Sender().ID
	category := callbacks.CallbackPayload(c)
	if category == "" {
		return tghelpers.SendMD(c, msgAskCategory, categoryMarkup())
	}
	f.states.SetTemp(userID, keyExpenseCategory, category)
	f.states.SetState(userID, chatIDOf(c), StateAwaitingExpenseAmount)
	return tghelpers.SendText(c, msgAskAmount)
}

// onExpenseCategoryInput catches text typed while the category keyboard is
// shown; the only edge out of this state is a button press.
func (f *Flows) onExpenseCategoryInput(c tele.Context) error {
	return tghelpers.SendMD(c, msgUseButtons, categoryMarkup())
}

// onExpenseAmount validates the amount. Malformed or non-positive input
// loops back in place without discarding collected data.
func (f *Flows) onExpenseAmount(c tele.Context) error {
	raw, ok := textInput(c)
	if !ok {
		return tghelpers.SendText(c, msgTextExpected)
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil || !amount.IsPositive() {
		return tghelpers.SendText(c, msgAmountInvalid)
	}
	userID := c.Sender().ID
	f.states.SetTemp(userID, keyExpenseAmount, amount.String())
	f.states.SetState(userID, chatIDOf(c), StateAwaitingExpenseNote)
	return tghelpers.SendText(c, msgAskDescription)
}

// onExpenseNote is the persisting step: the row is appended and the flow
// moves on to the receipt decision. A failed persist keeps the state so
// resending the description retries.
func (f *Flows) onExpenseNote(c tele.Context) error {
	text, ok := textInput(c)
	if !ok {
		return tghelpers.SendText(c, msgTextExpected)
	}
	description := text
	if description == "-" {
		description = ""
	}

	userID := c.Sender().ID
	category, ok := f.states.GetTempString(userID, keyExpenseCategory)
	if !ok || category == "" {
		f.states.Clear(userID)
		return tghelpers.SendText(c, msgShortError)
	}
	amountRaw, ok := f.states.GetTempString(userID, keyExpenseAmount)
	if !ok {
		f.states.Clear(userID)
		return tghelpers.SendText(c, msgShortError)
	}
	amount, err := decimal.NewFromString(amountRaw)
	if err != nil {
		f.states.Clear(userID)
		return tghelpers.SendText(c, msgShortError)
	}

	ctx := tghelpers.BuildContext(c)
	id, err := f.store.AppendExpense(ctx, ledger.Expense{
		Date:        time.Now(),
		Category:    category,
		Amount:      amount,
		Description: description,
	})
	if err != nil {
		logger.Error(ctx, "ledger", "expense.append",
			slog.String("status", "fail"),
			slog.String("category", category),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, msgSaveRetry)
	}

	f.states.SetTemp(userID, keyExpenseID, id)
	f.states.SetState(userID, chatIDOf(c), StateAwaitingReceiptDecision)
	return tghelpers.SendMD(c, msgExpenseSaved, skipMarkup())
}

// cmdSummary reports current-month totals per category.
func (f *Flows) cmdSummary(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	now := time.Now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	totals, err := f.store.SumByCategory(ctx, from, now.Add(time.Second))
	if err != nil {
		logger.Error(ctx, "ledger", "summary.query",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, msgShortError)
	}
	if len(totals) == 0 {
		return tghelpers.SendText(c, "No records this month.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s totals:\n", now.Format("January 2006"))
	grand := decimal.Zero
	for _, t := range totals {
		fmt.Fprintf(&b, "• %s: %s\n", t.Category, t.Total.StringFixed(2))
		grand = grand.Add(t.Total)
	}
	fmt.Fprintf(&b, "Total: %s", grand.StringFixed(2))
	return tghelpers.SendText(c, b.String())
}
