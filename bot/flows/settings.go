package flows

import (
	"strings"

	"ledgerbot/core/logger"
	tghelpers "ledgerbot/core/telegram/helpers"
	"ledgerbot/ledger"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// textInput extracts the text payload of the current update. It reports
// false for photo/document input so state handlers can re-prompt instead of
// silently consuming the wrong kind.
func textInput(c tele.Context) (string, bool) {
	msg := c.Message()
	if msg == nil || msg.Photo != nil || msg.Document != nil {
		return "", false
	}
	return strings.TrimSpace(c.Text()), true
}

func (f *Flows) onCreateAgent(c tele.Context) error {
	f.states.SetState(c.Sender().ID, chatIDOf(c), StateAwaitingAgentName)
	return tghelpers.SendText(c, msgAskAgentName)
}

func (f *Flows) onCreateSupplier(c tele.Context) error {
	f.states.SetState(c.Sender().ID, chatIDOf(c), StateAwaitingSupplierName)
	return tghelpers.SendText(c, msgAskSupplierName)
}

func (f *Flows) onCreatePerson(c tele.Context) error {
	f.states.SetState(c.Sender().ID, chatIDOf(c), StateAwaitingPersonName)
	return tghelpers.SendText(c, msgAskPersonName)
}

func (f *Flows) onAgentName(c tele.Context) error {
	name, ok := textInput(c)
	if !ok || name == "" {
		return tghelpers.SendText(c, msgAskAgentName)
	}
	userID := c.Sender().ID
	f.states.SetTemp(userID, keyAgentName, name)
	f.states.SetState(userID, chatIDOf(c), StateAwaitingAgentID)
	return tghelpers.SendText(c, msgAskAgentID)
}

// onAgentID is the terminal step of the agent flow: persist and return to
// idle. A failed persist keeps the state so resending the ID retries.
func (f *Flows) onAgentID(c tele.Context) error {
	ic, ok := textInput(c)
	if !ok || ic == "" {
		return tghelpers.SendText(c, msgAskAgentID)
	}
	userID := c.Sender().ID
	name, ok := f.states.GetTempString(userID, keyAgentName)
	if !ok || name == "" {
		f.states.Clear(userID)
		return tghelpers.SendText(c, msgShortError)
	}

	ctx := tghelpers.BuildContext(c)
	if err := f.store.AppendAgent(ctx, ledger.Agent{Name: name, IC: ic}); err != nil {
		logger.Error(ctx, "ledger", "agent.append",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, msgSaveRetry)
	}

	f.states.Clear(userID)
	return tghelpers.SendText(c, msgAgentSaved)
}

func (f *Flows) onSupplierName(c tele.Context) error {
	name, ok := textInput(c)
	if !ok || name == "" {
		return tghelpers.SendText(c, msgAskSupplierName)
	}
	userID := c.Sender().ID
	f.states.SetTemp(userID, keySupplierName, name)
	f.states.SetState(userID, chatIDOf(c), StateAwaitingSupplierCategory)
	return tghelpers.SendText(c, msgAskSupplierCat)
}

func (f *Flows) onSupplierCategory(c tele.Context) error {
	category, ok := textInput(c)
	if !ok || category == "" {
		return tghelpers.SendText(c, msgAskSupplierCat)
	}
	userID := c.Sender().ID
	name, ok := f.states.GetTempString(userID, keySupplierName)
	if !ok || name == "" {
		f.states.Clear(userID)
		return tghelpers.SendText(c, msgShortError)
	}

	ctx := tghelpers.BuildContext(c)
	if err := f.store.AppendSupplier(ctx, ledger.Supplier{Name: name, Category: category}); err != nil {
		logger.Error(ctx, "ledger", "supplier.append",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, msgSaveRetry)
	}

	f.states.Clear(userID)
	return tghelpers.SendText(c, msgSupplierSaved)
}

func (f *Flows) onPersonName(c tele.Context) error {
	name, ok := textInput(c)
	if !ok || name == "" {
		return tghelpers.SendText(c, msgAskPersonName)
	}
	userID := c.Sender().ID

	ctx := tghelpers.BuildContext(c)
	if err := f.store.AppendPerson(ctx, ledger.Person{Name: name}); err != nil {
		logger.Error(ctx, "ledger", "person.append",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, msgSaveRetry)
	}

	f.states.Clear(userID)
	return tghelpers.SendText(c, msgPersonSaved)
}
