package flows

import (
	tghelpers "ledgerbot/core/telegram/helpers"
	"ledgerbot/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

func mainMenuMarkup() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "➕ Add expense", Unique: cbAddExpense},
		},
		[]keyboard.InlineBtn{
			{Text: "👤 Agent", Unique: cbCreateAgent},
			{Text: "🏭 Supplier", Unique: cbCreateSupplier},
		},
		[]keyboard.InlineBtn{
			{Text: "🧑 Person", Unique: cbCreatePerson},
		},
	)
}

// cmdStart always resets any prior conversation before showing the menu.
func (f *Flows) cmdStart(c tele.Context) error {
	userID := c.Sender().ID
	f.states.Clear(userID)
	f.states.SetState(userID, chatIDOf(c), StateMainMenu)
	return tghelpers.SendMD(c, msgWelcome, mainMenuMarkup())
}

// cmdSettings renders the same menu of sub-flows.
func (f *Flows) cmdSettings(c tele.Context) error {
	return f.cmdStart(c)
}

// onMainMenuInput catches text typed while the menu is open. There is no
// text edge out of the menu, so re-prompt with the same state.
func (f *Flows) onMainMenuInput(c tele.Context) error {
	return tghelpers.SendMD(c, msgUseButtons, mainMenuMarkup())
}

func chatIDOf(c tele.Context) int64 {
	if chat := c.Chat(); chat != nil {
		return chat.ID
	}
	return 0
}
