package flows

import "ledgerbot/core/telegram/state"

// Conversation states. A user is in exactly one of these (or idle) at any
// time; transitions happen only through the handlers in this package.
const (
	StateMainMenu                 state.State = "main_menu"
	StateAwaitingAgentName        state.State = "awaiting_agent_name"
	StateAwaitingAgentID          state.State = "awaiting_agent_id"
	StateAwaitingSupplierName     state.State = "awaiting_supplier_name"
	StateAwaitingSupplierCategory state.State = "awaiting_supplier_category"
	StateAwaitingPersonName       state.State = "awaiting_person_name"
	StateAwaitingExpenseCategory  state.State = "awaiting_expense_category"
	StateAwaitingExpenseAmount    state.State = "awaiting_expense_amount"
	StateAwaitingExpenseNote      state.State = "awaiting_expense_note"
	StateAwaitingReceiptDecision  state.State = "awaiting_receipt_decision"
)

// Scratch keys for partially collected values.
const (
	keyAgentName       = "agent_name"
	keySupplierName    = "supplier_name"
	keyPersonName      = "person_name"
	keyExpenseCategory = "expense_category"
	keyExpenseAmount   = "expense_amount"
	keyExpenseID       = "expense_id"
)

// Callback keys for inline buttons.
const (
	cbCreateAgent    = "create_agent"
	cbCreateSupplier = "create_supplier"
	cbCreatePerson   = "create_person"
	cbAddExpense     = "add_expense"
	cbExpenseCat     = "expense_cat"
	cbReceiptSkip    = "receipt_skip"
)
