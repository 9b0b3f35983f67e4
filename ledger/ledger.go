// Package ledger defines the contract for the store that financial records
// land in. The bot only appends rows and reads basic sums; the store itself
// (spreadsheet, database, ...) is a collaborator behind this interface.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Expense is one expense/income row.
type Expense struct {
	Date        time.Time
	Category    string
	Amount      decimal.Decimal
	Description string
	Note        string
	ReceiptURL  string
}

// Agent is a registered collection agent.
type Agent struct {
	Name string
	IC   string
}

// Supplier is a registered supplier with its default category.
type Supplier struct {
	Name     string
	Category string
}

// Person is a registered payee/payer.
type Person struct {
	Name string
}

// CategoryTotal is one row of a sum query.
type CategoryTotal struct {
	Category string          `db:"category"`
	Total    decimal.Decimal `db:"total"`
}

// Store persists ledger rows. Implementations must be safe for concurrent
// use; calls may block on network I/O.
type Store interface {
	// AppendExpense appends an expense row and returns its identifier.
	AppendExpense(ctx context.Context, e Expense) (int64, error)
	// AttachReceipt records the uploaded receipt link on an expense row.
	AttachReceipt(ctx context.Context, expenseID int64, receiptURL string) error

	AppendAgent(ctx context.Context, a Agent) error
	AppendSupplier(ctx context.Context, s Supplier) error
	AppendPerson(ctx context.Context, p Person) error

	// SumByCategory returns per-category totals for rows dated within
	// [from, to).
	SumByCategory(ctx context.Context, from, to time.Time) ([]CategoryTotal, error)
}
