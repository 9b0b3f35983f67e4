// Package postgres implements the ledger store on PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"ledgerbot/core/logger"
	"ledgerbot/ledger"
	"log/slog"
)

// Store persists ledger rows in PostgreSQL tables managed by the repo's
// migrations.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// AppendExpense appends an expense row and returns its identifier.
func (s *Store) AppendExpense(ctx context.Context, e ledger.Expense) (int64, error) {
	start := time.Now()
	var id int64
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO expenses (recorded_at, category, amount, description, note, receipt_url)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		e.Date, e.Category, e.Amount.String(), e.Description, e.Note, e.ReceiptURL,
	).Scan(&id)
	if err != nil {
		logger.LEDGER.Error("append expense failed",
			slog.String("event", "ledger.append_expense"),
			slog.String("category", e.Category),
			slog.String("err", err.Error()),
		)
		return 0, fmt.Errorf("append expense: %w", err)
	}
	logger.LEDGER.Debug("expense appended",
		slog.String("event", "ledger.append_expense"),
		slog.String("category", e.Category),
		slog.String("amount", e.Amount.String()),
		slog.Duration("duration", logger.Took(start)),
	)
	return id, nil
}

// AttachReceipt records the uploaded receipt link on an expense row.
func (s *Store) AttachReceipt(ctx context.Context, expenseID int64, receiptURL string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE expenses SET receipt_url = $1 WHERE id = $2`,
		receiptURL, expenseID,
	)
	if err != nil {
		return fmt.Errorf("attach receipt: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("attach receipt: expense %d not found", expenseID)
	}
	return nil
}

// AppendAgent appends an agent row.
func (s *Store) AppendAgent(ctx context.Context, a ledger.Agent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (name, ic) VALUES ($1, $2)`,
		a.Name, a.IC,
	)
	if err != nil {
		return fmt.Errorf("append agent: %w", err)
	}
	return nil
}

// AppendSupplier appends a supplier row.
func (s *Store) AppendSupplier(ctx context.Context, sp ledger.Supplier) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO suppliers (name, category) VALUES ($1, $2)`,
		sp.Name, sp.Category,
	)
	if err != nil {
		return fmt.Errorf("append supplier: %w", err)
	}
	return nil
}

// AppendPerson appends a person row.
func (s *Store) AppendPerson(ctx context.Context, p ledger.Person) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO persons (name) VALUES ($1)`,
		p.Name,
	)
	if err != nil {
		return fmt.Errorf("append person: %w", err)
	}
	return nil
}

// SumByCategory returns per-category totals for rows dated within [from, to).
func (s *Store) SumByCategory(ctx context.Context, from, to time.Time) ([]ledger.CategoryTotal, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT category, COALESCE(SUM(amount), 0) AS total
		 FROM expenses
		 WHERE recorded_at >= $1 AND recorded_at < $2
		 GROUP BY category
		 ORDER BY category`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("sum by category: %w", err)
	}
	defer rows.Close()

	var totals []ledger.CategoryTotal
	for rows.Next() {
		var (
			category string
			raw      string
		)
		if err := rows.Scan(&category, &raw); err != nil {
			return nil, fmt.Errorf("sum by category scan: %w", err)
		}
		total, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("sum by category parse %q: %w", raw, err)
		}
		totals = append(totals, ledger.CategoryTotal{Category: category, Total: total})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sum by category rows: %w", err)
	}
	return totals, nil
}

var _ ledger.Store = (*Store)(nil)
