package ar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridiandist/meridian/internal/inventory"
	"github.com/meridiandist/meridian/internal/ledger"
	"github.com/meridiandist/meridian/internal/money"
	"github.com/meridiandist/meridian/internal/platform/db"
)

// DBTX covers the pgx surface shared by *pgxpool.Pool and pgx.Tx, letting one
// repository run either standalone or bound to a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence for AR.
type Repository struct {
	db   DBTX
	pool *pgxpool.Pool
}

// NewRepository constructs a repository on the shared pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// WithTx runs fn with a repository and stock store bound to one
// RepeatableRead transaction. Nested calls reuse the surrounding transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, repo RepositoryPort, stock StockPort) error) error {
	if r.pool == nil {
		return fn(ctx, r, inventory.NewStore(r.db))
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		txRepo := &Repository{db: tx}
		return fn(ctx, txRepo, inventory.NewStore(tx))
	})
}

// CreateInvoice stores the invoice header and its lines.
func (r *Repository) CreateInvoice(ctx context.Context, inv ledger.Invoice, lines []ledger.Line) (*ledger.Invoice, error) {
	const query = `
		INSERT INTO invoices (customer_id, issue_date, due_date, total, status, approval_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		inv.CustomerID,
		inv.Date,
		inv.DueDate,
		inv.Total.Decimal(),
		inv.Status,
		inv.Approval,
	).Scan(&inv.ID)
	if err != nil {
		return nil, fmt.Errorf("ar: insert invoice: %w", err)
	}

	const lineQuery = `
		INSERT INTO invoice_lines (invoice_id, product_id, description, quantity, unit_price, total)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for _, l := range lines {
		if _, err := r.db.Exec(ctx, lineQuery, inv.ID, l.ProductID, l.Description, l.Quantity, l.UnitPrice.Decimal(), l.Total().Decimal()); err != nil {
			return nil, fmt.Errorf("ar: insert invoice line: %w", err)
		}
	}
	return &inv, nil
}

const invoiceColumns = `id, customer_id, issue_date, due_date, total, status, approval_status`

func scanInvoice(row pgx.Row) (*ledger.Invoice, error) {
	var (
		inv     ledger.Invoice
		dueDate *time.Time
		total   decimal.Decimal
	)
	err := row.Scan(&inv.ID, &inv.CustomerID, &inv.Date, &dueDate, &total, &inv.Status, &inv.Approval)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ar: scan invoice: %w", err)
	}
	inv.DueDate = dueDate
	inv.Total = money.New(total)
	return &inv, nil
}

// GetInvoice loads one invoice by id.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (*ledger.Invoice, error) {
	row := r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	return scanInvoice(row)
}

// ListInvoiceLines loads the lines of one invoice in insertion order.
func (r *Repository) ListInvoiceLines(ctx context.Context, invoiceID int64) ([]ledger.Line, error) {
	rows, err := r.db.Query(ctx, `
		SELECT product_id, description, quantity, unit_price
		FROM invoice_lines WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("ar: list invoice lines: %w", err)
	}
	defer rows.Close()

	var lines []ledger.Line
	for rows.Next() {
		var (
			l     ledger.Line
			price decimal.Decimal
		)
		if err := rows.Scan(&l.ProductID, &l.Description, &l.Quantity, &price); err != nil {
			return nil, fmt.Errorf("ar: scan invoice line: %w", err)
		}
		l.UnitPrice = money.New(price)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// SetInvoiceStatus updates the lifecycle state of one invoice.
func (r *Repository) SetInvoiceStatus(ctx context.Context, id int64, status ledger.InvoiceStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE invoices SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("ar: update invoice status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: invoice %d", ErrNotFound, id)
	}
	return nil
}

// SetInvoiceApproval updates the approval sub-state of one invoice.
func (r *Repository) SetInvoiceApproval(ctx context.Context, id int64, approval ledger.ApprovalStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE invoices SET approval_status = $2, updated_at = NOW() WHERE id = $1`, id, approval)
	if err != nil {
		return fmt.Errorf("ar: update invoice approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: invoice %d", ErrNotFound, id)
	}
	return nil
}

// CreatePayment stores a payment row. An empty idempotency key stores NULL so
// the unique index only applies to keyed requests.
func (r *Repository) CreatePayment(ctx context.Context, p ledger.Payment, idempotencyKey string) (*ledger.Payment, error) {
	const query = `
		INSERT INTO payments (customer_id, reference, amount, payment_date, status, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NOW())
		RETURNING id`
	err := r.db.QueryRow(ctx, query, p.CustomerID, p.Reference, p.Amount.Decimal(), p.PaidAt, p.Status, idempotencyKey).Scan(&p.ID)
	if err != nil {
		return nil, fmt.Errorf("ar: insert payment: %w", err)
	}
	return &p, nil
}

// CustomerExists reports whether a customer id is known.
func (r *Repository) CustomerExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("ar: customer exists: %w", err)
	}
	return exists, nil
}

// ListAccounts loads customer snapshots with full invoice and payment
// histories. Filters are a fixed set of optional equality predicates; zero
// means unfiltered.
func (r *Repository) ListAccounts(ctx context.Context, filter AccountFilter) ([]ledger.Account, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name FROM customers
		WHERE ($1 = 0 OR id = $1)
		  AND ($2 = 0 OR team_id = $2)
		  AND ($3 = 0 OR region_id = $3)
		ORDER BY id`, filter.CustomerID, filter.TeamID, filter.RegionID)
	if err != nil {
		return nil, fmt.Errorf("ar: list customers: %w", err)
	}
	defer rows.Close()

	var (
		accounts []ledger.Account
		index    = make(map[int64]int)
		ids      []int64
	)
	for rows.Next() {
		var c ledger.Customer
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("ar: scan customer: %w", err)
		}
		index[c.ID] = len(accounts)
		ids = append(ids, c.ID)
		accounts = append(accounts, ledger.Account{Customer: c})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return accounts, nil
	}

	invRows, err := r.db.Query(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE customer_id = ANY($1) ORDER BY issue_date, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("ar: list invoices: %w", err)
	}
	defer invRows.Close()
	for invRows.Next() {
		inv, err := scanInvoice(invRows)
		if err != nil {
			return nil, err
		}
		i := index[inv.CustomerID]
		accounts[i].Invoices = append(accounts[i].Invoices, *inv)
	}
	if err := invRows.Err(); err != nil {
		return nil, err
	}

	payRows, err := r.db.Query(ctx, `
		SELECT id, customer_id, reference, amount, payment_date, status FROM payments
		WHERE customer_id = ANY($1) ORDER BY payment_date, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("ar: list payments: %w", err)
	}
	defer payRows.Close()
	for payRows.Next() {
		var (
			p      ledger.Payment
			amount decimal.Decimal
		)
		if err := payRows.Scan(&p.ID, &p.CustomerID, &p.Reference, &amount, &p.PaidAt, &p.Status); err != nil {
			return nil, fmt.Errorf("ar: scan payment: %w", err)
		}
		p.Amount = money.New(amount)
		i := index[p.CustomerID]
		accounts[i].Payments = append(accounts[i].Payments, p)
	}
	return accounts, payRows.Err()
}
