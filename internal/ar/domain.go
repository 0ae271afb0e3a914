// Package ar is the accounts-receivable application module. It wires the pure
// ledger engine to persistence, caching, and the HTTP surface.
package ar

import (
	"context"
	"errors"
	"time"

	"github.com/meridiandist/meridian/internal/ledger"
	"github.com/meridiandist/meridian/internal/money"
)

// ErrNotFound indicates an unknown invoice or customer id.
var ErrNotFound = errors.New("ar: not found")

// CreateInvoiceInput carries a validated invoice creation request.
type CreateInvoiceInput struct {
	CustomerID int64
	IssueDate  time.Time
	DueDate    *time.Time
	Lines      []ledger.Line
	// Post immediately moves the invoice DRAFT to OPEN in the same call.
	Post bool
}

// RegisterPaymentInput carries a payment registration request. Either
// CustomerID or InvoiceID must be set; an invoice id resolves to its customer.
type RegisterPaymentInput struct {
	CustomerID int64
	InvoiceID  int64
	Amount     money.Money
	PaidAt     time.Time
	// IdempotencyKey, when present, guards against double submission.
	IdempotencyKey string
}

// AccountFilter scopes which customers a report covers. Zero fields mean "no
// restriction". This is the closed set of filters the repository accepts; no
// free-form query fragments ever cross this boundary.
type AccountFilter struct {
	CustomerID int64
	TeamID     int64
	RegionID   int64
}

// ReportRequest parameterizes an aging report run.
type ReportRequest struct {
	AsOf             time.Time
	Mode             ledger.Mode
	NetDays          int
	IncludeCancelled bool
	Filter           AccountFilter
}

// StockPort is the inventory collaborator. Stock moves exactly once per
// posted invoice, inside the same transaction as the status flip.
type StockPort interface {
	Decrement(ctx context.Context, productID, quantity int64) error
}

// RepositoryPort defines data access for AR. Implementations bind WithTx
// callbacks to a single database transaction so posting and payment recording
// are atomically visible to report reads.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, repo RepositoryPort, stock StockPort) error) error

	CreateInvoice(ctx context.Context, inv ledger.Invoice, lines []ledger.Line) (*ledger.Invoice, error)
	GetInvoice(ctx context.Context, id int64) (*ledger.Invoice, error)
	ListInvoiceLines(ctx context.Context, invoiceID int64) ([]ledger.Line, error)
	SetInvoiceStatus(ctx context.Context, id int64, status ledger.InvoiceStatus) error
	SetInvoiceApproval(ctx context.Context, id int64, approval ledger.ApprovalStatus) error

	CreatePayment(ctx context.Context, p ledger.Payment, idempotencyKey string) (*ledger.Payment, error)

	CustomerExists(ctx context.Context, id int64) (bool, error)
	// ListAccounts returns customer snapshots with their full invoice and
	// payment histories, the input the allocator recomputes balances from.
	ListAccounts(ctx context.Context, filter AccountFilter) ([]ledger.Account, error)
}

// IdempotencyPort persists processed payment request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}
