// Package ledger implements the receivables ledger engine: the invoice
// lifecycle, FIFO payment allocation, and aging classification. Everything in
// this package is pure computation over already-fetched records; persistence
// and HTTP belong to callers.
package ledger

import (
	"errors"
	"time"

	"github.com/meridiandist/meridian/internal/money"
)

// InvoiceStatus enumerates invoice lifecycle states.
type InvoiceStatus string

const (
	StatusDraft         InvoiceStatus = "DRAFT"
	StatusOpen          InvoiceStatus = "OPEN"
	StatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	StatusPaid          InvoiceStatus = "PAID"
	StatusCancelled     InvoiceStatus = "CANCELLED"
)

// ApprovalStatus enumerates the independent approval sub-state. Approval gates
// whether an OPEN invoice may touch inventory; it never affects allocation or
// aging.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// PaymentStatus enumerates payment states. Only COMPLETED payments participate
// in allocation.
type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentPending   PaymentStatus = "PENDING"
	PaymentFailed    PaymentStatus = "FAILED"
)

var (
	// ErrValidation indicates malformed input: negative amounts, missing customer.
	ErrValidation = errors.New("ledger: validation failed")
	// ErrInvalidTransition indicates an illegal lifecycle move, e.g. posting a
	// non-DRAFT invoice. The invoice is left untouched.
	ErrInvalidTransition = errors.New("ledger: invalid status transition")
)

// Invoice is the per-invoice ledger record. Total is fixed at creation; the
// remaining balance is never stored on it, it is recomputed from the payment
// history by Allocate.
type Invoice struct {
	ID         int64
	CustomerID int64
	Date       time.Time
	DueDate    *time.Time
	Total      money.Money
	Status     InvoiceStatus
	Approval   ApprovalStatus
}

// Line is one invoice line. Lines only matter at creation time (total and
// stock decrement); allocation works on invoice totals.
type Line struct {
	ProductID   int64
	Description string
	Quantity    int64
	UnitPrice   money.Money
}

// Total returns quantity times unit price.
func (l Line) Total() money.Money {
	return l.UnitPrice.MulInt(l.Quantity)
}

// Payment is an immutable payment record. Corrections are new payments.
type Payment struct {
	ID         int64
	CustomerID int64
	// Reference is the receipt identifier handed back to the payer.
	Reference string
	Amount    money.Money
	PaidAt    time.Time
	Status    PaymentStatus
}

// Customer is a grouping key for allocation and reporting; the ledger never
// mutates it.
type Customer struct {
	ID   int64
	Name string
}

// Account bundles one customer with their invoice and payment history. It is
// the unit the allocator and the report facade operate on.
type Account struct {
	Customer Customer
	Invoices []Invoice
	Payments []Payment
}
