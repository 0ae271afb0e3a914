package ledger

import (
	"fmt"
	"time"

	"github.com/meridiandist/meridian/internal/money"
)

// NewInvoice builds a DRAFT invoice from its lines. The total is the sum of
// line totals; it must not be negative. Individual lines may be negative
// (discounts) as long as the sum is not.
func NewInvoice(customerID int64, date time.Time, dueDate *time.Time, lines []Line) (Invoice, error) {
	if customerID <= 0 {
		return Invoice{}, fmt.Errorf("%w: customer required", ErrValidation)
	}
	if len(lines) == 0 {
		return Invoice{}, fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	total := money.Zero()
	for _, l := range lines {
		if l.Quantity <= 0 {
			return Invoice{}, fmt.Errorf("%w: line quantity must be positive", ErrValidation)
		}
		total = total.Add(l.Total())
	}
	if total.IsNegative() {
		return Invoice{}, fmt.Errorf("%w: invoice total must not be negative", ErrValidation)
	}
	return Invoice{
		CustomerID: customerID,
		Date:       date,
		DueDate:    dueDate,
		Total:      total,
		Status:     StatusDraft,
		Approval:   ApprovalPending,
	}, nil
}

// Post moves a DRAFT invoice to OPEN. Posting is one-way because the caller's
// inventory decrement must happen exactly once, so repeating it is illegal.
func (inv Invoice) Post() (Invoice, error) {
	if inv.Status != StatusDraft {
		return inv, fmt.Errorf("%w: post requires DRAFT, invoice %d is %s", ErrInvalidTransition, inv.ID, inv.Status)
	}
	inv.Status = StatusOpen
	return inv, nil
}

// Cancel voids an invoice that has not yet collected payments. Legal from
// DRAFT and OPEN only; CANCELLED is terminal.
func (inv Invoice) Cancel() (Invoice, error) {
	if inv.Status != StatusDraft && inv.Status != StatusOpen {
		return inv, fmt.Errorf("%w: cancel requires DRAFT or OPEN, invoice %d is %s", ErrInvalidTransition, inv.ID, inv.Status)
	}
	inv.Status = StatusCancelled
	return inv, nil
}

// Approve resolves the approval sub-state. Legal from PENDING only.
func (inv Invoice) Approve() (Invoice, error) {
	if inv.Approval != ApprovalPending {
		return inv, fmt.Errorf("%w: approve requires PENDING approval, invoice %d is %s", ErrInvalidTransition, inv.ID, inv.Approval)
	}
	inv.Approval = ApprovalApproved
	return inv, nil
}

// Reject resolves the approval sub-state negatively. Legal from PENDING only.
func (inv Invoice) Reject() (Invoice, error) {
	if inv.Approval != ApprovalPending {
		return inv, fmt.Errorf("%w: reject requires PENDING approval, invoice %d is %s", ErrInvalidTransition, inv.ID, inv.Approval)
	}
	inv.Approval = ApprovalRejected
	return inv, nil
}

// DeriveStatus returns the lifecycle state implied by a freshly recomputed
// balance. DRAFT and CANCELLED invoices are untouched; a zero balance means
// PAID, a partial balance means PARTIALLY_PAID, and a full balance leaves the
// current OPEN/PARTIALLY_PAID state as-is.
func (inv Invoice) DeriveStatus(balance money.Money) InvoiceStatus {
	switch inv.Status {
	case StatusDraft, StatusCancelled:
		return inv.Status
	}
	switch {
	case balance.IsZero() || balance.IsNegative():
		return StatusPaid
	case balance.Cmp(inv.Total) < 0:
		return StatusPartiallyPaid
	default:
		return inv.Status
	}
}
