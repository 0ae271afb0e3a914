package ledger

import (
	"sort"

	"github.com/meridiandist/meridian/internal/money"
)

// AllocateOptions tunes which invoices participate in allocation.
type AllocateOptions struct {
	// IncludeCancelled keeps CANCELLED invoices in the walk. Both variants
	// exist across the report surfaces, so the choice is the caller's.
	IncludeCancelled bool
}

// InvoiceBalance is one invoice's remaining balance after allocation, in FIFO
// walk order.
type InvoiceBalance struct {
	Invoice Invoice
	Balance money.Money
}

// AllocationResult holds per-invoice balances for a single customer, ordered
// oldest-first. Derived on every report invocation, never persisted.
type AllocationResult struct {
	Balances []InvoiceBalance
	balances map[int64]money.Money
}

// Balance looks up the remaining balance for an invoice id. The second return
// is false when the invoice did not participate in allocation.
func (r AllocationResult) Balance(invoiceID int64) (money.Money, bool) {
	b, ok := r.balances[invoiceID]
	return b, ok
}

// Allocate distributes a customer's pool of completed payments across their
// invoices oldest-first. All invoices and payments must belong to the same
// customer; cross-customer pooling never happens.
//
// FIFO is used because it conserves funds without a per-payment allocation
// ledger and matches standard dunning practice: the oldest debt clears first.
// Any remainder from a partial allocation lands on exactly one invoice, the
// first one the pool could not fully cover.
func Allocate(invoices []Invoice, payments []Payment, opts AllocateOptions) AllocationResult {
	eligible := make([]Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if !opts.IncludeCancelled && inv.Status == StatusCancelled {
			continue
		}
		eligible = append(eligible, inv)
	}

	// Oldest first; ties broken by id so the walk is deterministic.
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Date.Equal(eligible[j].Date) {
			return eligible[i].ID < eligible[j].ID
		}
		return eligible[i].Date.Before(eligible[j].Date)
	})

	pool := money.Zero()
	for _, p := range payments {
		if p.Status != PaymentCompleted {
			continue
		}
		// Zero-amount payments are a no-op; negative ones are rejected
		// upstream and never reach this point.
		pool = pool.Add(p.Amount)
	}

	result := AllocationResult{
		Balances: make([]InvoiceBalance, 0, len(eligible)),
		balances: make(map[int64]money.Money, len(eligible)),
	}
	for _, inv := range eligible {
		var balance money.Money
		switch {
		case pool.Cmp(inv.Total) >= 0:
			balance = money.Zero()
			pool = pool.Sub(inv.Total)
		case pool.IsPositive():
			balance = inv.Total.Sub(pool)
			pool = money.Zero()
		default:
			balance = inv.Total
		}
		result.Balances = append(result.Balances, InvoiceBalance{Invoice: inv, Balance: balance})
		result.balances[inv.ID] = balance
	}
	return result
}
