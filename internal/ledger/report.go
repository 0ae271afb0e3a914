package ledger

import (
	"sort"
	"time"

	"github.com/meridiandist/meridian/internal/money"
)

// Params configure an aging report run.
type Params struct {
	AsOf    time.Time
	Mode    Mode
	NetDays int
	// IncludeCancelled selects the allocation variant that keeps CANCELLED
	// invoices in the FIFO walk.
	IncludeCancelled bool
}

// InvoiceAging is one outstanding invoice's bucketed balance.
type InvoiceAging struct {
	ID      int64       `json:"id"`
	Date    time.Time   `json:"date"`
	DueDate *time.Time  `json:"dueDate"`
	Balance money.Money `json:"balance"`
	Metric  int         `json:"daysPastDueOrOutstanding"`
	Bucket  Bucket      `json:"bucket"`
}

// CustomerAging aggregates one customer's outstanding invoices per bucket.
type CustomerAging struct {
	CustomerID   int64  `json:"customerId"`
	CustomerName string `json:"customerName"`
	BucketTotals
	Invoices []InvoiceAging `json:"invoices"`
}

// Report is the full receivables aging report, the exact shape the HTTP layer
// serializes.
type Report struct {
	AsOf      time.Time       `json:"asOf"`
	Mode      Mode            `json:"mode"`
	NetDays   int             `json:"netDays"`
	Totals    BucketTotals    `json:"totals"`
	Customers []CustomerAging `json:"customers"`
}

// BuildAgingReport runs allocation and aging for every account and aggregates
// the result. It is a pure function of its inputs: identical inputs yield
// byte-identical output, so it is safe to call repeatedly and concurrently.
//
// Customers without any outstanding balance are omitted; fully paid invoices
// never appear in a bucket.
func BuildAgingReport(accounts []Account, p Params) Report {
	asOf := EndOfDay(p.AsOf)
	netDays := p.NetDays
	if netDays <= 0 {
		netDays = DefaultNetDays
	}
	mode := p.Mode
	if mode == "" {
		mode = ModeDue
	}

	report := Report{
		AsOf:      asOf,
		Mode:      mode,
		NetDays:   netDays,
		Customers: make([]CustomerAging, 0, len(accounts)),
	}

	for _, acct := range accounts {
		alloc := Allocate(acct.Invoices, acct.Payments, AllocateOptions{IncludeCancelled: p.IncludeCancelled})
		ca := CustomerAging{
			CustomerID:   acct.Customer.ID,
			CustomerName: acct.Customer.Name,
			Invoices:     make([]InvoiceAging, 0, len(alloc.Balances)),
		}
		for _, ib := range alloc.Balances {
			if !ib.Balance.IsPositive() {
				continue
			}
			metric := AgingMetric(ib.Invoice, asOf, mode, netDays)
			bucket := ClassifyMetric(metric, mode)
			ca.Invoices = append(ca.Invoices, InvoiceAging{
				ID:      ib.Invoice.ID,
				Date:    ib.Invoice.Date,
				DueDate: ib.Invoice.DueDate,
				Balance: ib.Balance,
				Metric:  metric,
				Bucket:  bucket,
			})
			ca.add(bucket, ib.Balance)
		}
		if len(ca.Invoices) == 0 {
			continue
		}
		report.Totals.Merge(ca.BucketTotals)
		report.Customers = append(report.Customers, ca)
	}

	// Largest exposure first; ties broken by customer id for a stable order.
	sort.SliceStable(report.Customers, func(i, j int) bool {
		cmp := report.Customers[i].Total.Cmp(report.Customers[j].Total)
		if cmp == 0 {
			return report.Customers[i].CustomerID < report.Customers[j].CustomerID
		}
		return cmp > 0
	})

	return report
}

// OverdueInvoice is one line of the degenerate single-bucket overdue view.
type OverdueInvoice struct {
	InvoiceID    int64       `json:"invoiceId"`
	CustomerID   int64       `json:"customerId"`
	CustomerName string      `json:"customerName"`
	Date         time.Time   `json:"date"`
	DueDate      time.Time   `json:"dueDate"`
	Balance      money.Money `json:"balance"`
	DaysPastDue  int         `json:"daysPastDue"`
}

// BuildOverdueReport lists invoices with an explicit due date in the past and
// a positive remaining balance, oldest due first. Balances come from the same
// FIFO allocation as the aging report.
func BuildOverdueReport(accounts []Account, asOf time.Time) []OverdueInvoice {
	asOf = EndOfDay(asOf)
	out := make([]OverdueInvoice, 0)
	for _, acct := range accounts {
		alloc := Allocate(acct.Invoices, acct.Payments, AllocateOptions{})
		for _, ib := range alloc.Balances {
			if ib.Invoice.DueDate == nil || !ib.Balance.IsPositive() {
				continue
			}
			days := daysBetween(*ib.Invoice.DueDate, asOf)
			if days <= 0 {
				continue
			}
			out = append(out, OverdueInvoice{
				InvoiceID:    ib.Invoice.ID,
				CustomerID:   acct.Customer.ID,
				CustomerName: acct.Customer.Name,
				Date:         ib.Invoice.Date,
				DueDate:      *ib.Invoice.DueDate,
				Balance:      ib.Balance,
				DaysPastDue:  days,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].InvoiceID < out[j].InvoiceID
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out
}
