package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// The worked receivables scenario: customer C holds a $500 January invoice and
// a $300 February invoice, with one $600 completed payment.
func scenarioAccount() Account {
	return Account{
		Customer: Customer{ID: 1, Name: "Cordillera Trading"},
		Invoices: []Invoice{
			openInvoice(1, 1, date(2024, 1, 1), "500.00"),
			openInvoice(2, 1, date(2024, 2, 1), "300.00"),
		},
		Payments: []Payment{
			completedPayment(1, 1, date(2024, 2, 10), "600.00"),
		},
	}
}

func TestBuildAgingReportScenario(t *testing.T) {
	report := BuildAgingReport([]Account{scenarioAccount()}, Params{
		AsOf:    date(2024, 3, 15),
		Mode:    ModeDue,
		NetDays: 30,
	})

	require.Len(t, report.Customers, 1)
	c := report.Customers[0]

	// Invoice A is fully paid and excluded; B carries the $200 remainder with
	// effective due 2024-03-02, 13 days past due as of 2024-03-15.
	require.Len(t, c.Invoices, 1)
	inv := c.Invoices[0]
	require.Equal(t, int64(2), inv.ID)
	require.Equal(t, "200.00", inv.Balance.String())
	require.Equal(t, 13, inv.Metric)
	require.Equal(t, Bucket1To30, inv.Bucket)

	require.Equal(t, "200.00", c.Total.String())
	require.Equal(t, "200.00", c.D1To30.String())
	require.Equal(t, "0.00", c.Current.String())
	require.Equal(t, "200.00", report.Totals.Total.String())
}

func TestBuildAgingReportZeroPayments(t *testing.T) {
	acct := scenarioAccount()
	acct.Payments = nil

	report := BuildAgingReport([]Account{acct}, Params{AsOf: date(2024, 3, 15), Mode: ModeDue, NetDays: 30})
	require.Len(t, report.Customers, 1)
	c := report.Customers[0]
	require.Len(t, c.Invoices, 2)

	b1, b2 := c.Invoices[0], c.Invoices[1]
	require.Equal(t, "500.00", b1.Balance.String())
	require.Equal(t, "300.00", b2.Balance.String())
	require.Equal(t, "800.00", report.Totals.Total.String())

	// A due 2024-01-31 (44 days past), B due 2024-03-02 (13 days past).
	require.Equal(t, Bucket31To60, b1.Bucket)
	require.Equal(t, Bucket1To30, b2.Bucket)
	require.Equal(t, "500.00", report.Totals.D31To60.String())
	require.Equal(t, "300.00", report.Totals.D1To30.String())
}

func TestBuildAgingReportIdempotent(t *testing.T) {
	accounts := []Account{
		scenarioAccount(),
		{
			Customer: Customer{ID: 2, Name: "Meseta Foods"},
			Invoices: []Invoice{openInvoice(10, 2, date(2023, 11, 5), "750.00")},
		},
	}
	params := Params{AsOf: date(2024, 3, 15), Mode: ModeOutstanding, NetDays: 30}

	first, err := json.Marshal(BuildAgingReport(accounts, params))
	require.NoError(t, err)
	second, err := json.Marshal(BuildAgingReport(accounts, params))
	require.NoError(t, err)
	require.Equal(t, string(first), string(second))
}

func TestBuildAgingReportSortsByExposure(t *testing.T) {
	accounts := []Account{
		{Customer: Customer{ID: 3, Name: "Small"}, Invoices: []Invoice{openInvoice(1, 3, date(2024, 1, 1), "100")}},
		{Customer: Customer{ID: 1, Name: "Big"}, Invoices: []Invoice{openInvoice(2, 1, date(2024, 1, 1), "900")}},
		{Customer: Customer{ID: 5, Name: "Tie B"}, Invoices: []Invoice{openInvoice(3, 5, date(2024, 1, 1), "400")}},
		{Customer: Customer{ID: 4, Name: "Tie A"}, Invoices: []Invoice{openInvoice(4, 4, date(2024, 1, 1), "400")}},
	}
	report := BuildAgingReport(accounts, Params{AsOf: date(2024, 2, 1), Mode: ModeOutstanding})

	ids := make([]int64, 0, len(report.Customers))
	for _, c := range report.Customers {
		ids = append(ids, c.CustomerID)
	}
	require.Equal(t, []int64{1, 4, 5, 3}, ids)
}

func TestBuildAgingReportOmitsSettledCustomers(t *testing.T) {
	settled := Account{
		Customer: Customer{ID: 9, Name: "Paid Up"},
		Invoices: []Invoice{openInvoice(1, 9, date(2024, 1, 1), "100")},
		Payments: []Payment{completedPayment(1, 9, date(2024, 1, 5), "100")},
	}
	noActivity := Account{Customer: Customer{ID: 10, Name: "Dormant"}}

	report := BuildAgingReport([]Account{settled, noActivity}, Params{AsOf: date(2024, 2, 1)})
	require.Empty(t, report.Customers)
	require.Equal(t, "0.00", report.Totals.Total.String())
}

func TestBuildAgingReportDefaults(t *testing.T) {
	report := BuildAgingReport(nil, Params{AsOf: time.Date(2024, 3, 15, 11, 0, 0, 0, time.UTC)})
	require.Equal(t, ModeDue, report.Mode)
	require.Equal(t, DefaultNetDays, report.NetDays)
	require.Equal(t, 23, report.AsOf.Hour())
	require.NotNil(t, report.Customers)
}

func TestBuildAgingReportJSONContract(t *testing.T) {
	raw, err := json.Marshal(BuildAgingReport([]Account{scenarioAccount()}, Params{
		AsOf: date(2024, 3, 15), Mode: ModeDue, NetDays: 30,
	}))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	for _, key := range []string{"asOf", "mode", "netDays", "totals", "customers"} {
		require.Contains(t, decoded, key)
	}
	totals := decoded["totals"].(map[string]any)
	for _, key := range []string{"current", "d1_30", "d31_60", "d61_90", "d90_plus", "total"} {
		require.Contains(t, totals, key)
	}
	customer := decoded["customers"].([]any)[0].(map[string]any)
	require.Contains(t, customer, "customerId")
	require.Contains(t, customer, "customerName")
	invoice := customer["invoices"].([]any)[0].(map[string]any)
	for _, key := range []string{"id", "date", "dueDate", "balance", "daysPastDueOrOutstanding", "bucket"} {
		require.Contains(t, invoice, key)
	}
}

func TestBuildOverdueReport(t *testing.T) {
	due1 := date(2024, 1, 31)
	due2 := date(2024, 3, 20)
	due3 := date(2024, 2, 15)
	inv1 := openInvoice(1, 1, date(2024, 1, 1), "500.00")
	inv1.DueDate = &due1
	inv2 := openInvoice(2, 1, date(2024, 2, 20), "300.00")
	inv2.DueDate = &due2
	inv3 := openInvoice(3, 2, date(2024, 1, 16), "250.00")
	inv3.DueDate = &due3
	noDue := openInvoice(4, 2, date(2023, 12, 1), "50.00")

	accounts := []Account{
		{Customer: Customer{ID: 1, Name: "Cordillera Trading"}, Invoices: []Invoice{inv1, inv2},
			Payments: []Payment{completedPayment(1, 1, date(2024, 2, 1), "500.00")}},
		{Customer: Customer{ID: 2, Name: "Meseta Foods"}, Invoices: []Invoice{inv3, noDue}},
	}

	overdue := BuildOverdueReport(accounts, date(2024, 3, 15))

	// inv1 is fully paid, inv2 not yet due, noDue has no due date. Only inv3
	// qualifies.
	require.Len(t, overdue, 1)
	require.Equal(t, int64(3), overdue[0].InvoiceID)
	require.Equal(t, "250.00", overdue[0].Balance.String())
	require.Equal(t, 29, overdue[0].DaysPastDue)
}

func TestBuildOverdueReportOrdering(t *testing.T) {
	mk := func(id, cust int64, due time.Time) Invoice {
		inv := openInvoice(id, cust, due.AddDate(0, 0, -30), "100.00")
		inv.DueDate = &due
		return inv
	}
	accounts := []Account{
		{Customer: Customer{ID: 1, Name: "A"}, Invoices: []Invoice{mk(5, 1, date(2024, 2, 1)), mk(2, 1, date(2024, 1, 1))}},
		{Customer: Customer{ID: 2, Name: "B"}, Invoices: []Invoice{mk(1, 2, date(2024, 1, 1))}},
	}
	overdue := BuildOverdueReport(accounts, date(2024, 3, 1))
	require.Len(t, overdue, 3)
	require.Equal(t, int64(1), overdue[0].InvoiceID)
	require.Equal(t, int64(2), overdue[1].InvoiceID)
	require.Equal(t, int64(5), overdue[2].InvoiceID)
}
