package ar

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridiandist/meridian/internal/ledger"
	"github.com/meridiandist/meridian/internal/money"
	"github.com/meridiandist/meridian/internal/shared"
)

type memoryRepo struct {
	customers     map[int64]ledger.Customer
	invoices      map[int64]*ledger.Invoice
	invoiceLines  map[int64][]ledger.Line
	payments      map[int64]*ledger.Payment
	stock         StockPort
	nextInvoiceID int64
	nextPaymentID int64
}

func newMemoryRepo(customerIDs ...int64) *memoryRepo {
	r := &memoryRepo{
		customers:    make(map[int64]ledger.Customer),
		invoices:     make(map[int64]*ledger.Invoice),
		invoiceLines: make(map[int64][]ledger.Line),
		payments:     make(map[int64]*ledger.Payment),
	}
	for _, id := range customerIDs {
		r.customers[id] = ledger.Customer{ID: id, Name: fmt.Sprintf("Customer %d", id)}
	}
	return r
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, repo RepositoryPort, stock StockPort) error) error {
	return fn(ctx, r, r.stock)
}

var _ RepositoryPort = (*memoryRepo)(nil)

func (r *memoryRepo) CreateInvoice(ctx context.Context, inv ledger.Invoice, lines []ledger.Line) (*ledger.Invoice, error) {
	r.nextInvoiceID++
	inv.ID = r.nextInvoiceID
	r.invoices[inv.ID] = &inv
	r.invoiceLines[inv.ID] = append([]ledger.Line(nil), lines...)
	copied := inv
	return &copied, nil
}

func (r *memoryRepo) GetInvoice(ctx context.Context, id int64) (*ledger.Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return nil, fmt.Errorf("%w: invoice %d", ErrNotFound, id)
	}
	copied := *inv
	return &copied, nil
}

func (r *memoryRepo) ListInvoiceLines(ctx context.Context, invoiceID int64) ([]ledger.Line, error) {
	return r.invoiceLines[invoiceID], nil
}

func (r *memoryRepo) SetInvoiceStatus(ctx context.Context, id int64, status ledger.InvoiceStatus) error {
	inv, ok := r.invoices[id]
	if !ok {
		return fmt.Errorf("%w: invoice %d", ErrNotFound, id)
	}
	inv.Status = status
	return nil
}

func (r *memoryRepo) SetInvoiceApproval(ctx context.Context, id int64, approval ledger.ApprovalStatus) error {
	inv, ok := r.invoices[id]
	if !ok {
		return fmt.Errorf("%w: invoice %d", ErrNotFound, id)
	}
	inv.Approval = approval
	return nil
}

func (r *memoryRepo) CreatePayment(ctx context.Context, p ledger.Payment, idempotencyKey string) (*ledger.Payment, error) {
	r.nextPaymentID++
	p.ID = r.nextPaymentID
	r.payments[p.ID] = &p
	copied := p
	return &copied, nil
}

func (r *memoryRepo) CustomerExists(ctx context.Context, id int64) (bool, error) {
	_, ok := r.customers[id]
	return ok, nil
}

func (r *memoryRepo) ListAccounts(ctx context.Context, filter AccountFilter) ([]ledger.Account, error) {
	var accounts []ledger.Account
	for id, c := range r.customers {
		if filter.CustomerID != 0 && filter.CustomerID != id {
			continue
		}
		acct := ledger.Account{Customer: c}
		for _, inv := range r.invoices {
			if inv.CustomerID == id {
				acct.Invoices = append(acct.Invoices, *inv)
			}
		}
		for _, p := range r.payments {
			if p.CustomerID == id {
				acct.Payments = append(acct.Payments, *p)
			}
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// memoryRepo carries its stock fake so WithTx can hand both out together.
type memoryStock struct {
	decrements map[int64]int64
	calls      int
}

func (s *memoryStock) Decrement(ctx context.Context, productID, quantity int64) error {
	if s.decrements == nil {
		s.decrements = make(map[int64]int64)
	}
	s.decrements[productID] += quantity
	s.calls++
	return nil
}

type memoryIdem struct {
	seen map[string]bool
}

func (s *memoryIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if s.seen[key] {
		return fmt.Errorf("%w: %s", shared.ErrIdempotencyConflict, key)
	}
	s.seen[key] = true
	return nil
}

func (s *memoryIdem) Delete(ctx context.Context, key string) error {
	delete(s.seen, key)
	return nil
}

func newTestService(repo *memoryRepo) (*Service, *memoryStock) {
	stock := &memoryStock{}
	repo.stock = stock
	svc := NewService(repo, &memoryIdem{}, nil)
	svc.WithNow(func() time.Time {
		return time.Date(2026, time.February, 13, 12, 0, 0, 0, time.UTC)
	})
	return svc, stock
}

func testLines() []ledger.Line {
	return []ledger.Line{
		{ProductID: 11, Description: "Widget", Quantity: 5, UnitPrice: money.MustFromString("100.00")},
	}
}

func TestCreateInvoiceDraft(t *testing.T) {
	repo := newMemoryRepo(1)
	svc, stock := newTestService(repo)

	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		CustomerID: 1,
		IssueDate:  time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC),
		Lines:      testLines(),
	})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusDraft, inv.Status)
	require.Equal(t, ledger.ApprovalPending, inv.Approval)
	require.Equal(t, "500.00", inv.Total.String())
	require.Zero(t, stock.calls, "draft creation must not move stock")
}

func TestCreateInvoiceUnknownCustomer(t *testing.T) {
	repo := newMemoryRepo(1)
	svc, _ := newTestService(repo)

	_, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		CustomerID: 99,
		Lines:      testLines(),
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateInvoiceValidation(t *testing.T) {
	repo := newMemoryRepo(1)
	svc, _ := newTestService(repo)

	_, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{CustomerID: 1})
	require.ErrorIs(t, err, ledger.ErrValidation)
}

func TestPostThenApproveDecrementsOnce(t *testing.T) {
	repo := newMemoryRepo(1)
	svc, stock := newTestService(repo)

	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{CustomerID: 1, Lines: testLines()})
	require.NoError(t, err)

	posted, err := svc.PostInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusOpen, posted.Status)
	require.Zero(t, stock.calls, "unapproved post must not move stock")

	approved, err := svc.ApproveInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.ApprovalApproved, approved.Approval)
	require.Equal(t, 1, stock.calls)
	require.Equal(t, int64(5), stock.decrements[11])

	// Approval is one-way; a second approve fails and stock stays put.
	_, err = svc.ApproveInvoice(context.Background(), inv.ID)
	require.ErrorIs(t, err, ledger.ErrInvalidTransition)
	require.Equal(t, 1, stock.calls)
}

func TestApproveThenPostDecrementsOnce(t *testing.T) {
	repo := newMemoryRepo(1)
	svc, stock := newTestService(repo)

	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{CustomerID: 1, Lines: testLines()})
	require.NoError(t, err)

	_, err = svc.ApproveInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Zero(t, stock.calls, "approving a draft must not move stock")

	_, err = svc.PostInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stock.calls)
	require.Equal(t, int64(5), stock.decrements[11])
}

func TestPostInvoiceRejectsNonDraft(t *testing.T) {
	repo := newMemoryRepo(1)
	svc, _ := newTestService(repo)

	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{CustomerID: 1, Lines: testLines(), Post: true})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusOpen, inv.Status)

	_, err = svc.PostInvoice(context.Background(), inv.ID)
	require.ErrorIs(t, err, ledger.ErrInvalidTransition)
}

func TestCancelInvoice(t *testing.T) {
	repo := newMemoryRepo(1)
	svc, _ := newTestService(repo)

	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{CustomerID: 1, Lines: testLines(), Post: true})
	require.NoError(t, err)

	cancelled, err := svc.CancelInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusCancelled, cancelled.Status)

	// Terminal: no further transitions.
	_, err = svc.PostInvoice(context.Background(), inv.ID)
	require.ErrorIs(t, err, ledger.ErrInvalidTransition)
	_, err = svc.CancelInvoice(context.Background(), inv.ID)
	require.ErrorIs(t, err, ledger.ErrInvalidTransition)
}

func TestRegisterPaymentRederivesStatuses(t *testing.T) {
	repo := newMemoryRepo(1)
	svc, _ := newTestService(repo)
	ctx := context.Background()

	first, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		CustomerID: 1,
		IssueDate:  time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC),
		Lines:      testLines(), // 500.00
		Post:       true,
	})
	require.NoError(t, err)
	second, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		CustomerID: 1,
		IssueDate:  time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
		Lines: []ledger.Line{
			{Description: "Service", Quantity: 3, UnitPrice: money.MustFromString("100.00")},
		},
		Post: true,
	})
	require.NoError(t, err)

	_, err = svc.RegisterPayment(ctx, RegisterPaymentInput{
		CustomerID: 1,
		Amount:     money.MustFromString("600.00"),
		PaidAt:     time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	got, err := svc.GetInvoice(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPaid, got.Status)

	got, err = svc.GetInvoice(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPartiallyPaid, got.Status)
}

func TestRegisterPaymentByInvoiceResolvesCustomer(t *testing.T) {
	repo := newMemoryRepo(7)
	svc, _ := newTestService(repo)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateInvoiceInput{CustomerID: 7, Lines: testLines(), Post: true})
	require.NoError(t, err)

	p, err := svc.RegisterPayment(ctx, RegisterPaymentInput{
		InvoiceID: inv.ID,
		Amount:    money.MustFromString("500.00"),
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), p.CustomerID)

	got, err := svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPaid, got.Status)
}

func TestRegisterPaymentRejectsNonPositiveAmount(t *testing.T) {
	repo := newMemoryRepo(1)
	svc, _ := newTestService(repo)

	for _, amount := range []string{"0.00", "-10.00"} {
		_, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{
			CustomerID: 1,
			Amount:     money.MustFromString(amount),
		})
		require.ErrorIs(t, err, ledger.ErrValidation)
	}
}

func TestRegisterPaymentIdempotencyReplay(t *testing.T) {
	repo := newMemoryRepo(1)
	svc, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.CreateInvoice(ctx, CreateInvoiceInput{CustomerID: 1, Lines: testLines(), Post: true})
	require.NoError(t, err)

	input := RegisterPaymentInput{
		CustomerID:     1,
		Amount:         money.MustFromString("100.00"),
		IdempotencyKey: "pay-abc-1",
	}
	_, err = svc.RegisterPayment(ctx, input)
	require.NoError(t, err)

	_, err = svc.RegisterPayment(ctx, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, repo.payments, 1, "replay must not record a second payment")
}

func TestOverduePaymentDoesNotResurrectCancelled(t *testing.T) {
	repo := newMemoryRepo(1)
	svc, _ := newTestService(repo)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateInvoiceInput{CustomerID: 1, Lines: testLines(), Post: true})
	require.NoError(t, err)
	_, err = svc.CancelInvoice(ctx, inv.ID)
	require.NoError(t, err)

	_, err = svc.RegisterPayment(ctx, RegisterPaymentInput{
		CustomerID: 1,
		Amount:     money.MustFromString("500.00"),
	})
	require.NoError(t, err)

	got, err := svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusCancelled, got.Status)
}

func TestAgingReportWithoutCache(t *testing.T) {
	repo := newMemoryRepo(1)
	svc, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		CustomerID: 1,
		IssueDate:  time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC),
		Lines:      testLines(),
		Post:       true,
	})
	require.NoError(t, err)

	report, err := svc.AgingReport(ctx, ReportRequest{})
	require.NoError(t, err)
	require.Equal(t, ledger.ModeDue, report.Mode)
	require.Equal(t, ledger.DefaultNetDays, report.NetDays)
	require.Len(t, report.Customers, 1)
	require.Equal(t, "500.00", report.Totals.Total.String())
}
