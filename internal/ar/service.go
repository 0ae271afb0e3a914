package ar

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridiandist/meridian/internal/ledger"
)

// idempotencyModule tags payment keys in the idempotency store.
const idempotencyModule = "ar.payments"

// Service handles AR business logic. The ledger math itself lives in the
// ledger package; this layer owns transactions, the inventory side effect,
// and cache invalidation.
type Service struct {
	repo  RepositoryPort
	idem  IdempotencyPort
	cache *ReportCache
	now   func() time.Time
}

// NewService builds a Service. idem and cache may be nil; payments then skip
// idempotency checks and reports are computed on every call.
func NewService(repo RepositoryPort, idem IdempotencyPort, cache *ReportCache) *Service {
	return &Service{
		repo:  repo,
		idem:  idem,
		cache: cache,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// CreateInvoice validates and stores a DRAFT invoice. With input.Post set the
// invoice is posted in the same transaction, so the caller sees DRAFT or OPEN
// but never a half-finished in-between.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*ledger.Invoice, error) {
	ok, err := s.repo.CustomerExists(ctx, input.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("check customer: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: customer %d", ErrNotFound, input.CustomerID)
	}

	issueDate := input.IssueDate
	if issueDate.IsZero() {
		issueDate = s.now()
	}
	draft, err := ledger.NewInvoice(input.CustomerID, issueDate, input.DueDate, input.Lines)
	if err != nil {
		return nil, err
	}

	var created *ledger.Invoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort, stock StockPort) error {
		created, err = repo.CreateInvoice(ctx, draft, input.Lines)
		if err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		if !input.Post {
			return nil
		}
		posted, err := s.postLocked(ctx, repo, stock, *created)
		if err != nil {
			return err
		}
		created = posted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bumpCache(ctx)
	return created, nil
}

// PostInvoice moves a DRAFT invoice to OPEN. When the invoice is already
// approved, stock is decremented in the same transaction.
func (s *Service) PostInvoice(ctx context.Context, id int64) (*ledger.Invoice, error) {
	var posted *ledger.Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort, stock StockPort) error {
		inv, err := repo.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		posted, err = s.postLocked(ctx, repo, stock, *inv)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.bumpCache(ctx)
	return posted, nil
}

// postLocked performs the DRAFT to OPEN flip inside an already-open
// transaction. The inventory decrement fires here only for approved invoices;
// ApproveInvoice covers the open-then-approve order. Both transitions are
// one-way, so the decrement runs exactly once per invoice either way.
func (s *Service) postLocked(ctx context.Context, repo RepositoryPort, stock StockPort, inv ledger.Invoice) (*ledger.Invoice, error) {
	posted, err := inv.Post()
	if err != nil {
		return nil, err
	}
	if err := repo.SetInvoiceStatus(ctx, posted.ID, posted.Status); err != nil {
		return nil, fmt.Errorf("set invoice status: %w", err)
	}
	if posted.Approval == ledger.ApprovalApproved {
		if err := s.decrementStock(ctx, repo, stock, posted.ID); err != nil {
			return nil, err
		}
	}
	return &posted, nil
}

// ApproveInvoice resolves the approval sub-state. Approving an invoice that
// was already posted triggers the pending stock decrement.
func (s *Service) ApproveInvoice(ctx context.Context, id int64) (*ledger.Invoice, error) {
	var approved *ledger.Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort, stock StockPort) error {
		inv, err := repo.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		next, err := inv.Approve()
		if err != nil {
			return err
		}
		if err := repo.SetInvoiceApproval(ctx, next.ID, next.Approval); err != nil {
			return fmt.Errorf("set invoice approval: %w", err)
		}
		if next.Status != ledger.StatusDraft && next.Status != ledger.StatusCancelled {
			if err := s.decrementStock(ctx, repo, stock, next.ID); err != nil {
				return err
			}
		}
		approved = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return approved, nil
}

// RejectInvoice resolves the approval sub-state negatively. No stock moves.
func (s *Service) RejectInvoice(ctx context.Context, id int64) (*ledger.Invoice, error) {
	var rejected *ledger.Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort, _ StockPort) error {
		inv, err := repo.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		next, err := inv.Reject()
		if err != nil {
			return err
		}
		if err := repo.SetInvoiceApproval(ctx, next.ID, next.Approval); err != nil {
			return fmt.Errorf("set invoice approval: %w", err)
		}
		rejected = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rejected, nil
}

// CancelInvoice voids a DRAFT or OPEN invoice.
func (s *Service) CancelInvoice(ctx context.Context, id int64) (*ledger.Invoice, error) {
	var cancelled *ledger.Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort, _ StockPort) error {
		inv, err := repo.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		next, err := inv.Cancel()
		if err != nil {
			return err
		}
		if err := repo.SetInvoiceStatus(ctx, next.ID, next.Status); err != nil {
			return fmt.Errorf("set invoice status: %w", err)
		}
		cancelled = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.bumpCache(ctx)
	return cancelled, nil
}

func (s *Service) decrementStock(ctx context.Context, repo RepositoryPort, stock StockPort, invoiceID int64) error {
	lines, err := repo.ListInvoiceLines(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("list invoice lines: %w", err)
	}
	for _, l := range lines {
		if l.ProductID == 0 {
			continue
		}
		if err := stock.Decrement(ctx, l.ProductID, l.Quantity); err != nil {
			return fmt.Errorf("decrement stock for product %d: %w", l.ProductID, err)
		}
	}
	return nil
}

// GetInvoice returns a single invoice.
func (s *Service) GetInvoice(ctx context.Context, id int64) (*ledger.Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// RegisterPayment records a COMPLETED payment and re-derives the statuses of
// the customer's invoices from the full payment history. Payments are
// immutable; corrections are new payments.
func (s *Service) RegisterPayment(ctx context.Context, input RegisterPaymentInput) (*ledger.Payment, error) {
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive", ledger.ErrValidation)
	}

	customerID := input.CustomerID
	if customerID == 0 {
		if input.InvoiceID == 0 {
			return nil, fmt.Errorf("%w: customer or invoice reference required", ledger.ErrValidation)
		}
		inv, err := s.repo.GetInvoice(ctx, input.InvoiceID)
		if err != nil {
			return nil, err
		}
		customerID = inv.CustomerID
	} else {
		ok, err := s.repo.CustomerExists(ctx, customerID)
		if err != nil {
			return nil, fmt.Errorf("check customer: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: customer %d", ErrNotFound, customerID)
		}
	}

	if input.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, input.IdempotencyKey, idempotencyModule); err != nil {
			return nil, err
		}
	}

	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}

	var payment *ledger.Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort, _ StockPort) error {
		var err error
		payment, err = repo.CreatePayment(ctx, ledger.Payment{
			CustomerID: customerID,
			Reference:  uuid.NewString(),
			Amount:     input.Amount,
			PaidAt:     paidAt,
			Status:     ledger.PaymentCompleted,
		}, input.IdempotencyKey)
		if err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		return s.rederiveStatuses(ctx, repo, customerID)
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.idem != nil {
			_ = s.idem.Delete(ctx, input.IdempotencyKey)
		}
		return nil, err
	}

	s.bumpCache(ctx)
	return payment, nil
}

// rederiveStatuses recomputes every invoice status of one customer from the
// FIFO allocation. Stored statuses follow the recomputed balances; a stored
// running balance is never trusted, never written.
func (s *Service) rederiveStatuses(ctx context.Context, repo RepositoryPort, customerID int64) error {
	accounts, err := repo.ListAccounts(ctx, AccountFilter{CustomerID: customerID})
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	for _, acct := range accounts {
		alloc := ledger.Allocate(acct.Invoices, acct.Payments, ledger.AllocateOptions{})
		for _, ib := range alloc.Balances {
			next := ib.Invoice.DeriveStatus(ib.Balance)
			if next == ib.Invoice.Status {
				continue
			}
			if err := repo.SetInvoiceStatus(ctx, ib.Invoice.ID, next); err != nil {
				return fmt.Errorf("set invoice status: %w", err)
			}
		}
	}
	return nil
}

// AgingReport builds the receivables aging report, serving from the report
// cache when one is configured.
func (s *Service) AgingReport(ctx context.Context, req ReportRequest) (*ledger.Report, error) {
	if req.AsOf.IsZero() {
		req.AsOf = s.now()
	}
	if req.Mode == "" {
		req.Mode = ledger.ModeDue
	}
	if req.NetDays <= 0 {
		req.NetDays = ledger.DefaultNetDays
	}
	params := ledger.Params{
		AsOf:             req.AsOf,
		Mode:             req.Mode,
		NetDays:          req.NetDays,
		IncludeCancelled: req.IncludeCancelled,
	}

	loader := func(ctx context.Context) (*ledger.Report, error) {
		accounts, err := s.repo.ListAccounts(ctx, req.Filter)
		if err != nil {
			return nil, fmt.Errorf("list accounts: %w", err)
		}
		report := ledger.BuildAgingReport(accounts, params)
		return &report, nil
	}

	if s.cache == nil {
		return loader(ctx)
	}
	key, err := s.cache.BuildKey(ctx, agingKeyParts(req)...)
	if err != nil {
		return nil, err
	}
	var report ledger.Report
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
		return loader(ctx)
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// OverdueInvoices returns the degenerate single-bucket overdue view.
func (s *Service) OverdueInvoices(ctx context.Context, filter AccountFilter) ([]ledger.OverdueInvoice, error) {
	accounts, err := s.repo.ListAccounts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return ledger.BuildOverdueReport(accounts, s.now()), nil
}

func (s *Service) bumpCache(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
}
