package ar

import (
	"fmt"
	"time"

	"github.com/meridiandist/meridian/internal/ledger"
	"github.com/meridiandist/meridian/internal/money"
)

const dateLayout = "2006-01-02"

type invoiceLineRequest struct {
	ProductID   int64       `json:"productId" validate:"omitempty,gt=0"`
	Description string      `json:"description" validate:"required"`
	Quantity    int64       `json:"quantity" validate:"required,gt=0"`
	UnitPrice   money.Money `json:"unitPrice"`
}

type createInvoiceRequest struct {
	CustomerID int64                `json:"customerId" validate:"required,gt=0"`
	Date       string               `json:"date" validate:"required,datetime=2006-01-02"`
	DueDate    string               `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`
	Lines      []invoiceLineRequest `json:"lines" validate:"required,min=1,dive"`
	Post       bool                 `json:"post"`
}

func (req createInvoiceRequest) toInput() (CreateInvoiceInput, error) {
	date, err := time.ParseInLocation(dateLayout, req.Date, time.UTC)
	if err != nil {
		return CreateInvoiceInput{}, fmt.Errorf("%w: date: %v", ledger.ErrValidation, err)
	}
	input := CreateInvoiceInput{
		CustomerID: req.CustomerID,
		IssueDate:  date,
		Post:       req.Post,
	}
	if req.DueDate != "" {
		due, err := time.ParseInLocation(dateLayout, req.DueDate, time.UTC)
		if err != nil {
			return CreateInvoiceInput{}, fmt.Errorf("%w: dueDate: %v", ledger.ErrValidation, err)
		}
		input.DueDate = &due
	}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, ledger.Line{
			ProductID:   l.ProductID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		})
	}
	return input, nil
}

type registerPaymentRequest struct {
	CustomerID     int64       `json:"customerId" validate:"omitempty,gt=0"`
	InvoiceID      int64       `json:"invoiceId" validate:"omitempty,gt=0"`
	Amount         money.Money `json:"amount"`
	Date           string      `json:"date" validate:"required,datetime=2006-01-02"`
	IdempotencyKey string      `json:"idempotencyKey" validate:"omitempty,max=128"`
}

func (req registerPaymentRequest) toInput() (RegisterPaymentInput, error) {
	if req.CustomerID == 0 && req.InvoiceID == 0 {
		return RegisterPaymentInput{}, fmt.Errorf("%w: customerId or invoiceId required", ledger.ErrValidation)
	}
	paidAt, err := time.ParseInLocation(dateLayout, req.Date, time.UTC)
	if err != nil {
		return RegisterPaymentInput{}, fmt.Errorf("%w: date: %v", ledger.ErrValidation, err)
	}
	return RegisterPaymentInput{
		CustomerID:     req.CustomerID,
		InvoiceID:      req.InvoiceID,
		Amount:         req.Amount,
		PaidAt:         paidAt,
		IdempotencyKey: req.IdempotencyKey,
	}, nil
}

type invoiceResponse struct {
	ID             int64       `json:"id"`
	CustomerID     int64       `json:"customerId"`
	Date           string      `json:"date"`
	DueDate        *string     `json:"dueDate"`
	Total          money.Money `json:"total"`
	Status         string      `json:"status"`
	ApprovalStatus string      `json:"approvalStatus"`
}

func toInvoiceResponse(inv *ledger.Invoice) invoiceResponse {
	resp := invoiceResponse{
		ID:             inv.ID,
		CustomerID:     inv.CustomerID,
		Date:           inv.Date.Format(dateLayout),
		Total:          inv.Total,
		Status:         string(inv.Status),
		ApprovalStatus: string(inv.Approval),
	}
	if inv.DueDate != nil {
		due := inv.DueDate.Format(dateLayout)
		resp.DueDate = &due
	}
	return resp
}

type paymentResponse struct {
	ID         int64       `json:"id"`
	CustomerID int64       `json:"customerId"`
	Reference  string      `json:"reference"`
	Amount     money.Money `json:"amount"`
	Date       string      `json:"date"`
	Status     string      `json:"status"`
}

func toPaymentResponse(p *ledger.Payment) paymentResponse {
	return paymentResponse{
		ID:         p.ID,
		CustomerID: p.CustomerID,
		Reference:  p.Reference,
		Amount:     p.Amount,
		Date:       p.PaidAt.Format(dateLayout),
		Status:     string(p.Status),
	}
}
