package ar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/meridiandist/meridian/internal/inventory"
	"github.com/meridiandist/meridian/internal/ledger"
	"github.com/meridiandist/meridian/internal/platform/httpx"
	"github.com/meridiandist/meridian/internal/shared"
)

// Handler serves the AR JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers AR routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Post("/", h.createInvoice)
		r.Get("/{id}", h.getInvoice)
		r.Post("/{id}/post", h.postInvoice)
		r.Post("/{id}/approve", h.approveInvoice)
		r.Post("/{id}/reject", h.rejectInvoice)
		r.Post("/{id}/cancel", h.cancelInvoice)
	})

	r.Post("/financial/payments", h.registerPayment)

	// Report builds walk full payment histories; keep them behind a
	// tighter per-IP limit than the global one.
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(30, time.Minute))
		r.Get("/reports/ar-aging", h.agingReport)
		r.Get("/reports/overdue-invoices", h.overdueInvoices)
	})
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	inv, err := h.service.CreateInvoice(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.logger.Info("invoice created",
		slog.Int64("invoice_id", inv.ID),
		slog.Int64("customer_id", inv.CustomerID),
		slog.String("status", string(inv.Status)))
	httpx.JSON(w, http.StatusCreated, toInvoiceResponse(inv))
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) postInvoice(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "invoice posted", h.service.PostInvoice)
}

func (h *Handler) approveInvoice(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "invoice approved", h.service.ApproveInvoice)
}

func (h *Handler) rejectInvoice(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "invoice rejected", h.service.RejectInvoice)
}

func (h *Handler) cancelInvoice(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "invoice cancelled", h.service.CancelInvoice)
}

func (h *Handler) registerPayment(w http.ResponseWriter, r *http.Request) {
	var req registerPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	payment, err := h.service.RegisterPayment(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.logger.Info("payment registered",
		slog.Int64("payment_id", payment.ID),
		slog.Int64("customer_id", payment.CustomerID),
		slog.String("amount", payment.Amount.String()))
	httpx.JSON(w, http.StatusCreated, toPaymentResponse(payment))
}

func (h *Handler) agingReport(w http.ResponseWriter, r *http.Request) {
	req, err := parseReportQuery(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	report, err := h.service.AgingReport(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) overdueInvoices(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAccountFilter(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	overdue, err := h.service.OverdueInvoices(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, overdue)
}

// transition runs one lifecycle operation identified by the {id} path param.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, event string, op func(ctx context.Context, id int64) (*ledger.Invoice, error)) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	inv, err := op(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.logger.Info(event, slog.Int64("invoice_id", inv.ID), slog.String("status", string(inv.Status)))
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid invoice id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ledger.ErrInvalidTransition):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Transition", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	default:
		h.logger.Error("ar request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func parseReportQuery(r *http.Request) (ReportRequest, error) {
	q := r.URL.Query()

	mode, err := ledger.ParseMode(q.Get("mode"))
	if err != nil {
		return ReportRequest{}, err
	}
	req := ReportRequest{Mode: mode}

	if raw := q.Get("asOf"); raw != "" {
		asOf, err := time.ParseInLocation(dateLayout, raw, time.UTC)
		if err != nil {
			return ReportRequest{}, fmt.Errorf("%w: asOf: %v", ledger.ErrValidation, err)
		}
		req.AsOf = asOf
	}
	if raw := q.Get("netDays"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return ReportRequest{}, fmt.Errorf("%w: netDays must be a non-negative integer", ledger.ErrValidation)
		}
		req.NetDays = n
	}
	req.IncludeCancelled = q.Get("includeCancelled") == "true"

	filter, err := parseAccountFilter(r)
	if err != nil {
		return ReportRequest{}, err
	}
	req.Filter = filter
	return req, nil
}

func parseAccountFilter(r *http.Request) (AccountFilter, error) {
	q := r.URL.Query()
	var filter AccountFilter
	for _, f := range []struct {
		name string
		dest *int64
	}{
		{"customerId", &filter.CustomerID},
		{"teamId", &filter.TeamID},
		{"regionId", &filter.RegionID},
	} {
		raw := q.Get(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			return AccountFilter{}, fmt.Errorf("%w: %s must be a positive integer", ledger.ErrValidation, f.name)
		}
		*f.dest = v
	}
	return filter, nil
}
