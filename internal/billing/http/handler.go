package billinghttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/crossbridge/crossbridge/internal/billing"
	"github.com/crossbridge/crossbridge/internal/billing/export"
	"github.com/crossbridge/crossbridge/internal/platform/httpx"
	"github.com/crossbridge/crossbridge/internal/settlement"
	"github.com/crossbridge/crossbridge/internal/shared"
)

// BillService covers read and lifecycle operations on bills.
type BillService interface {
	Aggregate(ctx context.Context, counterpartyID, period string) (billing.Aggregation, error)
	Get(ctx context.Context, id string) (billing.Bill, error)
	List(ctx context.Context, filter billing.ListFilter) ([]billing.Bill, error)
	TransitionStatus(ctx context.Context, id string, target billing.BillStatus) (billing.Bill, error)
}

// Settler generates bills under the per-key lock.
type Settler interface {
	Settle(ctx context.Context, in billing.GenerateInput) (billing.Bill, error)
	RunBatch(ctx context.Context, req settlement.BatchRequest) (settlement.Summary, error)
}

// BatchEnqueuer hands a batch to the background worker.
type BatchEnqueuer interface {
	EnqueueSettlementBatch(ctx context.Context, req settlement.BatchRequest) (string, error)
}

// Handler serves the billing API.
type Handler struct {
	bills     BillService
	settler   Settler
	enqueuer  BatchEnqueuer
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandler constructs the handler. enqueuer may be nil, in which case the
// enqueue endpoint answers 503.
func NewHandler(bills BillService, settler Settler, enqueuer BatchEnqueuer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	_ = v.RegisterValidation("period", func(fl validator.FieldLevel) bool {
		_, err := shared.ParsePeriod(fl.Field().String())
		return err == nil
	})
	return &Handler{bills: bills, settler: settler, enqueuer: enqueuer, validator: v, logger: logger}
}

type aggregateRequest struct {
	CounterpartyID string `json:"counterparty_id" validate:"required"`
	Period         string `json:"period" validate:"required,period"`
}

type generateRequest struct {
	CounterpartyID string `json:"counterparty_id" validate:"required"`
	Period         string `json:"period" validate:"required,period"`
	Overwrite      bool   `json:"overwrite"`
	Notes          string `json:"notes" validate:"max=500"`
}

type statusRequest struct {
	Status billing.BillStatus `json:"status" validate:"required,oneof=DRAFT PENDING_REVIEW APPROVED PAID"`
}

type batchRequest struct {
	Period    string                   `json:"period" validate:"required,period"`
	Overwrite bool                     `json:"overwrite"`
	Kind      billing.CounterpartyKind `json:"kind" validate:"omitempty,oneof=SUPPLIER AGENCY"`
}

func (b batchRequest) toSettlement() settlement.BatchRequest {
	return settlement.BatchRequest{Period: b.Period, Overwrite: b.Overwrite, Kind: b.Kind}
}

// conflictResponse lets the caller show the bill that blocks generation and
// retry with overwrite after confirmation.
type conflictResponse struct {
	httpx.ProblemDetail
	Existing billing.Bill `json:"existing"`
}

func (h *Handler) handleAggregate(w http.ResponseWriter, r *http.Request) {
	var req aggregateRequest
	if !h.decode(w, r, &req) {
		return
	}
	agg, err := h.bills.Aggregate(r.Context(), req.CounterpartyID, req.Period)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, agg)
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !h.decode(w, r, &req) {
		return
	}
	bill, err := h.settler.Settle(r.Context(), billing.GenerateInput{
		CounterpartyID: req.CounterpartyID,
		Period:         req.Period,
		Overwrite:      req.Overwrite,
		Notes:          req.Notes,
	})
	if errors.Is(err, billing.ErrBillConflict) {
		httpx.JSON(w, http.StatusConflict, conflictResponse{
			ProblemDetail: httpx.ProblemDetail{
				Type:   "about:blank",
				Title:  "Conflict",
				Status: http.StatusConflict,
				Detail: "an active bill exists for this counterparty and period; resend with overwrite to replace it",
			},
			Existing: bill,
		})
		return
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.logger.Info("bill generated",
		slog.String("bill_id", bill.ID),
		slog.String("counterparty_id", bill.CounterpartyID),
		slog.String("period", bill.Period),
		slog.Bool("overwrite", req.Overwrite),
	)
	httpx.JSON(w, http.StatusCreated, bill)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := billing.ListFilter{
		Period:         strings.TrimSpace(q.Get("period")),
		Kind:           billing.BillKind(strings.ToUpper(q.Get("kind"))),
		CounterpartyID: strings.TrimSpace(q.Get("counterparty_id")),
		Status:         billing.BillStatus(strings.ToUpper(q.Get("status"))),
	}
	if filter.Period != "" {
		if _, err := shared.ParsePeriod(filter.Period); err != nil {
			h.respondError(w, r, err)
			return
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}
	bills, err := h.bills.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if bills == nil {
		bills = []billing.Bill{}
	}
	httpx.JSON(w, http.StatusOK, bills)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	bill, err := h.bills.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	bill, err := h.bills.TransitionStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

func (h *Handler) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", export.BuildBillXLSX)
}

func (h *Handler) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "pdf", "application/pdf", export.BuildBillPDF)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request, ext, contentType string, build func(billing.Bill) ([]byte, error)) {
	bill, err := h.bills.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	data, err := build(bill)
	if err != nil {
		h.respondError(w, r, fmt.Errorf("render %s: %w", ext, err))
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="bill-%s-%s-%s.%s"`, bill.CounterpartyID, bill.Period, strings.ToLower(string(bill.Kind)), ext))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !h.decode(w, r, &req) {
		return
	}
	summary, err := h.settler.RunBatch(r.Context(), req.toSettlement())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleEnqueueBatch(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		h.respondError(w, r, fmt.Errorf("%w: background worker not configured", httpx.ErrUnavailable))
		return
	}
	var req batchRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.enqueuer.EnqueueSettlementBatch(r.Context(), req.toSettlement())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": id, "period": req.Period})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(w, r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", strings.Join(msgs, "; "))
			return false
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var mixed *billing.MixedCurrencyError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		err = errors.Join(httpx.ErrNotFound, err)
	case errors.Is(err, billing.ErrBillConflict), errors.Is(err, billing.ErrBillLocked), errors.Is(err, settlement.ErrKeyLocked):
		err = errors.Join(httpx.ErrConflict, err)
	case errors.Is(err, shared.ErrInvalidPeriod):
		err = errors.Join(httpx.ErrValidation, err)
	case errors.As(err, &mixed),
		errors.Is(err, billing.ErrNoBillableActivity),
		errors.Is(err, billing.ErrNothingOwed),
		errors.Is(err, billing.ErrInvalidStatusTransition),
		errors.Is(err, billing.ErrUnsupportedCounterparty),
		errors.Is(err, billing.ErrDuplicateRecord):
		err = errors.Join(httpx.ErrUnprocessable, err)
	case errors.Is(err, httpx.ErrUnavailable):
	default:
		h.logger.Error("billing request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
