package ledgerhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crossbridge/crossbridge/internal/ledger"
	"github.com/crossbridge/crossbridge/internal/platform/httpx"
)

// Service is the ledger behaviour the handler needs.
type Service interface {
	Rollup(ctx context.Context, accountID string) (ledger.RollupResult, error)
	GlobalStats(ctx context.Context) (ledger.Stats, error)
	Invalidate(ctx context.Context) error
}

// Handler serves ledger read models.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// NewHandler constructs the ledger handler.
func NewHandler(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// MountRoutes registers ledger endpoints under the given router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/accounts/{id}/rollup", h.handleRollup)
	r.Get("/stats", h.handleStats)
	r.Post("/cache/invalidate", h.handleInvalidate)
}

func (h *Handler) handleRollup(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Rollup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GlobalStats(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Invalidate(r.Context()); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		err = errors.Join(httpx.ErrNotFound, err)
	case errors.Is(err, ledger.ErrInvalidHierarchy):
		err = errors.Join(httpx.ErrUnprocessable, err)
	default:
		h.logger.Error("ledger request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
