package billinghttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/crossbridge/crossbridge/internal/platform/httpx"
)

// MountRoutes registers billing endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	heavy := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export and batch limit exceeded, retry later")
		}),
	)

	r.Post("/aggregate", h.handleAggregate)
	r.Get("/bills", h.handleList)
	r.Post("/bills", h.handleGenerate)
	r.Get("/bills/{id}", h.handleGet)
	r.Post("/bills/{id}/status", h.handleStatus)
	r.Group(func(gr chi.Router) {
		gr.Use(heavy)
		gr.Get("/bills/{id}/export.xlsx", h.handleExportXLSX)
		gr.Get("/bills/{id}/export.pdf", h.handleExportPDF)
		gr.Post("/batches", h.handleRunBatch)
		gr.Post("/batches/enqueue", h.handleEnqueueBatch)
	})
}
