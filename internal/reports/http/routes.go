// Package reportshttp exposes the report catalog over HTTP: listing, JSON
// runs, CSV exports and cache invalidation.
package reportshttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-reports/internal/platform/httpx"
)

const rateLimit = 10
const rateWindow = time.Minute

// MountRoutes registers the report endpoints. Exports run the full pipeline
// and are rate limited per client IP.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(h.exportLimit, h.exportWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.RespondError(w, httpx.ErrRateLimited)
		}),
	)
	r.Get("/reports", h.handleList)
	r.Post("/reports/cache/bump", h.handleBump)
	r.Post("/reports/{name}/run", h.handleRun)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/reports/{name}/export.csv", h.handleExport)
	})
}
