package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires all public endpoints plus the Prometheus scrape
// endpoint. Batch runs get no request timeout; large imports can run
// for minutes.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Post("/v1/resolve", h.handleResolve)
		r.Get("/v1/batch/runs/{runID}", h.handleBatchStatus)
		r.Get("/v1/identities/{identityID}", h.handleGetIdentity)
		r.Get("/healthz", h.handleHealthz)
	})
	r.Post("/v1/batch/runs", h.handleBatchRun)

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}
