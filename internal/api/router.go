// Package api assembles the flowsheet HTTP API.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/drfirst/go-flowsheet/internal/api/handlers"
	"github.com/drfirst/go-flowsheet/internal/api/middleware"
	"github.com/drfirst/go-flowsheet/internal/app"
	"github.com/drfirst/go-flowsheet/internal/observability/metrics"
)

// ReadyFunc reports whether the backing store is reachable.
type ReadyFunc func(ctx context.Context) error

// Options configures the router.
type Options struct {
	ServiceName string
	Version     string
	// Ready backs GET /ready. Nil means always ready.
	Ready ReadyFunc
	// Metrics exposes GET /metrics when set.
	Metrics http.Handler
}

// NewRouter builds the API router over session.
func NewRouter(session *app.Session, logger *zap.Logger, opts Options) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "flowsheet-api"
	}

	flowsheet := handlers.NewFlowsheetHandler(session, logger)
	rems := handlers.NewREMSHandler(session, logger)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing(opts.ServiceName))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"service": opts.ServiceName,
			"version": opts.Version,
		})
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ready != nil {
			if err := opts.Ready(r.Context()); err != nil {
				logger.Warn("readiness check failed", zap.Error(err))
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/dose", flowsheet.PreviewDose)
		r.Mount("/flowsheet", flowsheet.Routes())
		r.Mount("/rems", rems.Routes())
	})

	return r
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return metrics.Handler()
}
