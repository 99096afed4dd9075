package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	jobmetrics "github.com/odyssey-erp/sales-discount/internal/jobs"
	"github.com/odyssey-erp/sales-discount/internal/observability"
)

// WorkerTelemetry is the registry of the worker process: discount
// combinations counted by the order service plus the job collectors.
type WorkerTelemetry struct {
	Metrics *observability.Metrics
	Jobs    *jobmetrics.Metrics
}

// NewWorkerTelemetry registers the job collectors on a fresh registry.
func NewWorkerTelemetry() WorkerTelemetry {
	m := observability.NewMetrics()
	return WorkerTelemetry{Metrics: m, Jobs: jobmetrics.NewMetrics(m.Registerer())}
}

// NewWorkerRouter exposes /healthz and /metrics for the worker.
func NewWorkerRouter(t WorkerTelemetry) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", t.Metrics.Handler())
	return r
}

// NewWorkerServer returns the metrics listener, or nil when metrics are
// disabled or no address is configured.
func NewWorkerServer(cfg *Config, t WorkerTelemetry) *http.Server {
	if cfg == nil || !cfg.MetricsEnabled || cfg.WorkerMetricsAddr == "" {
		return nil
	}
	return &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           NewWorkerRouter(t),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}
}
