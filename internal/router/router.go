// Package router wires the alert engine API handlers into an HTTP server.
package router

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/afikmenashe/alert-engine/internal/handlers"
	"github.com/afikmenashe/alert-engine/pkg/metrics"
)

// MetricsNamespace prefixes every exported Prometheus metric.
const MetricsNamespace = "alert_engine"

// Router wraps the HTTP mux and provides route configuration.
type Router struct {
	mux       *http.ServeMux
	handlers  *handlers.Handlers
	collector *metrics.Collector
	registry  *prometheus.Registry
}

// NewRouter creates a router with all routes configured. collector may be
// nil, in which case /metrics only exposes process metrics.
func NewRouter(h *handlers.Handlers, collector *metrics.Collector) *Router {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if collector != nil {
		registry.MustRegister(metrics.NewPrometheusCollector(MetricsNamespace, collector))
	}

	r := &Router{
		mux:       http.NewServeMux(),
		handlers:  h,
		collector: collector,
		registry:  registry,
	}
	r.setupRoutes()
	return r
}

// setupRoutes configures all HTTP routes for the API.
func (r *Router) setupRoutes() {
	const alertsPath = "/api/v1/projects/{project}/alerts"

	r.mux.HandleFunc("POST "+alertsPath+"/{name}", r.handlers.CreateAlert)
	r.mux.HandleFunc("GET "+alertsPath, r.handlers.ListAlerts)
	r.mux.HandleFunc("DELETE "+alertsPath, r.handlers.DeleteProjectAlerts)
	r.mux.HandleFunc("GET "+alertsPath+"/{alert_id}", r.handlers.GetAlert)
	r.mux.HandleFunc("PUT "+alertsPath+"/{alert_id}", r.handlers.StoreAlert)
	r.mux.HandleFunc("DELETE "+alertsPath+"/{alert_id}", r.handlers.DeleteAlert)
	r.mux.HandleFunc("POST "+alertsPath+"/{alert_id}/reset", r.handlers.ResetAlert)

	r.mux.HandleFunc("POST /api/v1/projects/{project}/events/{kind}", r.handlers.PostEvent)

	r.mux.HandleFunc("GET /health", r.handlers.Health)
	r.mux.Handle("GET /metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
}

// Handler returns the mux wrapped in the CORS and metrics middleware.
func (r *Router) Handler() http.Handler {
	return corsMiddleware(metricsMiddleware(r.collector)(r.mux))
}

// NewServer creates a new HTTP server serving h on port.
func NewServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
