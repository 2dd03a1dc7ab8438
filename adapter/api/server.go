// Package api provides the HTTP surface of the payment lifecycle engine:
// the payment webhook, health and metrics endpoints, and a small admin API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tutorhive/tutorhive/pkg/observability"
)

// Server is the HTTP API server.
type Server struct {
	mux      *http.ServeMux
	server   *http.Server
	logger   *slog.Logger
	health   *observability.HealthRegistry
	metrics  observability.Metrics
	webhook  *WebhookHandler
	admin    *AdminHandler
	promExpo http.Handler
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "0.0.0.0:8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ServerDeps holds the dependencies wired into the server.
type ServerDeps struct {
	Webhook *WebhookHandler
	Admin   *AdminHandler
	Health  *observability.HealthRegistry
	Metrics observability.Metrics
	// PromExporter serves GET /metrics. Nil disables the endpoint.
	PromExporter http.Handler
	Logger       *slog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NoopMetrics{}
	}
	if deps.Health == nil {
		deps.Health = observability.NewHealthRegistry()
	}

	mux := http.NewServeMux()

	s := &Server{
		mux:      mux,
		logger:   deps.Logger,
		health:   deps.Health,
		metrics:  deps.Metrics,
		webhook:  deps.Webhook,
		admin:    deps.Admin,
		promExpo: deps.PromExporter,
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.instrument(s.mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// NewPromExporter builds the /metrics handler for a Prometheus-backed
// metrics implementation.
func NewPromExporter(m *observability.PrometheusMetrics) http.Handler {
	return promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})
}

// registerRoutes sets up the API routes.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.promExpo != nil {
		s.mux.Handle("GET /metrics", s.promExpo)
	}
	if s.webhook != nil {
		s.mux.HandleFunc("POST /webhooks/payment", s.webhook.HandlePaymentEvent)
	}
	if s.admin != nil {
		s.mux.HandleFunc("POST /api/v1/admin/sweep", s.admin.HandleSweep)
	}
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	results := s.health.Check(r.Context())
	status := observability.Overall(results)

	code := http.StatusOK
	if status == observability.HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": results,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// instrument wraps the mux with request counting and timing.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		tags := []observability.Tag{
			observability.T("method", r.Method),
			observability.T("path", r.URL.Path),
			observability.T("status", http.StatusText(rec.status)),
		}
		s.metrics.Counter(observability.MetricHTTPRequests, 1, tags...)
		s.metrics.Timing(observability.MetricHTTPRequestDuration, time.Since(start), tags...)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting API server",
		"addr", s.server.Addr,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the instrumented handler for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	})
}
