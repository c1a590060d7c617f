// Package metrics exposes Prometheus instrumentation for the Castellan
// server: HTTP request metrics plus counters for the domain events
// worth alerting on.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the server registers.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	authAttemptsTotal    *prometheus.CounterVec
	legacyMigrations     prometheus.Counter
	directoryRebuilds    prometheus.Counter
	hostDecisionsTotal   *prometheus.CounterVec
	tokensIssuedTotal    *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "castellan_http_requests_total",
			Help: "Total HTTP requests by method, path and status code.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "castellan_http_request_duration_seconds",
			Help:    "HTTP request latency by method and path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		authAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "castellan_auth_attempts_total",
			Help: "Authentication attempts by outcome.",
		}, []string{"outcome"}),
		legacyMigrations: factory.NewCounter(prometheus.CounterOpts{
			Name: "castellan_legacy_digest_migrations_total",
			Help: "Password digests migrated from a legacy encoding.",
		}),
		directoryRebuilds: factory.NewCounter(prometheus.CounterOpts{
			Name: "castellan_directory_rebuilds_total",
			Help: "Directory projection rebuilds after invalidation.",
		}),
		hostDecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "castellan_host_access_decisions_total",
			Help: "Host authorization decisions by outcome.",
		}, []string{"decision"}),
		tokensIssuedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "castellan_tokens_issued_total",
			Help: "Single-use tokens issued by kind.",
		}, []string{"kind"}),
	}
}

// Handler serves the metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware instruments HTTP handlers. The chi route pattern is used
// as the path label so parameterized routes stay bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		// The matched pattern is only known after serving. Unmatched
		// requests fall back to the raw path.
		path := r.URL.Path
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil && routeCtx.RoutePattern() != "" {
			path = routeCtx.RoutePattern()
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordAuthAttempt counts one authentication attempt.
func (m *Metrics) RecordAuthAttempt(outcome string) {
	m.authAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordLegacyMigration counts one legacy digest migration.
func (m *Metrics) RecordLegacyMigration() {
	m.legacyMigrations.Inc()
}

// RecordDirectoryRebuild counts one projection rebuild.
func (m *Metrics) RecordDirectoryRebuild() {
	m.directoryRebuilds.Inc()
}

// RecordHostDecision counts one host authorization decision.
func (m *Metrics) RecordHostDecision(decision string) {
	m.hostDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordTokenIssued counts one issued token.
func (m *Metrics) RecordTokenIssued(kind string) {
	m.tokensIssuedTotal.WithLabelValues(kind).Inc()
}
