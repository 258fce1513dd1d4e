// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Transitions counts ledger transitions by action and outcome.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "placepulse_transitions_total",
		Help: "Ledger transitions, by action and outcome.",
	}, []string{"action", "outcome"})

	// CacheLookups counts geo cache lookups by result (fine, coarse, miss).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "placepulse_geocache_lookups_total",
		Help: "Geo cache lookups, by tier hit or miss.",
	}, []string{"result"})

	// CacheWriteFailures counts dropped geo cache writes.
	CacheWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "placepulse_geocache_write_failures_total",
		Help: "Geo cache writes dropped because the store failed.",
	})

	// QuotaDecisions counts quota limiter decisions.
	QuotaDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "placepulse_quota_decisions_total",
		Help: "Daily quota decisions, by key and decision.",
	}, []string{"key", "decision"})

	// ProviderCalls counts external place provider calls.
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "placepulse_provider_calls_total",
		Help: "Place provider calls, by operation and outcome.",
	}, []string{"op", "outcome"})

	// BreakerState reports provider circuit breaker state (0 closed, 1 open, 2 half-open).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "placepulse_provider_breaker_state",
		Help: "Provider circuit breaker state: 0 closed, 1 open, 2 half-open.",
	}, []string{"name"})

	// SweepDuration observes maintenance sweep durations.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "placepulse_maintenance_duration_seconds",
		Help:    "Duration of maintenance sweeps.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// SweepPlaces counts places touched by maintenance sweeps.
	SweepPlaces = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "placepulse_maintenance_places_total",
		Help: "Places visited by maintenance sweeps, by outcome.",
	}, []string{"outcome"})

	// RequestDuration observes HTTP request durations.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "placepulse_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds, by route, method, and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "status"})

	// RequestsInFlight tracks requests currently being served.
	RequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "placepulse_http_requests_in_flight",
		Help: "Number of HTTP requests currently being served.",
	})
)

// Outcome labels a result for counters.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Middleware records request duration and in-flight count. Routes are
// labeled by their chi pattern to bound cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/metrics") {
			next.ServeHTTP(w, r)
			return
		}
		RequestsInFlight.Inc()
		defer RequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RequestDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
