package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the HTTP surface and the sweep.
// Each instance owns its registry so tests can build routers side by side.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec

	sweeps           *prometheus.CounterVec
	recurringCreated prometheus.Counter
	recurringSkipped prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "splitledger",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "recurring_sweeps_total",
			Help:      "Recurring sweeps by outcome (ok, error, locked).",
		}, []string{"outcome"}),
		recurringCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "recurring_expenses_created_total",
			Help:      "Expenses materialized from recurring templates.",
		}),
		recurringSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "recurring_templates_skipped_total",
			Help:      "Templates skipped during a sweep (lost claim or malformed plan).",
		}),
	}
	m.registry.MustRegister(
		m.requests, m.duration, m.sweeps, m.recurringCreated, m.recurringSkipped,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency, labelled by chi route pattern
// so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) observeSweep(outcome string, created, skipped int) {
	m.sweeps.WithLabelValues(outcome).Inc()
	m.recurringCreated.Add(float64(created))
	m.recurringSkipped.Add(float64(skipped))
}
