// Package metrics exposes Prometheus metrics for the HTTP API and the
// recurring engine on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tally/internal/services/materializer"
)

const namespace = "tally"

// Metrics holds every collector the server reports.
//
// Safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	previews          prometheus.Counter
	occurrences       prometheus.Histogram
	batches           prometheus.Counter
	materializedItems *prometheus.CounterVec
}

// New registers the collectors on a fresh registry. Go runtime and process
// collectors are included.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		},
		[]string{"method", "route", "status"},
	)
	m.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	m.previews = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "previews_total",
		Help:      "Occurrence previews computed.",
	})
	m.occurrences = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "occurrences_generated",
		Help:      "Occurrences generated per preview.",
		Buckets:   []float64{1, 3, 6, 12, 24, 52, 104, 260, 520},
	})
	m.batches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "materialize",
		Name:      "batches_total",
		Help:      "Materialization batches run.",
	})
	m.materializedItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "materialize",
			Name:      "items_total",
			Help:      "Materialized occurrences by outcome.",
		},
		[]string{"status"},
	)

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.previews,
		m.occurrences,
		m.batches,
		m.materializedItems,
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Middleware records request counts and latency. Routes are labelled by
// their chi pattern so ids do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordPreview counts one preview of generated occurrences
func (m *Metrics) RecordPreview(generated int) {
	m.previews.Inc()
	m.occurrences.Observe(float64(generated))
}

// RecordMaterialization counts a finished batch and its per-item outcomes
func (m *Metrics) RecordMaterialization(report *materializer.Report) {
	if report == nil {
		return
	}
	m.batches.Inc()
	m.materializedItems.WithLabelValues(string(materializer.StatusCreated)).Add(float64(report.Succeeded))
	m.materializedItems.WithLabelValues(string(materializer.StatusFailed)).Add(float64(report.Failed))
	m.materializedItems.WithLabelValues(string(materializer.StatusSkipped)).Add(float64(report.Skipped))
	m.materializedItems.WithLabelValues(string(materializer.StatusCancelled)).Add(float64(report.Cancelled))
}
