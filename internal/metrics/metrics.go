// Package metrics exposes the pipeline's Prometheus collectors.
//
// Every recording method is nil-safe so components can run without metrics
// in tests and one-shot tools.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "catalog"

// Image cache outcomes.
const (
	ImageHit         = "hit"
	ImageStored      = "stored"
	ImagePassthrough = "passthrough"
	ImageFailed      = "failed"
)

// Refresh item outcomes.
const (
	ItemSucceeded = "succeeded"
	ItemDegraded  = "degraded"
	ItemFailed    = "failed"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	refreshItems    *prometheus.CounterVec
	refreshCycles   *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	imageCache      *prometheus.CounterVec
	promotions      *prometheus.CounterVec
	fetches         *prometheus.CounterVec
}

// New creates and registers all collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.refreshItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "refresh",
			Name:      "items_total",
			Help:      "Records processed by staleness refresh cycles.",
		},
		[]string{"kind", "outcome"},
	)
	m.refreshCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "refresh",
			Name:      "cycles_total",
			Help:      "Completed refresh cycles.",
		},
		[]string{"kind", "partial"},
	)
	m.refreshDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "refresh",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of refresh cycles.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"kind"},
	)
	m.imageCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "image_cache",
			Name:      "requests_total",
			Help:      "Image cache requests by outcome.",
		},
		[]string{"outcome"},
	)
	m.promotions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "reconcile",
			Name:      "promotions_total",
			Help:      "Promotion attempts by result.",
		},
		[]string{"result"},
	)
	m.fetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "metadata",
			Name:      "fetches_total",
			Help:      "Metadata fetches by source and resulting quality.",
		},
		[]string{"source", "quality"},
	)

	m.registry.MustRegister(
		m.refreshItems,
		m.refreshCycles,
		m.refreshDuration,
		m.imageCache,
		m.promotions,
		m.fetches,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RefreshItem counts one processed record.
func (m *Metrics) RefreshItem(kind, outcome string) {
	if m == nil {
		return
	}
	m.refreshItems.WithLabelValues(kind, outcome).Inc()
}

// RefreshCycle records a finished cycle.
func (m *Metrics) RefreshCycle(kind string, partial bool, d time.Duration) {
	if m == nil {
		return
	}
	p := "false"
	if partial {
		p = "true"
	}
	m.refreshCycles.WithLabelValues(kind, p).Inc()
	m.refreshDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ImageCache counts one image cache request.
func (m *Metrics) ImageCache(outcome string) {
	if m == nil {
		return
	}
	m.imageCache.WithLabelValues(outcome).Inc()
}

// Promotion counts one promotion attempt.
func (m *Metrics) Promotion(result string) {
	if m == nil {
		return
	}
	m.promotions.WithLabelValues(result).Inc()
}

// Fetch counts one metadata fetch.
func (m *Metrics) Fetch(source, quality string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(source, quality).Inc()
}
