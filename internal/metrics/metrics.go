// Package metrics exposes Prometheus instrumentation for the sentiment pipeline.
//
// All recording methods are safe to call on a nil *Metrics, so components can
// run uninstrumented in tests and one-shot CLI commands.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bitpredector"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Metrics holds the pipeline collectors.
type Metrics struct {
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheEvictions prometheus.Counter
	SourceFetches  *prometheus.CounterVec
	FetchDuration  *prometheus.HistogramVec
	ScoringErrors  prometheus.Counter
	Analyses       prometheus.Counter
	Confidence     prometheus.Histogram
}

// New creates and registers pipeline metrics on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of result cache hits, by layer.",
		}, []string{"layer"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of result cache misses, by layer.",
		}, []string{"layer"}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of entries evicted from the in-memory result cache.",
		}),
		SourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetches_total",
			Help:      "Total number of source fetches, by source and result status.",
		}, []string{"source", "status"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of source fetches that reached the provider.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		ScoringErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scorer",
			Name:      "errors_total",
			Help:      "Total number of scoring failures replaced by a neutral score.",
		}),
		Analyses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "analyses_total",
			Help:      "Total number of completed keyword analyses.",
		}),
		Confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "confidence_ratio",
			Help:      "Distribution of computed confidence ratios.",
			Buckets:   prometheus.LinearBuckets(-1, 0.25, 9),
		}),
	}

	reg.MustRegister(
		m.CacheHits, m.CacheMisses, m.CacheEvictions,
		m.SourceFetches, m.FetchDuration,
		m.ScoringErrors, m.Analyses, m.Confidence,
	)
	return m
}

func (m *Metrics) CacheHit(layer string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(layer).Inc()
}

func (m *Metrics) CacheMiss(layer string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(layer).Inc()
}

func (m *Metrics) CacheEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CacheEvictions.Add(float64(n))
}

func (m *Metrics) SourceFetched(source, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.SourceFetches.WithLabelValues(source, status).Inc()
	if took > 0 {
		m.FetchDuration.WithLabelValues(source).Observe(took.Seconds())
	}
}

func (m *Metrics) ScoringFailed() {
	if m == nil {
		return
	}
	m.ScoringErrors.Inc()
}

func (m *Metrics) Analyzed(confidence float64) {
	if m == nil {
		return
	}
	m.Analyses.Inc()
	m.Confidence.Observe(confidence)
}
