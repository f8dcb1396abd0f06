// Package metrics exposes Prometheus instrumentation for the model subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "models"

// Metrics holds the collectors shared by the loader and the GPU resource manager.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ModelsLoaded   *prometheus.CounterVec
	CacheHits      prometheus.Counter
	MissingParsers prometheus.Counter
	ParseFailures  prometheus.Counter
	LoadDuration   prometheus.Histogram

	PiecesRealized     prometheus.Counter
	RealizeFailures    prometheus.Counter
	LocalModelsFixed   prometheus.Counter
	LocalModelsFreed   prometheus.Counter
	PendingRealization prometheus.Gauge
	PendingFix         prometheus.Gauge
	PendingDeletion    prometheus.Gauge
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is handy in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ModelsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loaded_total",
			Help:      "Models parsed and inserted into the cache, by format.",
		}, []string{"format"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Model requests served from the cache.",
		}),
		MissingParsers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missing_parser_total",
			Help:      "Model requests whose extension had no registered parser.",
		}),
		ParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_failures_total",
			Help:      "Model requests that failed inside a parser.",
		}),
		LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Time spent parsing newly requested models.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		PiecesRealized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gpu",
			Name:      "pieces_realized_total",
			Help:      "Model pieces compiled into draw lists.",
		}),
		RealizeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gpu",
			Name:      "realize_failures_total",
			Help:      "Model pieces whose draw list could not be compiled.",
		}),
		LocalModelsFixed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gpu",
			Name:      "local_models_fixed_total",
			Help:      "Actor local models re-synchronized with realized draw lists.",
		}),
		LocalModelsFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gpu",
			Name:      "local_models_freed_total",
			Help:      "Actor local models released.",
		}),
		PendingRealization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gpu",
			Name:      "pending_realization",
			Help:      "Model trees waiting for the next flush to be realized.",
		}),
		PendingFix: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gpu",
			Name:      "pending_fix",
			Help:      "Actors waiting for the next flush to bind draw lists.",
		}),
		PendingDeletion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gpu",
			Name:      "pending_deletion",
			Help:      "Local models waiting for the next flush to be released.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ModelsLoaded,
			m.CacheHits,
			m.MissingParsers,
			m.ParseFailures,
			m.LoadDuration,
			m.PiecesRealized,
			m.RealizeFailures,
			m.LocalModelsFixed,
			m.LocalModelsFreed,
			m.PendingRealization,
			m.PendingFix,
			m.PendingDeletion,
		)
	}
	return m
}

// ObserveLoad records a freshly parsed model.
func (m *Metrics) ObserveLoad(format string, seconds float64) {
	if m == nil {
		return
	}
	m.ModelsLoaded.WithLabelValues(format).Inc()
	m.LoadDuration.Observe(seconds)
}

// CacheHit records a request served from the cache.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// MissingParser records a request with an unknown extension.
func (m *Metrics) MissingParser() {
	if m == nil {
		return
	}
	m.MissingParsers.Inc()
}

// ParseFailure records a parser error.
func (m *Metrics) ParseFailure() {
	if m == nil {
		return
	}
	m.ParseFailures.Inc()
}

// Realized records compiled and failed pieces of one realization pass.
func (m *Metrics) Realized(ok, failed int) {
	if m == nil {
		return
	}
	m.PiecesRealized.Add(float64(ok))
	m.RealizeFailures.Add(float64(failed))
}

// Fixed records a batch of fix passes.
func (m *Metrics) Fixed(n int) {
	if m == nil {
		return
	}
	m.LocalModelsFixed.Add(float64(n))
}

// Freed records a batch of released local models.
func (m *Metrics) Freed(n int) {
	if m == nil {
		return
	}
	m.LocalModelsFreed.Add(float64(n))
}

// SetPending publishes the current queue depths.
func (m *Metrics) SetPending(realize, fix, deletion int) {
	if m == nil {
		return
	}
	m.PendingRealization.Set(float64(realize))
	m.PendingFix.Set(float64(fix))
	m.PendingDeletion.Set(float64(deletion))
}
