package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every Prometheus metric the pipeline emits. It owns its
// own registry so multiple collectors (tests) never collide.
type Collector struct {
	registry *prometheus.Registry

	// Fast path
	WALWrites        *prometheus.CounterVec
	FastPathDuration prometheus.Histogram
	EnqueueFailures  prometheus.Counter

	// Slow path
	Consolidations        *prometheus.CounterVec
	ConsolidationDuration prometheus.Histogram
	DeadLetters           prometheus.Counter
	BatchFailureAlerts    prometheus.Counter

	// Calibration
	Reflections prometheus.Counter

	// VoI gate
	VoIDecisions       *prometheus.CounterVec
	DecisionLogDropped prometheus.Counter

	// Scheduler
	SweepRequeues *prometheus.CounterVec
	PushBackRate  prometheus.Gauge

	// Retrieval cache
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// HTTP
	RequestDuration *prometheus.HistogramVec
	RequestCount    *prometheus.CounterVec
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		WALWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wal_writes_total",
				Help: "WAL create attempts by result",
			},
			[]string{"result"},
		),
		FastPathDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fastpath_duration_seconds",
				Help:    "End-to-end fast path latency",
				Buckets: []float64{.01, .025, .05, .1, .15, .2, .3, .5, 1},
			},
		),
		EnqueueFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "enqueue_failures_total",
				Help: "Queue hand-off failures (degraded mode, sweep delivers)",
			},
		),

		Consolidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consolidations_total",
				Help: "Slow path entry outcomes",
			},
			[]string{"status"},
		),
		ConsolidationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "consolidation_duration_seconds",
				Help:    "Per-entry slow path processing time",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		DeadLetters: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dead_letters_total",
				Help: "Entries moved to dead_letter after exhausting retries",
			},
		),
		BatchFailureAlerts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "batch_failure_alerts_total",
				Help: "Batches whose failure rate crossed the alert threshold",
			},
		),

		Reflections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reflection_triggers_total",
				Help: "Martingale low-variance reflection triggers",
			},
		),

		VoIDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voi_decisions_total",
				Help: "Gated tool calls by decision",
			},
			[]string{"decision"},
		),
		DecisionLogDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "voi_decision_log_dropped_total",
				Help: "Decision log writes dropped by the bounded queue",
			},
		),

		SweepRequeues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweep_requeues_total",
				Help: "WAL entries re-enqueued by the maintenance sweep",
			},
			[]string{"reason"},
		),
		PushBackRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "voi_pushback_rate",
				Help: "Share of gated calls clarified over the last check window",
			},
		),

		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "retrieval_cache_hits_total",
				Help: "Retrieval cache hits",
			},
		),
		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "retrieval_cache_misses_total",
				Help: "Retrieval cache misses",
			},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path", "status"},
		),
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests by method, path and status",
			},
			[]string{"method", "path", "status"},
		),
	}

	c.registry.MustRegister(
		c.WALWrites,
		c.FastPathDuration,
		c.EnqueueFailures,
		c.Consolidations,
		c.ConsolidationDuration,
		c.DeadLetters,
		c.BatchFailureAlerts,
		c.Reflections,
		c.VoIDecisions,
		c.DecisionLogDropped,
		c.SweepRequeues,
		c.PushBackRate,
		c.CacheHits,
		c.CacheMisses,
		c.RequestDuration,
		c.RequestCount,
	)

	return c
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
