// Package metrics provides Prometheus collectors for query processing.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "momentseek"

// Query outcome labels
const (
	StatusMatched    = "matched"
	StatusNoMatch    = "no_match"
	StatusFailed     = "failed"
	StatusSuperseded = "superseded"
	StatusInvalid    = "invalid"
)

// Metrics holds the collectors updated by the query orchestrator.
type Metrics struct {
	QueriesTotal      *prometheus.CounterVec
	PredictionLatency prometheus.Histogram
	SegmentsReturned  prometheus.Histogram
	SegmentsDiscarded prometheus.Counter
	PersistFailures   prometheus.Counter
	ArchiveFailures   prometheus.Counter
	DegradedTimelines prometheus.Counter
	QueriesInFlight   prometheus.Gauge
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// Default returns metrics registered on the global Prometheus registry
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New creates and registers all collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of queries by outcome",
		}, []string{"status"}),
		PredictionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Latency of the prediction service",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}),
		SegmentsReturned: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segments_returned",
			Help:      "Number of segments in a normalized result",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		SegmentsDiscarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_discarded_total",
			Help:      "Total number of segments removed by the result policy",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_persist_failures_total",
			Help:      "Total number of results that could not be saved to history",
		}),
		ArchiveFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_failures_total",
			Help:      "Total number of raw predictions that could not be archived",
		}),
		DegradedTimelines: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_timelines_total",
			Help:      "Total number of timelines built with the fallback duration",
		}),
		QueriesInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queries_in_flight",
			Help:      "Number of queries waiting for the prediction service",
		}),
	}
}

// ObserveQuery records the outcome of one query. A nil Metrics is a no-op.
func (m *Metrics) ObserveQuery(status string) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(status).Inc()
}

// StartPrediction marks a prediction in flight and returns a func that
// records its latency.
func (m *Metrics) StartPrediction() func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.QueriesInFlight.Inc()
	return func() {
		m.QueriesInFlight.Dec()
		m.PredictionLatency.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ObserveSegments(returned, discarded int) {
	if m == nil {
		return
	}
	m.SegmentsReturned.Observe(float64(returned))
	if discarded > 0 {
		m.SegmentsDiscarded.Add(float64(discarded))
	}
}

func (m *Metrics) PersistFailed() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) ArchiveFailed() {
	if m != nil {
		m.ArchiveFailures.Inc()
	}
}

func (m *Metrics) TimelineDegraded() {
	if m != nil {
		m.DegradedTimelines.Inc()
	}
}
