// Package metrics exposes Prometheus instruments for the pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for pipeline runs. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Items processed by source and change status
	Items *prometheus.CounterVec

	// Item failures by pipeline stage
	Failures *prometheus.CounterVec

	// Sources that could not be fetched
	SourceErrors *prometheus.CounterVec

	// Assessments by risk tier
	Assessments *prometheus.CounterVec

	// Sink publish failures by sink name
	SinkErrors *prometheus.CounterVec

	// Summaries produced by the fallback instead of the summarizer
	SummaryFallbacks prometheus.Counter

	// Stage latency
	StageLatency *prometheus.HistogramVec

	// Full batch duration
	BatchLatency prometheus.Histogram
}

// New registers all pipeline metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Items: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regtracker_items_total",
			Help: "Items processed by source and change status",
		}, []string{"source", "status"}),

		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regtracker_item_failures_total",
			Help: "Items skipped because a pipeline stage failed",
		}, []string{"stage"}),

		SourceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regtracker_source_errors_total",
			Help: "Sources that could not be fetched during a batch",
		}, []string{"source"}),

		Assessments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regtracker_assessments_total",
			Help: "Assessments persisted by risk tier",
		}, []string{"tier"}),

		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regtracker_sink_errors_total",
			Help: "Failed sink publications by sink",
		}, []string{"sink"}),

		SummaryFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "regtracker_summary_fallbacks_total",
			Help: "Assessments whose summary came from the extractive fallback",
		}),

		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regtracker_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"stage"}),

		BatchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "regtracker_batch_duration_seconds",
			Help:    "Duration of full pipeline batches",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
}

// IncItem records a processed item.
func (m *Metrics) IncItem(source, status string) {
	if m != nil {
		m.Items.WithLabelValues(source, status).Inc()
	}
}

// IncFailure records a skipped item.
func (m *Metrics) IncFailure(stage string) {
	if m != nil {
		m.Failures.WithLabelValues(stage).Inc()
	}
}

// IncSourceError records a source fetch failure.
func (m *Metrics) IncSourceError(source string) {
	if m != nil {
		m.SourceErrors.WithLabelValues(source).Inc()
	}
}

// IncAssessment records a persisted assessment.
func (m *Metrics) IncAssessment(tier string, fallback bool) {
	if m == nil {
		return
	}
	m.Assessments.WithLabelValues(tier).Inc()
	if fallback {
		m.SummaryFallbacks.Inc()
	}
}

// IncSinkError records a failed publication.
func (m *Metrics) IncSinkError(sink string) {
	if m != nil {
		m.SinkErrors.WithLabelValues(sink).Inc()
	}
}

// ObserveStage records the duration of one stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// ObserveBatch records the duration of a full batch.
func (m *Metrics) ObserveBatch(d time.Duration) {
	if m != nil {
		m.BatchLatency.Observe(d.Seconds())
	}
}
