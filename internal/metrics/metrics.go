// Package metrics holds the Prometheus instruments of the verification pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for ingestion, verification and scheduling.
type Metrics struct {
	// Rows per upload by outcome: accepted, rejected, duplicate
	IngestRows *prometheus.CounterVec

	// Terminal record states by verification type
	Verifications *prometheus.CounterVec

	// Provider attempts by verification type and error category ("OK" on success)
	ProviderAttempts *prometheus.CounterVec

	// Provider round-trip latency
	ProviderLatency *prometheus.HistogramVec

	// Scheduler groups started
	SchedulerGroups prometheus.Counter

	// Jobs waiting in the scheduler queue
	QueueDepth prometheus.Gauge
}

// New registers every instrument on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IngestRows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_ingest_rows_total",
			Help: "Uploaded rows by ingest outcome",
		}, []string{"type", "outcome"}),

		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_verifications_total",
			Help: "Records resolved by the state machine, by type and final state",
		}, []string{"type", "state"}),

		ProviderAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_provider_attempts_total",
			Help: "Wire-level provider attempts by type and error category",
		}, []string{"type", "category"}),

		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kyc_provider_request_duration_seconds",
			Help:    "Duration of provider verify and status calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"type"}),

		SchedulerGroups: f.NewCounter(prometheus.CounterOpts{
			Name: "kyc_scheduler_groups_total",
			Help: "Concurrent verification groups started by the scheduler",
		}),

		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "kyc_scheduler_queue_depth",
			Help: "Jobs waiting for the scheduler",
		}),
	}
}

// IngestRow counts n rows with the given outcome.
func (m *Metrics) IngestRow(vtype, outcome string, n int) {
	if m != nil && n > 0 {
		m.IngestRows.WithLabelValues(vtype, outcome).Add(float64(n))
	}
}

// Resolved records a terminal state.
func (m *Metrics) Resolved(vtype, state string) {
	if m != nil {
		m.Verifications.WithLabelValues(vtype, state).Inc()
	}
}

// ProviderAttempt records one wire-level attempt and its latency.
func (m *Metrics) ProviderAttempt(vtype, category string, d time.Duration) {
	if m != nil {
		m.ProviderAttempts.WithLabelValues(vtype, category).Inc()
		m.ProviderLatency.WithLabelValues(vtype).Observe(d.Seconds())
	}
}

// GroupStarted counts a scheduler group.
func (m *Metrics) GroupStarted() {
	if m != nil {
		m.SchedulerGroups.Inc()
	}
}

// SetQueueDepth reports the current queue length.
func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}
