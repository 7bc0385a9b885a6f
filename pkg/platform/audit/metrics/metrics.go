package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit publisher.
type Metrics struct {
	QueueDepth      prometheus.Gauge
	EventsDropped   prometheus.Counter
	EventsEnqueued  prometheus.Counter
	PersistDuration prometheus.Histogram
	PersistFailures prometheus.Counter
	EventsProcessed prometheus.Counter
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "afenda_audit_queue_depth",
			Help: "Current number of events in the audit publisher queue",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "afenda_audit_events_dropped_total",
			Help: "Total number of audit events dropped due to full buffer",
		}),
		EventsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "afenda_audit_events_enqueued_total",
			Help: "Total number of audit events successfully enqueued",
		}),
		PersistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "afenda_audit_persist_duration_seconds",
			Help:    "Time taken to write an audit event to the sink",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "afenda_audit_persist_failures_total",
			Help: "Total number of audit event sink failures",
		}),
		EventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "afenda_audit_events_processed_total",
			Help: "Total number of audit events written by the background worker",
		}),
	}
}

func (m *Metrics) IncQueueDepth() {
	m.QueueDepth.Inc()
}

func (m *Metrics) DecQueueDepth() {
	m.QueueDepth.Dec()
}

func (m *Metrics) IncEventsDropped() {
	m.EventsDropped.Inc()
}

func (m *Metrics) IncEventsEnqueued() {
	m.EventsEnqueued.Inc()
}

// ObservePersistDuration records the sink write latency.
func (m *Metrics) ObservePersistDuration(durationSeconds float64) {
	m.PersistDuration.Observe(durationSeconds)
}

func (m *Metrics) IncPersistFailures() {
	m.PersistFailures.Inc()
}

func (m *Metrics) IncEventsProcessed() {
	m.EventsProcessed.Inc()
}
