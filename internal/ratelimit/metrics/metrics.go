package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the login protection counters. Construct once per process:
// promauto registers on the default registry and panics on duplicates.
type Metrics struct {
	FailuresRecorded    *prometheus.CounterVec
	Lockouts            *prometheus.CounterVec
	StoreErrors         *prometheus.CounterVec
	FailOpen            prometheus.Counter
	StoreDegraded       prometheus.Gauge
	CleanupRowsPruned   prometheus.Counter
	CleanupTokensPruned prometheus.Counter
	CleanupRunsTotal    *prometheus.CounterVec
	CleanupDuration     prometheus.Histogram
	UnlockAttemptsTotal *prometheus.CounterVec
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers on reg, so tests can use a throwaway registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FailuresRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "afenda_login_failures_recorded_total",
			Help: "Failed sign-in attempts recorded against a counter, by scope",
		}, []string{"scope"}),
		Lockouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "afenda_login_lockouts_total",
			Help: "Failures that left a scope locked, by scope",
		}, []string{"scope"}),
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "afenda_login_store_errors_total",
			Help: "Counter store errors, by operation",
		}, []string{"operation"}),
		FailOpen: factory.NewCounter(prometheus.CounterOpts{
			Name: "afenda_login_fail_open_total",
			Help: "Eligibility checks that allowed a sign-in because the store was unavailable",
		}),
		StoreDegraded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "afenda_login_store_degraded",
			Help: "1 while consecutive store failures have the eligibility check failing open",
		}),
		CleanupRowsPruned: factory.NewCounter(prometheus.CounterOpts{
			Name: "afenda_login_cleanup_counters_pruned_total",
			Help: "Idle login counters removed by the cleanup worker",
		}),
		CleanupTokensPruned: factory.NewCounter(prometheus.CounterOpts{
			Name: "afenda_login_cleanup_unlock_tokens_pruned_total",
			Help: "Expired unlock tokens removed by the cleanup worker",
		}),
		CleanupRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "afenda_login_cleanup_runs_total",
			Help: "Cleanup worker runs, by status",
		}, []string{"status"}),
		CleanupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "afenda_login_cleanup_duration_seconds",
			Help: "Duration of cleanup runs in seconds",
		}),
		UnlockAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "afenda_login_unlock_attempts_total",
			Help: "Unlock token redemptions, by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncrementFailuresRecorded(scope string) {
	m.FailuresRecorded.WithLabelValues(scope).Inc()
}

func (m *Metrics) IncrementLockouts(scope string) {
	m.Lockouts.WithLabelValues(scope).Inc()
}

func (m *Metrics) IncrementStoreErrors(operation string) {
	m.StoreErrors.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncrementFailOpen() {
	m.FailOpen.Inc()
}

func (m *Metrics) SetStoreDegraded(degraded bool) {
	if degraded {
		m.StoreDegraded.Set(1)
		return
	}
	m.StoreDegraded.Set(0)
}

func (m *Metrics) AddCleanupRowsPruned(n int) {
	m.CleanupRowsPruned.Add(float64(n))
}

func (m *Metrics) AddCleanupTokensPruned(n int) {
	m.CleanupTokensPruned.Add(float64(n))
}

func (m *Metrics) IncrementCleanupRuns(status string) {
	m.CleanupRunsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveCleanupDuration(durationSeconds float64) {
	m.CleanupDuration.Observe(durationSeconds)
}

func (m *Metrics) IncrementUnlockAttempts(result string) {
	m.UnlockAttemptsTotal.WithLabelValues(result).Inc()
}
