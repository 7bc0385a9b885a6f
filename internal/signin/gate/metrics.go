package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions            *prometheus.CounterVec
	CaptchaVerifications *prometheus.CounterVec
	ProviderLatency      prometheus.Histogram
}

func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "afenda_login_gate_decisions_total",
			Help: "Sign-in attempts by terminal gate state",
		}, []string{"state"}),
		CaptchaVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "afenda_login_captcha_verifications_total",
			Help: "CAPTCHA checks on sign-in, by result",
		}, []string{"result"}),
		ProviderLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "afenda_login_provider_latency_seconds",
			Help:    "Identity provider round trip for sign-in requests",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *Metrics) IncrementDecision(state State) {
	m.Decisions.WithLabelValues(string(state)).Inc()
}

func (m *Metrics) IncrementCaptcha(result string) {
	m.CaptchaVerifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveProviderLatency(seconds float64) {
	m.ProviderLatency.Observe(seconds)
}
