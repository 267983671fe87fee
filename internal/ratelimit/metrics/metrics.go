package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions      *prometheus.CounterVec
	StoreErrors    prometheus.Counter
	FallbackActive prometheus.Gauge
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "udyam_ratelimit_decisions_total",
			Help: "Rate limit checks by policy and decision",
		}, []string{"policy", "decision"}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "udyam_ratelimit_store_errors_total",
			Help: "Rate limit checks that failed against the primary store",
		}),
		FallbackActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "udyam_ratelimit_fallback_active",
			Help: "1 while checks are served by the in-memory fallback",
		}),
	}
}

func (m *Metrics) IncDecision(policy string, allowed bool) {
	decision := "allowed"
	if !allowed {
		decision = "rejected"
	}
	m.Decisions.WithLabelValues(policy, decision).Inc()
}

func (m *Metrics) IncStoreErrors() {
	m.StoreErrors.Inc()
}

func (m *Metrics) SetFallback(active bool) {
	if active {
		m.FallbackActive.Set(1)
		return
	}
	m.FallbackActive.Set(0)
}
