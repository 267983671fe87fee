package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks audit forwarding to Kafka.
type Metrics struct {
	Published             prometheus.Counter
	PublishFailures       prometheus.Counter
	CircuitBreakerDropped prometheus.Counter
	CircuitBreakerState   prometheus.Gauge
}

func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "udyam_audit_kafka_published_total",
			Help: "Audit events acknowledged by the broker",
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "udyam_audit_kafka_publish_failures_total",
			Help: "Audit events the broker rejected or never acknowledged",
		}),
		CircuitBreakerDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "udyam_audit_kafka_circuit_breaker_dropped_total",
			Help: "Audit events not forwarded because the breaker was open",
		}),
		CircuitBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "udyam_audit_kafka_circuit_breaker_state",
			Help: "Breaker state (0=closed, 1=open)",
		}),
	}
}

func (m *Metrics) setBreakerState(open bool) {
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}
