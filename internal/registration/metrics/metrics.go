package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registration flow.
type Metrics struct {
	OTPGenerated           prometheus.Counter
	OTPVerifications       *prometheus.CounterVec
	PANVerifications       *prometheus.CounterVec
	RegistrationsCompleted prometheus.Counter
	OperationDuration      *prometheus.HistogramVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OTPGenerated: f.NewCounter(prometheus.CounterOpts{
			Name: "udyam_otp_generated_total",
			Help: "OTP challenges issued",
		}),
		OTPVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "udyam_otp_verifications_total",
			Help: "OTP verification attempts by outcome",
		}, []string{"outcome"}),
		PANVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "udyam_pan_verifications_total",
			Help: "PAN verification attempts by outcome",
		}, []string{"outcome"}),
		RegistrationsCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "udyam_registrations_completed_total",
			Help: "Registrations issued a Udyam number",
		}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "udyam_registration_operation_duration_seconds",
			Help:    "Duration of registration service operations",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncOTPGenerated() {
	m.OTPGenerated.Inc()
}

func (m *Metrics) IncOTPVerification(outcome string) {
	m.OTPVerifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncPANVerification(outcome string) {
	m.PANVerifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncCompleted() {
	m.RegistrationsCompleted.Inc()
}

// ObserveOperation records time since start. Call with time.Now() at the start
// of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
