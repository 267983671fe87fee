package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// apply different retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance: completed
	// registrations and the verification outcomes leading to them.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers failed verifications and throttling.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID             uuid.UUID
	Category       EventCategory
	Timestamp      time.Time
	RegistrationID uuid.UUID
	// Subject is a masked identifier (never a raw Aadhaar number).
	Subject   string
	Action    string
	Decision  string
	Reason    string
	RequestID string
	ClientIP  string
	Device    string
}

type AuditEvent string

const (
	EventOTPGenerated          AuditEvent = "otp_generated"
	EventOTPGenerationRejected AuditEvent = "otp_generation_rejected"
	EventOTPVerified           AuditEvent = "otp_verified"
	EventOTPVerificationFailed AuditEvent = "otp_verification_failed"
	EventOTPLockedOut          AuditEvent = "otp_locked_out"
	EventPANVerified           AuditEvent = "pan_verified"
	EventPANRejected           AuditEvent = "pan_rejected"
	EventPANAlreadyRegistered  AuditEvent = "pan_already_registered"
	EventRegistrationCompleted AuditEvent = "registration_completed"
	EventRateLimitExceeded     AuditEvent = "rate_limit_exceeded"
	EventFormSessionStarted    AuditEvent = "form_session_started"
	EventFormSessionExpired    AuditEvent = "form_session_expired"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventOTPVerified:           CategoryCompliance,
	EventPANVerified:           CategoryCompliance,
	EventRegistrationCompleted: CategoryCompliance,

	EventOTPGenerationRejected: CategorySecurity,
	EventOTPVerificationFailed: CategorySecurity,
	EventOTPLockedOut:          CategorySecurity,
	EventPANRejected:           CategorySecurity,
	EventPANAlreadyRegistered:  CategorySecurity,
	EventRateLimitExceeded:     CategorySecurity,

	EventOTPGenerated:       CategoryOperations,
	EventFormSessionStarted: CategoryOperations,
	EventFormSessionExpired: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Sink receives every persisted event, e.g. a Kafka topic.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// MaskAadhaar keeps the last four digits of an Aadhaar number.
func MaskAadhaar(aadhaar string) string {
	if len(aadhaar) <= 4 {
		return aadhaar
	}
	masked := make([]byte, len(aadhaar))
	for i := range masked {
		masked[i] = 'X'
	}
	copy(masked[len(aadhaar)-4:], aadhaar[len(aadhaar)-4:])
	return string(masked)
}
