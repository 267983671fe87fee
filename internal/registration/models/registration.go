package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a registration.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusCompleted Status = "completed"
	// StatusNotStarted is only reported by status lookups; it is never stored.
	StatusNotStarted Status = "not_started"
)

// Step completion markers stored on the registration.
const (
	StepAadhaarVerified = 1
	StepPANVerified     = 2
)

// Registration is the aggregate for one entrepreneur's Udyam application.
//
// Invariants:
//   - AadhaarNumber is unique across registrations
//   - StepCompleted never decreases
//   - a completed registration has a PAN and a UdyamNumber
//   - a PAN appears on at most one completed registration
type Registration struct {
	ID               uuid.UUID        `json:"id"`
	AadhaarNumber    string           `json:"aadhaar_number"`
	EntrepreneurName string           `json:"entrepreneur_name,omitempty"`
	OrganizationType OrganizationType `json:"organization_type,omitempty"`
	PANNumber        string           `json:"pan_number,omitempty"`
	GSTIN            string           `json:"gstin,omitempty"`
	FiledITR         string           `json:"filed_itr,omitempty"`
	Status           Status           `json:"status"`
	StepCompleted    int              `json:"step_completed"`
	UdyamNumber      string           `json:"udyam_number,omitempty"`
	ReferenceNumber  string           `json:"reference_number,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
}

// NewDraft starts a registration after Aadhaar verification.
func NewDraft(id uuid.UUID, aadhaarNumber, entrepreneurName string, now time.Time) *Registration {
	return &Registration{
		ID:               id,
		AadhaarNumber:    aadhaarNumber,
		EntrepreneurName: entrepreneurName,
		Status:           StatusDraft,
		StepCompleted:    StepAadhaarVerified,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (r *Registration) IsCompleted() bool {
	return r.Status == StatusCompleted
}

// MarkStep raises StepCompleted to step. Lower values are ignored.
func (r *Registration) MarkStep(step int, now time.Time) {
	if step > r.StepCompleted {
		r.StepCompleted = step
	}
	r.UpdatedAt = now
}

// ApplyPAN records verified PAN details.
func (r *Registration) ApplyPAN(details PANDetails, now time.Time) {
	r.OrganizationType = details.OrganizationType
	r.PANNumber = details.PANNumber
	r.GSTIN = details.GSTIN
	r.FiledITR = details.FiledITR
	r.MarkStep(StepPANVerified, now)
}

// ReadyToSubmit reports whether both verification steps are done.
func (r *Registration) ReadyToSubmit() bool {
	return !r.IsCompleted() && r.StepCompleted >= StepPANVerified && r.PANNumber != ""
}

// Complete marks the registration as issued.
func (r *Registration) Complete(udyamNumber, referenceNumber string, now time.Time) {
	r.Status = StatusCompleted
	r.UdyamNumber = udyamNumber
	r.ReferenceNumber = referenceNumber
	r.UpdatedAt = now
	r.CompletedAt = &now
}

// PANDetails is the validated content of the PAN step.
type PANDetails struct {
	OrganizationType OrganizationType
	PANNumber        string
	GSTIN            string
	FiledITR         string
}

// OTPChallenge is a pending OTP for an Aadhaar. Only the bcrypt hash of the
// code is kept.
type OTPChallenge struct {
	AadhaarNumber    string
	EntrepreneurName string
	CodeHash         string
	Attempts         int
	ExpiresAt        time.Time
	CreatedAt        time.Time
}

func (c *OTPChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
