package models

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	dErrors "udyam/pkg/domain-errors"
)

var (
	aadhaarPattern = regexp.MustCompile(`^[2-9][0-9]{11}$`)
	namePattern    = regexp.MustCompile(`^[a-zA-Z\s.]+$`)
	otpPattern     = regexp.MustCompile(`^[0-9]{6}$`)
	panPattern     = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]{1}$`)
	gstinPattern   = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z]{1}[1-9A-Z]{1}Z[0-9A-Z]{1}$`)
)

// Client-facing messages.
const (
	MsgInvalidAadhaar       = "Invalid Aadhaar number format"
	MsgInvalidName          = "Invalid name format"
	MsgInvalidOTP           = "Invalid OTP format"
	MsgInvalidOrgType       = "Invalid organization type"
	MsgInvalidPAN           = "Invalid PAN format"
	MsgInvalidGSTIN         = "Invalid GSTIN format"
	MsgInvalidITR           = "ITR filing status must be yes or no"
	MsgPANOrgMismatch       = "PAN number fourth character doesn't match the selected organization type"
	MsgGSTINPANMismatch     = "GSTIN does not contain the given PAN"
	MsgAadhaarInUse         = "This Aadhaar number is already used for Udyam registration"
	MsgOTPIncorrect         = "OTP is incorrect or has expired"
	MsgOTPLocked            = "Too many incorrect attempts. Please request a new OTP"
	MsgPANAlreadyRegistered = "Udyam Registration has already been done through this PAN"
	MsgNotReady             = "Aadhaar and PAN verification must be completed before submission"
	MsgAlreadySubmitted     = "Registration has already been completed"
	MsgRegistrationNotFound = "Registration not found"
)

// ValidAadhaar reports whether s is a well-formed Aadhaar number.
func ValidAadhaar(s string) bool {
	return aadhaarPattern.MatchString(s)
}

type GenerateOTPRequest struct {
	AadhaarNumber    string `json:"aadhaar_number"`
	EntrepreneurName string `json:"entrepreneur_name"`
}

func (r *GenerateOTPRequest) Normalize() {
	if r == nil {
		return
	}
	r.AadhaarNumber = strings.TrimSpace(r.AadhaarNumber)
	r.EntrepreneurName = strings.TrimSpace(r.EntrepreneurName)
}

// Follows validation order: Size -> Syntax.
func (r *GenerateOTPRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	n := utf8.RuneCountInString(r.EntrepreneurName)
	if n < 2 || n > 100 {
		return dErrors.New(dErrors.CodeValidation, MsgInvalidName)
	}
	if !aadhaarPattern.MatchString(r.AadhaarNumber) {
		return dErrors.New(dErrors.CodeValidation, MsgInvalidAadhaar)
	}
	if !namePattern.MatchString(r.EntrepreneurName) {
		return dErrors.New(dErrors.CodeValidation, MsgInvalidName)
	}
	return nil
}

type ValidateOTPRequest struct {
	AadhaarNumber string `json:"aadhaar_number"`
	OTP           string `json:"otp"`
}

func (r *ValidateOTPRequest) Normalize() {
	if r == nil {
		return
	}
	r.AadhaarNumber = strings.TrimSpace(r.AadhaarNumber)
	r.OTP = strings.TrimSpace(r.OTP)
}

func (r *ValidateOTPRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if !aadhaarPattern.MatchString(r.AadhaarNumber) {
		return dErrors.New(dErrors.CodeValidation, MsgInvalidAadhaar)
	}
	if !otpPattern.MatchString(r.OTP) {
		return dErrors.New(dErrors.CodeValidation, MsgInvalidOTP)
	}
	return nil
}

type ValidatePANRequest struct {
	OrganizationType OrganizationType `json:"organization_type"`
	PANNumber        string           `json:"pan_number"`
	GSTIN            string           `json:"gstin,omitempty"`
	FiledITR         string           `json:"filed_itr"`
}

func (r *ValidatePANRequest) Normalize() {
	if r == nil {
		return
	}
	r.OrganizationType = OrganizationType(strings.TrimSpace(strings.ToLower(string(r.OrganizationType))))
	r.PANNumber = strings.ToUpper(strings.TrimSpace(r.PANNumber))
	r.GSTIN = strings.ToUpper(strings.TrimSpace(r.GSTIN))
	r.FiledITR = strings.TrimSpace(strings.ToLower(r.FiledITR))
}

// Validate checks syntax only. The PAN holder rule is checked separately so
// the service can report an existing registration first.
func (r *ValidatePANRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if !r.OrganizationType.IsValid() {
		return dErrors.New(dErrors.CodeValidation, MsgInvalidOrgType)
	}
	if !panPattern.MatchString(r.PANNumber) {
		return dErrors.New(dErrors.CodeValidation, MsgInvalidPAN)
	}
	if r.GSTIN != "" && !gstinPattern.MatchString(r.GSTIN) {
		return dErrors.New(dErrors.CodeValidation, MsgInvalidGSTIN)
	}
	if r.FiledITR != "yes" && r.FiledITR != "no" {
		return dErrors.New(dErrors.CodeValidation, MsgInvalidITR)
	}
	return nil
}

// CheckConsistency enforces the cross-field rules: the PAN's holder type must
// match the organization type and a GSTIN must embed the PAN.
func (r *ValidatePANRequest) CheckConsistency() error {
	if !r.OrganizationType.MatchesPAN(r.PANNumber) {
		return dErrors.New(dErrors.CodeValidation, MsgPANOrgMismatch)
	}
	if r.GSTIN != "" && r.GSTIN[2:12] != r.PANNumber {
		return dErrors.New(dErrors.CodeValidation, MsgGSTINPANMismatch)
	}
	return nil
}

func (r *ValidatePANRequest) Details() PANDetails {
	return PANDetails{
		OrganizationType: r.OrganizationType,
		PANNumber:        r.PANNumber,
		GSTIN:            r.GSTIN,
		FiledITR:         r.FiledITR,
	}
}

// OTPChallengeResult is returned after an OTP was issued.
type OTPChallengeResult struct {
	SentTo    string
	ExpiresIn time.Duration
	Mock      bool
}

// OTPVerification is returned after a successful OTP check.
type OTPVerification struct {
	Token          string
	RegistrationID string
	ExpiresIn      time.Duration
}

// PANVerification is returned by a PAN check. AlreadyRegistered is the only
// non-error negative outcome.
type PANVerification struct {
	AlreadyRegistered bool
	Details           PANDetails
}

// Completion is returned after submission.
type Completion struct {
	UdyamNumber     string
	ReferenceNumber string
	CompletedAt     time.Time
}

// StatusView is the public projection of a registration.
type StatusView struct {
	Status        Status     `json:"status"`
	StepCompleted *int       `json:"step_completed,omitempty"`
	UdyamNumber   string     `json:"udyam_number,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// NewStatusView projects r; a nil registration is reported as not started.
func NewStatusView(r *Registration) StatusView {
	if r == nil {
		return StatusView{Status: StatusNotStarted}
	}
	step := r.StepCompleted
	created := r.CreatedAt
	return StatusView{
		Status:        r.Status,
		StepCompleted: &step,
		UdyamNumber:   r.UdyamNumber,
		CreatedAt:     &created,
		CompletedAt:   r.CompletedAt,
	}
}
