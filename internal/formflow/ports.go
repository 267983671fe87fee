package formflow

import (
	"context"
	"time"
)

// OTPIssuer asks the verification backend to send an OTP to the mobile
// number linked with an Aadhaar.
type OTPIssuer interface {
	IssueOTP(ctx context.Context, req OTPRequest) (*OTPIssued, error)
}

// OTPVerifier checks an OTP previously issued for an Aadhaar.
type OTPVerifier interface {
	VerifyOTP(ctx context.Context, req OTPCheck) (*OTPVerified, error)
}

// PANVerifier checks PAN details and reports whether the PAN already has a
// completed registration.
type PANVerifier interface {
	VerifyPAN(ctx context.Context, req PANCheck) (*PANVerified, error)
}

type OTPRequest struct {
	AadhaarNumber    string
	EntrepreneurName string
}

type OTPIssued struct {
	SentTo    string // masked mobile number
	ExpiresIn time.Duration
}

type OTPCheck struct {
	AadhaarNumber string
	OTP           string
}

type OTPVerified struct {
	// SessionToken authorises the PAN step; forwarded as-is to PANVerifier.
	SessionToken string
}

type PANCheck struct {
	OrganizationType string
	PANNumber        string
	GSTIN            string
	FiledITR         string
	SessionToken     string
}

type PANVerified struct {
	AlreadyRegistered bool
}

// Rejection is returned by a collaborator when the remote service answered but
// refused the request. Message is shown to the user verbatim.
type Rejection struct {
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}
