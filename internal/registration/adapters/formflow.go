// Package adapters exposes the registration service through the formflow
// collaborator ports so server-hosted form sessions run in process.
package adapters

import (
	"context"

	"github.com/google/uuid"

	"udyam/internal/formflow"
	"udyam/internal/registration/models"
	dErrors "udyam/pkg/domain-errors"
)

// Service is the subset of the registration service the form engine drives.
type Service interface {
	GenerateOTP(ctx context.Context, req *models.GenerateOTPRequest) (*models.OTPChallengeResult, error)
	ValidateOTP(ctx context.Context, req *models.ValidateOTPRequest) (*models.OTPVerification, error)
	ValidatePAN(ctx context.Context, registrationID uuid.UUID, req *models.ValidatePANRequest) (*models.PANVerification, error)
}

// TokenParser resolves a session token to its registration.
type TokenParser interface {
	ExtractRegistrationID(token string) (uuid.UUID, error)
}

// FormflowAdapter implements formflow.OTPIssuer, OTPVerifier and PANVerifier
// by calling the registration service directly.
type FormflowAdapter struct {
	service Service
	tokens  TokenParser
}

func NewFormflowAdapter(service Service, tokens TokenParser) *FormflowAdapter {
	return &FormflowAdapter{service: service, tokens: tokens}
}

var (
	_ formflow.OTPIssuer   = (*FormflowAdapter)(nil)
	_ formflow.OTPVerifier = (*FormflowAdapter)(nil)
	_ formflow.PANVerifier = (*FormflowAdapter)(nil)
)

func (a *FormflowAdapter) IssueOTP(ctx context.Context, req formflow.OTPRequest) (*formflow.OTPIssued, error) {
	res, err := a.service.GenerateOTP(ctx, &models.GenerateOTPRequest{
		AadhaarNumber:    req.AadhaarNumber,
		EntrepreneurName: req.EntrepreneurName,
	})
	if err != nil {
		return nil, toRejection(err)
	}
	return &formflow.OTPIssued{SentTo: res.SentTo, ExpiresIn: res.ExpiresIn}, nil
}

func (a *FormflowAdapter) VerifyOTP(ctx context.Context, req formflow.OTPCheck) (*formflow.OTPVerified, error) {
	res, err := a.service.ValidateOTP(ctx, &models.ValidateOTPRequest{
		AadhaarNumber: req.AadhaarNumber,
		OTP:           req.OTP,
	})
	if err != nil {
		return nil, toRejection(err)
	}
	return &formflow.OTPVerified{SessionToken: res.Token}, nil
}

// VerifyPAN saves the details on the session's registration when the engine
// carries a token. An invalid token is rejected like the HTTP API does.
func (a *FormflowAdapter) VerifyPAN(ctx context.Context, req formflow.PANCheck) (*formflow.PANVerified, error) {
	registrationID := uuid.Nil
	if req.SessionToken != "" {
		id, err := a.tokens.ExtractRegistrationID(req.SessionToken)
		if err != nil {
			return nil, &formflow.Rejection{Message: "Invalid or expired token"}
		}
		registrationID = id
	}

	res, err := a.service.ValidatePAN(ctx, registrationID, &models.ValidatePANRequest{
		OrganizationType: models.OrganizationType(req.OrganizationType),
		PANNumber:        req.PANNumber,
		GSTIN:            req.GSTIN,
		FiledITR:         req.FiledITR,
	})
	if err != nil {
		return nil, toRejection(err)
	}
	return &formflow.PANVerified{AlreadyRegistered: res.AlreadyRegistered}, nil
}

// toRejection turns client-facing domain errors into rejections. Internal
// failures stay plain errors so the engine shows its generic message.
func toRejection(err error) error {
	de, ok := dErrors.As(err)
	if !ok || de.Code == dErrors.CodeInternal {
		return err
	}
	return &formflow.Rejection{Message: de.Message}
}
