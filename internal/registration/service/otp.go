package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"udyam/internal/registration/models"
	"udyam/internal/registration/ports"
	dErrors "udyam/pkg/domain-errors"
	audit "udyam/pkg/platform/audit"
	"udyam/pkg/platform/sentinel"
	"udyam/pkg/requestcontext"
	"udyam/pkg/secrets"
)

const otpLength = 6

var defaultCodeGenerator = secrets.GenerateDigits

// GenerateOTP issues a fresh OTP for an Aadhaar that has no submitted
// registration, replacing any earlier challenge. In mock mode nothing is
// stored or sent and the configured mock code is accepted later.
func (s *Service) GenerateOTP(ctx context.Context, req *models.GenerateOTPRequest) (_ *models.OTPChallengeResult, err error) {
	ctx, finish := s.startSpan(ctx, "registration.generate_otp")
	defer func() { finish(err) }()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.registrations.FindByAadhaar(ctx, req.AadhaarNumber)
	switch {
	case err == nil && existing.Status != models.StatusDraft:
		s.emit(ctx, audit.EventOTPGenerationRejected, existing.ID, req.AadhaarNumber, "denied", "aadhaar_in_use")
		return nil, dErrors.New(dErrors.CodeConflict, models.MsgAadhaarInUse)
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up registration")
	}

	mobile, err := s.directory.MobileFor(ctx, req.AadhaarNumber)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve mobile number")
	}
	result := &models.OTPChallengeResult{
		SentTo:    ports.MaskMobile(mobile),
		ExpiresIn: s.cfg.OTPTTL,
		Mock:      s.cfg.Mock,
	}
	if s.cfg.Mock {
		s.emit(ctx, audit.EventOTPGenerated, uuid.Nil, req.AadhaarNumber, "mock", "")
		return result, nil
	}

	code, err := s.generateCode(otpLength)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate otp")
	}
	hash, err := secrets.HashWithCost(code, s.cfg.BcryptCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash otp")
	}

	now := requestcontext.Now(ctx)
	err = s.challenges.Save(ctx, models.OTPChallenge{
		AadhaarNumber:    req.AadhaarNumber,
		EntrepreneurName: req.EntrepreneurName,
		CodeHash:         hash,
		ExpiresAt:        now.Add(s.cfg.OTPTTL),
		CreatedAt:        now,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store otp")
	}

	sendCtx, span := s.tracer.Start(ctx, "registration.send_otp")
	err = s.sender.SendOTP(sendCtx, mobile, code)
	span.End()
	if err != nil {
		_ = s.challenges.Delete(ctx, req.AadhaarNumber)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to send otp")
	}

	s.emit(ctx, audit.EventOTPGenerated, uuid.Nil, req.AadhaarNumber, "issued", "")
	if s.metrics != nil {
		s.metrics.IncOTPGenerated()
	}
	return result, nil
}

// ValidateOTP checks the code, consumes the challenge, records the Aadhaar
// step on a draft registration and returns a session token for the PAN step.
// A challenge is discarded after MaxAttempts wrong codes.
func (s *Service) ValidateOTP(ctx context.Context, req *models.ValidateOTPRequest) (_ *models.OTPVerification, err error) {
	ctx, finish := s.startSpan(ctx, "registration.validate_otp")
	defer func() { finish(err) }()

	req.Normalize()
	mockMatch := s.cfg.Mock && req.OTP == s.cfg.MockCode
	if mockMatch {
		if !models.ValidAadhaar(req.AadhaarNumber) {
			return nil, dErrors.New(dErrors.CodeValidation, models.MsgInvalidAadhaar)
		}
	} else if err := req.Validate(); err != nil {
		return nil, err
	}

	name := ""
	if !s.cfg.Mock {
		challenge, err := s.checkChallenge(ctx, req)
		if err != nil {
			return nil, err
		}
		name = challenge.EntrepreneurName
	} else if !mockMatch {
		s.otpFailed(ctx, req.AadhaarNumber, "mismatch")
		return nil, dErrors.New(dErrors.CodeValidation, models.MsgOTPIncorrect)
	}

	var reg *models.Registration
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		reg, err = s.recordAadhaarStep(ctx, req.AadhaarNumber, name)
		return err
	})
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.GenerateSessionToken(reg.ID, reg.AadhaarNumber, s.cfg.TokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue session token")
	}

	s.emit(ctx, audit.EventOTPVerified, reg.ID, req.AadhaarNumber, "verified", "")
	if s.metrics != nil {
		s.metrics.IncOTPVerification("verified")
	}
	return &models.OTPVerification{
		Token:          token,
		RegistrationID: reg.ID.String(),
		ExpiresIn:      s.cfg.TokenTTL,
	}, nil
}

func (s *Service) checkChallenge(ctx context.Context, req *models.ValidateOTPRequest) (*models.OTPChallenge, error) {
	challenge, err := s.challenges.Find(ctx, req.AadhaarNumber)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.otpFailed(ctx, req.AadhaarNumber, "no_challenge")
			return nil, dErrors.New(dErrors.CodeValidation, models.MsgOTPIncorrect)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load otp")
	}

	if err := secrets.Verify(req.OTP, challenge.CodeHash); err != nil {
		if !dErrors.Is(err, dErrors.CodeInvalidInput) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify otp")
		}
		attempts, incErr := s.challenges.IncrementAttempts(ctx, req.AadhaarNumber)
		if incErr != nil && !errors.Is(incErr, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(incErr, dErrors.CodeInternal, "failed to record otp attempt")
		}
		if attempts >= s.cfg.MaxAttempts {
			_ = s.challenges.Delete(ctx, req.AadhaarNumber)
			s.emit(ctx, audit.EventOTPLockedOut, uuid.Nil, req.AadhaarNumber, "denied", "too_many_attempts")
			if s.metrics != nil {
				s.metrics.IncOTPVerification("locked_out")
			}
			return nil, dErrors.New(dErrors.CodeRateLimited, models.MsgOTPLocked)
		}
		s.otpFailed(ctx, req.AadhaarNumber, "mismatch")
		return nil, dErrors.New(dErrors.CodeValidation, models.MsgOTPIncorrect)
	}

	if err := s.challenges.Delete(ctx, req.AadhaarNumber); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume otp")
	}
	return challenge, nil
}

func (s *Service) otpFailed(ctx context.Context, aadhaarNumber, reason string) {
	s.emit(ctx, audit.EventOTPVerificationFailed, uuid.Nil, aadhaarNumber, "denied", reason)
	if s.metrics != nil {
		s.metrics.IncOTPVerification("failed")
	}
}

// recordAadhaarStep creates the draft or bumps an existing one. A concurrent
// create for the same Aadhaar is resolved by reloading.
func (s *Service) recordAadhaarStep(ctx context.Context, aadhaarNumber, name string) (*models.Registration, error) {
	now := requestcontext.Now(ctx)
	reg, err := s.registrations.FindByAadhaar(ctx, aadhaarNumber)
	if errors.Is(err, sentinel.ErrNotFound) {
		reg = models.NewDraft(uuid.New(), aadhaarNumber, name, now)
		err = s.registrations.Create(ctx, reg)
		if err == nil {
			return reg, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create registration")
		}
		reg, err = s.registrations.FindByAadhaar(ctx, aadhaarNumber)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}
	if reg.IsCompleted() {
		return nil, dErrors.New(dErrors.CodeConflict, models.MsgAadhaarInUse)
	}

	if name != "" {
		reg.EntrepreneurName = name
	}
	reg.MarkStep(models.StepAadhaarVerified, now)
	if err := s.registrations.Update(ctx, reg); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update registration")
	}
	return reg, nil
}
