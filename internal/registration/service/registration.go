package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"udyam/internal/registration/models"
	regstore "udyam/internal/registration/store/registration"
	dErrors "udyam/pkg/domain-errors"
	audit "udyam/pkg/platform/audit"
	"udyam/pkg/platform/sentinel"
	"udyam/pkg/requestcontext"
)

const maxNumberAttempts = 3

// ValidatePAN checks PAN details. A PAN that is already on a completed
// registration is reported through AlreadyRegistered rather than an error.
// When registrationID is set the details are saved on that draft.
func (s *Service) ValidatePAN(ctx context.Context, registrationID uuid.UUID, req *models.ValidatePANRequest) (_ *models.PANVerification, err error) {
	ctx, finish := s.startSpan(ctx, "registration.validate_pan")
	defer func() { finish(err) }()

	req.Normalize()
	if err := req.Validate(); err != nil {
		s.panOutcome(ctx, audit.EventPANRejected, registrationID, "invalid")
		return nil, err
	}

	taken, err := s.registrations.HasCompletedPAN(ctx, req.PANNumber)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check pan")
	}
	if taken {
		s.panOutcome(ctx, audit.EventPANAlreadyRegistered, registrationID, "already_registered")
		return &models.PANVerification{AlreadyRegistered: true, Details: req.Details()}, nil
	}

	if err := req.CheckConsistency(); err != nil {
		s.panOutcome(ctx, audit.EventPANRejected, registrationID, "inconsistent")
		return nil, err
	}

	details := req.Details()
	if registrationID != uuid.Nil {
		err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
			reg, err := s.loadOpen(ctx, registrationID)
			if err != nil {
				return err
			}
			reg.ApplyPAN(details, requestcontext.Now(ctx))
			if err := s.registrations.Update(ctx, reg); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save pan details")
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	s.panOutcome(ctx, audit.EventPANVerified, registrationID, "verified")
	return &models.PANVerification{Details: details}, nil
}

func (s *Service) panOutcome(ctx context.Context, action audit.AuditEvent, registrationID uuid.UUID, outcome string) {
	decision := "denied"
	if action == audit.EventPANVerified {
		decision = "verified"
	}
	s.emit(ctx, action, registrationID, "", decision, outcome)
	if s.metrics != nil {
		s.metrics.IncPANVerification(outcome)
	}
}

// Submit issues the Udyam number for a registration whose Aadhaar and PAN
// steps are both complete. A colliding number is regenerated.
func (s *Service) Submit(ctx context.Context, registrationID uuid.UUID) (_ *models.Completion, err error) {
	ctx, finish := s.startSpan(ctx, "registration.submit")
	defer func() { finish(err) }()

	if registrationID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "session token is required")
	}

	var reg *models.Registration
	for attempt := 1; ; attempt++ {
		err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
			var err error
			reg, err = s.complete(ctx, registrationID)
			return err
		})
		if !errors.Is(err, regstore.ErrUdyamNumberTaken) || attempt == maxNumberAttempts {
			break
		}
		s.logger.WarnContext(ctx, "udyam number collision, retrying",
			"request_id", requestcontext.RequestID(ctx),
			"attempt", attempt,
		)
	}
	if err != nil {
		if errors.Is(err, regstore.ErrUdyamNumberTaken) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate udyam number")
		}
		return nil, err
	}

	s.emit(ctx, audit.EventRegistrationCompleted, reg.ID, reg.AadhaarNumber, "completed", "")
	if s.metrics != nil {
		s.metrics.IncCompleted()
	}
	return &models.Completion{
		UdyamNumber:     reg.UdyamNumber,
		ReferenceNumber: reg.ReferenceNumber,
		CompletedAt:     *reg.CompletedAt,
	}, nil
}

func (s *Service) complete(ctx context.Context, registrationID uuid.UUID) (*models.Registration, error) {
	reg, err := s.loadOpen(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if !reg.ReadyToSubmit() {
		return nil, dErrors.New(dErrors.CodeValidation, models.MsgNotReady)
	}

	number, err := s.udyamNumber(reg.GSTIN)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate udyam number")
	}
	now := requestcontext.Now(ctx)
	reg.Complete(number, fmt.Sprintf("REF%d", now.UnixMilli()), now)

	err = s.registrations.Update(ctx, reg)
	switch {
	case err == nil:
		return reg, nil
	case errors.Is(err, regstore.ErrUdyamNumberTaken):
		return nil, err
	case errors.Is(err, sentinel.ErrConflict):
		return nil, dErrors.New(dErrors.CodeConflict, models.MsgPANAlreadyRegistered)
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to complete registration")
	}
}

// loadOpen fetches a registration that has not been submitted yet.
func (s *Service) loadOpen(ctx context.Context, registrationID uuid.UUID) (*models.Registration, error) {
	reg, err := s.registrations.FindByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, models.MsgRegistrationNotFound)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}
	if reg.IsCompleted() {
		return nil, dErrors.New(dErrors.CodeConflict, models.MsgAlreadySubmitted)
	}
	return reg, nil
}

// udyamNumber builds UDYAM-<state>-<district>-<7 digits>. The state comes from
// the GSTIN when one was given.
func (s *Service) udyamNumber(gstin string) (string, error) {
	state := s.cfg.StateCode
	if len(gstin) >= 2 {
		state = gstin[:2]
	}
	digits, err := s.generateCode(7)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("UDYAM-%s-%s-%s", state, s.cfg.DistrictCode, digits), nil
}

// Status reports the public view of the registration for an Aadhaar.
func (s *Service) Status(ctx context.Context, aadhaarNumber string) (_ *models.StatusView, err error) {
	ctx, finish := s.startSpan(ctx, "registration.status")
	defer func() { finish(err) }()

	if !models.ValidAadhaar(aadhaarNumber) {
		return nil, dErrors.New(dErrors.CodeValidation, models.MsgInvalidAadhaar)
	}
	reg, err := s.registrations.FindByAadhaar(ctx, aadhaarNumber)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			view := models.NewStatusView(nil)
			return &view, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}
	view := models.NewStatusView(reg)
	return &view, nil
}
