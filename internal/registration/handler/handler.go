package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"udyam/internal/platform/metrics"
	"udyam/internal/platform/middleware"
	"udyam/internal/registration/models"
	dErrors "udyam/pkg/domain-errors"
	"udyam/pkg/platform/httputil"
	"udyam/pkg/requestcontext"
)

// Service defines the registration operations exposed over HTTP.
type Service interface {
	GenerateOTP(ctx context.Context, req *models.GenerateOTPRequest) (*models.OTPChallengeResult, error)
	ValidateOTP(ctx context.Context, req *models.ValidateOTPRequest) (*models.OTPVerification, error)
	ValidatePAN(ctx context.Context, registrationID uuid.UUID, req *models.ValidatePANRequest) (*models.PANVerification, error)
	Submit(ctx context.Context, registrationID uuid.UUID) (*models.Completion, error)
	Status(ctx context.Context, aadhaarNumber string) (*models.StatusView, error)
}

// Handler serves the registration API.
type Handler struct {
	service  Service
	logger   *slog.Logger
	metrics  *metrics.Metrics
	sessions middleware.SessionValidator
	otpLimit func(http.Handler) http.Handler
}

// New creates a registration Handler. otpLimit guards OTP generation and may
// be nil to leave it unlimited.
func New(
	service Service,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	sessions middleware.SessionValidator,
	otpLimit func(http.Handler) http.Handler) *Handler {
	return &Handler{
		service:  service,
		logger:   logger,
		metrics:  metrics,
		sessions: sessions,
		otpLimit: otpLimit,
	}
}

// Register registers the registration routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	api := chi.NewRouter()
	api.Use(middleware.Recovery(h.logger))
	api.Use(middleware.RequestID)
	api.Use(middleware.Logger(h.logger))
	api.Use(middleware.Timeout(30 * time.Second))
	api.Use(middleware.ContentTypeJSON)
	api.Use(middleware.LatencyMiddleware(h.metrics))
	api.Use(middleware.ClientMetadata)

	api.Group(func(r chi.Router) {
		if h.otpLimit != nil {
			r.Use(h.otpLimit)
		}
		r.Post("/api/generate-otp", h.handleGenerateOTP)
	})
	api.Post("/api/validate-otp", h.handleValidateOTP)
	api.With(middleware.OptionalSession(h.sessions, h.logger)).
		Post("/api/validate-pan", h.handleValidatePAN)
	api.With(middleware.RequireSession(h.sessions, h.logger)).
		Post("/api/submit-registration", h.handleSubmit)
	api.Get("/api/registration-status/{aadhaar}", h.handleStatus)

	r.Mount("/", api)
}

func (h *Handler) handleGenerateOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.GenerateOTPRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "invalid generate otp request", err)
		return
	}

	res, err := h.service.GenerateOTP(ctx, &req)
	if err != nil {
		h.fail(w, r, "failed to generate otp", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, generateOTPResponse{
		Success:   true,
		Message:   "OTP sent to registered mobile number",
		ExpiresIn: int(res.ExpiresIn.Seconds()),
		SentTo:    res.SentTo,
		Mock:      res.Mock,
	})
}

func (h *Handler) handleValidateOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.ValidateOTPRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "invalid validate otp request", err)
		return
	}

	res, err := h.service.ValidateOTP(ctx, &req)
	if err != nil {
		h.fail(w, r, "failed to validate otp", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, validateOTPResponse{
		Success:        true,
		Message:        "Aadhaar verified successfully",
		Token:          res.Token,
		RegistrationID: res.RegistrationID,
		ExpiresIn:      int(res.ExpiresIn.Seconds()),
	})
}

func (h *Handler) handleValidatePAN(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.ValidatePANRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "invalid validate pan request", err)
		return
	}

	res, err := h.service.ValidatePAN(ctx, requestcontext.RegistrationID(ctx), &req)
	if err != nil {
		h.fail(w, r, "failed to validate pan", err)
		return
	}
	if res.AlreadyRegistered {
		httputil.WriteJSON(w, http.StatusBadRequest, panRegisteredResponse{
			Error:             "pan_already_registered",
			ErrorDescription:  models.MsgPANAlreadyRegistered,
			AlreadyRegistered: true,
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, validatePANResponse{
		Success: true,
		Message: "PAN verified successfully",
		PANDetails: panDetails{
			PANNumber:        res.Details.PANNumber,
			OrganizationType: res.Details.OrganizationType,
			Valid:            true,
		},
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.service.Submit(ctx, requestcontext.RegistrationID(ctx))
	if err != nil {
		h.fail(w, r, "failed to submit registration", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, submitResponse{
		Success:         true,
		Message:         "Registration completed successfully",
		UdyamNumber:     res.UdyamNumber,
		ReferenceNumber: res.ReferenceNumber,
		CompletedAt:     res.CompletedAt,
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Status(r.Context(), chi.URLParam(r, "aadhaar"))
	if err != nil {
		h.fail(w, r, "failed to get registration status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// fail logs client errors at warn and everything else at error, then writes
// the error envelope.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	level := slog.LevelError
	if code := dErrors.CodeOf(err); code != dErrors.CodeInternal {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, msg,
		"request_id", middleware.GetRequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
