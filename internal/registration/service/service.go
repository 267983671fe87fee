package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"udyam/internal/registration/metrics"
	"udyam/internal/registration/models"
	"udyam/internal/registration/ports"
	audit "udyam/pkg/platform/audit"
	txcontext "udyam/pkg/platform/tx"
	"udyam/pkg/requestcontext"
)

type RegistrationStore interface {
	Create(ctx context.Context, reg *models.Registration) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	FindByAadhaar(ctx context.Context, aadhaarNumber string) (*models.Registration, error)
	HasCompletedPAN(ctx context.Context, pan string) (bool, error)
	Update(ctx context.Context, reg *models.Registration) error
}

type ChallengeStore interface {
	Save(ctx context.Context, challenge models.OTPChallenge) error
	Find(ctx context.Context, aadhaarNumber string) (*models.OTPChallenge, error)
	IncrementAttempts(ctx context.Context, aadhaarNumber string) (int, error)
	Delete(ctx context.Context, aadhaarNumber string) error
}

type TokenIssuer interface {
	GenerateSessionToken(registrationID uuid.UUID, aadhaarNumber string, expiresIn time.Duration) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Config holds the policy knobs of the registration flow.
type Config struct {
	OTPTTL       time.Duration
	MaxAttempts  int
	Mock         bool
	MockCode     string
	TokenTTL     time.Duration
	StateCode    string
	DistrictCode string
	// BcryptCost defaults to bcrypt.DefaultCost. Tests use bcrypt.MinCost.
	BcryptCost int
}

func (c *Config) applyDefaults() {
	if c.OTPTTL <= 0 {
		c.OTPTTL = 10 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.MockCode == "" {
		c.MockCode = "123456"
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = time.Hour
	}
	if c.StateCode == "" {
		c.StateCode = "27"
	}
	if c.DistrictCode == "" {
		c.DistrictCode = "01"
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
}

const defaultMobile = "9876543210"

// Service runs the Aadhaar OTP, PAN verification and submission steps of a
// Udyam registration.
type Service struct {
	registrations  RegistrationStore
	challenges     ChallengeStore
	tokens         TokenIssuer
	directory      ports.MobileDirectory
	sender         ports.OTPSender
	tx             txcontext.Runner
	cfg            Config
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	generateCode   func(n int) (string, error)
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTxRunner makes submission and step updates atomic with their audit
// rows. Defaults to running without a transaction.
func WithTxRunner(runner txcontext.Runner) Option {
	return func(s *Service) {
		if runner != nil {
			s.tx = runner
		}
	}
}

func WithMobileDirectory(directory ports.MobileDirectory) Option {
	return func(s *Service) {
		if directory != nil {
			s.directory = directory
		}
	}
}

func WithOTPSender(sender ports.OTPSender) Option {
	return func(s *Service) {
		if sender != nil {
			s.sender = sender
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// New constructs a Service.
func New(registrations RegistrationStore, challenges ChallengeStore, tokens TokenIssuer, cfg Config, opts ...Option) *Service {
	cfg.applyDefaults()
	s := &Service{
		registrations: registrations,
		challenges:    challenges,
		tokens:        tokens,
		directory:     ports.StaticDirectory(defaultMobile),
		tx:            txcontext.NopRunner{},
		cfg:           cfg,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:        otel.Tracer("udyam/registration"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sender == nil {
		s.sender = ports.NewLogSender(s.logger)
	}
	if s.generateCode == nil {
		s.generateCode = defaultCodeGenerator
	}
	return s
}

// startSpan opens a span and returns a finish func that records err on it.
func (s *Service) startSpan(ctx context.Context, name string) (context.Context, func(err error)) {
	ctx, span := s.tracer.Start(ctx, name)
	start := time.Now()
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if s.metrics != nil {
			s.metrics.ObserveOperation(name, start)
		}
	}
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, registrationID uuid.UUID, aadhaarNumber, decision, reason string) {
	requestID := requestcontext.RequestID(ctx)
	s.logger.InfoContext(ctx, string(action),
		"request_id", requestID,
		"registration_id", registrationID,
		"decision", decision,
		"log_type", "audit",
	)
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		RegistrationID: registrationID,
		Subject:        audit.MaskAadhaar(aadhaarNumber),
		Action:         string(action),
		Decision:       decision,
		Reason:         reason,
		RequestID:      requestID,
		ClientIP:       requestcontext.ClientIP(ctx),
		Device:         requestcontext.Device(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"request_id", requestID,
			"action", string(action),
			"error", err,
		)
	}
}
