package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	"udyam/internal/formflow"
	"udyam/internal/formflow/schema"
	"udyam/internal/formsession"
	jwttoken "udyam/internal/jwt_token"
	"udyam/internal/platform/config"
	"udyam/internal/platform/metrics"
	"udyam/internal/platform/postgres"
	"udyam/internal/platform/redis"
	ratelimitmetrics "udyam/internal/ratelimit/metrics"
	ratelimit "udyam/internal/ratelimit/middleware"
	ratelimitmodels "udyam/internal/ratelimit/models"
	"udyam/internal/ratelimit/store/bucket"
	"udyam/internal/registration/adapters"
	"udyam/internal/registration/handler"
	regmetrics "udyam/internal/registration/metrics"
	"udyam/internal/registration/ports"
	"udyam/internal/registration/service"
	otpstore "udyam/internal/registration/store/otp"
	regstore "udyam/internal/registration/store/registration"
	audit "udyam/pkg/platform/audit"
	auditpublisher "udyam/pkg/platform/audit/publisher"
	"udyam/pkg/platform/audit/publishers/kafka"
	auditmemory "udyam/pkg/platform/audit/store/memory"
	auditpostgres "udyam/pkg/platform/audit/store/postgres"
	txcontext "udyam/pkg/platform/tx"
)

const (
	auditBufferSize  = 1024
	bucketSweepEvery = time.Minute
)

// app holds the wired components shared by the router and the background
// jobs.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	gatherer prometheus.Gatherer

	db    *sql.DB
	redis *redis.Client
	kafka *kgo.Client

	schema        *schema.Schema
	httpMetrics   *metrics.Metrics
	registrations *handler.Handler
	formSessions  *formsession.Handler
	audit         *auditpublisher.Publisher
	// apiLimit guards every /api route per client IP.
	apiLimit func(http.Handler) http.Handler

	background []func(ctx context.Context) error
}

// newApp connects the optional backing services and builds every component.
// Without DATABASE_URL, REDIS_URL or KAFKA_BROKERS the in-memory variants are
// used.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, reg *prometheus.Registry) (*app, error) {
	a := &app{cfg: cfg, logger: logger, gatherer: reg}

	formSchema, err := schema.Load()
	if err != nil {
		return nil, err
	}
	a.schema = formSchema

	if a.db, err = postgres.Open(ctx, cfg.Database); err != nil {
		return nil, err
	}
	if a.db != nil {
		if err := postgres.Migrate(ctx, a.db); err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("postgres connected")
	}

	if a.redis, err = redis.New(ctx, cfg.Redis); err != nil {
		a.Close()
		return nil, err
	}
	if a.redis != nil {
		logger.Info("redis connected")
	}

	publisher, err := a.buildAudit(ctx, reg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.audit = publisher

	tokens := jwttoken.NewJWTService(cfg.Session.JWTSecret, cfg.Session.Issuer)
	svc := a.buildService(tokens, reg)

	a.httpMetrics = metrics.NewWithRegisterer(reg)
	a.registrations = handler.New(
		svc,
		logger,
		a.httpMetrics,
		jwttoken.NewJWTServiceAdapter(tokens),
		a.buildLimits(reg),
	)

	adapter := adapters.NewFormflowAdapter(svc, tokens)
	manager := formsession.NewManager(
		func() *formflow.Engine {
			return formflow.New(adapter, adapter, adapter, formflow.WithLogger(logger))
		},
		cfg.Session.FormIdleTTL,
		formsession.WithLogger(logger),
		formsession.WithAuditPublisher(publisher),
		formsession.WithMaxSessions(cfg.Session.MaxFormCount),
	)
	a.formSessions = formsession.NewHandler(manager, logger, a.httpMetrics)
	a.background = append(a.background, func(ctx context.Context) error {
		return manager.Run(ctx, cfg.Session.SweepEvery)
	})

	return a, nil
}

func (a *app) buildAudit(ctx context.Context, reg prometheus.Registerer) (*auditpublisher.Publisher, error) {
	var store audit.Store = auditmemory.NewInMemoryStore()
	if a.db != nil {
		store = auditpostgres.New(a.db)
	}

	opts := []auditpublisher.Option{
		auditpublisher.WithLogger(a.logger),
		auditpublisher.WithAsyncBuffer(auditBufferSize),
	}
	if brokers := a.cfg.Kafka.Brokers; len(brokers) > 0 {
		client, err := kafka.NewClient(brokers, a.cfg.Kafka.AuditTopic)
		if err != nil {
			return nil, err
		}
		a.kafka = client
		if err := kafka.EnsureTopic(ctx, client, a.cfg.Kafka.AuditTopic); err != nil {
			a.logger.WarnContext(ctx, "could not ensure audit topic", "topic", a.cfg.Kafka.AuditTopic, "error", err)
		}
		opts = append(opts, auditpublisher.WithSink(kafka.New(client, a.cfg.Kafka.AuditTopic,
			kafka.WithLogger(a.logger),
			kafka.WithMetrics(kafka.NewMetricsWithRegisterer(reg)),
		)))
		a.logger.Info("audit events forwarded to kafka", "topic", a.cfg.Kafka.AuditTopic)
	}
	return auditpublisher.NewPublisher(store, opts...), nil
}

func (a *app) buildService(tokens *jwttoken.JWTService, reg prometheus.Registerer) *service.Service {
	var (
		registrations service.RegistrationStore = regstore.NewInMemory()
		challenges    service.ChallengeStore    = otpstore.NewInMemory()
		tx            txcontext.Runner          = txcontext.NopRunner{}
	)
	if a.db != nil {
		registrations = regstore.NewPostgres(a.db)
		tx = txcontext.NewPostgresRunner(a.db)
	}
	if a.redis != nil {
		challenges = otpstore.NewRedis(a.redis.Client)
	}

	cfg := a.cfg
	return service.New(registrations, challenges, tokens,
		service.Config{
			OTPTTL:       cfg.OTP.TTL,
			MaxAttempts:  cfg.OTP.MaxAttempts,
			Mock:         cfg.OTP.Mock,
			MockCode:     cfg.OTP.MockCode,
			TokenTTL:     cfg.Session.TokenTTL,
			StateCode:    cfg.Registration.StateCode,
			DistrictCode: cfg.Registration.DistrictCode,
		},
		service.WithLogger(a.logger),
		service.WithAuditPublisher(a.audit),
		service.WithMetrics(regmetrics.NewWithRegisterer(reg)),
		service.WithTxRunner(tx),
		service.WithMobileDirectory(ports.StaticDirectory(cfg.Registration.DevMobile)),
	)
}

// buildLimits builds the per-IP limiters and returns the OTP one for the
// registration handler; the API-wide one is kept for the router. Both share
// one store. The redis store is shared across instances; the memory store is
// swept in the background.
func (a *app) buildLimits(reg prometheus.Registerer) func(http.Handler) http.Handler {
	var store ratelimit.Store
	if a.redis != nil {
		store = bucket.NewRedis(a.redis.Client)
	} else {
		memory := bucket.New()
		store = memory
		a.background = append(a.background, func(ctx context.Context) error {
			return sweepBuckets(ctx, memory, a.logger)
		})
	}

	limiter := ratelimit.New(store, a.logger,
		ratelimit.WithDisabled(a.cfg.RateLimit.Disabled),
		ratelimit.WithMetrics(ratelimitmetrics.NewWithRegisterer(reg)),
		ratelimit.WithAuditPublisher(a.audit),
	)

	api := ratelimitmodels.APIPolicy
	api.Limit = a.cfg.RateLimit.APILimit
	api.Window = a.cfg.RateLimit.APIWindow
	a.apiLimit = limiter.RateLimit(api)

	otp := ratelimitmodels.OTPPolicy
	otp.Limit = a.cfg.RateLimit.OTPLimit
	otp.Window = a.cfg.RateLimit.OTPWindow
	return limiter.RateLimit(otp)
}

func sweepBuckets(ctx context.Context, store *bucket.InMemoryBucketStore, logger *slog.Logger) error {
	ticker := time.NewTicker(bucketSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if n := store.Sweep(now); n > 0 {
				logger.DebugContext(ctx, "swept idle rate limit buckets", "count", n)
			}
		}
	}
}

// Close drains the audit queue before releasing connections.
func (a *app) Close() {
	if a.audit != nil {
		a.audit.Close()
	}
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("closing redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("closing postgres", "error", err)
		}
	}
}

// health pings the configured backing services.
func (a *app) health(ctx context.Context) map[string]string {
	checks := map[string]string{}
	if a.db != nil {
		checks["postgres"] = status(a.db.PingContext(ctx))
	}
	if a.redis != nil {
		checks["redis"] = status(a.redis.Health(ctx))
	}
	return checks
}

func status(err error) string {
	if err != nil {
		return fmt.Sprintf("down: %v", err)
	}
	return "up"
}
