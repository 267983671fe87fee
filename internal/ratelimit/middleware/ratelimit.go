package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"udyam/internal/ratelimit/metrics"
	"udyam/internal/ratelimit/models"
	audit "udyam/pkg/platform/audit"
	"udyam/pkg/platform/httputil"
	"udyam/pkg/requestcontext"
)

// StatusHeader is set to "degraded" while the in-memory fallback answers.
const StatusHeader = "X-RateLimit-Status"

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Middleware struct {
	store          *fallbackStore
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
	disabled       bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (mock and development mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(m *Middleware) {
		m.auditPublisher = publisher
	}
}

// New wraps store with an in-memory fallback used while store is failing.
func New(store Store, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	m.store = newFallbackStore(store, logger, m.metrics)
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit limits requests per client IP under policy. It expects
// ClientMetadata to have run.
func (m *Middleware) RateLimit(policy models.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)
			result, degraded, err := m.store.Allow(ctx, policy.Key(ip), policy.Limit, policy.Window)
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check rate limit",
					"request_id", requestcontext.RequestID(ctx),
					"policy", policy.Name,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}
			if degraded {
				w.Header().Set(StatusHeader, "degraded")
			}
			if m.metrics != nil {
				m.metrics.IncDecision(policy.Name, result.Allowed)
			}

			// Add headers regardless of outcome
			addRateLimitHeaders(w, result)

			if !result.Allowed {
				m.logExceeded(ctx, policy, ip)
				writeRateLimitExceeded(w, policy, result)
				return
			}
			if !policy.SkipFailed {
				next.ServeHTTP(w, r)
				return
			}

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			if sw.status >= http.StatusBadRequest {
				if err := m.store.Release(ctx, policy.Key(ip), degraded); err != nil {
					m.logger.WarnContext(ctx, "failed to release rate limit hit",
						"request_id", requestcontext.RequestID(ctx),
						"policy", policy.Name,
						"error", err,
					)
				}
			}
		})
	}
}

func (m *Middleware) logExceeded(ctx context.Context, policy models.Policy, ip string) {
	requestID := requestcontext.RequestID(ctx)
	m.logger.InfoContext(ctx, string(audit.EventRateLimitExceeded),
		"request_id", requestID,
		"policy", policy.Name,
		"log_type", "audit",
	)
	if m.auditPublisher == nil {
		return
	}
	err := m.auditPublisher.Emit(ctx, audit.Event{
		Action:    string(audit.EventRateLimitExceeded),
		Decision:  "denied",
		Reason:    policy.Name,
		RequestID: requestID,
		ClientIP:  ip,
		Device:    requestcontext.Device(ctx),
	})
	if err != nil {
		m.logger.WarnContext(ctx, "failed to emit audit event", "request_id", requestID, "error", err)
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, policy models.Policy, result *models.RateLimitResult) {
	msg := policy.Message
	if msg == "" {
		msg = "Too many requests, please try again later"
	}
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    msg,
		RetryAfter: result.RetryAfter,
	})
}

// statusWriter records the status the handler wrote.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
