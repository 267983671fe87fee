package middleware

import (
	"context"
	"log/slog"
	"time"

	"udyam/internal/ratelimit/metrics"
	"udyam/internal/ratelimit/models"
	"udyam/internal/ratelimit/store/bucket"
	"udyam/pkg/platform/circuit"
)

// Store is a sliding window bucket store.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
	Release(ctx context.Context, key string) error
}

// fallbackStore serves checks from an in-memory store while the primary store
// keeps failing. The breaker opens after repeated errors and closes again
// after consecutive primary successes.
type fallbackStore struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func newFallbackStore(primary Store, logger *slog.Logger, m *metrics.Metrics) *fallbackStore {
	return &fallbackStore{
		primary:  primary,
		fallback: bucket.New(),
		breaker: circuit.New("ratelimit",
			circuit.WithFailureThreshold(5),
			circuit.WithSuccessThreshold(1),
			circuit.WithCooldown(10*time.Second),
		),
		logger:  logger,
		metrics: m,
	}
}

// Allow reports degraded=true when the answer came from the fallback.
func (f *fallbackStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, bool, error) {
	if !f.breaker.Allow() {
		res, err := f.fallback.Allow(ctx, key, limit, window)
		return res, true, err
	}

	res, err := f.primary.Allow(ctx, key, limit, window)
	if err != nil {
		if f.metrics != nil {
			f.metrics.IncStoreErrors()
		}
		if _, change := f.breaker.RecordFailure(); change.Opened {
			f.logger.WarnContext(ctx, "rate limit store unavailable, using in-memory fallback", "error", err)
			if f.metrics != nil {
				f.metrics.SetFallback(true)
			}
		}
		res, ferr := f.fallback.Allow(ctx, key, limit, window)
		return res, true, ferr
	}

	if _, change := f.breaker.RecordSuccess(); change.Closed {
		f.logger.InfoContext(ctx, "rate limit store recovered")
		if f.metrics != nil {
			f.metrics.SetFallback(false)
		}
	}
	return res, false, nil
}

// Release returns a hit to whichever store recorded it.
func (f *fallbackStore) Release(ctx context.Context, key string, degraded bool) error {
	if degraded {
		return f.fallback.Release(ctx, key)
	}
	return f.primary.Release(ctx, key)
}
