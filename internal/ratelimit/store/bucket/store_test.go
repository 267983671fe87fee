package bucket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"udyam/internal/ratelimit/models"
	"udyam/pkg/requestcontext"
)

const (
	testLimit  = 3
	testWindow = 5 * time.Minute
)

type bucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
	Reset(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
	GetCurrentCount(ctx context.Context, key string) (int, error)
}

type BucketStoreSuite struct {
	suite.Suite
	newStore func(t *testing.T) bucketStore
	store    bucketStore
	now      time.Time
}

func TestInMemoryBucketStore(t *testing.T) {
	suite.Run(t, &BucketStoreSuite{newStore: func(*testing.T) bucketStore { return New() }})
}

func TestRedisBucketStore(t *testing.T) {
	suite.Run(t, &BucketStoreSuite{newStore: func(t *testing.T) bucketStore {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return NewRedis(client)
	}})
}

func (s *BucketStoreSuite) SetupTest() {
	s.store = s.newStore(s.T())
	s.now = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
}

func (s *BucketStoreSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.now.Add(offset))
}

func (s *BucketStoreSuite) TestAllowUpToLimit() {
	for i := range testLimit {
		res, err := s.store.Allow(s.at(time.Duration(i)*time.Second), "k", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(testLimit, res.Limit)
		s.Equal(testLimit-i-1, res.Remaining)
		s.Equal(s.now.Add(testWindow), res.ResetAt)
	}

	res, err := s.store.Allow(s.at(time.Minute), "k", testLimit, testWindow)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal(0, res.Remaining)
	s.Equal(240, res.RetryAfter)

	count, err := s.store.GetCurrentCount(s.at(time.Minute), "k")
	s.Require().NoError(err)
	s.Equal(testLimit, count, "rejected requests are not recorded")
}

func (s *BucketStoreSuite) TestResetAtIsUTC() {
	res, err := s.store.Allow(s.at(0), "k", testLimit, testWindow)
	s.Require().NoError(err)
	s.Equal(time.UTC, res.ResetAt.Location())
}

func (s *BucketStoreSuite) TestReleaseReturnsNewestHit() {
	for i := range testLimit {
		_, err := s.store.Allow(s.at(time.Duration(i)*time.Minute), "k", testLimit, testWindow)
		s.Require().NoError(err)
	}
	s.Require().NoError(s.store.Release(s.at(2*time.Minute), "k"))

	count, err := s.store.GetCurrentCount(s.at(2*time.Minute), "k")
	s.Require().NoError(err)
	s.Equal(testLimit-1, count)

	res, err := s.store.Allow(s.at(3*time.Minute), "k", testLimit, testWindow)
	s.Require().NoError(err)
	s.True(res.Allowed)
	s.Equal(s.now.Add(testWindow), res.ResetAt, "the oldest hit still bounds the window")

	s.NoError(s.store.Release(s.at(0), "missing"), "releasing an unknown key is a no-op")
}

func (s *BucketStoreSuite) TestWindowSlides() {
	for i := range testLimit {
		_, err := s.store.Allow(s.at(time.Duration(i)*time.Minute), "k", testLimit, testWindow)
		s.Require().NoError(err)
	}

	res, err := s.store.Allow(s.at(testWindow+time.Second), "k", testLimit, testWindow)
	s.Require().NoError(err)
	s.True(res.Allowed, "oldest request aged out")
	s.Equal(0, res.Remaining)
}

func (s *BucketStoreSuite) TestKeysAreIndependent() {
	for range testLimit {
		_, err := s.store.Allow(s.at(0), "a", testLimit, testWindow)
		s.Require().NoError(err)
	}
	res, err := s.store.Allow(s.at(0), "b", testLimit, testWindow)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *BucketStoreSuite) TestReset() {
	for range testLimit {
		_, err := s.store.Allow(s.at(0), "k", testLimit, testWindow)
		s.Require().NoError(err)
	}
	s.Require().NoError(s.store.Reset(s.at(0), "k"))

	res, err := s.store.Allow(s.at(0), "k", testLimit, testWindow)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *BucketStoreSuite) TestConcurrentAllowNeverExceedsLimit() {
	const limit = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.store.Allow(s.at(0), "k", limit, testWindow)
			if err == nil && res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(limit, allowed)
}

func TestInMemorySweep(t *testing.T) {
	store := New()
	now := time.Now()
	_, _ = store.Allow(requestcontext.WithTime(context.Background(), now), "k", 1, time.Minute)

	if n := store.Sweep(now); n != 0 {
		t.Fatalf("expected live bucket to survive, swept %d", n)
	}
	if n := store.Sweep(now.Add(2 * time.Minute)); n != 1 {
		t.Fatalf("expected expired bucket to be swept, swept %d", n)
	}
}

func BenchmarkAllow(b *testing.B) {
	store := New()
	ctx := context.Background()
	for b.Loop() {
		_, _ = store.Allow(ctx, "bench-key", 1000, time.Minute)
	}
}

func BenchmarkAllow_Parallel(b *testing.B) {
	store := New()
	ctx := context.Background()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = store.Allow(ctx, "bench-key", 1000, time.Minute)
		}
	})
}
