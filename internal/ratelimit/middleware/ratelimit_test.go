package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"udyam/internal/ratelimit/metrics"
	"udyam/internal/ratelimit/models"
	"udyam/internal/ratelimit/store/bucket"
	audit "udyam/pkg/platform/audit"
	testhelpers "udyam/pkg/testutil"
)

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*models.RateLimitResult, error) {
	return nil, errors.New("redis: connection refused")
}

func (failingStore) Release(context.Context, string) error {
	return errors.New("redis: connection refused")
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingPublisher) Emit(_ context.Context, e audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

type RateLimitSuite struct {
	suite.Suite
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   *recordingPublisher
}

func TestRateLimitSuite(t *testing.T) {
	suite.Run(t, new(RateLimitSuite))
}

func (s *RateLimitSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.audit = &recordingPublisher{}
}

func (s *RateLimitSuite) handler(store Store, opts ...Option) http.Handler {
	return s.handlerFor(models.OTPPolicy, store, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, opts...)
}

func (s *RateLimitSuite) handlerFor(policy models.Policy, store Store, next http.HandlerFunc, opts ...Option) http.Handler {
	opts = append(opts, WithMetrics(s.metrics), WithAuditPublisher(s.audit))
	return New(store, s.logger, opts...).RateLimit(policy)(next)
}

// rejectingHandler answers 400 for requests carrying ?fail and 200 otherwise.
func rejectingHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Has("fail") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"validation_error"}`))
		return
	}
	_, _ = w.Write([]byte(`{"success":true}`))
}

func (s *RateLimitSuite) sendPath(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	return testhelpers.DoRequest(h, testhelpers.WithClientMetadata(req, "10.0.0.1", "test"))
}

func (s *RateLimitSuite) send(h http.Handler, ip string) *httptest.ResponseRecorder {
	return s.sendAt(h, ip, time.Now())
}

func (s *RateLimitSuite) sendAt(h http.Handler, ip string, at time.Time) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/generate-otp", nil)
	req = testhelpers.WithTime(testhelpers.WithClientMetadata(req, ip, "test"), at)
	return testhelpers.DoRequest(h, req)
}

func (s *RateLimitSuite) TestLimitsPerIP() {
	h := s.handler(bucket.New())

	for i := range models.OTPPolicy.Limit {
		w := s.send(h, "10.0.0.1")
		s.Equal(http.StatusOK, w.Code)
		s.Equal("3", w.Header().Get("X-RateLimit-Limit"))
		s.Equal(strconv.Itoa(models.OTPPolicy.Limit-i-1), w.Header().Get("X-RateLimit-Remaining"))
		s.NotEmpty(w.Header().Get("X-RateLimit-Reset"))
	}

	w := s.send(h, "10.0.0.1")
	s.Equal(http.StatusTooManyRequests, w.Code)
	s.NotEmpty(w.Header().Get("Retry-After"))
	var body models.RateLimitExceededResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Equal("rate_limit_exceeded", body.Error)

	s.Equal(http.StatusOK, s.send(h, "10.0.0.2").Code, "other clients unaffected")

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Decisions.WithLabelValues("otp", "rejected")))
	s.Require().Len(s.audit.events, 1)
	s.Equal(string(audit.EventRateLimitExceeded), s.audit.events[0].Action)
	s.Equal("10.0.0.1", s.audit.events[0].ClientIP)
}

func (s *RateLimitSuite) TestWindowSlides() {
	h := s.handler(bucket.New())
	start := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	for range models.OTPPolicy.Limit {
		s.Equal(http.StatusOK, s.sendAt(h, "10.0.0.1", start).Code)
	}
	s.Equal(http.StatusTooManyRequests, s.sendAt(h, "10.0.0.1", start.Add(time.Minute)).Code)
	s.Equal(http.StatusOK, s.sendAt(h, "10.0.0.1", start.Add(models.OTPPolicy.Window+time.Second)).Code)
}

func (s *RateLimitSuite) TestDisabled() {
	h := s.handler(failingStore{}, WithDisabled(true))
	for range 10 {
		w := s.send(h, "10.0.0.1")
		s.Equal(http.StatusOK, w.Code)
		s.Empty(w.Header().Get("X-RateLimit-Limit"))
	}
}

func (s *RateLimitSuite) TestFallsBackWhenStoreFails() {
	h := s.handler(failingStore{})

	for range models.OTPPolicy.Limit {
		w := s.send(h, "10.0.0.1")
		s.Equal(http.StatusOK, w.Code)
		s.Equal("degraded", w.Header().Get(StatusHeader))
	}
	s.Equal(http.StatusTooManyRequests, s.send(h, "10.0.0.1").Code, "fallback still enforces the limit")
	s.Equal(4.0, testutil.ToFloat64(s.metrics.StoreErrors))
}

func (s *RateLimitSuite) TestRejectedRequestsDoNotUseAllowance() {
	store := bucket.New()
	h := s.handlerFor(models.OTPPolicy, store, rejectingHandler)

	for range 5 {
		w := s.sendPath(h, "/api/generate-otp?fail")
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("2", w.Header().Get("X-RateLimit-Remaining"))
	}
	count, err := store.GetCurrentCount(context.Background(), models.OTPPolicy.Key("10.0.0.1"))
	s.Require().NoError(err)
	s.Zero(count)

	for i := range models.OTPPolicy.Limit {
		w := s.sendPath(h, "/api/generate-otp")
		s.Equal(http.StatusOK, w.Code)
		s.Equal(strconv.Itoa(models.OTPPolicy.Limit-i-1), w.Header().Get("X-RateLimit-Remaining"))
	}
	w := s.sendPath(h, "/api/generate-otp?fail")
	s.Equal(http.StatusTooManyRequests, w.Code, "limit holds once successes use it up")
	var body models.RateLimitExceededResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Equal(models.OTPPolicy.Message, body.Message)
}

func (s *RateLimitSuite) TestPolicyWithoutSkipFailedCountsRejections() {
	policy := models.Policy{Name: "api", Limit: 2, Window: time.Minute}
	h := s.handlerFor(policy, bucket.New(), rejectingHandler)

	s.Equal(http.StatusBadRequest, s.sendPath(h, "/api/x?fail").Code)
	s.Equal(http.StatusBadRequest, s.sendPath(h, "/api/x?fail").Code)
	w := s.sendPath(h, "/api/x")
	s.Equal(http.StatusTooManyRequests, w.Code)

	var body models.RateLimitExceededResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Equal("Too many requests, please try again later", body.Message)
}

func (s *RateLimitSuite) TestFallbackReleasesRejectedHits() {
	h := s.handlerFor(models.OTPPolicy, failingStore{}, rejectingHandler)
	for range 5 {
		w := s.sendPath(h, "/api/generate-otp?fail")
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("degraded", w.Header().Get(StatusHeader))
	}
	s.Equal(http.StatusOK, s.sendPath(h, "/api/generate-otp").Code)
}
