package ratelimit

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any, headers map[string]string) error
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetLastResponseHeader(name string) string
}

// RegisterSteps registers the OTP rate limiting steps. They need a server
// with ENVIRONMENT=production and OTP_MOCK unset, otherwise limiting is off.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}
	ctx.Step(`^I am a client with IP "([^"]*)"$`, steps.clientWithIP)
	ctx.Step(`^I request an OTP for Aadhaar "([^"]*)" (\d+) times$`, steps.requestOTPTimes)
	ctx.Step(`^I send (\d+) OTP requests with an invalid Aadhaar number$`, steps.sendRejected)
	ctx.Step(`^every request should have been allowed$`, steps.allAllowed)
	ctx.Step(`^the next OTP request should be rate limited$`, steps.nextIsLimited)
}

type ratelimitSteps struct {
	tc       TestContext
	ip       string
	aadhaar  string
	statuses []int
}

func (s *ratelimitSteps) clientWithIP(_ context.Context, ip string) error {
	s.ip = ip
	s.statuses = nil
	return nil
}

func (s *ratelimitSteps) requestOTPTimes(_ context.Context, aadhaar string, n int) error {
	s.aadhaar = aadhaar
	for range n {
		if err := s.send(); err != nil {
			return err
		}
		s.statuses = append(s.statuses, s.tc.GetLastResponseStatus())
	}
	return nil
}

// sendRejected sends requests the handler answers with 400; they must not use
// up the OTP allowance.
func (s *ratelimitSteps) sendRejected(_ context.Context, n int) error {
	valid := s.aadhaar
	defer func() { s.aadhaar = valid }()
	s.aadhaar = "1234"
	for i := range n {
		if err := s.send(); err != nil {
			return err
		}
		if got := s.tc.GetLastResponseStatus(); got != 400 {
			return fmt.Errorf("request %d: expected 400, got %d: %s", i+1, got, s.tc.GetLastResponseBody())
		}
	}
	return nil
}

func (s *ratelimitSteps) allAllowed(context.Context) error {
	for i, status := range s.statuses {
		if status == 429 {
			return fmt.Errorf("request %d was rate limited", i+1)
		}
	}
	return nil
}

func (s *ratelimitSteps) nextIsLimited(context.Context) error {
	if err := s.send(); err != nil {
		return err
	}
	if got := s.tc.GetLastResponseStatus(); got != 429 {
		return fmt.Errorf("expected 429, got %d: %s", got, s.tc.GetLastResponseBody())
	}
	if s.tc.GetLastResponseHeader("Retry-After") == "" {
		return fmt.Errorf("missing Retry-After header")
	}
	return nil
}

func (s *ratelimitSteps) send() error {
	return s.tc.POST("/api/generate-otp", map[string]string{
		"aadhaar_number":    s.aadhaar,
		"entrepreneur_name": "Rate Limit Client",
	}, map[string]string{"X-Forwarded-For": s.ip})
}
