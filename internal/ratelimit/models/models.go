package models

import (
	"fmt"
	"time"
)

// Policy bounds how many requests one key may make per sliding window.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
	// SkipFailed returns the hit when the handler answers with a status of
	// 400 or above, so rejected requests do not use up the allowance.
	SkipFailed bool
	// Message is the 429 message; a generic one is used when empty.
	Message string
}

// OTPPolicy matches the OTP endpoint: 3 successful requests per 5 minutes per
// client IP.
var OTPPolicy = Policy{
	Name:       "otp",
	Limit:      3,
	Window:     5 * time.Minute,
	SkipFailed: true,
	Message:    "Too many OTP requests, please try again later",
}

// APIPolicy bounds all API traffic: 100 requests per 15 minutes per client IP.
var APIPolicy = Policy{
	Name:    "api",
	Limit:   100,
	Window:  15 * time.Minute,
	Message: "Too many requests from this IP, please try again later",
}

// Key builds the bucket key for a policy and client identifier.
func (p Policy) Key(identifier string) string {
	return fmt.Sprintf("ratelimit:%s:%s", SanitizeKeySegment(p.Name), SanitizeKeySegment(identifier))
}

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// RateLimitExceededResponse is the API response when rate limit is exceeded.
type RateLimitExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}
