// Package otp stores pending OTP challenges keyed by Aadhaar number. Saving a
// challenge replaces any earlier one for the same Aadhaar.
package otp

import (
	"context"
	"sync"

	"udyam/internal/registration/models"
	"udyam/pkg/platform/sentinel"
	"udyam/pkg/requestcontext"
)

type InMemory struct {
	mu         sync.Mutex
	challenges map[string]models.OTPChallenge
}

func NewInMemory() *InMemory {
	return &InMemory{challenges: make(map[string]models.OTPChallenge)}
}

func (s *InMemory) Save(_ context.Context, challenge models.OTPChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[challenge.AadhaarNumber] = challenge
	return nil
}

// Find returns sentinel.ErrNotFound for missing or expired challenges.
// Expired entries are dropped on read.
func (s *InMemory) Find(ctx context.Context, aadhaarNumber string) (*models.OTPChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[aadhaarNumber]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if c.Expired(requestcontext.Now(ctx)) {
		delete(s.challenges, aadhaarNumber)
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *InMemory) IncrementAttempts(ctx context.Context, aadhaarNumber string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[aadhaarNumber]
	if !ok || c.Expired(requestcontext.Now(ctx)) {
		return 0, sentinel.ErrNotFound
	}
	c.Attempts++
	s.challenges[aadhaarNumber] = c
	return c.Attempts, nil
}

func (s *InMemory) Delete(_ context.Context, aadhaarNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, aadhaarNumber)
	return nil
}
