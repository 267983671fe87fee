package registration

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"udyam/internal/registration/models"
	"udyam/pkg/platform/sentinel"
)

// InMemory keeps registrations in maps guarded by one lock. Reads return
// copies so callers cannot mutate stored state.
type InMemory struct {
	mu        sync.RWMutex
	byID      map[uuid.UUID]models.Registration
	byAadhaar map[string]uuid.UUID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:      make(map[uuid.UUID]models.Registration),
		byAadhaar: make(map[string]uuid.UUID),
	}
}

// Create inserts a new registration. An existing Aadhaar is a conflict.
func (s *InMemory) Create(_ context.Context, reg *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byAadhaar[reg.AadhaarNumber]; ok {
		return fmt.Errorf("aadhaar %w", sentinel.ErrConflict)
	}
	s.byID[reg.ID] = *reg
	s.byAadhaar[reg.AadhaarNumber] = reg.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &reg, nil
}

func (s *InMemory) FindByAadhaar(_ context.Context, aadhaarNumber string) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byAadhaar[aadhaarNumber]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	reg := s.byID[id]
	return &reg, nil
}

// HasCompletedPAN reports whether pan is on a completed registration.
func (s *InMemory) HasCompletedPAN(_ context.Context, pan string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, reg := range s.byID {
		if reg.IsCompleted() && reg.PANNumber == pan {
			return true, nil
		}
	}
	return false, nil
}

// Update replaces a stored registration, enforcing the completed-PAN and
// Udyam number uniqueness rules.
func (s *InMemory) Update(_ context.Context, reg *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[reg.ID]; !ok {
		return sentinel.ErrNotFound
	}
	for id, other := range s.byID {
		if id == reg.ID {
			continue
		}
		if reg.UdyamNumber != "" && other.UdyamNumber == reg.UdyamNumber {
			return ErrUdyamNumberTaken
		}
		if reg.IsCompleted() && other.IsCompleted() && other.PANNumber == reg.PANNumber {
			return fmt.Errorf("pan %w", sentinel.ErrConflict)
		}
	}
	s.byID[reg.ID] = *reg
	return nil
}
