// Package state persists the registry's singleton state: the operating
// configuration, the entropy seed, and the single pending-registration
// slot. All three are one-row concerns; the coordinator serializes
// access, so stores only need crash-safe reads and writes.
package state

import (
	"context"
	"fmt"
	"sync"

	"hatchery/internal/entropy"
	"hatchery/internal/factory/models"
	"hatchery/pkg/platform/sentinel"
)

// InMemoryStateStore keeps the singleton state in memory for tests/dev.
type InMemoryStateStore struct {
	mu      sync.RWMutex
	config  *models.Config
	seed    entropy.Seed
	hasSeed bool
	pending *models.PendingRegistration
}

// NewInMemory constructs an empty in-memory state store.
func NewInMemory() *InMemoryStateStore {
	return &InMemoryStateStore{}
}

func (s *InMemoryStateStore) SaveConfig(_ context.Context, config *models.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *config
	s.config = &snapshot
	return nil
}

func (s *InMemoryStateStore) LoadConfig(_ context.Context) (*models.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil {
		return nil, fmt.Errorf("config not found: %w", sentinel.ErrNotFound)
	}
	snapshot := *s.config
	return &snapshot, nil
}

func (s *InMemoryStateStore) SaveSeed(_ context.Context, seed entropy.Seed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seed = seed
	s.hasSeed = true
	return nil
}

func (s *InMemoryStateStore) LoadSeed(_ context.Context) (entropy.Seed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasSeed {
		return entropy.Seed{}, fmt.Errorf("seed not found: %w", sentinel.ErrNotFound)
	}
	return s.seed, nil
}

// SavePending fills the pending slot, overwriting any occupant.
func (s *InMemoryStateStore) SavePending(_ context.Context, pending *models.PendingRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *pending
	s.pending = &snapshot
	return nil
}

// LoadPending returns the slot's occupant without consuming it.
func (s *InMemoryStateStore) LoadPending(_ context.Context) (*models.PendingRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pending == nil {
		return nil, fmt.Errorf("pending registration not found: %w", sentinel.ErrNotFound)
	}
	snapshot := *s.pending
	return &snapshot, nil
}

// ClearPending empties the slot. Clearing an empty slot is a no-op.
func (s *InMemoryStateStore) ClearPending(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	return nil
}
