// Package record persists instance records keyed by address.
package record

import (
	"context"
	"fmt"
	"sync"

	"hatchery/contracts/spawn"
	"hatchery/internal/factory/models"
	"hatchery/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested entity does not exist
// - Return ErrConflict when creating a record whose address exists
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures
// InMemoryRecordStore stores instance records in memory for tests/dev.
type InMemoryRecordStore struct {
	mu      sync.RWMutex
	records map[spawn.Address]*models.InstanceRecord
}

// NewInMemory constructs an empty in-memory record store.
func NewInMemory() *InMemoryRecordStore {
	return &InMemoryRecordStore{records: make(map[spawn.Address]*models.InstanceRecord)}
}

// Create saves a new record. The address must be unused.
func (s *InMemoryRecordStore) Create(_ context.Context, record *models.InstanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := record.Identity.Address
	if _, ok := s.records[addr]; ok {
		return fmt.Errorf("instance record %s exists: %w", addr, sentinel.ErrConflict)
	}
	snapshot := *record
	s.records[addr] = &snapshot
	return nil
}

// Find returns the record for an address.
func (s *InMemoryRecordStore) Find(_ context.Context, addr spawn.Address) (*models.InstanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[addr]
	if !ok {
		return nil, fmt.Errorf("instance record not found: %w", sentinel.ErrNotFound)
	}
	snapshot := *record
	return &snapshot, nil
}

// FindMany returns records for the given addresses, in input order.
// Any missing address fails the whole call: the caller derived the
// list from an index, so a hole is corruption, not an empty result.
func (s *InMemoryRecordStore) FindMany(_ context.Context, addrs []spawn.Address) ([]*models.InstanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*models.InstanceRecord, 0, len(addrs))
	for _, addr := range addrs {
		record, ok := s.records[addr]
		if !ok {
			return nil, fmt.Errorf("instance record %s not found: %w", addr, sentinel.ErrNotFound)
		}
		snapshot := *record
		records = append(records, &snapshot)
	}
	return records, nil
}

// Execute runs a validate-then-mutate sequence on one record while
// holding the store lock, then persists the result. The mutation is
// skipped when validation fails.
func (s *InMemoryRecordStore) Execute(
	_ context.Context,
	addr spawn.Address,
	validate func(*models.InstanceRecord) error,
	mutate func(*models.InstanceRecord),
) (*models.InstanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[addr]
	if !ok {
		return nil, fmt.Errorf("instance record not found: %w", sentinel.ErrNotFound)
	}

	working := *record
	if err := validate(&working); err != nil {
		return nil, err
	}
	mutate(&working)
	s.records[addr] = &working

	snapshot := working
	return &snapshot, nil
}
