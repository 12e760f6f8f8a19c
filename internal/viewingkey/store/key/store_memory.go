package key

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"hatchery/contracts/spawn"
	"hatchery/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested entity does not exist
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures
// InMemoryKeyStore stores viewing-key digests in memory for tests/dev.
type InMemoryKeyStore struct {
	mu      sync.RWMutex
	digests map[spawn.Address][sha256.Size]byte
}

// New constructs an empty in-memory viewing-key store.
func New() *InMemoryKeyStore {
	return &InMemoryKeyStore{digests: make(map[spawn.Address][sha256.Size]byte)}
}

func (s *InMemoryKeyStore) Put(_ context.Context, addr spawn.Address, digest [sha256.Size]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digests[addr] = digest
	return nil
}

func (s *InMemoryKeyStore) Get(_ context.Context, addr spawn.Address) ([sha256.Size]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if digest, ok := s.digests[addr]; ok {
		return digest, nil
	}
	return [sha256.Size]byte{}, fmt.Errorf("viewing key not found: %w", sentinel.ErrNotFound)
}
