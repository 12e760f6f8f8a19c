// Package index persists the registry's ordered address indices.
//
// Each index is an insertion-ordered set: Insert appends unknown
// members and ignores known ones, Remove deletes in place without
// disturbing the order of the rest, and Page windows the order by
// page number and size. Order survives arbitrary interleavings of
// inserts and removes, which is what keeps pagination stable while
// instances come and go.
package index

import (
	"context"
	"sync"

	"hatchery/contracts/spawn"
	"hatchery/internal/factory/models"
)

// InMemoryIndexStore keeps all indices in memory for tests/dev.
type InMemoryIndexStore struct {
	mu    sync.RWMutex
	lists map[models.IndexKey]*orderedList
}

// orderedList is an insertion-ordered set of addresses.
type orderedList struct {
	members []spawn.Address
	present map[spawn.Address]struct{}
}

func newOrderedList() *orderedList {
	return &orderedList{present: make(map[spawn.Address]struct{})}
}

func (l *orderedList) insert(addr spawn.Address) {
	if _, ok := l.present[addr]; ok {
		return
	}
	l.present[addr] = struct{}{}
	l.members = append(l.members, addr)
}

func (l *orderedList) remove(addr spawn.Address) {
	if _, ok := l.present[addr]; !ok {
		return
	}
	delete(l.present, addr)
	for i, member := range l.members {
		if member == addr {
			l.members = append(l.members[:i], l.members[i+1:]...)
			return
		}
	}
}

// NewInMemory constructs an empty in-memory index store.
func NewInMemory() *InMemoryIndexStore {
	return &InMemoryIndexStore{lists: make(map[models.IndexKey]*orderedList)}
}

// Insert adds addr to the index, keeping insertion order.
// Inserting a member again is a no-op.
func (s *InMemoryIndexStore) Insert(_ context.Context, key models.IndexKey, addr spawn.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.lists[key]
	if !ok {
		list = newOrderedList()
		s.lists[key] = list
	}
	list.insert(addr)
	return nil
}

// Remove deletes addr from the index, preserving the order of the
// remaining members. Removing a non-member is a no-op.
func (s *InMemoryIndexStore) Remove(_ context.Context, key models.IndexKey, addr spawn.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if list, ok := s.lists[key]; ok {
		list.remove(addr)
	}
	return nil
}

// Contains reports membership.
func (s *InMemoryIndexStore) Contains(_ context.Context, key models.IndexKey, addr spawn.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.lists[key]
	if !ok {
		return false, nil
	}
	_, ok = list.present[addr]
	return ok, nil
}

// Page returns the window of the index selected by page, in insertion
// order. Windows past the end are empty, never an error.
func (s *InMemoryIndexStore) Page(_ context.Context, key models.IndexKey, page models.Page) ([]spawn.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.lists[key]
	if !ok {
		return nil, nil
	}

	offset := page.Offset()
	if offset >= len(list.members) {
		return nil, nil
	}

	end := offset + page.Limit()
	if end > len(list.members) {
		end = len(list.members)
	}

	window := make([]spawn.Address, end-offset)
	copy(window, list.members[offset:end])
	return window, nil
}

// Count returns the number of members in the index.
func (s *InMemoryIndexStore) Count(_ context.Context, key models.IndexKey) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.lists[key]
	if !ok {
		return 0, nil
	}
	return len(list.members), nil
}
