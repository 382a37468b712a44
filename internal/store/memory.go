package store

import (
	"context"
	"sync"

	"github.com/vampirenirmal/convocart/internal/conversation"
)

type memoryRecord struct {
	snapshot conversation.Snapshot
	archived bool
}

// MemoryStore is an in-memory ContextStore for tests and single-process
// development. Records are stored as snapshots so Get/Put round-trip the
// same serialization path the durable stores use.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*memoryRecord
	opts    []conversation.ContextOption
}

// NewMemoryStore creates an empty in-memory store. The given context
// options (timeout, clock) are applied to every restored context.
func NewMemoryStore(opts ...conversation.ContextOption) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*memoryRecord),
		opts:    opts,
	}
}

// Get implements ContextStore.
func (s *MemoryStore) Get(ctx context.Context, principal string) (*conversation.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[principal]
	if !ok || rec.archived {
		return nil, ErrNotFound
	}
	return conversation.FromSnapshot(rec.snapshot, s.opts...), nil
}

// Put implements ContextStore with an optimistic version check.
func (s *MemoryStore) Put(ctx context.Context, principal string, conv *conversation.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[principal]; ok && !rec.archived {
		if rec.snapshot.Version != conv.Version {
			return ErrVersionConflict
		}
	}
	conv.Version++
	s.records[principal] = &memoryRecord{snapshot: conv.Snapshot()}
	return nil
}

// Delete implements ContextStore.
func (s *MemoryStore) Delete(ctx context.Context, principal string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, principal)
	return nil
}

// Archive implements ContextStore: the record collapses to slots only.
func (s *MemoryStore) Archive(ctx context.Context, principal string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[principal]
	if !ok {
		return nil, ErrNotFound
	}
	slots := rec.snapshot.Slots
	rec.snapshot = conversation.Snapshot{
		Principal: principal,
		Slots:     slots,
	}
	rec.archived = true
	return slots, nil
}

// ArchivedSlots implements ContextStore.
func (s *MemoryStore) ArchivedSlots(ctx context.Context, principal string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[principal]
	if !ok || !rec.archived {
		return nil, ErrNotFound
	}
	return rec.snapshot.Slots, nil
}
