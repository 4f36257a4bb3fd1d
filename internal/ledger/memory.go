package ledger

import (
	"context"
	"sync"
)

// MemoryStore keeps entries in process memory only.
//
// FailCommit, when set, is returned from Commit; tests use it to simulate a
// failing disk.
type MemoryStore struct {
	mu         sync.Mutex
	entries    []Entry
	FailCommit error
}

func NewMemoryStore(seed ...Entry) *MemoryStore {
	return &MemoryStore{entries: append([]Entry(nil), seed...)}
}

func (s *MemoryStore) Load(ctx context.Context) ([]Entry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry{}, s.entries...), nil
}

func (s *MemoryStore) Commit(ctx context.Context, all []Entry, added Entry) error {
	_ = ctx
	_ = added
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCommit != nil {
		return s.FailCommit
	}
	s.entries = append([]Entry(nil), all...)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
