package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmerrifield20/genledger/internal/digest"
)

// MemoryStore is an in-memory, thread-safe Store implementation.
// Its contents are lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Record implements Store.
func (s *MemoryStore) Record(_ context.Context, d string, kind Kind, preview string) (*Entry, error) {
	d = digest.Normalize(d)
	if d == "" {
		return nil, fmt.Errorf("record: empty digest")
	}
	if kind == "" {
		return nil, fmt.Errorf("record %s: empty kind", d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := Entry{Digest: d, RecordedAt: s.now(), Kind: kind, Preview: preview}
	s.entries[d] = e
	return &e, nil
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(_ context.Context, d string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[digest.Normalize(d)]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

// Len implements Store.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}
