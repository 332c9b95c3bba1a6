package fixctx

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process store for local mode and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	record    Record
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory store with the given TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put stores a new record under a fresh UUID and returns the id.
func (s *MemoryStore) Put(ctx context.Context, finding json.RawMessage, repo RepoContext) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	if _, exists := s.entries[id]; exists {
		return "", fmt.Errorf("record id collision: %s", id)
	}

	now := s.now().UTC()
	s.entries[id] = memoryEntry{
		record: Record{
			ID:        id,
			Finding:   finding,
			Repo:      repo,
			CreatedAt: now,
		},
		expiresAt: now.Add(s.ttl),
	}

	return id, nil
}

// Get fetches a record by id, expiring it lazily.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}

	if !s.now().UTC().Before(entry.expiresAt) {
		delete(s.entries, id)
		return nil, ErrNotFound
	}

	rec := entry.record
	return &rec, nil
}
