package memory

import (
	"context"
	"sort"
	"sync"

	"token-screener/internal/domain"
	"token-screener/internal/storage"
)

// RunLogStore is an in-memory implementation of storage.RunLogStore.
type RunLogStore struct {
	mu      sync.RWMutex
	entries []*domain.RunLogEntry
	ids     map[string]struct{}
}

// NewRunLogStore creates a new in-memory run log store.
func NewRunLogStore() *RunLogStore {
	return &RunLogStore{ids: make(map[string]struct{})}
}

// Compile-time interface check.
var _ storage.RunLogStore = (*RunLogStore)(nil)

// Insert appends an entry. Returns ErrDuplicateKey if run_id exists.
func (s *RunLogStore) Insert(_ context.Context, e *domain.RunLogEntry) error {
	if e == nil || e.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[e.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	entryCopy := *e
	entryCopy.Info = append([]byte(nil), e.Info...)
	s.entries = append(s.entries, &entryCopy)
	s.ids[e.RunID] = struct{}{}
	return nil
}

// GetRecent returns up to limit entries, newest first.
func (s *RunLogStore) GetRecent(_ context.Context, limit int) ([]*domain.RunLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.RunLogEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entryCopy := *e
		result = append(result, &entryCopy)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
