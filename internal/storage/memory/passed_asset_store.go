package memory

import (
	"context"
	"sort"
	"sync"

	"token-screener/internal/domain"
	"token-screener/internal/storage"
)

// PassedAssetStore is an in-memory implementation of storage.PassedAssetStore.
type PassedAssetStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PassedAsset // keyed by identifier
}

// NewPassedAssetStore creates a new in-memory passed asset store.
func NewPassedAssetStore() *PassedAssetStore {
	return &PassedAssetStore{
		data: make(map[string]*domain.PassedAsset),
	}
}

// Compile-time interface check.
var _ storage.PassedAssetStore = (*PassedAssetStore)(nil)

// UpsertBulk writes assets resolving existing identifiers per policy.
func (s *PassedAssetStore) UpsertBulk(_ context.Context, assets []*domain.PassedAsset, policy domain.ConflictPolicy) (int, error) {
	if !policy.IsValid() {
		return 0, storage.ErrInvalidInput
	}
	for _, a := range assets {
		if a == nil || a.Identifier == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	written := 0
	for _, a := range assets {
		existing, exists := s.data[a.Identifier]
		if exists && policy == domain.ConflictIgnore {
			continue
		}

		assetCopy := copyAsset(a)
		if exists {
			assetCopy.FirstSeenAt = existing.FirstSeenAt
		}
		s.data[a.Identifier] = assetCopy
		written++
	}
	return written, nil
}

// GetByIdentifier retrieves an asset. Returns ErrNotFound if not exists.
func (s *PassedAssetStore) GetByIdentifier(_ context.Context, identifier string) (*domain.PassedAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[identifier]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyAsset(a), nil
}

// List returns all assets ordered by first_seen_at ASC, identifier ASC.
func (s *PassedAssetStore) List(_ context.Context) ([]*domain.PassedAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.PassedAsset, 0, len(s.data))
	for _, a := range s.data {
		result = append(result, copyAsset(a))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].FirstSeenAt.Equal(result[j].FirstSeenAt) {
			return result[i].FirstSeenAt.Before(result[j].FirstSeenAt)
		}
		return result[i].Identifier < result[j].Identifier
	})
	return result, nil
}

func copyAsset(a *domain.PassedAsset) *domain.PassedAsset {
	c := *a
	if a.Chain != nil {
		chain := *a.Chain
		c.Chain = &chain
	}
	c.Payload = append([]byte(nil), a.Payload...)
	return &c
}
