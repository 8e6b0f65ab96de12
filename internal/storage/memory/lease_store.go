package memory

import (
	"context"
	"sync"
	"time"

	"token-screener/internal/storage"
)

type lease struct {
	holder    string
	expiresAt time.Time
}

// LeaseStore is an in-memory implementation of storage.LeaseStore.
type LeaseStore struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

// NewLeaseStore creates a new in-memory lease store.
func NewLeaseStore() *LeaseStore {
	return &LeaseStore{
		leases: make(map[string]lease),
		now:    time.Now,
	}
}

// Compile-time interface check.
var _ storage.LeaseStore = (*LeaseStore)(nil)

// Acquire takes the lease if it is free, expired, or already held by holder.
func (s *LeaseStore) Acquire(_ context.Context, name, holder string, ttl time.Duration) (bool, error) {
	if name == "" || holder == "" || ttl <= 0 {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if cur, held := s.leases[name]; held && cur.holder != holder && now.Before(cur.expiresAt) {
		return false, nil
	}
	s.leases[name] = lease{holder: holder, expiresAt: now.Add(ttl)}
	return true, nil
}

// Release frees the lease if holder owns it.
func (s *LeaseStore) Release(_ context.Context, name, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, held := s.leases[name]; held && cur.holder == holder {
		delete(s.leases, name)
	}
	return nil
}
