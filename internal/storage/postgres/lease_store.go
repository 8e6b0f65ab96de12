package postgres

import (
	"context"
	"fmt"
	"time"

	"token-screener/internal/storage"
)

// LeaseStore implements storage.LeaseStore using the run_leases table.
type LeaseStore struct {
	pool *Pool
	now  func() time.Time
}

// NewLeaseStore creates a new LeaseStore.
func NewLeaseStore(pool *Pool) *LeaseStore {
	return &LeaseStore{pool: pool, now: time.Now}
}

// Compile-time interface check.
var _ storage.LeaseStore = (*LeaseStore)(nil)

// Acquire takes the lease if it is free, expired, or already held by holder.
// The conditional upsert makes the check-and-set a single statement.
func (s *LeaseStore) Acquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	if name == "" || holder == "" || ttl <= 0 {
		return false, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO run_leases (name, holder, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
		WHERE run_leases.expires_at <= $4 OR run_leases.holder = EXCLUDED.holder
		RETURNING holder
	`

	now := s.now().UTC()
	var got string
	err := s.pool.QueryRow(ctx, query, name, holder, now.Add(ttl), now).Scan(&got)
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	return got == holder, nil
}

// Release frees the lease if holder owns it.
func (s *LeaseStore) Release(ctx context.Context, name, holder string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM run_leases WHERE name = $1 AND holder = $2`, name, holder)
	if err != nil {
		return fmt.Errorf("release lease %s: %w", name, err)
	}
	return nil
}
