package storage

import (
	"context"
	"time"
)

// LeaseStore persists named run leases so that overlapping processes
// do not execute the same pipeline concurrently.
type LeaseStore interface {
	// Acquire takes the lease for holder if it is free, expired, or already held by holder.
	// Returns false when another holder owns an unexpired lease.
	Acquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)

	// Release frees the lease if holder owns it. Releasing a lease not held is a no-op.
	Release(ctx context.Context, name, holder string) error
}
