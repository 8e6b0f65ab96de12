package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaseStore_AcquireRelease(t *testing.T) {
	pool := newTestPool(t)

	store := NewLeaseStore(pool)
	ctx := context.Background()

	ok, err := store.Acquire(ctx, "daily", "host-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Acquire(ctx, "daily", "host-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "held lease must not be taken by another holder")

	ok, err = store.Acquire(ctx, "daily", "host-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "holder may renew its own lease")

	require.NoError(t, store.Release(ctx, "daily", "host-a"))

	ok, err = store.Acquire(ctx, "daily", "host-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLeaseStore_ExpiredLeaseTakenOver(t *testing.T) {
	pool := newTestPool(t)

	store := NewLeaseStore(pool)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	ok, err := store.Acquire(ctx, "daily", "host-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(5 * time.Minute)
	ok, err = store.Acquire(ctx, "daily", "host-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease should be taken over")
}
