package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"token-screener/internal/domain"
	"token-screener/internal/storage"
)

func passedAsset(id, name string, seen time.Time) *domain.PassedAsset {
	return &domain.PassedAsset{
		Identifier:  id,
		Source:      domain.SourceCoinGecko,
		Symbol:      "SYM",
		Name:        name,
		Category:    domain.CategorySerious,
		ObservedAt:  seen,
		FirstSeenAt: seen,
		UpdatedAt:   seen,
		Payload:     []byte(`{}`),
	}
}

func TestPassedAssetStore_UpsertIdempotent(t *testing.T) {
	store := NewPassedAssetStore()
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if _, err := store.UpsertBulk(ctx, []*domain.PassedAsset{passedAsset("bitcoin", "Bitcoin", t0)}, domain.ConflictIgnore); err != nil {
			t.Fatalf("UpsertBulk failed: %v", err)
		}
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected exactly 1 row, got %d", len(all))
	}
}

func TestPassedAssetStore_ConflictIgnoreKeepsFirst(t *testing.T) {
	store := NewPassedAssetStore()
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	store.UpsertBulk(ctx, []*domain.PassedAsset{passedAsset("x", "First", t0)}, domain.ConflictIgnore)
	n, err := store.UpsertBulk(ctx, []*domain.PassedAsset{passedAsset("x", "Second", t0.Add(time.Hour))}, domain.ConflictIgnore)
	if err != nil {
		t.Fatalf("UpsertBulk failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 rows written on ignore conflict, got %d", n)
	}

	got, _ := store.GetByIdentifier(ctx, "x")
	if got.Name != "First" {
		t.Errorf("expected first-seen row, got %s", got.Name)
	}
}

func TestPassedAssetStore_ConflictOverwriteKeepsFirstSeen(t *testing.T) {
	store := NewPassedAssetStore()
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(24 * time.Hour)

	store.UpsertBulk(ctx, []*domain.PassedAsset{passedAsset("x", "First", t0)}, domain.ConflictOverwrite)
	store.UpsertBulk(ctx, []*domain.PassedAsset{passedAsset("x", "Second", t1)}, domain.ConflictOverwrite)

	got, _ := store.GetByIdentifier(ctx, "x")
	if got.Name != "Second" {
		t.Errorf("expected last-seen row, got %s", got.Name)
	}
	if !got.FirstSeenAt.Equal(t0) {
		t.Errorf("FirstSeenAt should be preserved: got %v, want %v", got.FirstSeenAt, t0)
	}
	if !got.UpdatedAt.Equal(t1) {
		t.Errorf("UpdatedAt should move forward: got %v, want %v", got.UpdatedAt, t1)
	}
}

func TestPassedAssetStore_InvalidInput(t *testing.T) {
	store := NewPassedAssetStore()
	ctx := context.Background()

	_, err := store.UpsertBulk(ctx, []*domain.PassedAsset{{}}, domain.ConflictIgnore)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty identifier, got %v", err)
	}

	_, err = store.UpsertBulk(ctx, nil, domain.ConflictPolicy("merge"))
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown policy, got %v", err)
	}
}

func TestPassedAssetStore_NotFound(t *testing.T) {
	store := NewPassedAssetStore()

	_, err := store.GetByIdentifier(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
