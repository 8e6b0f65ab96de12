package storage

import (
	"context"
	"time"

	"token-screener/internal/domain"
)

// RawLogStore provides access to the append-only raw_log table.
type RawLogStore interface {
	// AppendBulk writes every record atomically, tagged with ingestedAt.
	// Returns the number of rows written.
	AppendBulk(ctx context.Context, records []*domain.CandidateRecord, ingestedAt time.Time) (int, error)

	// GetByObservedRange retrieves rows with observed_at in [start, end), ordered by observed_at ASC.
	GetByObservedRange(ctx context.Context, start, end time.Time) ([]*domain.RawEntry, error)

	// DeleteInWindowExcept deletes rows with observed_at in [start, end) whose key is not in keep.
	DeleteInWindowExcept(ctx context.Context, start, end time.Time, keep []string) (int64, error)

	// DeleteObservedBefore deletes rows with observed_at < cutoff.
	DeleteObservedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Count returns the number of rows currently stored.
	Count(ctx context.Context) (int64, error)
}

// PassedAssetStore provides access to the passed_assets table.
// The table holds at most one row per identifier.
type PassedAssetStore interface {
	// UpsertBulk writes assets atomically, resolving existing identifiers per policy.
	// Returns the number of rows inserted or updated.
	UpsertBulk(ctx context.Context, assets []*domain.PassedAsset, policy domain.ConflictPolicy) (int, error)

	// GetByIdentifier retrieves an asset. Returns ErrNotFound if not exists.
	GetByIdentifier(ctx context.Context, identifier string) (*domain.PassedAsset, error)

	// List returns all assets ordered by first_seen_at ASC, identifier ASC.
	List(ctx context.Context) ([]*domain.PassedAsset, error)
}

// RunLogStore provides access to the append-only run_log audit table.
type RunLogStore interface {
	// Insert appends an entry. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, e *domain.RunLogEntry) error

	// GetRecent returns up to limit entries, newest first.
	GetRecent(ctx context.Context, limit int) ([]*domain.RunLogEntry, error)
}
