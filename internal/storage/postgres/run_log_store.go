package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"token-screener/internal/domain"
	"token-screener/internal/storage"
)

// RunLogStore implements storage.RunLogStore using PostgreSQL.
type RunLogStore struct {
	pool *Pool
}

// NewRunLogStore creates a new RunLogStore.
func NewRunLogStore(pool *Pool) *RunLogStore {
	return &RunLogStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunLogStore = (*RunLogStore)(nil)

// Insert appends an entry. Returns ErrDuplicateKey if run_id exists.
func (s *RunLogStore) Insert(ctx context.Context, e *domain.RunLogEntry) error {
	if e == nil || e.RunID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO run_log (
			run_id, started_at, finished_at, raw_count, windowed_count, passed_count,
			purged_non_passed, purged_expired, window_start, window_end, status, info
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	info := []byte(e.Info)
	if len(info) == 0 {
		info = []byte(`{}`)
	}

	_, err := s.pool.Exec(ctx, query,
		e.RunID,
		e.StartedAt.UTC(),
		e.FinishedAt.UTC(),
		e.RawCount,
		e.WindowedCount,
		e.PassedCount,
		e.PurgedNonPassed,
		e.PurgedExpired,
		e.WindowStart.UTC(),
		e.WindowEnd.UTC(),
		e.Status,
		info,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run log: %w", err)
	}
	return nil
}

// GetRecent returns up to limit entries, newest first.
func (s *RunLogStore) GetRecent(ctx context.Context, limit int) ([]*domain.RunLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT run_id, started_at, finished_at, raw_count, windowed_count, passed_count,
		       purged_non_passed, purged_expired, window_start, window_end, status, info
		FROM run_log
		ORDER BY started_at DESC, run_id ASC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent runs: %w", err)
	}
	defer rows.Close()

	return scanRunLogEntries(rows)
}

// scanRunLogEntries scans multiple rows into a slice of RunLogEntry.
func scanRunLogEntries(rows pgx.Rows) ([]*domain.RunLogEntry, error) {
	var result []*domain.RunLogEntry
	for rows.Next() {
		var e domain.RunLogEntry
		var info []byte
		err := rows.Scan(
			&e.RunID,
			&e.StartedAt,
			&e.FinishedAt,
			&e.RawCount,
			&e.WindowedCount,
			&e.PassedCount,
			&e.PurgedNonPassed,
			&e.PurgedExpired,
			&e.WindowStart,
			&e.WindowEnd,
			&e.Status,
			&info,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		e.Info = info
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run log: %w", err)
	}
	return result, nil
}
