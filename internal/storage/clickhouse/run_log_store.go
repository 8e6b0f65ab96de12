package clickhouse

import (
	"context"
	"fmt"
	"time"

	"token-screener/internal/domain"
	"token-screener/internal/observability"
	"token-screener/internal/storage"
)

// RunLogStore mirrors the run audit trail into ClickHouse for analytics.
// The table is a ReplacingMergeTree keyed by run_id, so re-inserting a run is harmless.
type RunLogStore struct {
	conn *Conn
}

// NewRunLogStore creates a new RunLogStore.
func NewRunLogStore(conn *Conn) *RunLogStore {
	return &RunLogStore{conn: conn}
}

// Compile-time interface check.
var _ storage.RunLogStore = (*RunLogStore)(nil)

// Insert appends an entry through a single-row batch.
func (s *RunLogStore) Insert(ctx context.Context, e *domain.RunLogEntry) (err error) {
	if e == nil || e.RunID == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "run_log_insert", time.Since(start).Seconds(), err)
	}()

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO run_log (
		run_id, started_at, finished_at, raw_count, windowed_count, passed_count,
		purged_non_passed, purged_expired, window_start, window_end, status, info
	)`)
	if err != nil {
		return fmt.Errorf("prepare run log batch: %w", err)
	}

	info := string(e.Info)
	if info == "" {
		info = "{}"
	}

	err = batch.Append(
		e.RunID,
		e.StartedAt.UTC(),
		e.FinishedAt.UTC(),
		uint32(e.RawCount),
		uint32(e.WindowedCount),
		uint32(e.PassedCount),
		uint64(e.PurgedNonPassed),
		uint64(e.PurgedExpired),
		e.WindowStart.UTC(),
		e.WindowEnd.UTC(),
		e.Status,
		info,
	)
	if err != nil {
		batch.Abort()
		return fmt.Errorf("append run log: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send run log batch: %w", err)
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
		FROM run_log FINAL
		ORDER BY started_at DESC, run_id ASC
		LIMIT ?
	`

	rows, err := s.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var result []*domain.RunLogEntry
	for rows.Next() {
		var (
			e                              domain.RunLogEntry
			rawCount, windowed, passed     uint32
			purgedNonPassed, purgedExpired uint64
			info                           string
		)
		err := rows.Scan(
			&e.RunID,
			&e.StartedAt,
			&e.FinishedAt,
			&rawCount,
			&windowed,
			&passed,
			&purgedNonPassed,
			&purgedExpired,
			&e.WindowStart,
			&e.WindowEnd,
			&e.Status,
			&info,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		e.RawCount = int(rawCount)
		e.WindowedCount = int(windowed)
		e.PassedCount = int(passed)
		e.PurgedNonPassed = int64(purgedNonPassed)
		e.PurgedExpired = int64(purgedExpired)
		e.Info = []byte(info)
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run log: %w", err)
	}
	return result, nil
}
