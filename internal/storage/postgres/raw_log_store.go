package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"token-screener/internal/domain"
	"token-screener/internal/idhash"
	"token-screener/internal/storage"
)

// RawLogStore implements storage.RawLogStore using PostgreSQL.
type RawLogStore struct {
	pool *Pool
}

// NewRawLogStore creates a new RawLogStore.
func NewRawLogStore(pool *Pool) *RawLogStore {
	return &RawLogStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RawLogStore = (*RawLogStore)(nil)

var rawLogColumns = []string{
	"record_id", "source", "key", "symbol", "name", "chain", "observed_at", "ingested_at", "record",
}

// AppendBulk writes every record in one transaction using COPY.
func (s *RawLogStore) AppendBulk(ctx context.Context, records []*domain.CandidateRecord, ingestedAt time.Time) (n int, err error) {
	if len(records) == 0 {
		return 0, nil
	}
	start := time.Now()
	defer func() { observe("raw_append", start, err) }()

	rows := make([][]any, 0, len(records))
	for _, r := range records {
		if r == nil {
			return 0, storage.ErrInvalidInput
		}
		payload, err := json.Marshal(r)
		if err != nil {
			return 0, fmt.Errorf("marshal raw record: %w", err)
		}
		rows = append(rows, []any{
			idhash.ForRecord(r),
			string(r.Source),
			r.Key(),
			r.Symbol,
			r.Name,
			r.Chain,
			r.ObservedAt.UTC(),
			ingestedAt.UTC(),
			payload,
		})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"raw_log"}, rawLogColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy raw records: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return int(copied), nil
}

// GetByObservedRange retrieves rows with observed_at in [start, end).
func (s *RawLogStore) GetByObservedRange(ctx context.Context, start, end time.Time) ([]*domain.RawEntry, error) {
	query := `
		SELECT id, record_id, key, ingested_at, record
		FROM raw_log
		WHERE observed_at >= $1 AND observed_at < $2
		ORDER BY observed_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("get raw log by observed range: %w", err)
	}
	defer rows.Close()

	return scanRawEntries(rows)
}

// DeleteInWindowExcept deletes rows with observed_at in [start, end) whose key is not in keep.
func (s *RawLogStore) DeleteInWindowExcept(ctx context.Context, start, end time.Time, keep []string) (n int64, err error) {
	begin := time.Now()
	defer func() { observe("raw_purge_window", begin, err) }()

	// A NULL array would make the NOT ANY predicate NULL and delete nothing.
	if keep == nil {
		keep = []string{}
	}

	query := `
		DELETE FROM raw_log
		WHERE observed_at >= $1 AND observed_at < $2
		  AND NOT (key = ANY($3))
	`

	tag, err := s.pool.Exec(ctx, query, start.UTC(), end.UTC(), keep)
	if err != nil {
		return 0, fmt.Errorf("delete non-passed raw rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteObservedBefore deletes rows with observed_at < cutoff.
func (s *RawLogStore) DeleteObservedBefore(ctx context.Context, cutoff time.Time) (n int64, err error) {
	start := time.Now()
	defer func() { observe("raw_purge_expired", start, err) }()

	tag, err := s.pool.Exec(ctx, `DELETE FROM raw_log WHERE observed_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired raw rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of rows currently stored.
func (s *RawLogStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM raw_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count raw log: %w", err)
	}
	return n, nil
}

// scanRawEntries scans multiple rows into a slice of RawEntry.
func scanRawEntries(rows pgx.Rows) ([]*domain.RawEntry, error) {
	var result []*domain.RawEntry
	for rows.Next() {
		var e domain.RawEntry
		var payload []byte
		if err := rows.Scan(&e.ID, &e.RecordID, &e.Key, &e.IngestedAt, &payload); err != nil {
			return nil, fmt.Errorf("scan raw entry: %w", err)
		}
		var r domain.CandidateRecord
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("decode raw record %d: %w", e.ID, err)
		}
		e.Record = &r
		e.IngestedAt = e.IngestedAt.UTC()
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw entries: %w", err)
	}
	return result, nil
}
