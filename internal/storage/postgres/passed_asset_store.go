package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"token-screener/internal/domain"
	"token-screener/internal/storage"
)

// PassedAssetStore implements storage.PassedAssetStore using PostgreSQL.
type PassedAssetStore struct {
	pool *Pool
}

// NewPassedAssetStore creates a new PassedAssetStore.
func NewPassedAssetStore(pool *Pool) *PassedAssetStore {
	return &PassedAssetStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PassedAssetStore = (*PassedAssetStore)(nil)

const insertPassedAsset = `
	INSERT INTO passed_assets (
		identifier, source, symbol, name, chain, category, score,
		observed_at, first_seen_at, updated_at, payload
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

const onConflictIgnore = ` ON CONFLICT (identifier) DO NOTHING`

// first_seen_at is deliberately absent from the SET list.
const onConflictOverwrite = ` ON CONFLICT (identifier) DO UPDATE SET
		source      = EXCLUDED.source,
		symbol      = EXCLUDED.symbol,
		name        = EXCLUDED.name,
		chain       = EXCLUDED.chain,
		category    = EXCLUDED.category,
		score       = EXCLUDED.score,
		observed_at = EXCLUDED.observed_at,
		updated_at  = EXCLUDED.updated_at,
		payload     = EXCLUDED.payload`

// UpsertBulk writes assets in one transaction, resolving conflicts per policy.
func (s *PassedAssetStore) UpsertBulk(ctx context.Context, assets []*domain.PassedAsset, policy domain.ConflictPolicy) (n int, err error) {
	var query string
	switch policy {
	case domain.ConflictIgnore:
		query = insertPassedAsset + onConflictIgnore
	case domain.ConflictOverwrite:
		query = insertPassedAsset + onConflictOverwrite
	default:
		return 0, storage.ErrInvalidInput
	}
	if len(assets) == 0 {
		return 0, nil
	}

	start := time.Now()
	defer func() { observe("passed_upsert", start, err) }()

	batch := &pgx.Batch{}
	for _, a := range assets {
		if a == nil || a.Identifier == "" {
			return 0, storage.ErrInvalidInput
		}
		batch.Queue(query,
			a.Identifier,
			string(a.Source),
			a.Symbol,
			a.Name,
			a.Chain,
			string(a.Category),
			a.Score,
			a.ObservedAt.UTC(),
			a.FirstSeenAt.UTC(),
			a.UpdatedAt.UTC(),
			[]byte(a.Payload),
		)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	written := 0
	for range assets {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("upsert passed asset: %w", err)
		}
		written += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return written, nil
}

// GetByIdentifier retrieves an asset. Returns ErrNotFound if not exists.
func (s *PassedAssetStore) GetByIdentifier(ctx context.Context, identifier string) (*domain.PassedAsset, error) {
	query := `
		SELECT identifier, source, symbol, name, chain, category, score,
		       observed_at, first_seen_at, updated_at, payload
		FROM passed_assets
		WHERE identifier = $1
	`

	a, err := scanPassedAsset(s.pool.QueryRow(ctx, query, identifier))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get passed asset: %w", err)
	}
	return a, nil
}

// List returns all assets ordered by first_seen_at ASC, identifier ASC.
func (s *PassedAssetStore) List(ctx context.Context) ([]*domain.PassedAsset, error) {
	query := `
		SELECT identifier, source, symbol, name, chain, category, score,
		       observed_at, first_seen_at, updated_at, payload
		FROM passed_assets
		ORDER BY first_seen_at ASC, identifier ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list passed assets: %w", err)
	}
	defer rows.Close()

	var result []*domain.PassedAsset
	for rows.Next() {
		a, err := scanPassedAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan passed asset: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passed assets: %w", err)
	}
	return result, nil
}

// scanPassedAsset scans a single row into a PassedAsset.
func scanPassedAsset(row pgx.Row) (*domain.PassedAsset, error) {
	var a domain.PassedAsset
	var source, category string
	var payload []byte

	err := row.Scan(
		&a.Identifier,
		&source,
		&a.Symbol,
		&a.Name,
		&a.Chain,
		&category,
		&a.Score,
		&a.ObservedAt,
		&a.FirstSeenAt,
		&a.UpdatedAt,
		&payload,
	)
	if err != nil {
		return nil, err
	}

	a.Source = domain.Source(source)
	a.Category = domain.Category(category)
	a.Payload = payload
	a.ObservedAt = a.ObservedAt.UTC()
	a.FirstSeenAt = a.FirstSeenAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}
