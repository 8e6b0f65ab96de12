package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"token-screener/internal/storage/postgres"
)

const schemaMigrationsDDL = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		filename    TEXT PRIMARY KEY,
		applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// RunPostgresMigrations applies embedded SQL files in lexical order.
// Each file is applied once and recorded in schema_migrations within the same transaction.
// Returns the names of the files applied by this call.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) ([]string, error) {
	if _, err := pool.Exec(ctx, schemaMigrationsDDL); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	files, err := sqlFiles(PostgresFS)
	if err != nil {
		return nil, fmt.Errorf("read embedded postgres migrations: %w", err)
	}

	var applied []string
	for _, file := range files {
		var done bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE filename = $1)`, file,
		).Scan(&done)
		if err != nil {
			return applied, fmt.Errorf("check migration %s: %w", file, err)
		}
		if done {
			continue
		}

		data, err := fs.ReadFile(PostgresFS, file)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", file, err)
		}

		if err := applyPostgres(ctx, pool, file, string(data)); err != nil {
			return applied, err
		}
		applied = append(applied, file)
	}

	return applied, nil
}

func applyPostgres(ctx context.Context, pool *postgres.Pool, file, sql string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", file, err)
	}
	defer tx.Rollback(ctx)

	if strings.TrimSpace(sql) != "" {
		if _, err := tx.Exec(ctx, sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, file); err != nil {
		return fmt.Errorf("record migration %s: %w", file, err)
	}
	return tx.Commit(ctx)
}
