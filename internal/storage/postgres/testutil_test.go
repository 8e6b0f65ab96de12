package postgres

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestPool starts a throwaway PostgreSQL container with the schema applied.
// The container is terminated when the test ends.
func newTestPool(t *testing.T) *Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration test skipped in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("screener"),
		postgres.WithUsername("screener"),
		postgres.WithPassword("screener"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applySchema(t, pool)
	return pool
}

// applySchema executes the migration files in lexical order. The migrations
// package cannot be imported here because it depends on this package.
func applySchema(t *testing.T, pool *Pool) {
	t.Helper()

	files, err := filepath.Glob(filepath.Join("..", "migrations", "postgres", "*.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "no postgres migrations found")

	for _, f := range files {
		sql, err := os.ReadFile(f)
		require.NoError(t, err)
		_, err = pool.Exec(context.Background(), string(sql))
		require.NoError(t, err, "apply %s", filepath.Base(f))
	}
}

func ptr[T any](v T) *T {
	return &v
}
