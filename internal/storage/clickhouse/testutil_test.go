package clickhouse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestConn starts a ClickHouse container with the run_log table created.
func newTestConn(t *testing.T) *Conn {
	t.Helper()
	if testing.Short() {
		t.Skip("clickhouse integration test skipped in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "clickhouse/clickhouse-server:24.1-alpine",
			ExposedPorts: []string{nativePort + "/tcp"},
			Env:          map[string]string{"CLICKHOUSE_DB": "screener"},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready for connections").WithStartupTimeout(60*time.Second),
				wait.ForListeningPort(nativePort+"/tcp"),
			),
		},
		Started: true,
	})
	require.NoError(t, err, "start clickhouse container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, nativePort)
	require.NoError(t, err)

	conn, err := NewConn(ctx, fmt.Sprintf("clickhouse://default@%s:%s/screener", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	files, err := filepath.Glob(filepath.Join("..", "migrations", "clickhouse", "*.sql"))
	require.NoError(t, err)
	for _, f := range files {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		for _, stmt := range strings.Split(string(data), ";") {
			if stmt = uncomment(stmt); stmt != "" {
				require.NoError(t, conn.Exec(ctx, stmt), "apply %s", filepath.Base(f))
			}
		}
	}
	return conn
}

func uncomment(stmt string) string {
	var b strings.Builder
	for _, line := range strings.Split(stmt, "\n") {
		if !strings.HasPrefix(strings.TrimSpace(line), "--") {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return strings.TrimSpace(b.String())
}
