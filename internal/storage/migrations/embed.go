// Package migrations embeds the PostgreSQL and ClickHouse schema and applies it.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
)

//go:embed postgres/*.sql clickhouse/*.sql
var schema embed.FS

// Dialect views of the embedded schema, rooted at their directory.
var (
	PostgresFS   = dialect("postgres")
	ClickhouseFS = dialect("clickhouse")
)

func dialect(dir string) fs.FS {
	sub, err := fs.Sub(schema, dir)
	if err != nil {
		panic(err) // the directory is embedded above
	}
	return sub
}

// sqlFiles lists the .sql files at the root of fsys in lexical order.
func sqlFiles(fsys fs.FS) ([]string, error) {
	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
