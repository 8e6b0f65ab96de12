package migrations

import (
	"strings"
	"testing"
)

func TestEmbeddedFilesPresent(t *testing.T) {
	pg, err := sqlFiles(PostgresFS)
	if err != nil {
		t.Fatalf("read postgres migrations: %v", err)
	}
	want := []string{"001_raw_log.sql", "002_passed_assets.sql", "003_run_log.sql", "004_run_leases.sql"}
	if strings.Join(pg, ",") != strings.Join(want, ",") {
		t.Errorf("postgres migrations = %v, want %v", pg, want)
	}

	ch, err := sqlFiles(ClickhouseFS)
	if err != nil {
		t.Fatalf("read clickhouse migrations: %v", err)
	}
	if len(ch) == 0 {
		t.Error("expected at least one clickhouse migration")
	}
}

func TestSplitStatements(t *testing.T) {
	input := `
-- header comment
CREATE TABLE a (x UInt8) ENGINE = Memory;

CREATE TABLE b (y String) ENGINE = Memory;
`
	stmts := splitStatements(input)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if !strings.HasPrefix(stmts[1], "CREATE TABLE b") {
		t.Errorf("unexpected second statement: %q", stmts[1])
	}
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	if err := validateNoSemicolonInStrings(`SELECT 'it''s fine';`); err != nil {
		t.Errorf("escaped quote should be accepted: %v", err)
	}
	if err := validateNoSemicolonInStrings(`SELECT 'a;b';`); err == nil {
		t.Error("expected error for semicolon inside literal")
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://localhost:9000/screener")
	if err != nil || db != "screener" {
		t.Errorf("databaseFromDSN() = %q, %v", db, err)
	}
	if _, err := databaseFromDSN("clickhouse://localhost:9000"); err == nil {
		t.Error("expected error for missing database")
	}
}
