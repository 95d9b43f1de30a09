package migrate_test

import (
	"testing"

	"docketline/internal/db"
	"docketline/internal/migrate"
)

func TestMigrateIsRerunnable(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// a second run finds nothing pending
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var v int
	if err := conn.QueryRow(`SELECT version FROM schema_version`).Scan(&v); err != nil || v < 1 {
		t.Fatalf("schema_version = %d, %v", v, err)
	}
	for _, table := range []string{"cases", "documents", "events", "deadlines", "tasks", "case_log", "catalogs"} {
		if _, err := conn.Exec(`SELECT 1 FROM ` + table + ` LIMIT 1`); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}
