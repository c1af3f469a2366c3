package sqlite

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openRawDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", MemoryPath)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func objectExists(t *testing.T, db *sql.DB, typ, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?`, typ, name).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master query error = %v", err)
	}
	return n == 1
}

func TestMigrate_CreatesSchema(t *testing.T) {
	db := openRawDB(t)
	if err := migrate(context.Background(), db, migrations); err != nil {
		t.Fatalf("migrate() error = %v", err)
	}

	for _, table := range []string{"schema_migrations", "outbox_items", "cycle_history"} {
		if !objectExists(t, db, "table", table) {
			t.Errorf("table %s missing", table)
		}
	}
	for _, index := range []string{
		"idx_outbox_items_kind",
		"idx_outbox_items_retry",
		"idx_cycle_history_queue",
		"idx_cycle_history_finished",
	} {
		if !objectExists(t, db, "index", index) {
			t.Errorf("index %s missing", index)
		}
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := openRawDB(t)

	for i := 0; i < 2; i++ {
		if err := migrate(ctx, db, migrations); err != nil {
			t.Fatalf("migrate() run %d error = %v", i+1, err)
		}
	}

	var rows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != len(migrations) {
		t.Errorf("schema_migrations has %d rows, want %d", rows, len(migrations))
	}
}

func TestMigrate_FailedMigrationRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openRawDB(t)

	list := []migration{
		{1, "good", []string{`CREATE TABLE a (id INTEGER)`}},
		{2, "bad", []string{`CREATE TABLE b (id INTEGER)`, `NOT SQL`}},
	}
	if err := migrate(ctx, db, list); err == nil {
		t.Fatal("migrate() should fail on invalid SQL")
	}

	version, err := schemaVersion(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if version != 1 {
		t.Errorf("schema version = %d, want 1", version)
	}
	if objectExists(t, db, "table", "b") {
		t.Error("statements of the failed migration should be rolled back")
	}

	list[1].stmts = []string{`CREATE TABLE b (id INTEGER)`}
	if err := migrate(ctx, db, list); err != nil {
		t.Fatalf("migrate() after fix error = %v", err)
	}
	if version, _ := schemaVersion(ctx, db); version != 2 {
		t.Errorf("schema version = %d, want 2", version)
	}
}

func TestMigrations_Ordered(t *testing.T) {
	for i := 1; i < len(migrations); i++ {
		if migrations[i].version <= migrations[i-1].version {
			t.Errorf("migration %q version %d is not above %d", migrations[i].name, migrations[i].version, migrations[i-1].version)
		}
	}
}
