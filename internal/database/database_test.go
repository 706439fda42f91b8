package database_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"shipflow/internal/config"
	"shipflow/internal/database"
)

func openTemp(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.OpenPath(context.Background(), filepath.Join(t.TempDir(), "shipflow.db"))
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenCreatesSchema(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Locks.Dir = filepath.Join(cfg.Paths.DataDir, "locks")

	db, err := database.Open(&cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.Path() != cfg.DatabasePath() {
		t.Fatalf("unexpected path %q", db.Path())
	}
	health, err := db.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.IntegrityCheck {
		t.Fatalf("unexpected health %+v", health)
	}
	if len(health.MissingTables) != 0 {
		t.Fatalf("missing tables: %v", health.MissingTables)
	}
	if health.SchemaVersion != database.SchemaVersion {
		t.Fatalf("schema version = %d, want %d", health.SchemaVersion, database.SchemaVersion)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shipflow.db")
	ctx := context.Background()

	db, err := database.OpenPath(ctx, path)
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	now := database.Millis(time.Now())
	if _, err := db.Exec(ctx, `INSERT INTO shipments (id, first_seen_at, created_at, updated_at) VALUES (?, ?, ?, ?)`, "shp_1", now, now, now); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_ = db.Close()

	db, err = database.OpenPath(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()
	var count int
	if err := db.QueryRow(ctx, `SELECT COUNT(1) FROM shipments`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 shipment after reopen, got %d", count)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shipflow.db")
	ctx := context.Background()

	db, err := database.OpenPath(ctx, path)
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	if _, err := db.Exec(ctx, `UPDATE schema_version SET version = ?`, database.SchemaVersion+1); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := database.OpenPath(ctx, path); !errors.Is(err, database.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()
	boom := errors.New("boom")
	now := database.Millis(time.Now())

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO shipments (id, first_seen_at, created_at, updated_at) VALUES ('shp_tx', ?, ?, ?)`, now, now, now); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	var count int
	if err := db.QueryRow(ctx, `SELECT COUNT(1) FROM shipments`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback, found %d rows", count)
	}
}

func TestLiveQueueEntryUniqueness(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()
	now := database.Millis(time.Now())
	insert := `INSERT OR IGNORE INTO queue_entries (queue_name, entity_id, reason, state, next_visible_at, created_at, updated_at) VALUES ('events', 'shp_1', 'packaging', ?, ?, ?, ?)`

	for _, state := range []string{"pending", "pending", "dead", "dead"} {
		if _, err := db.Exec(ctx, insert, state, now, now, now); err != nil {
			t.Fatalf("insert %s: %v", state, err)
		}
	}
	var live, dead int
	if err := db.QueryRow(ctx, `SELECT COUNT(1) FROM queue_entries WHERE state = 'pending'`).Scan(&live); err != nil {
		t.Fatalf("count live: %v", err)
	}
	if err := db.QueryRow(ctx, `SELECT COUNT(1) FROM queue_entries WHERE state = 'dead'`).Scan(&dead); err != nil {
		t.Fatalf("count dead: %v", err)
	}
	if live != 1 || dead != 2 {
		t.Fatalf("live=%d dead=%d, want 1 and 2", live, dead)
	}
}

func TestMillisRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 0, int(250*time.Millisecond), time.UTC)
	if got := database.FromMillis(database.Millis(at)); !got.Equal(at) {
		t.Fatalf("round trip = %v, want %v", got, at)
	}
	if database.NullableMillis(nil) != nil {
		t.Fatal("expected nil for missing time")
	}
	if database.TimePtr(sql.NullInt64{}) != nil {
		t.Fatal("expected nil pointer for null column")
	}
	if got := database.Placeholders(3); got != "?,?,?" {
		t.Fatalf("Placeholders(3) = %q", got)
	}
}
