package device

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupHistoryTestDB creates an in-memory SQLite database with the
// device_history table.
func setupHistoryTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE device_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device TEXT NOT NULL,
			event TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT 'api',
			detail TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestHistory_RecordAndList(t *testing.T) {
	repo := NewSQLiteHistoryRepository(setupHistoryTestDB(t))
	ctx := context.Background()

	for _, ev := range []string{HistoryRegistered, HistoryOnline, HistoryOffline} {
		if err := repo.Record(ctx, "server", ev, HistorySourceMonitor, ""); err != nil {
			t.Fatalf("Record(%s) error = %v", ev, err)
		}
	}
	if err := repo.Record(ctx, "other", HistoryWake, "", "burst=3"); err != nil {
		t.Fatalf("Record(other) error = %v", err)
	}

	entries, err := repo.List(ctx, "server", 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].Event != HistoryOffline || entries[2].Event != HistoryRegistered {
		t.Errorf("order = %s..%s, want newest first", entries[0].Event, entries[2].Event)
	}
	if entries[0].Source != HistorySourceMonitor {
		t.Errorf("Source = %q", entries[0].Source)
	}

	other, err := repo.List(ctx, "other", 0)
	if err != nil {
		t.Fatalf("List(other) error = %v", err)
	}
	if len(other) != 1 || other[0].Source != HistorySourceAPI || other[0].Detail != "burst=3" {
		t.Errorf("other = %+v, want one api wake entry with detail", other)
	}
}

func TestHistory_Validation(t *testing.T) {
	repo := NewSQLiteHistoryRepository(setupHistoryTestDB(t))
	ctx := context.Background()

	if err := repo.Record(ctx, "", HistoryWake, "", ""); err == nil {
		t.Error("Record() with empty device error = nil")
	}
	if err := repo.Record(ctx, "server", "", "", ""); err == nil {
		t.Error("Record() with empty event error = nil")
	}
}

func TestHistory_ListLimit(t *testing.T) {
	repo := NewSQLiteHistoryRepository(setupHistoryTestDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = repo.Record(ctx, "server", HistoryOnline, "", "")
	}
	entries, err := repo.List(ctx, "server", 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("entries = %d, want 2", len(entries))
	}
}

func TestHistory_Prune(t *testing.T) {
	db := setupHistoryTestDB(t)
	repo := NewSQLiteHistoryRepository(db)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour).Format(historyTimeFormat)
	if _, err := db.Exec("INSERT INTO device_history (device, event, created_at) VALUES ('server', 'online', ?)", old); err != nil {
		t.Fatalf("insert old row: %v", err)
	}
	_ = repo.Record(ctx, "server", HistoryOffline, "", "")

	n, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	if _, err := repo.Prune(ctx, 0); err == nil {
		t.Error("Prune(0) error = nil")
	}
}

func TestParseHistoryTimestamp(t *testing.T) {
	for _, v := range []string{"2026-10-19T12:00:00Z", "2026-10-19T12:00:00.123456789Z"} {
		if _, err := parseHistoryTimestamp(v); err != nil {
			t.Errorf("parseHistoryTimestamp(%q) error = %v", v, err)
		}
	}
	if _, err := parseHistoryTimestamp(""); err == nil {
		t.Error("parseHistoryTimestamp(\"\") error = nil")
	}
}
