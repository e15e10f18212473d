package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// historyTimeFormat is fixed-width so timestamps sort as strings.
	historyTimeFormat = "2006-01-02T15:04:05.000000000Z"
)

// SQLiteHistoryRepository implements HistoryRepository on the
// device_history table.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a history repository.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// Record implements HistoryRepository.
func (r *SQLiteHistoryRepository) Record(ctx context.Context, device, event, source, detail string) error {
	if device == "" {
		return fmt.Errorf("device name is required")
	}
	if event == "" {
		return fmt.Errorf("event is required")
	}
	if source == "" {
		source = HistorySourceAPI
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO device_history (device, event, source, detail, created_at) VALUES (?, ?, ?, ?, ?)",
		device,
		event,
		source,
		detail,
		time.Now().UTC().Format(historyTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting device history: %w", err)
	}
	return nil
}

// List implements HistoryRepository. limit defaults to 50 and is capped at
// 200.
func (r *SQLiteHistoryRepository) List(ctx context.Context, device string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device, event, source, detail, created_at
		 FROM device_history
		 WHERE device = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		device,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying device history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0)
	for rows.Next() {
		var e HistoryEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Device, &e.Event, &e.Source, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning device history: %w", err)
		}
		ts, err := parseHistoryTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		e.CreatedAt = ts
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device history: %w", err)
	}
	return entries, nil
}

// Prune deletes events older than olderThan and returns how many were
// removed.
func (r *SQLiteHistoryRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(historyTimeFormat)
	result, err := r.db.ExecContext(ctx, "DELETE FROM device_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting device history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// parseHistoryTimestamp accepts both the nanosecond form written by Record
// and the second-resolution column default.
func parseHistoryTimestamp(value string) (time.Time, error) {
	if ts, err := time.Parse(historyTimeFormat, value); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at %q: %w", value, err)
	}
	return ts, nil
}
