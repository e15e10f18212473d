package dashboard

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore keeps documents as JSON in the dashboards table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store on an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, path string) (Document, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT document FROM dashboards WHERE path = ?", path,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying dashboard: %w", err)
	}
	return ParseDocument([]byte(data))
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, path string, doc Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshalling dashboard: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dashboards (path, document, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
			document = excluded.document,
			updated_at = excluded.updated_at`,
		path,
		string(data),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving dashboard: %w", err)
	}
	return nil
}
