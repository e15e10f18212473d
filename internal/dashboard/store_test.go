package dashboard

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func TestMemoryStore_CopiesDocuments(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Load(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}

	doc := Document{"views": []any{map[string]any{"path": "x", "cards": []any{}}}}
	if err := s.Save(ctx, "x", doc); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	doc["views"] = []any{}

	got, err := s.Load(ctx, "x")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.view("x") == nil {
		t.Error("store shares the caller's document")
	}
}

func TestMemoryStore_RejectsInvalid(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Save(context.Background(), "x", Document{"views": "nope"}); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("Save() error = %v, want ErrInvalidDocument", err)
	}
}

func TestParseDocument(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"empty object", `{}`, false},
		{"views", `{"views":[{"path":"a","cards":[]}]}`, false},
		{"extra keys", `{"title":"x","views":[{"path":"a","icon":"mdi:x"}]}`, false},
		{"not json", `views`, true},
		{"null", `null`, true},
		{"array", `[]`, true},
		{"views not list", `{"views":{}}`, true},
		{"view not object", `{"views":[1]}`, true},
		{"cards not list", `{"views":[{"cards":"x"}]}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDocument(%s) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidDocument) {
				t.Errorf("error %v does not wrap ErrInvalidDocument", err)
			}
		})
	}
}

func setupDashboardTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE dashboards (
			path TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	s := NewSQLiteStore(setupDashboardTestDB(t))
	ctx := context.Background()

	if _, err := s.Load(ctx, "womgr"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}

	r := NewReconciler(s, Options{})
	for _, name := range []string{"a", "b"} {
		if err := r.UpsertCard(ctx, spec(name)); err != nil {
			t.Fatalf("UpsertCard(%s) error = %v", name, err)
		}
	}
	if err := r.UpsertCard(ctx, spec("a")); err != nil {
		t.Fatalf("UpsertCard(a) again error = %v", err)
	}

	doc, err := s.Load(ctx, "womgr")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := doc.Titles("womgr"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("titles = %v, want [a b]", got)
	}

	res, err := r.Reconcile(ctx, []CardSpec{spec("a"), spec("b")}, "")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if res.Saved {
		t.Error("Reconcile() after round trip saved an unchanged document")
	}

	if _, err := s.Load(ctx, "other"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(other) error = %v, want ErrNotFound", err)
	}
}

func TestLovelaceStore(t *testing.T) {
	var (
		mu       sync.Mutex
		stored   []byte
		failures atomic.Int32
	)
	failures.Store(2)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/lovelace/config" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("url_path") != "womgr" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if failures.Add(-1) >= 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			if stored == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write(stored)
		case http.MethodPost:
			stored, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	s, err := NewLovelaceStore(LovelaceOptions{
		URL:        srv.URL + "/",
		Token:      "secret",
		Retries:    3,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewLovelaceStore() error = %v", err)
	}
	ctx := context.Background()

	// Two 503s, then a 404: retried, then reported as not found.
	if _, err := s.Load(ctx, "womgr"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}

	r := NewReconciler(s, Options{})
	if err := r.UpsertCard(ctx, spec("server")); err != nil {
		t.Fatalf("UpsertCard() error = %v", err)
	}

	mu.Lock()
	body := stored
	mu.Unlock()

	var saved Document
	if err := json.Unmarshal(body, &saved); err != nil {
		t.Fatalf("stored body is not JSON: %v", err)
	}
	if got := saved.Titles("womgr"); len(got) != 1 || got[0] != "server" {
		t.Errorf("titles = %v, want [server]", got)
	}
}

func TestLovelaceStore_ClientErrorsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s, err := NewLovelaceStore(LovelaceOptions{URL: srv.URL, Retries: 5, RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("NewLovelaceStore() error = %v", err)
	}

	_, err = s.Load(context.Background(), "womgr")
	var se *statusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Fatalf("Load() error = %v, want 401 status error", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestLovelaceStore_RequiresURL(t *testing.T) {
	if _, err := NewLovelaceStore(LovelaceOptions{URL: "  "}); err == nil {
		t.Error("NewLovelaceStore() with empty url error = nil")
	}
}

// Saves returns how many times Save succeeded.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
