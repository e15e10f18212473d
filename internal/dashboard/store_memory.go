package dashboard

import (
	"context"
	"sync"
)

// MemoryStore keeps documents in process memory. Loads and saves copy the
// document, so callers never share a tree with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]Document
	saves int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, path string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[path] = doc.Clone()
	s.saves++
	return nil
}
