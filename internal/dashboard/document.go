package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
)

// Document is a dashboard configuration tree as decoded from JSON.
type Document map[string]any

// Store loads and saves dashboard documents by view path.
type Store interface {
	// Load returns the document for path or ErrNotFound.
	Load(ctx context.Context, path string) (Document, error)

	// Save replaces the document for path.
	Save(ctx context.Context, path string, doc Document) error
}

// NewDocument returns an empty {"views": []} document.
func NewDocument() Document {
	return Document{"views": []any{}}
}

// ParseDocument decodes and validates a JSON document.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: null document", ErrInvalidDocument)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate checks the parts of the tree the reconciler relies on.
func (d Document) Validate() error {
	raw, ok := d["views"]
	if !ok || raw == nil {
		return nil
	}
	views, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("%w: views is %T, want list", ErrInvalidDocument, raw)
	}
	for i, v := range views {
		view, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: views[%d] is %T, want object", ErrInvalidDocument, i, v)
		}
		if cards, ok := view["cards"]; ok && cards != nil {
			if _, ok := cards.([]any); !ok {
				return fmt.Errorf("%w: views[%d].cards is %T, want list", ErrInvalidDocument, i, cards)
			}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneMap(d))
}

// Cards returns the cards of the view at path, or nil when the view does
// not exist.
func (d Document) Cards(path string) []map[string]any {
	view := d.view(path)
	if view == nil {
		return nil
	}
	var cards []map[string]any
	for _, c := range viewCards(view) {
		if m, ok := c.(map[string]any); ok {
			cards = append(cards, m)
		}
	}
	return cards
}

// Titles returns the card titles of the view at path in order.
func (d Document) Titles(path string) []string {
	var titles []string
	for _, c := range d.Cards(path) {
		titles = append(titles, cardTitle(c))
	}
	return titles
}

func (d Document) views() []any {
	views, _ := d["views"].([]any)
	return views
}

// view returns the view with the given path, or nil.
func (d Document) view(path string) map[string]any {
	for _, v := range d.views() {
		view, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if p, _ := view["path"].(string); p == path {
			return view
		}
	}
	return nil
}

// ensureView returns the view at path, appending a new one if needed.
func (d Document) ensureView(path, title string) map[string]any {
	if view := d.view(path); view != nil {
		if _, ok := view["cards"].([]any); !ok {
			view["cards"] = []any{}
		}
		return view
	}
	view := map[string]any{
		"path":  path,
		"title": title,
		"cards": []any{},
	}
	d["views"] = append(d.views(), view)
	return view
}

func viewCards(view map[string]any) []any {
	cards, _ := view["cards"].([]any)
	return cards
}

func cardTitle(card any) string {
	m, ok := card.(map[string]any)
	if !ok {
		return ""
	}
	title, _ := m["title"].(string)
	return title
}

// managed reports whether a card was written by the reconciler.
func managed(card any) bool {
	m, ok := card.(map[string]any)
	if !ok {
		return false
	}
	v, _ := m[managedKey].(bool)
	return v
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case Document:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
