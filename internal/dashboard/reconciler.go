package dashboard

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Defaults for Options.
const (
	DefaultPath      = "womgr"
	DefaultViewTitle = "HaWoManager"
)

// Logger defines the logging interface used by the Reconciler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Reconciler.
type Options struct {
	// DefaultPath is the view used by devices without their own path.
	DefaultPath string

	// ViewTitle is the title given to views the reconciler creates.
	ViewTitle string
}

// Result summarises one Reconcile call.
type Result struct {
	Path     string `json:"path"`
	Upserted int    `json:"upserted"`
	Removed  int    `json:"removed"`
	Saved    bool   `json:"saved"`
}

// Reconciler merges device cards into stored dashboard documents.
//
// Each load→modify→save cycle holds the lock for its resolved path, so
// concurrent upserts into one view never lose each other's card.
type Reconciler struct {
	store  Store
	opts   Options
	logger Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewReconciler creates a reconciler over store.
func NewReconciler(store Store, opts Options) *Reconciler {
	if opts.DefaultPath == "" {
		opts.DefaultPath = DefaultPath
	}
	if opts.ViewTitle == "" {
		opts.ViewTitle = DefaultViewTitle
	}
	return &Reconciler{
		store:  store,
		opts:   opts,
		logger: noopLogger{},
		locks:  make(map[string]*sync.Mutex),
	}
}

// SetLogger sets the logger for the reconciler.
func (r *Reconciler) SetLogger(logger Logger) {
	r.logger = logger
}

// DefaultPath returns the view used for devices without their own path.
func (r *Reconciler) DefaultPath() string {
	return r.opts.DefaultPath
}

// ResolvePath returns the view path a card belongs to.
func (r *Reconciler) ResolvePath(spec CardSpec) string {
	if spec.Path != "" {
		return spec.Path
	}
	return r.opts.DefaultPath
}

// lock acquires the mutex for path and returns its release function.
func (r *Reconciler) lock(path string) func() {
	r.mu.Lock()
	l, ok := r.locks[path]
	if !ok {
		l = &sync.Mutex{}
		r.locks[path] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// load returns the stored document or an empty one when none exists.
// existed reports whether the store had a document.
func (r *Reconciler) load(ctx context.Context, path string) (doc Document, existed bool, err error) {
	doc, err = r.store.Load(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return NewDocument(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading dashboard %q: %w", path, err)
	}
	if doc == nil {
		doc = NewDocument()
	}
	return doc, true, nil
}

func (r *Reconciler) save(ctx context.Context, path string, doc Document) error {
	if err := r.store.Save(ctx, path, doc); err != nil {
		return fmt.Errorf("saving dashboard %q: %w", path, err)
	}
	return nil
}

// UpsertCard writes the card for spec into its view. A card with the same
// title is replaced in place; otherwise the card is appended. A missing
// document or view is created.
func (r *Reconciler) UpsertCard(ctx context.Context, spec CardSpec) error {
	path := r.ResolvePath(spec)
	unlock := r.lock(path)
	defer unlock()

	doc, _, err := r.load(ctx, path)
	if err != nil {
		return err
	}

	view := doc.ensureView(path, r.opts.ViewTitle)
	replaced := upsert(view, BuildCard(spec, path))

	if err := r.save(ctx, path, doc); err != nil {
		return err
	}
	r.logger.Debug("dashboard card upserted", "path", path, "device", spec.Name, "replaced", replaced)
	return nil
}

// RemoveCard deletes every card titled with the device name from its view.
// A missing document or view is a no-op and nothing is saved.
func (r *Reconciler) RemoveCard(ctx context.Context, spec CardSpec) error {
	path := r.ResolvePath(spec)
	unlock := r.lock(path)
	defer unlock()

	doc, existed, err := r.load(ctx, path)
	if err != nil {
		return err
	}
	if !existed {
		return nil
	}
	view := doc.view(path)
	if view == nil {
		return nil
	}

	removed := filterCards(view, func(card any) bool {
		return cardTitle(card) != spec.Name
	})

	if err := r.save(ctx, path, doc); err != nil {
		return err
	}
	r.logger.Debug("dashboard card removed", "path", path, "device", spec.Name, "removed", removed)
	return nil
}

// Reconcile makes the managed cards of the view at path match specs. Specs
// that resolve to another path are ignored. Listed cards are upserted and
// managed cards that are not listed are dropped; cards without the managed
// marker are never touched. The document is saved only if it changed.
func (r *Reconciler) Reconcile(ctx context.Context, specs []CardSpec, path string) (Result, error) {
	if path == "" {
		path = r.opts.DefaultPath
	}
	res := Result{Path: path}

	unlock := r.lock(path)
	defer unlock()

	doc, _, err := r.load(ctx, path)
	if err != nil {
		return res, err
	}
	before := doc.Clone()

	view := doc.ensureView(path, r.opts.ViewTitle)
	wanted := make(map[string]bool)
	for _, spec := range specs {
		if r.ResolvePath(spec) != path {
			continue
		}
		wanted[spec.Name] = true
		upsert(view, BuildCard(spec, path))
		res.Upserted++
	}

	res.Removed = filterCards(view, func(card any) bool {
		return !managed(card) || wanted[cardTitle(card)]
	})

	if reflect.DeepEqual(before, doc) {
		return res, nil
	}
	if err := r.save(ctx, path, doc); err != nil {
		return res, err
	}
	res.Saved = true

	r.logger.Info("dashboard reconciled",
		"path", path,
		"upserted", res.Upserted,
		"removed", res.Removed,
	)
	return res, nil
}

// ReconcileAll reconciles the default view and every view referenced by
// specs.
func (r *Reconciler) ReconcileAll(ctx context.Context, specs []CardSpec) ([]Result, error) {
	paths := map[string]bool{r.opts.DefaultPath: true}
	for _, spec := range specs {
		paths[r.ResolvePath(spec)] = true
	}
	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	results := make([]Result, 0, len(sorted))
	var errs []error
	for _, p := range sorted {
		res, err := r.Reconcile(ctx, specs, p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// upsert replaces the first card with the same title, keeping its
// position, or appends. Any further cards with that title are dropped.
func upsert(view map[string]any, card map[string]any) (replaced bool) {
	title := cardTitle(card)
	cards := viewCards(view)
	out := make([]any, 0, len(cards)+1)
	for _, c := range cards {
		if cardTitle(c) != title {
			out = append(out, c)
			continue
		}
		if !replaced {
			out = append(out, card)
			replaced = true
		}
	}
	if !replaced {
		out = append(out, card)
	}
	view["cards"] = out
	return replaced
}

// filterCards keeps the cards for which keep returns true and reports how
// many were dropped.
func filterCards(view map[string]any, keep func(any) bool) int {
	cards := viewCards(view)
	out := make([]any, 0, len(cards))
	for _, c := range cards {
		if keep(c) {
			out = append(out, c)
		}
	}
	view["cards"] = out
	return len(cards) - len(out)
}
