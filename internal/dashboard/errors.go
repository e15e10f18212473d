package dashboard

import "errors"

var (
	// ErrNotFound is returned by a Store when no document exists for a path.
	// The reconciler treats it as an empty document.
	ErrNotFound = errors.New("dashboard: document not found")

	// ErrInvalidDocument is returned when stored data is not a document.
	ErrInvalidDocument = errors.New("dashboard: invalid document")
)
