// Package apperr defines the application error taxonomy. Callers branch on
// these values instead of inspecting storage or SQL errors directly.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrMalformedNote marks a file that failed parsing or validation.
	// The file is skipped and logged, never indexed partially.
	ErrMalformedNote = errors.New("malformed note")

	// ErrInvalidTag marks a rejected tag before any mutation is applied.
	ErrInvalidTag = errors.New("invalid tag")

	// ErrInvalidQuery marks a search query that failed validation, for
	// example unbalanced quotes or parentheses.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrIndexInconsistency marks an atomic index commit that failed after a
	// retry. Recovering requires a full reindex.
	ErrIndexInconsistency = errors.New("index inconsistency")
)

// AmbiguousError is returned when an identifier prefix matches more than one
// note. It carries the match count so callers can ask for a longer prefix.
type AmbiguousError struct {
	Prefix string
	Count  int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous id prefix %q: %d matches", e.Prefix, e.Count)
}

// IsAmbiguous reports whether err wraps an AmbiguousError.
func IsAmbiguous(err error) (*AmbiguousError, bool) {
	var ae *AmbiguousError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
