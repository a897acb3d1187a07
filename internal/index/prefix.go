package index

import (
	"fmt"

	"github.com/starford/notelog/internal/apperr"
	"github.com/starford/notelog/internal/noteid"
)

// ResolvePrefix maps an identifier prefix to exactly one live note.
// Prefixes shorter than two characters are rejected; identifiers starting
// with the reserved sentinel are never matched. Zero matches yield
// ErrNotFound, two or more an AmbiguousError carrying the count.
func (db *DB) ResolvePrefix(prefix string) (*NoteRow, error) {
	p, err := noteid.NormalizePrefix(prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrNotFound, err)
	}

	var count int
	err = db.conn.QueryRow(`
		SELECT count(*) FROM notes
		WHERE tombstoned_at IS NULL
		  AND id LIKE ? || '%'
		  AND substr(id, 1, 1) != ?
	`, p, string(noteid.ReservedSentinel)).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("index: prefix count: %w", err)
	}

	switch {
	case count == 0:
		return nil, fmt.Errorf("%w: no note matches id prefix %q", apperr.ErrNotFound, p)
	case count > 1:
		return nil, &apperr.AmbiguousError{Prefix: p, Count: count}
	}

	return db.queryNote(`
		SELECT `+noteColumns+` FROM notes
		WHERE tombstoned_at IS NULL
		  AND id LIKE ? || '%'
		  AND substr(id, 1, 1) != ?
	`, p, string(noteid.ReservedSentinel))
}
