package index

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/starford/notelog/internal/noteid"
	"github.com/starford/notelog/internal/tags"
)

// NoteRow represents a row in the notes table.
type NoteRow struct {
	ID          noteid.ID
	Path        string
	MTime       time.Time
	Created     time.Time
	Title       string
	Tags        []string
	Fingerprint string
	Tombstoned  bool
}

const noteColumns = `id, filepath, mtime, created, title, tags, fingerprint, tombstoned_at`

func scanNoteRow(s interface{ Scan(...any) error }) (*NoteRow, error) {
	var n NoteRow
	var id, tagsJSON string
	var tombstoned sql.NullTime
	if err := s.Scan(&id, &n.Path, &n.MTime, &n.Created, &n.Title, &tagsJSON, &n.Fingerprint, &tombstoned); err != nil {
		return nil, err
	}
	n.ID = noteid.ID(id)
	n.Tombstoned = tombstoned.Valid
	if err := json.Unmarshal([]byte(tagsJSON), &n.Tags); err != nil {
		return nil, fmt.Errorf("index: decode tags for %s: %w", id, err)
	}
	return &n, nil
}

// CommitUpsert writes a note and all its derived rows as one transaction:
// the note record, the tag ledger delta versus prevTags, and the full-text
// mirror. If displaced is non-nil, that note (a different id previously
// holding the same path) is tombstoned in the same transaction.
func (db *DB) CommitUpsert(n NoteRow, body string, prevTags []string, displaced *NoteRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if displaced != nil {
		if err := tombstoneTx(tx, displaced, time.Now()); err != nil {
			return err
		}
	}

	tagsJSON, _ := json.Marshal(n.Tags)
	_, err = tx.Exec(`
		INSERT INTO notes (id, filepath, mtime, created, title, content, tags, fingerprint, tombstoned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(id) DO UPDATE SET
			filepath      = excluded.filepath,
			mtime         = excluded.mtime,
			created       = excluded.created,
			title         = excluded.title,
			content       = excluded.content,
			tags          = excluded.tags,
			fingerprint   = excluded.fingerprint,
			tombstoned_at = NULL
	`, n.ID.String(), n.Path, n.MTime, n.Created, n.Title, body, string(tagsJSON), n.Fingerprint)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	added, removed := tags.Delta(prevTags, n.Tags)
	if err := applyTagDeltaTx(tx, added, removed); err != nil {
		return err
	}

	if err := ftsUpsert(tx, n.ID.String(), n.Title, body, n.Tags); err != nil {
		return err
	}

	return tx.Commit()
}

// CommitTombstone marks a note removed: the row is kept (with its
// fingerprint, for move detection) but disappears from the full-text mirror
// and its tags are released from the ledger.
func (db *DB) CommitTombstone(n *NoteRow, when time.Time) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := tombstoneTx(tx, n, when); err != nil {
		return err
	}
	return tx.Commit()
}

func tombstoneTx(tx *sql.Tx, n *NoteRow, when time.Time) error {
	res, err := tx.Exec(`UPDATE notes SET tombstoned_at = ? WHERE id = ? AND tombstoned_at IS NULL`,
		when, n.ID.String())
	if err != nil {
		return fmt.Errorf("index: tombstone note: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil // already tombstoned
	}
	if err := applyTagDeltaTx(tx, nil, n.Tags); err != nil {
		return err
	}
	ftsDelete(tx, n.ID.String())
	return nil
}

// applyTagDeltaTx adjusts the usage ledger for one note's tag changes.
// Only touched tags are read or written; entries that reach zero are pruned.
func applyTagDeltaTx(tx *sql.Tx, added, removed []string) error {
	for _, t := range added {
		if _, err := tx.Exec(`
			INSERT INTO tags (name, usage_count) VALUES (?, 1)
			ON CONFLICT(name) DO UPDATE SET usage_count = usage_count + 1
		`, t); err != nil {
			return fmt.Errorf("index: increment tag %q: %w", t, err)
		}
	}
	for _, t := range removed {
		if _, err := tx.Exec(`UPDATE tags SET usage_count = usage_count - 1 WHERE name = ?`, t); err != nil {
			return fmt.Errorf("index: decrement tag %q: %w", t, err)
		}
	}
	if len(removed) > 0 {
		if _, err := tx.Exec(`DELETE FROM tags WHERE usage_count <= 0`); err != nil {
			return fmt.Errorf("index: prune tags: %w", err)
		}
	}
	return nil
}

// PurgeTombstonesBefore removes tombstoned rows whose grace period has
// passed. Their derived rows were already released at tombstoning time.
func (db *DB) PurgeTombstonesBefore(cutoff time.Time) error {
	_, err := db.conn.Exec(`DELETE FROM notes WHERE tombstoned_at IS NOT NULL AND tombstoned_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("index: purge tombstones: %w", err)
	}
	return nil
}

// LiveNoteByPath returns the non-tombstoned note at path, or nil.
func (db *DB) LiveNoteByPath(path string) (*NoteRow, error) {
	return db.queryNote(`SELECT `+noteColumns+` FROM notes WHERE filepath = ? AND tombstoned_at IS NULL`, path)
}

// LiveNoteByID returns the non-tombstoned note with the given id, or nil.
func (db *DB) LiveNoteByID(id noteid.ID) (*NoteRow, error) {
	return db.queryNote(`SELECT `+noteColumns+` FROM notes WHERE id = ? AND tombstoned_at IS NULL`, id.String())
}

// NoteContent returns the stored content for a note id.
func (db *DB) NoteContent(id noteid.ID) (string, error) {
	var content string
	err := db.conn.QueryRow(`SELECT content FROM notes WHERE id = ?`, id.String()).Scan(&content)
	if err != nil {
		return "", fmt.Errorf("index: note content: %w", err)
	}
	return content, nil
}

// IDExists reports whether any row (live or tombstoned) holds the id.
func (db *DB) IDExists(id noteid.ID) (bool, error) {
	var n int
	err := db.conn.QueryRow(`SELECT count(*) FROM notes WHERE id = ?`, id.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("index: id exists: %w", err)
	}
	return n > 0, nil
}

// TombstoneByFingerprint returns the most recently tombstoned note with the
// given fingerprint whose tombstone is newer than cutoff, or nil. Used to
// recognize a moved file before minting a fresh identifier.
func (db *DB) TombstoneByFingerprint(fp string, cutoff time.Time) (*NoteRow, error) {
	return db.queryNote(`
		SELECT `+noteColumns+` FROM notes
		WHERE fingerprint = ? AND tombstoned_at IS NOT NULL AND tombstoned_at >= ?
		ORDER BY tombstoned_at DESC LIMIT 1
	`, fp, cutoff)
}

// LivePathStates returns path → mtime for every live note. Used by the
// startup reconciliation pass.
func (db *DB) LivePathStates() (map[string]time.Time, error) {
	rows, err := db.conn.Query(`SELECT filepath, mtime FROM notes WHERE tombstoned_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("index: live paths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]time.Time)
	for rows.Next() {
		var p string
		var mt time.Time
		if err := rows.Scan(&p, &mt); err != nil {
			return nil, err
		}
		out[p] = mt
	}
	return out, rows.Err()
}

// TagUsage returns the full ledger: tag name → usage count.
func (db *DB) TagUsage() (map[string]int, error) {
	rows, err := db.conn.Query(`SELECT name, usage_count FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("index: tag usage: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		out[name] = count
	}
	return out, rows.Err()
}

func decodeTags(tagsJSON string) []string {
	var out []string
	_ = json.Unmarshal([]byte(tagsJSON), &out)
	return out
}

func (db *DB) queryNote(query string, args ...any) (*NoteRow, error) {
	n, err := scanNoteRow(db.conn.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: query note: %w", err)
	}
	return n, nil
}
