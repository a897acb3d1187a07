//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/notelog/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			id UNINDEXED,
			title,
			body,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

// ftsUpsert mirrors a note into the full-text table. Tags are rendered with
// their "+" marker so tag filters and free text share one match expression.
func ftsUpsert(tx *sql.Tx, id, title, body string, tagList []string) error {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE id = ?`, id)
	rendered := make([]string, len(tagList))
	for i, t := range tagList {
		rendered[i] = "+" + t
	}
	_, err := tx.Exec(`INSERT INTO notes_fts (id, title, body, tags) VALUES (?, ?, ?, ?)`,
		id, title, body, strings.Join(rendered, " "))
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, id string) {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE id = ?`, id)
}

// searchText runs an FTS5 match joined back to the notes table for the
// date filters and tombstone exclusion.
func (db *DB) searchText(q Query, limit int) ([]models.NoteSummary, error) {
	match, hasText, err := RewriteQuery(q.Text)
	if err != nil {
		return nil, err
	}
	order := `n.created DESC`
	if hasText {
		order = `notes_fts.rank`
	}
	clause, dateArgs := dateConditions(q)
	args := append([]any{match}, dateArgs...)
	args = append(args, limit)

	rows, err := db.conn.Query(`
		SELECT n.id, n.title, n.tags, n.created
		FROM notes_fts
		JOIN notes n ON n.id = notes_fts.id
		WHERE notes_fts MATCH ? AND n.tombstoned_at IS NULL`+clause+`
		ORDER BY `+order+`
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return collectSummaries(rows)
}

// countText counts matches without fetching or ranking rows.
func (db *DB) countText(q Query) (int, error) {
	match, _, err := RewriteQuery(q.Text)
	if err != nil {
		return 0, err
	}
	clause, dateArgs := dateConditions(q)
	args := append([]any{match}, dateArgs...)

	var n int
	err = db.conn.QueryRow(`
		SELECT count(*)
		FROM notes_fts
		JOIN notes n ON n.id = notes_fts.id
		WHERE notes_fts MATCH ? AND n.tombstoned_at IS NULL`+clause, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}
