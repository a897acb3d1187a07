//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/notelog/internal/apperr"
	"github.com/starford/notelog/internal/models"
	"github.com/starford/notelog/internal/tags"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; text search uses LIKE over the notes table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _, _ string, _ []string) error {
	// Content is already stored in the notes table; nothing extra to do.
	return nil
}

func ftsDelete(_ *sql.Tx, _ string) {}

// likeConditions translates the query text into LIKE filters: "+tag" words
// require tag membership, everything else must appear in title or content.
// Boolean operators and phrase ranking are FTS5 features; the fallback
// treats all terms as conjunctive and orders by recency.
func likeConditions(text string) (string, []any, error) {
	// Same query validation as the FTS5 backend, even though the rewritten
	// expression itself is unused here.
	if _, _, err := RewriteQuery(text); err != nil {
		return "", nil, err
	}

	var clause strings.Builder
	var args []any
	for _, word := range strings.Fields(text) {
		switch {
		case word == "+" || booleanOperators[word]:
			continue
		case strings.HasPrefix(word, "+"):
			tag, err := tags.Normalize(word)
			if err != nil {
				return "", nil, fmt.Errorf("%w: %v", apperr.ErrInvalidQuery, err)
			}
			clause.WriteString(` AND n.tags LIKE ?`)
			args = append(args, `%"`+tag+`"%`)
		default:
			term := strings.Trim(word, `"()`)
			if term == "" {
				continue
			}
			clause.WriteString(` AND (n.title LIKE ? OR n.content LIKE ?)`)
			like := "%" + term + "%"
			args = append(args, like, like)
		}
	}
	return clause.String(), args, nil
}

func (db *DB) searchText(q Query, limit int) ([]models.NoteSummary, error) {
	likeClause, likeArgs, err := likeConditions(q.Text)
	if err != nil {
		return nil, err
	}
	dateClause, dateArgs := dateConditions(q)
	args := append(likeArgs, dateArgs...)
	args = append(args, limit)

	rows, err := db.conn.Query(`
		SELECT n.id, n.title, n.tags, n.created
		FROM notes n
		WHERE n.tombstoned_at IS NULL`+likeClause+dateClause+`
		ORDER BY n.created DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return collectSummaries(rows)
}

func (db *DB) countText(q Query) (int, error) {
	likeClause, likeArgs, err := likeConditions(q.Text)
	if err != nil {
		return 0, err
	}
	dateClause, dateArgs := dateConditions(q)
	args := append(likeArgs, dateArgs...)

	var n int
	err = db.conn.QueryRow(`
		SELECT count(*) FROM notes n
		WHERE n.tombstoned_at IS NULL`+likeClause+dateClause, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}
