package index

import (
	"fmt"
	"strings"
	"time"

	"github.com/starford/notelog/internal/apperr"
	"github.com/starford/notelog/internal/models"
	"github.com/starford/notelog/internal/noteid"
	"github.com/starford/notelog/internal/tags"
)

// Search limits.
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 25
)

// Query describes one search: free text and tag filters in Text, an optional
// creation-date range, and a result limit.
type Query struct {
	Text   string
	Before *time.Time
	After  *time.Time
	Limit  int
}

// Search runs a query and returns ranked summaries. Results are ranked by
// text relevance when the query carries a free-text term; tag-only and
// date-only queries return the most recent notes first. The limit is capped
// at MaxSearchLimit.
func (db *DB) Search(q Query) ([]models.NoteSummary, error) {
	if err := checkDateRange(q); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	if strings.TrimSpace(q.Text) == "" {
		return db.searchNoText(q, limit)
	}
	return db.searchText(q, limit)
}

// Count returns the total number of matches without materializing or
// ranking any note rows (the limit=0 "count only" mode).
func (db *DB) Count(q Query) (int, error) {
	if err := checkDateRange(q); err != nil {
		return 0, err
	}
	if strings.TrimSpace(q.Text) == "" {
		query := `SELECT count(*) FROM notes n WHERE n.tombstoned_at IS NULL`
		clause, args := dateConditions(q)
		var n int
		if err := db.conn.QueryRow(query+clause, args...).Scan(&n); err != nil {
			return 0, fmt.Errorf("index: count: %w", err)
		}
		return n, nil
	}
	return db.countText(q)
}

// searchNoText serves date-only queries straight from the notes table.
func (db *DB) searchNoText(q Query, limit int) ([]models.NoteSummary, error) {
	query := `SELECT n.id, n.title, n.tags, n.created FROM notes n WHERE n.tombstoned_at IS NULL`
	clause, args := dateConditions(q)
	args = append(args, limit)
	rows, err := db.conn.Query(query+clause+` ORDER BY n.created DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return collectSummaries(rows)
}

// checkDateRange rejects ranges that cannot match anything.
func checkDateRange(q Query) error {
	if q.Before != nil && q.After != nil && q.Before.Before(*q.After) {
		return fmt.Errorf("%w: before is earlier than after", apperr.ErrInvalidQuery)
	}
	return nil
}

// dateConditions renders the created-range filters for a query whose SQL
// already has a WHERE clause on the aliased notes table n.
func dateConditions(q Query) (string, []any) {
	var clause strings.Builder
	var args []any
	if q.Before != nil {
		clause.WriteString(` AND n.created <= ?`)
		args = append(args, *q.Before)
	}
	if q.After != nil {
		clause.WriteString(` AND n.created >= ?`)
		args = append(args, *q.After)
	}
	return clause.String(), args
}

var booleanOperators = map[string]bool{"AND": true, "OR": true, "NOT": true}

// RewriteQuery transforms a user query into an FTS5 match expression:
// bare terms are quoted, "+tag" terms become tags:"+tag" column filters
// (the tag is validated first), quoted phrases and AND/OR/NOT operators and
// balanced parentheses pass through. The second result reports whether the
// query contains any free-text term (as opposed to tag filters only), which
// decides relevance versus recency ordering.
func RewriteQuery(query string) (string, bool, error) {
	if strings.TrimSpace(query) == "" {
		return "", false, nil
	}
	if strings.Count(query, `"`)%2 != 0 {
		return "", false, fmt.Errorf("%w: unbalanced quotes", apperr.ErrInvalidQuery)
	}
	if err := checkBalancedParens(query); err != nil {
		return "", false, err
	}

	var parts []string
	hasText := false
	inQuotes := false
	parenDepth := 0
	sectionStart := 0
	escapeNext := false

	for i, c := range query {
		if escapeNext {
			escapeNext = false
			continue
		}
		switch {
		case c == '\\':
			escapeNext = true
		case c == '"' && parenDepth == 0:
			if !inQuotes {
				if i > sectionStart {
					ht, err := rewriteUnquoted(query[sectionStart:i], &parts)
					if err != nil {
						return "", false, err
					}
					hasText = hasText || ht
				}
				sectionStart = i
			} else {
				parts = append(parts, query[sectionStart:i+1])
				hasText = true
				sectionStart = i + 1
			}
			inQuotes = !inQuotes
		case !inQuotes && c == '(':
			if parenDepth == 0 {
				if i > sectionStart {
					ht, err := rewriteUnquoted(query[sectionStart:i], &parts)
					if err != nil {
						return "", false, err
					}
					hasText = hasText || ht
				}
				sectionStart = i
			}
			parenDepth++
		case !inQuotes && c == ')':
			parenDepth--
			if parenDepth == 0 {
				inner, ht, err := RewriteQuery(query[sectionStart+1 : i])
				if err != nil {
					return "", false, err
				}
				parts = append(parts, "("+inner+")")
				hasText = hasText || ht
				sectionStart = i + 1
			}
		}
	}

	if sectionStart < len(query) {
		ht, err := rewriteUnquoted(query[sectionStart:], &parts)
		if err != nil {
			return "", false, err
		}
		hasText = hasText || ht
	}

	return strings.Join(parts, " "), hasText, nil
}

// rewriteUnquoted processes words outside quotes and parentheses.
func rewriteUnquoted(section string, parts *[]string) (bool, error) {
	hasText := false
	for _, word := range strings.Fields(section) {
		switch {
		case word == "+":
			*parts = append(*parts, word)
		case strings.HasPrefix(word, "+"):
			tag, err := tags.Normalize(word)
			if err != nil {
				return false, fmt.Errorf("%w: %v", apperr.ErrInvalidQuery, err)
			}
			*parts = append(*parts, fmt.Sprintf(`tags:"+%s"`, tag))
		case booleanOperators[word]:
			*parts = append(*parts, word)
		default:
			*parts = append(*parts, `"`+word+`"`)
			hasText = true
		}
	}
	return hasText, nil
}

func checkBalancedParens(s string) error {
	depth := 0
	inQuotes := false
	escapeNext := false
	for _, c := range s {
		if escapeNext {
			escapeNext = false
			continue
		}
		switch {
		case c == '\\':
			escapeNext = true
		case c == '"':
			inQuotes = !inQuotes
		case !inQuotes && c == '(':
			depth++
		case !inQuotes && c == ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unbalanced parentheses, too many closing", apperr.ErrInvalidQuery)
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("%w: unbalanced parentheses, missing closing", apperr.ErrInvalidQuery)
	}
	return nil
}

func collectSummaries(rows interface {
	Next() bool
	Scan(...any) error
	Close() error
	Err() error
}) ([]models.NoteSummary, error) {
	defer rows.Close()
	var out []models.NoteSummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSummary(s interface{ Scan(...any) error }) (models.NoteSummary, error) {
	var sum models.NoteSummary
	var id, tagsJSON string
	if err := s.Scan(&id, &sum.Title, &tagsJSON, &sum.Created); err != nil {
		return sum, err
	}
	sum.ID = noteid.ID(id)
	sum.Tags = decodeTags(tagsJSON)
	return sum, nil
}
