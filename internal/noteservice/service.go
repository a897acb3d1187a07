// Package noteservice exposes the note operations shared by the HTTP API
// and the MCP tool surface: adding notes, searching, fetching by id prefix,
// and editing tags. All writes funnel through the synchronizer loop so they
// are serialized with watcher-driven reindexing.
package noteservice

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/starford/notelog/internal/apperr"
	"github.com/starford/notelog/internal/index"
	"github.com/starford/notelog/internal/models"
	"github.com/starford/notelog/internal/parser"
	"github.com/starford/notelog/internal/storage"
	"github.com/starford/notelog/internal/tags"
)

// MaxTagsPerNote caps how many tags a single note may carry.
const MaxTagsPerNote = 10

// SearchResult carries one search response: the match count and, unless the
// query was count-only, the ranked summaries.
type SearchResult struct {
	Count int                  `json:"count"`
	Notes []models.NoteSummary `json:"notes,omitempty"`
}

// TagCount is one tag ledger entry.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Service coordinates storage, index, and the synchronizer.
type Service struct {
	store storage.Provider
	db    *index.DB
	sync  *index.Synchronizer
}

// NewService creates a new note service.
func NewService(store storage.Provider, db *index.DB, sync *index.Synchronizer) *Service {
	return &Service{store: store, db: db, sync: sync}
}

// AddNote validates content and tags, then creates the note file and indexes
// it as one serialized operation. The first non-empty line becomes the title
// used for the filename.
func (s *Service) AddNote(ctx context.Context, content string, tagList []string) (*models.Note, error) {
	normalized, err := tags.NormalizeAll(tagList)
	if err != nil {
		return nil, err
	}
	if len(normalized) > MaxTagsPerNote {
		return nil, fmt.Errorf("%w: at most %d tags per note", apperr.ErrInvalidTag, MaxTagsPerNote)
	}
	if err := parser.ValidateContent([]byte(content)); err != nil {
		return nil, err
	}
	title := parser.ExtractTitle(content)
	if title == "" {
		return nil, fmt.Errorf("%w: note needs a title line", apperr.ErrMalformedNote)
	}

	v, err := s.sync.Submit(ctx, func() (any, error) {
		id, err := s.sync.MintID()
		if err != nil {
			return nil, err
		}
		now := time.Now()
		rendered := parser.Render(id, now, normalized, content)
		path, err := s.store.SaveNote(title, rendered, now)
		if err != nil {
			return nil, err
		}
		if err := s.sync.IndexPath(path); err != nil {
			return nil, err
		}
		return &models.Note{
			ID:      id,
			Path:    path,
			Title:   title,
			Tags:    normalized,
			Created: now,
			Content: string(rendered),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Note), nil
}

// SearchNotes runs a query against the index. A limit of zero means count
// only: the total is computed without materializing any notes.
func (s *Service) SearchNotes(_ context.Context, q index.Query) (*SearchResult, error) {
	if q.Limit == 0 {
		count, err := s.db.Count(q)
		if err != nil {
			return nil, err
		}
		return &SearchResult{Count: count}, nil
	}

	notes, err := s.db.Search(q)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Count: len(notes), Notes: notes}, nil
}

// FetchNote resolves an id prefix to exactly one note and returns it with
// its stored content.
func (s *Service) FetchNote(_ context.Context, idPrefix string) (*models.Note, error) {
	n, err := s.db.ResolvePrefix(idPrefix)
	if err != nil {
		return nil, err
	}
	raw, err := s.store.Read(n.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: note file for %s is missing", apperr.ErrNotFound, n.ID)
	}
	return &models.Note{
		ID:      n.ID,
		Path:    n.Path,
		Title:   n.Title,
		Tags:    n.Tags,
		Created: n.Created,
		Content: string(raw),
	}, nil
}

// EditTags adds and removes tags on the note matching idPrefix. All tag
// names are validated before anything is touched; the file rewrite and the
// reindex run as one serialized operation. Removing an absent tag or adding
// a present one is a no-op, not an error.
func (s *Service) EditTags(ctx context.Context, idPrefix string, add, remove []string) (*models.Note, error) {
	addNorm, err := tags.NormalizeAll(add)
	if err != nil {
		return nil, err
	}
	removeNorm, err := tags.NormalizeAll(remove)
	if err != nil {
		return nil, err
	}

	v, err := s.sync.Submit(ctx, func() (any, error) {
		n, err := s.db.ResolvePrefix(idPrefix)
		if err != nil {
			return nil, err
		}

		updated, changed := applyTagEdits(n.Tags, addNorm, removeNorm)
		body, err := s.db.NoteContent(n.ID)
		if err != nil {
			return nil, err
		}
		note := &models.Note{
			ID:      n.ID,
			Path:    n.Path,
			Title:   n.Title,
			Tags:    updated,
			Created: n.Created,
			Content: string(parser.Render(n.ID, n.Created, updated, body)),
		}
		if !changed {
			return note, nil
		}
		if len(updated) > MaxTagsPerNote {
			return nil, fmt.Errorf("%w: at most %d tags per note", apperr.ErrInvalidTag, MaxTagsPerNote)
		}

		rendered := parser.Render(n.ID, n.Created, updated, body)
		if err := s.store.Write(n.Path, rendered); err != nil {
			return nil, err
		}
		if err := s.sync.IndexPath(n.Path); err != nil {
			return nil, err
		}
		note.Content = string(rendered)
		return note, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Note), nil
}

// ListTags returns the tag ledger sorted by name.
func (s *Service) ListTags(_ context.Context) ([]TagCount, error) {
	usage, err := s.db.TagUsage()
	if err != nil {
		return nil, err
	}
	out := make([]TagCount, 0, len(usage))
	for name, count := range usage {
		out = append(out, TagCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// applyTagEdits removes then adds, preserving the existing order and
// appending new tags at the end.
func applyTagEdits(current, add, remove []string) ([]string, bool) {
	removeSet := make(map[string]bool, len(remove))
	for _, t := range remove {
		removeSet[t] = true
	}

	changed := false
	out := make([]string, 0, len(current)+len(add))
	seen := make(map[string]bool, len(current)+len(add))
	for _, t := range current {
		if removeSet[t] {
			changed = true
			continue
		}
		out = append(out, t)
		seen[t] = true
	}
	for _, t := range add {
		if seen[t] || removeSet[t] {
			continue
		}
		out = append(out, t)
		seen[t] = true
		changed = true
	}
	return out, changed
}
