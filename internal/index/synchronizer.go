package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/notelog/internal/apperr"
	"github.com/starford/notelog/internal/fingerprint"
	"github.com/starford/notelog/internal/models"
	"github.com/starford/notelog/internal/noteid"
	"github.com/starford/notelog/internal/parser"
	"github.com/starford/notelog/internal/storage"
)

// EventOp classifies a settled filesystem event.
type EventOp int

const (
	OpAppeared EventOp = iota
	OpChanged
	OpDisappeared
)

func (op EventOp) String() string {
	switch op {
	case OpAppeared:
		return "appeared"
	case OpChanged:
		return "changed"
	case OpDisappeared:
		return "disappeared"
	}
	return "unknown"
}

// Event is a settled change notification for one note file path.
type Event struct {
	Op   EventOp
	Path string
}

// NotifyFunc is called after each index mutation. kind is one of
// "created", "updated", "deleted".
type NotifyFunc func(kind string, note models.NoteSummary)

type submittedOp struct {
	fn    func() (any, error)
	reply chan opResult
}

type opResult struct {
	value any
	err   error
}

// Synchronizer is the reconciliation authority: the sole consumer of
// settled events and the sole writer of the index. Internally initiated
// operations are submitted to the same loop, so all writes share one
// ordering and no note is ever updated by two writers concurrently.
type Synchronizer struct {
	db     *DB
	store  storage.Provider
	logger *slog.Logger
	grace  time.Duration
	notify NotifyFunc

	events chan Event
	ops    chan submittedOp
}

// NewSynchronizer creates a synchronizer. grace bounds how long tombstoned
// identifiers are retained for move detection. notify may be nil.
func NewSynchronizer(db *DB, store storage.Provider, logger *slog.Logger, grace time.Duration, notify NotifyFunc) *Synchronizer {
	if grace <= 0 {
		grace = 30 * time.Second
	}
	return &Synchronizer{
		db:     db,
		store:  store,
		logger: logger,
		grace:  grace,
		notify: notify,
		events: make(chan Event, 256),
		ops:    make(chan submittedOp),
	}
}

// Events returns the channel the watcher feeds settled events into.
func (s *Synchronizer) Events() chan<- Event {
	return s.events
}

// Run consumes events and submitted operations until ctx is cancelled.
// File-level problems are contained and logged; only an index commit that
// fails after a retry terminates the loop with an error.
func (s *Synchronizer) Run(ctx context.Context) error {
	purge := time.NewTicker(s.grace)
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("synchronizer: stopped")
			return nil

		case ev := <-s.events:
			if err := s.handleEvent(ev); err != nil {
				if errors.Is(err, apperr.ErrIndexInconsistency) {
					return err
				}
				s.logger.Warn("synchronizer: event failed",
					slog.String("op", ev.Op.String()),
					slog.String("path", ev.Path),
					slog.String("error", err.Error()))
			}

		case op := <-s.ops:
			v, err := op.fn()
			op.reply <- opResult{value: v, err: err}
			if errors.Is(err, apperr.ErrIndexInconsistency) {
				return err
			}

		case <-purge.C:
			if err := s.db.PurgeTombstonesBefore(time.Now().Add(-s.grace)); err != nil {
				s.logger.Warn("synchronizer: purge failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Submit runs fn inside the synchronizer loop, serialized with all other
// writes, and returns its result. Used by add-note and edit-tags so internal
// edits share the external write ordering.
func (s *Synchronizer) Submit(ctx context.Context, fn func() (any, error)) (any, error) {
	op := submittedOp{fn: fn, reply: make(chan opResult, 1)}
	select {
	case s.ops <- op:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-op.reply:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FullSync reconciles the whole notes tree against the index: new and
// changed files are indexed, index entries without a file are tombstoned.
// Called once at startup, before Run.
func (s *Synchronizer) FullSync() error {
	metas, err := s.store.List()
	if err != nil {
		return fmt.Errorf("sync: list notes: %w", err)
	}
	states, err := s.db.LivePathStates()
	if err != nil {
		return fmt.Errorf("sync: load index state: %w", err)
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		if last, ok := states[m.Path]; ok && !m.ModTime.After(last) {
			continue
		}
		if err := s.handleEvent(Event{Op: OpChanged, Path: m.Path}); err != nil {
			if errors.Is(err, apperr.ErrIndexInconsistency) {
				return err
			}
			s.logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		}
	}

	for p := range states {
		if _, ok := disk[p]; !ok {
			if err := s.handleEvent(Event{Op: OpDisappeared, Path: p}); err != nil {
				if errors.Is(err, apperr.ErrIndexInconsistency) {
					return err
				}
				s.logger.Warn("sync: remove stale failed", slog.String("path", p), slog.String("error", err.Error()))
			}
		}
	}
	return nil
}

func (s *Synchronizer) handleEvent(ev Event) error {
	if ev.Op == OpDisappeared {
		return s.removePath(ev.Path)
	}
	return s.IndexPath(ev.Path)
}

// IndexPath loads, parses, and indexes one note file, resolving its
// identity and committing every derived mutation atomically. Must only be
// called from the synchronizer loop (or a submitted operation).
func (s *Synchronizer) IndexPath(path string) error {
	data, err := s.store.Read(path)
	if err != nil {
		// Transient read problem: the path is retried on its next event.
		return fmt.Errorf("read: %w", err)
	}
	meta, err := s.store.Stat(path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	res, err := parser.Parse(data)
	if err != nil {
		return err // MalformedNote: skipped, never partially indexed
	}

	prev, err := s.db.LiveNoteByPath(path)
	if err != nil {
		return err
	}

	fp := fingerprint.Sum(res.Body)
	id, created, err := s.resolveIdentity(res, path, fp, prev)
	if err != nil {
		return err
	}

	var displaced *NoteRow
	if prev != nil && prev.ID != id {
		// The path now holds a different note; the old one is gone.
		displaced = prev
		prev = nil
	}

	// Idempotence guard: replayed or out-of-order events are no-ops.
	if prev != nil && !meta.ModTime.After(prev.MTime) {
		return nil
	}

	var prevTags []string
	if prev != nil {
		prevTags = prev.Tags
		created = prev.Created // creation time is immutable once indexed
		if !res.Created.IsZero() {
			created = res.Created
		}
	}

	row := NoteRow{
		ID:          id,
		Path:        path,
		MTime:       meta.ModTime,
		Created:     created,
		Title:       res.Title,
		Tags:        res.Tags,
		Fingerprint: fp,
	}
	if err := s.commit(func() error {
		return s.db.CommitUpsert(row, res.Body, prevTags, displaced)
	}); err != nil {
		return err
	}

	kind := "updated"
	if prev == nil {
		kind = "created"
	}
	s.logger.Debug("synchronizer: indexed",
		slog.String("id", id.String()),
		slog.String("path", path),
		slog.String("kind", kind))
	s.emit(kind, row)
	return nil
}

func (s *Synchronizer) removePath(path string) error {
	n, err := s.db.LiveNoteByPath(path)
	if err != nil {
		return err
	}
	if n == nil {
		return nil
	}
	if err := s.commit(func() error {
		return s.db.CommitTombstone(n, time.Now())
	}); err != nil {
		return err
	}
	s.logger.Debug("synchronizer: tombstoned",
		slog.String("id", n.ID.String()),
		slog.String("path", path))
	s.emit("deleted", *n)
	return nil
}

// resolveIdentity decides which identifier a file at path belongs to:
// the preamble id when it is not already claimed by a live note elsewhere,
// otherwise a tombstone with a matching fingerprint (a detected move),
// otherwise a freshly minted id. The returned created time is only
// meaningful for notes not previously live at this path.
func (s *Synchronizer) resolveIdentity(res *parser.Result, path, fp string, prev *NoteRow) (noteid.ID, time.Time, error) {
	if res.ID != "" {
		other, err := s.db.LiveNoteByID(res.ID)
		if err != nil {
			return "", time.Time{}, err
		}
		if other == nil || other.Path == path {
			created := res.Created
			if created.IsZero() {
				created = time.Now()
			}
			return res.ID, created, nil
		}
		// Same id live at another path: the file was copied, not moved.
		// Fall through and mint a fresh identifier for the copy.
		s.logger.Warn("synchronizer: duplicate id, minting new",
			slog.String("id", res.ID.String()),
			slog.String("path", path),
			slog.String("existing", other.Path))
	}

	if prev != nil {
		return prev.ID, prev.Created, nil
	}

	if res.ID == "" {
		ts, err := s.db.TombstoneByFingerprint(fp, time.Now().Add(-s.grace))
		if err != nil {
			return "", time.Time{}, err
		}
		if ts != nil {
			s.logger.Debug("synchronizer: move detected",
				slog.String("id", ts.ID.String()),
				slog.String("from", ts.Path),
				slog.String("to", path))
			return ts.ID, ts.Created, nil
		}
	}

	id, err := s.MintID()
	if err != nil {
		return "", time.Time{}, err
	}
	created := res.Created
	if created.IsZero() {
		created = time.Now()
	}
	return id, created, nil
}

// MintID generates a fresh identifier, retrying on the (practically
// negligible) collision against existing rows. Must only be called from the
// synchronizer loop, where minting is serialized.
func (s *Synchronizer) MintID() (noteid.ID, error) {
	for {
		id := noteid.New()
		exists, err := s.db.IDExists(id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
}

// commit runs an atomic index mutation, retrying once before declaring the
// index inconsistent.
func (s *Synchronizer) commit(fn func() error) error {
	if err := fn(); err != nil {
		s.logger.Warn("synchronizer: commit failed, retrying", slog.String("error", err.Error()))
		if err := fn(); err != nil {
			return fmt.Errorf("%w: %v", apperr.ErrIndexInconsistency, err)
		}
	}
	return nil
}

func (s *Synchronizer) emit(kind string, n NoteRow) {
	if s.notify == nil {
		return
	}
	s.notify(kind, models.NoteSummary{
		ID:      n.ID,
		Title:   n.Title,
		Tags:    n.Tags,
		Created: n.Created,
	})
}
