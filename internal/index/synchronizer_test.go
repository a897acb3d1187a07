package index

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/notelog/internal/apperr"
	"github.com/starford/notelog/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// syncEnv sets up a notes dir, storage, DB, and synchronizer for tests that
// drive the reconciliation logic directly.
func syncEnv(t *testing.T) (string, storage.Provider, *DB, *Synchronizer) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	db := testDB(t)
	s := NewSynchronizer(db, store, testLogger(), 30*time.Second, nil)
	return dir, store, db, s
}

func writeNote(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestIndexPath_AssignsIdentity(t *testing.T) {
	dir, _, db, s := syncEnv(t)
	writeNote(t, dir, "2026-03-01 First.md", "# First Note\n\nsome body\n")

	if err := s.IndexPath("2026-03-01 First.md"); err != nil {
		t.Fatalf("IndexPath: %v", err)
	}

	n, err := db.LiveNoteByPath("2026-03-01 First.md")
	if err != nil {
		t.Fatal(err)
	}
	if n == nil {
		t.Fatal("note not indexed")
	}
	if len(n.ID) != 16 {
		t.Errorf("id = %q, want 16 characters", n.ID)
	}
	if n.Title != "First Note" {
		t.Errorf("title = %q", n.Title)
	}
	if n.Created.IsZero() {
		t.Error("created should be set")
	}
}

func TestIndexPath_PreservesPreambleID(t *testing.T) {
	dir, _, db, s := syncEnv(t)
	writeNote(t, dir, "2026-03-02 Pinned.md",
		"---\nid: k7x9m2p4q8r1s5t3\ncreated: 2026-03-02T10:00:00Z\ntags:\n  - project\n---\n\n# Pinned\n\nbody\n")

	if err := s.IndexPath("2026-03-02 Pinned.md"); err != nil {
		t.Fatalf("IndexPath: %v", err)
	}

	n, _ := db.LiveNoteByPath("2026-03-02 Pinned.md")
	if n == nil || n.ID != "k7x9m2p4q8r1s5t3" {
		t.Fatalf("note = %+v, want preamble id preserved", n)
	}
	if !n.Created.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("created = %v, want preamble value", n.Created)
	}
	usage, _ := db.TagUsage()
	if usage["project"] != 1 {
		t.Errorf("usage = %v", usage)
	}
}

func TestIndexPath_ReplayIsNoop(t *testing.T) {
	dir, _, db, s := syncEnv(t)
	writeNote(t, dir, "2026-03-03 Stable.md", "stable content\n")

	if err := s.IndexPath("2026-03-03 Stable.md"); err != nil {
		t.Fatal(err)
	}
	first, _ := db.LiveNoteByPath("2026-03-03 Stable.md")

	// Same file, same mtime: the replayed event must change nothing.
	if err := s.IndexPath("2026-03-03 Stable.md"); err != nil {
		t.Fatal(err)
	}
	second, _ := db.LiveNoteByPath("2026-03-03 Stable.md")
	if second.ID != first.ID || !second.MTime.Equal(first.MTime) {
		t.Errorf("replay changed row: %+v vs %+v", first, second)
	}
}

func TestIndexPath_MalformedSkipped(t *testing.T) {
	dir, _, db, s := syncEnv(t)
	writeNote(t, dir, "2026-03-04 Broken.md", "---\nid: not-a-valid-id!\n---\n\nbody\n")

	err := s.IndexPath("2026-03-04 Broken.md")
	if !errors.Is(err, apperr.ErrMalformedNote) {
		t.Fatalf("expected ErrMalformedNote, got %v", err)
	}
	if n, _ := db.LiveNoteByPath("2026-03-04 Broken.md"); n != nil {
		t.Error("malformed note must not be indexed")
	}
}

func TestIndexPath_EditKeepsIdentityAndCreated(t *testing.T) {
	dir, _, db, s := syncEnv(t)
	writeNote(t, dir, "2026-03-05 Edit.md", "# Original\n\nfirst version\n")
	if err := s.IndexPath("2026-03-05 Edit.md"); err != nil {
		t.Fatal(err)
	}
	orig, _ := db.LiveNoteByPath("2026-03-05 Edit.md")

	// Ensure a strictly newer mtime.
	future := time.Now().Add(2 * time.Second)
	writeNote(t, dir, "2026-03-05 Edit.md", "# Edited\n\nsecond version\n")
	if err := os.Chtimes(filepath.Join(dir, "2026-03-05 Edit.md"), future, future); err != nil {
		t.Fatal(err)
	}

	if err := s.IndexPath("2026-03-05 Edit.md"); err != nil {
		t.Fatal(err)
	}
	edited, _ := db.LiveNoteByPath("2026-03-05 Edit.md")
	if edited.ID != orig.ID {
		t.Errorf("edit changed id: %s vs %s", edited.ID, orig.ID)
	}
	if !edited.Created.Equal(orig.Created) {
		t.Errorf("edit changed created: %v vs %v", edited.Created, orig.Created)
	}
	if edited.Title != "Edited" {
		t.Errorf("title = %q, want updated title", edited.Title)
	}
}

func TestRename_PreservesIdentityByPreamble(t *testing.T) {
	dir, _, db, s := syncEnv(t)
	content := "---\nid: ab12cd34ef56gh78\n---\n\n# Move Me\n\nbody\n"
	writeNote(t, dir, "2026-03-06 Old.md", content)
	if err := s.IndexPath("2026-03-06 Old.md"); err != nil {
		t.Fatal(err)
	}

	if err := os.Rename(filepath.Join(dir, "2026-03-06 Old.md"), filepath.Join(dir, "2026-03-06 New.md")); err != nil {
		t.Fatal(err)
	}
	if err := s.handleEvent(Event{Op: OpDisappeared, Path: "2026-03-06 Old.md"}); err != nil {
		t.Fatal(err)
	}
	if err := s.handleEvent(Event{Op: OpChanged, Path: "2026-03-06 New.md"}); err != nil {
		t.Fatal(err)
	}

	n, _ := db.LiveNoteByID("ab12cd34ef56gh78")
	if n == nil || n.Path != "2026-03-06 New.md" {
		t.Fatalf("note = %+v, want identity preserved at new path", n)
	}
	if old, _ := db.LiveNoteByPath("2026-03-06 Old.md"); old != nil {
		t.Error("old path still live")
	}
}

func TestRename_PreservesIdentityByFingerprint(t *testing.T) {
	dir, _, db, s := syncEnv(t)
	writeNote(t, dir, "2026-03-07 Anon.md", "# No Preamble\n\nunchanged body\n")
	if err := s.IndexPath("2026-03-07 Anon.md"); err != nil {
		t.Fatal(err)
	}
	orig, _ := db.LiveNoteByPath("2026-03-07 Anon.md")

	if err := os.Rename(filepath.Join(dir, "2026-03-07 Anon.md"), filepath.Join(dir, "2026-03-07 Moved.md")); err != nil {
		t.Fatal(err)
	}
	if err := s.handleEvent(Event{Op: OpDisappeared, Path: "2026-03-07 Anon.md"}); err != nil {
		t.Fatal(err)
	}
	if err := s.handleEvent(Event{Op: OpChanged, Path: "2026-03-07 Moved.md"}); err != nil {
		t.Fatal(err)
	}

	moved, _ := db.LiveNoteByPath("2026-03-07 Moved.md")
	if moved == nil || moved.ID != orig.ID {
		t.Fatalf("moved note = %+v, want id %s from fingerprint match", moved, orig.ID)
	}
	if !moved.Created.Equal(orig.Created) {
		t.Errorf("created changed across move: %v vs %v", moved.Created, orig.Created)
	}
}

func TestDuplicateID_MintsFreshForCopy(t *testing.T) {
	dir, _, db, s := syncEnv(t)
	content := "---\nid: cd34ef56gh78ij90\n---\n\n# Original\n\nbody\n"
	writeNote(t, dir, "2026-03-08 A.md", content)
	writeNote(t, dir, "2026-03-08 B.md", content)

	if err := s.IndexPath("2026-03-08 A.md"); err != nil {
		t.Fatal(err)
	}
	if err := s.IndexPath("2026-03-08 B.md"); err != nil {
		t.Fatal(err)
	}

	a, _ := db.LiveNoteByPath("2026-03-08 A.md")
	b, _ := db.LiveNoteByPath("2026-03-08 B.md")
	if a == nil || b == nil {
		t.Fatal("both copies should be indexed")
	}
	if a.ID != "cd34ef56gh78ij90" {
		t.Errorf("first file lost its id: %s", a.ID)
	}
	if b.ID == a.ID {
		t.Error("copy must receive a fresh id, not share the original's")
	}
}

func TestDisappeared_ReleasesTags(t *testing.T) {
	dir, _, db, s := syncEnv(t)
	writeNote(t, dir, "2026-03-09 Tagged.md", "---\ntags:\n  - fleeting\n---\n\n# Tagged\n")
	if err := s.IndexPath("2026-03-09 Tagged.md"); err != nil {
		t.Fatal(err)
	}

	_ = os.Remove(filepath.Join(dir, "2026-03-09 Tagged.md"))
	if err := s.handleEvent(Event{Op: OpDisappeared, Path: "2026-03-09 Tagged.md"}); err != nil {
		t.Fatal(err)
	}

	usage, _ := db.TagUsage()
	if _, ok := usage["fleeting"]; ok {
		t.Errorf("usage = %v, want fleeting released", usage)
	}
}

func TestFullSync(t *testing.T) {
	dir, _, db, s := syncEnv(t)
	writeNote(t, dir, "2026/03 March/2026-03-10 One.md", "# One\n")
	writeNote(t, dir, "2026/03 March/2026-03-11 Two.md", "# Two\n")
	writeNote(t, dir, "notes-readme.md", "not a note, wrong name\n")

	if err := s.FullSync(); err != nil {
		t.Fatalf("FullSync: %v", err)
	}

	states, _ := db.LivePathStates()
	if len(states) != 2 {
		t.Fatalf("states = %v, want the two dated notes", states)
	}

	// A file deleted between runs is tombstoned by the next pass.
	_ = os.Remove(filepath.Join(dir, "2026/03 March/2026-03-10 One.md"))
	if err := s.FullSync(); err != nil {
		t.Fatal(err)
	}
	states, _ = db.LivePathStates()
	if len(states) != 1 {
		t.Errorf("states after delete = %v, want one live note", states)
	}
}

func TestRun_ProcessesEventsAndSubmit(t *testing.T) {
	dir, _, db, s := syncEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	writeNote(t, dir, "2026-03-12 Live.md", "# Live\n")
	s.Events() <- Event{Op: OpAppeared, Path: "2026-03-12 Live.md"}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		n, _ := db.LiveNoteByPath("2026-03-12 Live.md")
		return n != nil
	}, "event not processed by run loop")

	v, err := s.Submit(ctx, func() (any, error) { return 42, nil })
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if v != 42 {
		t.Errorf("Submit result = %v, want 42", v)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not stop on cancel")
	}
}
