package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/starford/notelog/internal/apperr"
	"github.com/starford/notelog/internal/index"
	"github.com/starford/notelog/internal/noteid"
	"github.com/starford/notelog/internal/storage"
	"github.com/starford/notelog/internal/testutil"
)

func testService(t *testing.T) (*Service, *index.DB, storage.Provider) {
	t.Helper()
	_, store := testutil.TestNotesDir(t)
	db := testutil.TestDB(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	sync := index.NewSynchronizer(db, store, logger, 30*time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = sync.Run(ctx) }()

	return NewService(store, db, sync), db, store
}

func TestAddNote(t *testing.T) {
	svc, db, _ := testService(t)

	note, err := svc.AddNote(context.Background(), "# Grocery List\n\nmilk and eggs\n", []string{"+personal", "errands"})
	if err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	if note.Title != "Grocery List" {
		t.Errorf("title = %q", note.Title)
	}
	if len(note.ID) != 16 {
		t.Errorf("id = %q, want 16 characters", note.ID)
	}
	if len(note.Tags) != 2 || note.Tags[0] != "personal" {
		t.Errorf("tags = %v, want marker stripped and order kept", note.Tags)
	}
	if !strings.Contains(note.Path, "Grocery List.md") {
		t.Errorf("path = %q, want dated filename with title", note.Path)
	}

	indexed, err := db.LiveNoteByID(note.ID)
	if err != nil {
		t.Fatal(err)
	}
	if indexed == nil || indexed.Path != note.Path {
		t.Fatalf("indexed = %+v, want note at %s", indexed, note.Path)
	}
	usage, _ := db.TagUsage()
	if usage["personal"] != 1 || usage["errands"] != 1 {
		t.Errorf("usage = %v", usage)
	}
}

func TestAddNote_InvalidTag(t *testing.T) {
	svc, _, _ := testService(t)
	_, err := svc.AddNote(context.Background(), "# Note\n", []string{"Bad Tag!"})
	if !errors.Is(err, apperr.ErrInvalidTag) {
		t.Fatalf("expected ErrInvalidTag, got %v", err)
	}
}

func TestAddNote_TooManyTags(t *testing.T) {
	svc, _, _ := testService(t)
	many := make([]string, MaxTagsPerNote+1)
	for i := range many {
		many[i] = "tag" + string(rune('a'+i))
	}
	_, err := svc.AddNote(context.Background(), "# Note\n", many)
	if !errors.Is(err, apperr.ErrInvalidTag) {
		t.Fatalf("expected ErrInvalidTag for too many tags, got %v", err)
	}
}

func TestAddNote_EmptyContent(t *testing.T) {
	svc, _, _ := testService(t)
	_, err := svc.AddNote(context.Background(), "   \n\n", nil)
	if !errors.Is(err, apperr.ErrMalformedNote) {
		t.Fatalf("expected ErrMalformedNote, got %v", err)
	}
}

func TestAddNote_FilenameCollision(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	a, err := svc.AddNote(ctx, "# Same Title\n\nfirst\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.AddNote(ctx, "# Same Title\n\nsecond\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.Path == b.Path {
		t.Errorf("both notes at %q, want collision counter in second path", a.Path)
	}
	if a.ID == b.ID {
		t.Error("notes share an id")
	}
}

func TestFetchNote_ByPrefix(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	created, err := svc.AddNote(ctx, "# Fetch Target\n\ncontent here\n", []string{"ref"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.FetchNote(ctx, string(created.ID[:4]))
	if err != nil {
		t.Fatalf("FetchNote: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("id = %s, want %s", got.ID, created.ID)
	}
	if !strings.Contains(got.Content, "content here") {
		t.Errorf("content = %q, want body included", got.Content)
	}
	if !strings.Contains(got.Content, "id: "+string(created.ID)) {
		t.Errorf("content = %q, want preamble included", got.Content)
	}
}

func TestFetchNote_NotFound(t *testing.T) {
	svc, _, _ := testService(t)
	_, err := svc.FetchNote(context.Background(), "zz99")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchNotes_CountOnly(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.AddNote(ctx, "# Alpha\n\nshared keyword\n", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddNote(ctx, "# Beta\n\nshared keyword\n", nil); err != nil {
		t.Fatal(err)
	}

	res, err := svc.SearchNotes(ctx, index.Query{Text: "keyword", Limit: 0})
	if err != nil {
		t.Fatalf("SearchNotes: %v", err)
	}
	if res.Count != 2 {
		t.Errorf("count = %d, want 2", res.Count)
	}
	if res.Notes != nil {
		t.Error("count-only search must not return notes")
	}

	full, err := svc.SearchNotes(ctx, index.Query{Text: "keyword", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(full.Notes) != 2 {
		t.Errorf("notes = %+v, want 2", full.Notes)
	}
}

func TestEditTags(t *testing.T) {
	svc, db, store := testService(t)
	ctx := context.Background()

	note, err := svc.AddNote(ctx, "# Tag Me\n\nbody\n", []string{"draft"})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.EditTags(ctx, string(note.ID), []string{"+final"}, []string{"draft"})
	if err != nil {
		t.Fatalf("EditTags: %v", err)
	}
	if len(updated.Tags) != 1 || updated.Tags[0] != "final" {
		t.Errorf("tags = %v, want [final]", updated.Tags)
	}

	// The file on disk reflects the edit.
	raw, err := store.Read(note.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "- final") || strings.Contains(string(raw), "- draft") {
		t.Errorf("file content = %q, want final tag only", raw)
	}

	usage, _ := db.TagUsage()
	if _, ok := usage["draft"]; ok {
		t.Error("draft should be released from the ledger")
	}
	if usage["final"] != 1 {
		t.Errorf("usage = %v, want final=1", usage)
	}
}

func TestEditTags_InvalidRejectedBeforeMutation(t *testing.T) {
	svc, db, _ := testService(t)
	ctx := context.Background()

	note, err := svc.AddNote(ctx, "# Untouched\n\nbody\n", []string{"keep"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.EditTags(ctx, string(note.ID), []string{"ok", "NOT OK"}, nil)
	if !errors.Is(err, apperr.ErrInvalidTag) {
		t.Fatalf("expected ErrInvalidTag, got %v", err)
	}

	n, _ := db.LiveNoteByID(note.ID)
	if len(n.Tags) != 1 || n.Tags[0] != "keep" {
		t.Errorf("tags = %v, note should be untouched after rejected edit", n.Tags)
	}
}

func TestEditTags_NoopWhenUnchanged(t *testing.T) {
	svc, _, store := testService(t)
	ctx := context.Background()

	note, err := svc.AddNote(ctx, "# Stable\n\nbody\n", []string{"keep"})
	if err != nil {
		t.Fatal(err)
	}
	before, _ := store.Read(note.Path)

	// Adding a present tag and removing an absent one change nothing.
	updated, err := svc.EditTags(ctx, string(note.ID), []string{"keep"}, []string{"missing"})
	if err != nil {
		t.Fatalf("EditTags: %v", err)
	}
	if len(updated.Tags) != 1 || updated.Tags[0] != "keep" {
		t.Errorf("tags = %v", updated.Tags)
	}
	after, _ := store.Read(note.Path)
	if string(before) != string(after) {
		t.Error("no-op edit rewrote the file")
	}
}

func TestEditTags_AmbiguousPrefix(t *testing.T) {
	svc, db, _ := testService(t)
	ctx := context.Background()

	// Two notes whose ids share a prefix.
	now := time.Now().UTC()
	for i, id := range []string{"ab11111111111111", "ab22222222222222"} {
		row := index.NoteRow{
			ID:      noteid.ID(id),
			Path:    fmt.Sprintf("n%d.md", i),
			MTime:   now,
			Created: now,
		}
		if err := db.CommitUpsert(row, "body", nil, nil); err != nil {
			t.Fatal(err)
		}
	}

	_, err := svc.EditTags(ctx, "ab", []string{"x"}, nil)
	amb, ok := apperr.IsAmbiguous(err)
	if !ok {
		t.Fatalf("expected AmbiguousError, got %v", err)
	}
	if amb.Count != 2 {
		t.Errorf("ambiguous count = %d, want 2", amb.Count)
	}
}

func TestListTags(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.AddNote(ctx, "# One\n\nbody\n", []string{"beta", "alpha"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddNote(ctx, "# Two\n\nbody\n", []string{"alpha"}); err != nil {
		t.Fatal(err)
	}

	counts, err := svc.ListTags(ctx)
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("counts = %+v, want alpha and beta", counts)
	}
	if counts[0].Name != "alpha" || counts[0].Count != 2 {
		t.Errorf("first entry = %+v, want alpha=2", counts[0])
	}
	if counts[1].Name != "beta" || counts[1].Count != 1 {
		t.Errorf("second entry = %+v, want beta=1", counts[1])
	}
}
