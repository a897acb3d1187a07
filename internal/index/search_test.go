package index

import (
	"errors"
	"testing"
	"time"

	"github.com/starford/notelog/internal/apperr"
	"github.com/starford/notelog/internal/noteid"
)

func TestRewriteQuery(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		hasText bool
	}{
		{"", "", false},
		{"hello", `"hello"`, true},
		{"hello world", `"hello" "world"`, true},
		{"+project", `tags:"+project"`, false},
		{"+project meeting", `tags:"+project" "meeting"`, true},
		{`"exact phrase"`, `"exact phrase"`, true},
		{"alpha AND beta", `"alpha" AND "beta"`, true},
		{"alpha OR beta NOT gamma", `"alpha" OR "beta" NOT "gamma"`, true},
		{"+project AND (meeting OR call) NOT +cancelled",
			`tags:"+project" AND ("meeting" OR "call") NOT tags:"+cancelled"`, true},
		{"(+a OR +b)", `(tags:"+a" OR tags:"+b")`, false},
		{"+", "+", false},
		{`"quoted +notatag"`, `"quoted +notatag"`, true},
	}
	for _, c := range cases {
		got, hasText, err := RewriteQuery(c.in)
		if err != nil {
			t.Errorf("RewriteQuery(%q): unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("RewriteQuery(%q) = %q, want %q", c.in, got, c.want)
		}
		if hasText != c.hasText {
			t.Errorf("RewriteQuery(%q) hasText = %v, want %v", c.in, hasText, c.hasText)
		}
	}
}

func TestRewriteQuery_Invalid(t *testing.T) {
	cases := []string{
		`"unbalanced`,
		"(missing close",
		"too) many",
		"+Bad_Tag",
		"+-edge",
	}
	for _, in := range cases {
		if _, _, err := RewriteQuery(in); err == nil {
			t.Errorf("RewriteQuery(%q): expected error", in)
		}
	}
}

func seedSearchNotes(t *testing.T, db *DB) {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	notes := []struct {
		id    noteid.ID
		title string
		body  string
		tags  []string
		day   int
	}{
		{"aaaa000000000001", "Planning Session", "quarterly planning with the team", []string{"project", "meeting"}, 1},
		{"aaaa000000000002", "Standup Notes", "daily standup summary", []string{"meeting"}, 2},
		{"aaaa000000000003", "Recipe", "homemade bread instructions", []string{"cooking"}, 3},
	}
	for _, n := range notes {
		when := base.AddDate(0, 0, n.day)
		row := NoteRow{
			ID:          n.id,
			Path:        string(n.id) + ".md",
			MTime:       when,
			Created:     when,
			Title:       n.title,
			Tags:        n.tags,
			Fingerprint: "fp-" + string(n.id),
		}
		if err := db.CommitUpsert(row, n.body, nil, nil); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSearch_Text(t *testing.T) {
	db := testDB(t)
	seedSearchNotes(t, db)

	results, err := db.Search(Query{Text: "standup"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "aaaa000000000002" {
		t.Errorf("results = %+v, want single standup note", results)
	}
}

func TestSearch_TagFilter(t *testing.T) {
	db := testDB(t)
	seedSearchNotes(t, db)

	results, err := db.Search(Query{Text: "+meeting"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %+v, want 2 meeting notes", results)
	}
	// Tag-only queries order by recency.
	if results[0].ID != "aaaa000000000002" {
		t.Errorf("first result = %s, want most recent meeting note", results[0].ID)
	}
}

func TestSearch_NoTextRecencyOrder(t *testing.T) {
	db := testDB(t)
	seedSearchNotes(t, db)

	results, err := db.Search(Query{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].ID != "aaaa000000000003" || results[2].ID != "aaaa000000000001" {
		t.Errorf("results not in recency order: %+v", results)
	}
}

func TestSearch_DateRange(t *testing.T) {
	db := testDB(t)
	seedSearchNotes(t, db)

	cutoff := time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)
	before, err := db.Search(Query{Before: &cutoff})
	if err != nil {
		t.Fatalf("Search before: %v", err)
	}
	if len(before) != 2 {
		t.Errorf("before cutoff: got %d results, want 2", len(before))
	}

	after, err := db.Search(Query{After: &cutoff})
	if err != nil {
		t.Fatalf("Search after: %v", err)
	}
	if len(after) != 1 || after[0].ID != "aaaa000000000003" {
		t.Errorf("after cutoff: results = %+v, want only day-3 note", after)
	}
}

func TestSearch_EmptyDateRangeRejected(t *testing.T) {
	db := testDB(t)
	seedSearchNotes(t, db)

	before := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	after := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	if _, err := db.Search(Query{Before: &before, After: &after}); !errors.Is(err, apperr.ErrInvalidQuery) {
		t.Fatalf("Search with before < after: err = %v, want ErrInvalidQuery", err)
	}
	if _, err := db.Count(Query{Before: &before, After: &after}); !errors.Is(err, apperr.ErrInvalidQuery) {
		t.Fatalf("Count with before < after: err = %v, want ErrInvalidQuery", err)
	}
}

func TestSearch_LimitCapped(t *testing.T) {
	db := testDB(t)
	seedSearchNotes(t, db)

	results, err := db.Search(Query{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want limit 2 respected", len(results))
	}

	// A limit beyond the cap is clamped, not an error.
	if _, err := db.Search(Query{Limit: 1000}); err != nil {
		t.Errorf("oversized limit: %v", err)
	}
}

func TestSearch_ExcludesTombstoned(t *testing.T) {
	db := testDB(t)
	seedSearchNotes(t, db)

	n, _ := db.LiveNoteByID("aaaa000000000002")
	if err := db.CommitTombstone(n, time.Now()); err != nil {
		t.Fatal(err)
	}

	results, err := db.Search(Query{Text: "standup"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("tombstoned note still searchable: %+v", results)
	}
}

func TestCount(t *testing.T) {
	db := testDB(t)
	seedSearchNotes(t, db)

	total, err := db.Count(Query{})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}

	tagged, err := db.Count(Query{Text: "+meeting"})
	if err != nil {
		t.Fatalf("Count tagged: %v", err)
	}
	if tagged != 2 {
		t.Errorf("tagged count = %d, want 2", tagged)
	}
}
