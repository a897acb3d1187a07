// Package parser turns raw note file bytes into a structured note: id,
// creation time, and tags from the YAML preamble, a derived title, and the
// trimmed body. Parsing is pure; it never touches the filesystem.
package parser

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/starford/notelog/internal/apperr"
	"github.com/starford/notelog/internal/noteid"
	"github.com/starford/notelog/internal/tags"
)

// MaxNoteBytes is the largest accepted note file size (50 KiB).
const MaxNoteBytes = 50 * 1024

const maxTitleLen = 100

// Result holds the output of parsing a note file.
type Result struct {
	ID      noteid.ID // empty when the preamble carries no id
	Created time.Time // zero when the preamble carries no created field
	Tags    []string  // canonical tag names
	Title   string
	Body    string
}

type preamble struct {
	ID      string    `yaml:"id"`
	Created time.Time `yaml:"created"`
	Tags    []string  `yaml:"tags"`
}

// Parse extracts the preamble and body from raw note bytes. Any structural
// problem (invalid UTF-8, NUL bytes, oversized file, broken YAML, invalid
// tags or id) is reported as a MalformedNote error so the caller skips the
// file instead of indexing it partially.
func Parse(data []byte) (*Result, error) {
	if err := ValidateContent(data); err != nil {
		return nil, err
	}

	yamlBlock, body := splitPreamble(data)

	res := &Result{Body: strings.TrimRight(body, " \t\r\n")}

	if yamlBlock != nil {
		var p preamble
		if err := yaml.Unmarshal(yamlBlock, &p); err != nil {
			return nil, fmt.Errorf("%w: invalid preamble: %v", apperr.ErrMalformedNote, err)
		}
		if p.ID != "" {
			id, err := noteid.Parse(p.ID)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", apperr.ErrMalformedNote, err)
			}
			res.ID = id
		}
		res.Created = p.Created
		normalized, err := tags.NormalizeAll(p.Tags)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrMalformedNote, err)
		}
		res.Tags = normalized
	}

	res.Title = ExtractTitle(res.Body)
	return res, nil
}

// ValidateContent checks raw note bytes: non-empty, sized for indexing,
// UTF-8, and free of NUL bytes.
func ValidateContent(data []byte) error {
	if len(data) > MaxNoteBytes {
		return fmt.Errorf("%w: content exceeds %d bytes", apperr.ErrMalformedNote, MaxNoteBytes)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: content is empty", apperr.ErrMalformedNote)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return fmt.Errorf("%w: content contains NUL bytes", apperr.ErrMalformedNote)
	}
	if !utf8.Valid(data) {
		return fmt.Errorf("%w: content is not valid UTF-8", apperr.ErrMalformedNote)
	}
	return nil
}

// splitPreamble separates the YAML block (between leading --- fences) from
// the body. A missing or unterminated fence means the whole file is body.
func splitPreamble(data []byte) (yamlBlock []byte, body string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}
	afterDelim := rest[idx+1+len(delim):]
	return rest[:idx], strings.TrimLeft(string(afterDelim), "\n\r")
}

// ExtractTitle derives a display title from the body: the first non-empty
// line with heading or list markers stripped, capped at 100 characters, with
// trailing periods removed.
func ExtractTitle(body string) string {
	var title string
	for _, line := range strings.Split(body, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			title = t
			break
		}
	}

	switch {
	case strings.HasPrefix(title, "#"):
		title = strings.TrimSpace(strings.TrimLeft(title, "#"))
	case strings.HasPrefix(title, "- "):
		title = strings.TrimSpace(title[2:])
	case strings.HasPrefix(title, "* "):
		title = strings.TrimSpace(title[2:])
	}

	if len(title) > maxTitleLen {
		title = title[:maxTitleLen]
	}
	return strings.TrimRight(title, ".")
}

// Render produces the canonical file content for a note: preamble with id
// first, one-second created precision, tags omitted when empty, then the
// trimmed body and a trailing newline.
func Render(id noteid.ID, created time.Time, tagList []string, body string) []byte {
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("id: ")
	b.WriteString(id.String())
	b.WriteString("\ncreated: ")
	b.WriteString(created.Format("2006-01-02T15:04:05-07:00"))
	b.WriteString("\n")
	if len(tagList) > 0 {
		b.WriteString("tags:\n")
		for _, t := range tagList {
			b.WriteString("  - ")
			b.WriteString(t)
			b.WriteString("\n")
		}
	}
	b.WriteString("---\n\n")
	b.WriteString(strings.TrimRight(body, " \t\r\n"))
	b.WriteString("\n")
	return []byte(b.String())
}
