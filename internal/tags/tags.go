// Package tags validates and normalizes note tags. A tag is a lowercase
// token of letters, digits, and dashes that does not start or end with a
// dash. The "+" marker used on tool and search surfaces is accepted and
// stripped.
package tags

import (
	"fmt"
	"strings"

	"github.com/starford/notelog/internal/apperr"
)

// Normalize validates input and returns the canonical tag name (no "+"
// marker, lowercase). The error wraps apperr.ErrInvalidTag.
func Normalize(input string) (string, error) {
	tag := strings.ToLower(strings.TrimPrefix(input, "+"))

	if tag == "" {
		return "", fmt.Errorf("%w: tag cannot be empty", apperr.ErrInvalidTag)
	}
	if strings.HasPrefix(tag, "-") || strings.HasSuffix(tag, "-") {
		return "", fmt.Errorf("%w: tag %q cannot start or end with a dash", apperr.ErrInvalidTag, tag)
	}
	for _, c := range tag {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return "", fmt.Errorf("%w: tag %q may only contain lowercase letters, digits, and dashes", apperr.ErrInvalidTag, tag)
		}
	}
	return tag, nil
}

// NormalizeAll validates every tag and returns the canonical, deduplicated
// list in input order. Any invalid tag fails the whole call.
func NormalizeAll(inputs []string) ([]string, error) {
	seen := make(map[string]struct{}, len(inputs))
	out := make([]string, 0, len(inputs))
	for _, in := range inputs {
		tag, err := Normalize(in)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out, nil
}

// Delta computes added and removed tags between two canonical tag sets.
func Delta(before, after []string) (added, removed []string) {
	old := make(map[string]struct{}, len(before))
	for _, t := range before {
		old[t] = struct{}{}
	}
	cur := make(map[string]struct{}, len(after))
	for _, t := range after {
		cur[t] = struct{}{}
		if _, ok := old[t]; !ok {
			added = append(added, t)
		}
	}
	for _, t := range before {
		if _, ok := cur[t]; !ok {
			removed = append(removed, t)
		}
	}
	return added, removed
}
