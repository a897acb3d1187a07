// Package noteid implements the stable note identifier: a 16-character
// base36 string assigned once and kept for the note's whole lifetime.
package noteid

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

const (
	// Length is the fixed identifier length.
	Length = 16

	// MinPrefixLen is the shortest prefix accepted for lookups.
	MinPrefixLen = 2

	// ReservedSentinel prefixes identifiers that are excluded from prefix
	// resolution.
	ReservedSentinel = '_'

	charset = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// ID is a validated note identifier.
type ID string

// Parse validates input as an identifier. Surrounding whitespace is trimmed
// and uppercase characters are lowered.
func Parse(input string) (ID, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return "", fmt.Errorf("noteid: empty id")
	}
	if len(s) != Length {
		return "", fmt.Errorf("noteid: invalid length %d, want %d", len(s), Length)
	}
	rest := s
	if rest[0] == ReservedSentinel {
		rest = rest[1:]
	}
	if !validChars(rest) {
		return "", fmt.Errorf("noteid: invalid characters in %q", s)
	}
	return ID(s), nil
}

// New generates a random identifier.
func New() ID {
	b := make([]byte, Length)
	for i := range b {
		b[i] = charset[rand.IntN(len(charset))]
	}
	return ID(b)
}

// String returns the identifier as a plain string.
func (id ID) String() string { return string(id) }

// Reserved reports whether the identifier starts with the sentinel.
func (id ID) Reserved() bool {
	return len(id) > 0 && id[0] == ReservedSentinel
}

// NormalizePrefix validates a lookup prefix: at least MinPrefixLen
// characters, base36 only. It returns the lowercased prefix.
func NormalizePrefix(input string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if len(s) < MinPrefixLen {
		return "", fmt.Errorf("noteid: prefix %q too short, need at least %d characters", s, MinPrefixLen)
	}
	if len(s) > Length {
		return "", fmt.Errorf("noteid: prefix %q longer than an id", s)
	}
	if !validChars(s) {
		return "", fmt.Errorf("noteid: invalid characters in prefix %q", s)
	}
	return s, nil
}

func validChars(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}
