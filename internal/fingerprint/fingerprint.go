// Package fingerprint computes content fingerprints used to recognize a
// moved note file by its body.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of the note body with trailing
// whitespace trimmed, so an editor that rewrites the final newline does not
// change the fingerprint.
func Sum(body string) string {
	h := sha256.Sum256([]byte(strings.TrimRight(body, " \t\r\n")))
	return hex.EncodeToString(h[:])
}
