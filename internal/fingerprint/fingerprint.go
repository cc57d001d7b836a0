// Package fingerprint computes the content digest used to anchor and verify files.
package fingerprint

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Size is the length of a hex-encoded digest.
const Size = sha256.Size * 2

// Sum returns the lowercase hex SHA-256 digest of b.
// The output is stable across processes and hosts, so a digest computed at
// anchoring time can be compared with one computed later on another instance.
func Sum(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// Valid reports whether s is a well-formed hex digest (case-insensitive).
func Valid(s string) bool {
	if len(s) != Size {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Normalize trims and lowercases a digest for comparison.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Equal compares two digests in constant time after normalization.
func Equal(a, b string) bool {
	a, b = Normalize(a), Normalize(b)
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
