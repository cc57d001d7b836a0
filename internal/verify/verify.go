// Package verify recomputes a document fingerprint and compares it with a
// previously anchored one. It makes no network calls.
package verify

import (
	"auditchain/internal/anchoring"
	"auditchain/internal/fingerprint"
)

// Result is the outcome of a comparison. IsValid=false is a normal result,
// not an error.
type Result struct {
	IsValid      bool   `json:"isValid"`
	ActualHash   string `json:"actualHash"`
	ExpectedHash string `json:"expectedHash"`
}

// Verify hashes data and compares it with expectedHash. A nil data slice means
// no file was supplied; an empty non-nil slice is a valid zero-length file.
// The comparison ignores case and surrounding space, but ExpectedHash echoes
// expectedHash exactly as supplied.
func Verify(data []byte, expectedHash string) (Result, error) {
	if data == nil {
		return Result{}, invalid("file is required")
	}
	expected := fingerprint.Normalize(expectedHash)
	if expected == "" {
		return Result{}, invalid("expected_hash is required")
	}
	if !fingerprint.Valid(expected) {
		return Result{}, invalid("expected_hash must be a 64-character hex digest")
	}

	actual := fingerprint.Sum(data)
	return Result{
		IsValid:      fingerprint.Equal(actual, expected),
		ActualHash:   actual,
		ExpectedHash: expectedHash,
	}, nil
}

func invalid(diag string) error {
	return &anchoring.Error{Kind: anchoring.KindInputInvalid, Op: "verify", Diagnostic: diag}
}
