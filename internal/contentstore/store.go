package contentstore

import (
	"context"
	"errors"
	"fmt"
)

// Store is the content-addressable blob store consumed by the anchoring workflow.
//
// Rules:
// - Store returns an opaque content address; callers must not parse it.
// - Implementations must not retry; failures surface to the caller immediately.
// - ResolveRef is a pure derivation and performs no I/O.
type Store interface {
	Name() string
	HealthCheck(ctx context.Context) error

	Store(ctx context.Context, data []byte, filename string) (string, error)
	ResolveRef(address string) string
}

var (
	// ErrUnreachable marks failures where the backend host could not be resolved or contacted.
	ErrUnreachable = errors.New("contentstore: backend unreachable")
	// ErrUploadRejected marks any other upload failure reported by (or about) the backend.
	ErrUploadRejected = errors.New("contentstore: upload rejected")
)

// UnreachableError carries the network-level cause of an unreachable backend.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("contentstore: cannot reach %s: %v", e.Host, e.Err)
}

func (e *UnreachableError) Unwrap() []error { return []error{ErrUnreachable, e.Err} }

// RejectedError carries the backend diagnostic for a failed upload.
// StatusCode is zero when no HTTP response was obtained (e.g. a read timeout).
type RejectedError struct {
	StatusCode int
	Diagnostic string
	Err        error
}

func (e *RejectedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("contentstore: upload rejected (status %d): %s", e.StatusCode, e.Diagnostic)
	}
	return "contentstore: upload rejected: " + e.Diagnostic
}

func (e *RejectedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUploadRejected}
	}
	return []error{ErrUploadRejected, e.Err}
}
