package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// Ledger is the append-only audit log consumed by the anchoring workflow.
//
// Rules:
// - Submit must never report success unless the backend acknowledged the record.
// - Implementations must not retry; failures surface to the caller immediately.
// - ListByType returns a one-shot sequence; iterate it once per request.
type Ledger interface {
	Name() string
	HealthCheck(ctx context.Context) error

	Submit(ctx context.Context, rec AuditRecord) (Ack, error)
	ListByType(ctx context.Context, recordType string) (iter.Seq2[AuditRecord, error], error)
}

// ErrUnavailable marks any ledger submit/list failure.
var ErrUnavailable = errors.New("ledger: unavailable")

// UnavailableError wraps the backend diagnostic of a failed ledger call.
// StatusCode is zero when no HTTP response was obtained.
type UnavailableError struct {
	Op         string
	StatusCode int
	Diagnostic string
	Err        error
}

func (e *UnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ledger: %s failed (status %d): %s", e.Op, e.StatusCode, e.Diagnostic)
	}
	return fmt.Sprintf("ledger: %s failed: %s", e.Op, e.Diagnostic)
}

func (e *UnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUnavailable}
	}
	return []error{ErrUnavailable, e.Err}
}
