package anchoring

import (
	"errors"
	"fmt"
)

// Kind classifies workflow failures. Each kind implies a different remediation
// for the caller, so handlers map kinds to distinct responses.
type Kind string

const (
	// KindInputInvalid: missing or malformed input; no backend call was made.
	KindInputInvalid Kind = "InputInvalid"
	// KindStoreUnreachable: the content store host could not be resolved or contacted.
	KindStoreUnreachable Kind = "StoreUnreachable"
	// KindStoreRejected: the content store reported an upload failure.
	KindStoreRejected Kind = "StoreRejected"
	// KindLedgerUnavailable: a ledger submit or list call failed, for any reason.
	KindLedgerUnavailable Kind = "LedgerUnavailable"
)

// Error is the workflow error. Diagnostic carries the backend's message when there is one.
type Error struct {
	Kind       Kind
	Op         string
	Diagnostic string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("anchoring: %s: %s", e.Op, e.Kind)
	if e.Diagnostic != "" {
		msg += ": " + e.Diagnostic
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrJournalDisabled  = errors.New("anchoring: attempt journal not configured")
	ErrAttemptNotFound  = errors.New("anchoring: attempt not found")
	ErrAlreadySubmitted = errors.New("anchoring: attempt already submitted")
	ErrAttemptInFlight  = errors.New("anchoring: attempt submission in progress")
)

// KindOf returns the workflow kind of err, or "" when err is not a workflow error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func inputInvalid(op, diagnostic string) *Error {
	return &Error{Kind: KindInputInvalid, Op: op, Diagnostic: diagnostic}
}
