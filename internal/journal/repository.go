package journal

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("journal: attempt not found")
	ErrInvalidAttempt  = errors.New("journal: invalid attempt")
	ErrStateTransition = errors.New("journal: invalid state transition")
	// ErrSubmitted: the attempt's record is already on the ledger.
	ErrSubmitted = errors.New("journal: attempt already submitted")
	// ErrInFlight: another caller holds a live claim on the attempt.
	ErrInFlight = errors.New("journal: attempt submission in progress")
)

// Repository is the persistence contract for anchoring attempts.
//
// Attempts are never deleted. Only State, ErrorKind and UpdatedAt change,
// and a submitted attempt is terminal.
//
// Rules:
// - Only the holder of a submitting claim may call the ledger for an attempt.
// - Claim is atomic: of two concurrent claims on the same attempt, one fails with ErrInFlight.
// - A submitting claim older than staleBefore is considered abandoned and may be re-claimed.
// - MarkState only moves submitting -> submitted | submit_failed.
type Repository interface {
	Create(ctx context.Context, a Attempt) error
	Get(ctx context.Context, id string) (Attempt, error)
	Claim(ctx context.Context, id string, at, staleBefore time.Time) (Attempt, error)
	MarkState(ctx context.Context, id string, state State, errorKind string, at time.Time) error
	ListByInvoice(ctx context.Context, invoiceID string) ([]Attempt, error)
}

func validate(a Attempt) error {
	if a.ID == "" || a.InvoiceID == "" || a.ContentAddress == "" || a.FileHash == "" {
		return ErrInvalidAttempt
	}
	if len(a.Record) == 0 {
		return ErrInvalidAttempt
	}
	switch a.State {
	case StateStored, StateSubmitting, StateSubmitted, StateSubmitFailed:
	default:
		return ErrInvalidAttempt
	}
	return nil
}

func canTransition(from, to State) bool {
	return from == StateSubmitting && (to == StateSubmitted || to == StateSubmitFailed)
}

// claimError explains why an attempt in state s (last touched at updated) cannot be claimed.
// It returns nil when the claim is allowed.
func claimError(s State, updated, staleBefore time.Time) error {
	switch s {
	case StateStored, StateSubmitFailed:
		return nil
	case StateSubmitting:
		if updated.Before(staleBefore) {
			return nil
		}
		return ErrInFlight
	case StateSubmitted:
		return ErrSubmitted
	}
	return ErrStateTransition
}
