package journal

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryRepo is an in-memory attempt journal used when no database is configured, and in tests.
type MemoryRepo struct {
	mu       sync.Mutex
	attempts map[string]Attempt
	order    []string

	// FailWith, when set, is returned by every write.
	FailWith error
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{attempts: map[string]Attempt{}} }

func (r *MemoryRepo) Create(ctx context.Context, a Attempt) error {
	if err := validate(a); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	if _, exists := r.attempts[a.ID]; exists {
		return errors.New("journal: duplicate attempt id")
	}
	a.Record = append([]byte(nil), a.Record...)
	r.attempts[a.ID] = a
	r.order = append(r.order, a.ID)
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	a.Record = append([]byte(nil), a.Record...)
	return a, nil
}

func (r *MemoryRepo) Claim(ctx context.Context, id string, at, staleBefore time.Time) (Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return Attempt{}, r.FailWith
	}
	a, ok := r.attempts[id]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	if err := claimError(a.State, a.UpdatedAt, staleBefore); err != nil {
		return Attempt{}, err
	}
	a.State = StateSubmitting
	a.ErrorKind = ""
	a.UpdatedAt = at
	r.attempts[id] = a
	a.Record = append([]byte(nil), a.Record...)
	return a, nil
}

func (r *MemoryRepo) MarkState(ctx context.Context, id string, state State, errorKind string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	a, ok := r.attempts[id]
	if !ok {
		return ErrNotFound
	}
	if !canTransition(a.State, state) {
		return ErrStateTransition
	}
	a.State = state
	a.ErrorKind = errorKind
	a.UpdatedAt = at
	r.attempts[id] = a
	return nil
}

func (r *MemoryRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Attempt, 0)
	for _, id := range r.order {
		if a := r.attempts[id]; a.InvoiceID == invoiceID {
			out = append(out, a)
		}
	}
	return out, nil
}
