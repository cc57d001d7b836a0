package ledger

import (
	"context"
	"encoding/json"
	"iter"
	"sync"

	"github.com/google/uuid"
)

// MemoryLedger is a simple in-memory append-only ledger useful for tests and local development.
// It is not intended for production use.
type MemoryLedger struct {
	mu       sync.Mutex
	messages []Envelope
	records  []AuditRecord
	submits  int

	// FailWith, when set, is returned by Submit and ListByType.
	FailWith error
}

func NewMemoryLedger() *MemoryLedger { return &MemoryLedger{} }

func (l *MemoryLedger) Name() string { return "memory" }

func (l *MemoryLedger) HealthCheck(ctx context.Context) error {
	if l.FailWith != nil {
		return l.FailWith
	}
	return ctx.Err()
}

func (l *MemoryLedger) Submit(ctx context.Context, rec AuditRecord) (Ack, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submits++
	if err := ctx.Err(); err != nil {
		return Ack{}, &UnavailableError{Op: "submit", Diagnostic: err.Error(), Err: err}
	}
	if l.FailWith != nil {
		return Ack{}, l.FailWith
	}

	value, err := json.Marshal([]map[string]any{{"value": rec}})
	if err != nil {
		return Ack{}, &UnavailableError{Op: "submit", Diagnostic: err.Error(), Err: err}
	}
	id := uuid.NewString()
	l.messages = append(l.messages, Envelope{
		Header: EnvelopeHeader{ID: id, Type: "broadcast", Tag: RecordType},
		Data:   value,
	})
	l.records = append(l.records, rec)
	return Ack{MessageID: id}, nil
}

func (l *MemoryLedger) ListByType(ctx context.Context, recordType string) (iter.Seq2[AuditRecord, error], error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailWith != nil {
		return nil, l.FailWith
	}
	envs := make([]Envelope, len(l.messages))
	copy(envs, l.messages)
	return filterByType(envs, recordType), nil
}

// Records returns a snapshot of all appended records in order.
func (l *MemoryLedger) Records() []AuditRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Submits returns the number of Submit invocations, including failed ones.
func (l *MemoryLedger) Submits() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submits
}
