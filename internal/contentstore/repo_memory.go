package contentstore

import (
	"context"
	"errors"
	"sync"

	"auditchain/internal/fingerprint"
)

// MemoryStore is an in-memory Store useful for tests and local development.
// It is not intended for production use.
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	calls int

	gatewayURL string

	// FailWith, when set, is returned by every Store call.
	FailWith error
	// Address overrides content address derivation.
	Address func(data []byte) string
}

func NewMemoryStore(gatewayURL string) *MemoryStore {
	return &MemoryStore{blobs: map[string][]byte{}, gatewayURL: gatewayURL}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) HealthCheck(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Store(ctx context.Context, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := ctx.Err(); err != nil {
		return "", &RejectedError{Diagnostic: err.Error(), Err: err}
	}
	if s.FailWith != nil {
		return "", s.FailWith
	}
	addr := "mem-" + fingerprint.Sum(data)
	if s.Address != nil {
		addr = s.Address(data)
	}
	if addr == "" {
		return "", &RejectedError{Diagnostic: "empty address", Err: errors.New("empty address")}
	}
	s.blobs[addr] = append([]byte(nil), data...)
	return addr, nil
}

func (s *MemoryStore) ResolveRef(address string) string {
	return s.gatewayURL + "/ipfs/" + address
}

// Get returns a copy of a stored blob.
func (s *MemoryStore) Get(address string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[address]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

// Calls returns the number of Store invocations, including failed ones.
func (s *MemoryStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
