// Package health aggregates reachability probes of the backing services.
package health

import (
	"context"
	"sync"

	"auditchain/pkg/logger"
)

const (
	StatusOK     = "OK"
	StatusFailed = "FAILED"
)

// Checker is satisfied by contentstore.Store and ledger.Ledger.
// Each implementation applies its own probe timeout.
type Checker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}

type Report struct {
	Server string `json:"server"`
	Store  string `json:"store"`
	Ledger string `json:"ledger"`
}

// Healthy reports whether every component is OK.
func (r Report) Healthy() bool {
	return r.Server == StatusOK && r.Store == StatusOK && r.Ledger == StatusOK
}

type Prober struct {
	store  Checker
	ledger Checker
}

func NewProber(store, ledger Checker) *Prober {
	return &Prober{store: store, ledger: ledger}
}

// Probe runs both checks concurrently. The server itself is OK by virtue of answering.
func (p *Prober) Probe(ctx context.Context) Report {
	r := Report{Server: StatusOK}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.Store = check(ctx, p.store)
	}()
	go func() {
		defer wg.Done()
		r.Ledger = check(ctx, p.ledger)
	}()
	wg.Wait()
	return r
}

func check(ctx context.Context, c Checker) string {
	if c == nil {
		return StatusFailed
	}
	if err := c.HealthCheck(ctx); err != nil {
		logger.From(ctx).Warn("health probe failed", "component", c.Name(), "err", err)
		return StatusFailed
	}
	return StatusOK
}
