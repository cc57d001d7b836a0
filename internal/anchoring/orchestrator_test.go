package anchoring

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"auditchain/internal/contentstore"
	"auditchain/internal/fingerprint"
	"auditchain/internal/journal"
	"auditchain/internal/ledger"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestOrchestrator() (*Orchestrator, *contentstore.MemoryStore, *ledger.MemoryLedger, *journal.MemoryRepo) {
	store := contentstore.NewMemoryStore("https://gateway.pinata.cloud")
	store.Address = func([]byte) string { return "Qm123" }
	l := ledger.NewMemoryLedger()
	j := journal.NewMemoryRepo()
	o := NewOrchestrator(store, l, j)
	o.clock = func() time.Time { return fixedNow }
	o.newID = func() string { return "attempt-1" }
	return o, store, l, j
}

func helloRequest() AnchorRequest {
	return AnchorRequest{File: &File{Name: "inv.pdf", Data: []byte("hello")}, InvoiceID: "INV-1", Amount: "100.00"}
}

func ledgerTimeout() error {
	return &ledger.UnavailableError{Op: "submit", Diagnostic: "context deadline exceeded", Err: context.DeadlineExceeded}
}

func TestAnchor_FullSuccess(t *testing.T) {
	o, _, l, j := newTestOrchestrator()

	res, err := o.Anchor(context.Background(), helloRequest())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Outcome != OutcomeSuccess || res.State != StateSubmitted {
		t.Fatalf("unexpected outcome %s/%s", res.Outcome, res.State)
	}
	if res.ContentAddress != "Qm123" || res.FileHash != fingerprint.Sum([]byte("hello")) {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.FileRef != "https://gateway.pinata.cloud/ipfs/Qm123" {
		t.Fatalf("unexpected file ref %q", res.FileRef)
	}

	recs := l.Records()
	if len(recs) != 1 {
		t.Fatalf("expected 1 ledger record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.InvoiceID != "INV-1" || rec.Status != ledger.StatusPending || rec.ContentAddress != "Qm123" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Amount == nil || rec.Amount.String() != "100" {
		t.Fatalf("unexpected amount: %v", rec.Amount)
	}
	if !rec.Timestamp.Equal(fixedNow) {
		t.Fatalf("timestamp must be assigned by the orchestrator, got %v", rec.Timestamp)
	}

	a, err := j.Get(context.Background(), "attempt-1")
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	if a.State != journal.StateSubmitted {
		t.Fatalf("expected submitted attempt, got %s", a.State)
	}
}

func TestAnchor_LedgerFailureIsPartialWithAddress(t *testing.T) {
	o, _, l, j := newTestOrchestrator()
	l.FailWith = ledgerTimeout()

	res, err := o.Anchor(context.Background(), helloRequest())
	if err == nil {
		t.Fatalf("expected error")
	}
	if KindOf(err) != KindLedgerUnavailable {
		t.Fatalf("expected LedgerUnavailable, got %v", err)
	}
	if !errors.Is(err, ledger.ErrUnavailable) {
		t.Fatalf("expected wrapped ledger error")
	}
	if res.Outcome != OutcomePartial || res.State != StateSubmitFailed {
		t.Fatalf("expected partial, got %s/%s", res.Outcome, res.State)
	}
	if res.ContentAddress != "Qm123" {
		t.Fatalf("partial result must carry the content address, got %q", res.ContentAddress)
	}
	if res.AttemptID != "attempt-1" {
		t.Fatalf("expected attempt id, got %q", res.AttemptID)
	}
	a, _ := j.Get(context.Background(), "attempt-1")
	if a.State != journal.StateSubmitFailed || a.ErrorKind != string(KindLedgerUnavailable) {
		t.Fatalf("unexpected attempt: %+v", a)
	}
}

func TestAnchor_StoreFailureSkipsLedger(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind Kind
	}{
		{"unreachable", &contentstore.UnreachableError{Host: "api.pinata.cloud", Err: errors.New("no such host")}, KindStoreUnreachable},
		{"rejected", &contentstore.RejectedError{StatusCode: 401, Diagnostic: "Invalid API key"}, KindStoreRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o, store, l, _ := newTestOrchestrator()
			store.FailWith = tc.err

			res, err := o.Anchor(context.Background(), helloRequest())
			if KindOf(err) != tc.kind {
				t.Fatalf("expected %s, got %v", tc.kind, err)
			}
			if res.Outcome != OutcomeFailure || res.State != StateStoreFailed {
				t.Fatalf("unexpected outcome %s/%s", res.Outcome, res.State)
			}
			if res.ContentAddress != "" {
				t.Fatalf("no address expected on store failure")
			}
			if l.Submits() != 0 {
				t.Fatalf("ledger must not be called, got %d submits", l.Submits())
			}
		})
	}
}

func TestAnchor_RejectedDiagnosticSurfaces(t *testing.T) {
	o, store, _, _ := newTestOrchestrator()
	store.FailWith = &contentstore.RejectedError{StatusCode: 401, Diagnostic: "Invalid API key"}

	_, err := o.Anchor(context.Background(), helloRequest())
	var werr *Error
	if !errors.As(err, &werr) || werr.Diagnostic != "Invalid API key" {
		t.Fatalf("expected backend diagnostic, got %v", err)
	}
}

func TestAnchor_InvalidInputHasNoSideEffects(t *testing.T) {
	cases := map[string]AnchorRequest{
		"missing file":     {InvoiceID: "INV-1", Amount: "1"},
		"missing invoice":  {File: &File{Data: []byte("x")}, InvoiceID: "  ", Amount: "1"},
		"missing amount":   {File: &File{Data: []byte("x")}, InvoiceID: "INV-1"},
		"malformed amount": {File: &File{Data: []byte("x")}, InvoiceID: "INV-1", Amount: "12abc"},
		"negative amount":  {File: &File{Data: []byte("x")}, InvoiceID: "INV-1", Amount: "-5"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			o, store, l, _ := newTestOrchestrator()
			res, err := o.Anchor(context.Background(), req)
			if KindOf(err) != KindInputInvalid {
				t.Fatalf("expected InputInvalid, got %v", err)
			}
			if res.Outcome != OutcomeFailure || res.State != StateReceived {
				t.Fatalf("unexpected outcome %s/%s", res.Outcome, res.State)
			}
			if store.Calls() != 0 || l.Submits() != 0 {
				t.Fatalf("no backend calls expected, got store=%d ledger=%d", store.Calls(), l.Submits())
			}
		})
	}
}

func TestAnchor_EmptyFileIsAccepted(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	res, err := o.Anchor(context.Background(), AnchorRequest{File: &File{Name: "empty"}, InvoiceID: "INV-0", Amount: "0"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.FileHash != fingerprint.Sum(nil) {
		t.Fatalf("unexpected hash %s", res.FileHash)
	}
}

func TestAnchor_RepeatCreatesNewUploadAndRecord(t *testing.T) {
	o, store, l, _ := newTestOrchestrator()
	ids := []string{"a1", "a2"}
	o.newID = func() string { id := ids[0]; ids = ids[1:]; return id }

	for i := 0; i < 2; i++ {
		if _, err := o.Anchor(context.Background(), helloRequest()); err != nil {
			t.Fatalf("anchor %d: %v", i, err)
		}
	}
	if store.Calls() != 2 || len(l.Records()) != 2 {
		t.Fatalf("expected 2 uploads and 2 records, got %d/%d", store.Calls(), len(l.Records()))
	}
}

func TestAnchor_JournalFailureDoesNotFailWorkflow(t *testing.T) {
	o, _, _, j := newTestOrchestrator()
	j.FailWith = errors.New("db down")

	res, err := o.Anchor(context.Background(), helloRequest())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Outcome != OutcomeSuccess || res.AttemptID != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestAnchor_CallerCancellationDoesNotAbortBackendCalls(t *testing.T) {
	o, _, l, _ := newTestOrchestrator()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := o.Anchor(ctx, helloRequest())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Outcome != OutcomeSuccess || len(l.Records()) != 1 {
		t.Fatalf("expected workflow to complete, got %+v", res)
	}
}

func TestResubmit_RetriesOnlyLedgerPhase(t *testing.T) {
	o, store, l, j := newTestOrchestrator()
	l.FailWith = ledgerTimeout()
	if _, err := o.Anchor(context.Background(), helloRequest()); KindOf(err) != KindLedgerUnavailable {
		t.Fatalf("expected partial, got %v", err)
	}

	l.FailWith = nil
	later := fixedNow.Add(time.Hour)
	o.clock = func() time.Time { return later }

	res, err := o.Resubmit(context.Background(), "attempt-1")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if res.Outcome != OutcomeSuccess || res.ContentAddress != "Qm123" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if store.Calls() != 1 {
		t.Fatalf("resubmit must not upload again, got %d store calls", store.Calls())
	}
	recs := l.Records()
	if len(recs) != 1 || recs[0].ContentAddress != "Qm123" || !recs[0].Timestamp.Equal(later) {
		t.Fatalf("unexpected ledger records: %+v", recs)
	}

	a, _ := j.Get(context.Background(), "attempt-1")
	if a.State != journal.StateSubmitted {
		t.Fatalf("expected submitted, got %s", a.State)
	}
	var journaled ledger.AuditRecord
	if err := json.Unmarshal(a.Record, &journaled); err != nil || journaled.InvoiceID != "INV-1" {
		t.Fatalf("unexpected journaled record: %v %+v", err, journaled)
	}

	if _, err := o.Resubmit(context.Background(), "attempt-1"); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
}

func TestResubmit_Errors(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	if _, err := o.Resubmit(context.Background(), "missing"); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
	if _, err := o.Resubmit(context.Background(), ""); KindOf(err) != KindInputInvalid {
		t.Fatalf("expected InputInvalid, got %v", err)
	}

	noJournal := NewOrchestrator(contentstore.NewMemoryStore(""), ledger.NewMemoryLedger(), nil)
	if _, err := noJournal.Resubmit(context.Background(), "a1"); !errors.Is(err, ErrJournalDisabled) {
		t.Fatalf("expected ErrJournalDisabled, got %v", err)
	}
}

// gatedLedger parks every Submit until release is closed.
type gatedLedger struct {
	*ledger.MemoryLedger
	entered chan struct{}
	release chan struct{}
}

func newGatedLedger(l *ledger.MemoryLedger) *gatedLedger {
	return &gatedLedger{MemoryLedger: l, entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gatedLedger) Submit(ctx context.Context, rec ledger.AuditRecord) (ledger.Ack, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.MemoryLedger.Submit(ctx, rec)
}

func anchorPartial(t *testing.T, o *Orchestrator, l *ledger.MemoryLedger) {
	t.Helper()
	l.FailWith = ledgerTimeout()
	if _, err := o.Anchor(context.Background(), helloRequest()); KindOf(err) != KindLedgerUnavailable {
		t.Fatalf("expected partial, got %v", err)
	}
	l.FailWith = nil
}

func TestResubmit_ConcurrentCallersAppendOnce(t *testing.T) {
	o, _, l, j := newTestOrchestrator()
	anchorPartial(t, o, l)
	recordsBefore := len(l.Records())

	g := newGatedLedger(l)
	o.ledger = g

	const callers = 5
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, err := o.Resubmit(context.Background(), "attempt-1")
			results <- err
		}()
	}

	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("no resubmit reached the ledger")
	}

	// Every other caller must be turned away while the first one holds the claim.
	for i := 0; i < callers-1; i++ {
		select {
		case err := <-results:
			if !errors.Is(err, ErrAttemptInFlight) {
				t.Fatalf("expected ErrAttemptInFlight, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("a second resubmit reached the ledger")
		}
	}

	close(g.release)
	if err := <-results; err != nil {
		t.Fatalf("claim holder failed: %v", err)
	}
	if got := len(l.Records()) - recordsBefore; got != 1 {
		t.Fatalf("expected exactly one appended record, got %d", got)
	}
	a, _ := j.Get(context.Background(), "attempt-1")
	if a.State != journal.StateSubmitted {
		t.Fatalf("expected submitted, got %s", a.State)
	}
}

func TestResubmit_RejectedWhileAnchorInFlight(t *testing.T) {
	o, _, l, _ := newTestOrchestrator()
	g := newGatedLedger(l)
	o.ledger = g

	done := make(chan error, 1)
	go func() {
		_, err := o.Anchor(context.Background(), helloRequest())
		done <- err
	}()
	<-g.entered

	if _, err := o.Resubmit(context.Background(), "attempt-1"); !errors.Is(err, ErrAttemptInFlight) {
		t.Fatalf("expected ErrAttemptInFlight, got %v", err)
	}

	close(g.release)
	if err := <-done; err != nil {
		t.Fatalf("anchor: %v", err)
	}
	if len(l.Records()) != 1 {
		t.Fatalf("expected one record, got %d", len(l.Records()))
	}
	if _, err := o.Resubmit(context.Background(), "attempt-1"); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
}

func TestResubmit_TakesOverAbandonedClaim(t *testing.T) {
	o, _, l, j := newTestOrchestrator()
	raw, _ := json.Marshal(ledger.AuditRecord{InvoiceID: "INV-9", Status: ledger.StatusPending, FileHash: fingerprint.Sum([]byte("x")), ContentAddress: "QmX"})
	mk := func(id string, age time.Duration) {
		at := fixedNow.Add(-age)
		err := j.Create(context.Background(), journal.Attempt{
			ID: id, InvoiceID: "INV-9", FileHash: fingerprint.Sum([]byte("x")), ContentAddress: "QmX",
			State: journal.StateSubmitting, Record: raw, CreatedAt: at, UpdatedAt: at,
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	mk("stale", defaultClaimLease+time.Minute)
	mk("fresh", 10*time.Second)

	if _, err := o.Resubmit(context.Background(), "fresh"); !errors.Is(err, ErrAttemptInFlight) {
		t.Fatalf("expected ErrAttemptInFlight for live claim, got %v", err)
	}
	if _, err := o.Resubmit(context.Background(), "stale"); err != nil {
		t.Fatalf("expected abandoned claim to be taken over, got %v", err)
	}
	if len(l.Records()) != 1 {
		t.Fatalf("expected one record, got %d", len(l.Records()))
	}
}
