package anchoring

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"auditchain/internal/contentstore"
	"auditchain/internal/fingerprint"
	"auditchain/internal/journal"
	"auditchain/internal/ledger"
	"auditchain/pkg/logger"

	"github.com/google/uuid"
)

// State is a step of one anchoring run.
//
//	Received -> Hashed -> Stored -> Submitted
//	                 \-> StoreFailed  \-> SubmitFailed
type State string

const (
	StateReceived     State = "Received"
	StateHashed       State = "Hashed"
	StateStored       State = "Stored"
	StateSubmitted    State = "Submitted"
	StateStoreFailed  State = "StoreFailed"
	StateSubmitFailed State = "SubmitFailed"
)

// Outcome is the tri-state result class reported to the caller.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	// OutcomePartial: the blob is stored and addressable but no ledger record exists.
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// File is an uploaded document. A nil *File means no file was supplied;
// a File with empty Data is a valid zero-length document.
type File struct {
	Name string
	Data []byte
}

type AnchorRequest struct {
	File      *File
	InvoiceID string
	Amount    string
}

// Result describes where an anchoring run stopped.
//
// ContentAddress is always set once the run reached Stored, including on
// partial success, so the caller can retry the ledger phase without re-uploading.
type Result struct {
	Outcome Outcome
	State   State

	FileHash       string
	ContentAddress string
	FileRef        string

	// AttemptID identifies the journaled attempt; empty when journaling failed or is disabled.
	AttemptID string
	Record    *ledger.AuditRecord
	Ack       ledger.Ack
}

// Orchestrator sequences fingerprint -> store -> ledger submit.
//
// The order is a data dependency (the record needs the content address), so no
// locking is involved. Nothing is retried; every failure is surfaced.
type Orchestrator struct {
	store   contentstore.Store
	ledger  ledger.Ledger
	journal journal.Repository

	clock func() time.Time
	newID func() string
	// claimLease is how long a submitting attempt stays owned before Resubmit may take it over.
	claimLease time.Duration
}

// defaultClaimLease outlives any single ledger call (10s default timeout).
const defaultClaimLease = 2 * time.Minute

// NewOrchestrator wires the workflow. attempts may be nil to disable journaling.
func NewOrchestrator(store contentstore.Store, l ledger.Ledger, attempts journal.Repository) *Orchestrator {
	return &Orchestrator{
		store:   store,
		ledger:  l,
		journal: attempts,
		clock:      time.Now,
		newID:      uuid.NewString,
		claimLease: defaultClaimLease,
	}
}

// Anchor runs the full workflow. The returned error is nil only on total
// success; on partial success it is a LedgerUnavailable *Error and the Result
// still carries the content address.
func (o *Orchestrator) Anchor(ctx context.Context, req AnchorRequest) (Result, error) {
	res := Result{Outcome: OutcomeFailure, State: StateReceived}

	invoiceID := strings.TrimSpace(req.InvoiceID)
	if req.File == nil {
		return res, inputInvalid("anchor", "file is required")
	}
	if invoiceID == "" {
		return res, inputInvalid("anchor", "invoice_id is required")
	}
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return res, inputInvalid("anchor", err.Error())
	}

	log := logger.From(ctx).With("invoice_id", invoiceID)

	// Backend calls run to completion (or their own timeout) even if the caller goes away.
	callCtx := context.WithoutCancel(ctx)

	res.FileHash = fingerprint.Sum(req.File.Data)
	res.State = StateHashed

	addr, err := o.store.Store(callCtx, req.File.Data, req.File.Name)
	if err != nil {
		res.State = StateStoreFailed
		werr := storeError(err)
		log.Warn("content store upload failed", "kind", werr.Kind, "err", err)
		return res, werr
	}
	res.ContentAddress = addr
	res.FileRef = o.store.ResolveRef(addr)
	res.State = StateStored

	now := o.clock().UTC()
	rec := ledger.AuditRecord{
		InvoiceID:      invoiceID,
		Amount:         &amount,
		Status:         ledger.StatusPending,
		FileHash:       res.FileHash,
		ContentAddress: addr,
		FileRef:        res.FileRef,
		Timestamp:      now,
	}
	res.Record = &rec
	res.AttemptID = o.journalStored(callCtx, rec, now)

	ack, err := o.ledger.Submit(callCtx, rec)
	if err != nil {
		res.Outcome = OutcomePartial
		res.State = StateSubmitFailed
		o.journalMark(callCtx, res.AttemptID, journal.StateSubmitFailed, string(KindLedgerUnavailable))
		log.Error("ledger submit failed after store", "content_address", addr, "attempt_id", res.AttemptID, "err", err)
		return res, ledgerError("anchor", err)
	}

	res.Outcome = OutcomeSuccess
	res.State = StateSubmitted
	res.Ack = ack
	o.journalMark(callCtx, res.AttemptID, journal.StateSubmitted, "")
	log.Info("document anchored", "content_address", addr, "message_id", ack.MessageID)
	return res, nil
}

// Resubmit retries only the ledger phase of a journaled attempt. The content
// store is never contacted. The record is re-stamped with the submission time.
//
// The attempt is claimed in the journal before the ledger call, so concurrent
// resubmits (or a resubmit racing the original Anchor) append at most once.
func (o *Orchestrator) Resubmit(ctx context.Context, attemptID string) (Result, error) {
	res := Result{Outcome: OutcomeFailure, State: StateStored, AttemptID: attemptID}
	if o.journal == nil {
		return res, ErrJournalDisabled
	}
	if strings.TrimSpace(attemptID) == "" {
		return res, inputInvalid("resubmit", "attempt_id is required")
	}

	callCtx := context.WithoutCancel(ctx)

	now := o.clock().UTC()
	a, err := o.journal.Claim(callCtx, attemptID, now, now.Add(-o.claimLease))
	switch {
	case errors.Is(err, journal.ErrNotFound):
		return res, ErrAttemptNotFound
	case errors.Is(err, journal.ErrSubmitted):
		res.State = StateSubmitted
		return res, ErrAlreadySubmitted
	case errors.Is(err, journal.ErrInFlight):
		return res, ErrAttemptInFlight
	case err != nil:
		return res, err
	}

	log := logger.From(ctx).With("invoice_id", a.InvoiceID, "attempt_id", a.ID)

	var rec ledger.AuditRecord
	if err := json.Unmarshal(a.Record, &rec); err != nil {
		o.journalMark(callCtx, a.ID, journal.StateSubmitFailed, "RecordCorrupt")
		return res, err
	}
	rec.Timestamp = now

	res.FileHash = a.FileHash
	res.ContentAddress = a.ContentAddress
	res.FileRef = rec.FileRef
	res.Record = &rec

	ack, err := o.ledger.Submit(callCtx, rec)
	if err != nil {
		res.Outcome = OutcomePartial
		res.State = StateSubmitFailed
		o.journalMark(callCtx, a.ID, journal.StateSubmitFailed, string(KindLedgerUnavailable))
		log.Error("ledger resubmit failed", "err", err)
		return res, ledgerError("resubmit", err)
	}

	res.Outcome = OutcomeSuccess
	res.State = StateSubmitted
	res.Ack = ack
	o.journalMark(callCtx, a.ID, journal.StateSubmitted, "")
	log.Info("attempt resubmitted", "message_id", ack.MessageID)
	return res, nil
}

// journalStored records the stored attempt, already claimed as submitting by
// this run. Journaling is best-effort: a failure is logged and the workflow
// continues without an attempt id.
func (o *Orchestrator) journalStored(ctx context.Context, rec ledger.AuditRecord, now time.Time) string {
	if o.journal == nil {
		return ""
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		logger.From(ctx).Warn("journal encode failed", "err", err)
		return ""
	}
	a := journal.Attempt{
		ID:             o.newID(),
		InvoiceID:      rec.InvoiceID,
		FileHash:       rec.FileHash,
		ContentAddress: rec.ContentAddress,
		State:          journal.StateSubmitting,
		Record:         raw,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := o.journal.Create(ctx, a); err != nil {
		logger.From(ctx).Warn("journal create failed", "content_address", rec.ContentAddress, "err", err)
		return ""
	}
	return a.ID
}

func (o *Orchestrator) journalMark(ctx context.Context, id string, state journal.State, kind string) {
	if o.journal == nil || id == "" {
		return
	}
	if err := o.journal.MarkState(ctx, id, state, kind, o.clock().UTC()); err != nil {
		logger.From(ctx).Warn("journal update failed", "attempt_id", id, "state", state, "err", err)
	}
}

func storeError(err error) *Error {
	if errors.Is(err, contentstore.ErrUnreachable) {
		return &Error{Kind: KindStoreUnreachable, Op: "store", Diagnostic: err.Error(), Err: err}
	}
	diag := err.Error()
	var re *contentstore.RejectedError
	if errors.As(err, &re) {
		diag = re.Diagnostic
	}
	return &Error{Kind: KindStoreRejected, Op: "store", Diagnostic: diag, Err: err}
}

func ledgerError(op string, err error) *Error {
	diag := err.Error()
	var ue *ledger.UnavailableError
	if errors.As(err, &ue) {
		diag = ue.Diagnostic
	}
	return &Error{Kind: KindLedgerUnavailable, Op: op, Diagnostic: diag, Err: err}
}

// Attempts lists journaled attempts for an invoice, oldest first.
func (o *Orchestrator) Attempts(ctx context.Context, invoiceID string) ([]journal.Attempt, error) {
	if o.journal == nil {
		return nil, ErrJournalDisabled
	}
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return nil, inputInvalid("attempts", "invoice_id is required")
	}
	return o.journal.ListByInvoice(ctx, invoiceID)
}
