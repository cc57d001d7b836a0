package journal

import (
	"encoding/json"
	"time"
)

// Attempt tracks one anchoring run after its blob has been stored.
//
// It exists so a failed ledger submission can be retried without re-uploading
// the blob: Record holds the exact audit record that was (or should be) submitted.
//
// Storage (Postgres): table anchor_attempts, see schema.sql.
type Attempt struct {
	ID             string          `json:"id" db:"id"`
	InvoiceID      string          `json:"invoice_id" db:"invoice_id"`
	FileHash       string          `json:"file_hash" db:"file_hash"`
	ContentAddress string          `json:"content_address" db:"content_address"`
	State          State           `json:"state" db:"state"`
	ErrorKind      string          `json:"error_kind,omitempty" db:"error_kind"`
	Record         json.RawMessage `json:"record" db:"record"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

type State string

// State of an attempt:
//
//	stored -> submitting -> submitted
//	              ^      \-> submit_failed
//	              \_____________/
//
// submitting is held by exactly one caller at a time; see Repository.Claim.
const (
	StateStored       State = "stored"
	StateSubmitting   State = "submitting"
	StateSubmitted    State = "submitted"
	StateSubmitFailed State = "submit_failed"
)
