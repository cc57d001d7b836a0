package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuditRecord is an immutable, append-only ledger entry for an invoice document.
//
// Invariants:
// - Records are never updated or deleted; a status change is a new record for the same invoice_id.
// - The current status of an invoice is the status of its most recent record.
// - file_hash is fixed at anchoring time; later records may carry it forward but never recompute it.
// - content_address is only present on the initial anchoring record.
type AuditRecord struct {
	InvoiceID string           `json:"invoice_id"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Status    Status           `json:"status"`

	FileHash       string `json:"file_hash,omitempty"`
	ContentAddress string `json:"content_address,omitempty"`
	// FileRef is a gateway locator derived from ContentAddress. Informational only.
	FileRef string `json:"file_ref,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Status is an open enumeration; any non-empty value is accepted on updates.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusValidated Status = "VALIDATED"
	StatusRejected  Status = "REJECTED"
)

const (
	// RecordType tags anchoring records on the ledger.
	RecordType = "audit_record"
	// RecordTypeVersion is the datatype version sent with each broadcast.
	RecordTypeVersion = "0.0.1"
)

// Ack is the ledger's acknowledgement of a submitted record.
// Raw is kept for diagnostics; only MessageID is interpreted.
type Ack struct {
	MessageID string `json:"message_id,omitempty"`
	Raw       []byte `json:"-"`
}
