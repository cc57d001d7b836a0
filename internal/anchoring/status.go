package anchoring

import (
	"context"
	"strings"
	"time"

	"auditchain/internal/fingerprint"
	"auditchain/internal/ledger"
	"auditchain/pkg/logger"
)

// StatusUpdate appends a lifecycle transition for an already-anchored invoice.
// Amount, FileRef and FileHash are optional and carried as given.
type StatusUpdate struct {
	InvoiceID string
	Status    string
	Amount    *string
	FileRef   string
	FileHash  string
}

// StatusUpdater appends status records to the ledger. It has no content store
// dependency, so it cannot request a new content address.
type StatusUpdater struct {
	ledger ledger.Ledger
	clock  func() time.Time
}

func NewStatusUpdater(l ledger.Ledger) *StatusUpdater {
	return &StatusUpdater{ledger: l, clock: time.Now}
}

// UpdateStatus validates u, builds a fresh record and submits it once.
func (s *StatusUpdater) UpdateStatus(ctx context.Context, u StatusUpdate) (ledger.AuditRecord, ledger.Ack, error) {
	invoiceID := strings.TrimSpace(u.InvoiceID)
	status := strings.TrimSpace(u.Status)
	if invoiceID == "" {
		return ledger.AuditRecord{}, ledger.Ack{}, inputInvalid("update_status", "invoice_id is required")
	}
	if status == "" {
		return ledger.AuditRecord{}, ledger.Ack{}, inputInvalid("update_status", "status is required")
	}

	rec := ledger.AuditRecord{
		InvoiceID: invoiceID,
		Status:    ledger.Status(status),
		FileRef:   strings.TrimSpace(u.FileRef),
	}
	if u.Amount != nil && strings.TrimSpace(*u.Amount) != "" {
		amount, err := ParseAmount(*u.Amount)
		if err != nil {
			return ledger.AuditRecord{}, ledger.Ack{}, inputInvalid("update_status", err.Error())
		}
		rec.Amount = &amount
	}
	if h := strings.TrimSpace(u.FileHash); h != "" {
		if !fingerprint.Valid(h) {
			return ledger.AuditRecord{}, ledger.Ack{}, inputInvalid("update_status", "file_hash must be a 64-character hex digest")
		}
		rec.FileHash = fingerprint.Normalize(h)
	}
	rec.Timestamp = s.clock().UTC()

	ack, err := s.ledger.Submit(context.WithoutCancel(ctx), rec)
	if err != nil {
		logger.From(ctx).Error("status update failed", "invoice_id", invoiceID, "status", status, "err", err)
		return rec, ledger.Ack{}, ledgerError("update_status", err)
	}
	logger.From(ctx).Info("status updated", "invoice_id", invoiceID, "status", status, "message_id", ack.MessageID)
	return rec, ack, nil
}
