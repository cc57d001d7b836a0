package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"auditchain/internal/anchoring"
	"auditchain/internal/health"
	"auditchain/internal/ledger"
	"auditchain/internal/verify"
	"auditchain/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Anchor *anchoring.Orchestrator
	Status *anchoring.StatusUpdater
	Ledger ledger.Ledger
	Prober *health.Prober

	// MaxUploadBytes bounds multipart request bodies.
	MaxUploadBytes int64
}

// --- Anchoring ---

// UploadFull anchors a document: hash, store, then ledger submit.
// 207 signals partial success: the content address is valid but no ledger record exists.
func (h Handlers) UploadFull(c *gin.Context) {
	file, ok := h.readUpload(c)
	if !ok {
		return
	}

	res, err := h.Anchor.Anchor(c.Request.Context(), anchoring.AnchorRequest{
		File:      file,
		InvoiceID: c.PostForm("invoice_id"),
		Amount:    c.PostForm("amount"),
	})
	if err != nil {
		if res.Outcome == anchoring.OutcomePartial {
			_ = c.Error(err)
			body := errorBody(err)
			body["success"] = false
			body["partial"] = true
			body["content_address"] = res.ContentAddress
			body["file_hash"] = res.FileHash
			body["file_ref"] = res.FileRef
			body["attempt_id"] = res.AttemptID
			c.JSON(http.StatusMultiStatus, body)
			return
		}
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"content_address": res.ContentAddress,
		"file_hash":       res.FileHash,
		"file_ref":        res.FileRef,
		"attempt_id":      res.AttemptID,
		"message_id":      res.Ack.MessageID,
	})
}

// Resubmit retries the ledger phase of a journaled attempt.
func (h Handlers) Resubmit(c *gin.Context) {
	res, err := h.Anchor.Resubmit(c.Request.Context(), c.Param("attempt_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"attempt_id":      res.AttemptID,
		"content_address": res.ContentAddress,
		"file_hash":       res.FileHash,
		"message_id":      res.Ack.MessageID,
	})
}

// Attempts lists journaled anchoring attempts for ?invoice_id=.
func (h Handlers) Attempts(c *gin.Context) {
	attempts, err := h.Anchor.Attempts(c.Request.Context(), c.Query("invoice_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "attempts": attempts})
}

// --- Status ---

type auditRequest struct {
	InvoiceID string          `json:"invoice_id"`
	Status    string          `json:"status"`
	Amount    json.RawMessage `json:"amount,omitempty"`
	FileRef   string          `json:"file_ref,omitempty"`
	FileHash  string          `json:"file_hash,omitempty"`
}

// Audit appends a status record for an invoice.
func (h Handlers) Audit(c *gin.Context) {
	var req auditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": string(anchoring.KindInputInvalid), "details": "invalid json"})
		return
	}
	amount, err := amountText(req.Amount)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": string(anchoring.KindInputInvalid), "details": "amount must be a number or numeric string"})
		return
	}

	rec, ack, err := h.Status.UpdateStatus(c.Request.Context(), anchoring.StatusUpdate{
		InvoiceID: req.InvoiceID,
		Status:    req.Status,
		Amount:    amount,
		FileRef:   req.FileRef,
		FileHash:  req.FileHash,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "record": rec, "message_id": ack.MessageID})
}

// amountText accepts amount as a JSON number or string. Absent or null means no amount.
func amountText(raw json.RawMessage) (*string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return &s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}
	s := n.String()
	return &s, nil
}

// --- Verification ---

// Verify recomputes the fingerprint of an uploaded file and compares it.
func (h Handlers) Verify(c *gin.Context) {
	file, ok := h.readUpload(c)
	if !ok {
		return
	}
	var data []byte
	if file != nil {
		data = file.Data
	}

	res, err := verify.Verify(data, c.PostForm("expected_hash"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if id := c.PostForm("invoice_id"); id != "" {
		logger.FromGin(c).Info("document verified", "invoice_id", id, "is_valid", res.IsValid)
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"isValid":      res.IsValid,
		"actualHash":   res.ActualHash,
		"expectedHash": res.ExpectedHash,
	})
}

// --- Ledger reads ---

// Records lists every audit record on the ledger. Entries whose payload
// cannot be decoded are skipped.
func (h Handlers) Records(c *gin.Context) {
	seq, err := h.Ledger.ListByType(c.Request.Context(), ledger.RecordType)
	if err != nil {
		abortWithError(c, &anchoring.Error{Kind: anchoring.KindLedgerUnavailable, Op: "list", Diagnostic: diagnostic(err), Err: err})
		return
	}

	records := make([]ledger.AuditRecord, 0)
	for rec, err := range seq {
		if err != nil {
			logger.FromGin(c).Warn("skipping undecodable ledger entry", "err", err)
			continue
		}
		records = append(records, rec)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "records": records})
}

func diagnostic(err error) string {
	var ue *ledger.UnavailableError
	if errors.As(err, &ue) {
		return ue.Diagnostic
	}
	return err.Error()
}

// --- Health ---

func (h Handlers) Health(c *gin.Context) {
	r := h.Prober.Probe(c.Request.Context())
	code := http.StatusOK
	if !r.Healthy() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, r)
}

// readUpload reads the optional "file" form part. It returns (nil, true) when
// no file was sent and aborts the request on oversize or unreadable bodies.
func (h Handlers) readUpload(c *gin.Context) (*anchoring.File, bool) {
	if h.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": string(anchoring.KindInputInvalid), "details": "file exceeds upload limit"})
			return nil, false
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			return nil, true
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": string(anchoring.KindInputInvalid), "details": "malformed multipart body"})
		return nil, false
	}

	f, err := fh.Open()
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	if data == nil {
		data = []byte{}
	}
	return &anchoring.File{Name: fh.Filename, Data: data}, true
}
