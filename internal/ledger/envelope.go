package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
)

// Envelope is one message as returned by the ledger list endpoint.
type Envelope struct {
	Header EnvelopeHeader  `json:"header"`
	Data   json.RawMessage `json:"data"`
}

type EnvelopeHeader struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type,omitempty"`
	Tag     string `json:"tag,omitempty"`
	Created string `json:"created,omitempty"`
}

// Matches reports whether the envelope carries the given logical record type,
// either as its header type or as its tag.
func (h EnvelopeHeader) Matches(recordType string) bool {
	return recordType != "" && (h.Type == recordType || h.Tag == recordType)
}

type dataEntry struct {
	Value json.RawMessage `json:"value"`
}

var errEmptyPayload = errors.New("ledger: envelope has no payload")

// Record extracts the audit record payload. The payload is either the record
// object itself or an array of data entries whose first value is the record.
func (e Envelope) Record() (AuditRecord, error) {
	raw := bytes.TrimSpace(e.Data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return AuditRecord{}, errEmptyPayload
	}
	if raw[0] == '[' {
		var entries []dataEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return AuditRecord{}, fmt.Errorf("ledger: decode envelope %s: %w", e.Header.ID, err)
		}
		raw = nil
		for _, d := range entries {
			if len(d.Value) > 0 {
				raw = d.Value
				break
			}
		}
		if raw == nil {
			return AuditRecord{}, errEmptyPayload
		}
	}
	var rec AuditRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return AuditRecord{}, fmt.Errorf("ledger: decode envelope %s: %w", e.Header.ID, err)
	}
	return rec, nil
}

// filterByType lazily yields the payloads of envelopes matching recordType.
// The sequence can be consumed once; later iterations yield nothing.
func filterByType(envs []Envelope, recordType string) iter.Seq2[AuditRecord, error] {
	var consumed atomic.Bool
	return func(yield func(AuditRecord, error) bool) {
		if consumed.Swap(true) {
			return
		}
		for _, e := range envs {
			if !e.Header.Matches(recordType) {
				continue
			}
			if !yield(e.Record()) {
				return
			}
		}
	}
}
