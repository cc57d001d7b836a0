package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"auditchain/internal/config"
)

const maxDiagnosticBytes = 4 << 10

// FireFlyClient talks to the Hyperledger FireFly messaging API.
type FireFlyClient struct {
	baseURL   string
	namespace string
	timeout   time.Duration

	httpClient *http.Client
}

// NewFireFlyClient builds a client from ledger config. httpClient may be nil.
func NewFireFlyClient(cfg config.LedgerConfig, httpClient *http.Client) (*FireFlyClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("ledger: firefly url is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "default"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FireFlyClient{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		namespace:  ns,
		timeout:    timeout,
		httpClient: httpClient,
	}, nil
}

func (c *FireFlyClient) Name() string { return "firefly" }

type broadcastRequest struct {
	Header broadcastHeader `json:"header"`
	Data   []broadcastData `json:"data"`
}

type broadcastHeader struct {
	Tag string `json:"tag,omitempty"`
}

type broadcastData struct {
	Datatype datatypeRef `json:"datatype"`
	Value    AuditRecord `json:"value"`
}

type datatypeRef struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type broadcastResponse struct {
	Header struct {
		ID string `json:"id"`
	} `json:"header"`
}

func (c *FireFlyClient) Submit(ctx context.Context, rec AuditRecord) (Ack, error) {
	body, err := json.Marshal(broadcastRequest{
		Header: broadcastHeader{Tag: RecordType},
		Data: []broadcastData{{
			Datatype: datatypeRef{Name: RecordType, Version: RecordTypeVersion},
			Value:    rec,
		}},
	})
	if err != nil {
		return Ack{}, &UnavailableError{Op: "submit", Diagnostic: "encode record: " + err.Error(), Err: err}
	}

	raw, err := c.do(ctx, "submit", http.MethodPost, c.messagesURL()+"/broadcast", body)
	if err != nil {
		return Ack{}, err
	}

	ack := Ack{Raw: raw}
	var resp broadcastResponse
	if json.Unmarshal(raw, &resp) == nil {
		ack.MessageID = resp.Header.ID
	}
	return ack, nil
}

func (c *FireFlyClient) ListByType(ctx context.Context, recordType string) (iter.Seq2[AuditRecord, error], error) {
	raw, err := c.do(ctx, "list", http.MethodGet, c.messagesURL()+"?fetchdata=true", nil)
	if err != nil {
		return nil, err
	}
	var envs []Envelope
	if err := json.Unmarshal(raw, &envs); err != nil {
		return nil, &UnavailableError{Op: "list", Diagnostic: "malformed response: " + err.Error(), Err: err}
	}
	return filterByType(envs, recordType), nil
}

func (c *FireFlyClient) HealthCheck(ctx context.Context) error {
	_, err := c.do(ctx, "status", http.MethodGet, c.baseURL+"/api/v1/status", nil)
	return err
}

func (c *FireFlyClient) messagesURL() string {
	return c.baseURL + "/api/v1/namespaces/" + url.PathEscape(c.namespace) + "/messages"
}

func (c *FireFlyClient) do(ctx context.Context, op, method, target string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, &UnavailableError{Op: op, Diagnostic: err.Error(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UnavailableError{Op: op, Diagnostic: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnavailableError{Op: op, StatusCode: resp.StatusCode, Diagnostic: "read response: " + err.Error(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UnavailableError{Op: op, StatusCode: resp.StatusCode, Diagnostic: diagnostic(raw, resp.Status)}
	}
	return raw, nil
}

func diagnostic(body []byte, fallback string) string {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return fallback
	}
	if len(s) > maxDiagnosticBytes {
		s = s[:maxDiagnosticBytes]
	}
	return s
}
