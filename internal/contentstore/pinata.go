package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"auditchain/internal/config"
)

const (
	pinFilePath = "/pinning/pinFileToIPFS"

	headerAPIKey    = "pinata_api_key"
	headerSecretKey = "pinata_secret_api_key"

	// maxDiagnosticBytes bounds how much of an error body is kept as diagnostic.
	maxDiagnosticBytes = 4 << 10
)

// PinataClient uploads blobs to IPFS through the Pinata pinning API.
type PinataClient struct {
	apiURL     string
	gatewayURL string
	apiKey     string
	secretKey  string

	timeout      time.Duration
	probeTimeout time.Duration

	httpClient *http.Client
}

// NewPinataClient builds a client from store config. httpClient may be nil.
// Timeouts are applied per call, so the shared client carries none.
func NewPinataClient(cfg config.StoreConfig, httpClient *http.Client) (*PinataClient, error) {
	if strings.TrimSpace(cfg.APIURL) == "" {
		return nil, errors.New("contentstore: api url is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	probe := cfg.ProbeTimeout
	if probe <= 0 {
		probe = 5 * time.Second
	}
	return &PinataClient{
		apiURL:       strings.TrimRight(cfg.APIURL, "/"),
		gatewayURL:   strings.TrimRight(cfg.GatewayURL, "/"),
		apiKey:       cfg.APIKey,
		secretKey:    cfg.SecretKey,
		timeout:      timeout,
		probeTimeout: probe,
		httpClient:   httpClient,
	}, nil
}

func (c *PinataClient) Name() string { return "pinata" }

type pinFileResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

func (c *PinataClient) Store(ctx context.Context, data []byte, filename string) (string, error) {
	if filename == "" {
		filename = "upload"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("contentstore: build form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("contentstore: build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("contentstore: build form: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+pinFilePath, &body)
	if err != nil {
		return "", fmt.Errorf("contentstore: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(headerAPIKey, c.apiKey)
	req.Header.Set(headerSecretKey, c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.classify(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &RejectedError{StatusCode: resp.StatusCode, Diagnostic: "read response: " + err.Error(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &RejectedError{StatusCode: resp.StatusCode, Diagnostic: diagnostic(raw, resp.Status)}
	}

	var out pinFileResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &RejectedError{StatusCode: resp.StatusCode, Diagnostic: "malformed response: " + err.Error(), Err: err}
	}
	if out.IpfsHash == "" {
		return "", &RejectedError{StatusCode: resp.StatusCode, Diagnostic: "response missing IpfsHash"}
	}
	return out.IpfsHash, nil
}

func (c *PinataClient) ResolveRef(address string) string {
	return c.gatewayURL + "/ipfs/" + address
}

// HealthCheck reports whether the API host answers at all; any HTTP response counts.
func (c *PinataClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classify(err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

func (c *PinataClient) classify(err error) error {
	if isUnreachable(err) {
		return &UnreachableError{Host: hostOf(c.apiURL), Err: err}
	}
	return &RejectedError{Diagnostic: err.Error(), Err: err}
}

// isUnreachable is true for DNS failures and failed dials; timeouts after the
// connection was established count as rejections.
func isUnreachable(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return false
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
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
