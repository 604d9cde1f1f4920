package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmerrifield20/genledger/internal/digest"
)

// ErrNotFound is returned by Verify when the digest is not on record.
var ErrNotFound = errors.New("digest not found in ledger")

// Summary is the response of Summarize.
type Summary struct {
	Summary          string `json:"summary"`
	VerificationHash string `json:"verification_hash"`
}

// Answer is the response of Answer.
type Answer struct {
	Answer           string `json:"answer"`
	VerificationHash string `json:"verification_hash"`
}

// LearningPath is the response of LearningPath.
type LearningPath struct {
	LearningPath     string `json:"learning_path"`
	VerificationHash string `json:"verification_hash"`
}

// RecordedDetails describes a ledger entry.
type RecordedDetails struct {
	Timestamp           time.Time `json:"timestamp"`
	DataType            string    `json:"data_type"`
	OriginalDataPreview string    `json:"original_data_preview"`
}

// Verification is the response of Verify for a digest on record.
type Verification struct {
	Status          string          `json:"status"`
	Hash            string          `json:"hash"`
	RecordedDetails RecordedDetails `json:"recorded_details"`
	Receipt         string          `json:"receipt,omitempty"`
}

// LedgerOverview is the response of Ledger.
type LedgerOverview struct {
	Entries int `json:"entries"`
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
}

// Client talks to a genledger service.
type Client struct {
	base       string
	httpClient *http.Client
	timeout    time.Duration
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("nil http client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout. It applies regardless of option
// order and never modifies an http.Client passed to WithHTTPClient.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		c.timeout = d
		return nil
	}
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		// Generation waits on the backend; leave room above its timeout.
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c, nil
}

// MustNew is like New but panics on error.
func MustNew(baseURL string, opts ...Option) *Client {
	c, err := New(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Summarize requests a summary of text.
func (c *Client) Summarize(ctx context.Context, text string) (*Summary, error) {
	var out Summary
	if err := c.post(ctx, "/summarize", map[string]string{"text": text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Answer asks question against contextText.
func (c *Client) Answer(ctx context.Context, contextText, question string) (*Answer, error) {
	var out Answer
	body := map[string]string{"context": contextText, "question": question}
	if err := c.post(ctx, "/qa", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LearningPath requests a learning path for topic.
func (c *Client) LearningPath(ctx context.Context, topic string) (*LearningPath, error) {
	var out LearningPath
	if err := c.post(ctx, "/learning_path", map[string]string{"topic": topic}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify looks hash up in the ledger. It returns ErrNotFound when the
// service has no record of it.
func (c *Client) Verify(ctx context.Context, hash string) (*Verification, error) {
	var out Verification
	err := c.get(ctx, "/verify_on_chain/"+url.PathEscape(hash), &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

// VerifyPayload recomputes the digest of payload (for example the response
// of Summarize without its verification_hash field) and checks that the
// service has it on record. A payload that was altered after it was issued
// yields ErrNotFound.
func (c *Client) VerifyPayload(ctx context.Context, payload map[string]any) (*Verification, error) {
	d, err := Digest(payload)
	if err != nil {
		return nil, err
	}
	return c.Verify(ctx, d)
}

// Digest returns the verification hash of payload as the service computes
// it: SHA-256 over the RFC 8785 canonical JSON, hex encoded.
func Digest(payload map[string]any) (string, error) {
	return digest.Compute(payload)
}

// Ledger returns the number of digests on record.
func (c *Client) Ledger(ctx context.Context) (*LedgerOverview, error) {
	var out LedgerOverview
	if err := c.get(ctx, "/ledger", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts the "error" or "message" field of a JSON error body.
func errorMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return strings.TrimSpace(string(body))
}
