package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"badewanne/internal/model"
)

// DefaultTimeout bounds a single batch submission.
const DefaultTimeout = 30 * time.Second

// Submitter submits one batch of price lines and returns the per-line outcome.
type Submitter interface {
	SubmitBatch(ctx context.Context, lines []model.PriceLine) (*model.BatchResult, error)
}

// TransportError means the gateway call itself failed: no response, timeout,
// non-2xx status or an unparseable body. No line of the batch may be treated
// as applied.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return "pricing gateway " + e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Client posts batches to the pricing gateway.
type Client struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

// NewClient creates a gateway client with optional proxy support.
func NewClient(endpoint, apiKey, proxyURL string, timeout time.Duration) *Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

type batchRequest struct {
	BatchRequests []model.PriceLine `json:"BatchRequests"`
	HaltOnError   bool              `json:"HaltOnError"`
}

// SubmitBatch posts lines as one request. Results are aligned by index with lines.
func (c *Client) SubmitBatch(ctx context.Context, lines []model.PriceLine) (*model.BatchResult, error) {
	body, err := json.Marshal(batchRequest{BatchRequests: lines, HaltOnError: false})
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "post", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &TransportError{
			Op:  "post",
			Err: fmt.Errorf("status %d, body: %s", resp.StatusCode, string(respBody)),
		}
	}

	var result model.BatchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &TransportError{Op: "decode response", Err: err}
	}
	if result.HasErrors && len(result.Results) != len(lines) {
		return nil, &TransportError{
			Op:  "decode response",
			Err: fmt.Errorf("got %d results for %d lines", len(result.Results), len(lines)),
		}
	}
	return &result, nil
}
