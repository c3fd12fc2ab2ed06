package analysisapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/petri/internal/domain/analysis"
)

const (
	DefaultBaseURL = "http://localhost:3001/api/v1"
	userAgent      = "petri-lifecycle/1"
	maxErrorBody   = 4 << 10
)

// Client talks to the analysis service. It has no retry or cache of its own.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client. A zero timeout leaves the http.Client without a deadline;
// per-call deadlines come from the context.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient swaps the underlying http.Client (tests, custom transports).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// Submit starts a new analysis for prompt.
func (c *Client) Submit(ctx context.Context, prompt string, opts analysis.SubmitOptions) (analysis.RequestID, error) {
	body, err := json.Marshal(analysis.SubmitRequest{Prompt: prompt, SubmitOptions: opts})
	if err != nil {
		return "", fmt.Errorf("encoding analyze request: %w", err)
	}

	var out analysis.SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/analyze", body, "start analysis", &out); err != nil {
		return "", err
	}
	if out.RequestID == "" {
		return "", fmt.Errorf("start analysis: response has no request_id")
	}
	return out.RequestID, nil
}

// Status fetches the current status of id.
func (c *Client) Status(ctx context.Context, id analysis.RequestID) (analysis.StatusReport, error) {
	var out analysis.StatusReport
	err := c.do(ctx, http.MethodGet, "/analysis/"+url.PathEscape(string(id))+"/status", nil, "get analysis status", &out)
	return out, err
}

// Results fetches the results of id. Only meaningful once status is completed.
func (c *Client) Results(ctx context.Context, id analysis.RequestID) (*analysis.Results, error) {
	var out *analysis.Results
	if err := c.do(ctx, http.MethodGet, "/analysis/"+url.PathEscape(string(id)), nil, "get analysis results", &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, analysis.ErrResultsMissing
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, op string, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, maxErrorBody)
		return &analysis.TransportError{Op: op, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", op, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		// empty body decodes like null
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}
