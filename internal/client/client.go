// ABOUTME: HTTP client for the agent platform API
// ABOUTME: Seed requests use a bounded client; streams use one without a timeout

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/taskstream/internal/api"
)

// ErrSeedRequestFailed marks a seed request that was rejected or never
// reached the server.
var ErrSeedRequestFailed = errors.New("seed request failed")

// DefaultSeedTimeout bounds a seed request when Options leaves it zero.
const DefaultSeedTimeout = 30 * time.Second

// maxErrorBody caps how much of an error reply is read.
const maxErrorBody = 64 * 1024

// HTTPError is a non-2xx reply.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// Options tune a Client. The zero value is usable.
type Options struct {
	// SeedTimeout bounds seed, sessions and health requests.
	SeedTimeout time.Duration

	// HTTPClient replaces the transport of both internal clients.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client // bounded by SeedTimeout
	stream  *http.Client // no timeout; streams end by cancel or EOF
	logger  *slog.Logger
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts Options) *Client {
	timeout := opts.SeedTimeout
	if timeout <= 0 {
		timeout = DefaultSeedTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var transport http.RoundTripper
	if opts.HTTPClient != nil {
		transport = opts.HTTPClient.Transport
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout, Transport: transport},
		stream:  &http.Client{Transport: transport},
		logger:  logger.With("component", "client"),
	}
}

// BaseURL returns the server address without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Seed posts the first message of a turn and returns the seed response.
// Every failure wraps ErrSeedRequestFailed.
func (c *Client) Seed(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error) {
	var resp api.ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, api.ChatPath, req, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSeedRequestFailed, err)
	}
	c.logger.Debug("seed response", "session_id", resp.SessionID, "status", resp.Status)
	return &resp, nil
}

// Sessions lists the sessions the server knows about.
func (c *Client) Sessions(ctx context.Context) (*api.SessionsResponse, error) {
	var resp api.SessionsResponse
	if err := c.doJSON(ctx, http.MethodGet, api.SessionsPath, nil, &resp); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return &resp, nil
}

// Health reads the server health endpoint.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, api.HealthPath, nil, &resp); err != nil {
		return nil, fmt.Errorf("checking health: %w", err)
	}
	return &resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return handleErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// handleErrorResponse extracts the error message from a non-2xx reply.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var errResp api.ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return &HTTPError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
