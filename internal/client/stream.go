// ABOUTME: Opens the SSE body of a session stream for a stream controller
// ABOUTME: The returned body is released by the controller on every exit path

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/2389/taskstream/internal/api"
)

// Subscribe opens GET /api/v1/chat/stream/{sessionID}. The body stays open
// until ctx is cancelled, the server ends the stream, or the caller closes
// it.
func (c *Client) Subscribe(ctx context.Context, sessionID string) (io.ReadCloser, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+api.StreamPath(url.PathEscape(sessionID)), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, handleErrorResponse(resp)
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "text/event-stream" {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected stream content type %q", resp.Header.Get("Content-Type"))
	}

	c.logger.Debug("stream opened", "session_id", sessionID)
	return resp.Body, nil
}
