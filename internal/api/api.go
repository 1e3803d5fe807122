// ABOUTME: JSON wire contract for the agent platform HTTP API
// ABOUTME: Shared by the client (seed + stream consumer) and the reference server

package api

import (
	"fmt"
	"time"

	"github.com/2389/taskstream/internal/chat"
)

// Endpoint paths.
const (
	ChatPath         = "/api/v1/chat"
	StreamPathPrefix = "/api/v1/chat/stream/"
	SessionsPath     = "/api/v1/sessions"
	HealthPath       = "/health"
)

// StreamPath returns the SSE endpoint for a session.
func StreamPath(sessionID string) string {
	return StreamPathPrefix + sessionID
}

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	Stream    bool   `json:"stream"`
}

// ChatResponse is the seed response that bootstraps the agent message.
type ChatResponse struct {
	SessionID string    `json:"session_id"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	Steps     []Step    `json:"steps,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Step is the wire form of chat.Step.
type Step struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Details   string    `json:"details,omitempty"`
	Progress  int       `json:"progress,omitempty"` // 0-100
	Timestamp time.Time `json:"timestamp"`
	Duration  int64     `json:"duration,omitempty"` // milliseconds
}

// Frame types carried in the "type" field of a stream frame.
const (
	FrameMessage      = string(chat.EventMessage)
	FrameStepUpdate   = string(chat.EventStepUpdate)
	FrameStatusUpdate = string(chat.EventStatusUpdate)
	FrameError        = string(chat.EventError)
)

// StreamFrame is one payload delivered on the session stream. The server
// builds these; the client decodes them variant by variant.
type StreamFrame struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Content   string    `json:"content,omitempty"`
	Steps     []Step    `json:"steps,omitempty"`
	Status    string    `json:"status,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionSummary is one entry of GET /api/v1/sessions.
type SessionSummary struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Status      string    `json:"status"`
	CurrentStep int       `json:"current_step"`
	TotalSteps  int       `json:"total_steps"`
}

// SessionsResponse is the body of GET /api/v1/sessions.
type SessionsResponse struct {
	Sessions []SessionSummary `json:"sessions"`
	Total    int              `json:"total"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StepsToWire converts model steps to their wire form.
func StepsToWire(steps []chat.Step) []Step {
	if len(steps) == 0 {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = Step{
			ID:        s.ID,
			Title:     s.Title,
			Status:    string(s.Status),
			Details:   s.Details,
			Progress:  s.Progress,
			Timestamp: s.Timestamp,
			Duration:  s.Duration.Milliseconds(),
		}
	}
	return out
}

// StepsFromWire converts wire steps to model steps, rejecting unknown
// statuses and missing ids.
func StepsFromWire(steps []Step) ([]chat.Step, error) {
	if len(steps) == 0 {
		return nil, nil
	}
	out := make([]chat.Step, len(steps))
	for i, s := range steps {
		if s.ID == "" {
			return nil, fmt.Errorf("step %d: id is required", i)
		}
		status := chat.StepStatus(s.Status)
		if !status.Valid() {
			return nil, fmt.Errorf("step %q: unknown status %q", s.ID, s.Status)
		}
		out[i] = chat.Step{
			ID:        s.ID,
			Title:     s.Title,
			Status:    status,
			Details:   s.Details,
			Progress:  s.Progress,
			Timestamp: s.Timestamp,
			Duration:  time.Duration(s.Duration) * time.Millisecond,
		}
	}
	return out, nil
}
