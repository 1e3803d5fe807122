// ABOUTME: Tagged-variant decoding of stream frames into chat.UpdateEvent
// ABOUTME: Reads the type discriminator first, then decodes only the fields that variant owns

package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2389/taskstream/internal/api"
	"github.com/2389/taskstream/internal/chat"
)

// ErrMalformedFrame marks a frame that could not be decoded. The controller
// logs and discards it; the stream stays open.
var ErrMalformedFrame = errors.New("malformed stream frame")

// probe carries only the discriminator and routing key.
type probe struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// contentFrame is the shape of message and status_update frames.
type contentFrame struct {
	Content   string     `json:"content"`
	Steps     []api.Step `json:"steps"`
	Status    string     `json:"status"`
	Timestamp *time.Time `json:"timestamp"`
}

// stepFrame is the shape of step_update frames. It has no content field, so
// content a server attaches to a step update is never read.
type stepFrame struct {
	Steps     []api.Step `json:"steps"`
	Status    string     `json:"status"`
	Timestamp *time.Time `json:"timestamp"`
}

// errorFrame is the shape of error frames.
type errorFrame struct {
	Content   string     `json:"content"`
	Status    string     `json:"status"`
	Error     string     `json:"error"`
	Timestamp *time.Time `json:"timestamp"`
}

// DecodeFrame turns one frame payload into an UpdateEvent stamped with
// receivedAt. Every failure wraps ErrMalformedFrame.
func DecodeFrame(data []byte, receivedAt time.Time) (chat.UpdateEvent, error) {
	var p probe
	if err := json.Unmarshal(data, &p); err != nil {
		return chat.UpdateEvent{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	kind := chat.EventKind(p.Type)
	if !kind.Valid() {
		return chat.UpdateEvent{}, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, p.Type)
	}
	if p.SessionID == "" {
		return chat.UpdateEvent{}, fmt.Errorf("%w: missing session_id", ErrMalformedFrame)
	}

	ev := chat.UpdateEvent{
		Kind:       kind,
		SessionID:  p.SessionID,
		ReceivedAt: receivedAt,
	}

	var (
		status string
		steps  []api.Step
		sentAt *time.Time
	)

	switch kind {
	case chat.EventStepUpdate:
		var f stepFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return chat.UpdateEvent{}, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, kind, err)
		}
		status, steps, sentAt = f.Status, f.Steps, f.Timestamp

	case chat.EventError:
		var f errorFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return chat.UpdateEvent{}, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, kind, err)
		}
		ev.Content = f.Content
		ev.Error = f.Error
		status, sentAt = f.Status, f.Timestamp

	default:
		var f contentFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return chat.UpdateEvent{}, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, kind, err)
		}
		ev.Content = f.Content
		status, steps, sentAt = f.Status, f.Steps, f.Timestamp
	}

	if status != "" {
		ev.Status = chat.MessageStatus(status)
		if !ev.Status.Valid() {
			return chat.UpdateEvent{}, fmt.Errorf("%w: unknown status %q", ErrMalformedFrame, status)
		}
	}

	decoded, err := api.StepsFromWire(steps)
	if err != nil {
		return chat.UpdateEvent{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	ev.Steps = decoded

	if sentAt != nil {
		ev.SentAt = *sentAt
	}
	return ev, nil
}
