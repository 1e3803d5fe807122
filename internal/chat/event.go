// ABOUTME: UpdateEvent: one decoded partial update delivered over a session stream
// ABOUTME: Kinds mirror the wire frame types: message, step_update, status_update, error

package chat

import "time"

// EventKind discriminates UpdateEvent variants.
type EventKind string

const (
	EventMessage      EventKind = "message"
	EventStepUpdate   EventKind = "step_update"
	EventStatusUpdate EventKind = "status_update"
	EventError        EventKind = "error"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventMessage, EventStepUpdate, EventStatusUpdate, EventError:
		return true
	}
	return false
}

// UpdateEvent is a partial update for the agent message of one session.
// Empty Content, Status and Steps mean the field was absent from the frame.
type UpdateEvent struct {
	Kind      EventKind
	SessionID string
	Content   string
	Status    MessageStatus
	Steps     []Step
	Error     string

	// SentAt is the frame's own timestamp; zero when the frame had none.
	SentAt time.Time

	// ReceivedAt is stamped once when the frame is decoded. Steps adopted
	// from this event carry it, which keeps redelivery a fixed point.
	ReceivedAt time.Time
}

// HasStatus reports whether the event carries a status.
func (e UpdateEvent) HasStatus() bool {
	return e.Status != StatusNone
}

// Terminal reports whether the event itself signals the end of the session.
func (e UpdateEvent) Terminal() bool {
	return e.effectiveStatus().Terminal()
}

// effectiveStatus folds the error variant's implied status into Status.
func (e UpdateEvent) effectiveStatus() MessageStatus {
	if e.Kind == EventError && e.Status == StatusNone {
		return StatusError
	}
	return e.Status
}

// effectiveContent returns the content the event wants to display, if any.
func (e UpdateEvent) effectiveContent() (string, bool) {
	if e.Kind == EventStepUpdate {
		return "", false
	}
	if e.Content != "" {
		return e.Content, true
	}
	if e.Kind == EventError && e.Error != "" {
		return e.Error, true
	}
	return "", false
}
