// ABOUTME: Message model: one conversation turn with optional status and steps
// ABOUTME: Agent message ids derive from the session id so stream frames can find them

package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a Message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// MessageStatus is the overall progress of an agent Message. The zero value
// means "no status" and is used by user and system messages.
type MessageStatus string

const (
	StatusNone      MessageStatus = ""
	StatusThinking  MessageStatus = "thinking"
	StatusExecuting MessageStatus = "executing"
	StatusCompleted MessageStatus = "completed"
	StatusError     MessageStatus = "error"
)

// Valid reports whether s is a known non-empty status.
func (s MessageStatus) Valid() bool {
	switch s {
	case StatusThinking, StatusExecuting, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Terminal reports whether s ends a session's stream.
func (s MessageStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// PlaceholderContent is shown on an agent message until real content arrives.
const PlaceholderContent = "Working on your request..."

// SeedFailedContent is the text of the message appended when a submission
// could not reach the agent.
const SeedFailedContent = "Sorry, something went wrong while processing your request. Please try again later."

// Message is one conversation turn.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Status    MessageStatus
	Steps     []Step
	CreatedAt time.Time
}

// MessageIDForSession maps a session id to the id of the agent message that
// receives that session's stream events.
func MessageIDForSession(sessionID string) string {
	return "agent-" + sessionID
}

// NewUserMessage builds an immutable user turn.
func NewUserMessage(content string, now time.Time) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: now,
	}
}

// NewSystemMessage builds an immutable system notice.
func NewSystemMessage(content string, now time.Time) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      RoleSystem,
		Content:   content,
		CreatedAt: now,
	}
}

// NewAgentMessage builds the agent turn for a session. Empty content falls
// back to PlaceholderContent and a nil step list falls back to DefaultSteps.
func NewAgentMessage(sessionID, content string, status MessageStatus, steps []Step, now time.Time) Message {
	if content == "" {
		content = PlaceholderContent
	}
	if len(steps) == 0 {
		steps = DefaultSteps(now)
	} else {
		steps = cloneSteps(steps)
	}
	return Message{
		ID:        MessageIDForSession(sessionID),
		Role:      RoleAgent,
		Content:   content,
		Status:    status,
		Steps:     steps,
		CreatedAt: now,
	}
}

// NewErrorMessage builds the agent turn shown when a submission failed before
// any session existed. It has no steps.
func NewErrorMessage(content string, now time.Time) Message {
	if content == "" {
		content = SeedFailedContent
	}
	return Message{
		ID:        uuid.New().String(),
		Role:      RoleAgent,
		Content:   content,
		Status:    StatusError,
		CreatedAt: now,
	}
}

// Clone returns a deep copy so callers cannot alias the step slice.
func (m Message) Clone() Message {
	m.Steps = cloneSteps(m.Steps)
	return m
}

func cloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	copy(out, steps)
	return out
}
