// ABOUTME: Session registry interface and data types for the reference agent server
// ABOUTME: Defines Session and the SessionStore interface implemented by SQLite and the mock

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/taskstream/internal/chat"
)

// ErrNotFound is returned when a requested session does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateSession is returned when creating a session whose id is taken
var ErrDuplicateSession = errors.New("session already exists")

// Session is the server's record of one agent session. Status, Content,
// Steps and CurrentStep mirror the last progress snapshot the runner
// published.
type Session struct {
	ID          string
	Request     string // the user's latest message for this session
	Status      chat.MessageStatus
	Content     string // agent answer, empty until completed
	Steps       []chat.Step
	CurrentStep int // index of the step being executed
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SessionStore persists sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateSession(ctx context.Context, s *Session) error

	// ListSessions returns sessions, most recently updated first.
	ListSessions(ctx context.Context, limit int) ([]*Session, error)

	Close() error
}

// clampLimit applies the default and maximum page sizes.
func clampLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
