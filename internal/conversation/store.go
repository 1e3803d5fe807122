// ABOUTME: Conversation store: the ordered list of messages shown to the user
// ABOUTME: Append-only at the outer level; agent messages are patched in place by id

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/taskstream/internal/chat"
)

// ErrDuplicateMessage is returned by Append when the id is already stored.
var ErrDuplicateMessage = errors.New("message already in conversation")

// Store owns every Message of one conversation. Entries are never removed
// or reordered. Each Patch runs as one critical section, so concurrent
// writers observe whole mutations only.
type Store struct {
	mu       sync.RWMutex
	messages []chat.Message
	index    map[string]int // message id -> position
	feed     *changeFeed
	logger   *slog.Logger
}

// NewStore creates an empty store. Pass nil logger for default.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		index:  make(map[string]int),
		feed:   newChangeFeed(logger),
		logger: logger.With("component", "conversation_store"),
	}
}

// Append adds m at the end of the conversation.
func (s *Store) Append(m chat.Message) error {
	if m.ID == "" {
		return errors.New("message id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[m.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateMessage, m.ID)
	}

	m = m.Clone()
	s.index[m.ID] = len(s.messages)
	s.messages = append(s.messages, m)

	s.feed.publish(Change{Kind: ChangeAppended, Index: len(s.messages) - 1, Message: m.Clone()})
	return nil
}

// Patch replaces the agent message with the given id by fn's result and
// reports whether such a message exists. fn receives a private copy. The
// id, role and creation time cannot be changed. User and system messages
// are immutable, so Patch reports false for them.
func (s *Store) Patch(id string, fn func(chat.Message) chat.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return false
	}

	current := s.messages[i]
	if current.Role != chat.RoleAgent {
		s.logger.Debug("refusing to patch immutable message", "message_id", id, "role", current.Role)
		return false
	}

	next := fn(current.Clone())
	next.ID = current.ID
	next.Role = current.Role
	next.CreatedAt = current.CreatedAt
	s.messages[i] = next

	s.feed.publish(Change{Kind: ChangePatched, Index: i, Message: next.Clone()})
	return true
}

// Get returns a copy of the message with the given id.
func (s *Store) Get(id string) (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return chat.Message{}, false
	}
	return s.messages[i].Clone(), true
}

// Snapshot returns a copy of every message in order.
func (s *Store) Snapshot() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Subscribe returns a channel of changes made after the call. The channel
// closes when ctx is cancelled or the store is closed.
func (s *Store) Subscribe(ctx context.Context) <-chan Change {
	ch, _ := s.feed.subscribe(ctx)
	return ch
}

// Close ends every subscription. The messages stay readable.
func (s *Store) Close() {
	s.feed.close()
}
