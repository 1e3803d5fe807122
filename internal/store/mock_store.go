// ABOUTME: Mock SessionStore implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// MockStore is an in-memory SessionStore implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		sessions: make(map[string]*Session),
	}
}

// copySession returns a deep copy so callers never share step slices
func copySession(s *Session) *Session {
	c := *s
	c.Steps = slices.Clone(s.Steps)
	return &c
}

// CreateSession stores a new session.
func (m *MockStore) CreateSession(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return ErrDuplicateSession
	}
	m.sessions[s.ID] = copySession(s)
	return nil
}

// GetSession retrieves a session by ID.
func (m *MockStore) GetSession(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(s), nil
}

// UpdateSession replaces an existing session, keeping its CreatedAt.
func (m *MockStore) UpdateSession(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.sessions[s.ID]
	if !ok {
		return ErrNotFound
	}
	updated := copySession(s)
	updated.CreatedAt = existing.CreatedAt
	m.sessions[s.ID] = updated
	return nil
}

// ListSessions returns sessions ordered by UpdatedAt, newest first.
func (m *MockStore) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, copySession(s))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})

	if limit = clampLimit(limit); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

// Verify MockStore implements SessionStore
var _ SessionStore = (*MockStore)(nil)
