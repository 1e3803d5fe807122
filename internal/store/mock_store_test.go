// ABOUTME: Tests for MockStore behavior shared with the SQLite implementation
// ABOUTME: Ensures the mock isolates callers from its internal state

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/taskstream/internal/chat"
)

func TestMockStore_CRUD(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, m.CreateSession(ctx, testSession("a", now)))
	assert.ErrorIs(t, m.CreateSession(ctx, testSession("a", now)), ErrDuplicateSession)

	got, err := m.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "buy milk", got.Request)

	got.Status = chat.StatusExecuting
	got.CreatedAt = now.Add(time.Hour)
	require.NoError(t, m.UpdateSession(ctx, got))

	again, err := m.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, chat.StatusExecuting, again.Status)
	assert.True(t, again.CreatedAt.Equal(now))

	_, err = m.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.UpdateSession(ctx, testSession("missing", now)), ErrNotFound)
	assert.NoError(t, m.Close())
}

func TestMockStore_CopiesSteps(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	sess := testSession("a", time.Now().UTC())
	require.NoError(t, m.CreateSession(ctx, sess))
	sess.Steps[0].Status = chat.StepError

	got, err := m.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, chat.StepPending, got.Steps[0].Status)

	got.Steps[1].Status = chat.StepError
	again, err := m.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, chat.StepPending, again.Steps[1].Status)
}

func TestMockStore_ListSessions(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		sess := testSession(fmt.Sprintf("s%d", i), base)
		sess.UpdatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, m.CreateSession(ctx, sess))
	}

	list, err := m.ListSessions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s2", list[0].ID)
	assert.Equal(t, "s1", list[1].ID)
}
