// ABOUTME: Tests for tagged-variant frame decoding
// ABOUTME: Covers each frame type, ignored content on step updates, and malformed payloads

package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/taskstream/internal/chat"
)

var received = time.Date(2025, 1, 1, 0, 0, 5, 0, time.UTC)

func TestDecodeFrame_StatusUpdate(t *testing.T) {
	data := []byte(`{"type":"status_update","session_id":"s1","status":"completed","content":"done","timestamp":"2025-01-01T00:00:04Z"}`)

	ev, err := DecodeFrame(data, received)
	require.NoError(t, err)

	assert.Equal(t, chat.EventStatusUpdate, ev.Kind)
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, chat.StatusCompleted, ev.Status)
	assert.Equal(t, "done", ev.Content)
	assert.Equal(t, received, ev.ReceivedAt)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 4, 0, time.UTC), ev.SentAt.UTC())
	assert.True(t, ev.Terminal())
}

func TestDecodeFrame_StepUpdateIgnoresContent(t *testing.T) {
	data := []byte(`{"type":"step_update","session_id":"s1","content":"should not be read",
		"steps":[{"id":"1","title":"interpret","status":"completed","progress":100,"timestamp":"2025-01-01T00:00:01Z"}]}`)

	ev, err := DecodeFrame(data, received)
	require.NoError(t, err)

	assert.Equal(t, chat.EventStepUpdate, ev.Kind)
	assert.Empty(t, ev.Content)
	require.Len(t, ev.Steps, 1)
	assert.Equal(t, "1", ev.Steps[0].ID)
	assert.Equal(t, "interpret", ev.Steps[0].Title)
	assert.Equal(t, chat.StepCompleted, ev.Steps[0].Status)
	assert.Equal(t, 100, ev.Steps[0].Progress)
	assert.False(t, ev.HasStatus())
}

func TestDecodeFrame_Message(t *testing.T) {
	ev, err := DecodeFrame([]byte(`{"type":"message","session_id":"s1","content":"partial answer"}`), received)
	require.NoError(t, err)

	assert.Equal(t, chat.EventMessage, ev.Kind)
	assert.Equal(t, "partial answer", ev.Content)
	assert.True(t, ev.SentAt.IsZero(), "missing timestamp leaves SentAt zero")
	assert.False(t, ev.Terminal())
}

func TestDecodeFrame_Error(t *testing.T) {
	ev, err := DecodeFrame([]byte(`{"type":"error","session_id":"s1","error":"agent crashed"}`), received)
	require.NoError(t, err)

	assert.Equal(t, chat.EventError, ev.Kind)
	assert.Equal(t, "agent crashed", ev.Error)
	assert.True(t, ev.Terminal(), "error frames end the session even without a status")
}

func TestDecodeFrame_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"type":`},
		{"unknown type", `{"type":"heartbeat","session_id":"s1"}`},
		{"missing type", `{"session_id":"s1"}`},
		{"missing session", `{"type":"status_update","status":"completed"}`},
		{"unknown status", `{"type":"status_update","session_id":"s1","status":"paused"}`},
		{"unknown step status", `{"type":"step_update","session_id":"s1","steps":[{"id":"1","status":"skipped"}]}`},
		{"step without id", `{"type":"step_update","session_id":"s1","steps":[{"title":"x","status":"pending"}]}`},
		{"wrong field type", `{"type":"message","session_id":"s1","content":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(tt.data), received)
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}
