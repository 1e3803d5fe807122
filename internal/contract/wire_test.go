// ABOUTME: Contract tests for the JSON wire format shared by client and server
// ABOUTME: Fails when a field is renamed or dropped from a request, response or frame

package contract

import (
	"encoding/json"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/taskstream/internal/api"
	"github.com/2389/taskstream/internal/chat"
	"github.com/2389/taskstream/internal/stream"
)

// jsonKeys marshals v and returns its top-level keys.
func jsonKeys(t *testing.T, v any) []string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &m))

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func TestWireFieldNames(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	step := api.Step{ID: "1", Title: "t", Status: "running", Details: "d", Progress: 10, Timestamp: now, Duration: 5}

	tests := []struct {
		name string
		v    any
		want []string
	}{
		{
			name: "chat request",
			v:    api.ChatRequest{Message: "m", SessionID: "s", Stream: true},
			want: []string{"message", "session_id", "stream"},
		},
		{
			name: "chat response",
			v:    api.ChatResponse{SessionID: "s", Message: "m", Status: "thinking", Steps: []api.Step{step}, Timestamp: now},
			want: []string{"message", "session_id", "status", "steps", "timestamp"},
		},
		{
			name: "step",
			v:    step,
			want: []string{"details", "duration", "id", "progress", "status", "timestamp", "title"},
		},
		{
			name: "stream frame",
			v: api.StreamFrame{
				Type: api.FrameStatusUpdate, SessionID: "s", Content: "c",
				Steps: []api.Step{step}, Status: "executing", Error: "e", Timestamp: now,
			},
			want: []string{"content", "error", "session_id", "status", "steps", "timestamp", "type"},
		},
		{
			name: "session summary",
			v:    api.SessionSummary{ID: "s", CreatedAt: now, UpdatedAt: now, Status: "completed", CurrentStep: 1, TotalSteps: 4},
			want: []string{"created_at", "current_step", "id", "status", "total_steps", "updated_at"},
		},
		{
			name: "health",
			v:    api.HealthResponse{Status: "ok", Service: "x", Version: "v", Timestamp: 1},
			want: []string{"service", "status", "timestamp", "version"},
		},
		{
			name: "error",
			v:    api.ErrorResponse{Error: "bad"},
			want: []string{"error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, jsonKeys(t, tt.v))
		})
	}
}

func TestFrameTypesMatchEventKinds(t *testing.T) {
	for _, ft := range []string{api.FrameMessage, api.FrameStepUpdate, api.FrameStatusUpdate, api.FrameError} {
		assert.True(t, chat.EventKind(ft).Valid(), "frame type %q", ft)
	}
}

// Frames the server writes must decode on the client unchanged.
func TestServerFramesDecode(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	steps := api.StepsToWire(chat.DefaultSteps(now))

	status := api.StreamFrame{
		Type: api.FrameStatusUpdate, SessionID: "s1", Status: "completed",
		Content: "**done**", Steps: steps, Timestamp: now,
	}
	data, err := json.Marshal(status)
	require.NoError(t, err)

	ev, err := stream.DecodeFrame(data, now)
	require.NoError(t, err)
	assert.Equal(t, chat.EventStatusUpdate, ev.Kind)
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, chat.StatusCompleted, ev.Status)
	assert.Equal(t, "**done**", ev.Content)
	assert.Len(t, ev.Steps, 4)
	assert.Equal(t, now, ev.SentAt)
	assert.True(t, ev.Terminal())

	stepOnly := api.StreamFrame{Type: api.FrameStepUpdate, SessionID: "s1", Steps: steps, Timestamp: now}
	data, err = json.Marshal(stepOnly)
	require.NoError(t, err)

	ev, err = stream.DecodeFrame(data, now)
	require.NoError(t, err)
	assert.Equal(t, chat.EventStepUpdate, ev.Kind)
	assert.False(t, ev.HasStatus())
	assert.Empty(t, ev.Content)
}

func TestStepDurationCrossesTheWire(t *testing.T) {
	steps := []chat.Step{{ID: "1", Title: "Search", Status: chat.StepCompleted, Duration: 1500 * time.Millisecond}}

	wire := api.StepsToWire(steps)
	require.Len(t, wire, 1)
	assert.Equal(t, int64(1500), wire[0].Duration)

	back, err := api.StepsFromWire(wire)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, back[0].Duration)
}
