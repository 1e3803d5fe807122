// ABOUTME: Tests for the session stream controller lifecycle
// ABOUTME: Uses an in-memory pipe transport to drive frames, closes, and transport failures

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2389/taskstream/internal/api"
	"github.com/2389/taskstream/internal/chat"
	"github.com/2389/taskstream/internal/dedupe"
	"github.com/2389/taskstream/internal/sse"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memStore is a minimal Patcher keyed by message id.
type memStore struct {
	mu      sync.Mutex
	msgs    map[string]chat.Message
	patches int
}

func newMemStore(msgs ...chat.Message) *memStore {
	s := &memStore{msgs: make(map[string]chat.Message)}
	for _, m := range msgs {
		s.msgs[m.ID] = m
	}
	return s
}

func (s *memStore) Patch(id string, fn func(chat.Message) chat.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return false
	}
	s.msgs[id] = fn(m)
	s.patches++
	return true
}

func (s *memStore) get(id string) chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msgs[id]
}

func (s *memStore) patchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patches
}

// trackedBody records whether the controller released it.
type trackedBody struct {
	*io.PipeReader
	closed atomic.Bool
}

func (b *trackedBody) Close() error {
	b.closed.Store(true)
	return b.PipeReader.Close()
}

// pipeTransport hands out one pipe-backed body per Subscribe.
type pipeTransport struct {
	body *trackedBody
	w    *io.PipeWriter
	err  error

	subscribed atomic.Int32
}

func newPipeTransport() *pipeTransport {
	r, w := io.Pipe()
	return &pipeTransport{body: &trackedBody{PipeReader: r}, w: w}
}

func (p *pipeTransport) Subscribe(ctx context.Context, sessionID string) (io.ReadCloser, error) {
	p.subscribed.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return p.body, nil
}

func (p *pipeTransport) send(t *testing.T, id string, frame api.StreamFrame) error {
	t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	return sse.WriteEvent(p.w, sse.Event{ID: id, Data: data})
}

func (p *pipeTransport) sendRaw(data string) error {
	return sse.WriteEvent(p.w, sse.Event{Data: []byte(data)})
}

var seededAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func seededStore() *memStore {
	return newMemStore(chat.NewAgentMessage("s1", "on it", chat.StatusThinking, nil, seededAt))
}

func openController(t *testing.T, store *memStore, transport Transport, opts Options) *Controller {
	t.Helper()
	c := New("s1", transport, store, opts)
	require.NoError(t, c.Open(context.Background()))
	t.Cleanup(c.Close)
	return c
}

func waitDone(t *testing.T, c *Controller) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not close")
	}
}

func TestController_StepUpdateKeepsContent(t *testing.T) {
	store := seededStore()
	transport := newPipeTransport()
	c := openController(t, store, transport, Options{})

	require.NoError(t, transport.send(t, "1", api.StreamFrame{
		Type:      api.FrameStepUpdate,
		SessionID: "s1",
		Steps:     []api.Step{{ID: "1", Title: "interpret", Status: "completed"}},
	}))

	require.Eventually(t, func() bool { return store.patchCount() == 1 }, time.Second, 5*time.Millisecond)

	msg := store.get(c.MessageID())
	assert.Equal(t, "on it", msg.Content)
	require.Len(t, msg.Steps, 1)
	assert.Equal(t, "Interpret request", msg.Steps[0].Title, "the seeded title is kept")
	assert.Equal(t, chat.StepCompleted, msg.Steps[0].Status)
	assert.Equal(t, StateOpen, c.State())
}

func TestController_TerminalStatusClosesNormally(t *testing.T) {
	store := seededStore()
	transport := newPipeTransport()

	errCh := make(chan error, 2)
	c := openController(t, store, transport, Options{
		OnClose: func(_ *Controller, err error) { errCh <- err },
	})

	require.NoError(t, transport.send(t, "1", api.StreamFrame{
		Type:      api.FrameStatusUpdate,
		SessionID: "s1",
		Status:    "completed",
	}))
	waitDone(t, c)

	assert.Equal(t, StateClosedNormal, c.State())
	assert.NoError(t, c.Err())
	assert.Equal(t, chat.StatusCompleted, store.get(c.MessageID()).Status)
	assert.True(t, transport.body.closed.Load(), "subscription should be released")

	// Later frames cannot reach the closed controller
	err := transport.send(t, "2", api.StreamFrame{
		Type:      api.FrameMessage,
		SessionID: "s1",
		Content:   "late",
		Status:    "executing",
	})
	assert.Error(t, err)
	assert.Equal(t, 1, store.patchCount())
	assert.Equal(t, "on it", store.get(c.MessageID()).Content)

	assert.NoError(t, <-errCh)
	c.Close()
	assert.Empty(t, errCh, "OnClose runs once")
}

func TestController_ErrorFrameClosesNormally(t *testing.T) {
	store := seededStore()
	transport := newPipeTransport()
	c := openController(t, store, transport, Options{})

	require.NoError(t, transport.send(t, "", api.StreamFrame{
		Type:      api.FrameError,
		SessionID: "s1",
		Error:     "agent crashed",
	}))
	waitDone(t, c)

	msg := store.get(c.MessageID())
	assert.Equal(t, StateClosedNormal, c.State())
	assert.Equal(t, chat.StatusError, msg.Status)
	assert.Equal(t, "agent crashed", msg.Content)
}

func TestController_MalformedFrameKeepsStreamOpen(t *testing.T) {
	store := seededStore()
	transport := newPipeTransport()
	c := openController(t, store, transport, Options{})

	require.NoError(t, transport.sendRaw(`{not json`))
	require.NoError(t, transport.sendRaw(`{"type":"status_update","session_id":"s1","status":"paused"}`))
	require.NoError(t, transport.send(t, "", api.StreamFrame{
		Type:      api.FrameMessage,
		SessionID: "s1",
		Content:   "still here",
	}))

	require.Eventually(t, func() bool { return store.get(c.MessageID()).Content == "still here" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateOpen, c.State())
	assert.Equal(t, 1, store.patchCount())
}

func TestController_UnaddressableFramesDiscarded(t *testing.T) {
	t.Run("other session", func(t *testing.T) {
		store := seededStore()
		transport := newPipeTransport()
		c := openController(t, store, transport, Options{})

		require.NoError(t, transport.send(t, "", api.StreamFrame{
			Type:      api.FrameStatusUpdate,
			SessionID: "s2",
			Status:    "completed",
		}))
		require.NoError(t, transport.send(t, "", api.StreamFrame{
			Type:      api.FrameMessage,
			SessionID: "s1",
			Content:   "mine",
		}))

		require.Eventually(t, func() bool { return store.patchCount() == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, StateOpen, c.State(), "a foreign terminal frame must not close the stream")
		assert.Equal(t, chat.StatusThinking, store.get(c.MessageID()).Status)
	})

	t.Run("missing message", func(t *testing.T) {
		store := newMemStore()
		transport := newPipeTransport()
		c := openController(t, store, transport, Options{})

		require.NoError(t, transport.send(t, "", api.StreamFrame{
			Type:      api.FrameStatusUpdate,
			SessionID: "s1",
			Status:    "completed",
		}))
		require.NoError(t, transport.w.Close())
		waitDone(t, c)

		assert.Equal(t, 0, store.patchCount())
		assert.Equal(t, StateClosedError, c.State(), "the terminal frame was discarded so EOF is premature")
	})
}

func TestController_RedeliveredFrameDropped(t *testing.T) {
	store := seededStore()
	transport := newPipeTransport()
	seen := dedupe.NewWindow(16, 0)
	c := openController(t, store, transport, Options{Seen: seen})

	frame := api.StreamFrame{Type: api.FrameMessage, SessionID: "s1", Content: "once"}
	require.NoError(t, transport.send(t, "7", frame))
	require.NoError(t, transport.send(t, "7", frame))
	require.NoError(t, transport.send(t, "8", api.StreamFrame{
		Type:      api.FrameStatusUpdate,
		SessionID: "s1",
		Status:    "completed",
	}))
	waitDone(t, c)

	assert.Equal(t, 2, store.patchCount())
	assert.True(t, seen.Contains("s1/7"))
}

func TestController_FramesWithoutOwnIDAreNotDeduped(t *testing.T) {
	store := seededStore()
	transport := newPipeTransport()
	c := openController(t, store, transport, Options{})

	require.NoError(t, transport.send(t, "1", api.StreamFrame{
		Type:      api.FrameMessage,
		SessionID: "s1",
		Content:   "first",
	}))
	require.NoError(t, transport.send(t, "", api.StreamFrame{
		Type:      api.FrameMessage,
		SessionID: "s1",
		Content:   "second",
	}))
	require.NoError(t, transport.send(t, "", api.StreamFrame{
		Type:      api.FrameStatusUpdate,
		SessionID: "s1",
		Status:    "completed",
	}))
	waitDone(t, c)

	msg := store.get(c.MessageID())
	assert.Equal(t, StateClosedNormal, c.State())
	assert.Equal(t, "second", msg.Content)
	assert.Equal(t, chat.StatusCompleted, msg.Status)
	assert.Equal(t, 3, store.patchCount())
}

func TestController_EOFBeforeTerminalIsTransportError(t *testing.T) {
	store := seededStore()
	transport := newPipeTransport()

	errCh := make(chan error, 1)
	c := openController(t, store, transport, Options{
		OnClose: func(_ *Controller, err error) { errCh <- err },
	})

	require.NoError(t, transport.send(t, "", api.StreamFrame{
		Type:      api.FrameStatusUpdate,
		SessionID: "s1",
		Status:    "executing",
	}))
	require.NoError(t, transport.w.Close())
	waitDone(t, c)

	assert.Equal(t, StateClosedError, c.State())
	assert.ErrorIs(t, c.Err(), ErrStreamTransport)
	assert.ErrorIs(t, <-errCh, ErrStreamTransport)

	// The message keeps its last known state
	assert.Equal(t, chat.StatusExecuting, store.get(c.MessageID()).Status)
}

func TestController_BrokenStream(t *testing.T) {
	store := seededStore()
	transport := newPipeTransport()
	c := openController(t, store, transport, Options{})

	require.NoError(t, transport.w.CloseWithError(errors.New("connection reset")))
	waitDone(t, c)

	assert.Equal(t, StateClosedError, c.State())
	assert.ErrorIs(t, c.Err(), ErrStreamTransport)
	assert.Contains(t, c.Err().Error(), "connection reset")
}

func TestController_SubscribeFailure(t *testing.T) {
	store := seededStore()
	transport := newPipeTransport()
	transport.err = errors.New("connection refused")
	c := openController(t, store, transport, Options{})

	waitDone(t, c)

	assert.Equal(t, StateClosedError, c.State())
	assert.ErrorIs(t, c.Err(), ErrStreamTransport)
	assert.Equal(t, 0, store.patchCount())
}

func TestController_CloseReleasesSubscription(t *testing.T) {
	store := seededStore()
	transport := newPipeTransport()

	errCh := make(chan error, 1)
	c := openController(t, store, transport, Options{
		OnClose: func(c *Controller, err error) {
			c.Close() // must not deadlock
			errCh <- err
		},
	})

	require.NoError(t, transport.send(t, "", api.StreamFrame{Type: api.FrameMessage, SessionID: "s1", Content: "first"}))
	require.Eventually(t, func() bool { return store.patchCount() == 1 }, time.Second, 5*time.Millisecond)

	c.Close()
	c.Close()

	assert.Equal(t, StateClosedNormal, c.State())
	assert.NoError(t, c.Err())
	assert.True(t, transport.body.closed.Load())

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose was not called")
	}
}

func TestController_ContextCancelTearsDown(t *testing.T) {
	store := seededStore()
	transport := newPipeTransport()
	c := New("s1", transport, store, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Open(ctx))
	require.Eventually(t, func() bool { return transport.subscribed.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	// A pipe does not watch the context; Close unblocks the read.
	c.Close()

	assert.Equal(t, StateClosedNormal, c.State())
	assert.NoError(t, c.Err())
}

func TestController_SingleUse(t *testing.T) {
	c := New("s1", newPipeTransport(), seededStore(), Options{})

	c.Close()
	assert.Equal(t, StateClosedNormal, c.State())
	assert.ErrorIs(t, c.Open(context.Background()), ErrAlreadyOpened)

	select {
	case <-c.Done():
	default:
		t.Fatal("closing an idle controller should close Done")
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "closed", StateClosedNormal.String())
	assert.Equal(t, "closed-error", StateClosedError.String())
	assert.True(t, StateClosedError.Closed())
	assert.False(t, StateOpen.Closed())
}
