// ABOUTME: Session stream controller: owns one SSE subscription for one session id
// ABOUTME: Dispatches decoded frames into the conversation store until a terminal status or transport failure

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/taskstream/internal/chat"
	"github.com/2389/taskstream/internal/dedupe"
	"github.com/2389/taskstream/internal/sse"
)

var (
	// ErrStreamTransport is reported when the subscription cannot be opened,
	// breaks, or ends before the session reached a terminal status.
	ErrStreamTransport = errors.New("stream transport error")

	// ErrUnaddressableEvent marks a well-formed frame with no target message.
	// Such frames are discarded and never surfaced.
	ErrUnaddressableEvent = errors.New("no message for stream event")

	// ErrAlreadyOpened is returned by Open on a controller that is not Idle.
	ErrAlreadyOpened = errors.New("stream controller already opened")
)

// defaultDedupeSize bounds the per-controller window of seen SSE ids.
const defaultDedupeSize = 256

// State is the lifecycle position of a Controller.
type State int

const (
	StateIdle State = iota
	StateOpen
	StateClosedNormal
	StateClosedError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateClosedNormal:
		return "closed"
	case StateClosedError:
		return "closed-error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Closed reports whether s is one of the terminal states.
func (s State) Closed() bool {
	return s == StateClosedNormal || s == StateClosedError
}

// Transport opens the raw SSE body for a session.
type Transport interface {
	Subscribe(ctx context.Context, sessionID string) (io.ReadCloser, error)
}

// Patcher applies one mutation to the message with the given id and reports
// whether that message exists.
type Patcher interface {
	Patch(id string, fn func(chat.Message) chat.Message) bool
}

// Options tune a Controller. The zero value is usable.
type Options struct {
	Logger *slog.Logger

	// Seen drops frames whose SSE id was already dispatched. Keys are scoped
	// by session id, so one window may be shared by several controllers.
	Seen *dedupe.Window

	// Now stamps the arrival time of each frame.
	Now func() time.Time

	// OnClose runs once, after Done is closed, with the closing error (nil
	// for a normal close).
	OnClose func(c *Controller, err error)
}

// Controller is single use: Idle -> Open -> ClosedNormal | ClosedError.
type Controller struct {
	sessionID string
	messageID string
	transport Transport
	store     Patcher
	seen      *dedupe.Window
	now       func() time.Time
	onClose   func(*Controller, error)
	logger    *slog.Logger

	mu       sync.Mutex
	state    State
	err      error
	cancel   context.CancelFunc
	body     io.ReadCloser
	tornDown bool
	done     chan struct{}
}

// New creates an Idle controller for sessionID. Frames are applied to the
// message chat.MessageIDForSession(sessionID) through store.
func New(sessionID string, transport Transport, store Patcher, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	seen := opts.Seen
	if seen == nil {
		seen = dedupe.NewWindow(defaultDedupeSize, 0)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Controller{
		sessionID: sessionID,
		messageID: chat.MessageIDForSession(sessionID),
		transport: transport,
		store:     store,
		seen:      seen,
		now:       now,
		onClose:   opts.OnClose,
		logger:    logger.With("component", "stream", "session_id", sessionID),
		done:      make(chan struct{}),
	}
}

// SessionID returns the session this controller follows.
func (c *Controller) SessionID() string { return c.sessionID }

// MessageID returns the id of the message this controller patches.
func (c *Controller) MessageID() string { return c.messageID }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the closing error, nil while open or after a normal close.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed once the controller reaches a terminal state.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Open subscribes to the session stream and starts the dispatch goroutine.
// Cancelling ctx tears the controller down like Close.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyOpened
	}
	ctx, cancel := context.WithCancel(ctx)
	c.state = StateOpen
	c.cancel = cancel
	c.mu.Unlock()

	c.logger.Debug("opening stream")
	go c.run(ctx)
	return nil
}

// Close tears the controller down and waits until the subscription is
// released. It is idempotent and safe to call from any goroutine, including
// the OnClose callback.
func (c *Controller) Close() {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
		c.mu.Unlock()
		c.finish(StateClosedNormal, nil)
		return
	case StateOpen:
		c.tornDown = true
		if c.cancel != nil {
			c.cancel()
		}
		if c.body != nil {
			// Unblocks a Read that does not watch the context.
			_ = c.body.Close()
			c.body = nil
		}
	}
	c.mu.Unlock()

	<-c.done
}

func (c *Controller) run(ctx context.Context) {
	body, err := c.transport.Subscribe(ctx, c.sessionID)
	if err != nil {
		if c.closing(ctx) {
			c.finish(StateClosedNormal, nil)
			return
		}
		c.finish(StateClosedError, fmt.Errorf("%w: subscribing to %s: %v", ErrStreamTransport, c.sessionID, err))
		return
	}

	if !c.attach(body) {
		_ = body.Close()
		c.finish(StateClosedNormal, nil)
		return
	}

	reader := sse.NewReader(body)
	for {
		ev, err := reader.Next()
		if c.closing(ctx) {
			c.finish(StateClosedNormal, nil)
			return
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = errors.New("stream ended before a terminal status")
			}
			c.finish(StateClosedError, fmt.Errorf("%w: %v", ErrStreamTransport, err))
			return
		}

		if c.dispatch(ev) {
			c.finish(StateClosedNormal, nil)
			return
		}
	}
}

// attach records the open body so Close can release it. It reports false
// when the controller was torn down while subscribing.
func (c *Controller) attach(body io.ReadCloser) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tornDown {
		return false
	}
	c.body = body
	return true
}

func (c *Controller) closing(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tornDown || ctx.Err() != nil
}

// dispatch applies one SSE event and reports whether it ended the session.
func (c *Controller) dispatch(raw sse.Event) bool {
	// Only ids sent with the block identify it; a carried-over id does not
	if raw.HasID && raw.ID != "" && c.seen.Seen(c.sessionID+"/"+raw.ID) {
		c.logger.Debug("dropping redelivered frame", "frame_id", raw.ID)
		return false
	}

	ev, err := DecodeFrame(raw.Data, c.now())
	if err != nil {
		c.logger.Warn("discarding malformed frame", "error", err)
		return false
	}

	if err := c.apply(ev); err != nil {
		c.logger.Debug("discarding frame", "type", ev.Kind, "error", err)
		return false
	}

	if ev.Terminal() {
		c.logger.Debug("session reached terminal status", "type", ev.Kind)
		return true
	}
	return false
}

// apply folds ev into the addressed message as one store mutation.
func (c *Controller) apply(ev chat.UpdateEvent) error {
	if ev.SessionID != c.sessionID {
		return fmt.Errorf("%w: frame for session %q", ErrUnaddressableEvent, ev.SessionID)
	}
	ok := c.store.Patch(c.messageID, func(m chat.Message) chat.Message {
		return chat.Reconcile(m, ev)
	})
	if !ok {
		return fmt.Errorf("%w: message %q", ErrUnaddressableEvent, c.messageID)
	}
	return nil
}

// finish moves to a terminal state exactly once, releases the subscription
// and notifies OnClose.
func (c *Controller) finish(state State, err error) {
	c.mu.Lock()
	if c.state.Closed() {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.err = err
	if c.cancel != nil {
		c.cancel()
	}
	body := c.body
	c.body = nil
	c.mu.Unlock()

	if body != nil {
		_ = body.Close()
	}

	if err != nil {
		c.logger.Warn("stream closed with error", "error", err)
	} else {
		c.logger.Debug("stream closed", "state", state)
	}

	close(c.done)
	if c.onClose != nil {
		c.onClose(c, err)
	}
}
