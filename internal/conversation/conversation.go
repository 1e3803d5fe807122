// ABOUTME: Submission orchestrator: seeds an agent turn, then follows its session stream
// ABOUTME: Enforces one outstanding turn per conversation and owns the single active controller

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/taskstream/internal/api"
	"github.com/2389/taskstream/internal/chat"
	"github.com/2389/taskstream/internal/client"
	"github.com/2389/taskstream/internal/dedupe"
	"github.com/2389/taskstream/internal/stream"
)

var (
	// ErrEmptyInput is returned for blank submissions. Nothing is appended.
	ErrEmptyInput = errors.New("message is empty")

	// ErrSubmissionInFlight is returned while a previous turn is still
	// running. Nothing is appended.
	ErrSubmissionInFlight = errors.New("a submission is already in flight")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("conversation closed")
)

// Seeder performs the synchronous seed request.
type Seeder interface {
	Seed(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error)
}

// Options tune a Conversation. The zero value is usable.
type Options struct {
	Logger *slog.Logger
	Now    func() time.Time

	// Seen is shared by every controller this conversation opens.
	Seen *dedupe.Window
}

// Conversation turns user input into agent turns. It holds at most one
// open stream controller at a time.
type Conversation struct {
	store     *Store
	seeder    Seeder
	transport stream.Transport
	seen      *dedupe.Window
	now       func() time.Time
	logger    *slog.Logger

	// streamCtx outlives individual Submit calls so a short seed deadline
	// does not end the stream.
	streamCtx    context.Context
	cancelStream context.CancelFunc

	mu        sync.Mutex
	sessionID string
	active    *stream.Controller
	inFlight  bool
	turnDone  chan struct{}
	turnErr   error
	closed    bool
}

// New creates a Conversation writing into store.
func New(store *Store, seeder Seeder, transport stream.Transport, opts Options) *Conversation {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	seen := opts.Seen
	if seen == nil {
		seen = dedupe.NewWindow(1024, 0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Conversation{
		store:        store,
		seeder:       seeder,
		transport:    transport,
		seen:         seen,
		now:          now,
		logger:       logger.With("component", "conversation"),
		streamCtx:    ctx,
		cancelStream: cancel,
	}
}

// Store returns the store this conversation writes into.
func (c *Conversation) Store() *Store { return c.store }

// SessionID returns the last session id the agent assigned, or "".
func (c *Conversation) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// InFlight reports whether a turn is still running.
func (c *Conversation) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Submit appends text as a user message, seeds the agent turn and opens the
// session stream. ctx bounds the seed request only. On seed failure an error
// message is appended and the returned error wraps client.ErrSeedRequestFailed.
func (c *Conversation) Submit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.inFlight {
		c.mu.Unlock()
		return ErrSubmissionInFlight
	}
	c.inFlight = true
	c.turnDone = make(chan struct{})
	c.turnErr = nil
	prevSession := c.sessionID
	c.mu.Unlock()

	if err := c.store.Append(chat.NewUserMessage(text, c.now())); err != nil {
		c.endTurn(nil, err)
		return fmt.Errorf("appending user message: %w", err)
	}

	resp, err := c.seeder.Seed(ctx, api.ChatRequest{
		Message:   text,
		SessionID: prevSession,
		Stream:    true,
	})
	if err == nil && resp.SessionID == "" {
		err = errors.New("seed response has no session id")
	}
	if err != nil {
		if !errors.Is(err, client.ErrSeedRequestFailed) {
			err = fmt.Errorf("%w: %w", client.ErrSeedRequestFailed, err)
		}
		c.logger.Warn("seed request failed", "error", err)
		if appendErr := c.store.Append(chat.NewErrorMessage("", c.now())); appendErr != nil {
			c.logger.Error("appending error message", "error", appendErr)
		}
		c.endTurn(nil, err)
		return err
	}

	c.logger.Debug("session seeded", "session_id", resp.SessionID, "status", resp.Status)

	c.mu.Lock()
	previous := c.active
	c.active = nil
	c.sessionID = resp.SessionID
	closed := c.closed
	c.mu.Unlock()

	if previous != nil {
		previous.Close()
	}

	c.seedAgentMessage(resp)

	if closed {
		c.endTurn(nil, nil)
		return nil
	}

	ctrl := stream.New(resp.SessionID, c.transport, c.store, stream.Options{
		Logger:  c.logger,
		Seen:    c.seen,
		Now:     c.now,
		OnClose: c.streamClosed,
	})

	c.mu.Lock()
	c.active = ctrl
	c.mu.Unlock()

	if err := ctrl.Open(c.streamCtx); err != nil {
		c.endTurn(ctrl, err)
		return fmt.Errorf("opening stream: %w", err)
	}
	return nil
}

// seedAgentMessage appends the agent message for resp, or re-seeds it in
// place when the session already has one.
func (c *Conversation) seedAgentMessage(resp *api.ChatResponse) {
	now := c.now()

	status := chat.MessageStatus(resp.Status)
	if !status.Valid() {
		c.logger.Warn("seed response has unknown status", "status", resp.Status)
		status = chat.StatusThinking
	}

	steps, err := api.StepsFromWire(resp.Steps)
	if err != nil {
		c.logger.Warn("seed response has invalid steps", "error", err)
		steps = nil
	}

	seeded := chat.NewAgentMessage(resp.SessionID, resp.Message, status, steps, now)

	if c.store.Patch(seeded.ID, func(chat.Message) chat.Message { return seeded }) {
		c.logger.Debug("re-seeded agent message", "message_id", seeded.ID)
		return
	}
	if err := c.store.Append(seeded); err != nil {
		c.logger.Error("appending agent message", "error", err)
	}
}

// streamClosed runs on the controller's goroutine once it closes.
func (c *Conversation) streamClosed(ctrl *stream.Controller, err error) {
	c.mu.Lock()
	if c.active != ctrl {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("session stream failed", "session_id", ctrl.SessionID(), "error", err)
	}
	c.endTurn(ctrl, err)
}

// endTurn clears the in-flight flag once per turn. A non-nil ctrl must
// still be the active controller or already detached from it.
func (c *Conversation) endTurn(ctrl *stream.Controller, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.inFlight {
		return
	}
	if ctrl != nil && c.active != nil && c.active != ctrl {
		return
	}
	if c.active == ctrl {
		c.active = nil
	}
	c.inFlight = false
	c.turnErr = err
	close(c.turnDone)
}

// Wait blocks until the current turn finishes and returns its error: the
// seed failure or the stream transport error. It returns nil immediately
// when no turn was ever submitted.
func (c *Conversation) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.turnDone
	c.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turnDone != done {
		// A newer turn started; this one ended cleanly.
		return nil
	}
	return c.turnErr
}

// Close tears down the active controller and ends the current turn.
// Subsequent submissions fail with ErrClosed.
func (c *Conversation) Close() {
	c.mu.Lock()
	c.closed = true
	active := c.active
	c.active = nil
	c.mu.Unlock()

	c.cancelStream()
	if active != nil {
		active.Close()
	}
	c.endTurn(nil, nil)
}
