// ABOUTME: In-memory fan-out of session progress snapshots to stream handlers
// ABOUTME: Retains the latest snapshot per session so late subscribers catch up

package agent

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/taskstream/internal/chat"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 16
)

// Snapshot is the full progress state of a session at one point in time.
// Seq increases by one for every snapshot published for the session.
type Snapshot struct {
	SessionID   string
	Seq         uint64
	Status      chat.MessageStatus
	Content     string
	Steps       []chat.Step
	CurrentStep int
	UpdatedAt   time.Time
}

// Terminal reports whether no further snapshots follow for this run.
func (s Snapshot) Terminal() bool {
	return s.Status.Terminal()
}

func (s Snapshot) clone() Snapshot {
	s.Steps = slices.Clone(s.Steps)
	return s
}

type topic struct {
	seq    uint64
	latest *Snapshot
	subs   map[string]chan Snapshot // subID -> ch
}

// Hub provides per-session pub/sub for progress snapshots.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]*topic // sessionID -> topic
	closed bool
	logger *slog.Logger
}

// NewHub creates a hub. Pass nil logger for default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		topics: make(map[string]*topic),
		logger: logger.With("component", "hub"),
	}
}

// topicLocked returns the topic for sessionID, creating it. Callers hold mu.
func (h *Hub) topicLocked(sessionID string) *topic {
	t, ok := h.topics[sessionID]
	if !ok {
		t = &topic{subs: make(map[string]chan Snapshot)}
		h.topics[sessionID] = t
	}
	return t
}

// Subscribe registers a subscriber for a session. If the session already
// has a snapshot, it is the first value on the channel. The subscription
// is cleaned up when ctx is cancelled; the channel is closed then or when
// the hub closes.
func (h *Hub) Subscribe(ctx context.Context, sessionID string) (<-chan Snapshot, string) {
	subID := uuid.New().String()
	ch := make(chan Snapshot, subscriberBufferSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, subID
	}
	t := h.topicLocked(sessionID)
	if t.latest != nil {
		ch <- t.latest.clone()
	}
	t.subs[subID] = ch
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "session_id", sessionID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		h.Unsubscribe(sessionID, subID)
	}()

	return ch, subID
}

// Publish stamps snap with the session's next sequence number, retains it
// as the latest and delivers it to every subscriber. Publish never blocks:
// a full subscriber loses its oldest pending snapshot instead, so the most
// recent state always gets through. Returns the stamped snapshot.
func (h *Hub) Publish(snap Snapshot) Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return snap
	}
	t := h.topicLocked(snap.SessionID)
	t.seq++
	snap.Seq = t.seq
	stored := snap.clone()
	t.latest = &stored

	for id, ch := range t.subs {
		out := snap.clone()
		select {
		case ch <- out:
			continue
		default:
		}
		select {
		case <-ch:
			h.logger.Debug("dropped stale snapshot for slow subscriber",
				"session_id", snap.SessionID,
				"sub_id", id)
		default:
		}
		select {
		case ch <- out:
		default:
		}
	}
	return snap
}

// Latest returns the most recent snapshot for a session.
func (h *Hub) Latest(sessionID string) (Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	t, ok := h.topics[sessionID]
	if !ok || t.latest == nil {
		return Snapshot{}, false
	}
	return t.latest.clone(), true
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(sessionID, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[sessionID]
	if !ok {
		return
	}
	ch, exists := t.subs[subID]
	if !exists {
		return
	}
	delete(t.subs, subID)
	close(ch)

	h.logger.Debug("subscriber removed", "session_id", sessionID, "sub_id", subID)
}

// Close shuts down the hub and closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for _, t := range h.topics {
		for subID, ch := range t.subs {
			close(ch)
			delete(t.subs, subID)
		}
	}

	h.logger.Debug("hub closed")
}
