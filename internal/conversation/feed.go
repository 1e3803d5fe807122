// ABOUTME: In-memory fan-out of store changes to renderers and other observers
// ABOUTME: Publishes every append and patch to all current subscribers without blocking

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/taskstream/internal/chat"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// ChangeKind says how the store changed.
type ChangeKind string

const (
	ChangeAppended ChangeKind = "appended"
	ChangePatched  ChangeKind = "patched"
)

// Change is one store mutation as seen by subscribers. Message is a copy.
type Change struct {
	Kind    ChangeKind
	Index   int
	Message chat.Message
}

// changeFeed provides in-memory pub/sub for store changes. Slow subscribers
// lose changes rather than stall the writer; a later Snapshot recovers them.
type changeFeed struct {
	mu          sync.RWMutex
	subscribers map[string]chan Change // subID -> ch
	closed      chan struct{}
	logger      *slog.Logger
}

func newChangeFeed(logger *slog.Logger) *changeFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &changeFeed{
		subscribers: make(map[string]chan Change),
		closed:      make(chan struct{}),
		logger:      logger.With("component", "feed"),
	}
}

// subscribe registers a subscriber. The subscription is cleaned up when ctx
// is cancelled or the feed closes.
func (f *changeFeed) subscribe(ctx context.Context) (<-chan Change, string) {
	subID := uuid.New().String()
	ch := make(chan Change, subscriberBufferSize)

	f.mu.Lock()
	select {
	case <-f.closed:
		f.mu.Unlock()
		close(ch)
		return ch, subID
	default:
	}
	f.subscribers[subID] = ch
	f.mu.Unlock()

	f.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		select {
		case <-ctx.Done():
			f.unsubscribe(subID)
		case <-f.closed:
		}
	}()

	return ch, subID
}

// publish delivers change to every subscriber with room in its buffer.
// Sends happen under the read lock so unsubscribe cannot close a channel
// mid-send.
func (f *changeFeed) publish(change Change) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for id, ch := range f.subscribers {
		select {
		case ch <- change:
		default:
			f.logger.Debug("dropped change for slow subscriber",
				"sub_id", id,
				"message_id", change.Message.ID)
		}
	}
}

// unsubscribe removes a subscription and closes its channel.
func (f *changeFeed) unsubscribe(subID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch, ok := f.subscribers[subID]
	if !ok {
		return
	}
	delete(f.subscribers, subID)
	close(ch)

	f.logger.Debug("subscriber removed", "sub_id", subID)
}

// close shuts the feed down and closes all subscriber channels.
func (f *changeFeed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	select {
	case <-f.closed:
		return
	default:
	}
	close(f.closed)

	for subID, ch := range f.subscribers {
		close(ch)
		delete(f.subscribers, subID)
	}

	f.logger.Debug("feed closed")
}
