// ABOUTME: Bounded, optionally time-limited window of recently seen keys
// ABOUTME: Used by stream controllers to drop frames the transport delivers twice

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key  string
	seen time.Time
}

// Window remembers at most maxSize keys in insertion order. Keys older than
// ttl are forgotten lazily on the next call; a zero ttl never expires.
// It starts no goroutines, so it needs no Close.
type Window struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// NewWindow creates a window. maxSize below 1 is treated as 1.
func NewWindow(maxSize int, ttl time.Duration) *Window {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Window{
		index:   make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Seen reports whether key is already in the window and records it if not.
// Check and record happen under one lock.
func (w *Window) Seen(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.expireLocked(now)

	if _, ok := w.index[key]; ok {
		return true
	}

	if w.order.Len() >= w.maxSize {
		w.removeLocked(w.order.Front())
	}
	w.index[key] = w.order.PushBack(&entry{key: key, seen: now})
	return false
}

// Contains reports whether key is in the window without recording it.
func (w *Window) Contains(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.expireLocked(w.now())
	_, ok := w.index[key]
	return ok
}

// Len returns the number of live keys.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.expireLocked(w.now())
	return w.order.Len()
}

// expireLocked drops expired keys from the front. Keys are never refreshed,
// so insertion order is also age order. Must be called with mu held.
func (w *Window) expireLocked(now time.Time) {
	if w.ttl <= 0 {
		return
	}
	for front := w.order.Front(); front != nil; front = w.order.Front() {
		if now.Sub(front.Value.(*entry).seen) < w.ttl {
			return
		}
		w.removeLocked(front)
	}
}

func (w *Window) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	w.order.Remove(elem)
	delete(w.index, elem.Value.(*entry).key)
}
