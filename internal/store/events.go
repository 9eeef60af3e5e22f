package store

import (
	"sync"

	"marketanalytics/webclient/internal/result"
)

// Event kinds.
const (
	KindTransition = "transition"
	KindNavigation = "navigation"
)

// Event is one applied slot transition or navigation change of a workspace.
// Seq is strictly increasing per store.
type Event struct {
	Workspace string        `json:"workspace"`
	Seq       uint64        `json:"seq"`
	Kind      string        `json:"kind"`
	Slot      string        `json:"slot,omitempty"`
	Subject   string        `json:"subject,omitempty"`
	Status    result.Status `json:"status"`
	Result    any           `json:"result,omitempty"`
	Screen    Screen        `json:"screen,omitempty"`
	UserID    int           `json:"user_id,omitempty"`
}

// Observer receives every event synchronously. Implementations must not
// block and must not call back into the store.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Hub fans events out to subscribers. Slow subscribers lose events rather
// than stall the store.
type Hub struct {
	buffer int

	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

// NewHub returns a hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{buffer: buffer, subs: map[chan Event]struct{}{}}
}

// Subscribe registers a subscriber. The returned func unsubscribes and
// closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// Observe publishes e to every subscriber without blocking.
func (h *Hub) Observe(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every subscriber channel. Later subscriptions get a closed
// channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
