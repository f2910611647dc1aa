// Package hub fans out messages from the single producer to any number of
// live-view subscribers. Delivery is lossy: each subscriber has a bounded
// buffer and overflow drops that subscriber's oldest queued message, so a
// slow consumer can miss intermediate updates but always converges on the
// latest state. Publish never blocks on subscriber delivery.
package hub

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultBufferSize is the per-subscriber queue depth when the
// configuration does not set one.
const DefaultBufferSize = 16

// Message is one item of the live feed.
type Message struct {
	// Event names the message kind ("snapshot", "reading", "event").
	Event string
	// Data is the JSON payload.
	Data []byte
}

// Subscriber is one consumer's handle. Receive from C until it is closed;
// call Hub.Unsubscribe when done.
type Subscriber struct {
	ID string
	C  <-chan Message

	ch      chan Message
	sent    uint64
	dropped uint64
}

// Stats holds delivery counters for one subscriber.
type Stats struct {
	Sent    uint64
	Dropped uint64
}

// Hub distributes published messages to all current subscribers.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]*Subscriber
	bufSize int
	dropped uint64 // total across all subscribers, past and present
	closed  bool
}

// New creates a Hub with the given per-subscriber buffer size.
// Non-positive sizes fall back to DefaultBufferSize.
func New(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &Hub{
		subs:    make(map[string]*Subscriber),
		bufSize: bufSize,
	}
}

// Subscribe registers a new consumer. The subscriber receives every message
// published after this call, minus any dropped by its own overflow.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID: uuid.NewString(),
		ch: make(chan Message, h.bufSize),
	}
	sub.C = sub.ch

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub.ID] = sub
	return sub
}

// Unsubscribe removes the subscriber and closes its channel. Safe to call
// after the hub is closed; unknown subscribers are ignored.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub.ID]; !ok {
		return
	}
	h.dropped += sub.dropped
	delete(h.subs, sub.ID)
	close(sub.ch)
}

// Publish delivers msg to every subscriber without blocking. A full buffer
// drops that subscriber's oldest queued message to admit the new one.
func (h *Hub) Publish(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	for _, sub := range h.subs {
		select {
		case sub.ch <- msg:
			sub.sent++
			continue
		default:
		}
		// Buffer full: evict the oldest, then retry once. The consumer may
		// race us for the eviction; either way one slot is free or the
		// message is counted as dropped.
		select {
		case <-sub.ch:
			sub.dropped++
		default:
		}
		select {
		case sub.ch <- msg:
			sub.sent++
		default:
			sub.dropped++
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// DroppedTotal returns the number of messages dropped across all
// subscribers since the hub was created.
func (h *Hub) DroppedTotal() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := h.dropped
	for _, sub := range h.subs {
		total += sub.dropped
	}
	return total
}

// SubscriberStats returns delivery counters for one subscriber id.
func (h *Hub) SubscriberStats(id string) (Stats, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[id]
	if !ok {
		return Stats{}, false
	}
	return Stats{Sent: sub.sent, Dropped: sub.dropped}, true
}

// Close shuts down the hub and closes every subscriber channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		h.dropped += sub.dropped
		close(sub.ch)
		delete(h.subs, id)
	}
}
