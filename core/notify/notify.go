// Package notify fans committed events out to in-process subscribers such as
// the streaming HTTP endpoint.
package notify

import (
	"sync"

	"github.com/rs/zerolog"

	"aidledger/core/state"
)

// Notification is a committed BatchSubmitted event with its log position.
type Notification struct {
	Seq   uint64               `json:"seq"`
	Event state.BatchSubmitted `json:"event"`
}

// DropCounter is told whenever a slow subscriber misses a notification.
type DropCounter interface {
	EventPublished()
	EventDropped()
}

type subscriber struct {
	ch chan Notification
}

// Hub delivers notifications without ever blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool

	counter DropCounter
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger, counter DropCounter) *Hub {
	return &Hub{
		subs:    make(map[*subscriber]struct{}),
		counter: counter,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// Subscribe registers a listener. The returned cancel func must be called to
// release it; the channel is closed afterwards.
func (h *Hub) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer < 1 {
		buffer = 1
	}
	sub := &subscriber{ch: make(chan Notification, buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[sub]; ok {
				delete(h.subs, sub)
				close(sub.ch)
			}
			h.mu.Unlock()
		})
	}
}

// Publish hands n to every subscriber with room in its buffer.
func (h *Hub) Publish(n Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.counter != nil {
		h.counter.EventPublished()
	}
	for sub := range h.subs {
		select {
		case sub.ch <- n:
		default:
			if h.counter != nil {
				h.counter.EventDropped()
			}
			h.logger.Warn().Uint64("seq", n.Seq).Msg("subscriber buffer full, notification dropped")
		}
	}
}

// Subscribers reports the current listener count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.ch)
		delete(h.subs, sub)
	}
}
