// Package hub provides an in-process fan-out of graph mutation events.
//
// The hub implements eventstream.Publisher on the write side and hands each
// subscriber its own buffered channel on the read side. The API server uses
// it to feed live event streams to connected clients without a broker.
package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/spool/pkg/eventstream"
)

var defaultSubscriberBuffer = 64

// Hub fans mutation events out to subscribers. Delivery is advisory: a
// subscriber that stops draining its channel loses events rather than
// blocking the publish path.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]chan *eventstream.MutationEvent
	nextID uint64
	closed bool

	buffer int
	logger *zap.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithSubscriberBuffer sets the per-subscriber channel capacity (defaults to 64).
func WithSubscriberBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithLogger sets the logger used to report dropped events.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// New creates a Hub with no subscribers.
func New(opts ...Option) *Hub {
	h := &Hub{
		subs:   make(map[uint64]chan *eventstream.MutationEvent),
		buffer: defaultSubscriberBuffer,
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Subscription is one subscriber's handle on the hub. Receive events from C;
// Cancel when done. C is closed by Cancel or by the hub closing.
type Subscription struct {
	C <-chan *eventstream.MutationEvent

	id  uint64
	hub *Hub
}

// Cancel removes the subscription and closes its channel. Safe to call more
// than once.
func (s *Subscription) Cancel() {
	s.hub.unsubscribe(s.id)
}

// Subscribe registers a new subscriber. Subscribing to a closed hub returns
// a subscription whose channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan *eventstream.MutationEvent, h.buffer)
	if h.closed {
		close(ch)
		return &Subscription{C: ch, hub: h}
	}

	h.nextID++
	id := h.nextID
	h.subs[id] = ch

	return &Subscription{C: ch, id: id, hub: h}
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(ch)
}

// SubscriberCount reports how many subscriptions are currently registered.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// PublishMutation implements eventstream.Publisher. Each subscriber receives
// the event on its own channel; a full channel drops the event for that
// subscriber only. Publishing to a closed hub is a no-op.
func (h *Hub) PublishMutation(_ context.Context, event *eventstream.MutationEvent) error {
	if event == nil {
		return eventstream.ErrNilMutationEvent
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	for id, ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.logger.Warn("subscriber not draining, event dropped",
				zap.Uint64("subscriber_id", id),
				zap.String("event_type", event.EventType),
				zap.String("record_id", event.Record.ID),
			)
		}
	}

	return nil
}

// Close closes every subscriber channel and rejects future publishes. Safe
// to call more than once.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}

	return nil
}
