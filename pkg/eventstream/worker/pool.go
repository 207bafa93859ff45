// Package worker provides an asynchronous worker pool that drains graph
// mutation events into a wrapped eventstream.Publisher.
//
// The pool decouples event delivery from the store's mutation path so that
// a slow or unreachable broker never blocks an append.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/spool/pkg/eventstream"
)

var (
	defaultNumWorkers uint = 3
	defaultQueueSize  uint = 256
)

// ErrNilPublisher is returned when a pool is created without a publisher to
// drain into.
var ErrNilPublisher = errors.New("worker: nil publisher")

// Config is the configuration options for the worker pool.
type Config struct {
	// Publisher receives every drained event.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered event channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Pool publishes mutation events asynchronously via a worker pool. It
// implements eventstream.Publisher itself, so callers can swap it in
// wherever a synchronous publisher is expected.
type Pool struct {
	config *Config
	queue  chan *eventstream.MutationEvent
	wg     sync.WaitGroup
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Publisher == nil {
		return nil, ErrNilPublisher
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan *eventstream.MutationEvent, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits an event for asynchronous publishing.
// Returns true if enqueued, false if the queue is full, resulting in the event being dropped.
func (p *Pool) Enqueue(event *eventstream.MutationEvent) bool {
	if event == nil {
		return false
	}

	select {
	case p.queue <- event:
		p.logger.Debug("mutation event queued",
			zap.String("event_type", event.EventType),
			zap.String("record_id", event.Record.ID),
		)
		return true
	default:
		p.logger.Error("mutation event not queued, queue full, event dropped",
			zap.String("event_type", event.EventType),
			zap.String("record_id", event.Record.ID),
		)
		return false
	}
}

// PublishMutation implements eventstream.Publisher by enqueuing the event.
// Delivery happens in the background. A full queue drops the event rather
// than blocking the caller.
func (p *Pool) PublishMutation(_ context.Context, event *eventstream.MutationEvent) error {
	if event == nil {
		return eventstream.ErrNilMutationEvent
	}

	p.Enqueue(event)
	return nil
}

// Close signals workers to stop, waits for queued events to drain, then
// closes the wrapped publisher. Call this during graceful shutdown after
// the store has stopped accepting mutations.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		close(p.queue)
		p.wg.Wait()
		p.closeErr = p.config.Publisher.Close()
	})
	return p.closeErr
}

// worker is the inner worker thread that continuously pulls events off the queue.
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("publish worker started", zap.Uint("worker_id", id))

	for event := range p.queue {
		p.publish(event)
	}

	p.logger.Debug("publish worker stopped", zap.Uint("worker_id", id))
}

// publish delivers one event to the wrapped publisher.
// Errors are logged but not surfaced; event delivery is advisory.
func (p *Pool) publish(event *eventstream.MutationEvent) {
	ctx := context.Background()

	if err := p.config.Publisher.PublishMutation(ctx, event); err != nil {
		p.logger.Error("async event publish failed",
			zap.String("event_type", event.EventType),
			zap.String("record_id", event.Record.ID),
			zap.Error(err),
		)
		return
	}

	p.logger.Debug("mutation event published",
		zap.String("event_type", event.EventType),
		zap.String("record_id", event.Record.ID),
	)
}
