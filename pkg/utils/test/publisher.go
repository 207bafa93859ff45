package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/spool/pkg/eventstream"
)

// RecordingPublisher is a test publisher that captures every mutation event
// it receives and returns configurable failures.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.MutationEvent
	closed bool

	// FailPublish causes PublishMutation to return an error.
	FailPublish bool
}

// NewRecordingPublisher creates a new recording publisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{
		events: make([]*eventstream.MutationEvent, 0),
	}
}

func (p *RecordingPublisher) PublishMutation(_ context.Context, event *eventstream.MutationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailPublish {
		return errors.New("recording publisher: publish failed")
	}

	p.events = append(p.events, event)
	return nil
}

func (p *RecordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	return nil
}

// Events returns a copy of everything published so far.
func (p *RecordingPublisher) Events() []*eventstream.MutationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*eventstream.MutationEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Closed reports whether Close has been called.
func (p *RecordingPublisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}
