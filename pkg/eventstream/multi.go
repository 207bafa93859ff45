package eventstream

import (
	"context"

	"go.uber.org/multierr"
)

// Multi combines several publishers into one. Every event is delivered to
// every publisher; errors are collected rather than short-circuiting, so one
// failing backend does not starve the others.
//
// Nil publishers are skipped. A single non-nil publisher is returned as-is.
func Multi(publishers ...Publisher) Publisher {
	pubs := make([]Publisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			pubs = append(pubs, p)
		}
	}

	if len(pubs) == 1 {
		return pubs[0]
	}

	return &multiPublisher{pubs: pubs}
}

type multiPublisher struct {
	pubs []Publisher
}

// PublishMutation fans the event out to every wrapped publisher.
func (m *multiPublisher) PublishMutation(ctx context.Context, event *MutationEvent) error {
	if event == nil {
		return ErrNilMutationEvent
	}

	var errs error
	for _, p := range m.pubs {
		errs = multierr.Append(errs, p.PublishMutation(ctx, event))
	}
	return errs
}

// Close closes every wrapped publisher, collecting errors.
func (m *multiPublisher) Close() error {
	var errs error
	for _, p := range m.pubs {
		errs = multierr.Append(errs, p.Close())
	}
	return errs
}
