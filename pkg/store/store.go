// Package store composes the in-memory merkle DAG with a write-ahead log
// into a durable, crash-consistent graph store.
//
// A mutation is checked against the live graph, then written to the log,
// and only applied in memory once the append succeeds. Restore replays the
// log through the same validating insertion, so any state the store ever
// exposes is state the log can reproduce.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/papercomputeco/spool/pkg/eventstream"
	"github.com/papercomputeco/spool/pkg/eventstream/nop"
	"github.com/papercomputeco/spool/pkg/merkle"
	"github.com/papercomputeco/spool/pkg/wal"
)

// Store is a merkle DAG whose mutations survive restarts. A single writer
// mutates at a time; reads run concurrently and observe either the state
// before a mutation or after it, never a torn intermediate.
type Store struct {
	mu  sync.RWMutex
	dag *merkle.Dag
	log wal.Log

	logger    *zap.Logger
	publisher eventstream.Publisher
	source    string

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithPublisher sets the publisher that receives a mutation event after
// each committed append. Defaults to the no-op publisher.
func WithPublisher(p eventstream.Publisher) Option {
	return func(s *Store) {
		s.publisher = p
	}
}

// WithSource stamps published events with an originating source, typically
// a hostname or service name.
func WithSource(source string) Option {
	return func(s *Store) {
		s.source = source
	}
}

// New creates a store with an empty graph bound to the given log. The log
// is not read; use Restore to rebuild state from an existing log.
func New(log wal.Log, opts ...Option) *Store {
	s := &Store{
		dag:       merkle.NewDag(),
		log:       log,
		logger:    zap.NewNop(),
		publisher: nop.NewPublisher(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Restore rebuilds a store by replaying the log from the beginning.
//
// Records that failed to parse were already skipped by the log layer. An
// entry that parses but violates a graph invariant (duplicate id, unknown
// parent or endpoint, hash mismatch, undecodable payload, unknown kind) is
// different: it means the log lies about history, so Restore aborts with a
// ReplayError and returns no store.
func Restore(ctx context.Context, log wal.Log, opts ...Option) (*Store, error) {
	s := New(log, opts...)

	err := log.Replay(ctx, func(entry wal.Entry) error {
		if applyErr := s.apply(entry); applyErr != nil {
			return ReplayError{Kind: entry.Kind, Err: applyErr}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("store restored",
		zap.Int("nodes", s.dag.NodeCount()),
		zap.Int("edges", s.dag.EdgeCount()),
	)

	return s, nil
}

// AddNode validates the node against the live graph, appends it to the log,
// then applies the logged form in memory. If the append fails the graph is
// unchanged.
func (s *Store) AddNode(ctx context.Context, n *merkle.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.dag.ValidateNode(n); err != nil {
		return err
	}

	entry, err := wal.NewNodeEntry(n)
	if err != nil {
		return err
	}

	if err := s.log.AppendNode(ctx, n); err != nil {
		return fmt.Errorf("store: appending node %s: %w", n.ID, err)
	}

	if err := s.apply(entry); err != nil {
		// The entry is durable but did not apply; a restart replays into
		// the same error.
		s.logger.Error("node appended but not applied",
			zap.String("node_id", n.ID.String()),
			zap.Error(err),
		)
		return err
	}

	s.publish(ctx, eventstream.NewNodeAppended(n))

	return nil
}

// AddEdge validates the edge against the live graph, appends it to the log,
// then applies the logged form in memory. If the append fails the graph is
// unchanged.
func (s *Store) AddEdge(ctx context.Context, e *merkle.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.dag.ValidateEdge(e); err != nil {
		return err
	}

	entry, err := wal.NewEdgeEntry(e)
	if err != nil {
		return err
	}

	if err := s.log.AppendEdge(ctx, e); err != nil {
		return fmt.Errorf("store: appending edge %s: %w", e.ID, err)
	}

	if err := s.apply(entry); err != nil {
		s.logger.Error("edge appended but not applied",
			zap.String("edge_id", e.ID.String()),
			zap.Error(err),
		)
		return err
	}

	s.publish(ctx, eventstream.NewEdgeAppended(e))

	return nil
}

// Flush forces every mutation appended so far to durable storage.
func (s *Store) Flush(ctx context.Context) error {
	return s.log.Flush(ctx)
}

// Close closes the log and the publisher, aggregating failures. Safe to
// call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		err := s.log.Close()
		err = multierr.Append(err, s.publisher.Close())
		s.closeErr = err
	})
	return s.closeErr
}

// NodeCount returns the number of nodes in the graph.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dag.NodeCount()
}

// EdgeCount returns the number of edges in the graph.
func (s *Store) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dag.EdgeCount()
}

// GetNode returns the node with the given id.
func (s *Store) GetNode(id uuid.UUID) (*merkle.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dag.GetNode(id)
}

// GetEdge returns the edge with the given id.
func (s *Store) GetEdge(id uuid.UUID) (*merkle.Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dag.GetEdge(id)
}

// Nodes returns every node in insertion order.
func (s *Store) Nodes() []*merkle.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dag.Nodes()
}

// Edges returns every edge in insertion order.
func (s *Store) Edges() []*merkle.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dag.Edges()
}

// IncomingEdges returns the edges whose output is the given node.
func (s *Store) IncomingEdges(id uuid.UUID) []*merkle.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dag.IncomingEdges(id)
}

// OutgoingEdges returns the edges that consume the given node as an input.
func (s *Store) OutgoingEdges(id uuid.UUID) []*merkle.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dag.OutgoingEdges(id)
}

// RootNodes returns all nodes with no parents.
func (s *Store) RootNodes() []*merkle.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dag.RootNodes()
}

// LeafNodes returns all nodes with no outgoing edges.
func (s *Store) LeafNodes() []*merkle.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dag.LeafNodes()
}

// NodesByType returns all nodes whose TypeName matches.
func (s *Store) NodesByType(typeName string) []*merkle.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dag.NodesByType(typeName)
}

// EdgesByOperation returns all edges whose Operation matches.
func (s *Store) EdgesByOperation(operation string) []*merkle.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dag.EdgesByOperation(operation)
}

// TopologicalSort returns the nodes in dependency order.
func (s *Store) TopologicalSort() ([]*merkle.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dag.TopologicalSort()
}

// VerifyIntegrity re-hashes every record and checks the graph for cycles.
func (s *Store) VerifyIntegrity() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dag.VerifyIntegrity()
}

// apply transitions the in-memory graph by one log entry. Live writes and
// replay both funnel through here, so the graph only ever holds state the
// log reproduces.
func (s *Store) apply(entry wal.Entry) error {
	switch entry.Kind {
	case wal.KindAddNode:
		n, err := entry.Node()
		if err != nil {
			return err
		}
		return s.dag.AddNode(n)

	case wal.KindAddEdge:
		e, err := entry.Edge()
		if err != nil {
			return err
		}
		return s.dag.AddEdge(e)

	default:
		return fmt.Errorf("store: unknown entry kind %q", entry.Kind)
	}
}

// publish emits a mutation event for a committed record. Events are
// advisory: failures are logged, never returned.
func (s *Store) publish(ctx context.Context, event *eventstream.MutationEvent) {
	if s.source != "" {
		event.Source = s.source
	}

	if err := s.publisher.PublishMutation(ctx, event); err != nil {
		s.logger.Warn("mutation event publish failed",
			zap.String("event_type", event.EventType),
			zap.String("record_id", event.Record.ID),
			zap.Error(err),
		)
	}
}
