// Package wal defines the write-ahead log of graph mutations: a durable,
// ordered, append-only sequence of entries that is the source of truth for
// rebuilding a DAG after restart.
package wal

import (
	"context"
	"errors"

	"github.com/papercomputeco/spool/pkg/merkle"
)

var (
	// ErrNilRecord indicates a nil node or edge was passed to an append.
	ErrNilRecord = errors.New("wal: nil record")

	// ErrClosed indicates an operation on a closed log.
	ErrClosed = errors.New("wal: log is closed")
)

// ReplayFunc receives one decoded entry during replay. Returning a non-nil
// error aborts the replay and surfaces the error to the caller.
type ReplayFunc func(Entry) error

// Log is the append-only persistence handle behind a graph store.
//
// Append order is the canonical causal order. Nothing is guaranteed durable
// until Flush returns; callers control the write/flush split so batches can
// amortize the sync cost.
type Log interface {
	// AppendNode writes an add-node entry for the given node.
	AppendNode(ctx context.Context, n *merkle.Node) error

	// AppendEdge writes an add-edge entry for the given edge.
	AppendEdge(ctx context.Context, e *merkle.Edge) error

	// Flush forces everything appended so far to durable storage.
	Flush(ctx context.Context) error

	// Replay iterates every entry in original append order, starting from
	// the beginning on each call. A record that fails to parse is skipped;
	// entries that parse are handed to fn. A missing backing file or empty
	// table is a valid empty log.
	Replay(ctx context.Context, fn ReplayFunc) error

	// Close releases the underlying handles. Safe to call more than once;
	// a new log may immediately reopen the same path.
	Close() error
}
