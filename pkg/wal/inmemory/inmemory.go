// Package inmemory implements the write-ahead log in process memory, for
// tests and ephemeral runs where durability is not wanted.
package inmemory

import (
	"context"
	"sync"

	"github.com/papercomputeco/spool/pkg/merkle"
	"github.com/papercomputeco/spool/pkg/wal"
)

// Log keeps entries in an ordered slice guarded by a mutex.
type Log struct {
	mu      sync.RWMutex
	entries []wal.Entry
	closed  bool
}

// New creates an empty in-memory log.
func New() *Log {
	return &Log{}
}

// AppendNode records an add-node entry.
func (l *Log) AppendNode(ctx context.Context, n *merkle.Node) error {
	entry, err := wal.NewNodeEntry(n)
	if err != nil {
		return err
	}
	return l.append(ctx, entry)
}

// AppendEdge records an add-edge entry.
func (l *Log) AppendEdge(ctx context.Context, e *merkle.Edge) error {
	entry, err := wal.NewEdgeEntry(e)
	if err != nil {
		return err
	}
	return l.append(ctx, entry)
}

func (l *Log) append(ctx context.Context, entry wal.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return wal.ErrClosed
	}

	l.entries = append(l.entries, entry)
	return nil
}

// Flush is a no-op: memory is as durable as this log gets.
func (l *Log) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return wal.ErrClosed
	}

	return nil
}

// Replay iterates a snapshot of the entries in append order.
func (l *Log) Replay(ctx context.Context, fn wal.ReplayFunc) error {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return wal.ErrClosed
	}
	snapshot := make([]wal.Entry, len(l.entries))
	copy(snapshot, l.entries)
	l.mu.RUnlock()

	for _, entry := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(entry); err != nil {
			return err
		}
	}

	return nil
}

// Close marks the log closed. Safe to call more than once.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	return nil
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.entries)
}
