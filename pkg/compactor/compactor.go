// Package compactor rewrites a write-ahead log file down to the minimal set
// of entries that reconstructs an equivalent graph.
//
// A long-lived log accumulates noise a fresh replay does not need: torn
// records from crashes and bytes from abandoned appends. Compaction replays
// the log through the store's validating recovery and writes one entry per
// surviving record into a sibling file. The sibling is atomically swapped
// into place and the original kept as a .backup for manual recovery.
package compactor

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/papercomputeco/spool/pkg/store"
	"github.com/papercomputeco/spool/pkg/wal/file"
)

// Result reports what a compaction run kept and saved.
type Result struct {
	NodesKept      int
	EdgesKept      int
	EntriesWritten int
	BytesBefore    int64
	BytesAfter     int64
	BackupPath     string
}

// Option configures a compaction run.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Compact rewrites the log at path to its minimal equivalent.
//
// The existing file is replayed through the same validating recovery a
// restart uses, so a log that cannot restore cannot be compacted either.
// The rewritten file holds one add-node entry per node and one add-edge
// entry per edge, in insertion order, which is a valid dependency order by
// construction. The original file survives as path.backup, replacing any
// previous backup. A missing file is an error; an empty file compacts to an
// empty file.
func Compact(ctx context.Context, path string, opts ...Option) (*Result, error) {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("compactor: stat %s: %w", path, err)
	}
	bytesBefore := info.Size()

	source, err := file.New(path, file.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	s, err := store.Restore(ctx, source, store.WithLogger(o.logger))
	if err != nil {
		source.Close()
		return nil, fmt.Errorf("compactor: replaying %s: %w", path, err)
	}
	defer s.Close()

	compactPath := path + ".compact"
	// A stale sibling from an interrupted run must not be appended to.
	if err := os.Remove(compactPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("compactor: removing stale %s: %w", compactPath, err)
	}

	dest, err := file.New(compactPath, file.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	nodes := s.Nodes()
	edges := s.Edges()

	for _, n := range nodes {
		if err := dest.AppendNode(ctx, n); err != nil {
			dest.Close()
			os.Remove(compactPath)
			return nil, fmt.Errorf("compactor: rewriting node %s: %w", n.ID, err)
		}
	}
	for _, e := range edges {
		if err := dest.AppendEdge(ctx, e); err != nil {
			dest.Close()
			os.Remove(compactPath)
			return nil, fmt.Errorf("compactor: rewriting edge %s: %w", e.ID, err)
		}
	}

	if err := dest.Flush(ctx); err != nil {
		dest.Close()
		os.Remove(compactPath)
		return nil, err
	}
	if err := dest.Close(); err != nil {
		os.Remove(compactPath)
		return nil, err
	}

	compactInfo, err := os.Stat(compactPath)
	if err != nil {
		os.Remove(compactPath)
		return nil, fmt.Errorf("compactor: stat %s: %w", compactPath, err)
	}

	// Release the source handle before swapping files underneath it.
	if err := s.Close(); err != nil {
		os.Remove(compactPath)
		return nil, err
	}

	backupPath := path + ".backup"
	if err := os.Rename(path, backupPath); err != nil {
		os.Remove(compactPath)
		return nil, fmt.Errorf("compactor: backing up %s: %w", path, err)
	}
	if err := os.Rename(compactPath, path); err != nil {
		// Put the original back so the caller still has a working log.
		if restoreErr := os.Rename(backupPath, path); restoreErr != nil {
			return nil, fmt.Errorf("compactor: swapping %s (original stranded at %s): %w", path, backupPath, err)
		}
		return nil, fmt.Errorf("compactor: swapping %s: %w", path, err)
	}

	result := &Result{
		NodesKept:      len(nodes),
		EdgesKept:      len(edges),
		EntriesWritten: len(nodes) + len(edges),
		BytesBefore:    bytesBefore,
		BytesAfter:     compactInfo.Size(),
		BackupPath:     backupPath,
	}

	o.logger.Info("wal compacted",
		zap.String("path", path),
		zap.Int("nodes_kept", result.NodesKept),
		zap.Int("edges_kept", result.EdgesKept),
		zap.Int64("bytes_before", result.BytesBefore),
		zap.Int64("bytes_after", result.BytesAfter),
	)

	return result, nil
}
