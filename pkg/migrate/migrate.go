// Package migrate copies a write-ahead log between storage drivers. The
// source is replayed entry by entry and re-appended to the destination, so
// a flat-file log can move into sqlite or postgres (or back) without losing
// the original append order. Entry envelope timestamps are regenerated on
// append; the nodes and edges themselves carry their creation times, so no
// graph data changes in transit.
package migrate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/spool/pkg/wal"
)

// ErrDestinationNotEmpty indicates the destination log already holds
// entries. Appending a second history onto an existing one would interleave
// unrelated causal orders, so migration refuses to merge.
var ErrDestinationNotEmpty = errors.New("migrate: destination log is not empty")

// Options configures migration behavior.
type Options struct {
	// DryRun counts what would be copied without appending anything to the
	// destination.
	DryRun bool

	// Logger receives per-entry diagnostics. Nil disables logging.
	Logger *zap.Logger
}

// Migrator copies entries from a source log into a destination log.
type Migrator struct {
	src     wal.Log
	dst     wal.Log
	options Options
	logger  *zap.Logger
}

// New creates a Migrator between the two logs. Both must already be open;
// the Migrator does not take ownership and never closes them.
func New(src, dst wal.Log, opts Options) (*Migrator, error) {
	if src == nil {
		return nil, errors.New("migrate: nil source log")
	}
	if dst == nil {
		return nil, errors.New("migrate: nil destination log")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Migrator{
		src:     src,
		dst:     dst,
		options: opts,
		logger:  logger,
	}, nil
}

// Run replays the source and appends every entry to the destination in the
// original order, flushing once at the end. The destination must be empty.
// Entries whose payload no longer decodes are counted as skipped rather than
// aborting the run, matching how replay treats records that never parsed.
func (m *Migrator) Run(ctx context.Context) (*Result, error) {
	if err := m.checkDestinationEmpty(ctx); err != nil {
		return nil, err
	}

	result := &Result{}

	err := m.src.Replay(ctx, func(entry wal.Entry) error {
		switch entry.Kind {
		case wal.KindAddNode:
			n, err := entry.Node()
			if err != nil {
				result.Skipped++
				m.logger.Warn("skipping undecodable node entry", zap.Error(err))
				return nil
			}
			result.Nodes++
			if m.options.DryRun {
				return nil
			}
			return m.dst.AppendNode(ctx, n)

		case wal.KindAddEdge:
			e, err := entry.Edge()
			if err != nil {
				result.Skipped++
				m.logger.Warn("skipping undecodable edge entry", zap.Error(err))
				return nil
			}
			result.Edges++
			if m.options.DryRun {
				return nil
			}
			return m.dst.AppendEdge(ctx, e)

		default:
			result.Skipped++
			m.logger.Warn("skipping entry of unknown kind",
				zap.String("kind", string(entry.Kind)),
			)
			return nil
		}
	})
	if err != nil {
		return nil, fmt.Errorf("migrate: replaying source: %w", err)
	}

	if !m.options.DryRun {
		if err := m.dst.Flush(ctx); err != nil {
			return nil, fmt.Errorf("migrate: flushing destination: %w", err)
		}
	}

	return result, nil
}

// checkDestinationEmpty probes the destination with a replay that aborts on
// the first entry it sees.
func (m *Migrator) checkDestinationEmpty(ctx context.Context) error {
	err := m.dst.Replay(ctx, func(wal.Entry) error {
		return ErrDestinationNotEmpty
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDestinationNotEmpty):
		return ErrDestinationNotEmpty
	default:
		return fmt.Errorf("migrate: inspecting destination: %w", err)
	}
}
