// Package file implements the write-ahead log over a flat append-only file
// of newline-delimited JSON entries.
package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/papercomputeco/spool/pkg/merkle"
	"github.com/papercomputeco/spool/pkg/wal"
)

const (
	// writeBufferSize is the bufio buffer in front of the file. Appends land
	// here until Flush pushes them to the kernel and fsyncs.
	writeBufferSize = 64 * 1024

	// maxRecordSize bounds a single replayed line. Records are one mutation
	// each, so anything near this size is garbage, not data.
	maxRecordSize = 16 * 1024 * 1024
)

// Log is a file-backed write-ahead log. Appends are buffered; Flush is the
// durability boundary (buffer flush plus fsync). Replay reads the file
// fresh on every call and skips lines that do not parse, which tolerates a
// torn tail after a crash.
type Log struct {
	path   string
	logger *zap.Logger

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	closed bool
}

// Option configures a Log.
type Option func(*Log)

// WithLogger sets the zap logger used for replay diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// New opens (creating if needed) the write-ahead log at path.
func New(path string, opts ...Option) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: opening %s: %w", path, err)
	}

	l := &Log{
		path:   path,
		logger: zap.NewNop(),
		file:   f,
		writer: bufio.NewWriterSize(f, writeBufferSize),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Path returns the file path backing this log.
func (l *Log) Path() string {
	return l.path
}

// AppendNode writes an add-node entry for the given node.
func (l *Log) AppendNode(ctx context.Context, n *merkle.Node) error {
	entry, err := wal.NewNodeEntry(n)
	if err != nil {
		return err
	}
	return l.append(ctx, entry)
}

// AppendEdge writes an add-edge entry for the given edge.
func (l *Log) AppendEdge(ctx context.Context, e *merkle.Edge) error {
	entry, err := wal.NewEdgeEntry(e)
	if err != nil {
		return err
	}
	return l.append(ctx, entry)
}

// append serializes the entry onto a single line. The record payloads were
// compacted at construction, so the line break is the only newline written.
func (l *Log) append(ctx context.Context, entry wal.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("wal: encoding entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return wal.ErrClosed
	}

	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("wal: appending to %s: %w", l.path, err)
	}
	if err := l.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("wal: appending to %s: %w", l.path, err)
	}

	return nil
}

// Flush pushes buffered appends to the kernel and fsyncs the file. Nothing
// appended is guaranteed to survive a crash before Flush returns.
func (l *Log) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return wal.ErrClosed
	}

	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("wal: flushing %s: %w", l.path, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("wal: syncing %s: %w", l.path, err)
	}

	return nil
}

// Replay scans the file from the beginning, decoding one entry per line.
// Lines that fail to decode are skipped: a crash can tear the final record,
// and a torn record was never flushed as a complete unit, so dropping it
// loses nothing that was promised durable. A missing file is an empty log.
func (l *Log) Replay(ctx context.Context, fn wal.ReplayFunc) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return wal.ErrClosed
	}
	// Surface buffered appends to the reader below. No sync: visibility
	// only, not durability.
	if err := l.writer.Flush(); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("wal: flushing %s: %w", l.path, err)
	}
	l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("wal: opening %s for replay: %w", l.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, writeBufferSize), maxRecordSize)

	line := 0
	skipped := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var entry wal.Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			skipped++
			l.logger.Warn("skipping malformed wal record",
				zap.String("path", l.path),
				zap.Int("line", line),
				zap.Error(err),
			)
			continue
		}

		if err := fn(entry); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("wal: reading %s: %w", l.path, err)
	}

	if skipped > 0 {
		l.logger.Warn("wal replay skipped malformed records",
			zap.String("path", l.path),
			zap.Int("skipped", skipped),
		)
	}

	return nil
}

// Close flushes, syncs, and closes the file. Safe to call more than once.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	var err error
	if flushErr := l.writer.Flush(); flushErr != nil {
		err = multierr.Append(err, fmt.Errorf("wal: flushing %s: %w", l.path, flushErr))
	}
	if syncErr := l.file.Sync(); syncErr != nil {
		err = multierr.Append(err, fmt.Errorf("wal: syncing %s: %w", l.path, syncErr))
	}
	if closeErr := l.file.Close(); closeErr != nil {
		err = multierr.Append(err, fmt.Errorf("wal: closing %s: %w", l.path, closeErr))
	}

	return err
}
