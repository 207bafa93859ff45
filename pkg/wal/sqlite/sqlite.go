// Package sqlite implements the write-ahead log over a SQLite database.
// The AUTOINCREMENT sequence column stands in for file append order.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/spool/pkg/merkle"
	"github.com/papercomputeco/spool/pkg/wal"
)

// Log is a SQLite-backed write-ahead log. Every append commits its own
// transaction, so Flush has nothing left to force.
type Log struct {
	db *sql.DB
}

// New opens (creating if needed) a SQLite-backed log at dbPath.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func New(ctx context.Context, dbPath string) (*Log, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("wal: opening sqlite database: %w", err)
	}

	l := &Log{db: db}
	if err := l.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("wal: migrating sqlite database: %w", err)
	}

	return l, nil
}

// migrate creates the entries table if it doesn't exist.
func (l *Log) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS wal_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		ts TEXT NOT NULL,
		payload BLOB NOT NULL
	);
	`

	_, err := l.db.ExecContext(ctx, schema)
	return err
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

func (l *Log) append(ctx context.Context, entry wal.Entry) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO wal_entries (kind, ts, payload) VALUES (?, ?, ?)`,
		string(entry.Kind),
		entry.Timestamp.Format(time.RFC3339Nano),
		[]byte(entry.Payload),
	)
	if err != nil {
		return fmt.Errorf("wal: inserting entry: %w", err)
	}

	return nil
}

// Flush is a no-op: each insert committed durably on its own.
func (l *Log) Flush(ctx context.Context) error {
	return ctx.Err()
}

// Replay selects every entry in sequence order. Rows whose timestamp or
// payload cannot be decoded are skipped, mirroring the torn-line tolerance
// of the file backend.
func (l *Log) Replay(ctx context.Context, fn wal.ReplayFunc) error {
	rows, err := l.db.QueryContext(ctx,
		`SELECT kind, ts, payload FROM wal_entries ORDER BY seq ASC`)
	if err != nil {
		return fmt.Errorf("wal: querying entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind    string
			ts      string
			payload []byte
		)
		if err := rows.Scan(&kind, &ts, &payload); err != nil {
			return fmt.Errorf("wal: scanning entry: %w", err)
		}

		timestamp, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			continue
		}
		if !json.Valid(payload) {
			continue
		}

		entry := wal.Entry{
			Kind:      wal.Kind(kind),
			Timestamp: timestamp,
			Payload:   json.RawMessage(payload),
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("wal: iterating entries: %w", err)
	}

	return nil
}

// Close closes the database handle. Safe to call more than once.
func (l *Log) Close() error {
	return l.db.Close()
}
