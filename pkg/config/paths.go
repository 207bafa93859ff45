package config

import (
	"fmt"
	"path/filepath"

	"github.com/papercomputeco/spool/pkg/dotdir"
)

// Default file names inside the .spool/ directory, used when storage.path
// or storage.sqlite_path is not set.
const (
	WALFilename    = "graph.wal"
	SQLiteFilename = "graph.db"
)

// ResolveWALPath returns the file WAL location. An explicit path (flag, env,
// or config value) wins; otherwise the WAL lives as graph.wal inside the
// resolved .spool/ directory.
func ResolveWALPath(path, overrideDir string) (string, error) {
	if path != "" {
		return path, nil
	}

	target, err := dotdir.NewManager().Target(overrideDir)
	if err != nil {
		return "", fmt.Errorf("resolving spool directory: %w", err)
	}

	return filepath.Join(target, WALFilename), nil
}

// ResolveSQLitePath returns the SQLite WAL location, falling back to
// graph.db inside the resolved .spool/ directory.
func ResolveSQLitePath(path, overrideDir string) (string, error) {
	if path != "" {
		return path, nil
	}

	target, err := dotdir.NewManager().Target(overrideDir)
	if err != nil {
		return "", fmt.Errorf("resolving spool directory: %w", err)
	}

	return filepath.Join(target, SQLiteFilename), nil
}
