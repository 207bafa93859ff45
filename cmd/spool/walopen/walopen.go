// Package walopen opens the write-ahead log backend selected by
// storage.driver. It is the single home of the driver switch so every
// command that reads or writes the log resolves paths and DSNs the same way.
package walopen

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/spool/pkg/config"
	"github.com/papercomputeco/spool/pkg/wal"
	"github.com/papercomputeco/spool/pkg/wal/file"
	"github.com/papercomputeco/spool/pkg/wal/inmemory"
	"github.com/papercomputeco/spool/pkg/wal/postgres"
	"github.com/papercomputeco/spool/pkg/wal/sqlite"
)

// Open builds the log named by storage.driver in v. The returned target is
// what was opened (a file path, a DSN, or "memory") for display and logging.
func Open(ctx context.Context, v *viper.Viper, configDir string, logger *zap.Logger) (wal.Log, string, error) {
	driver := v.GetString("storage.driver")

	var target string
	switch driver {
	case config.DriverFile, "":
		target = v.GetString("storage.path")
	case config.DriverSQLite:
		target = v.GetString("storage.sqlite_path")
	case config.DriverPostgres:
		target = v.GetString("storage.postgres_dsn")
		if target == "" {
			return nil, "", errors.New("storage.postgres_dsn is required for the postgres driver")
		}
	}

	return NewLog(ctx, driver, target, configDir, logger)
}

// NewLog opens the named driver directly against target: a file path for
// file, a database path for sqlite, or a DSN for postgres. An empty target
// falls back to the driver's default under configDir where one exists. The
// returned string is what was actually opened.
func NewLog(ctx context.Context, driver, target, configDir string, logger *zap.Logger) (wal.Log, string, error) {
	switch driver {
	case config.DriverFile, "":
		path, err := config.ResolveWALPath(target, configDir)
		if err != nil {
			return nil, "", err
		}
		log, err := file.New(path, file.WithLogger(logger))
		if err != nil {
			return nil, "", err
		}
		return log, path, nil

	case config.DriverSQLite:
		path, err := config.ResolveSQLitePath(target, configDir)
		if err != nil {
			return nil, "", err
		}
		log, err := sqlite.New(ctx, path)
		if err != nil {
			return nil, "", err
		}
		return log, path, nil

	case config.DriverPostgres:
		if target == "" {
			return nil, "", errors.New("a DSN is required for the postgres driver")
		}
		log, err := postgres.New(ctx, target)
		if err != nil {
			return nil, "", err
		}
		return log, target, nil

	case config.DriverInMemory:
		return inmemory.New(), "memory", nil

	default:
		return nil, "", fmt.Errorf("unknown storage driver %q (available: file, sqlite, postgres, inmemory)", driver)
	}
}

// RequireFilePath resolves the flat-file log path for commands that operate
// on the file itself rather than through the log interface. Compaction and
// log tailing rewrite or watch the file, so the other drivers are rejected.
func RequireFilePath(v *viper.Viper, configDir, operation string) (string, error) {
	driver := v.GetString("storage.driver")
	if driver != "" && driver != config.DriverFile {
		return "", fmt.Errorf("%s requires the file driver, storage.driver is %q", operation, driver)
	}

	return config.ResolveWALPath(v.GetString("storage.path"), configDir)
}
