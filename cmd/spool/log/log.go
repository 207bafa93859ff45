// Package logcmder provides the log command for listing and tailing the
// write-ahead log.
package logcmder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/spool/cmd/spool/walopen"
	"github.com/papercomputeco/spool/pkg/cliui"
	"github.com/papercomputeco/spool/pkg/config"
	"github.com/papercomputeco/spool/pkg/logger"
	"github.com/papercomputeco/spool/pkg/utils"
	"github.com/papercomputeco/spool/pkg/wal"
)

const logLongDesc string = `Show the write-ahead log.

Lists every committed entry in append order: the commit timestamp, the entry
kind, the record id, a short content hash, and the node type or edge
operation. Lines that fail to parse are skipped, matching replay semantics.

With --follow the command keeps watching the log file and prints entries as
they are committed. Following works on the file driver only; the other
drivers have no file to watch.

Examples:
  spool log
  spool log --kind node
  spool log --follow`

const logShortDesc string = "Show the write-ahead log"

type logCommander struct {
	driver      string
	walPath     string
	sqlitePath  string
	postgresDSN string
	kind        string
	follow      bool
	debug       bool
	configDir   string
	zlog        *zap.Logger
}

func NewLogCmd() *cobra.Command {
	cmder := &logCommander{}
	fs := config.NewFlagSet()

	cmd := &cobra.Command{
		Use:   "log",
		Short: logShortDesc,
		Long:  logLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, fs, []string{
				config.FlagDriver,
				config.FlagWAL,
				config.FlagSQLite,
				config.FlagPostgresDSN,
			})

			return cmder.run(cmd.Context(), v, cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, fs, config.FlagDriver, &cmder.driver)
	config.AddStringFlag(cmd, fs, config.FlagWAL, &cmder.walPath)
	config.AddStringFlag(cmd, fs, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, fs, config.FlagPostgresDSN, &cmder.postgresDSN)

	cmd.Flags().StringVar(&cmder.kind, "kind", "", "Only show entries of this kind (node, edge)")
	cmd.Flags().BoolVarP(&cmder.follow, "follow", "f", false, "Keep watching the log and print new entries")

	return cmd
}

func (c *logCommander) run(ctx context.Context, v *viper.Viper, out io.Writer) error {
	c.zlog = zap.NewNop()
	if c.debug {
		c.zlog = logger.NewLogger(true)
	}

	filter, err := kindFilter(c.kind)
	if err != nil {
		return err
	}

	if c.follow {
		path, err := walopen.RequireFilePath(v, c.configDir, "log --follow")
		if err != nil {
			return err
		}
		return c.followLog(ctx, path, out, filter)
	}

	return c.printAll(ctx, v, out, filter)
}

// printAll replays the configured log and prints every matching entry. This
// path works for every driver because it goes through the log interface.
func (c *logCommander) printAll(ctx context.Context, v *viper.Viper, out io.Writer, filter wal.Kind) error {
	log, _, err := walopen.Open(ctx, v, c.configDir, c.zlog)
	if err != nil {
		return err
	}
	defer log.Close()

	count := 0
	err = log.Replay(ctx, func(entry wal.Entry) error {
		if filter != "" && entry.Kind != filter {
			return nil
		}
		count++
		fmt.Fprintln(out, formatEntry(entry))
		return nil
	})
	if err != nil {
		return err
	}

	if count == 0 {
		fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render("no entries"))
	}
	return nil
}

// followLog prints the existing entries and then tails the file, rendering
// new lines as they are committed.
func (c *logCommander) followLog(ctx context.Context, path string, out io.Writer, filter wal.Kind) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no write-ahead log at %s", path)
		}
		return fmt.Errorf("opening log file: %w", err)
	}
	defer file.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating log watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching log dir: %w", err)
	}

	reader := bufio.NewReader(file)
	var partial bytes.Buffer

	readAvailable := func() error {
		for {
			chunk, err := reader.ReadBytes('\n')
			partial.Write(chunk)
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}

			line := bytes.TrimSpace(partial.Bytes())
			partial.Reset()
			if len(line) == 0 {
				continue
			}
			c.printLine(out, line, filter)
		}
	}

	if err := readAvailable(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-watcher.Events:
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := readAvailable(); err != nil {
				return err
			}
		case err := <-watcher.Errors:
			return fmt.Errorf("log watcher error: %w", err)
		}
	}
}

// printLine decodes one raw log line and prints it. Unparseable lines are
// skipped, matching replay semantics.
func (c *logCommander) printLine(out io.Writer, line []byte, filter wal.Kind) {
	var entry wal.Entry
	if err := json.Unmarshal(line, &entry); err != nil {
		c.zlog.Warn("skipping unparseable log line", zap.Error(err))
		return
	}
	if filter != "" && entry.Kind != filter {
		return
	}
	fmt.Fprintln(out, formatEntry(entry))
}

// kindFilter maps the --kind flag to a wal entry kind. Both the short form
// (node) and the wire form (add_node) are accepted.
func kindFilter(kind string) (wal.Kind, error) {
	switch kind {
	case "":
		return "", nil
	case "node", string(wal.KindAddNode):
		return wal.KindAddNode, nil
	case "edge", string(wal.KindAddEdge):
		return wal.KindAddEdge, nil
	default:
		return "", fmt.Errorf("unknown kind %q (available: node, edge)", kind)
	}
}

// formatEntry renders one committed entry as a single line.
func formatEntry(entry wal.Entry) string {
	ts := cliui.DimStyle.Render(entry.Timestamp.UTC().Format("2006-01-02 15:04:05"))

	switch entry.Kind {
	case wal.KindAddNode:
		n, err := entry.Node()
		if err != nil {
			return fmt.Sprintf("  %s  %s  %s", ts, cliui.KeyStyle.Render("node"), cliui.WarnStyle.Render("(malformed payload)"))
		}
		return fmt.Sprintf("  %s  %s  %s %s %s",
			ts,
			cliui.KeyStyle.Render("node"),
			cliui.ValueStyle.Render(n.ID.String()),
			cliui.HashStyle.Render(utils.ShortHash(n.Hash)),
			cliui.NameStyle.Render(n.TypeName),
		)

	case wal.KindAddEdge:
		e, err := entry.Edge()
		if err != nil {
			return fmt.Sprintf("  %s  %s  %s", ts, cliui.KeyStyle.Render("edge"), cliui.WarnStyle.Render("(malformed payload)"))
		}
		return fmt.Sprintf("  %s  %s  %s %s %s",
			ts,
			cliui.KeyStyle.Render("edge"),
			cliui.ValueStyle.Render(e.ID.String()),
			cliui.HashStyle.Render(utils.ShortHash(e.Hash)),
			cliui.NameStyle.Render(e.Operation),
		)

	default:
		return fmt.Sprintf("  %s  %s", ts, cliui.DimStyle.Render(string(entry.Kind)+" (unrecognized)"))
	}
}
