// Package compactcmder provides the compact command for rewriting the
// write-ahead log to its minimal equivalent.
package compactcmder

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/spool/cmd/spool/walopen"
	"github.com/papercomputeco/spool/pkg/cliui"
	"github.com/papercomputeco/spool/pkg/compactor"
	"github.com/papercomputeco/spool/pkg/config"
	"github.com/papercomputeco/spool/pkg/logger"
)

const compactLongDesc string = `Rewrite the write-ahead log to its minimal equivalent.

Compaction replays the log through the same validating recovery a restart
uses, then rewrites it with one entry per surviving record in dependency
order. Junk that replay skips, such as torn records from crashes, is
dropped. The original file is kept next to the log as a .backup until the
next compaction replaces it.

Only the file driver has a log file to rewrite. The sqlite and postgres
drivers insert parsed records transactionally and never accumulate torn
writes.`

const compactShortDesc string = "Rewrite the write-ahead log to its minimal equivalent"

type compactCommander struct {
	driver    string
	walPath   string
	debug     bool
	configDir string
}

func NewCompactCmd() *cobra.Command {
	cmder := &compactCommander{}
	fs := config.NewFlagSet()

	cmd := &cobra.Command{
		Use:   "compact",
		Short: compactShortDesc,
		Long:  compactLongDesc,
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
			})

			return cmder.run(cmd.Context(), v, cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, fs, config.FlagDriver, &cmder.driver)
	config.AddStringFlag(cmd, fs, config.FlagWAL, &cmder.walPath)

	return cmd
}

func (c *compactCommander) run(ctx context.Context, v *viper.Viper, out io.Writer) error {
	zlog := zap.NewNop()
	if c.debug {
		zlog = logger.NewLogger(true)
	}

	path, err := walopen.RequireFilePath(v, c.configDir, "compact")
	if err != nil {
		return err
	}

	var result *compactor.Result
	err = cliui.Step(out, fmt.Sprintf("compacting %s", path), func() error {
		var compactErr error
		result, compactErr = compactor.Compact(ctx, path, compactor.WithLogger(zlog))
		return compactErr
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s %s\n",
		cliui.KeyStyle.Render("Kept:"),
		cliui.ValueStyle.Render(fmt.Sprintf("%d nodes, %d edges (%d entries)",
			result.NodesKept, result.EdgesKept, result.EntriesWritten)),
	)
	fmt.Fprintf(out, "  %s %s\n",
		cliui.KeyStyle.Render("Size:"),
		cliui.ValueStyle.Render(fmt.Sprintf("%s -> %s",
			cliui.FormatBytes(result.BytesBefore), cliui.FormatBytes(result.BytesAfter))),
	)
	fmt.Fprintf(out, "  %s %s\n\n",
		cliui.KeyStyle.Render("Backup:"),
		cliui.DimStyle.Render(result.BackupPath),
	)

	return nil
}
