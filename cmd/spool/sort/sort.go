// Package sortcmder provides the sort command that prints every node in
// topological order.
package sortcmder

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/spool/cmd/spool/walopen"
	"github.com/papercomputeco/spool/pkg/cliui"
	"github.com/papercomputeco/spool/pkg/config"
	"github.com/papercomputeco/spool/pkg/logger"
	"github.com/papercomputeco/spool/pkg/store"
	"github.com/papercomputeco/spool/pkg/utils"
)

const sortLongDesc string = `Print the graph in topological order.

Replays the configured write-ahead log and lists every node so that parents
always appear before their children and edge inputs before their outputs.
Ties are broken by insertion order, so repeated runs over the same log print
the same sequence.

Examples:
  spool sort
  spool sort --driver sqlite`

const sortShortDesc string = "Print nodes in topological order"

type sortCommander struct {
	driver      string
	walPath     string
	sqlitePath  string
	postgresDSN string
	debug       bool
	configDir   string
}

func NewSortCmd() *cobra.Command {
	cmder := &sortCommander{}
	fs := config.NewFlagSet()

	cmd := &cobra.Command{
		Use:   "sort",
		Short: sortShortDesc,
		Long:  sortLongDesc,
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

	return cmd
}

func (c *sortCommander) run(ctx context.Context, v *viper.Viper, out io.Writer) error {
	zlog := zap.NewNop()
	if c.debug {
		zlog = logger.NewLogger(true)
	}

	log, _, err := walopen.Open(ctx, v, c.configDir, zlog)
	if err != nil {
		return err
	}

	st, err := store.Restore(ctx, log, store.WithLogger(zlog))
	if err != nil {
		log.Close()
		return fmt.Errorf("replaying log: %w", err)
	}
	defer st.Close()

	order, err := st.TopologicalSort()
	if err != nil {
		return fmt.Errorf("sorting graph: %w", err)
	}

	if len(order) == 0 {
		fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render("graph is empty"))
		return nil
	}

	width := len(strconv.Itoa(len(order)))
	for i, n := range order {
		fmt.Fprintf(out, "  %s %s %s %s\n",
			cliui.DimStyle.Render(fmt.Sprintf("%*d.", width, i+1)),
			cliui.ValueStyle.Render(n.ID.String()),
			cliui.HashStyle.Render(utils.ShortHash(n.Hash)),
			cliui.NameStyle.Render(n.TypeName),
		)
	}

	return nil
}
