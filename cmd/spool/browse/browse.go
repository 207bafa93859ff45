// Package browsecmder provides the browse command, an interactive TUI over
// the graph.
package browsecmder

import (
	"context"
	"fmt"
	"io"

	bubbletea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/spool/cmd/spool/walopen"
	"github.com/papercomputeco/spool/pkg/cliui"
	"github.com/papercomputeco/spool/pkg/config"
	"github.com/papercomputeco/spool/pkg/dotdir"
	"github.com/papercomputeco/spool/pkg/logger"
	"github.com/papercomputeco/spool/pkg/store"
)

const browseLongDesc string = `Browse the graph interactively.

Opens a full-screen view of the nodes in dependency order. Drill into a
node to see its hash, payload, and edges, then walk to its parents and
downstream outputs. Pins set here are picked up by inspect and status.

Keys:
  j/k      move
  enter/l  drill into the node under the cursor, or jump to a neighbor
  h/esc    back to the node list
  s        cycle sort (topo, type)
  t        cycle the type filter
  p        pin the current node
  q        quit`

const browseShortDesc string = "Browse the graph interactively"

type browseCommander struct {
	driver      string
	walPath     string
	sqlitePath  string
	postgresDSN string
	debug       bool
	configDir   string
}

func NewBrowseCmd() *cobra.Command {
	cmder := &browseCommander{}
	fs := config.NewFlagSet()

	cmd := &cobra.Command{
		Use:   "browse",
		Short: browseShortDesc,
		Long:  browseLongDesc,
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

func (c *browseCommander) run(ctx context.Context, v *viper.Viper, out io.Writer) error {
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

	if st.NodeCount() == 0 {
		fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render("graph is empty, nothing to browse"))
		return nil
	}

	model, err := newBrowseModel(st, dotdir.NewManager(), c.configDir)
	if err != nil {
		return fmt.Errorf("sorting graph: %w", err)
	}

	program := bubbletea.NewProgram(model,
		bubbletea.WithContext(ctx),
		bubbletea.WithAltScreen(),
	)
	_, err = program.Run()
	return err
}
