// Package statuscmder provides the status command for summarizing the graph,
// its write-ahead log, and the current pin.
package statuscmder

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/spool/cmd/spool/walopen"
	"github.com/papercomputeco/spool/pkg/cliui"
	"github.com/papercomputeco/spool/pkg/config"
	"github.com/papercomputeco/spool/pkg/dotdir"
	"github.com/papercomputeco/spool/pkg/logger"
	"github.com/papercomputeco/spool/pkg/start"
	"github.com/papercomputeco/spool/pkg/store"
	"github.com/papercomputeco/spool/pkg/utils"
)

const statusLongDesc string = `Show the current graph and log status.

Replays the configured write-ahead log to summarize the graph: node, edge,
root, and leaf counts, plus where the log lives and how big it is. Also shows
the pinned node if one is set, and whether the configured API server answers
on its health endpoint.

Examples:
  spool status
  spool status --driver sqlite`

const statusShortDesc string = "Show graph and log status"

type statusCommander struct {
	driver      string
	walPath     string
	sqlitePath  string
	postgresDSN string
	apiTarget   string
	debug       bool
	configDir   string
}

func NewStatusCmd() *cobra.Command {
	cmder := &statusCommander{}
	fs := config.NewFlagSet()

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
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
				config.FlagAPITarget,
			})

			return cmder.run(cmd.Context(), v)
		},
	}

	config.AddStringFlag(cmd, fs, config.FlagDriver, &cmder.driver)
	config.AddStringFlag(cmd, fs, config.FlagWAL, &cmder.walPath)
	config.AddStringFlag(cmd, fs, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, fs, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, fs, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *statusCommander) run(ctx context.Context, v *viper.Viper) error {
	zlog := zap.NewNop()
	if c.debug {
		zlog = logger.NewLogger(true)
	}

	log, target, err := walopen.Open(ctx, v, c.configDir, zlog)
	if err != nil {
		return err
	}

	st, err := store.Restore(ctx, log, store.WithLogger(zlog))
	if err != nil {
		log.Close()
		return fmt.Errorf("replaying log: %w", err)
	}
	defer st.Close()

	driver := v.GetString("storage.driver")
	if driver == "" {
		driver = config.DriverFile
	}

	fmt.Printf("\n  %s %s %s\n",
		cliui.KeyStyle.Render("Log:   "),
		cliui.ValueStyle.Render(target),
		cliui.DimStyle.Render(describeLog(driver, target)),
	)
	fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Nodes: "), cliui.NameStyle.Render(strconv.Itoa(st.NodeCount())))
	fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Edges: "), cliui.NameStyle.Render(strconv.Itoa(st.EdgeCount())))
	fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Roots: "), cliui.NameStyle.Render(strconv.Itoa(len(st.RootNodes()))))
	fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Leaves:"), cliui.NameStyle.Render(strconv.Itoa(len(st.LeafNodes()))))

	fmt.Println()
	if err := c.printPin(st); err != nil {
		return err
	}

	apiTarget := v.GetString("client.api_target")
	if apiTarget != "" {
		if start.APIReachable(ctx, apiTarget) {
			fmt.Printf("  %s %s %s\n", cliui.KeyStyle.Render("API:   "), cliui.ValueStyle.Render(apiTarget), cliui.SuccessMark)
		} else {
			fmt.Printf("  %s %s %s\n", cliui.KeyStyle.Render("API:   "), cliui.ValueStyle.Render(apiTarget), cliui.DimStyle.Render("(not running)"))
		}
	}

	c.printDaemon(ctx)

	fmt.Println()
	return nil
}

// printDaemon shows the background daemon if one has recorded state.
func (c *statusCommander) printDaemon(ctx context.Context) {
	manager, err := start.NewManager(c.configDir)
	if err != nil {
		return
	}
	state, err := manager.LoadState()
	if err != nil || state == nil {
		return
	}

	if start.Healthy(ctx, state) {
		fmt.Printf("  %s %s %s\n",
			cliui.KeyStyle.Render("Daemon:"),
			cliui.ValueStyle.Render(fmt.Sprintf("%s (pid %d)", state.APIURL, state.DaemonPID)),
			cliui.SuccessMark,
		)
	} else {
		fmt.Printf("  %s %s\n",
			cliui.KeyStyle.Render("Daemon:"),
			cliui.DimStyle.Render("recorded state is stale (not running)"),
		)
	}
}

func (c *statusCommander) printPin(st *store.Store) error {
	pin, err := dotdir.NewManager().LoadPinState(c.configDir)
	if err != nil {
		return fmt.Errorf("loading pin state: %w", err)
	}

	if pin == nil {
		fmt.Printf("  %s No pin. Use \"spool inspect <id> --pin\" to set one.\n", cliui.DimStyle.Render("●"))
		return nil
	}

	fmt.Printf("  %s %s %s\n",
		cliui.KeyStyle.Render("Pinned:"),
		cliui.NameStyle.Render(pin.NodeID),
		cliui.HashStyle.Render(utils.ShortHash(pin.Hash)),
	)

	id, err := uuid.Parse(pin.NodeID)
	if err != nil {
		fmt.Printf("          %s\n", cliui.WarnStyle.Render("pin holds an invalid node id"))
		return nil
	}

	node, ok := st.GetNode(id)
	switch {
	case !ok:
		fmt.Printf("          %s\n", cliui.WarnStyle.Render("pinned node is not in the graph"))
	case node.Hash != pin.Hash:
		fmt.Printf("          %s\n", cliui.WarnStyle.Render("pinned hash no longer matches the graph"))
	}

	return nil
}

// describeLog annotates the log target with its driver and, for file-backed
// drivers, the current size on disk.
func describeLog(driver, target string) string {
	switch driver {
	case config.DriverFile, config.DriverSQLite:
		info, err := os.Stat(target)
		if err != nil {
			return "(" + driver + ")"
		}
		return fmt.Sprintf("(%s, %s)", driver, cliui.FormatBytes(info.Size()))
	default:
		return "(" + driver + ")"
	}
}
