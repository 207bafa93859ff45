// Package spoolcmder
package spoolcmder

import (
	browsecmder "github.com/papercomputeco/spool/cmd/spool/browse"
	compactcmder "github.com/papercomputeco/spool/cmd/spool/compact"
	configcmder "github.com/papercomputeco/spool/cmd/spool/config"
	initcmder "github.com/papercomputeco/spool/cmd/spool/init"
	inspectcmder "github.com/papercomputeco/spool/cmd/spool/inspect"
	logcmder "github.com/papercomputeco/spool/cmd/spool/log"
	migratecmder "github.com/papercomputeco/spool/cmd/spool/migrate"
	servecmder "github.com/papercomputeco/spool/cmd/spool/serve"
	sortcmder "github.com/papercomputeco/spool/cmd/spool/sort"
	startcmder "github.com/papercomputeco/spool/cmd/spool/start"
	statuscmder "github.com/papercomputeco/spool/cmd/spool/status"
	stopcmder "github.com/papercomputeco/spool/cmd/spool/stop"
	verifycmder "github.com/papercomputeco/spool/cmd/spool/verify"
	watchcmder "github.com/papercomputeco/spool/cmd/spool/watch"
	versioncmder "github.com/papercomputeco/spool/cmd/version"
	"github.com/spf13/cobra"
)

const spoolLongDesc string = `Spool records execution graphs as a content-addressed Merkle DAG
backed by a replayable write-ahead log.

Common commands:
  spool init       Create a local .spool/ directory
  spool start      Run the server in the background
  spool serve      Run the API server in the foreground
  spool status     Summarize the graph and its log
  spool log        Show the write-ahead log entries
  spool browse     Explore the graph in a TUI`

const spoolShortDesc string = "Spool - Durable Execution Graphs"

func NewSpoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spool",
		Short: spoolShortDesc,
		Long:  spoolLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .spool/ directory location")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(verifycmder.NewVerifyCmd())
	cmd.AddCommand(sortcmder.NewSortCmd())
	cmd.AddCommand(inspectcmder.NewInspectCmd())
	cmd.AddCommand(logcmder.NewLogCmd())
	cmd.AddCommand(compactcmder.NewCompactCmd())
	cmd.AddCommand(migratecmder.NewMigrateCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(startcmder.NewStartCmd())
	cmd.AddCommand(stopcmder.NewStopCmd())
	cmd.AddCommand(watchcmder.NewWatchCmd())
	cmd.AddCommand(browsecmder.NewBrowseCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
