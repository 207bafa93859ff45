// Package stopcmder provides the stop command for shutting down the
// background daemon.
package stopcmder

import (
	"context"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/spool/pkg/cliui"
	"github.com/papercomputeco/spool/pkg/start"
)

const stopLongDesc = `Stop the background spool daemon.

Sends SIGTERM to the daemon recorded in the .spool directory and waits for
it to exit. The daemon flushes the write-ahead log on the way down, so
stopping never loses committed mutations. State left behind by a daemon
that died uncleanly is cleared.`

const stopShortDesc = "Stop the background spool daemon"

const stopTimeout = 10 * time.Second

type stopCommander struct {
	configDir string
}

func NewStopCmd() *cobra.Command {
	cmder := &stopCommander{}

	cmd := &cobra.Command{
		Use:   "stop",
		Short: stopShortDesc,
		Long:  stopLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	return cmd
}

func (c *stopCommander) run(ctx context.Context, out io.Writer) error {
	manager, err := start.NewManager(c.configDir)
	if err != nil {
		return err
	}

	lock, err := manager.Lock()
	if err != nil {
		return err
	}
	state, err := manager.LoadState()
	if releaseErr := lock.Release(); releaseErr != nil {
		return releaseErr
	}
	if err != nil {
		return err
	}

	if state == nil || state.DaemonPID == 0 {
		fmt.Fprintln(out, cliui.DimStyle.Render("daemon is not running"))
		return nil
	}

	if !start.ProcessAlive(state.DaemonPID) {
		if err := manager.ClearState(); err != nil {
			return err
		}
		fmt.Fprintln(out, cliui.DimStyle.Render("daemon is not running (cleared stale state)"))
		return nil
	}

	proc, err := os.FindProcess(state.DaemonPID)
	if err != nil {
		return fmt.Errorf("finding daemon process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signaling daemon: %w", err)
	}

	deadline := time.After(stopTimeout)
	for start.ProcessAlive(state.DaemonPID) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("daemon (pid %d) did not exit within %s", state.DaemonPID, stopTimeout)
		case <-time.After(200 * time.Millisecond):
		}
	}

	// The daemon clears its own state on the way out; sweep up anything it
	// left behind.
	if err := manager.ClearState(); err != nil {
		return err
	}

	fmt.Fprintf(out, "stopped spool daemon (pid %d)\n", state.DaemonPID)
	return nil
}
