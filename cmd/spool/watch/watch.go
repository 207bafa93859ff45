// Package watchcmder provides the watch command for following mutations
// committed by a running spool server.
package watchcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/spool/pkg/cliui"
	"github.com/papercomputeco/spool/pkg/config"
	"github.com/papercomputeco/spool/pkg/eventstream"
	"github.com/papercomputeco/spool/pkg/logger"
	"github.com/papercomputeco/spool/pkg/sse"
	"github.com/papercomputeco/spool/pkg/utils"
)

const watchLongDesc string = `Watch mutations on a running spool server.

Subscribes to the server's event stream and prints every committed node and
edge as it lands: the emit timestamp, the record kind, the record id, a short
content hash, and the node type or edge operation.

Unlike "spool log --follow" this works against any storage driver because it
reads the server's stream instead of the log file. It needs a running
"spool serve" (or the start daemon) to connect to.

Examples:
  spool watch
  spool watch --api-target http://localhost:8081`

const watchShortDesc string = "Watch mutations on a running server"

type watchCommander struct {
	apiTarget string
	debug     bool
	configDir string
	zlog      *zap.Logger
}

func NewWatchCmd() *cobra.Command {
	cmder := &watchCommander{}
	fs := config.NewFlagSet()

	cmd := &cobra.Command{
		Use:   "watch",
		Short: watchShortDesc,
		Long:  watchLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, fs, []string{
				config.FlagAPITarget,
			})

			return cmder.run(cmd.Context(), v, cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, fs, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *watchCommander) run(ctx context.Context, v *viper.Viper, out io.Writer) error {
	c.zlog = zap.NewNop()
	if c.debug {
		c.zlog = logger.NewLogger(true)
	}

	target := strings.TrimRight(v.GetString("client.api_target"), "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target+"/v1/events", nil)
	if err != nil {
		return fmt.Errorf("building stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// No client timeout: the stream stays open until the server closes it
	// or the context is canceled.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", target, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return fmt.Errorf("%s does not expose an event stream", target)
	default:
		return fmt.Errorf("%s returned %s", target, resp.Status)
	}

	fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render("watching "+target+" (ctrl-c to stop)"))

	reader := sse.NewReader(resp.Body)
	for {
		ev, err := reader.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading event stream: %w", err)
		}
		if ev == nil {
			fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render("stream ended"))
			return nil
		}

		c.printEvent(out, ev)
	}
}

// printEvent decodes one stream event and prints it. Events that fail to
// decode are skipped, matching how replay treats unparseable records.
func (c *watchCommander) printEvent(out io.Writer, ev *sse.Event) {
	var event eventstream.MutationEvent
	if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
		c.zlog.Warn("skipping unparseable stream event", zap.Error(err))
		return
	}

	fmt.Fprintln(out, formatEvent(&event))
}

// formatEvent renders one mutation event as a single line.
func formatEvent(event *eventstream.MutationEvent) string {
	ts := cliui.DimStyle.Render(event.EmittedAt.UTC().Format("2006-01-02 15:04:05"))

	switch event.EventType {
	case eventstream.EventTypeNodeAppended:
		return fmt.Sprintf("  %s  %s  %s %s %s",
			ts,
			cliui.KeyStyle.Render("node"),
			cliui.ValueStyle.Render(event.Record.ID),
			cliui.HashStyle.Render(utils.ShortHash(event.Record.Hash)),
			cliui.NameStyle.Render(event.Record.TypeName),
		)

	case eventstream.EventTypeEdgeAppended:
		return fmt.Sprintf("  %s  %s  %s %s %s",
			ts,
			cliui.KeyStyle.Render("edge"),
			cliui.ValueStyle.Render(event.Record.ID),
			cliui.HashStyle.Render(utils.ShortHash(event.Record.Hash)),
			cliui.NameStyle.Render(event.Record.Operation),
		)

	default:
		return fmt.Sprintf("  %s  %s", ts, cliui.DimStyle.Render(event.EventType+" (unrecognized)"))
	}
}
