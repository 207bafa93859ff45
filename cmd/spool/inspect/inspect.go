// Package inspectcmder provides the inspect command for viewing a single
// node: its fields, its edges, and its payload.
package inspectcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/spool/cmd/spool/walopen"
	"github.com/papercomputeco/spool/pkg/cliui"
	"github.com/papercomputeco/spool/pkg/config"
	"github.com/papercomputeco/spool/pkg/dotdir"
	"github.com/papercomputeco/spool/pkg/logger"
	"github.com/papercomputeco/spool/pkg/merkle"
	"github.com/papercomputeco/spool/pkg/store"
	"github.com/papercomputeco/spool/pkg/utils"
)

const inspectLongDesc string = `Inspect a single node in the graph.

Shows the node's type, hash, parents, the edges that consumed or produced it,
and its payload rendered as JSON. With no argument the pinned node is
inspected; set the pin with --pin and drop it with --unpin.

Examples:
  spool inspect 7d8f3b2a-1c4e-4f6a-9b0d-2e5c8a7f1d3b
  spool inspect 7d8f3b2a-1c4e-4f6a-9b0d-2e5c8a7f1d3b --pin
  spool inspect
  spool inspect --unpin`

const inspectShortDesc string = "Inspect a node and its edges"

type inspectCommander struct {
	driver      string
	walPath     string
	sqlitePath  string
	postgresDSN string
	pin         bool
	unpin       bool
	debug       bool
	configDir   string
}

func NewInspectCmd() *cobra.Command {
	cmder := &inspectCommander{}
	fs := config.NewFlagSet()

	cmd := &cobra.Command{
		Use:   "inspect [id]",
		Short: inspectShortDesc,
		Long:  inspectLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			arg := ""
			if len(args) == 1 {
				arg = strings.TrimSpace(args[0])
			}

			return cmder.run(cmd.Context(), v, cmd.OutOrStdout(), arg)
		},
	}

	config.AddStringFlag(cmd, fs, config.FlagDriver, &cmder.driver)
	config.AddStringFlag(cmd, fs, config.FlagWAL, &cmder.walPath)
	config.AddStringFlag(cmd, fs, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, fs, config.FlagPostgresDSN, &cmder.postgresDSN)

	cmd.Flags().BoolVar(&cmder.pin, "pin", false, "Pin this node for later inspect and browse sessions")
	cmd.Flags().BoolVar(&cmder.unpin, "unpin", false, "Clear the pin")

	return cmd
}

func (c *inspectCommander) run(ctx context.Context, v *viper.Viper, out io.Writer, arg string) error {
	if c.pin && c.unpin {
		return errors.New("--pin and --unpin are mutually exclusive")
	}

	manager := dotdir.NewManager()

	if c.unpin {
		if err := manager.ClearPin(c.configDir); err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s pin cleared\n", cliui.SuccessMark)
		return nil
	}

	id, err := c.resolveID(manager, arg)
	if err != nil {
		return err
	}

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

	node, ok := st.GetNode(id)
	if !ok {
		return fmt.Errorf("node %s not found", id)
	}

	rendered, err := cliui.RenderMarkdown(nodeMarkdown(st, node))
	if err != nil {
		return fmt.Errorf("rendering node: %w", err)
	}
	fmt.Fprint(out, rendered)

	if c.pin {
		state := &dotdir.PinState{
			NodeID:   node.ID.String(),
			Hash:     node.Hash,
			PinnedAt: time.Now().UTC(),
		}
		if err := manager.SavePin(state, c.configDir); err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s pinned %s\n", cliui.SuccessMark, cliui.NameStyle.Render(node.ID.String()))
	}

	return nil
}

// resolveID picks the node to inspect: an explicit argument wins, otherwise
// the pin is consulted.
func (c *inspectCommander) resolveID(manager *dotdir.Manager, arg string) (uuid.UUID, error) {
	if arg != "" {
		id, err := uuid.Parse(arg)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid node id %q: %w", arg, err)
		}
		return id, nil
	}

	pin, err := manager.LoadPinState(c.configDir)
	if err != nil {
		return uuid.Nil, fmt.Errorf("loading pin state: %w", err)
	}
	if pin == nil {
		return uuid.Nil, errors.New(`no node id given and no pin set (see "spool inspect --help")`)
	}

	id, err := uuid.Parse(pin.NodeID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("pin holds an invalid node id %q: %w", pin.NodeID, err)
	}
	return id, nil
}

// nodeMarkdown builds the markdown document for a node. Rendering is left to
// the caller so tests can assert on the raw structure.
func nodeMarkdown(st *store.Store, node *merkle.Node) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s %s\n\n", node.TypeName, utils.ShortHash(node.Hash))
	fmt.Fprintf(&sb, "Node `%s`\n\n", node.ID)
	fmt.Fprintf(&sb, "- **Hash**: %s\n", node.Hash)
	fmt.Fprintf(&sb, "- **Parents**: %d\n", len(node.ParentIDs))

	if len(node.ParentIDs) > 0 {
		sb.WriteString("\n## Parents\n\n")
		for _, pid := range node.ParentIDs {
			line := fmt.Sprintf("- `%s`", pid)
			if parent, ok := st.GetNode(pid); ok {
				line += " " + parent.TypeName
			}
			sb.WriteString(line + "\n")
		}
	}

	incoming := st.IncomingEdges(node.ID)
	if len(incoming) > 0 {
		sb.WriteString("\n## Produced by\n\n")
		for _, e := range incoming {
			fmt.Fprintf(&sb, "- `%s` %s (%d inputs)\n", e.ID, e.Operation, len(e.InputIDs))
		}
	}

	outgoing := st.OutgoingEdges(node.ID)
	if len(outgoing) > 0 {
		sb.WriteString("\n## Consumed by\n\n")
		for _, e := range outgoing {
			fmt.Fprintf(&sb, "- `%s` %s -> `%s`\n", e.ID, e.Operation, e.OutputID)
		}
	}

	sb.WriteString("\n## Payload\n\n")
	if len(node.Payload) == 0 {
		sb.WriteString("_no payload_\n")
	} else {
		sb.WriteString("```json\n")
		sb.WriteString(indentJSON(node.Payload))
		sb.WriteString("\n```\n")
	}

	return sb.String()
}

func indentJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
