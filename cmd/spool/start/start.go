// Package startcmder provides the start command for running the spool
// server in the background.
package startcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/spool/api"
	spoolmcp "github.com/papercomputeco/spool/api/mcp"
	"github.com/papercomputeco/spool/cmd/spool/walopen"
	"github.com/papercomputeco/spool/pkg/cliui"
	"github.com/papercomputeco/spool/pkg/config"
	"github.com/papercomputeco/spool/pkg/eventstream"
	"github.com/papercomputeco/spool/pkg/eventstream/hub"
	"github.com/papercomputeco/spool/pkg/eventstream/kafka"
	"github.com/papercomputeco/spool/pkg/eventstream/worker"
	"github.com/papercomputeco/spool/pkg/logger"
	"github.com/papercomputeco/spool/pkg/start"
	"github.com/papercomputeco/spool/pkg/store"
)

const startLongDesc = `Start the spool server in the background.

The daemon runs the same stack as "spool serve": it replays the configured
write-ahead log into memory and serves the HTTP API (with the MCP endpoint
and the /v1/events stream) on an ephemeral localhost port. The
bound address, daemon PID, and log location are recorded in the .spool
directory so other commands can find it.

Storage and event publishing come from the config file and environment;
restart the daemon after changing them. "spool stop" stops the daemon and
"spool start --logs" follows its log output.

Examples:
  spool start
  spool start --logs
`

const startShortDesc = "Start the spool server in the background"

type startCommander struct {
	debug     bool
	configDir string
	logs      bool
	daemon    bool
}

func NewStartCmd() *cobra.Command {
	cmder := &startCommander{}

	cmd := &cobra.Command{
		Use:   "start",
		Short: startShortDesc,
		Long:  startLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cmder.logs, _ = cmd.Flags().GetBool("logs")
			cmder.daemon, _ = cmd.Flags().GetBool("daemon")

			switch {
			case cmder.logs:
				return cmder.runLogs(cmd.Context(), cmd.OutOrStdout())
			case cmder.daemon:
				return cmder.runDaemon(cmd.Context())
			default:
				return cmder.runStart(cmd.Context(), cmd.OutOrStdout())
			}
		},
	}

	cmd.Flags().Bool("logs", false, "Stream logs from the running daemon")
	cmd.Flags().Bool("daemon", false, "Run the daemon in the foreground (internal)")
	_ = cmd.Flags().MarkHidden("daemon")

	return cmd
}

func (c *startCommander) runStart(ctx context.Context, out io.Writer) error {
	manager, err := start.NewManager(c.configDir)
	if err != nil {
		return err
	}

	state, spawned, err := c.ensureDaemon(ctx, manager)
	if err != nil {
		return err
	}

	if spawned {
		fmt.Fprintln(out, "started spool daemon")
	} else {
		fmt.Fprintln(out, cliui.DimStyle.Render("spool daemon already running"))
	}
	printState(out, state)

	return nil
}

func (c *startCommander) runLogs(ctx context.Context, out io.Writer) error {
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
	if !start.Healthy(ctx, state) {
		return errors.New("daemon is not running")
	}

	logPath := manager.LogPath
	if state != nil && state.LogPath != "" {
		logPath = state.LogPath
	}

	if _, err := os.Stat(logPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errors.New("no daemon logs found")
		}
		return fmt.Errorf("checking log file: %w", err)
	}

	return followLog(ctx, logPath, out)
}

func (c *startCommander) runDaemon(ctx context.Context) error {
	manager, err := start.NewManager(c.configDir)
	if err != nil {
		return err
	}

	logFile, err := os.OpenFile(manager.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()

	zlog := logger.NewLoggerWithWriters(c.debug, logFile)
	defer func() { _ = zlog.Sync() }()

	return c.runServices(ctx, manager, zlog)
}

func (c *startCommander) runServices(ctx context.Context, manager *start.Manager, zlog *zap.Logger) error {
	v, err := config.InitViper(c.configDir)
	if err != nil {
		return err
	}

	lock, err := manager.Lock()
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	// Bind before saving state so the recorded address is the one actually
	// listening.
	listenerConfig := &net.ListenConfig{}
	apiListener, err := listenerConfig.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("creating api listener: %w", err)
	}

	state := &start.State{
		DaemonPID: os.Getpid(),
		APIURL:    "http://" + apiListener.Addr().String(),
		LogPath:   manager.LogPath,
	}
	if err := manager.SaveState(state); err != nil {
		return err
	}

	if err := lock.Release(); err != nil {
		return err
	}

	log, target, err := walopen.Open(ctx, v, c.configDir, zlog)
	if err != nil {
		return err
	}

	mutationHub := hub.New(hub.WithLogger(zlog))
	publishers := []eventstream.Publisher{mutationHub}

	if v.GetBool("events.enabled") {
		brokers := config.SplitBrokers(v.GetString("events.brokers"))
		publisher, pubErr := kafka.NewPublisher(brokers, kafka.WithTopic(v.GetString("events.topic")))
		if pubErr != nil {
			log.Close()
			return fmt.Errorf("creating kafka publisher: %w", pubErr)
		}

		pool, poolErr := worker.NewPool(&worker.Config{
			Publisher:  publisher,
			NumWorkers: v.GetUint("events.workers"),
			Logger:     zlog,
		})
		if poolErr != nil {
			publisher.Close()
			log.Close()
			return fmt.Errorf("creating publish workers: %w", poolErr)
		}

		zlog.Info("publishing mutation events",
			zap.Strings("brokers", brokers),
			zap.String("topic", publisher.Topic()),
		)

		publishers = append(publishers, pool)
	}

	st, err := store.Restore(ctx, log,
		store.WithLogger(zlog),
		store.WithPublisher(eventstream.Multi(publishers...)),
	)
	if err != nil {
		log.Close()
		return fmt.Errorf("replaying log: %w", err)
	}
	defer st.Close()

	zlog.Info("restored graph",
		zap.String("log", target),
		zap.Int("nodes", st.NodeCount()),
		zap.Int("edges", st.EdgeCount()),
	)

	mcpServer, err := spoolmcp.NewServer(spoolmcp.Config{
		Store:  st,
		Logger: zlog,
	})
	if err != nil {
		return fmt.Errorf("creating mcp server: %w", err)
	}

	apiConfig := api.Config{
		ListenAddr: apiListener.Addr().String(),
		Events:     mutationHub,
		MCP:        mcpServer.Handler(),
	}
	apiServer := api.NewServer(apiConfig, st, zlog)
	defer func() { _ = apiServer.Shutdown() }()

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.RunWithListener(apiListener); err != nil {
			errChan <- fmt.Errorf("api error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		zlog.Info("context canceled, shutting down")
		_ = manager.ClearState()
		return nil
	case err := <-errChan:
		_ = manager.ClearState()
		return err
	case sig := <-sigChan:
		zlog.Info("received signal, shutting down", zap.String("signal", sig.String()))
		_ = manager.ClearState()
		return nil
	}
}

// ensureDaemon returns the state of a healthy daemon, spawning one first if
// none is running. The returned bool reports whether a spawn happened.
func (c *startCommander) ensureDaemon(ctx context.Context, manager *start.Manager) (*start.State, bool, error) {
	lock, err := manager.Lock()
	if err != nil {
		return nil, false, err
	}

	state, err := manager.LoadState()
	if err != nil {
		_ = lock.Release()
		return nil, false, err
	}

	if !start.Healthy(ctx, state) {
		_ = manager.ClearState()
		state = nil
	}

	if err := lock.Release(); err != nil {
		return nil, false, err
	}

	if state != nil {
		return state, false, nil
	}

	if err := c.spawnDaemon(ctx, manager); err != nil {
		return nil, false, err
	}

	state, err = c.waitForDaemon(ctx, manager)
	if err != nil {
		return nil, false, err
	}

	return state, true, nil
}

func (c *startCommander) spawnDaemon(ctx context.Context, manager *start.Manager) error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable: %w", err)
	}

	logFile, err := os.OpenFile(manager.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	args := []string{"start", "--daemon"}
	if c.debug {
		args = append(args, "--debug")
	}
	if c.configDir != "" {
		args = append(args, "--config-dir", c.configDir)
	}

	cmd := exec.CommandContext(ctx, execPath, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return fmt.Errorf("starting daemon: %w", err)
	}
	go func() {
		_ = cmd.Wait()
	}()
	return logFile.Close()
}

func (c *startCommander) waitForDaemon(ctx context.Context, manager *start.Manager) (*start.State, error) {
	deadline := time.After(15 * time.Second)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, errors.New("timed out waiting for daemon")
		default:
		}

		lock, err := manager.Lock()
		if err != nil {
			return nil, err
		}
		state, err := manager.LoadState()
		_ = lock.Release()
		if err != nil {
			return nil, err
		}
		if state != nil && start.Healthy(ctx, state) {
			return state, nil
		}
		time.Sleep(300 * time.Millisecond)
	}
}

func printState(out io.Writer, state *start.State) {
	if state == nil {
		return
	}
	fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("API:"), cliui.ValueStyle.Render(state.APIURL))
	fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("PID:"), cliui.ValueStyle.Render(strconv.Itoa(state.DaemonPID)))
	fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("Log:"), cliui.DimStyle.Render(state.LogPath))
}

// followLog tails the daemon log from its current end, writing raw bytes as
// they land. The watch is on the directory because the log file can be
// rotated out from underneath us.
func followLog(ctx context.Context, path string, out io.Writer) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer file.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating log watcher: %w", err)
	}
	defer watcher.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat log file: %w", err)
	}

	if _, err := file.Seek(stat.Size(), io.SeekStart); err != nil {
		return fmt.Errorf("seek log file: %w", err)
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching log dir: %w", err)
	}

	buf := make([]byte, 4096)
	readAvailable := func() error {
		for {
			n, err := file.Read(buf)
			if n > 0 {
				if _, writeErr := out.Write(buf[:n]); writeErr != nil {
					return writeErr
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
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
