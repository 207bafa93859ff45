// Package servecmder provides the serve command for running the API server.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/spool/api"
	spoolmcp "github.com/papercomputeco/spool/api/mcp"
	"github.com/papercomputeco/spool/cmd/spool/walopen"
	"github.com/papercomputeco/spool/pkg/config"
	"github.com/papercomputeco/spool/pkg/eventstream"
	"github.com/papercomputeco/spool/pkg/eventstream/hub"
	"github.com/papercomputeco/spool/pkg/eventstream/kafka"
	"github.com/papercomputeco/spool/pkg/eventstream/worker"
	"github.com/papercomputeco/spool/pkg/logger"
	"github.com/papercomputeco/spool/pkg/store"
)

const serveLongDesc string = `Run the spool API server.

Replays the configured write-ahead log into an in-memory graph and serves
the HTTP API on the configured address. The MCP endpoint is
mounted at /mcp unless --no-mcp is set. Committed mutations stream to
connected clients on /v1/events ("spool watch" subscribes to it).

With --events, every committed mutation is also published to a Kafka topic
by a pool of background workers. Publishing is asynchronous and advisory;
a slow broker never blocks an append.

Shutdown on SIGINT or SIGTERM flushes the log before the process exits.`

const serveShortDesc string = "Run the spool API server"

type ServeCommander struct {
	apiListen    string
	driver       string
	walPath      string
	sqlitePath   string
	postgresDSN  string
	events       bool
	brokers      string
	topic        string
	eventWorkers uint
	noMCP        bool
	debug        bool
	configDir    string
	logger       *zap.Logger
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}
	fs := config.NewFlagSet()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, fs, []string{
				config.FlagAPIListen,
				config.FlagDriver,
				config.FlagWAL,
				config.FlagSQLite,
				config.FlagPostgresDSN,
				config.FlagEvents,
				config.FlagBrokers,
				config.FlagTopic,
				config.FlagEventWorkers,
			})

			return cmder.run(cmd.Context(), v)
		},
	}

	config.AddStringFlag(cmd, fs, config.FlagAPIListen, &cmder.apiListen)
	config.AddStringFlag(cmd, fs, config.FlagDriver, &cmder.driver)
	config.AddStringFlag(cmd, fs, config.FlagWAL, &cmder.walPath)
	config.AddStringFlag(cmd, fs, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, fs, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddBoolFlag(cmd, fs, config.FlagEvents, &cmder.events)
	config.AddStringFlag(cmd, fs, config.FlagBrokers, &cmder.brokers)
	config.AddStringFlag(cmd, fs, config.FlagTopic, &cmder.topic)
	config.AddUintFlag(cmd, fs, config.FlagEventWorkers, &cmder.eventWorkers)

	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Disable the MCP endpoint")

	return cmd
}

func (c *ServeCommander) run(ctx context.Context, v *viper.Viper) error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	log, target, err := walopen.Open(ctx, v, c.configDir, c.logger)
	if err != nil {
		return err
	}

	// The hub feeds /v1/events subscribers; Kafka publishing is layered on
	// top of it when enabled.
	mutationHub := hub.New(hub.WithLogger(c.logger))
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
			Logger:     c.logger,
		})
		if poolErr != nil {
			publisher.Close()
			log.Close()
			return fmt.Errorf("creating publish workers: %w", poolErr)
		}

		c.logger.Info("publishing mutation events",
			zap.Strings("brokers", brokers),
			zap.String("topic", publisher.Topic()),
		)

		publishers = append(publishers, pool)
	}

	storeOpts := []store.Option{
		store.WithLogger(c.logger),
		store.WithPublisher(eventstream.Multi(publishers...)),
	}

	// Replay the log into memory. The store owns the log and the publisher
	// from here on; its Close flushes and releases both.
	st, err := store.Restore(ctx, log, storeOpts...)
	if err != nil {
		log.Close()
		return fmt.Errorf("replaying log: %w", err)
	}
	defer st.Close()

	c.logger.Info("restored graph",
		zap.String("log", target),
		zap.Int("nodes", st.NodeCount()),
		zap.Int("edges", st.EdgeCount()),
	)

	apiConfig := api.Config{
		ListenAddr: v.GetString("api.listen"),
		Events:     mutationHub,
	}

	if !c.noMCP {
		mcpServer, mcpErr := spoolmcp.NewServer(spoolmcp.Config{
			Store:  st,
			Logger: c.logger,
		})
		if mcpErr != nil {
			return fmt.Errorf("creating mcp server: %w", mcpErr)
		}
		apiConfig.MCP = mcpServer.Handler()
	}

	apiServer := api.NewServer(apiConfig, st, c.logger)

	c.logger.Info("starting api server",
		zap.String("api_addr", apiConfig.ListenAddr),
	)

	// Channel to capture errors from goroutines
	errChan := make(chan error, 1)

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		c.logger.Info("context canceled, shutting down")
		return apiServer.Shutdown()
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		if err := apiServer.Shutdown(); err != nil {
			return fmt.Errorf("shutting down api server: %w", err)
		}
		return nil
	}
}
