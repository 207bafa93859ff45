package api

import (
	"net"
	"sync"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/spool/pkg/store"
)

// Server is the API server for managing and querying the graph store
type Server struct {
	config Config
	store  *store.Store
	logger *zap.Logger
	app    *fiber.App

	// streamsDone ends open event streams so graceful shutdown is not held
	// up by long-lived connections.
	streamsDone chan struct{}
	stopStreams sync.Once
}

// NewServer creates a new API server.
// The store is injected to allow sharing with other components
// (e.g., an ingest pipeline writing to the same graph).
func NewServer(config Config, st *store.Store, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:      config,
		store:       st,
		logger:      logger,
		app:         app,
		streamsDone: make(chan struct{}),
	}

	app.Get("/health", s.handleHealth)
	app.Get("/v1/graph", s.handleGraphSummary)
	app.Get("/v1/graph/sort", s.handleTopologicalSort)
	app.Post("/v1/graph/verify", s.handleVerify)
	app.Post("/v1/graph/flush", s.handleFlush)
	app.Get("/v1/nodes", s.handleListNodes)
	app.Post("/v1/nodes", s.handleAddNode)
	app.Get("/v1/nodes/:id", s.handleGetNode)
	app.Get("/v1/nodes/:id/edges", s.handleNodeEdges)
	app.Post("/v1/edges", s.handleAddEdge)
	app.Get("/v1/edges/:id", s.handleGetEdge)

	if config.Events != nil {
		app.Get("/v1/events", s.handleEvents)
	}

	if config.MCP != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCP))
	}

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener starts the API server on an already-bound listener. The
// daemon binds its own ephemeral port so it can record the actual address
// before accepting traffic.
func (s *Server) RunWithListener(ln net.Listener) error {
	s.logger.Info("starting API server",
		zap.String("listen", ln.Addr().String()),
	)
	return s.app.Listener(ln)
}

// Shutdown gracefully shuts down the API server. Open event streams are
// ended first so the server is not waiting on them to go idle.
func (s *Server) Shutdown() error {
	s.stopStreams.Do(func() { close(s.streamsDone) })
	return s.app.Shutdown()
}
