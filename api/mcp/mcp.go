// Package mcp provides an MCP (Model Context Protocol) server over the graph store.
package mcp

import (
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/spool/pkg/store"
	"github.com/papercomputeco/spool/pkg/utils"
)

type Config struct {
	// Store is the graph the tools read from
	Store *store.Store

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured zap logger
	Logger *zap.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the graph inspection tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	// Create the MCP server
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "spool",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if c.Noop {
		// return the empty MCP server with no tools configured
		// if the noop flag is set (i.e., MCP capabilities are disabled)
		s.mcpServer = mcpServer
		return s, nil
	}

	if c.Store == nil {
		return nil, errors.New("graph store is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	// Add tools
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        graphSummaryToolName,
		Description: graphSummaryDescription,
	}, s.handleGraphSummary)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        getNodeToolName,
		Description: getNodeDescription,
	}, s.handleGetNode)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        getEdgeToolName,
		Description: getEdgeDescription,
	}, s.handleGetEdge)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        topologicalSortToolName,
		Description: topologicalSortDescription,
	}, s.handleTopologicalSort)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        verifyIntegrityToolName,
		Description: verifyIntegrityDescription,
	}, s.handleVerifyIntegrity)

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
