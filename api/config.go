// Package api provides an HTTP API server for inspecting and mutating the graph store.
package api

import (
	"net/http"

	"github.com/papercomputeco/spool/pkg/eventstream/hub"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// MCP is an optional Model Context Protocol handler mounted at /mcp.
	// Nil leaves the route unregistered.
	MCP http.Handler

	// Events is an optional mutation hub backing the /v1/events stream.
	// Nil leaves the route unregistered.
	Events *hub.Hub
}
