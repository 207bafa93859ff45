package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/spool/pkg/merkle"
)

// ErrorResponse is the error body for every failing route.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse reports liveness and the current graph size.
type HealthResponse struct {
	Status string `json:"status"`
	Nodes  int    `json:"nodes"`
	Edges  int    `json:"edges"`
}

// NodeRef is a compact reference to a node.
type NodeRef struct {
	ID       string `json:"id"`
	TypeName string `json:"type_name"`
	Hash     string `json:"hash"`
}

// GraphSummaryResponse describes the overall shape of the graph.
type GraphSummaryResponse struct {
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
	Roots     []NodeRef `json:"roots"`
	Leaves    []NodeRef `json:"leaves"`
}

// SortResponse contains the nodes in dependency order.
type SortResponse struct {
	Order []NodeRef `json:"order"`
	Count int       `json:"count"`
}

// VerifyResponse reports the outcome of an integrity verification pass.
type VerifyResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
	Nodes int    `json:"nodes"`
	Edges int    `json:"edges"`
}

// NodeEdgesResponse lists the edges touching a node.
type NodeEdgesResponse struct {
	NodeID   string         `json:"node_id"`
	Incoming []*merkle.Edge `json:"incoming"`
	Outgoing []*merkle.Edge `json:"outgoing"`
}

// handleHealth returns a liveness response with current graph counts.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "ok",
		Nodes:  s.store.NodeCount(),
		Edges:  s.store.EdgeCount(),
	})
}

// handleGraphSummary returns counts plus the root and leaf records.
func (s *Server) handleGraphSummary(c *fiber.Ctx) error {
	return c.JSON(GraphSummaryResponse{
		NodeCount: s.store.NodeCount(),
		EdgeCount: s.store.EdgeCount(),
		Roots:     nodeRefs(s.store.RootNodes()),
		Leaves:    nodeRefs(s.store.LeafNodes()),
	})
}

// handleTopologicalSort returns every node in dependency order.
func (s *Server) handleTopologicalSort(c *fiber.Ctx) error {
	order, err := s.store.TopologicalSort()
	if err != nil {
		s.logger.Error("topological sort failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to sort graph"})
	}

	return c.JSON(SortResponse{
		Order: nodeRefs(order),
		Count: len(order),
	})
}

// handleVerify re-hashes every record and reports the result. A failed
// verification is a finding, not a request error, so the response is always
// 200 with the outcome in the body.
func (s *Server) handleVerify(c *fiber.Ctx) error {
	resp := VerifyResponse{
		Valid: true,
		Nodes: s.store.NodeCount(),
		Edges: s.store.EdgeCount(),
	}

	if err := s.store.VerifyIntegrity(); err != nil {
		resp.Valid = false
		resp.Error = err.Error()
	}

	return c.JSON(resp)
}

// handleFlush forces everything appended so far to durable storage.
func (s *Server) handleFlush(c *fiber.Ctx) error {
	if err := s.store.Flush(c.Context()); err != nil {
		s.logger.Error("flush failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to flush log"})
	}

	return c.JSON(map[string]any{"flushed": true})
}

// handleListNodes returns every node, optionally filtered by type name.
func (s *Server) handleListNodes(c *fiber.Ctx) error {
	var nodes []*merkle.Node
	if typeName := c.Query("type_name"); typeName != "" {
		nodes = s.store.NodesByType(typeName)
	} else {
		nodes = s.store.Nodes()
	}

	return c.JSON(map[string]any{
		"count": len(nodes),
		"nodes": nodes,
	})
}

// handleAddNode ingests a single pre-hashed node.
func (s *Server) handleAddNode(c *fiber.Ctx) error {
	var node merkle.Node
	if err := c.BodyParser(&node); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if err := s.store.AddNode(c.Context(), &node); err != nil {
		return s.mutationError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(node)
}

// handleGetNode returns a single node by its id.
func (s *Server) handleGetNode(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid node id"})
	}

	node, ok := s.store.GetNode(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "node not found"})
	}

	return c.JSON(node)
}

// handleNodeEdges returns the edges touching a node. The dir query parameter
// selects incoming, outgoing, or both (the default).
func (s *Server) handleNodeEdges(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid node id"})
	}

	if _, ok := s.store.GetNode(id); !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "node not found"})
	}

	resp := NodeEdgesResponse{
		NodeID:   id.String(),
		Incoming: []*merkle.Edge{},
		Outgoing: []*merkle.Edge{},
	}

	switch c.Query("dir", "both") {
	case "incoming":
		resp.Incoming = s.store.IncomingEdges(id)
	case "outgoing":
		resp.Outgoing = s.store.OutgoingEdges(id)
	case "both":
		resp.Incoming = s.store.IncomingEdges(id)
		resp.Outgoing = s.store.OutgoingEdges(id)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "dir must be incoming, outgoing, or both"})
	}

	return c.JSON(resp)
}

// handleAddEdge ingests a single pre-hashed edge.
func (s *Server) handleAddEdge(c *fiber.Ctx) error {
	var edge merkle.Edge
	if err := c.BodyParser(&edge); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if err := s.store.AddEdge(c.Context(), &edge); err != nil {
		return s.mutationError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(edge)
}

// handleGetEdge returns a single edge by its id.
func (s *Server) handleGetEdge(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid edge id"})
	}

	edge, ok := s.store.GetEdge(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "edge not found"})
	}

	return c.JSON(edge)
}

// mutationError maps a rejected insertion to a status. Duplicate ids are a
// conflict and integrity violations are unprocessable; anything left is an
// append failure.
func (s *Server) mutationError(c *fiber.Ctx, err error) error {
	var (
		dup      merkle.ErrDuplicateID
		mismatch merkle.ErrHashMismatch
		parent   merkle.ErrMissingParent
		endpoint merkle.ErrMissingEndpoint
	)

	switch {
	case errors.As(err, &dup):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: err.Error()})
	case errors.As(err, &mismatch),
		errors.As(err, &parent),
		errors.As(err, &endpoint),
		errors.Is(err, merkle.ErrNoInputs),
		errors.Is(err, merkle.ErrNilNode),
		errors.Is(err, merkle.ErrNilEdge):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{Error: err.Error()})
	default:
		s.logger.Error("mutation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to append record"})
	}
}

// nodeRefs projects nodes onto their compact references.
func nodeRefs(nodes []*merkle.Node) []NodeRef {
	refs := make([]NodeRef, len(nodes))
	for i, n := range nodes {
		refs[i] = NodeRef{
			ID:       n.ID.String(),
			TypeName: n.TypeName,
			Hash:     n.Hash,
		}
	}
	return refs
}
