package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/spool/pkg/merkle"
)

var (
	graphSummaryToolName    = "spool_graph_summary"
	graphSummaryDescription = "Summarize the execution graph: node and edge counts plus the root and leaf records. Use this first to orient before drilling into individual records."

	getNodeToolName    = "spool_get_node"
	getNodeDescription = "Fetch a single node by id, including its payload, parents, content hash, and the ids of the edges touching it."

	getEdgeToolName    = "spool_get_edge"
	getEdgeDescription = "Fetch a single edge by id, including the operation, its inputs and output, and the content hash."

	topologicalSortToolName    = "spool_topological_sort"
	topologicalSortDescription = "Return every node in dependency order: each edge's output appears after all of its inputs. Use this to replay or schedule the recorded computation."

	verifyIntegrityToolName    = "spool_verify_integrity"
	verifyIntegrityDescription = "Re-hash every record in the graph and check for cycles. Reports the first violation found, or a clean bill of health."
)

// NodeRef is a compact reference to a node record.
type NodeRef struct {
	ID       string `json:"id"`
	TypeName string `json:"type_name"`
	Hash     string `json:"hash"`
}

// GraphSummaryInput represents the input arguments for the graph summary
// tool. The summary takes no parameters.
type GraphSummaryInput struct{}

// GraphSummaryOutput represents the structured output of the graph summary tool.
type GraphSummaryOutput struct {
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
	Roots     []NodeRef `json:"roots"`
	Leaves    []NodeRef `json:"leaves"`
}

// handleGraphSummary processes a graph summary request.
func (s *Server) handleGraphSummary(_ context.Context, _ *mcp.CallToolRequest, _ GraphSummaryInput) (*mcp.CallToolResult, GraphSummaryOutput, error) {
	st := s.config.Store

	output := GraphSummaryOutput{
		NodeCount: st.NodeCount(),
		EdgeCount: st.EdgeCount(),
		Roots:     nodeRefs(st.RootNodes()),
		Leaves:    nodeRefs(st.LeafNodes()),
	}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return serializationError(err), GraphSummaryOutput{}, nil
	}

	return textResult(jsonBytes), output, nil
}

// GetNodeInput represents the input arguments for the get node tool.
type GetNodeInput struct {
	ID string `json:"id" jsonschema:"the node id (UUID) to look up"`
}

// GetNodeOutput represents the structured output of a node lookup.
type GetNodeOutput struct {
	Node     *merkle.Node `json:"node"`
	Incoming []string     `json:"incoming_edge_ids"`
	Outgoing []string     `json:"outgoing_edge_ids"`
}

// handleGetNode processes a node lookup request.
func (s *Server) handleGetNode(_ context.Context, _ *mcp.CallToolRequest, input GetNodeInput) (*mcp.CallToolResult, GetNodeOutput, error) {
	id, err := uuid.Parse(input.ID)
	if err != nil {
		return toolError(fmt.Sprintf("Invalid node id: %v", err)), GetNodeOutput{}, nil
	}

	node, ok := s.config.Store.GetNode(id)
	if !ok {
		return toolError(fmt.Sprintf("Node %s not found", id)), GetNodeOutput{}, nil
	}

	output := GetNodeOutput{
		Node:     node,
		Incoming: edgeIDs(s.config.Store.IncomingEdges(id)),
		Outgoing: edgeIDs(s.config.Store.OutgoingEdges(id)),
	}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return serializationError(err), GetNodeOutput{}, nil
	}

	return textResult(jsonBytes), output, nil
}

// GetEdgeInput represents the input arguments for the get edge tool.
type GetEdgeInput struct {
	ID string `json:"id" jsonschema:"the edge id (UUID) to look up"`
}

// GetEdgeOutput represents the structured output of an edge lookup.
type GetEdgeOutput struct {
	Edge *merkle.Edge `json:"edge"`
}

// handleGetEdge processes an edge lookup request.
func (s *Server) handleGetEdge(_ context.Context, _ *mcp.CallToolRequest, input GetEdgeInput) (*mcp.CallToolResult, GetEdgeOutput, error) {
	id, err := uuid.Parse(input.ID)
	if err != nil {
		return toolError(fmt.Sprintf("Invalid edge id: %v", err)), GetEdgeOutput{}, nil
	}

	edge, ok := s.config.Store.GetEdge(id)
	if !ok {
		return toolError(fmt.Sprintf("Edge %s not found", id)), GetEdgeOutput{}, nil
	}

	output := GetEdgeOutput{Edge: edge}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return serializationError(err), GetEdgeOutput{}, nil
	}

	return textResult(jsonBytes), output, nil
}

// TopologicalSortInput represents the input arguments for the sort tool. The
// sort takes no parameters.
type TopologicalSortInput struct{}

// TopologicalSortOutput represents the structured output of a topological sort.
type TopologicalSortOutput struct {
	Order []NodeRef `json:"order"`
	Count int       `json:"count"`
}

// handleTopologicalSort processes a sort request.
func (s *Server) handleTopologicalSort(_ context.Context, _ *mcp.CallToolRequest, _ TopologicalSortInput) (*mcp.CallToolResult, TopologicalSortOutput, error) {
	order, err := s.config.Store.TopologicalSort()
	if err != nil {
		s.config.Logger.Error("topological sort failed", zap.Error(err))
		return toolError(fmt.Sprintf("Sort failed: %v", err)), TopologicalSortOutput{}, nil
	}

	output := TopologicalSortOutput{
		Order: nodeRefs(order),
		Count: len(order),
	}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return serializationError(err), TopologicalSortOutput{}, nil
	}

	return textResult(jsonBytes), output, nil
}

// VerifyIntegrityInput represents the input arguments for the verify tool.
// Verification takes no parameters.
type VerifyIntegrityInput struct{}

// VerifyIntegrityOutput represents the structured output of an integrity check.
type VerifyIntegrityOutput struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
	Nodes int    `json:"nodes"`
	Edges int    `json:"edges"`
}

// handleVerifyIntegrity processes an integrity verification request.
func (s *Server) handleVerifyIntegrity(_ context.Context, _ *mcp.CallToolRequest, _ VerifyIntegrityInput) (*mcp.CallToolResult, VerifyIntegrityOutput, error) {
	st := s.config.Store

	output := VerifyIntegrityOutput{
		Valid: true,
		Nodes: st.NodeCount(),
		Edges: st.EdgeCount(),
	}

	if err := st.VerifyIntegrity(); err != nil {
		output.Valid = false
		output.Error = err.Error()
	}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return serializationError(err), VerifyIntegrityOutput{}, nil
	}

	return textResult(jsonBytes), output, nil
}

// textResult wraps serialized JSON in a TextContent block.
// Per MCP spec: tools returning structured content should also return
// serialized JSON in a TextContent block for backwards compatibility.
func textResult(jsonBytes []byte) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}
}

// toolError builds a tool-level error result. Bad arguments and missing
// records are reported to the model, not surfaced as protocol errors.
func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}

func serializationError(err error) *mcp.CallToolResult {
	return toolError(fmt.Sprintf("Failed to serialize results: %v", err))
}

// nodeRefs projects nodes onto compact references.
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

// edgeIDs projects edges onto their string ids.
func edgeIDs(edges []*merkle.Edge) []string {
	ids := make([]string, len(edges))
	for i, e := range edges {
		ids[i] = e.ID.String()
	}
	return ids
}
