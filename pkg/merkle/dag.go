package merkle

import (
	"github.com/google/uuid"
)

// Dag is an in-memory, append-only graph of content-addressed nodes and
// edges. Insertion validates hashes and referential integrity: a record may
// only reference ids already present, so derivation history never loops.
// Edge adjacency is checked separately, by TopologicalSort and
// VerifyIntegrity.
//
// A Dag is not safe for concurrent use. Callers that need concurrency wrap
// it in an explicit serialization primitive; see pkg/store.
type Dag struct {
	nodes map[uuid.UUID]*Node
	edges map[uuid.UUID]*Edge

	// incoming and outgoing index edge ids by node id.
	incoming map[uuid.UUID][]uuid.UUID
	outgoing map[uuid.UUID][]uuid.UUID

	// nodeOrder and edgeOrder preserve insertion order, which is a valid
	// dependency order and keeps listings and sorts deterministic.
	nodeOrder []uuid.UUID
	edgeOrder []uuid.UUID
}

// NewDag creates an empty dag.
func NewDag() *Dag {
	return &Dag{
		nodes:    make(map[uuid.UUID]*Node),
		edges:    make(map[uuid.UUID]*Edge),
		incoming: make(map[uuid.UUID][]uuid.UUID),
		outgoing: make(map[uuid.UUID][]uuid.UUID),
	}
}

// ValidateNode checks a node against the current dag state without
// registering it. It returns the same error AddNode would, or nil if the
// node is admissible.
func (d *Dag) ValidateNode(n *Node) error {
	if n == nil {
		return ErrNilNode
	}

	if err := n.Verify(); err != nil {
		return err
	}

	if d.hasID(n.ID) {
		return ErrDuplicateID{ID: n.ID}
	}

	for _, parent := range n.ParentIDs {
		if _, ok := d.nodes[parent]; !ok {
			return ErrMissingParent{Node: n.ID, Parent: parent}
		}
	}

	return nil
}

// AddNode validates and registers a node.
//
// It returns an error if:
//   - The node is nil
//   - The stored hash does not match a fresh computation over its fields
//   - The id already exists in the dag
//   - Any declared parent is not present in the dag
func (d *Dag) AddNode(n *Node) error {
	if err := d.ValidateNode(n); err != nil {
		return err
	}

	d.nodes[n.ID] = n
	d.incoming[n.ID] = []uuid.UUID{}
	d.outgoing[n.ID] = []uuid.UUID{}
	d.nodeOrder = append(d.nodeOrder, n.ID)

	return nil
}

// ValidateEdge checks an edge against the current dag state without
// registering it. It returns the same error AddEdge would, or nil if the
// edge is admissible.
func (d *Dag) ValidateEdge(e *Edge) error {
	if e == nil {
		return ErrNilEdge
	}

	if len(e.InputIDs) == 0 {
		return ErrNoInputs
	}

	if err := e.Verify(); err != nil {
		return err
	}

	if d.hasID(e.ID) {
		return ErrDuplicateID{ID: e.ID}
	}

	for _, input := range e.InputIDs {
		if _, ok := d.nodes[input]; !ok {
			return ErrMissingEndpoint{Edge: e.ID, Endpoint: input}
		}
	}
	if _, ok := d.nodes[e.OutputID]; !ok {
		return ErrMissingEndpoint{Edge: e.ID, Endpoint: e.OutputID}
	}

	return nil
}

// AddEdge validates and registers an edge, updating the adjacency indices
// for every input and for the output.
//
// It returns an error if:
//   - The edge is nil or has no inputs
//   - The stored hash does not match a fresh computation over its fields
//   - The id already exists in the dag
//   - Any input or the output references a node not present in the dag
func (d *Dag) AddEdge(e *Edge) error {
	if err := d.ValidateEdge(e); err != nil {
		return err
	}

	d.edges[e.ID] = e
	for _, input := range e.InputIDs {
		d.outgoing[input] = append(d.outgoing[input], e.ID)
	}
	d.incoming[e.OutputID] = append(d.incoming[e.OutputID], e.ID)
	d.edgeOrder = append(d.edgeOrder, e.ID)

	return nil
}

// GetNode returns the node with the given id.
func (d *Dag) GetNode(id uuid.UUID) (*Node, bool) {
	n, ok := d.nodes[id]
	return n, ok
}

// GetEdge returns the edge with the given id.
func (d *Dag) GetEdge(id uuid.UUID) (*Edge, bool) {
	e, ok := d.edges[id]
	return e, ok
}

// NodeCount returns the number of nodes in the dag.
func (d *Dag) NodeCount() int {
	return len(d.nodes)
}

// EdgeCount returns the number of edges in the dag.
func (d *Dag) EdgeCount() int {
	return len(d.edges)
}

// Nodes returns every node in insertion order.
func (d *Dag) Nodes() []*Node {
	nodes := make([]*Node, 0, len(d.nodeOrder))
	for _, id := range d.nodeOrder {
		nodes = append(nodes, d.nodes[id])
	}
	return nodes
}

// Edges returns every edge in insertion order.
func (d *Dag) Edges() []*Edge {
	edges := make([]*Edge, 0, len(d.edgeOrder))
	for _, id := range d.edgeOrder {
		edges = append(edges, d.edges[id])
	}
	return edges
}

// IncomingEdges returns the edges whose output is the given node, in
// insertion order. Empty if the node has none or is unknown.
func (d *Dag) IncomingEdges(id uuid.UUID) []*Edge {
	return d.resolveEdges(d.incoming[id])
}

// OutgoingEdges returns the edges that consume the given node as an input,
// in insertion order. Empty if the node has none or is unknown.
func (d *Dag) OutgoingEdges(id uuid.UUID) []*Edge {
	return d.resolveEdges(d.outgoing[id])
}

// RootNodes returns all nodes with no parents, in insertion order.
func (d *Dag) RootNodes() []*Node {
	roots := []*Node{}
	for _, id := range d.nodeOrder {
		if n := d.nodes[id]; n.IsRoot() {
			roots = append(roots, n)
		}
	}
	return roots
}

// LeafNodes returns all nodes with no outgoing edges, in insertion order.
func (d *Dag) LeafNodes() []*Node {
	leaves := []*Node{}
	for _, id := range d.nodeOrder {
		if len(d.outgoing[id]) == 0 {
			leaves = append(leaves, d.nodes[id])
		}
	}
	return leaves
}

// NodesByType returns all nodes whose TypeName matches, in insertion order.
func (d *Dag) NodesByType(typeName string) []*Node {
	nodes := []*Node{}
	for _, id := range d.nodeOrder {
		if n := d.nodes[id]; n.TypeName == typeName {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// EdgesByOperation returns all edges whose Operation matches, in insertion
// order.
func (d *Dag) EdgesByOperation(operation string) []*Edge {
	edges := []*Edge{}
	for _, id := range d.edgeOrder {
		if e := d.edges[id]; e.Operation == operation {
			edges = append(edges, e)
		}
	}
	return edges
}

// TopologicalSort returns the nodes in an order where every edge's output
// appears after all of its inputs, using Kahn's algorithm over the edge
// adjacency. The queue is seeded and drained in insertion order, so the
// result is deterministic for a given insertion sequence.
//
// Returns ErrCycleDetected if fewer nodes sort than the dag contains.
// AddEdge only checks that both endpoints exist, so opposing edges between
// two nodes can form a loop; this is where such a loop surfaces.
func (d *Dag) TopologicalSort() ([]*Node, error) {
	// A multi-input edge contributes one arc per input to its output.
	inDegree := make(map[uuid.UUID]int, len(d.nodes))
	for _, id := range d.nodeOrder {
		inDegree[id] = 0
	}
	for _, edgeID := range d.edgeOrder {
		e := d.edges[edgeID]
		inDegree[e.OutputID] += len(e.InputIDs)
	}

	queue := make([]uuid.UUID, 0, len(d.nodeOrder))
	for _, id := range d.nodeOrder {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	sorted := make([]*Node, 0, len(d.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, d.nodes[id])

		for _, edgeID := range d.outgoing[id] {
			output := d.edges[edgeID].OutputID
			inDegree[output]--
			if inDegree[output] == 0 {
				queue = append(queue, output)
			}
		}
	}

	if len(sorted) != len(d.nodes) {
		return nil, ErrCycleDetected
	}

	return sorted, nil
}

// VerifyIntegrity recomputes and compares every node's and edge's hash, then
// runs a topological sort as an acyclicity check. It returns the first
// mismatch or cycle error encountered, nil when the whole graph checks out.
func (d *Dag) VerifyIntegrity() error {
	for _, id := range d.nodeOrder {
		if err := d.nodes[id].Verify(); err != nil {
			return err
		}
	}

	for _, id := range d.edgeOrder {
		if err := d.edges[id].Verify(); err != nil {
			return err
		}
	}

	if _, err := d.TopologicalSort(); err != nil {
		return err
	}

	return nil
}

// hasID reports whether an id is taken by any record in the dag.
func (d *Dag) hasID(id uuid.UUID) bool {
	if _, ok := d.nodes[id]; ok {
		return true
	}
	_, ok := d.edges[id]
	return ok
}

// resolveEdges maps edge ids to edges, skipping nothing: the adjacency
// indices only ever hold ids that were registered.
func (d *Dag) resolveEdges(ids []uuid.UUID) []*Edge {
	edges := make([]*Edge, 0, len(ids))
	for _, id := range ids {
		edges = append(edges, d.edges[id])
	}
	return edges
}
