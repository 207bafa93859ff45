package wal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/papercomputeco/spool/pkg/merkle"
)

// Kind discriminates what a WAL entry's payload contains.
type Kind string

const (
	// KindAddNode marks an entry whose payload is a serialized node.
	KindAddNode Kind = "add_node"

	// KindAddEdge marks an entry whose payload is a serialized edge.
	KindAddEdge Kind = "add_edge"
)

// Entry is one committed mutation. Entries are written in commit order and
// replayed in the same order.
type Entry struct {
	Kind      Kind            `json:"kind"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

// NewNodeEntry wraps a node in an add-node entry.
func NewNodeEntry(n *merkle.Node) (Entry, error) {
	if n == nil {
		return Entry{}, ErrNilRecord
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return Entry{}, fmt.Errorf("wal: encoding node %s: %w", n.ID, err)
	}

	return Entry{
		Kind:      KindAddNode,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}, nil
}

// NewEdgeEntry wraps an edge in an add-edge entry.
func NewEdgeEntry(e *merkle.Edge) (Entry, error) {
	if e == nil {
		return Entry{}, ErrNilRecord
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("wal: encoding edge %s: %w", e.ID, err)
	}

	return Entry{
		Kind:      KindAddEdge,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}, nil
}

// Node decodes the payload of an add-node entry.
func (e Entry) Node() (*merkle.Node, error) {
	if e.Kind != KindAddNode {
		return nil, fmt.Errorf("wal: entry kind %q does not carry a node", e.Kind)
	}

	var n merkle.Node
	if err := json.Unmarshal(e.Payload, &n); err != nil {
		return nil, fmt.Errorf("wal: decoding node payload: %w", err)
	}

	return &n, nil
}

// Edge decodes the payload of an add-edge entry.
func (e Entry) Edge() (*merkle.Edge, error) {
	if e.Kind != KindAddEdge {
		return nil, fmt.Errorf("wal: entry kind %q does not carry an edge", e.Kind)
	}

	var edge merkle.Edge
	if err := json.Unmarshal(e.Payload, &edge); err != nil {
		return nil, fmt.Errorf("wal: decoding edge payload: %w", err)
	}

	return &edge, nil
}
