// Package merkle implements a content-addressed Merkle DAG of execution records.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Node represents a single content-addressed record in the DAG: one step of
// computation, derived from zero or more parent nodes.
type Node struct {
	// ID uniquely identifies the node within a graph.
	ID uuid.UUID `json:"id"`

	// TypeName tags the logical kind of the payload.
	TypeName string `json:"type_name"`

	// ParentIDs are the nodes this node was derived from, in order.
	// Empty for root nodes.
	ParentIDs []uuid.UUID `json:"parent_ids"`

	// Payload is the opaque serialized content of the node. It must be
	// valid JSON so that a record always occupies a single log line;
	// binary content is wrapped in a JSON string by the producer.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Hash is the content-addressed identifier (SHA-256, hex-encoded)
	// computed over the id, type name, parent ids, and payload.
	Hash string `json:"hash"`
}

// NewNode creates a node with a fresh id and the computed hash for the given
// content. The payload is compacted onto a single line; invalid payload JSON
// is a construction error.
func NewNode(typeName string, parentIDs []uuid.UUID, payload json.RawMessage) (*Node, error) {
	compacted, err := compactRawJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("merkle: invalid node payload: %w", err)
	}

	n := &Node{
		ID:        uuid.New(),
		TypeName:  typeName,
		ParentIDs: cloneIDs(parentIDs),
		Payload:   compacted,
	}

	n.Hash = n.computeHash()
	return n, nil
}

// IsRoot reports whether the node has no parents.
func (n *Node) IsRoot() bool {
	return len(n.ParentIDs) == 0
}

// Verify recomputes the node's hash and compares it against the stored one.
func (n *Node) Verify() error {
	computed := n.computeHash()
	if computed != n.Hash {
		return ErrHashMismatch{ID: n.ID, Stored: n.Hash, Computed: computed}
	}
	return nil
}

// computeHash calculates the content-addressed hash for a node.
// Marshaling an inline struct fixes the field order, and the payload was
// compacted at construction, so the serialization is canonical without any
// further normalization.
func (n *Node) computeHash() string {
	data, err := json.Marshal(struct {
		ID        uuid.UUID       `json:"id"`
		TypeName  string          `json:"type_name"`
		ParentIDs []uuid.UUID     `json:"parent_ids"`
		Payload   json.RawMessage `json:"payload"`
	}{
		ID:        n.ID,
		TypeName:  n.TypeName,
		ParentIDs: n.ParentIDs,
		Payload:   n.Payload,
	})
	if err != nil {
		panic("failed to marshal hash input: " + err.Error())
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// compactRawJSON validates raw payload bytes and compacts them onto a single
// line. Empty input stays empty.
func compactRawJSON(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}

	return json.RawMessage(buf.Bytes()), nil
}

// cloneIDs copies an id slice, normalizing nil to empty so hashing and
// serialization do not depend on how the caller built the slice.
func cloneIDs(ids []uuid.UUID) []uuid.UUID {
	cloned := make([]uuid.UUID, len(ids))
	copy(cloned, ids)
	return cloned
}
