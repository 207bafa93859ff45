package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Edge represents a content-addressed transition in the DAG: an operation
// that consumed one or more input nodes and produced an output node.
type Edge struct {
	// ID uniquely identifies the edge within a graph.
	ID uuid.UUID `json:"id"`

	// InputIDs are the nodes the operation consumed, in order. Never empty.
	InputIDs []uuid.UUID `json:"input_ids"`

	// OutputID is the node the operation produced.
	OutputID uuid.UUID `json:"output_id"`

	// Operation names the transition, e.g. "Transform".
	Operation string `json:"operation"`

	// OperationSpec carries the opaque serialized parameters of the
	// operation. Same JSON constraint as a node payload.
	OperationSpec json.RawMessage `json:"operation_spec,omitempty"`

	// Confidence optionally scores the operation's output in [0.0, 1.0].
	Confidence *float64 `json:"confidence,omitempty"`

	// DurationMs optionally records how long the operation ran.
	DurationMs *int64 `json:"duration_ms,omitempty"`

	// CreatedAt is when the edge was constructed, UTC.
	CreatedAt time.Time `json:"created_at"`

	// Hash is the content-addressed identifier (SHA-256, hex-encoded)
	// computed over every field above.
	Hash string `json:"hash"`
}

// EdgeMeta contains optional measurements attached to an edge. These
// participate in the hash: an edge is a record of what happened, confidence
// and timing included.
type EdgeMeta struct {
	Confidence *float64
	DurationMs *int64
}

// NewEdge creates an edge with a fresh id and the computed hash.
// Constructing an edge with no inputs is an error here, not at insertion.
func NewEdge(inputIDs []uuid.UUID, outputID uuid.UUID, operation string, operationSpec json.RawMessage, metas ...EdgeMeta) (*Edge, error) {
	if len(inputIDs) == 0 {
		return nil, ErrNoInputs
	}

	compacted, err := compactRawJSON(operationSpec)
	if err != nil {
		return nil, fmt.Errorf("merkle: invalid operation spec: %w", err)
	}

	e := &Edge{
		ID:            uuid.New(),
		InputIDs:      cloneIDs(inputIDs),
		OutputID:      outputID,
		Operation:     operation,
		OperationSpec: compacted,
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}

	if len(metas) > 0 {
		if metas[0].Confidence != nil {
			c := *metas[0].Confidence
			if c < 0.0 || c > 1.0 {
				return nil, ErrConfidenceRange
			}
			e.Confidence = &c
		}
		if metas[0].DurationMs != nil {
			d := *metas[0].DurationMs
			e.DurationMs = &d
		}
	}

	e.Hash = e.computeHash()
	return e, nil
}

// Verify recomputes the edge's hash and compares it against the stored one.
func (e *Edge) Verify() error {
	computed := e.computeHash()
	if computed != e.Hash {
		return ErrHashMismatch{ID: e.ID, Stored: e.Hash, Computed: computed}
	}
	return nil
}

// computeHash calculates the content-addressed hash for an edge. The inline
// struct fixes the field order; CreatedAt is truncated to microseconds at
// construction so its serialization survives a JSON round trip unchanged.
func (e *Edge) computeHash() string {
	data, err := json.Marshal(struct {
		ID            uuid.UUID       `json:"id"`
		InputIDs      []uuid.UUID     `json:"input_ids"`
		OutputID      uuid.UUID       `json:"output_id"`
		Operation     string          `json:"operation"`
		OperationSpec json.RawMessage `json:"operation_spec"`
		Confidence    *float64        `json:"confidence"`
		DurationMs    *int64          `json:"duration_ms"`
		CreatedAt     time.Time       `json:"created_at"`
	}{
		ID:            e.ID,
		InputIDs:      e.InputIDs,
		OutputID:      e.OutputID,
		Operation:     e.Operation,
		OperationSpec: e.OperationSpec,
		Confidence:    e.Confidence,
		DurationMs:    e.DurationMs,
		CreatedAt:     e.CreatedAt,
	})
	if err != nil {
		panic("failed to marshal hash input: " + err.Error())
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
