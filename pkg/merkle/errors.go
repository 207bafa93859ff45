package merkle

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNilNode indicates a nil node was passed to the dag.
	ErrNilNode = errors.New("merkle: nil node")

	// ErrNilEdge indicates a nil edge was passed to the dag.
	ErrNilEdge = errors.New("merkle: nil edge")

	// ErrNoInputs indicates an edge was constructed without input nodes.
	ErrNoInputs = errors.New("merkle: edge requires at least one input")

	// ErrConfidenceRange indicates an edge confidence outside [0.0, 1.0].
	ErrConfidenceRange = errors.New("merkle: confidence must be within [0.0, 1.0]")

	// ErrCycleDetected indicates a topological sort visited fewer nodes than
	// the dag contains. Unreachable through AddNode/AddEdge, which only accept
	// references to ids already present.
	ErrCycleDetected = errors.New("merkle: cycle detected")
)

// ErrHashMismatch is returned when a record's stored hash does not match a
// fresh computation over its fields.
type ErrHashMismatch struct {
	ID       uuid.UUID
	Stored   string
	Computed string
}

func (e ErrHashMismatch) Error() string {
	return fmt.Sprintf("merkle: hash mismatch for %s: stored %s, computed %s", e.ID, e.Stored, e.Computed)
}

// ErrDuplicateID is returned when a record's id already exists in the dag.
type ErrDuplicateID struct {
	ID uuid.UUID
}

func (e ErrDuplicateID) Error() string {
	return fmt.Sprintf("merkle: id %s already present in dag", e.ID)
}

// ErrMissingParent is returned when a node declares a parent id that is not
// present in the dag.
type ErrMissingParent struct {
	Node   uuid.UUID
	Parent uuid.UUID
}

func (e ErrMissingParent) Error() string {
	return fmt.Sprintf("merkle: node %s references parent %s not present in dag", e.Node, e.Parent)
}

// ErrMissingEndpoint is returned when an edge references an input or output
// node that is not present in the dag.
type ErrMissingEndpoint struct {
	Edge     uuid.UUID
	Endpoint uuid.UUID
}

func (e ErrMissingEndpoint) Error() string {
	return fmt.Sprintf("merkle: edge %s references node %s not present in dag", e.Edge, e.Endpoint)
}
