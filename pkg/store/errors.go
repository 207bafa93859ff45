package store

import (
	"fmt"

	"github.com/papercomputeco/spool/pkg/wal"
)

// ReplayError wraps a semantically invalid entry hit during restore. The
// entry was readable; its content violates the graph's invariants, so
// recovery stops rather than rebuild a graph that cannot be trusted.
type ReplayError struct {
	Kind wal.Kind
	Err  error
}

func (e ReplayError) Error() string {
	return fmt.Sprintf("store: replaying %s entry: %v", e.Kind, e.Err)
}

func (e ReplayError) Unwrap() error {
	return e.Err
}
