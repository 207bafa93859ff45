package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/spool/pkg/merkle"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeNodeAppended is emitted after a node is committed to the graph.
	EventTypeNodeAppended = "spool.node.appended"

	// EventTypeEdgeAppended is emitted after an edge is committed to the graph.
	EventTypeEdgeAppended = "spool.edge.appended"
)

// MutationEvent is a transport-neutral notification that a record was
// committed to the graph. Downstream pipelines subscribe to these instead of
// polling the store.
type MutationEvent struct {
	SchemaVersion int        `json:"schema_version"`
	EventType     string     `json:"event_type"`
	EventID       string     `json:"event_id"`
	EmittedAt     time.Time  `json:"emitted_at"`
	Source        string     `json:"source,omitempty"`
	Record        RecordMeta `json:"record"`
}

// RecordMeta identifies the committed record without carrying its payload.
// Consumers that want the content fetch it from the graph API by id.
type RecordMeta struct {
	ID        string   `json:"id"`
	Hash      string   `json:"hash"`
	TypeName  string   `json:"type_name,omitempty"`
	ParentIDs []string `json:"parent_ids,omitempty"`
	Operation string   `json:"operation,omitempty"`
	InputIDs  []string `json:"input_ids,omitempty"`
	OutputID  string   `json:"output_id,omitempty"`
}

// NewNodeAppended builds the event for a committed node.
func NewNodeAppended(n *merkle.Node) *MutationEvent {
	return &MutationEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeNodeAppended,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Record: RecordMeta{
			ID:        n.ID.String(),
			Hash:      n.Hash,
			TypeName:  n.TypeName,
			ParentIDs: idStrings(n.ParentIDs),
		},
	}
}

// NewEdgeAppended builds the event for a committed edge.
func NewEdgeAppended(e *merkle.Edge) *MutationEvent {
	return &MutationEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeEdgeAppended,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Record: RecordMeta{
			ID:        e.ID.String(),
			Hash:      e.Hash,
			Operation: e.Operation,
			InputIDs:  idStrings(e.InputIDs),
			OutputID:  e.OutputID.String(),
		},
	}
}

func idStrings(ids []uuid.UUID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
