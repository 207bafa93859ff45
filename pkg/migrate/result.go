package migrate

import "fmt"

// Result counts what a migration run copied.
type Result struct {
	Nodes   int
	Edges   int
	Skipped int
}

// Summary returns a human-readable summary of the migration result.
func (r *Result) Summary() string {
	return fmt.Sprintf(
		"Migration complete: %d nodes, %d edges copied\n"+
			"Skipped %d undecodable entries",
		r.Nodes, r.Edges, r.Skipped,
	)
}
