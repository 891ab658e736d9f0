// Package nodestore defines the read side of the engine: a concurrent store
// of each cell's latest state, value and errors.
//
// The scheduler is the only writer. Observers such as the HTTP surface read
// from the store instead of touching scheduler-owned cells, so a slow reader
// never blocks a pass.
package nodestore

import (
	"context"

	"github.com/vk/cellgrid/internal/node"
)

// Entry is a snapshot of one cell.
type Entry struct {
	State  node.State
	Value  any
	Errors map[int]string
	Stale  bool
}

// Store is the interface for publishing and reading cell state.
//
// Implementations MUST be safe for concurrent reads and writes.
type Store interface {
	// Put records the latest entry for a cell.
	Put(ctx context.Context, id string, entry Entry) error
	// Get returns the entry for a cell. The boolean is false for unknown cells.
	Get(ctx context.Context, id string) (Entry, bool, error)
	// Delete forgets a cell.
	Delete(ctx context.Context, id string) error
	// Snapshot returns every entry keyed by cell id.
	Snapshot(ctx context.Context) (map[string]Entry, error)
}
