package dag

import (
	"errors"
	"strings"
	"sync"
)

// ErrExists is returned when an expression is added for an id that already
// has one.
var ErrExists = errors.New("expression already registered")

// Graph is a name-keyed dependency graph. All operations on the graph are
// concurrency-safe.
type Graph struct {
	// mutex protects the nodes map during concurrent access.
	mutex sync.RWMutex
	// nodes holds every name that is read, provided or evaluated.
	nodes map[string]*node
}

// node is a single name in the graph.
type node struct {
	id string
	// expression is true when the node is evaluated (a cell).
	expression bool
	// provided is true when the name is bound from outside the graph (an input).
	provided bool
	// reads holds the names this node reads (predecessors).
	reads map[string]*node
	// readers holds the nodes reading this name (successors).
	readers map[string]*node
}

// orphan reports whether nothing keeps the node in the graph.
func (n *node) orphan() bool {
	return !n.expression && !n.provided && len(n.readers) == 0 && len(n.reads) == 0
}

// CycleError reports the members of a dependency cycle.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return "cyclic dependency between " + strings.Join(e.Members, ", ")
}
