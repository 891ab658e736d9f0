package dag

import (
	"fmt"
	"sort"
)

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*node),
	}
}

// AddExpression registers id as an evaluated node reading refs. It fails if
// id already has an expression; use ReplaceExpression to re-parse.
func (g *Graph) AddExpression(id string, refs []string) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if n, ok := g.nodes[id]; ok && n.expression {
		return fmt.Errorf("%w: %s", ErrExists, id)
	}
	g.setReads(id, refs)
	return nil
}

// ReplaceExpression swaps the reads of id for refs under a single lock, so no
// reader ever observes the old and new edges together. It adds the
// expression if id has none.
func (g *Graph) ReplaceExpression(id string, refs []string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.setReads(id, refs)
}

// RemoveExpression drops id's reads and its identity as an evaluated name.
// Readers of id are left in place and now see it as unresolved.
func (g *Graph) RemoveExpression(id string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	n, ok := g.nodes[id]
	if !ok || !n.expression {
		return
	}
	g.clearReads(n)
	n.expression = false
	g.prune(n)
}

// AddName binds an exogenous name, such as a named input.
func (g *Graph) AddName(name string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.ensure(name).provided = true
}

// RemoveName unbinds an exogenous name.
func (g *Graph) RemoveName(name string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	n, ok := g.nodes[name]
	if !ok {
		return
	}
	n.provided = false
	g.prune(n)
}

// Provides reports whether name is provided by an expression or bound from
// outside.
func (g *Graph) Provides(name string) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[name]
	return ok && (n.expression || n.provided)
}

// HasExpression reports whether id is an evaluated node.
func (g *Graph) HasExpression(id string) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	return ok && n.expression
}

// Reads returns the sorted names id reads.
func (g *Graph) Reads(id string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return sortedIDs(n.reads)
}

// Readers returns the sorted ids of the nodes reading name.
func (g *Graph) Readers(name string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[name]
	if !ok {
		return nil
	}
	return sortedIDs(n.readers)
}

// Unresolved returns the sorted names id reads that nothing provides.
func (g *Graph) Unresolved(id string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	var out []string
	for name, dep := range n.reads {
		if !dep.expression && !dep.provided {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Downstream returns the sorted evaluated nodes transitively reading any of
// names, excluding the names themselves unless they are reached again.
func (g *Graph) Downstream(names ...string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	seen := make(map[string]bool)
	var visit func(n *node)
	visit = func(n *node) {
		for id, reader := range n.readers {
			if seen[id] {
				continue
			}
			seen[id] = true
			visit(reader)
		}
	}
	for _, name := range names {
		if n, ok := g.nodes[name]; ok {
			visit(n)
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		if g.nodes[id].expression {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// DetectCycles checks the whole graph and returns a *CycleError for the
// first cycle found, in sorted order of its members.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	subset := make(map[string]*node, len(g.nodes))
	for id, n := range g.nodes {
		subset[id] = n
	}
	if cycles := strongComponents(subset); len(cycles) > 0 {
		return &CycleError{Members: cycles[0]}
	}
	return nil
}

func (g *Graph) ensure(id string) *node {
	if n, ok := g.nodes[id]; ok {
		return n
	}
	n := &node{
		id:      id,
		reads:   make(map[string]*node),
		readers: make(map[string]*node),
	}
	g.nodes[id] = n
	return n
}

func (g *Graph) setReads(id string, refs []string) {
	n := g.ensure(id)
	g.clearReads(n)
	n.expression = true
	for _, ref := range refs {
		dep := g.ensure(ref)
		n.reads[ref] = dep
		dep.readers[id] = n
	}
}

func (g *Graph) clearReads(n *node) {
	for name, dep := range n.reads {
		delete(dep.readers, n.id)
		delete(n.reads, name)
		if dep != n {
			g.prune(dep)
		}
	}
}

func (g *Graph) prune(n *node) {
	if n.orphan() {
		delete(g.nodes, n.id)
	}
}

func sortedIDs(m map[string]*node) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
