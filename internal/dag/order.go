package dag

import "sort"

// Order computes an evaluation order for a pass. The dirty names are
// expanded to everything transitively reading them; the evaluated nodes of
// that closure are returned in topological order. Nodes on a cycle are left
// out of order and reported in cycles instead, one sorted member list per
// cycle. Nodes reading a cycle are still ordered.
//
// Ties between independent nodes are broken by name.
func (g *Graph) Order(dirty []string) (order []string, cycles [][]string) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	closure := make(map[string]*node)
	var visit func(n *node)
	visit = func(n *node) {
		if _, ok := closure[n.id]; ok {
			return
		}
		closure[n.id] = n
		for _, reader := range n.readers {
			visit(reader)
		}
	}
	for _, id := range dirty {
		if n, ok := g.nodes[id]; ok {
			visit(n)
		}
	}

	subset := make(map[string]*node, len(closure))
	for id, n := range closure {
		if n.expression {
			subset[id] = n
		}
	}

	cycles = strongComponents(subset)
	for _, members := range cycles {
		for _, id := range members {
			delete(subset, id)
		}
	}

	return kahn(subset), cycles
}

// kahn orders the subset topologically. Only edges inside the subset count.
func kahn(subset map[string]*node) []string {
	indegree := make(map[string]int, len(subset))
	for id, n := range subset {
		indegree[id] = 0
		for dep := range n.reads {
			if _, ok := subset[dep]; ok {
				indegree[id]++
			}
		}
	}

	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(subset))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var next []string
		for reader := range subset[id].readers {
			if _, ok := subset[reader]; !ok {
				continue
			}
			indegree[reader]--
			if indegree[reader] == 0 {
				next = append(next, reader)
			}
		}
		if len(next) > 0 {
			ready = append(ready, next...)
			sort.Strings(ready)
		}
	}
	return order
}

// strongComponents runs Tarjan's algorithm over the subset and returns every
// component that forms a cycle: more than one member, or a node reading
// itself. Members and the component list are sorted.
func strongComponents(subset map[string]*node) [][]string {
	ids := make([]string, 0, len(subset))
	for id := range subset {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	index := 0
	indices := make(map[string]int, len(subset))
	lowlink := make(map[string]int, len(subset))
	onStack := make(map[string]bool, len(subset))
	var stack []string
	var cycles [][]string

	var connect func(id string)
	connect = func(id string) {
		indices[id] = index
		lowlink[id] = index
		index++
		stack = append(stack, id)
		onStack[id] = true

		for reader := range subset[id].readers {
			if _, ok := subset[reader]; !ok {
				continue
			}
			if _, seen := indices[reader]; !seen {
				connect(reader)
				lowlink[id] = min(lowlink[id], lowlink[reader])
			} else if onStack[reader] {
				lowlink[id] = min(lowlink[id], indices[reader])
			}
		}

		if lowlink[id] != indices[id] {
			return
		}
		var members []string
		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false
			members = append(members, top)
			if top == id {
				break
			}
		}
		_, selfRead := subset[id].reads[id]
		if len(members) > 1 || selfRead {
			sort.Strings(members)
			cycles = append(cycles, members)
		}
	}

	for _, id := range ids {
		if _, seen := indices[id]; !seen {
			connect(id)
		}
	}

	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}
