// Package dag maintains the dependency graph between cells and the names they
// read. Nodes are keyed by name: a cell exports its identity as a name and
// inputs export theirs, so an edge simply records "X reads Y".
//
// The graph tolerates names nobody provides (they are unresolved until a
// provider appears) and cycles (they are reported by Order, never looped on).
package dag
