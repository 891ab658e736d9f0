// Package scheduler is the reactive engine. It owns the cell and input
// registries and the dependency graph, collapses bursts of edits into
// evaluation passes, and walks each pass in topological order dispatching
// cells through the router.
//
// # Passes
//
// Mutations mark names dirty and schedule a pass, either after an idle wait
// (Debounced) or right away (PropagateImmediately). A pass runs in rounds:
// each round takes the dirty set, expands it to everything downstream and
// evaluates that closure wave by wave, issuing independent cells
// concurrently. Rounds repeat until nothing is dirty, then the pass emits a
// single Report.
//
// # Failures
//
// A failed cell keeps its previous value and records its errors; cells
// reading it are skipped and flagged stale. Cells on a cycle are marked
// errored with a cycle diagnostic. A cell edited while its call is in flight
// has the late result discarded and is evaluated again in the next round.
package scheduler
