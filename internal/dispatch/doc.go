// Package dispatch routes a cell's expression to the execution context that
// evaluates it.
//
// A top-level call resolves to one of three kinds: an external-cell call
// (call), a chunk run (run) or a plain function call. Everything else is
// evaluated by the native context, with nested function calls forwarded to
// whichever context provides the function first in registry order.
package dispatch
