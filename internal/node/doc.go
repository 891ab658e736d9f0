// Package node defines the records the scheduler tracks: computational cells
// and the inputs that feed values into the graph.
package node
