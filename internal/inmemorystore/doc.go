// Package inmemorystore provides a thread-safe, in-memory implementation
// of the nodestore.Store interface, backed by sync.Map since each cell's
// entry is written independently of the others.
package inmemorystore
