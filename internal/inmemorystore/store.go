package inmemorystore

import (
	"context"
	"sync"

	"github.com/vk/cellgrid/internal/nodestore"
)

// Store is an in-memory implementation of nodestore.Store.
type Store struct {
	entries sync.Map // Key: cell ID string, Value: nodestore.Entry
}

// New creates a new, empty in-memory store.
func New() nodestore.Store {
	return &Store{}
}

// Put records the latest entry for a cell. The errors map is copied so
// later mutation by the writer is not observed by readers.
func (s *Store) Put(ctx context.Context, id string, entry nodestore.Entry) error {
	if entry.Errors != nil {
		errs := make(map[int]string, len(entry.Errors))
		for line, msg := range entry.Errors {
			errs[line] = msg
		}
		entry.Errors = errs
	}
	s.entries.Store(id, entry)
	return nil
}

// Get retrieves the entry of a cell.
func (s *Store) Get(ctx context.Context, id string) (nodestore.Entry, bool, error) {
	v, ok := s.entries.Load(id)
	if !ok {
		return nodestore.Entry{}, false, nil
	}
	return v.(nodestore.Entry), true, nil
}

// Delete forgets a cell.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.entries.Delete(id)
	return nil
}

// Snapshot returns all entries.
func (s *Store) Snapshot(ctx context.Context) (map[string]nodestore.Entry, error) {
	out := make(map[string]nodestore.Entry)
	s.entries.Range(func(key, value any) bool {
		out[key.(string)] = value.(nodestore.Entry)
		return true
	})
	return out, nil
}
