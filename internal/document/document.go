package document

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrNodeExists is returned when creating a node whose id is taken.
	ErrNodeExists = errors.New("node already exists")
	// ErrNodeNotFound is returned for operations on an unknown node.
	ErrNodeNotFound = errors.New("node not found")
)

// Document is a thread-safe, in-memory document. Every mutation is delivered
// to the listener as a single Change.
type Document struct {
	mu       sync.RWMutex
	nodes    map[string]*Node
	listener func(Change)
}

// New creates an empty document.
func New() *Document {
	return &Document{nodes: make(map[string]*Node)}
}

// OnChange sets the listener, replacing any previous one. The listener is
// called synchronously, outside the document's lock.
func (d *Document) OnChange(fn func(Change)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listener = fn
}

// Get returns a copy of the node with id.
func (d *Document) Get(id string) (*Node, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n, ok := d.nodes[id]
	if !ok {
		return nil, false
	}
	c := *n
	return &c, true
}

// Nodes returns copies of all nodes sorted by id.
func (d *Document) Nodes() []*Node {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*Node, 0, len(d.nodes))
	for _, n := range d.nodes {
		c := *n
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Create adds nodes. Nothing is added when any id is taken.
func (d *Document) Create(nodes ...*Node) error {
	d.mu.Lock()
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if _, ok := d.nodes[n.ID]; ok || seen[n.ID] {
			d.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrNodeExists, n.ID)
		}
		seen[n.ID] = true
	}
	change := Change{}
	for _, n := range nodes {
		c := *n
		d.nodes[n.ID] = &c
		change.Created = append(change.Created, &c)
	}
	listener := d.listener
	d.mu.Unlock()

	notify(listener, change)
	return nil
}

// Update replaces existing nodes. A node whose type changed is reported as
// deleted and created again.
func (d *Document) Update(nodes ...*Node) error {
	d.mu.Lock()
	for _, n := range nodes {
		if _, ok := d.nodes[n.ID]; !ok {
			d.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrNodeNotFound, n.ID)
		}
	}
	change := Change{}
	for _, n := range nodes {
		prev := d.nodes[n.ID]
		c := *n
		d.nodes[n.ID] = &c
		if prev.Type != c.Type {
			change.Deleted = append(change.Deleted, prev)
			change.Created = append(change.Created, &c)
			continue
		}
		change.Updated = append(change.Updated, &c)
	}
	listener := d.listener
	d.mu.Unlock()

	notify(listener, change)
	return nil
}

// Delete removes nodes by id.
func (d *Document) Delete(ids ...string) error {
	d.mu.Lock()
	for _, id := range ids {
		if _, ok := d.nodes[id]; !ok {
			d.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
		}
	}
	change := Change{}
	for _, id := range ids {
		change.Deleted = append(change.Deleted, d.nodes[id])
		delete(d.nodes, id)
	}
	listener := d.listener
	d.mu.Unlock()

	notify(listener, change)
	return nil
}

func notify(listener func(Change), change Change) {
	if listener != nil && !change.Empty() {
		listener(change)
	}
}
