package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vk/cellgrid/internal/ctxlog"
	"github.com/vk/cellgrid/internal/dag"
	"github.com/vk/cellgrid/internal/dispatch"
	"github.com/vk/cellgrid/internal/inmemorystore"
	"github.com/vk/cellgrid/internal/node"
	"github.com/vk/cellgrid/internal/nodestore"
)

// DefaultIdleWait is how long the scheduler waits for edits to stop before
// running a debounced pass.
const DefaultIdleWait = 500 * time.Millisecond

var (
	// ErrClosed is returned by mutations after Close.
	ErrClosed = errors.New("scheduler is closed")
	// ErrCellExists is returned when registering a cell id twice.
	ErrCellExists = errors.New("cell already registered")
	// ErrUnknownCell is returned for operations on an unregistered cell.
	ErrUnknownCell = errors.New("cell is not registered")
	// ErrInputExists is returned when registering an input id twice.
	ErrInputExists = errors.New("input already registered")
	// ErrUnknownInput is returned for operations on an unregistered input.
	ErrUnknownInput = errors.New("input is not registered")
	// ErrNameTaken is returned when an exogenous value would shadow a cell.
	ErrNameTaken = errors.New("name is exported by a cell")
)

// Mode selects how a mutation schedules its pass.
type Mode int

const (
	// Debounced waits for the idle window, restarting it on every edit.
	Debounced Mode = iota
	// PropagateImmediately starts a pass now.
	PropagateImmediately
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithIdleWait sets the debounce window.
func WithIdleWait(d time.Duration) Option {
	return func(s *Scheduler) { s.idleWait = d }
}

// WithStore publishes cell state to store instead of a private one.
func WithStore(store nodestore.Store) Option {
	return func(s *Scheduler) { s.store = store }
}

// WithOnUpdated registers the handler of the "updated" event. It is called
// from the pass goroutine once per pass.
func WithOnUpdated(fn func(Report)) Option {
	return func(s *Scheduler) { s.onUpdated = fn }
}

// Scheduler drives reactive evaluation.
type Scheduler struct {
	router    *dispatch.Router
	store     nodestore.Store
	idleWait  time.Duration
	onUpdated func(Report)

	// ctx is handed to every context call and cancelled only by Close.
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu       sync.Mutex
	graph    *dag.Graph
	cells    map[string]*node.Cell
	inputs   map[string]*node.Input
	values   map[string]any    // exogenous name -> value
	binders  map[string]string // exogenous name -> input id
	dirty    map[string]struct{}
	timer    *time.Timer
	timerSeq uint64 // identifies the armed timer; older firings do nothing
	running  bool
	closed   bool
	// settled is closed whenever nothing is dirty, scheduled or running.
	settled chan struct{}

	passes    sync.WaitGroup
	closeOnce sync.Once
}

// New creates a scheduler dispatching through router. The logger of ctx is
// used for everything the scheduler does in the background.
func New(ctx context.Context, router *dispatch.Router, opts ...Option) *Scheduler {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Scheduler{
		router:   router,
		idleWait: DefaultIdleWait,
		ctx:      runCtx,
		cancel:   cancel,
		logger:   ctxlog.FromContext(ctx),
		graph:    dag.New(),
		cells:    make(map[string]*node.Cell),
		inputs:   make(map[string]*node.Input),
		values:   make(map[string]any),
		binders:  make(map[string]string),
		dirty:    make(map[string]struct{}),
		settled:  make(chan struct{}),
	}
	close(s.settled)
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = inmemorystore.New()
	}
	return s
}

// Store returns the store the scheduler publishes to.
func (s *Scheduler) Store() nodestore.Store { return s.store }

// Update schedules a debounced pass.
func (s *Scheduler) Update() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedule(Debounced)
}

// Settle blocks until no pass is scheduled or running and nothing is dirty.
func (s *Scheduler) Settle(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.idle() {
			s.mu.Unlock()
			return nil
		}
		ch := s.settled
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Get returns the current state of a cell.
func (s *Scheduler) Get(id string) (nodestore.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cell, ok := s.cells[id]
	if !ok {
		return nodestore.Entry{}, false
	}
	return entryOf(cell), true
}

// Cycles reports the first dependency cycle in the graph, if any.
func (s *Scheduler) Cycles() error {
	return s.graph.DetectCycles()
}

// Close stops the debounce timer, cancels in-flight calls and waits for the
// running pass to finish. It is safe to call more than once.
func (s *Scheduler) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.timerSeq++
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.mu.Unlock()

		s.cancel()
		s.passes.Wait()

		s.mu.Lock()
		s.markIdle()
		s.mu.Unlock()
		s.logger.Debug("Scheduler closed.")
	})
	return nil
}

// schedule arranges for a pass according to mode. Callers hold s.mu.
func (s *Scheduler) schedule(mode Mode) {
	if s.closed {
		return
	}
	s.markBusy()

	s.timerSeq++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	if mode == PropagateImmediately {
		s.startPass()
		return
	}

	seq := s.timerSeq
	s.timer = time.AfterFunc(s.idleWait, func() { s.fire(seq) })
}

func (s *Scheduler) fire(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.timerSeq || s.closed {
		return
	}
	s.timer = nil
	s.startPass()
	if s.idle() {
		s.markIdle()
	}
}

// startPass launches the pass goroutine unless one is running. A running
// pass picks up new dirty names in its next round. Callers hold s.mu.
func (s *Scheduler) startPass() {
	if s.running || len(s.dirty) == 0 {
		return
	}
	s.running = true
	s.passes.Add(1)
	go s.runPass()
}

func (s *Scheduler) idle() bool {
	return !s.running && s.timer == nil && len(s.dirty) == 0
}

func (s *Scheduler) markBusy() {
	select {
	case <-s.settled:
		s.settled = make(chan struct{})
	default:
	}
}

func (s *Scheduler) markIdle() {
	select {
	case <-s.settled:
	default:
		close(s.settled)
	}
}

// markDirty queues name for the next round. The cell itself and every
// downstream cell still in flight start a new generation, so their late
// results are discarded. Callers hold s.mu.
func (s *Scheduler) markDirty(name string) {
	s.dirty[name] = struct{}{}
	if cell, ok := s.cells[name]; ok {
		cell.Touch()
		if cell.GetState() != node.Evaluating {
			cell.SetState(node.Dirty)
		}
	}
	for _, id := range s.graph.Downstream(name) {
		if cell, ok := s.cells[id]; ok && cell.GetState() == node.Evaluating {
			cell.Touch()
		}
	}
}

// publish writes a cell's state to the store. Callers hold s.mu.
func (s *Scheduler) publish(cell *node.Cell) {
	if err := s.store.Put(s.ctx, cell.ID, entryOf(cell)); err != nil {
		s.logger.Warn("Failed to publish cell state.", "cell", cell.ID, "error", err)
	}
}

func entryOf(cell *node.Cell) nodestore.Entry {
	return nodestore.Entry{
		State:  cell.GetState(),
		Value:  cell.Value,
		Errors: cell.Errors,
		Stale:  cell.Stale,
	}
}
