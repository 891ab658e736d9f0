package node

import (
	"sync"
	"sync/atomic"

	"github.com/vk/cellgrid/internal/expr"
)

// Cell is a computational document node. Its ID doubles as the name other
// cells use to read its value.
type Cell struct {
	// ID is the unique identifier, and the name the cell exports.
	ID string
	// Language selects the execution context for external code. Empty for
	// plain local expressions.
	Language string
	// Source is the cell's expression text.
	Source string
	// Code is the external source handed to the language context.
	Code string
	// Inline marks cells embedded in running text.
	Inline bool

	// Expr is the parsed Source. It is nil when Source does not parse, in
	// which case Errors holds the syntax diagnostics.
	Expr *expr.Expression

	// Value is the last successfully computed native value.
	Value any
	// Errors maps a 1-based source line, or 0, to a diagnostic.
	Errors map[int]string
	// Stale is set when an upstream node failed and Value was not
	// recomputed.
	Stale bool
	// Computed is set once the cell has evaluated successfully.
	Computed bool

	// --- Internal state management ---

	// state is the lifecycle state, managed atomically.
	state atomic.Int32
	// generation counts how often the cell was dirtied; a result computed for
	// an older generation is discarded.
	generation atomic.Uint64
	// teardownOnce ensures deregistration runs exactly once.
	teardownOnce sync.Once
}

// NewCell creates a registered cell.
func NewCell(id, language, source, code string) *Cell {
	c := &Cell{ID: id, Language: language, Source: source, Code: code}
	c.SetState(Registered)
	return c
}

// SetState atomically sets the cell's lifecycle state.
func (c *Cell) SetState(s State) {
	c.state.Store(int32(s))
}

// GetState atomically retrieves the cell's lifecycle state.
func (c *Cell) GetState() State {
	return State(c.state.Load())
}

// Generation returns the current dirty generation.
func (c *Cell) Generation() uint64 {
	return c.generation.Load()
}

// Touch starts a new generation and returns it.
func (c *Cell) Touch() uint64 {
	return c.generation.Add(1)
}

// Failed reports whether the cell holds errors.
func (c *Cell) Failed() bool {
	return len(c.Errors) > 0
}

// Teardown executes f exactly once, making it safe to call multiple times.
func (c *Cell) Teardown(f func()) {
	c.teardownOnce.Do(f)
}

// InputKind distinguishes the user controls that feed values into the graph.
type InputKind int

const (
	// SelectInput picks one value from a list of options.
	SelectInput InputKind = iota
	// RangeInput picks a number from a range (a slider).
	RangeInput
)

func (k InputKind) String() string {
	switch k {
	case SelectInput:
		return "select"
	case RangeInput:
		return "range"
	}
	return "unknown"
}

// Input is a user-controlled node exposing a named value.
type Input struct {
	ID string
	// Name is the variable the input binds. Empty while unbound.
	Name  string
	Kind  InputKind
	Value any
}

// State is the lifecycle state of a cell.
type State int32

const (
	// Unregistered cells are not tracked by the scheduler.
	Unregistered State = iota
	// Registered cells are tracked and clean.
	Registered
	// Dirty cells wait for the next pass.
	Dirty
	// Evaluating cells have a call in flight.
	Evaluating
	// Evaluated cells hold a fresh value.
	Evaluated
	// Errored cells hold errors from their last evaluation.
	Errored
)

func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Registered:
		return "registered"
	case Dirty:
		return "dirty"
	case Evaluating:
		return "evaluating"
	case Evaluated:
		return "evaluated"
	case Errored:
		return "errored"
	}
	return "unknown"
}
