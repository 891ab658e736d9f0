package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vk/cellgrid/internal/dispatch"
	"github.com/vk/cellgrid/internal/document"
	"github.com/vk/cellgrid/internal/execctx"
	"github.com/vk/cellgrid/internal/expr"
	"github.com/vk/cellgrid/internal/node"
)

// CellSpec describes a computational cell.
type CellSpec struct {
	ID       string
	Language string
	// Source is the cell expression. A language cell with an empty source
	// gets an implicit call over the names its code reads.
	Source string
	// Code is the external code for language cells.
	Code   string
	Inline bool
}

// InputSpec describes an input node.
type InputSpec struct {
	ID    string
	Name  string
	Kind  node.InputKind
	Value any
}

// RegisterCell parses the cell, inserts it into the registry and the graph
// and schedules a debounced pass. Parse and configuration problems do not
// fail registration; they are recorded as the cell's errors.
func (s *Scheduler) RegisterCell(ctx context.Context, spec CellSpec) error {
	e, parseErr := s.parse(ctx, spec)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.cells[spec.ID]; ok {
		return fmt.Errorf("%w: %s", ErrCellExists, spec.ID)
	}

	cell := node.NewCell(spec.ID, spec.Language, spec.Source, spec.Code)
	cell.Inline = spec.Inline
	s.applyParse(cell, e, parseErr)
	s.cells[spec.ID] = cell

	if err := s.graph.AddExpression(spec.ID, references(e)); err != nil {
		delete(s.cells, spec.ID)
		return err
	}
	s.logger.Debug("Registered cell.", "cell", spec.ID, "reads", references(e))

	s.markDirty(spec.ID)
	s.publish(cell)
	s.schedule(Debounced)
	return nil
}

// UpdateCell re-parses a cell and swaps its graph edges atomically.
func (s *Scheduler) UpdateCell(ctx context.Context, spec CellSpec) error {
	e, parseErr := s.parse(ctx, spec)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	cell, ok := s.cells[spec.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCell, spec.ID)
	}

	cell.Language = spec.Language
	cell.Source = spec.Source
	cell.Code = spec.Code
	cell.Inline = spec.Inline
	s.applyParse(cell, e, parseErr)
	s.graph.ReplaceExpression(spec.ID, references(e))
	s.logger.Debug("Updated cell.", "cell", spec.ID, "reads", references(e))

	s.markDirty(spec.ID)
	s.publish(cell)
	s.schedule(Debounced)
	return nil
}

// DeregisterCell removes a cell from the registry, the graph and the store.
// Cells reading it see its name as unresolved.
func (s *Scheduler) DeregisterCell(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cell, ok := s.cells[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCell, id)
	}

	cell.Teardown(func() {
		delete(s.cells, id)
		s.graph.RemoveExpression(id)
		cell.Touch()
		cell.SetState(node.Unregistered)
		if err := s.store.Delete(s.ctx, id); err != nil {
			s.logger.Warn("Failed to drop cell state.", "cell", id, "error", err)
		}
		s.logger.Debug("Deregistered cell.", "cell", id)

		s.markDirty(id)
		s.schedule(Debounced)
	})
	return nil
}

// RegisterInput tracks an input and binds its name when it has one.
func (s *Scheduler) RegisterInput(spec InputSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.inputs[spec.ID]; ok {
		return fmt.Errorf("%w: %s", ErrInputExists, spec.ID)
	}
	in := &node.Input{ID: spec.ID, Name: spec.Name, Kind: spec.Kind, Value: spec.Value}
	s.inputs[spec.ID] = in
	if in.Name != "" {
		if err := s.bind(in.Name, in.ID, in.Value); err != nil {
			delete(s.inputs, spec.ID)
			return err
		}
	}
	s.schedule(Debounced)
	return nil
}

// RenameInput unbinds the old name, leaving it undefined, then binds the new
// one and propagates immediately. An empty name leaves the input unbound.
func (s *Scheduler) RenameInput(id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.inputs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInput, id)
	}
	if in.Name == name {
		return nil
	}
	if in.Name != "" {
		s.unbind(in.Name, id)
	}
	in.Name = name
	if name != "" {
		if err := s.bind(name, id, in.Value); err != nil {
			in.Name = ""
			s.schedule(PropagateImmediately)
			return err
		}
	}
	s.schedule(PropagateImmediately)
	return nil
}

// SetInputValue records a new input value and propagates it immediately.
func (s *Scheduler) SetInputValue(id string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.inputs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInput, id)
	}
	in.Value = v
	if in.Name == "" || s.binders[in.Name] != id {
		return nil
	}
	s.values[in.Name] = v
	s.markDirty(in.Name)
	s.schedule(PropagateImmediately)
	return nil
}

// DeregisterInput unbinds the input's name and forgets it.
func (s *Scheduler) DeregisterInput(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.inputs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInput, id)
	}
	delete(s.inputs, id)
	if in.Name != "" {
		s.unbind(in.Name, id)
		s.schedule(PropagateImmediately)
	}
	return nil
}

// SetValue binds an exogenous name to v. Names exported by cells cannot be
// overridden.
func (s *Scheduler) SetValue(name string, v any, mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.cells[name]; ok {
		return fmt.Errorf("%w: %s", ErrNameTaken, name)
	}
	if id, ok := s.binders[name]; ok {
		s.inputs[id].Value = v
	}
	s.values[name] = v
	s.graph.AddName(name)
	s.markDirty(name)
	s.schedule(mode)
	return nil
}

// Value returns the value bound to an exogenous name.
func (s *Scheduler) Value(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	return v, ok
}

// Apply consumes a batch of document events. Every event is applied; the
// errors of failed events are joined.
func (s *Scheduler) Apply(ctx context.Context, change document.Change) error {
	var errs []error
	for _, n := range change.Deleted {
		switch {
		case n.Type.IsComputational():
			errs = append(errs, s.DeregisterCell(n.ID))
		case n.Type.IsInput():
			errs = append(errs, s.DeregisterInput(n.ID))
		}
	}
	for _, n := range change.Created {
		switch {
		case n.Type.IsComputational():
			errs = append(errs, s.RegisterCell(ctx, cellSpec(n)))
		case n.Type.IsInput():
			errs = append(errs, s.RegisterInput(inputSpec(n)))
		}
	}
	for _, n := range change.Updated {
		switch {
		case n.Type.IsComputational():
			errs = append(errs, s.UpdateCell(ctx, cellSpec(n)))
		case n.Type.IsInput():
			errs = append(errs, s.updateInput(n))
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) updateInput(n *document.Node) error {
	s.mu.Lock()
	in, ok := s.inputs[n.ID]
	var name string
	if ok {
		name = in.Name
	}
	s.mu.Unlock()

	if !ok {
		return s.RegisterInput(inputSpec(n))
	}
	if name != n.Name {
		if err := s.RenameInput(n.ID, n.Name); err != nil {
			return err
		}
	}
	return s.SetInputValue(n.ID, n.Value)
}

func cellSpec(n *document.Node) CellSpec {
	return CellSpec{
		ID:       n.ID,
		Language: n.Language,
		Source:   n.Source,
		Code:     n.Code,
		Inline:   n.Type == document.InlineCell,
	}
}

func inputSpec(n *document.Node) InputSpec {
	kind := node.SelectInput
	if n.Type == document.RangeInput {
		kind = node.RangeInput
	}
	return InputSpec{ID: n.ID, Name: n.Name, Kind: kind, Value: n.Value}
}

// parse turns a cell spec into an expression. Language cells without a
// source get an implicit call(...) over the names their code reads, which
// needs the language context and so happens outside the lock.
func (s *Scheduler) parse(ctx context.Context, spec CellSpec) (*expr.Expression, error) {
	source := spec.Source
	if spec.Language != "" && strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(source), "=")) == "" {
		names, err := s.router.Depends(ctx, spec.ID, spec.Language, spec.Code)
		if err != nil {
			return nil, err
		}
		source = expr.CallSource(dispatch.CallExternal, names)
	}
	return expr.Parse(source)
}

// applyParse stores a parse result on the cell. Callers hold s.mu.
func (s *Scheduler) applyParse(cell *node.Cell, e *expr.Expression, err error) {
	cell.Expr = e
	if err == nil {
		cell.Errors = nil
		return
	}
	var syntaxErr *expr.SyntaxError
	if errors.As(err, &syntaxErr) {
		cell.Errors = syntaxErr.Errors
	} else {
		cell.Errors = execctx.Lines(err)
	}
	cell.Expr = nil
	cell.SetState(node.Errored)
	s.logger.Debug("Cell does not parse.", "cell", cell.ID, "error", err)
}

// bind exports name with an input's value. Callers hold s.mu.
func (s *Scheduler) bind(name, inputID string, v any) error {
	if _, ok := s.cells[name]; ok {
		return fmt.Errorf("%w: %s", ErrNameTaken, name)
	}
	s.binders[name] = inputID
	s.values[name] = v
	s.graph.AddName(name)
	s.markDirty(name)
	return nil
}

// unbind releases name from an input. Only the input currently bound to
// name releases it; another input carrying the same name then takes over,
// otherwise the name is left undefined. Callers hold s.mu.
func (s *Scheduler) unbind(name, inputID string) {
	if s.binders[name] != inputID {
		return
	}
	ids := make([]string, 0, len(s.inputs))
	for id, in := range s.inputs {
		if id != inputID && in.Name == name {
			ids = append(ids, id)
		}
	}
	if len(ids) > 0 {
		sort.Strings(ids)
		heir := s.inputs[ids[0]]
		s.binders[name] = heir.ID
		s.values[name] = heir.Value
		s.markDirty(name)
		return
	}
	delete(s.binders, name)
	delete(s.values, name)
	s.graph.RemoveName(name)
	s.markDirty(name)
}

func references(e *expr.Expression) []string {
	if e == nil {
		return nil
	}
	return e.References
}
