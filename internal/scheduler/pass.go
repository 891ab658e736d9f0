package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vk/cellgrid/internal/ctxlog"
	"github.com/vk/cellgrid/internal/dag"
	"github.com/vk/cellgrid/internal/dispatch"
	"github.com/vk/cellgrid/internal/execctx"
	"github.com/vk/cellgrid/internal/node"
)

// Report is the payload of the "updated" event, emitted once per pass.
type Report struct {
	PassID string
	// Evaluated, Errored and Stale list the cells by their final outcome in
	// the pass, sorted.
	Evaluated []string
	Errored   []string
	Stale     []string
	Rounds    int
	Duration  time.Duration
}

type outcome int

const (
	succeeded outcome = iota
	failed
	stale
	// deferred nodes stay dirty and are picked up by a later round.
	deferred
)

type pass struct {
	id       string
	rounds   int
	outcomes map[string]outcome
}

func (p *pass) report(start time.Time) Report {
	r := Report{PassID: p.id, Rounds: p.rounds, Duration: time.Since(start)}
	for id, out := range p.outcomes {
		switch out {
		case succeeded:
			r.Evaluated = append(r.Evaluated, id)
		case failed:
			r.Errored = append(r.Errored, id)
		case stale:
			r.Stale = append(r.Stale, id)
		}
	}
	sort.Strings(r.Evaluated)
	sort.Strings(r.Errored)
	sort.Strings(r.Stale)
	return r
}

// result is what an evaluation goroutine reports back.
type result struct {
	cell       *node.Cell
	generation uint64
	value      any
	err        error
}

// round is the bookkeeping of one topological walk.
type round struct {
	order    []string
	waiting  map[string]int
	readers  map[string][]string
	outcomes map[string]outcome
	ready    []string
}

func (r *round) complete(id string, out outcome) {
	r.outcomes[id] = out
	for _, reader := range r.readers[id] {
		r.waiting[reader]--
		if r.waiting[reader] == 0 {
			r.ready = append(r.ready, reader)
		}
	}
}

// runPass runs rounds until nothing is dirty, then emits the report.
func (s *Scheduler) runPass() {
	defer s.passes.Done()

	start := time.Now()
	p := &pass{id: uuid.NewString(), outcomes: make(map[string]outcome)}
	ctx := ctxlog.With(s.ctx, "pass", p.id)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Pass started.")

	for {
		s.mu.Lock()
		if s.closed || len(s.dirty) == 0 {
			s.mu.Unlock()
			break
		}
		dirty := make([]string, 0, len(s.dirty))
		for name := range s.dirty {
			dirty = append(dirty, name)
		}
		s.dirty = make(map[string]struct{})
		s.mu.Unlock()

		sort.Strings(dirty)
		p.rounds++
		s.round(ctx, p, dirty)
	}

	report := p.report(start)
	logger.Debug("Pass finished.",
		"rounds", report.Rounds,
		"evaluated", len(report.Evaluated),
		"errored", len(report.Errored),
		"stale", len(report.Stale),
		"duration", report.Duration,
	)
	if s.onUpdated != nil {
		s.onUpdated(report)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if !s.closed && len(s.dirty) > 0 && s.timer == nil {
		// Edits made while the report was delivered.
		s.startPass()
		return
	}
	if s.idle() || s.closed {
		s.markIdle()
	}
}

// round evaluates the closure of dirty in topological order. Nodes whose
// in-round predecessors have all settled are issued together.
func (s *Scheduler) round(ctx context.Context, p *pass, dirty []string) {
	s.mu.Lock()
	order, cycles := s.graph.Order(dirty)
	for _, members := range cycles {
		msg := (&dag.CycleError{Members: members}).Error()
		for _, id := range members {
			cell, ok := s.cells[id]
			if !ok {
				continue
			}
			cell.Errors = map[int]string{0: msg}
			cell.Stale = false
			cell.SetState(node.Errored)
			s.publish(cell)
			p.outcomes[id] = failed
		}
		s.logger.Debug("Cycle detected.", "members", members)
	}

	r := &round{
		order:    order,
		waiting:  make(map[string]int, len(order)),
		readers:  make(map[string][]string, len(order)),
		outcomes: make(map[string]outcome, len(order)),
	}
	inRound := make(map[string]bool, len(order))
	for _, id := range order {
		inRound[id] = true
	}
	for _, id := range order {
		for _, name := range s.graph.Reads(id) {
			if inRound[name] {
				r.waiting[id]++
				r.readers[name] = append(r.readers[name], id)
			}
		}
		if r.waiting[id] == 0 {
			r.ready = append(r.ready, id)
		}
	}
	s.mu.Unlock()

	results := make(chan result)
	inflight := 0
	for len(r.ready) > 0 || inflight > 0 {
		for len(r.ready) > 0 {
			id := r.ready[0]
			r.ready = r.ready[1:]

			s.mu.Lock()
			req, cell, gen, out := s.prepare(p, r, id)
			s.mu.Unlock()

			if req == nil {
				r.complete(id, out)
				continue
			}
			inflight++
			go func() {
				v, err := s.evaluate(ctx, req)
				results <- result{cell: cell, generation: gen, value: v, err: err}
			}()
		}
		if inflight == 0 {
			break
		}

		res := <-results
		inflight--
		s.mu.Lock()
		out := s.integrate(p, res)
		s.mu.Unlock()
		r.complete(res.cell.ID, out)
	}
}

// evaluate runs one request. A panicking context fails the cell instead of
// the process.
func (s *Scheduler) evaluate(ctx context.Context, req *dispatch.Request) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("evaluation of %q panicked: %v", req.CellID, r)
		}
	}()
	return s.router.Evaluate(ctx, req)
}

// prepare decides what happens to a ready node. It returns a request when
// the node must be evaluated, otherwise the node's outcome. Callers hold s.mu.
func (s *Scheduler) prepare(p *pass, r *round, id string) (*dispatch.Request, *node.Cell, uint64, outcome) {
	cell, ok := s.cells[id]
	if !ok {
		return nil, nil, 0, deferred
	}
	if cell.GetState() == node.Evaluating {
		s.dirty[id] = struct{}{}
		return nil, nil, 0, deferred
	}
	if cell.Expr == nil {
		s.fail(p, cell, cell.Errors)
		return nil, nil, 0, failed
	}
	if missing := s.graph.Unresolved(id); len(missing) > 0 {
		s.fail(p, cell, map[int]string{0: "unresolved name: " + strings.Join(missing, ", ")})
		return nil, nil, 0, failed
	}

	values := make(map[string]any)
	for _, name := range s.graph.Reads(id) {
		if out, ok := r.outcomes[name]; ok {
			switch out {
			case failed, stale:
				s.markStale(p, cell)
				return nil, nil, 0, stale
			case deferred:
				return nil, nil, 0, deferred
			}
		}
		if dep, ok := s.cells[name]; ok {
			if dep.Failed() || dep.Stale {
				s.markStale(p, cell)
				return nil, nil, 0, stale
			}
			values[name] = dep.Value
			continue
		}
		values[name] = s.values[name]
	}

	cell.SetState(node.Evaluating)
	s.publish(cell)
	req := &dispatch.Request{
		CellID:     cell.ID,
		Language:   cell.Language,
		SourceCode: cell.Code,
		Expr:       cell.Expr,
		Values:     values,
	}
	return req, cell, cell.Generation(), succeeded
}

// integrate stores an evaluation result. Callers hold s.mu.
func (s *Scheduler) integrate(p *pass, res result) outcome {
	cell := res.cell
	if s.cells[cell.ID] != cell {
		return deferred
	}
	if cell.Generation() != res.generation {
		// Redirtied while in flight; the next round evaluates it again.
		cell.SetState(node.Dirty)
		s.publish(cell)
		s.logger.Debug("Discarded stale result.", "cell", cell.ID)
		return deferred
	}
	if res.err != nil {
		s.fail(p, cell, execctx.Lines(res.err))
		s.logger.Debug("Cell evaluation failed.", "cell", cell.ID, "error", res.err)
		return failed
	}

	cell.Value = res.value
	cell.Errors = nil
	cell.Stale = false
	cell.Computed = true
	cell.SetState(node.Evaluated)
	s.publish(cell)
	p.outcomes[cell.ID] = succeeded
	return succeeded
}

func (s *Scheduler) fail(p *pass, cell *node.Cell, errs map[int]string) {
	cell.Errors = errs
	cell.Stale = false
	cell.SetState(node.Errored)
	s.publish(cell)
	p.outcomes[cell.ID] = failed
}

// markStale keeps the cell's value and flags it as computed from a failed
// upstream.
func (s *Scheduler) markStale(p *pass, cell *node.Cell) {
	cell.Stale = true
	switch {
	case cell.Failed():
		cell.SetState(node.Errored)
	case cell.Computed:
		cell.SetState(node.Evaluated)
	default:
		cell.SetState(node.Registered)
	}
	s.publish(cell)
	p.outcomes[cell.ID] = stale
}
