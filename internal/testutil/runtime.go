package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vk/cellgrid/internal/app"
	"github.com/vk/cellgrid/internal/execctx"
	"github.com/vk/cellgrid/internal/remotectx"
	"github.com/vk/cellgrid/internal/value"
)

// Runtime is an in-process stand-in for a remote language runtime. Its code
// is a single argument name whose value Call returns; functions are Go
// closures over unpacked arguments.
type Runtime struct {
	name      string
	functions map[string]func(args []any) (any, error)

	mu    sync.Mutex
	calls []string
}

// NewRuntime creates a runtime registered under name.
func NewRuntime(name string) *Runtime {
	return &Runtime{name: name, functions: make(map[string]func([]any) (any, error))}
}

// Func adds a function to the runtime.
func (r *Runtime) Func(name string, fn func(args []any) (any, error)) *Runtime {
	r.functions[name] = fn
	return r
}

// Connector returns an app option that answers every connection attempt
// for the runtime's name with r.
func (r *Runtime) Connector() app.Option {
	return app.WithConnector(func(_ context.Context, cfg remotectx.Config) (execctx.Context, error) {
		if cfg.Name != r.name {
			return nil, fmt.Errorf("no runtime named %q", cfg.Name)
		}
		return r, nil
	})
}

// Calls returns the operations the runtime served, in order.
func (r *Runtime) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *Runtime) record(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op)
}

// Name implements execctx.Context.
func (r *Runtime) Name() string { return r.name }

// Call implements execctx.Context.
func (r *Runtime) Call(_ context.Context, source string, args map[string]any, _ execctx.Options) (*execctx.Result, error) {
	r.record("call:" + source)
	out, ok := args[source]
	if !ok {
		return &execctx.Result{Errors: map[int]string{1: fmt.Sprintf("name '%s' is not defined", source)}}, nil
	}
	return &execctx.Result{Output: out}, nil
}

// Run implements execctx.Context.
func (r *Runtime) Run(context.Context, string) (*execctx.Result, error) {
	return &execctx.Result{Errors: map[int]string{0: "run is not supported"}}, nil
}

// CallFunction implements execctx.Context. Arguments arrive packed and the
// result is packed again.
func (r *Runtime) CallFunction(_ context.Context, name string, args []any, _ execctx.Options) (*execctx.Result, error) {
	r.record("function:" + name)
	fn, ok := r.functions[name]
	if !ok {
		return &execctx.Result{Errors: map[int]string{0: fmt.Sprintf("unknown function %s", name)}}, nil
	}
	native := make([]any, len(args))
	for i, arg := range args {
		v, err := value.Unpack(arg)
		if err != nil {
			return nil, err
		}
		native[i] = v
	}
	out, err := fn(native)
	if err != nil {
		return &execctx.Result{Errors: map[int]string{0: err.Error()}}, nil
	}
	p, err := value.Pack(out)
	if err != nil {
		return nil, err
	}
	return &execctx.Result{Output: p}, nil
}

// HasFunction implements execctx.Context.
func (r *Runtime) HasFunction(name string) bool {
	_, ok := r.functions[name]
	return ok
}

// Depends implements execctx.Context.
func (r *Runtime) Depends(_ context.Context, source string) ([]string, error) {
	return []string{source}, nil
}

// Functions returns the sorted function names.
func (r *Runtime) Functions() []string {
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
