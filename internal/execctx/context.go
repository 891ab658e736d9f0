package execctx

import "context"

// Options controls how a context exchanges values with the engine.
type Options struct {
	// Pack is true when arguments arrive as value packages and the output
	// must be returned as one. It is false only for the engine's own native
	// context, which shares the engine's value representation.
	Pack bool
}

// Result is what every context operation resolves to. A non-empty Errors
// map means the evaluation failed; line 0 holds errors not tied to a line.
type Result struct {
	Errors map[int]string
	Output any
}

// Failed reports whether the result carries errors.
func (r *Result) Failed() bool {
	return r != nil && len(r.Errors) > 0
}

// Context is a language runtime that can evaluate cell code.
//
// Implementations must be safe for concurrent use: the scheduler issues calls
// for independent cells from separate goroutines.
type Context interface {
	// Name identifies the context; cells select it through their language.
	Name() string
	// Call evaluates source as a function body with args bound by name.
	Call(ctx context.Context, source string, args map[string]any, opts Options) (*Result, error)
	// Run evaluates source at the context's top level.
	Run(ctx context.Context, source string) (*Result, error)
	// CallFunction invokes a named function with positional arguments.
	CallFunction(ctx context.Context, name string, args []any, opts Options) (*Result, error)
	// HasFunction reports whether the context provides name.
	HasFunction(name string) bool
	// Depends returns the free names source reads.
	Depends(ctx context.Context, source string) ([]string, error)
}
