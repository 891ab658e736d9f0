package dispatch

import (
	"context"
	"fmt"

	"github.com/vk/cellgrid/internal/ctxlog"
	"github.com/vk/cellgrid/internal/execctx"
	"github.com/vk/cellgrid/internal/expr"
	"github.com/vk/cellgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

const (
	// CallExternal is the function name of an external-cell call.
	CallExternal = "call"
	// CallChunk is the function name of a chunk run.
	CallChunk = "run"
)

// Request is one evaluation of a cell.
type Request struct {
	CellID string
	// Language is the cell's declared language, required for external calls.
	Language string
	// SourceCode is the external code handed to the language context.
	SourceCode string
	Expr       *expr.Expression
	// Values holds the native values of the names the expression reads.
	Values map[string]any
}

// Evaluator is implemented by a native context that can evaluate source with
// extra functions shadowing its own. Function calls nested inside an
// expression reach other contexts through these functions.
type Evaluator interface {
	Evaluate(ctx context.Context, source string, args map[string]any, functions map[string]function.Function) (*execctx.Result, error)
}

// Router dispatches requests to execution contexts.
type Router struct {
	contexts *execctx.Registry
	native   string
}

// New creates a router over the registry. native names the context that
// shares the engine's value representation; calls to it are not packed.
func New(contexts *execctx.Registry, native string) *Router {
	return &Router{contexts: contexts, native: native}
}

// Native returns the name of the native context.
func (r *Router) Native() string { return r.native }

// Evaluate computes the value of a request's expression.
func (r *Router) Evaluate(ctx context.Context, req *Request) (any, error) {
	if req.Expr == nil || req.Expr.Syntax == nil {
		return nil, nil
	}

	call := req.Expr.Call
	switch {
	case call == nil:
		return r.evaluateLocal(ctx, req, req.Expr.Source)
	case call.Name == CallExternal:
		return r.callExternal(ctx, req, call)
	case call.Name == CallChunk:
		return nil, ErrNotImplemented
	}
	return r.callFunction(ctx, req, call)
}

// Depends asks the context for language which names code reads.
func (r *Router) Depends(ctx context.Context, cellID, language, code string) ([]string, error) {
	c, err := r.languageContext(cellID, language)
	if err != nil {
		return nil, err
	}
	names, err := c.Depends(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("context %q: %w", c.Name(), err)
	}
	return names, nil
}

func (r *Router) callExternal(ctx context.Context, req *Request, call *expr.Call) (any, error) {
	c, err := r.languageContext(req.CellID, req.Language)
	if err != nil {
		return nil, err
	}
	opts := r.options(c)
	logger := ctxlog.FromContext(ctx)

	for _, arg := range call.Args {
		if arg.Name == "" {
			logger.Warn("Dropping unnamed argument of external call.", "cell", req.CellID, "argument", arg.Source)
		}
	}
	names := call.Names()
	args := make(map[string]any, len(names))
	for _, name := range names {
		v, err := r.prepare(req.Values[name], opts)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
		args[name] = v
	}

	logger.Debug("Dispatching external call.", "cell", req.CellID, "context", c.Name(), "args", names)
	res, err := c.Call(ctx, req.SourceCode, args, opts)
	return unwrap(c, res, err, opts)
}

func (r *Router) callFunction(ctx context.Context, req *Request, call *expr.Call) (any, error) {
	c, ok := r.contexts.Lookup(call.Name)
	if !ok {
		return nil, &UnresolvedFunctionError{Name: call.Name}
	}

	args := make([]any, len(call.Args))
	for i, arg := range call.Args {
		v, err := r.evaluateLocal(ctx, req, arg.Source)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return r.invoke(ctx, req, c, call.Name, args)
}

// invoke calls a function of c with native arguments.
func (r *Router) invoke(ctx context.Context, req *Request, c execctx.Context, name string, args []any) (any, error) {
	opts := r.options(c)
	prepared := make([]any, len(args))
	for i, v := range args {
		p, err := r.prepare(v, opts)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		prepared[i] = p
	}

	ctxlog.FromContext(ctx).Debug("Dispatching function call.", "cell", req.CellID, "context", c.Name(), "function", name)
	res, err := c.CallFunction(ctx, name, prepared, opts)
	return unwrap(c, res, err, opts)
}

// evaluateLocal evaluates source with the native context.
func (r *Router) evaluateLocal(ctx context.Context, req *Request, source string) (any, error) {
	c, ok := r.contexts.Get(r.native)
	if !ok {
		return nil, &ConfigError{CellID: req.CellID, Reason: fmt.Sprintf("native context %q is not registered", r.native)}
	}
	opts := execctx.Options{Pack: false}

	ev, ok := c.(Evaluator)
	if !ok {
		res, err := c.Call(ctx, source, req.Values, opts)
		return unwrap(c, res, err, opts)
	}
	res, err := ev.Evaluate(ctx, source, req.Values, r.routed(ctx, req))
	return unwrap(c, res, err, opts)
}

// routed returns stand-ins for the functions of the request's expression
// that the native context must not answer itself: those another context
// provides first in registry order, and those no context provides.
func (r *Router) routed(ctx context.Context, req *Request) map[string]function.Function {
	if req.Expr == nil {
		return nil
	}
	var functions map[string]function.Function
	for _, name := range req.Expr.Functions {
		if name == CallExternal || name == CallChunk {
			continue
		}
		c, ok := r.contexts.Lookup(name)
		if ok && c.Name() == r.native {
			continue
		}
		if functions == nil {
			functions = make(map[string]function.Function)
		}
		if !ok {
			functions[name] = unresolved(name)
			continue
		}
		functions[name] = r.forward(ctx, req, c, name)
	}
	return functions
}

// forward wraps a function of c as a cty function.
func (r *Router) forward(ctx context.Context, req *Request, c execctx.Context, name string) function.Function {
	return function.New(&function.Spec{
		VarParam: &function.Parameter{
			Name:             "args",
			Type:             cty.DynamicPseudoType,
			AllowNull:        true,
			AllowDynamicType: true,
		},
		Type: function.StaticReturnType(cty.DynamicPseudoType),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			native := make([]any, len(args))
			for i, arg := range args {
				v, err := value.FromCty(arg)
				if err != nil {
					return cty.NilVal, fmt.Errorf("argument %d: %w", i, err)
				}
				native[i] = v
			}
			out, err := r.invoke(ctx, req, c, name, native)
			if err != nil {
				return cty.NilVal, err
			}
			return value.ToCty(out)
		},
	})
}

func unresolved(name string) function.Function {
	return function.New(&function.Spec{
		VarParam: &function.Parameter{Name: "args", Type: cty.DynamicPseudoType, AllowNull: true, AllowDynamicType: true},
		Type:     function.StaticReturnType(cty.DynamicPseudoType),
		Impl: func([]cty.Value, cty.Type) (cty.Value, error) {
			return cty.NilVal, &UnresolvedFunctionError{Name: name}
		},
	})
}

func (r *Router) languageContext(cellID, language string) (execctx.Context, error) {
	if language == "" {
		return nil, &ConfigError{CellID: cellID, Reason: "external call requires the cell to declare a language"}
	}
	c, ok := r.contexts.Get(language)
	if !ok {
		return nil, &ConfigError{CellID: cellID, Reason: fmt.Sprintf("no execution context registered for language %q", language)}
	}
	return c, nil
}

func (r *Router) options(c execctx.Context) execctx.Options {
	return execctx.Options{Pack: c.Name() != r.native}
}

func (r *Router) prepare(v any, opts execctx.Options) (any, error) {
	if !opts.Pack {
		return v, nil
	}
	return value.Pack(v)
}

// unwrap turns a context result into a value or an error. Errors reported by
// the context fail with the exact line map.
func unwrap(c execctx.Context, res *execctx.Result, err error, opts execctx.Options) (any, error) {
	if err != nil {
		return nil, fmt.Errorf("context %q: %w", c.Name(), err)
	}
	if res == nil {
		res = &execctx.Result{}
	}
	if res.Failed() {
		return nil, &execctx.EvalError{Errors: res.Errors}
	}
	if !opts.Pack {
		return res.Output, nil
	}
	out, err := value.Unpack(res.Output)
	if err != nil {
		return nil, fmt.Errorf("context %q returned an invalid value: %w", c.Name(), err)
	}
	return out, nil
}
