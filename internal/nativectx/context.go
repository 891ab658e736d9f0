package nativectx

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/cellgrid/internal/ctxlog"
	"github.com/vk/cellgrid/internal/execctx"
	"github.com/vk/cellgrid/internal/expr"
	"github.com/vk/cellgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// DefaultName is the name the native context registers under.
const DefaultName = "go"

// Context evaluates HCL expressions in-process.
type Context struct {
	name      string
	functions map[string]function.Function

	mu      sync.RWMutex
	globals map[string]cty.Value
}

var _ execctx.Context = (*Context)(nil)

// Option configures a Context.
type Option func(*Context)

// WithName overrides the context name.
func WithName(name string) Option {
	return func(c *Context) { c.name = name }
}

// WithFunction adds or replaces a function.
func WithFunction(name string, fn function.Function) Option {
	return func(c *Context) { c.functions[name] = fn }
}

// New creates a native context with the default function table.
func New(opts ...Option) *Context {
	c := &Context{
		name:      DefaultName,
		functions: DefaultFunctions(),
		globals:   make(map[string]cty.Value),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements execctx.Context.
func (c *Context) Name() string { return c.name }

// HasFunction implements execctx.Context.
func (c *Context) HasFunction(name string) bool {
	_, ok := c.functions[name]
	return ok
}

// Call evaluates source with args bound as variables.
func (c *Context) Call(ctx context.Context, source string, args map[string]any, opts execctx.Options) (*execctx.Result, error) {
	return c.call(ctx, source, args, opts, nil)
}

// Evaluate is Call with native values and extra functions layered over the
// function table. The router uses it to route nested calls.
func (c *Context) Evaluate(ctx context.Context, source string, args map[string]any, functions map[string]function.Function) (*execctx.Result, error) {
	return c.call(ctx, source, args, execctx.Options{}, functions)
}

func (c *Context) call(ctx context.Context, source string, args map[string]any, opts execctx.Options, functions map[string]function.Function) (*execctx.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := ctxlog.FromContext(ctx).With("context", c.name)

	vars := c.snapshotGlobals()
	for name, arg := range args {
		v, err := c.importArg(arg, opts)
		if err != nil {
			return &execctx.Result{Errors: map[int]string{0: fmt.Sprintf("argument %q: %s", name, err)}}, nil
		}
		vars[name] = v
	}

	logger.Debug("Evaluating source.", "args", len(args), "pack", opts.Pack, "routed", len(functions))
	out, errs := c.evaluate(source, vars, nil, functions)
	if len(errs) > 0 {
		return &execctx.Result{Errors: errs}, nil
	}
	return c.exportResult(out, opts.Pack)
}

// Run evaluates source at the top level. Attributes assigned by a body
// become globals visible to later calls. The output is always packed.
func (c *Context) Run(ctx context.Context, source string) (*execctx.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Running source.", "context", c.name)

	assigned := make(map[string]cty.Value)
	out, errs := c.evaluate(source, c.snapshotGlobals(), assigned, nil)
	if len(errs) > 0 {
		return &execctx.Result{Errors: errs}, nil
	}

	c.mu.Lock()
	for name, v := range assigned {
		c.globals[name] = v
	}
	c.mu.Unlock()

	return c.exportResult(out, true)
}

// CallFunction invokes a function from the function table.
func (c *Context) CallFunction(ctx context.Context, name string, args []any, opts execctx.Options) (res *execctx.Result, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fn, ok := c.functions[name]
	if !ok {
		return &execctx.Result{Errors: map[int]string{0: fmt.Sprintf("function %q is not defined", name)}}, nil
	}

	ctyArgs := make([]cty.Value, len(args))
	for i, arg := range args {
		v, err := c.importArg(arg, opts)
		if err != nil {
			return &execctx.Result{Errors: map[int]string{0: fmt.Sprintf("%s: argument %d: %s", name, i, err)}}, nil
		}
		ctyArgs[i] = v
	}

	defer func() {
		if r := recover(); r != nil {
			res = &execctx.Result{Errors: map[int]string{0: fmt.Sprintf("%s: panic: %v", name, r)}}
			err = nil
		}
	}()

	ctxlog.FromContext(ctx).Debug("Calling function.", "context", c.name, "function", name, "args", len(args))
	out, callErr := fn.Call(ctyArgs)
	if callErr != nil {
		return &execctx.Result{Errors: map[int]string{0: fmt.Sprintf("%s: %s", name, callErr)}}, nil
	}
	return c.exportResult(out, opts.Pack)
}

// Depends returns the sorted free names source reads. Names assigned earlier
// in a body are not free for the attributes that follow.
func (c *Context) Depends(ctx context.Context, source string) ([]string, error) {
	if attrs, ok := parseBody(source); ok {
		assigned := make(map[string]struct{})
		free := make(map[string]struct{})
		for _, attr := range attrs {
			for _, t := range attr.Expr.Variables() {
				name := t.RootName()
				if _, ok := assigned[name]; !ok {
					free[name] = struct{}{}
				}
			}
			assigned[attr.Name] = struct{}{}
		}
		names := make([]string, 0, len(free))
		for name := range free {
			names = append(names, name)
		}
		sort.Strings(names)
		return names, nil
	}

	e, err := expr.Parse(source)
	if err != nil {
		return nil, err
	}
	return e.References, nil
}

func (c *Context) snapshotGlobals() map[string]cty.Value {
	c.mu.RLock()
	defer c.mu.RUnlock()

	vars := make(map[string]cty.Value, len(c.globals))
	for name, v := range c.globals {
		vars[name] = v
	}
	return vars
}

// evaluate runs source against vars. Body attributes are recorded in
// assigned when it is non-nil. Entries of extra shadow the function table.
func (c *Context) evaluate(source string, vars map[string]cty.Value, assigned map[string]cty.Value, extra map[string]function.Function) (cty.Value, map[int]string) {
	functions := c.functions
	if len(extra) > 0 {
		functions = make(map[string]function.Function, len(c.functions)+len(extra))
		for name, fn := range c.functions {
			functions[name] = fn
		}
		for name, fn := range extra {
			functions[name] = fn
		}
	}
	evalCtx := &hcl.EvalContext{Variables: vars, Functions: functions}

	if attrs, ok := parseBody(source); ok {
		out := cty.NullVal(cty.DynamicPseudoType)
		for _, attr := range attrs {
			v, diags := attr.Expr.Value(evalCtx)
			if diags.HasErrors() {
				return cty.NilVal, expr.DiagnosticLines(diags)
			}
			vars[attr.Name] = v
			if assigned != nil {
				assigned[attr.Name] = v
			}
			out = v
		}
		return out, nil
	}

	e, err := expr.Parse(source)
	if err != nil {
		return cty.NilVal, execctx.Lines(syntaxAsEval(err))
	}
	if e.Syntax == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	v, diags := e.Syntax.Value(evalCtx)
	if diags.HasErrors() {
		return cty.NilVal, expr.DiagnosticLines(diags)
	}
	return v, nil
}

func (c *Context) importArg(arg any, opts execctx.Options) (cty.Value, error) {
	if opts.Pack {
		native, err := value.Unpack(arg)
		if err != nil {
			return cty.NilVal, err
		}
		arg = native
	}
	return value.ToCty(arg)
}

func (c *Context) exportResult(out cty.Value, pack bool) (*execctx.Result, error) {
	native, err := value.FromCty(out)
	if err != nil {
		return &execctx.Result{Errors: map[int]string{0: err.Error()}}, nil
	}
	if !pack {
		return &execctx.Result{Output: native}, nil
	}
	pkg, err := value.Pack(native)
	if err != nil {
		return nil, err
	}
	return &execctx.Result{Output: pkg}, nil
}

// parseBody parses source as a body of attributes, returned in source
// order. It reports false when source is not a body without blocks.
func parseBody(source string) ([]*hclsyntax.Attribute, bool) {
	file, diags := hclsyntax.ParseConfig([]byte(source), "cell", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, false
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok || len(body.Blocks) > 0 || len(body.Attributes) == 0 {
		return nil, false
	}

	attrs := make([]*hclsyntax.Attribute, 0, len(body.Attributes))
	for _, attr := range body.Attributes {
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].SrcRange.Start.Byte < attrs[j].SrcRange.Start.Byte
	})
	return attrs, true
}

func syntaxAsEval(err error) error {
	if syntaxErr, ok := err.(*expr.SyntaxError); ok {
		return &execctx.EvalError{Errors: syntaxErr.Errors}
	}
	return err
}
