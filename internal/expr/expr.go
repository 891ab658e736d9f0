package expr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// Expression is a parsed cell source.
type Expression struct {
	// Source is the expression text without its leading "=".
	Source string
	// Syntax is nil for an empty expression.
	Syntax hclsyntax.Expression
	// References holds the sorted, unique root names the expression reads.
	References []string
	// Functions holds the sorted, unique names of every function called.
	Functions []string
	// Call is set when the whole expression is a single function call.
	Call *Call
}

// Call describes a top-level function call.
type Call struct {
	Name string
	Args []Arg
}

// Arg is a single call argument. Name is set when the argument is a bare
// reference to another node, which is how named arguments are passed to
// external cells.
type Arg struct {
	Name   string
	Source string
	Expr   hclsyntax.Expression
}

// Names returns the names of the named arguments in call order.
func (c *Call) Names() []string {
	var names []string
	for _, arg := range c.Args {
		if arg.Name != "" {
			names = append(names, arg.Name)
		}
	}
	return names
}

// SyntaxError reports parse diagnostics keyed by source line. Line 0 holds
// diagnostics that are not tied to a position.
type SyntaxError struct {
	Errors map[int]string
}

func (e *SyntaxError) Error() string {
	lines := make([]int, 0, len(e.Errors))
	for line := range e.Errors {
		lines = append(lines, line)
	}
	sort.Ints(lines)
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		parts = append(parts, fmt.Sprintf("line %d: %s", line, e.Errors[line]))
	}
	return "syntax error: " + strings.Join(parts, "; ")
}

// Parse parses cell source. An empty (or whitespace only) source yields an
// expression with no syntax tree, which evaluates to null.
func Parse(source string) (*Expression, error) {
	source = strings.TrimPrefix(strings.TrimSpace(source), "=")
	e := &Expression{Source: source}
	if strings.TrimSpace(source) == "" {
		return e, nil
	}

	src := []byte(source)
	syntax, diags := hclsyntax.ParseExpression(src, "cell", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, &SyntaxError{Errors: DiagnosticLines(diags)}
	}

	e.Syntax = syntax
	e.References = rootNames(syntax.Variables())
	e.Functions = calledFunctions(syntax)
	e.Call = topLevelCall(syntax, src)
	return e, nil
}

// DiagnosticLines folds diagnostics into a line-keyed message map. Several
// diagnostics on one line are joined.
func DiagnosticLines(diags hcl.Diagnostics) map[int]string {
	out := make(map[int]string)
	for _, diag := range diags {
		if diag.Severity != hcl.DiagError {
			continue
		}
		line := 0
		if diag.Subject != nil {
			line = diag.Subject.Start.Line
		}
		msg := diag.Summary
		if diag.Detail != "" {
			msg += ": " + diag.Detail
		}
		if prev, ok := out[line]; ok {
			msg = prev + "; " + msg
		}
		out[line] = msg
	}
	return out
}

// CallSource renders the source of a call to fn with the given names as
// arguments, e.g. "call(a, b)".
func CallSource(fn string, names []string) string {
	return fn + "(" + strings.Join(names, ", ") + ")"
}

func rootNames(traversals []hcl.Traversal) []string {
	seen := make(map[string]struct{}, len(traversals))
	for _, t := range traversals {
		seen[t.RootName()] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func calledFunctions(syntax hclsyntax.Expression) []string {
	functions := make(map[string]struct{})
	walkForFunctions(syntax, functions)

	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func topLevelCall(syntax hclsyntax.Expression, src []byte) *Call {
	for {
		paren, ok := syntax.(*hclsyntax.ParenthesesExpr)
		if !ok {
			break
		}
		syntax = paren.Expression
	}
	fn, ok := syntax.(*hclsyntax.FunctionCallExpr)
	if !ok {
		return nil
	}

	call := &Call{Name: fn.Name, Args: make([]Arg, 0, len(fn.Args))}
	for _, arg := range fn.Args {
		a := Arg{Expr: arg, Source: string(arg.Range().SliceBytes(src))}
		if ref, ok := arg.(*hclsyntax.ScopeTraversalExpr); ok && len(ref.Traversal) == 1 {
			a.Name = ref.Traversal.RootName()
		}
		call.Args = append(call.Args, a)
	}
	return call
}

// walkForFunctions recursively walks the syntax tree collecting the names of
// called functions, which Variables() does not report.
func walkForFunctions(expr hclsyntax.Expression, functions map[string]struct{}) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *hclsyntax.FunctionCallExpr:
		functions[e.Name] = struct{}{}
		for _, arg := range e.Args {
			walkForFunctions(arg, functions)
		}
	case *hclsyntax.BinaryOpExpr:
		walkForFunctions(e.LHS, functions)
		walkForFunctions(e.RHS, functions)
	case *hclsyntax.ConditionalExpr:
		walkForFunctions(e.Condition, functions)
		walkForFunctions(e.TrueResult, functions)
		walkForFunctions(e.FalseResult, functions)
	case *hclsyntax.UnaryOpExpr:
		walkForFunctions(e.Val, functions)
	case *hclsyntax.TemplateExpr:
		for _, part := range e.Parts {
			walkForFunctions(part, functions)
		}
	case *hclsyntax.TemplateWrapExpr:
		walkForFunctions(e.Wrapped, functions)
	case *hclsyntax.TupleConsExpr:
		for _, item := range e.Exprs {
			walkForFunctions(item, functions)
		}
	case *hclsyntax.ObjectConsExpr:
		for _, item := range e.Items {
			walkForFunctions(item.KeyExpr, functions)
			walkForFunctions(item.ValueExpr, functions)
		}
	case *hclsyntax.ObjectConsKeyExpr:
		walkForFunctions(e.Wrapped, functions)
	case *hclsyntax.ForExpr:
		walkForFunctions(e.CollExpr, functions)
		walkForFunctions(e.KeyExpr, functions)
		walkForFunctions(e.ValExpr, functions)
		walkForFunctions(e.CondExpr, functions)
	case *hclsyntax.IndexExpr:
		walkForFunctions(e.Collection, functions)
		walkForFunctions(e.Key, functions)
	case *hclsyntax.RelativeTraversalExpr:
		walkForFunctions(e.Source, functions)
	case *hclsyntax.SplatExpr:
		walkForFunctions(e.Source, functions)
		walkForFunctions(e.Each, functions)
	case *hclsyntax.ParenthesesExpr:
		walkForFunctions(e.Expression, functions)
	}
}
