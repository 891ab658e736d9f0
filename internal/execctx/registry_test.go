package execctx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubContext struct {
	name      string
	functions []string
}

func (s *stubContext) Name() string { return s.name }

func (s *stubContext) Call(context.Context, string, map[string]any, Options) (*Result, error) {
	return &Result{}, nil
}

func (s *stubContext) Run(context.Context, string) (*Result, error) { return &Result{}, nil }

func (s *stubContext) CallFunction(context.Context, string, []any, Options) (*Result, error) {
	return &Result{}, nil
}

func (s *stubContext) HasFunction(name string) bool {
	for _, f := range s.functions {
		if f == name {
			return true
		}
	}
	return false
}

func (s *stubContext) Depends(context.Context, string) ([]string, error) { return nil, nil }

func TestRegistry_OrderAndLookup(t *testing.T) {
	goCtx := &stubContext{name: "go", functions: []string{"sum", "upper"}}
	pyCtx := &stubContext{name: "py", functions: []string{"sum", "fit"}}

	r, err := NewRegistry(goCtx, pyCtx)
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "py"}, r.Names())

	c, ok := r.Lookup("sum")
	require.True(t, ok)
	assert.Equal(t, "go", c.Name(), "first registered context wins")

	c, ok = r.Lookup("fit")
	require.True(t, ok)
	assert.Equal(t, "py", c.Name())

	_, ok = r.Lookup("missing")
	assert.False(t, ok)

	c, ok = r.Get("py")
	require.True(t, ok)
	assert.Same(t, pyCtx, c)
}

func TestRegistry_DuplicateName(t *testing.T) {
	r, err := NewRegistry(&stubContext{name: "go"})
	require.NoError(t, err)

	err = r.Register(&stubContext{name: "go"})
	assert.True(t, errors.Is(err, ErrContextExists))
}

func TestRegistry_Remove(t *testing.T) {
	r, err := NewRegistry(&stubContext{name: "a"}, &stubContext{name: "b"}, &stubContext{name: "c"})
	require.NoError(t, err)

	assert.True(t, r.Remove("b"))
	assert.False(t, r.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, r.Names())
}

func TestLines(t *testing.T) {
	assert.Nil(t, Lines(nil))
	assert.Equal(t, map[int]string{3: "boom"}, Lines(&EvalError{Errors: map[int]string{3: "boom"}}))
	assert.Equal(t, map[int]string{0: "plain"}, Lines(errors.New("plain")))
}

func TestResult_Failed(t *testing.T) {
	var nilResult *Result
	assert.False(t, nilResult.Failed())
	assert.False(t, (&Result{Output: 1}).Failed())
	assert.True(t, (&Result{Errors: map[int]string{0: "x"}}).Failed())
}
