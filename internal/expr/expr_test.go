package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_References(t *testing.T) {
	testCases := []struct {
		name      string
		source    string
		wantRefs  []string
		wantFuncs []string
	}{
		{"literal", "1", []string{}, []string{}},
		{"formula prefix", "=a + 1", []string{"a"}, []string{}},
		{"duplicates", "a * a + b", []string{"a", "b"}, []string{}},
		{"attribute access", "rec.field + rows[0].x", []string{"rec", "rows"}, []string{}},
		{"nested calls", "upper(lower(s))", []string{"s"}, []string{"lower", "upper"}},
		{"for expression", "[for v in items : v * k]", []string{"items", "k"}, []string{}},
		{"template", `"${greeting}, ${name}"`, []string{"greeting", "name"}, []string{}},
		{"conditional", "flag ? max(a, b) : 0", []string{"a", "b", "flag"}, []string{"max"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e, err := Parse(tc.source)
			require.NoError(t, err)
			assert.Equal(t, tc.wantRefs, e.References)
			assert.Equal(t, tc.wantFuncs, e.Functions)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	for _, source := range []string{"", "   ", "="} {
		e, err := Parse(source)
		require.NoError(t, err)
		assert.Nil(t, e.Syntax)
		assert.Empty(t, e.References)
		assert.Nil(t, e.Call)
	}
}

func TestParse_TopLevelCall(t *testing.T) {
	e, err := Parse("=call(a, b, 1 + c)")
	require.NoError(t, err)
	require.NotNil(t, e.Call)

	assert.Equal(t, "call", e.Call.Name)
	require.Len(t, e.Call.Args, 3)
	assert.Equal(t, "a", e.Call.Args[0].Name)
	assert.Equal(t, "b", e.Call.Args[1].Name)
	assert.Equal(t, "", e.Call.Args[2].Name)
	assert.Equal(t, "1 + c", e.Call.Args[2].Source)
	assert.Equal(t, []string{"a", "b"}, e.Call.Names())
	assert.Equal(t, []string{"a", "b", "c"}, e.References)
}

func TestParse_CallMustBeTopLevel(t *testing.T) {
	e, err := Parse("sum(a) + 1")
	require.NoError(t, err)
	assert.Nil(t, e.Call)

	e, err = Parse("(sum(a))")
	require.NoError(t, err)
	require.NotNil(t, e.Call)
	assert.Equal(t, "sum", e.Call.Name)

	e, err = Parse("rec.field")
	require.NoError(t, err)
	assert.Nil(t, e.Call)
}

func TestParse_SyntaxError(t *testing.T) {
	_, err := Parse("a +")
	var syntaxErr *SyntaxError
	require.ErrorAs(t, err, &syntaxErr)
	require.Contains(t, syntaxErr.Errors, 1)
	assert.NotEmpty(t, syntaxErr.Errors[1])
	assert.Contains(t, err.Error(), "line 1")
}

func TestCallSource(t *testing.T) {
	assert.Equal(t, "call(a, b)", CallSource("call", []string{"a", "b"}))
	assert.Equal(t, "call()", CallSource("call", nil))

	e, err := Parse(CallSource("call", []string{"x", "y"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, e.Call.Names())
}
