package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	g := New()
	require.NotNil(t, g)
	assert.NotNil(t, g.nodes)
	assert.Empty(t, g.nodes)
}

func TestAddExpression(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddExpression("b", []string{"a"}))

		assert.Equal(t, []string{"a"}, g.Reads("b"))
		assert.Equal(t, []string{"b"}, g.Readers("a"))
		assert.True(t, g.Provides("b"))
		assert.False(t, g.Provides("a"), "a is read but nothing provides it")
		assert.Equal(t, []string{"a"}, g.Unresolved("b"))
	})

	t.Run("duplicate id", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddExpression("a", nil))
		assert.ErrorIs(t, g.AddExpression("a", nil), ErrExists)
	})

	t.Run("unresolved name resolves when provided", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddExpression("b", []string{"a"}))
		require.NoError(t, g.AddExpression("a", nil))
		assert.Empty(t, g.Unresolved("b"))
	})
}

func TestReplaceExpression(t *testing.T) {
	g := New()
	require.NoError(t, g.AddExpression("c", []string{"a", "b"}))

	g.ReplaceExpression("c", []string{"b", "d"})

	assert.Equal(t, []string{"b", "d"}, g.Reads("c"))
	assert.Empty(t, g.Readers("a"))
	assert.Equal(t, []string{"c"}, g.Readers("b"))
	assert.Equal(t, []string{"c"}, g.Readers("d"))
	_, ok := g.nodes["a"]
	assert.False(t, ok, "names nobody reads or provides are dropped")
}

func TestRemoveExpression(t *testing.T) {
	g := New()
	require.NoError(t, g.AddExpression("a", nil))
	require.NoError(t, g.AddExpression("b", []string{"a"}))

	g.RemoveExpression("a")

	assert.False(t, g.Provides("a"))
	assert.Equal(t, []string{"b"}, g.Readers("a"), "readers keep their edge to the now unresolved name")
	assert.Equal(t, []string{"a"}, g.Unresolved("b"))

	g.RemoveExpression("b")
	assert.Empty(t, g.nodes)
}

func TestNames(t *testing.T) {
	g := New()
	require.NoError(t, g.AddExpression("y", []string{"x"}))
	g.AddName("x")
	assert.True(t, g.Provides("x"))
	assert.False(t, g.HasExpression("x"))
	assert.Empty(t, g.Unresolved("y"))

	g.RemoveName("x")
	assert.False(t, g.Provides("x"))
	assert.Equal(t, []string{"x"}, g.Unresolved("y"))
}

func TestDownstream(t *testing.T) {
	g := New()
	g.AddName("x")
	require.NoError(t, g.AddExpression("a", []string{"x"}))
	require.NoError(t, g.AddExpression("b", []string{"a"}))
	require.NoError(t, g.AddExpression("c", []string{"b", "x"}))
	require.NoError(t, g.AddExpression("other", nil))

	assert.Equal(t, []string{"a", "b", "c"}, g.Downstream("x"))
	assert.Equal(t, []string{"b", "c"}, g.Downstream("a"))
	assert.Empty(t, g.Downstream("other"))
}

func TestOrder(t *testing.T) {
	t.Run("linear chain", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddExpression("A", nil))
		require.NoError(t, g.AddExpression("B", []string{"A"}))
		require.NoError(t, g.AddExpression("C", []string{"B"}))

		order, cycles := g.Order([]string{"A"})
		assert.Equal(t, []string{"A", "B", "C"}, order)
		assert.Empty(t, cycles)
	})

	t.Run("restricted to closure of dirty nodes", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddExpression("a", nil))
		require.NoError(t, g.AddExpression("b", []string{"a"}))
		require.NoError(t, g.AddExpression("c", nil))

		order, _ := g.Order([]string{"b"})
		assert.Equal(t, []string{"b"}, order)
	})

	t.Run("diamond", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddExpression("top", nil))
		require.NoError(t, g.AddExpression("left", []string{"top"}))
		require.NoError(t, g.AddExpression("right", []string{"top"}))
		require.NoError(t, g.AddExpression("bottom", []string{"left", "right"}))

		order, _ := g.Order([]string{"top"})
		assert.Equal(t, []string{"top", "left", "right", "bottom"}, order)
	})

	t.Run("exogenous names are not ordered", func(t *testing.T) {
		g := New()
		g.AddName("slider")
		require.NoError(t, g.AddExpression("a", []string{"slider"}))

		order, _ := g.Order([]string{"slider"})
		assert.Equal(t, []string{"a"}, order)
	})

	t.Run("cycle members are excluded and reported", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddExpression("A", []string{"B"}))
		require.NoError(t, g.AddExpression("B", []string{"A"}))
		require.NoError(t, g.AddExpression("after", []string{"B"}))
		require.NoError(t, g.AddExpression("free", nil))

		order, cycles := g.Order([]string{"A", "B", "free"})
		assert.Equal(t, []string{"after", "free"}, order)
		assert.Equal(t, [][]string{{"A", "B"}}, cycles)
	})

	t.Run("self read is a cycle", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddExpression("s", []string{"s"}))

		order, cycles := g.Order([]string{"s"})
		assert.Empty(t, order)
		assert.Equal(t, [][]string{{"s"}}, cycles)
	})
}

func TestDetectCycles(t *testing.T) {
	t.Run("empty graph has no cycles", func(t *testing.T) {
		g := New()
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("valid dag has no cycles", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddExpression("b", []string{"a"}))
		require.NoError(t, g.AddExpression("c", []string{"a", "b"}))
		require.NoError(t, g.AddExpression("d", []string{"c"}))
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("longer cycle is detected", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddExpression("a", []string{"d"}))
		require.NoError(t, g.AddExpression("b", []string{"a"}))
		require.NoError(t, g.AddExpression("c", []string{"b"}))
		require.NoError(t, g.AddExpression("d", []string{"c"}))

		err := g.DetectCycles()
		var cycleErr *CycleError
		require.ErrorAs(t, err, &cycleErr)
		assert.Equal(t, []string{"a", "b", "c", "d"}, cycleErr.Members)
		assert.ErrorContains(t, err, "cyclic dependency")
	})

	t.Run("cycle in a disjoint component is detected", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddExpression("b", []string{"a"}))
		require.NoError(t, g.AddExpression("y", []string{"z"}))
		require.NoError(t, g.AddExpression("z", []string{"y"}))

		var cycleErr *CycleError
		require.ErrorAs(t, g.DetectCycles(), &cycleErr)
		assert.Equal(t, []string{"y", "z"}, cycleErr.Members)
	})
}
