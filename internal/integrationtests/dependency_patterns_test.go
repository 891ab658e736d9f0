package integrationtests

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/cellgrid/internal/testutil"
)

// Test for: fan-out and fan-in dependencies evaluate every cell once.
func TestDependencyPatterns_FanOutFanIn(t *testing.T) {
	// --- Arrange ---
	files := map[string]string{
		"main.hcl": `
			cell "a" {
				source = "2"
			}
			cell "b" {
				source = "=a * 2"
			}
			cell "c" {
				source = "=a * 3"
			}
			cell "d" {
				source = "=b + c"
			}
		`,
	}

	// --- Act ---
	result := testutil.RunDocument(t, files)

	// --- Assert ---
	require.NoError(t, result.Err)
	assert.Equal(t, "a = 2\nb = 4\nc = 6\nd = 10\n", result.Output)
}

// Test for: cells may reference cells declared in other files.
func TestDependencyPatterns_AcrossFiles(t *testing.T) {
	// --- Arrange ---
	files := map[string]string{
		"inputs.hcl": `
			input "rate" {
				kind  = "range"
				name  = "rate"
				value = 0.5
			}
		`,
		"cells/model.hcl": `
			cell "total" {
				source = "=base * (1 + rate)"
			}
			cell "base" {
				source = "100"
			}
		`,
	}

	// --- Act ---
	result := testutil.RunDocument(t, files)

	// --- Assert ---
	require.NoError(t, result.Err)
	assert.Equal(t, "base = 100\ntotal = 150\n", result.Output)
}

// Test for: structured values flow between cells unchanged.
func TestDependencyPatterns_StructuredValues(t *testing.T) {
	// --- Arrange ---
	files := map[string]string{
		"main.hcl": `
			cell "point" {
				source = "={ x = 1, y = 2 }"
			}
			cell "names" {
				source = "=sort(keys(point))"
			}
			cell "label" {
				source = "=\"($${point.x}, $${point.y})\""
			}
		`,
	}

	// --- Act ---
	result := testutil.RunDocument(t, files)

	// --- Assert ---
	require.NoError(t, result.Err)
	assert.Contains(t, result.Output, "label = (1, 2)\n")
	assert.Contains(t, result.Output, "names = [\"x\",\"y\"]\n")
	assert.Contains(t, result.Output, "point = {\"x\":1,\"y\":2}\n")
}
