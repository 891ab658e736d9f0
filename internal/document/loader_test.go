package document

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDocument = `
context "py" {
  url       = "http://127.0.0.1:5000/"
  namespace = "/"
  timeout   = "5s"
}

cell "a" {
  source = "1"
}

cell "b" {
  source = "=a + x"
}

cell "note" {
  source = "=\"a is $${a}\""
  inline = true
}

cell "fit" {
  language = "py"
  code     = "result = x * 2"
}

input "slider" {
  kind  = "range"
  name  = "x"
  value = 5
}

input "choice" {
  kind  = "select"
  name  = "mode"
  value = "fast"
}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doc.hcl", sampleDocument)
	writeFile(t, dir, "README.md", "not a document")

	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, model.Contexts, 1)
	assert.Equal(t, RemoteContext{
		Name:      "py",
		URL:       "http://127.0.0.1:5000/",
		Namespace: "/",
		Timeout:   5 * time.Second,
	}, model.Contexts[0])

	byID := make(map[string]*Node)
	for _, n := range model.Nodes {
		byID[n.ID] = n
	}
	require.Len(t, byID, 6)

	assert.Equal(t, &Node{ID: "b", Type: Cell, Source: "=a + x"}, byID["b"])
	assert.Equal(t, InlineCell, byID["note"].Type)
	assert.Equal(t, `="a is ${a}"`, byID["note"].Source)
	assert.Equal(t, "py", byID["fit"].Language)
	assert.Equal(t, "result = x * 2", byID["fit"].Code)
	assert.Equal(t, &Node{ID: "slider", Type: RangeInput, Name: "x", Value: int64(5)}, byID["slider"])
	assert.Equal(t, &Node{ID: "choice", Type: Select, Name: "mode", Value: "fast"}, byID["choice"])
}

func TestLoader_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name:    "syntax error",
			files:   map[string]string{"a.hcl": `cell "a" {`},
			wantErr: "failed to parse document file",
		},
		{
			name:    "unknown attribute",
			files:   map[string]string{"a.hcl": `cell "a" { colour = "red" }`},
			wantErr: "failed to decode document file",
		},
		{
			name:    "unknown input kind",
			files:   map[string]string{"a.hcl": `input "i" { kind = "checkbox" }`},
			wantErr: `unknown kind "checkbox"`,
		},
		{
			name: "duplicate node across files",
			files: map[string]string{
				"a.hcl": `cell "a" { source = "1" }`,
				"b.hcl": `cell "a" { source = "2" }`,
			},
			wantErr: `node "a" is already declared`,
		},
		{
			name:    "bad timeout",
			files:   map[string]string{"a.hcl": "context \"py\" {\n  url     = \"http://x\"\n  timeout = \"soon\"\n}\n"},
			wantErr: "invalid timeout",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tc.files {
				writeFile(t, dir, name, content)
			}
			_, err := NewLoader().Load(context.Background(), dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoader_MissingPath(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope.hcl"))
	require.Error(t, err)
}

func TestEncode_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	model, err := NewLoader().Load(context.Background(), writeFile(t, dir, "doc.hcl", sampleDocument))
	require.NoError(t, err)

	out, err := Encode(model)
	require.NoError(t, err)

	again, err := NewLoader().Load(context.Background(), writeFile(t, dir, "again.hcl", string(out)))
	require.NoError(t, err)
	assert.Equal(t, model, again)
}
