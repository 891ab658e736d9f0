package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDocument(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseAssignment(t *testing.T) {
	testCases := []struct {
		in   string
		name string
		want any
	}{
		{in: "x=5", name: "x", want: int64(5)},
		{in: "x=1.5", name: "x", want: 1.5},
		{in: "flag=true", name: "flag", want: true},
		{in: `mode="fast"`, name: "mode", want: "fast"},
		{in: "mode=fast", name: "mode", want: "fast"},
		{in: "list=[1, 2]", name: "list", want: []any{int64(1), int64(2)}},
		{in: "empty=", name: "empty", want: ""},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			name, v, err := parseAssignment(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.name, name)
			assert.Equal(t, tc.want, v)
		})
	}

	for _, bad := range []string{"novalue", "=5", "1x=2"} {
		_, _, err := parseAssignment(bad)
		assert.Error(t, err, bad)
	}
}

func TestExecute_Run(t *testing.T) {
	path := writeDocument(t, `
cell "a" {
  source = "=x * 2"
}
`)
	var out, errOut bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := Execute(ctx, []string{"run", "--idle-wait", "5ms", "--set", "x=21", path}, &out, &errOut)
	require.NoError(t, err)
	assert.Equal(t, "a = 42\n", out.String())
}

func TestExecute_UsageErrors(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{name: "unknown flag", args: []string{"run", "--nope", "doc.hcl"}},
		{name: "no document", args: []string{"run"}},
		{name: "bad level", args: []string{"run", "--log-level", "loud", "doc.hcl"}},
		{name: "bad idle wait", args: []string{"run", "--idle-wait", "soon", "doc.hcl"}},
		{name: "bad assignment", args: []string{"run", "--set", "x", "doc.hcl"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			err := Execute(context.Background(), tc.args, &out, &out)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
		})
	}
}

func TestFlags_SettingsThenFlags(t *testing.T) {
	settings := filepath.Join(t.TempDir(), "cellgrid.toml")
	require.NoError(t, os.WriteFile(settings, []byte(`
native_context = "hcl"
idle_wait      = "5ms"
http_port      = 9999

[log]
level  = "warn"
format = "json"
`), 0o600))

	f := &flags{}
	cmd := &cobra.Command{Use: "serve"}
	f.register(cmd, true)
	require.NoError(t, cmd.ParseFlags([]string{"--settings", settings, "--log-level", "debug", "--http-port", "0"}))

	cfg, err := f.config(cmd, []string{"doc.hcl"})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc.hcl"}, cfg.DocumentPaths)
	assert.Equal(t, "hcl", cfg.NativeContext)
	assert.Equal(t, 5*time.Millisecond, cfg.IdleWait)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel, "explicit flags win over the settings file")
	assert.Equal(t, 0, cfg.HTTPPort)
}

func TestExecute_Fmt(t *testing.T) {
	path := writeDocument(t, `cell "b" { source = "=a+1" }`)
	var out bytes.Buffer
	require.NoError(t, Execute(context.Background(), []string{"fmt", path}, &out, &out))
	assert.Contains(t, out.String(), `cell "b" {`)
	assert.Contains(t, out.String(), `source = "=a+1"`)
}

func TestExecute_Version(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Execute(context.Background(), []string{"version"}, &out, &out))
	assert.Equal(t, "cellgrid dev\n", out.String())
}
