// Package testutil runs whole documents through the application for
// integration tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/cellgrid/internal/app"
)

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	Output    string
	LogOutput string
	Err       error
	App       *app.App
}

// RunDocument writes files into a temporary directory and runs the app once
// over it.
func RunDocument(t *testing.T, files map[string]string, opts ...app.Option) *HarnessResult {
	t.Helper()
	return RunDocumentWithConfig(t, files, nil, opts...)
}

// RunDocumentWithConfig is RunDocument with a hook to adjust the
// configuration before the app is built.
func RunDocumentWithConfig(t *testing.T, files map[string]string, configure func(*app.Config), opts ...app.Option) *HarnessResult {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	cfg := app.DefaultConfig()
	cfg.DocumentPaths = []string{dir}
	cfg.LogLevel = "debug"
	cfg.IdleWait = 5 * time.Millisecond
	cfg.HTTPPort = 0
	if configure != nil {
		configure(&cfg)
	}

	out := &app.SafeBuffer{}
	logs := &app.SafeBuffer{}
	t.Cleanup(func() {
		if os.Getenv("CELLGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})

	a, err := app.NewApp(out, logs, &cfg, opts...)
	if err != nil {
		return &HarnessResult{LogOutput: logs.String(), Err: err}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	runErr := a.Run(ctx)

	return &HarnessResult{
		Output:    out.String(),
		LogOutput: logs.String(),
		Err:       runErr,
		App:       a,
	}
}
