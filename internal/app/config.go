package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/vk/cellgrid/internal/nativectx"
	"github.com/vk/cellgrid/internal/scheduler"
)

// ContextConfig declares a remote execution context.
type ContextConfig struct {
	Name               string        `toml:"name"`
	URL                string        `toml:"url"`
	Namespace          string        `toml:"namespace"`
	Timeout            time.Duration `toml:"timeout"`
	InsecureSkipVerify bool          `toml:"insecure_skip_verify"`
}

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	DocumentPaths []string // hcl files or directories

	LogFormat string
	LogLevel  string
	HTTPPort  int
	IdleWait  time.Duration
	// NativeContext is the name the in-process context registers under.
	NativeContext string
	// Contexts are merged with the contexts the document declares; on a
	// name clash these win.
	Contexts []ContextConfig
	// Values are exogenous name bindings applied after the document loads.
	Values map[string]any
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		LogFormat:     "text",
		LogLevel:      "info",
		HTTPPort:      8080,
		IdleWait:      scheduler.DefaultIdleWait,
		NativeContext: nativectx.DefaultName,
	}
}

// NewConfig validates cfg.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.DocumentPaths) == 0 {
		return nil, errors.New("at least one document path is required")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	if cfg.IdleWait < 0 {
		return nil, fmt.Errorf("invalid idle wait %s: must not be negative", cfg.IdleWait)
	}
	if cfg.NativeContext == "" {
		return nil, errors.New("native context name must not be empty")
	}

	seen := make(map[string]bool)
	for _, c := range cfg.Contexts {
		switch {
		case c.Name == "":
			return nil, errors.New("execution context without a name")
		case c.Name == cfg.NativeContext:
			return nil, fmt.Errorf("execution context %q clashes with the native context", c.Name)
		case seen[c.Name]:
			return nil, fmt.Errorf("execution context %q is declared twice", c.Name)
		case c.URL == "":
			return nil, fmt.Errorf("execution context %q has no url", c.Name)
		}
		seen[c.Name] = true
	}
	return &cfg, nil
}
