package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Settings is the optional TOML settings file. Zero values leave the
// configuration untouched.
//
//	idle_wait      = "250ms"
//	native_context = "go"
//	http_port      = 9090
//
//	[log]
//	level  = "debug"
//	format = "json"
//
//	[[context]]
//	name = "py"
//	url  = "http://127.0.0.1:5000/"
type Settings struct {
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	IdleWait      time.Duration   `toml:"idle_wait"`
	NativeContext string          `toml:"native_context"`
	HTTPPort      int             `toml:"http_port"`
	Contexts      []ContextConfig `toml:"context"`
}

// LoadSettings reads a settings file. Unknown keys are an error.
func LoadSettings(path string) (*Settings, error) {
	var s Settings
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return nil, fmt.Errorf("settings %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return &s, nil
}

// Apply overlays the non-zero settings onto cfg.
func (s *Settings) Apply(cfg *Config) {
	if s.Log.Level != "" {
		cfg.LogLevel = strings.ToLower(s.Log.Level)
	}
	if s.Log.Format != "" {
		cfg.LogFormat = strings.ToLower(s.Log.Format)
	}
	if s.IdleWait != 0 {
		cfg.IdleWait = s.IdleWait
	}
	if s.NativeContext != "" {
		cfg.NativeContext = s.NativeContext
	}
	if s.HTTPPort != 0 {
		cfg.HTTPPort = s.HTTPPort
	}
	cfg.Contexts = append(cfg.Contexts, s.Contexts...)
}
