package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Loader resolves and reads the config file. The base directory comes
// from, in order: the LINEPROF_CONFIG environment variable, the user
// config directory, or a temp fallback for environments without one.
type Loader struct {
	baseDir string
}

// NewLoader builds a loader; it never fails, since a missing config
// directory just means defaults.
func NewLoader() *Loader {
	if base := os.Getenv("LINEPROF_CONFIG"); base != "" {
		return &Loader{baseDir: base}
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return &Loader{baseDir: filepath.Join(dir, "lineprof")}
	}
	return &Loader{baseDir: filepath.Join(os.TempDir(), "lineprof")}
}

// Path returns the config file location.
func (l *Loader) Path() string {
	return filepath.Join(l.baseDir, "config.yaml")
}

// Load reads the configuration, falling back to defaults when the file
// does not exist. Unset fields inherit their default values.
func (l *Loader) Load() (*Config, error) {
	data, err := os.ReadFile(l.Path())
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config %s: %w", l.Path(), err)
	}
	return parseConfig(l.Path(), data)
}

// LoadFile reads the configuration from an explicit path. Unlike Load,
// a missing file is an error.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}
	return parseConfig(path, data)
}

func parseConfig(path string, data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration, creating the config directory when
// needed.
func (l *Loader) Save(cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("cannot save invalid config: %w", err)
	}
	if err := os.MkdirAll(l.baseDir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(l.Path(), data, 0o644); err != nil {
		return fmt.Errorf("cannot write config %s: %w", l.Path(), err)
	}
	return nil
}
