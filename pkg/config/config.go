// Package config loads and saves the tool configuration. The file
// lives under the user config directory (~/.config/lineprof) and every
// field is optional: a missing file yields full defaults, so the tool
// works without any setup.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sirupsen/logrus"
)

// Duration decodes human-friendly yaml durations such as "500us" or
// "2ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("cannot decode duration: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("cannot parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// SamplerConfig tunes statistic replay and live sampling.
type SamplerConfig struct {
	Period Duration `yaml:"period"`
}

// FlameConfig tunes flame graph rendering.
type FlameConfig struct {
	Width   int    `yaml:"width"`
	Palette string `yaml:"palette"`
}

// Config is the persisted tool configuration.
type Config struct {
	Format   string        `yaml:"format"`
	TopLines int           `yaml:"top_lines"`
	Exclude  []string      `yaml:"exclude,omitempty"`
	Include  []string      `yaml:"include,omitempty"`
	LogLevel string        `yaml:"log_level"`
	Sampler  SamplerConfig `yaml:"sampler"`
	Flame    FlameConfig   `yaml:"flame"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Format:   "summary",
		TopLines: 10,
		LogLevel: "warning",
		Sampler:  SamplerConfig{Period: Duration(time.Millisecond)},
		Flame:    FlameConfig{Width: 1200, Palette: "hot"},
	}
}

var knownFormats = map[string]bool{
	"annotate":  true,
	"callgrind": true,
	"summary":   true,
	"json":      true,
	"pprof":     true,
	"flame":     true,
}

var knownPalettes = map[string]bool{
	"hot":  true,
	"cold": true,
	"gray": true,
}

// Validate rejects configurations the tool cannot act on.
func Validate(cfg *Config) error {
	if !knownFormats[cfg.Format] {
		return fmt.Errorf("unknown format %q", cfg.Format)
	}
	if cfg.TopLines < 0 {
		return fmt.Errorf("top_lines must not be negative, got %d", cfg.TopLines)
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("unknown log_level %q", cfg.LogLevel)
	}
	if cfg.Sampler.Period <= 0 {
		return fmt.Errorf("sampler period must be positive, got %s", time.Duration(cfg.Sampler.Period))
	}
	if !knownPalettes[cfg.Flame.Palette] {
		return fmt.Errorf("unknown flame palette %q", cfg.Flame.Palette)
	}
	if cfg.Flame.Width <= 0 {
		return fmt.Errorf("flame width must be positive, got %d", cfg.Flame.Width)
	}
	return nil
}
