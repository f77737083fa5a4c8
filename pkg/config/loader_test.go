package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func tempLoader(t *testing.T) *Loader {
	t.Helper()
	t.Setenv("LINEPROF_CONFIG", t.TempDir())
	return NewLoader()
}

func TestLoader_MissingFileReturnsDefaults(t *testing.T) {
	l := tempLoader(t)
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoader_PartialFileInheritsDefaults(t *testing.T) {
	l := tempLoader(t)
	require.NoError(t, os.WriteFile(l.Path(), []byte("format: callgrind\n"), 0o644))

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "callgrind", cfg.Format)
	assert.Equal(t, 10, cfg.TopLines)
	assert.Equal(t, Duration(time.Millisecond), cfg.Sampler.Period)
	assert.Equal(t, "hot", cfg.Flame.Palette)
}

func TestLoader_SaveRoundTrip(t *testing.T) {
	l := tempLoader(t)
	cfg := Default()
	cfg.Format = "flame"
	cfg.Exclude = []string{"^vendor/"}
	cfg.Sampler.Period = Duration(250 * time.Microsecond)

	require.NoError(t, l.Save(cfg))
	loaded, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoader_InvalidConfigRejected(t *testing.T) {
	l := tempLoader(t)
	require.NoError(t, os.WriteFile(l.Path(), []byte("format: bogus\n"), 0o644))

	_, err := l.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown format "bogus"`)
}

func TestLoader_MalformedYAMLRejected(t *testing.T) {
	l := tempLoader(t)
	require.NoError(t, os.WriteFile(l.Path(), []byte(":\n -"), 0o644))

	_, err := l.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot parse config")
}

func TestLoader_EnvOverridesBaseDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LINEPROF_CONFIG", dir)
	l := NewLoader()
	assert.Equal(t, filepath.Join(dir, "config.yaml"), l.Path())
}

func TestLoadFile_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("format: json\ntop_lines: 3\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, 3, cfg.TopLines)
}

func TestLoadFile_MissingFileFails(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read config")
}

func TestDuration_ParsesHumanValues(t *testing.T) {
	var sc SamplerConfig
	require.NoError(t, yaml.Unmarshal([]byte("period: 250us\n"), &sc))
	assert.Equal(t, Duration(250*time.Microsecond), sc.Period)

	err := yaml.Unmarshal([]byte("period: fast\n"), &sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `cannot parse duration "fast"`)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"format", func(c *Config) { c.Format = "xml" }, "unknown format"},
		{"top lines", func(c *Config) { c.TopLines = -1 }, "top_lines"},
		{"log level", func(c *Config) { c.LogLevel = "chatty" }, "unknown log_level"},
		{"period", func(c *Config) { c.Sampler.Period = 0 }, "sampler period"},
		{"palette", func(c *Config) { c.Flame.Palette = "neon" }, "unknown flame palette"},
		{"width", func(c *Config) { c.Flame.Width = 0 }, "flame width"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
