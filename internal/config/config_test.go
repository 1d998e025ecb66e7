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

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "icmp", cfg.Defaults.ProbeMethod)
	assert.Equal(t, 30, cfg.Defaults.Traceroute.MaxHops)
	assert.Equal(t, 3, cfg.Defaults.Traceroute.Queries)
	assert.Equal(t, 5, cfg.Defaults.Ping.Count)
	assert.Equal(t, time.Second, cfg.Defaults.Ping.Interval)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadFromKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parisprobe.yaml")
	data := `
defaults:
  probe_method: udp
  timeout: 500ms
  traceroute:
    max_hops: 12
logging:
  level: debug
aliases:
  home: 192.0.2.1
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "udp", cfg.Defaults.ProbeMethod)
	assert.Equal(t, 500*time.Millisecond, cfg.Defaults.Timeout)
	assert.Equal(t, 12, cfg.Defaults.Traceroute.MaxHops)
	assert.Equal(t, 3, cfg.Defaults.Traceroute.Queries, "unset keys keep defaults")
	assert.Equal(t, 5, cfg.Defaults.Ping.Count)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "192.0.2.1", cfg.ResolveAlias("home"))
	assert.Equal(t, "example.org", cfg.ResolveAlias("example.org"))
}

func TestLoadFromErrors(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("defaults: [1, 2"), 0644))
	_, err = LoadFrom(path)
	assert.Error(t, err)
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Defaults.Ping.Count = 42
	cfg.Aliases["cf"] = "1.1.1.1"
	require.NoError(t, cfg.SaveTo(path))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadUsesXDG(t *testing.T) {
	if os.Getenv("APPDATA") != "" {
		t.Skip("Skipping test: Windows config location")
	}
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	assert.Equal(t, filepath.Join(dir, "parisprobe", "config.yaml"), GetConfigPath())

	cfg := DefaultConfig()
	cfg.Defaults.Traceroute.MaxHops = 7
	require.NoError(t, cfg.Save())

	// Run from an empty directory so no local file shadows the user one.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Defaults.Traceroute.MaxHops)
}

func TestGenerateExampleParses(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte(GenerateExample()), cfg))
	assert.Equal(t, "icmp", cfg.Defaults.ProbeMethod)
	assert.Equal(t, 3, cfg.Defaults.Traceroute.MaxUndiscovered)
	assert.Equal(t, "1.1.1.1", cfg.ResolveAlias("cf"))
}
