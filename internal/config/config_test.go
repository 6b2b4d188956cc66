package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test from an empty directory so no real config file
// is picked up.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	inTempDir(t)
	t.Setenv("CONFIG_ENV", "")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "none", cfg.HistoryStore)
	assert.Equal(t, "discard", cfg.UpdateMiss)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers)
}

func TestLoad_FileEnvAndFlagsLayer(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), []byte(
		"port: 9000\nhistory_store: memory\nbackpressure: kick\n"), 0o644))

	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("CANVAS_BACKPRESSURE", "none")

	fs := pflag.NewFlagSet("canvas", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--port", "9100"}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port, "flag wins")
	assert.Equal(t, "memory", cfg.HistoryStore, "file value kept")
	assert.Equal(t, "none", cfg.Backpressure, "env beats file")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port: 8080, HistoryStore: "none", PingPeriod: time.Second,
			PongWait: 2 * time.Second, SendBuffer: 1,
		}
	}
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"bad port", func(c *Config) { c.Port = 0 }, false},
		{"bad store", func(c *Config) { c.HistoryStore = "redis" }, false},
		{"sqlite without path", func(c *Config) { c.HistoryStore = "sqlite" }, false},
		{"pong before ping", func(c *Config) { c.PongWait = c.PingPeriod }, false},
		{"no buffer", func(c *Config) { c.SendBuffer = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			if tt.ok {
				assert.NoError(t, c.Validate())
			} else {
				assert.Error(t, c.Validate())
			}
		})
	}
}
