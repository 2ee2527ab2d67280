package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DefaultReadyAttempts, cfg.ReadyAttempts)
	assert.Equal(t, DefaultReadyInterval, cfg.ReadyInterval)
	assert.Equal(t, DefaultProbeTimeout, cfg.ProbeTimeout)
	assert.Equal(t, DefaultStopGrace, cfg.StopGrace)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultReadyAttempts, cfg.ReadyAttempts)
}

func TestLoadOverridesAndFillsGaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"data_dir: /tmp/relayd-test\nlog_level: debug\nready_attempts: 5\nready_interval: 50ms\nmetrics_addr: 127.0.0.1:0\n",
	), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/relayd-test", cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:0", cfg.MetricsAddr)
	assert.Equal(t, 5, cfg.ReadyAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.ReadyInterval)
	// Unset fields still get defaults.
	assert.Equal(t, DefaultProbeTimeout, cfg.ProbeTimeout)
	assert.Equal(t, DefaultStopGrace, cfg.StopGrace)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDerivedDirs(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/relayd"}
	assert.Equal(t, "/var/lib/relayd/workers", cfg.WorkersDir())
	assert.Equal(t, "/var/lib/relayd/logs", cfg.LogsDir())
	assert.Equal(t, "/var/lib/relayd/profiles", cfg.ProfilesDir())
}
