package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the supervisor's readiness poll. The total wait is
// ReadyAttempts * (ReadyInterval + probe timeout) in the worst case.
const (
	DefaultReadyAttempts = 30
	DefaultReadyInterval = 200 * time.Millisecond
	DefaultProbeTimeout  = 1 * time.Second
	DefaultStopGrace     = 2 * time.Second
)

// Config holds the daemon-wide settings shared by the supervisor and the
// worker entrypoints. All fields have working defaults; the file is optional.
type Config struct {
	// DataDir is the root for the worker registry, per-worker logs and
	// VPN profile configs.
	DataDir string `yaml:"data_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// JSONLogs switches from console to JSON log output.
	JSONLogs bool `yaml:"json_logs"`

	// MetricsAddr, when set, exposes Prometheus metrics from each worker
	// process on this loopback address. Use port 0 so concurrent workers
	// do not collide; each worker logs the address it bound. Empty
	// disables the listener.
	MetricsAddr string `yaml:"metrics_addr"`

	// ReadyAttempts bounds the supervisor's readiness poll loop.
	ReadyAttempts int `yaml:"ready_attempts"`

	// ReadyInterval is the sleep between readiness poll iterations.
	ReadyInterval time.Duration `yaml:"ready_interval"`

	// ProbeTimeout is the TCP connect timeout used by the readiness probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// StopGrace is how long StopWorker waits after a graceful terminate
	// before cleaning up regardless.
	StopGrace time.Duration `yaml:"stop_grace"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DataDir:       defaultDataDir(),
		LogLevel:      "info",
		ReadyAttempts: DefaultReadyAttempts,
		ReadyInterval: DefaultReadyInterval,
		ProbeTimeout:  DefaultProbeTimeout,
		StopGrace:     DefaultStopGrace,
	}
}

// Load reads the YAML config at path, filling unset fields with defaults.
// A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = defaultDataDir()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ReadyAttempts <= 0 {
		c.ReadyAttempts = DefaultReadyAttempts
	}
	if c.ReadyInterval <= 0 {
		c.ReadyInterval = DefaultReadyInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.StopGrace <= 0 {
		c.StopGrace = DefaultStopGrace
	}
}

// WorkersDir is where the registry keeps one file per descriptor.
func (c *Config) WorkersDir() string {
	return filepath.Join(c.DataDir, "workers")
}

// LogsDir is where the supervisor redirects each worker's stderr.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ProfilesDir is where VPN profile configs are looked up by profile id.
func (c *Config) ProfilesDir() string {
	return filepath.Join(c.DataDir, "profiles")
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "relayd")
	}
	return filepath.Join(os.TempDir(), "relayd")
}
