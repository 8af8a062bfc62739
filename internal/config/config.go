// Package config loads the shard manager's tunables from a YAML file, with
// environment-variable overrides for the handful of operational knobs an
// embedding deployment usually sets per instance.
package config

import (
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface of the shard manager binary.
type Config struct {
	// TotalShards is the fixed shard count N, immutable after bootstrap.
	TotalShards int `yaml:"total_shards"`

	// ListenAddr is the HTTP bind address for the command API.
	ListenAddr string `yaml:"listen_addr"`

	// DataDir is where the durable storage backend keeps its files. Empty
	// selects the noop backend, for ephemeral clusters.
	DataDir string `yaml:"data_dir"`

	RebalanceDebounce time.Duration `yaml:"rebalance_debounce"`
	RebalanceInterval time.Duration `yaml:"rebalance_interval"`
	MaxMovesPerRound  int           `yaml:"max_moves_per_round"`

	LivenessThreshold time.Duration `yaml:"liveness_threshold"`
	ProbeInterval     time.Duration `yaml:"probe_interval"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	ProbeConcurrency  int           `yaml:"probe_concurrency"`
	MaxStrikes        int           `yaml:"max_strikes"`

	PersistRetryBackoff time.Duration `yaml:"persist_retry_backoff"`
	PersistBacklogBound int           `yaml:"persist_backlog_bound"`

	NotificationBuffer int `yaml:"notification_buffer"`

	// LogLevel is a logrus level name: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		TotalShards:         256,
		ListenAddr:          ":8700",
		RebalanceDebounce:   300 * time.Millisecond,
		MaxMovesPerRound:    256,
		LivenessThreshold:   15 * time.Second,
		ProbeInterval:       5 * time.Second,
		PingTimeout:         2 * time.Second,
		ProbeConcurrency:    16,
		MaxStrikes:          3,
		PersistRetryBackoff: 100 * time.Millisecond,
		PersistBacklogBound: 1,
		NotificationBuffer:  16,
		LogLevel:            "info",
	}
}

// Load reads path as YAML over the defaults, then applies environment
// overrides. An empty path yields defaults plus overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, pkgerrors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, pkgerrors.Wrapf(err, "parse config %s", path)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides the operational knobs from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("SHARDMANAGER_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("SHARDMANAGER_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("SHARDMANAGER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate rejects configurations the manager cannot run with.
func (c Config) Validate() error {
	if c.TotalShards < 1 {
		return pkgerrors.Errorf("total_shards must be >= 1, got %d", c.TotalShards)
	}
	if c.ListenAddr == "" {
		return pkgerrors.New("listen_addr must not be empty")
	}
	if c.RebalanceDebounce <= 0 {
		return pkgerrors.Errorf("rebalance_debounce must be positive, got %v", c.RebalanceDebounce)
	}
	if c.LivenessThreshold <= 0 {
		return pkgerrors.Errorf("liveness_threshold must be positive, got %v", c.LivenessThreshold)
	}
	if c.PingTimeout <= 0 {
		return pkgerrors.Errorf("ping_timeout must be positive, got %v", c.PingTimeout)
	}
	if c.MaxStrikes < 1 {
		return pkgerrors.Errorf("max_strikes must be >= 1, got %d", c.MaxStrikes)
	}
	if c.NotificationBuffer < 1 {
		return pkgerrors.Errorf("notification_buffer must be >= 1, got %d", c.NotificationBuffer)
	}
	return nil
}
