// Package config loads server configuration from a YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pagedb/internal/storage"
)

// LogConfig selects log level and output format.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the full process configuration. Page size and buffer
// capacity are process configuration and are never embedded in data
// files; opening a database with a different page size than it was
// written with is the operator's responsibility.
type Config struct {
	ListenAddr    string    `yaml:"listen_addr"`
	DataDir       string    `yaml:"data_dir"`
	PageSize      int       `yaml:"page_size"`
	BufferFrames  int       `yaml:"buffer_frames"`
	Log           LogConfig `yaml:"log"`
	DeadlockSweep string    `yaml:"deadlock_sweep"`
	Checkpoint    string    `yaml:"checkpoint"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:    "127.0.0.1:8080",
		DataDir:       "./pagedb-data",
		PageSize:      storage.DefaultPageSize,
		BufferFrames:  64,
		Log:           LogConfig{Level: "info"},
		DeadlockSweep: "@every 1s",
		Checkpoint:    "@every 30s",
	}
}

// Load reads a config file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.PageSize <= 0 || cfg.BufferFrames <= 0 {
		return cfg, fmt.Errorf("page_size and buffer_frames must be positive")
	}
	return cfg, nil
}
