package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// DataDir anchors runtime files. Relative values resolve next to the
	// config directory.
	DataDir string `yaml:"data_dir"`

	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	Datewatch DatewatchConfig `yaml:"datewatch"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:   "data",
		Logging:   DefaultLoggingConfig(),
		Storage:   DefaultStorageConfig(),
		PubSub:    DefaultPubSubConfig(),
		Datewatch: DefaultDatewatchConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// Load builds the configuration from configDir.
// Order: defaults -> config.yml -> config.local.yml -> ApplyDefaults ->
// ApplyEnvOverrides -> ResolvePaths -> Validate
func Load(configDir string) (*Config, error) {
	cfg := Default()

	for _, name := range []string{"config.yml", "config.local.yml"} {
		if err := loadFile(filepath.Join(configDir, name), cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Finalize(configDir); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize runs the section lifecycle. It is exported for callers that build
// a Config in code.
func (c *Config) Finalize(configDir string) error {
	if v := os.Getenv("DATEWATCH_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	c.DataDir = resolveBeside(configDir, c.DataDir)

	if err := ApplyServiceConfigs(configDir, c.DataDir,
		&c.Logging,
		&c.Storage,
		&c.PubSub,
		&c.Datewatch,
		&c.Metrics,
	); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	return nil
}

func loadFile(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		slog.Warn("Error reading config file", "file", filename, "error", err)
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	return nil
}

// resolveBeside resolves p next to configDir, so "logs" lands beside
// "config/" rather than inside it. Paths starting with ".." are taken
// relative to configDir itself.
func resolveBeside(configDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if len(p) >= 2 && p[:2] == ".." {
		return filepath.Clean(filepath.Join(configDir, p))
	}
	return filepath.Clean(filepath.Join(filepath.Dir(configDir), p))
}

// resolveIn resolves p inside base.
func resolveIn(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}
