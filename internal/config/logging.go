package config

import (
	"fmt"
	"os"
)

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string         `yaml:"level"`  // debug, info, warn, error
	Format   string         `yaml:"format"` // text, json
	Dir      string         `yaml:"dir"`    // relative to data_dir
	Rotation RotationConfig `yaml:"rotation"`
	Console  OutputConfig   `yaml:"console"`
	File     OutputConfig   `yaml:"file"`
}

// RotationConfig holds lumberjack rotation settings
type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`    // MB
	MaxBackups int  `yaml:"max_backups"` // files
	MaxAge     int  `yaml:"max_age"`     // days
	Compress   bool `yaml:"compress"`
}

// OutputConfig configures one log destination. Empty Level and Format
// inherit from the top-level settings.
type OutputConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	// Color enables ANSI level colours on the console text format.
	Color bool `yaml:"color"`
}

var (
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"text": true, "json": true}
)

// DefaultLoggingConfig returns default logging configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "text",
		Dir:    "logs",
		Rotation: RotationConfig{
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		},
		Console: OutputConfig{Enabled: true},
		File:    OutputConfig{Enabled: true},
	}
}

func (c *LoggingConfig) ApplyDefaults() {
	d := DefaultLoggingConfig()
	if c.Level == "" {
		c.Level = d.Level
	}
	if c.Format == "" {
		c.Format = d.Format
	}
	if c.Dir == "" {
		c.Dir = d.Dir
	}
	if c.Rotation.MaxSize == 0 {
		c.Rotation.MaxSize = d.Rotation.MaxSize
	}
	if c.Rotation.MaxBackups == 0 {
		c.Rotation.MaxBackups = d.Rotation.MaxBackups
	}
	if c.Rotation.MaxAge == 0 {
		c.Rotation.MaxAge = d.Rotation.MaxAge
	}
	for _, out := range []*OutputConfig{&c.Console, &c.File} {
		if out.Level == "" {
			out.Level = c.Level
		}
		if out.Format == "" {
			out.Format = c.Format
		}
	}
}

func (c *LoggingConfig) ApplyEnvOverrides() {
	if v := os.Getenv("DATEWATCH_LOG_LEVEL"); v != "" {
		c.Level = v
		c.Console.Level = v
		c.File.Level = v
	}
	if v := os.Getenv("DATEWATCH_LOG_DIR"); v != "" {
		c.Dir = v
	}
}

func (c *LoggingConfig) ResolvePaths(_, dataDir string) {
	c.Dir = resolveIn(dataDir, c.Dir)
}

func (c *LoggingConfig) Validate() error {
	if !validLevels[c.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Level)
	}
	if !validFormats[c.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Format)
	}
	if c.File.Enabled && c.Dir == "" {
		return fmt.Errorf("log directory cannot be empty")
	}
	for name, out := range map[string]OutputConfig{"console": c.Console, "file": c.File} {
		if !out.Enabled {
			continue
		}
		if !validLevels[out.Level] {
			return fmt.Errorf("invalid %s log level: %s", name, out.Level)
		}
		if !validFormats[out.Format] {
			return fmt.Errorf("invalid %s log format: %s", name, out.Format)
		}
	}
	return nil
}
