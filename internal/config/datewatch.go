package config

import (
	"fmt"
	"os"
	"time"
)

// DatewatchConfig configures sweeping, change intake and task delivery.
type DatewatchConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// SweepDelay is the pause between capturing now and scanning the index.
	// Nil means the default; zero disables the pause.
	SweepDelay *time.Duration `yaml:"sweep_delay"`

	// WatchFile declares watchers whose notifications are published as
	// tasks. Relative paths resolve inside the config directory.
	WatchFile         string        `yaml:"watch_file"`
	WatchFileDebounce time.Duration `yaml:"watch_file_debounce"`

	Intake   IntakeConfig   `yaml:"intake"`
	Delivery DeliveryConfig `yaml:"delivery"`
}

// IntakeConfig configures the change event consumer.
type IntakeConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Workers        int           `yaml:"workers"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// DeliveryConfig configures notification task publishing.
type DeliveryConfig struct {
	IncludeRecord bool `yaml:"include_record"`
	RetryAttempts int  `yaml:"retry_attempts"`
}

const defaultSweepDelay = time.Second

// DefaultDatewatchConfig returns default datewatch configuration
func DefaultDatewatchConfig() DatewatchConfig {
	return DatewatchConfig{
		SweepInterval:     time.Minute,
		WatchFile:         "watchers.yml",
		WatchFileDebounce: 200 * time.Millisecond,
		Intake: IntakeConfig{
			Enabled:        true,
			Workers:        8,
			MaxAttempts:    5,
			InitialBackoff: time.Second,
			MaxBackoff:     time.Minute,
		},
		Delivery: DeliveryConfig{
			IncludeRecord: true,
			RetryAttempts: 3,
		},
	}
}

// Delay returns the effective sweep delay.
func (c *DatewatchConfig) Delay() time.Duration {
	if c.SweepDelay == nil {
		return defaultSweepDelay
	}
	return *c.SweepDelay
}

func (c *DatewatchConfig) ApplyDefaults() {
	d := DefaultDatewatchConfig()
	if c.SweepInterval == 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.SweepDelay == nil {
		delay := defaultSweepDelay
		c.SweepDelay = &delay
	}
	if c.WatchFileDebounce == 0 {
		c.WatchFileDebounce = d.WatchFileDebounce
	}
	if c.Intake.Workers == 0 {
		c.Intake.Workers = d.Intake.Workers
	}
	if c.Intake.MaxAttempts == 0 {
		c.Intake.MaxAttempts = d.Intake.MaxAttempts
	}
	if c.Intake.InitialBackoff == 0 {
		c.Intake.InitialBackoff = d.Intake.InitialBackoff
	}
	if c.Intake.MaxBackoff == 0 {
		c.Intake.MaxBackoff = d.Intake.MaxBackoff
	}
	if c.Delivery.RetryAttempts == 0 {
		c.Delivery.RetryAttempts = d.Delivery.RetryAttempts
	}
}

func (c *DatewatchConfig) ApplyEnvOverrides() {
	if v := os.Getenv("DATEWATCH_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SweepInterval = d
		}
	}
	if v := os.Getenv("DATEWATCH_WATCH_FILE"); v != "" {
		c.WatchFile = v
	}
}

func (c *DatewatchConfig) ResolvePaths(configDir, _ string) {
	c.WatchFile = resolveIn(configDir, c.WatchFile)
}

func (c *DatewatchConfig) Validate() error {
	if c.SweepInterval <= 0 {
		return fmt.Errorf("datewatch.sweep_interval must be positive")
	}
	if c.SweepDelay != nil && *c.SweepDelay < 0 {
		return fmt.Errorf("datewatch.sweep_delay cannot be negative")
	}
	if c.SweepDelay != nil && *c.SweepDelay >= c.SweepInterval {
		return fmt.Errorf("datewatch.sweep_delay (%s) must be shorter than sweep_interval (%s)", *c.SweepDelay, c.SweepInterval)
	}
	if c.Intake.Workers < 0 {
		return fmt.Errorf("datewatch.intake.workers cannot be negative")
	}
	if c.Intake.MaxAttempts < 0 {
		return fmt.Errorf("datewatch.intake.max_attempts cannot be negative")
	}
	if c.Intake.MaxBackoff < c.Intake.InitialBackoff {
		return fmt.Errorf("datewatch.intake.max_backoff must not be shorter than initial_backoff")
	}
	if c.Delivery.RetryAttempts < 0 {
		return fmt.Errorf("datewatch.delivery.retry_attempts cannot be negative")
	}
	return nil
}
