package config

import (
	"fmt"
	"os"
)

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// DefaultMetricsConfig returns default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled: true,
		Listen:  ":9464",
		Path:    "/metrics",
	}
}

func (c *MetricsConfig) ApplyDefaults() {
	d := DefaultMetricsConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Path == "" {
		c.Path = d.Path
	}
}

func (c *MetricsConfig) ApplyEnvOverrides() {
	if v := os.Getenv("DATEWATCH_METRICS_LISTEN"); v != "" {
		c.Listen = v
	}
}

func (c *MetricsConfig) ResolvePaths(_, _ string) {}

func (c *MetricsConfig) Validate() error {
	if c.Path[0] != '/' {
		return fmt.Errorf("metrics.path must start with '/': %s", c.Path)
	}
	return nil
}
