package config

import (
	"fmt"
	"os"
)

// PubSub providers.
const (
	PubSubMemory = "memory"
	PubSubNATS   = "nats"
)

// PubSubConfig selects the broker carrying change events and notification tasks.
type PubSubConfig struct {
	Provider string `yaml:"provider"` // memory or nats
	NatsURL  string `yaml:"nats_url"`
	// Storage is the JetStream storage type: memory or file.
	Storage string `yaml:"storage"`
}

// DefaultPubSubConfig returns default pubsub configuration
func DefaultPubSubConfig() PubSubConfig {
	return PubSubConfig{
		Provider: PubSubMemory,
		NatsURL:  "nats://localhost:4222",
		Storage:  "file",
	}
}

func (c *PubSubConfig) ApplyDefaults() {
	d := DefaultPubSubConfig()
	if c.Provider == "" {
		c.Provider = d.Provider
	}
	if c.NatsURL == "" {
		c.NatsURL = d.NatsURL
	}
	if c.Storage == "" {
		c.Storage = d.Storage
	}
}

func (c *PubSubConfig) ApplyEnvOverrides() {
	if v := os.Getenv("DATEWATCH_PUBSUB_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("DATEWATCH_NATS_URL"); v != "" {
		c.NatsURL = v
	}
}

func (c *PubSubConfig) ResolvePaths(_, _ string) {}

func (c *PubSubConfig) Validate() error {
	switch c.Provider {
	case PubSubMemory:
	case PubSubNATS:
		if c.NatsURL == "" {
			return fmt.Errorf("pubsub.nats_url is required for the nats provider")
		}
	default:
		return fmt.Errorf("invalid pubsub provider: %s (must be memory or nats)", c.Provider)
	}
	if c.Storage != "memory" && c.Storage != "file" {
		return fmt.Errorf("invalid pubsub storage: %s (must be memory or file)", c.Storage)
	}
	return nil
}
