package config

// ServiceConfig is the lifecycle every configuration section implements.
type ServiceConfig interface {
	// ApplyDefaults fills zero values with defaults
	ApplyDefaults()

	// ApplyEnvOverrides applies DATEWATCH_* environment variables
	ApplyEnvOverrides()

	// ResolvePaths makes relative paths absolute. configDir anchors
	// configuration files such as the watcher file; dataDir anchors runtime
	// data such as logs and the SQLite database.
	ResolvePaths(configDir, dataDir string)

	// Validate returns an error if the section is unusable.
	Validate() error
}

// ApplyServiceConfigs runs the lifecycle over every section in order and
// stops at the first validation error.
func ApplyServiceConfigs(configDir, dataDir string, configs ...ServiceConfig) error {
	for _, cfg := range configs {
		cfg.ApplyDefaults()
		cfg.ApplyEnvOverrides()
		cfg.ResolvePaths(configDir, dataDir)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	return nil
}
