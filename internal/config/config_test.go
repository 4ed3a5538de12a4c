package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func newConfigDir(t *testing.T) (root, configDir string) {
	t.Helper()
	root = t.TempDir()
	configDir = filepath.Join(root, "config")
	require.NoError(t, os.Mkdir(configDir, 0755))
	return root, configDir
}

func TestLoad_Defaults(t *testing.T) {
	root, configDir := newConfigDir(t)

	cfg, err := Load(configDir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "data"), cfg.DataDir)
	assert.Equal(t, filepath.Join(root, "data", "logs"), cfg.Logging.Dir)
	assert.Equal(t, filepath.Join(root, "data", "datewatch.db"), cfg.Storage.DSN)
	assert.Equal(t, filepath.Join(configDir, "watchers.yml"), cfg.Datewatch.WatchFile)
	assert.Equal(t, IndexSQL, cfg.Storage.Index)
	assert.Equal(t, PubSubMemory, cfg.PubSub.Provider)
	assert.Equal(t, time.Minute, cfg.Datewatch.SweepInterval)
	assert.Equal(t, time.Second, cfg.Datewatch.Delay())
	assert.Equal(t, "info", cfg.Logging.Console.Level)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_FileAndLocalOverride(t *testing.T) {
	root, configDir := newConfigDir(t)
	writeConfig(t, configDir, "config.yml", `
data_dir: var
storage:
  driver: postgres
  dsn: postgres://localhost/app
pubsub:
  provider: nats
  nats_url: nats://broker:4222
datewatch:
  sweep_interval: 30s
  sweep_delay: 0s
  intake:
    workers: 2
logging:
  level: debug
`)
	writeConfig(t, configDir, "config.local.yml", `
datewatch:
  sweep_interval: 10s
`)

	cfg, err := Load(configDir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "var"), cfg.DataDir)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://localhost/app", cfg.Storage.DSN)
	assert.Equal(t, PubSubNATS, cfg.PubSub.Provider)
	assert.Equal(t, "nats://broker:4222", cfg.PubSub.NatsURL)
	assert.Equal(t, 10*time.Second, cfg.Datewatch.SweepInterval)
	assert.Equal(t, time.Duration(0), cfg.Datewatch.Delay())
	assert.Equal(t, 2, cfg.Datewatch.Intake.Workers)
	assert.Equal(t, 5, cfg.Datewatch.Intake.MaxAttempts)
	assert.Equal(t, "debug", cfg.Logging.File.Level)
}

func TestLoad_ParseError(t *testing.T) {
	_, configDir := newConfigDir(t)
	writeConfig(t, configDir, "config.local.yml", "not: [valid")

	_, err := Load(configDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.local.yml")
}

func TestLoad_ReadErrorKeepsDefaults(t *testing.T) {
	_, configDir := newConfigDir(t)
	require.NoError(t, os.Mkdir(filepath.Join(configDir, "config.yml"), 0755))

	cfg, err := Load(configDir)
	require.NoError(t, err)
	assert.Equal(t, IndexSQL, cfg.Storage.Index)
}

func TestLoad_EnvOverrides(t *testing.T) {
	root, configDir := newConfigDir(t)
	t.Setenv("DATEWATCH_DATA_DIR", "/srv/datewatch")
	t.Setenv("DATEWATCH_STORAGE_DSN", "custom.db")
	t.Setenv("DATEWATCH_NATS_URL", "nats://env:4222")
	t.Setenv("DATEWATCH_PUBSUB_PROVIDER", "nats")
	t.Setenv("DATEWATCH_LOG_LEVEL", "warn")
	t.Setenv("DATEWATCH_SWEEP_INTERVAL", "5m")
	t.Setenv("DATEWATCH_WATCH_FILE", "custom.json")
	t.Setenv("DATEWATCH_METRICS_LISTEN", "127.0.0.1:9000")

	cfg, err := Load(configDir)
	require.NoError(t, err)

	assert.NotContains(t, cfg.DataDir, root)
	assert.Equal(t, "/srv/datewatch", cfg.DataDir)
	assert.Equal(t, "/srv/datewatch/custom.db", cfg.Storage.DSN)
	assert.Equal(t, "nats://env:4222", cfg.PubSub.NatsURL)
	assert.Equal(t, PubSubNATS, cfg.PubSub.Provider)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "warn", cfg.Logging.Console.Level)
	assert.Equal(t, 5*time.Minute, cfg.Datewatch.SweepInterval)
	assert.Equal(t, filepath.Join(configDir, "custom.json"), cfg.Datewatch.WatchFile)
	assert.Equal(t, "127.0.0.1:9000", cfg.Metrics.Listen)
}

func TestLoad_ValidationError(t *testing.T) {
	_, configDir := newConfigDir(t)
	writeConfig(t, configDir, "config.yml", `
pubsub:
  provider: kafka
`)

	_, err := Load(configDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration error")
	assert.Contains(t, err.Error(), "kafka")
}

func TestResolveBeside(t *testing.T) {
	assert.Equal(t, "", resolveBeside("/app/config", ""))
	assert.Equal(t, "/abs", resolveBeside("/app/config", "/abs"))
	assert.Equal(t, "/app/data", resolveBeside("/app/config", "data"))
	assert.Equal(t, "/data", resolveBeside("/app/config", "../../data"))
}

func TestResolveIn(t *testing.T) {
	assert.Equal(t, "", resolveIn("/base", ""))
	assert.Equal(t, "/abs/x", resolveIn("/base", "/abs/x"))
	assert.Equal(t, "/base/x/y", resolveIn("/base", "x/y"))
}
