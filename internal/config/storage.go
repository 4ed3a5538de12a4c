package config

import (
	"fmt"
	"os"
	"strings"
)

// Index backends.
const (
	IndexSQL    = "sql"
	IndexMemory = "memory"
)

// Entity source backends.
const (
	SourceSQL    = "sql"
	SourceMongo  = "mongo"
	SourceMemory = "memory"
)

// StorageConfig selects where the index lives and where watched tables are read.
type StorageConfig struct {
	// Index is "sql" or "memory".
	Index string `yaml:"index"`

	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite or a connection URL for postgres.
	DSN string `yaml:"dsn"`

	// Source is "sql" (same database as the index), "mongo" or "memory".
	Source string      `yaml:"source"`
	Mongo  MongoConfig `yaml:"mongo"`
}

// MongoConfig locates watched collections stored in MongoDB.
type MongoConfig struct {
	URI          string `yaml:"uri"`
	DatabaseName string `yaml:"database_name"`
}

// DefaultStorageConfig returns default storage configuration
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Index:  IndexSQL,
		Driver: "sqlite",
		DSN:    "datewatch.db",
		Source: SourceSQL,
		Mongo: MongoConfig{
			URI:          "mongodb://localhost:27017",
			DatabaseName: "app",
		},
	}
}

func (c *StorageConfig) ApplyDefaults() {
	d := DefaultStorageConfig()
	if c.Index == "" {
		c.Index = d.Index
	}
	if c.Driver == "" {
		c.Driver = d.Driver
	}
	if c.DSN == "" && c.Driver == d.Driver {
		c.DSN = d.DSN
	}
	if c.Source == "" {
		c.Source = d.Source
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = d.Mongo.URI
	}
	if c.Mongo.DatabaseName == "" {
		c.Mongo.DatabaseName = d.Mongo.DatabaseName
	}
}

func (c *StorageConfig) ApplyEnvOverrides() {
	if v := os.Getenv("DATEWATCH_STORAGE_DRIVER"); v != "" {
		c.Driver = v
	}
	if v := os.Getenv("DATEWATCH_STORAGE_DSN"); v != "" {
		c.DSN = v
	}
	if v := os.Getenv("DATEWATCH_MONGO_URI"); v != "" {
		c.Mongo.URI = v
	}
	if v := os.Getenv("DATEWATCH_MONGO_DATABASE"); v != "" {
		c.Mongo.DatabaseName = v
	}
}

// ResolvePaths places a relative sqlite file inside dataDir. URIs and the
// in-memory database are left alone.
func (c *StorageConfig) ResolvePaths(_, dataDir string) {
	if c.Driver != "sqlite" {
		return
	}
	if c.DSN == ":memory:" || strings.HasPrefix(c.DSN, "file:") {
		return
	}
	c.DSN = resolveIn(dataDir, c.DSN)
}

// UsesSQL reports whether a SQL connection is needed.
func (c *StorageConfig) UsesSQL() bool {
	return c.Index == IndexSQL || c.Source == SourceSQL
}

func (c *StorageConfig) Validate() error {
	switch c.Index {
	case IndexSQL, IndexMemory:
	default:
		return fmt.Errorf("invalid storage index: %s (must be sql or memory)", c.Index)
	}
	switch c.Source {
	case SourceSQL, SourceMongo, SourceMemory:
	default:
		return fmt.Errorf("invalid storage source: %s (must be sql, mongo or memory)", c.Source)
	}
	if c.UsesSQL() {
		if c.Driver != "sqlite" && c.Driver != "postgres" {
			return fmt.Errorf("invalid storage driver: %s (must be sqlite or postgres)", c.Driver)
		}
		if c.DSN == "" {
			return fmt.Errorf("storage dsn is required for driver %s", c.Driver)
		}
	}
	if c.Source == SourceMongo {
		if c.Mongo.URI == "" || c.Mongo.DatabaseName == "" {
			return fmt.Errorf("mongo uri and database_name are required for the mongo source")
		}
	}
	return nil
}
