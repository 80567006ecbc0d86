package tessera

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config consolidates engine settings.
type Config struct {
	Federation FederationConfig `json:"federation" yaml:"federation"`
	Snapshot   SnapshotConfig   `json:"snapshot" yaml:"snapshot"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`

	// Sources optionally pre-declares data sources to connect at startup.
	Sources []DataSource `json:"sources,omitempty" yaml:"sources,omitempty"`

	// Mappings optionally pre-declares schema mappings.
	Mappings []SchemaMapping `json:"mappings,omitempty" yaml:"mappings,omitempty"`
}

// FederationConfig contains query execution and caching settings.
type FederationConfig struct {
	// RefreshInterval is the materialized-strategy cache window.
	RefreshInterval time.Duration `json:"refreshInterval" yaml:"refresh_interval"`

	// ConnectTimeout bounds adapter connect calls.
	ConnectTimeout time.Duration `json:"connectTimeout" yaml:"connect_timeout"`

	// FetchTimeout bounds a single collection fetch.
	FetchTimeout time.Duration `json:"fetchTimeout" yaml:"fetch_timeout"`

	// MaxRows caps rows fetched per collection; 0 means unbounded.
	MaxRows int `json:"maxRows" yaml:"max_rows"`

	Breaker BreakerConfig `json:"breaker" yaml:"breaker"`
}

// BreakerConfig tunes the per-source circuit breaker.
type BreakerConfig struct {
	Threshold    int           `json:"threshold" yaml:"threshold"`
	Window       time.Duration `json:"window" yaml:"window"`
	OpenDuration time.Duration `json:"openDuration" yaml:"open_duration"`
}

// SnapshotConfig selects and tunes the snapshot store backend.
type SnapshotConfig struct {
	// Store is "memory" or "s3".
	Store string   `json:"store" yaml:"store"`
	S3    S3Config `json:"s3" yaml:"s3"`
}

// S3Config contains settings for the S3-backed snapshot store.
type S3Config struct {
	Bucket    string `json:"bucket" yaml:"bucket"`
	Prefix    string `json:"prefix" yaml:"prefix"`
	Region    string `json:"region" yaml:"region"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	AccessKey string `json:"accessKey,omitempty" yaml:"access_key,omitempty"`
	SecretKey string `json:"secretKey,omitempty" yaml:"secret_key,omitempty"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level          string `json:"level" yaml:"level"`
	Format         string `json:"format" yaml:"format"`
	LogQueries     bool   `json:"logQueries" yaml:"log_queries"`
	LogSlowQueries bool   `json:"logSlowQueries" yaml:"log_slow_queries"`

	SlowQueryThreshold time.Duration `json:"slowQueryThreshold" yaml:"slow_query_threshold"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Federation: FederationConfig{
			RefreshInterval: 15 * time.Minute,
			ConnectTimeout:  10 * time.Second,
			FetchTimeout:    30 * time.Second,
			MaxRows:         10000,
			Breaker: BreakerConfig{
				Threshold:    5,
				Window:       1 * time.Minute,
				OpenDuration: 30 * time.Second,
			},
		},
		Snapshot: SnapshotConfig{
			Store: "memory",
		},
		Logging: LoggingConfig{
			Level:              "info",
			Format:             "json",
			LogQueries:         false,
			LogSlowQueries:     true,
			SlowQueryThreshold: 1 * time.Second,
		},
	}
}

// LoadConfigFile reads a YAML config file on top of the defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Federation.RefreshInterval <= 0 {
		return &ConfigError{Field: "federation.refresh_interval", Message: "must be greater than 0"}
	}
	if c.Federation.ConnectTimeout <= 0 {
		return &ConfigError{Field: "federation.connect_timeout", Message: "must be greater than 0"}
	}
	if c.Federation.FetchTimeout <= 0 {
		return &ConfigError{Field: "federation.fetch_timeout", Message: "must be greater than 0"}
	}
	if c.Federation.MaxRows < 0 {
		return &ConfigError{Field: "federation.max_rows", Message: "must not be negative"}
	}
	switch c.Snapshot.Store {
	case "memory":
	case "s3":
		if c.Snapshot.S3.Bucket == "" {
			return &ConfigError{Field: "snapshot.s3.bucket", Message: "required when snapshot.store is s3"}
		}
	default:
		return &ConfigError{Field: "snapshot.store", Message: "must be 'memory' or 's3'"}
	}
	for i, src := range c.Sources {
		if src.ID == "" {
			return &ConfigError{Field: fmt.Sprintf("sources[%d].id", i), Message: "must not be empty"}
		}
		switch src.Type {
		case SourceTypePostgres, SourceTypeSQLite, SourceTypeDuckDB, SourceTypeMemory:
		default:
			return &ConfigError{Field: fmt.Sprintf("sources[%d].type", i), Message: "unknown source type '" + string(src.Type) + "'"}
		}
	}
	for i, m := range c.Mappings {
		if m.SourceCollection == "" || m.TargetCollection == "" {
			return &ConfigError{Field: fmt.Sprintf("mappings[%d]", i), Message: "source_collection and target_collection are required"}
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
