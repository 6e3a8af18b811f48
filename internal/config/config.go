// Package config provides configuration loading for the partition-pruner
// plan service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for the plan service.
type Config struct {
	// DataDir is the base directory for all local state.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// HTTP configuration for the plan API.
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Catalog configuration.
	Catalog CatalogConfig `json:"catalog" yaml:"catalog"`

	// Storage configuration for catalog snapshot backup/restore.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Observability configuration.
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// HTTPConfig holds HTTP server configuration for the plan API.
type HTTPConfig struct {
	// Addr is the HTTP address the plan API listens on.
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout.
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout.
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout.
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// CatalogConfig holds catalog database configuration.
type CatalogConfig struct {
	// Path is the SQLite catalog database path. Empty resolves to
	// <data_dir>/catalog.db.
	Path string `json:"path" yaml:"path"`

	// SnapshotPrefix is the object-storage prefix catalog snapshots are
	// pushed under and pulled from.
	SnapshotPrefix string `json:"snapshot_prefix" yaml:"snapshot_prefix"`

	// SnapshotInterval is how often this instance pushes a fresh snapshot
	// of its catalog to object storage. Zero disables periodic pushing.
	SnapshotInterval time.Duration `json:"snapshot_interval" yaml:"snapshot_interval"`

	// SnapshotRetain is how many of the most recent snapshots to keep under
	// SnapshotPrefix; older ones are deleted after each push.
	SnapshotRetain int `json:"snapshot_retain" yaml:"snapshot_retain"`
}

// StorageConfig holds object storage configuration for catalog snapshots.
type StorageConfig struct {
	// Type is the storage backend: local, s3.
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for the local backend).
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for the s3 backend).
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name.
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region.
	Region string `json:"region" yaml:"region"`

	// Endpoint is an optional S3-compatible endpoint override.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// MaxRetries is the number of retries for a failed upload/download
	// beyond the initial attempt. Zero resolves to the storage package's
	// default at client construction time.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RetryBaseDelay is the base of the exponential backoff between
	// retries. Zero resolves to the storage package's default.
	RetryBaseDelay time.Duration `json:"retry_base_delay" yaml:"retry_base_delay"`
}

// ObservabilityConfig holds pruning-statistics tracking configuration.
type ObservabilityConfig struct {
	// StatsWindow is the staleness threshold PruningStats.Prune applies: a
	// table not seen within it is dropped when Prune runs. Zero disables
	// pruning of stale entries. The service itself never calls Prune.
	StatsWindow time.Duration `json:"stats_window" yaml:"stats_window"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/partition-pruner",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Catalog: CatalogConfig{
			SnapshotPrefix:   "catalog-snapshots",
			SnapshotInterval: 5 * time.Minute,
			SnapshotRetain:   5,
		},
		Storage: StorageConfig{
			Type: "local",
		},
		Observability: ObservabilityConfig{
			StatsWindow: time.Hour,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/partition-pruner"
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = filepath.Join(c.DataDir, "catalog.db")
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv applies PRUNER_-prefixed environment variable overrides to cfg.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("PRUNER_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PRUNER_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("PRUNER_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("PRUNER_CATALOG_SNAPSHOT_PREFIX"); v != "" {
		cfg.Catalog.SnapshotPrefix = v
	}
	if v := os.Getenv("PRUNER_CATALOG_SNAPSHOT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Catalog.SnapshotInterval = d
		}
	}
	if v := os.Getenv("PRUNER_CATALOG_SNAPSHOT_RETAIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Catalog.SnapshotRetain = n
		}
	}
	if v := os.Getenv("PRUNER_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("PRUNER_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("PRUNER_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("PRUNER_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("PRUNER_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("PRUNER_S3_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.S3.MaxRetries = n
		}
	}
	if v := os.Getenv("PRUNER_S3_RETRY_BASE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Storage.S3.RetryBaseDelay = d
		}
	}
	if v := os.Getenv("PRUNER_STATS_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Observability.StatsWindow = d
		}
	}
}

// EnsureDirectories creates all required local directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
