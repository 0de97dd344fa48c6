// Package config loads the lakeview configuration file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreS3    = "s3"
	StoreGCS   = "gcs"
	StoreAzure = "azure"
	StoreMinIO = "minio"
	StoreLocal = "local"
)

// Partition non-match policies.
const (
	NonMatchRetain = "retain"
	NonMatchReject = "reject"
)

// Defaults applied by Load.
const (
	DefaultManifestName = "_tables.json"
	DefaultCacheTTL     = time.Minute
	DefaultSampleBytes  = 64 << 10
	DefaultPrefetch     = 1000
	DefaultProxyPort    = 5433
)

// StoreConfig selects and configures the object-store backend.
type StoreConfig struct {
	Kind   string `yaml:"kind"`
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`

	// S3
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyID"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	UsePathStyle    bool   `yaml:"usePathStyle"`

	// MinIO; shares the S3 credential fields
	UseSSL bool `yaml:"useSSL"`

	// GCS
	CredentialsFile string `yaml:"credentialsFile"`

	// Azure
	AccountName string `yaml:"accountName"`
	AccountKey  string `yaml:"accountKey"`

	// Local
	Root string `yaml:"root"`
}

// Config is threaded explicitly through every constructor; nothing reads
// it from package state.
type Config struct {
	Store StoreConfig `yaml:"store"`

	// Schemas maps a schema name to its root path in the store.
	Schemas map[string]string `yaml:"schemas"`

	Catalog struct {
		ManifestName string        `yaml:"manifestName"`
		CacheTTL     time.Duration `yaml:"cacheTTL"`
	} `yaml:"catalog"`

	Schema struct {
		SampleBytes int64 `yaml:"sampleBytes"`
	} `yaml:"schema"`

	Split struct {
		Prefetch int `yaml:"prefetch"`
	} `yaml:"split"`

	Partition struct {
		NonMatchPolicy string `yaml:"nonMatchPolicy"`
	} `yaml:"partition"`

	Proxy struct {
		Port int `yaml:"port"`
	} `yaml:"proxy"`

	// Metrics.Port of 0 disables the Prometheus endpoint.
	Metrics struct {
		Port int `yaml:"port"`
	} `yaml:"metrics"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// LoadConfig reads path, applies environment overrides and defaults, and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LAKEVIEW_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LAKEVIEW_S3_ACCESS_KEY_ID"); v != "" {
		c.Store.AccessKeyID = v
	}
	if v := os.Getenv("LAKEVIEW_S3_SECRET_ACCESS_KEY"); v != "" {
		c.Store.SecretAccessKey = v
	}
	if v := os.Getenv("LAKEVIEW_AZURE_ACCOUNT_KEY"); v != "" {
		c.Store.AccountKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.Catalog.ManifestName == "" {
		c.Catalog.ManifestName = DefaultManifestName
	}
	if c.Catalog.CacheTTL == 0 {
		c.Catalog.CacheTTL = DefaultCacheTTL
	}
	if c.Schema.SampleBytes == 0 {
		c.Schema.SampleBytes = DefaultSampleBytes
	}
	if c.Split.Prefetch == 0 {
		c.Split.Prefetch = DefaultPrefetch
	}
	if c.Partition.NonMatchPolicy == "" {
		c.Partition.NonMatchPolicy = NonMatchRetain
	}
	if c.Proxy.Port == 0 {
		c.Proxy.Port = DefaultProxyPort
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Store.Kind {
	case StoreS3, StoreGCS:
		if c.Store.Bucket == "" {
			return fmt.Errorf("store.bucket is required for %s", c.Store.Kind)
		}
	case StoreAzure:
		if c.Store.Bucket == "" || c.Store.AccountName == "" {
			return fmt.Errorf("store.bucket (container) and store.accountName are required for azure")
		}
	case StoreMinIO:
		if c.Store.Bucket == "" || c.Store.Endpoint == "" {
			return fmt.Errorf("store.bucket and store.endpoint are required for minio")
		}
	case StoreLocal:
		if c.Store.Root == "" {
			return fmt.Errorf("store.root is required for local")
		}
	default:
		return fmt.Errorf("unknown store.kind %q", c.Store.Kind)
	}

	if len(c.Schemas) == 0 {
		return fmt.Errorf("at least one schema must be configured")
	}
	for name, root := range c.Schemas {
		if !strings.HasPrefix(root, "/") {
			return fmt.Errorf("schema %q root %q must be absolute", name, root)
		}
	}

	switch c.Partition.NonMatchPolicy {
	case NonMatchRetain, NonMatchReject:
	default:
		return fmt.Errorf("unknown partition.nonMatchPolicy %q", c.Partition.NonMatchPolicy)
	}

	if c.Catalog.CacheTTL < 0 {
		return fmt.Errorf("catalog.cacheTTL must not be negative")
	}
	if c.Metrics.Port < 0 {
		return fmt.Errorf("metrics.port must not be negative")
	}
	if c.Schema.SampleBytes < 0 || c.Split.Prefetch < 0 {
		return fmt.Errorf("schema.sampleBytes and split.prefetch must not be negative")
	}
	return nil
}

// SlogLevel maps the configured level string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
