// Package config provides a small typed view over a TOML configuration
// file, in the teacher's flag/env-driven cmd style but decoded with
// github.com/BurntSushi/toml the way Limetric-pgferry configures itself.
// Unknown keys are ignored; missing keys fall back to defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultSchemaCacheSize           = 10000
	DefaultSchemaCacheExpiryInterval = 3600 * time.Second
	defaultHTTPAddr                  = ":8081"
	defaultMetricsAddr               = ":9090"
)

// Config is the registry's full runtime configuration.
type Config struct {
	HTTPAddr    string `toml:"http_addr"`
	MetricsAddr string `toml:"metrics_addr"`

	Schema   SchemaConfig   `toml:"schema"`
	Postgres PostgresConfig `toml:"postgres"`
	Minio    MinioConfig    `toml:"minio"`
	Nats     NatsConfig     `toml:"nats"`

	// Backend selects the storage/file-store implementation: "memory" or
	// "postgres"/"minio" respectively. Defaults to "memory", matching the
	// teacher's own TestMode fallback for running without external
	// dependencies.
	Backend string `toml:"backend"`
}

// NatsConfig configures the optional schema-version-registered event
// feed. URL is empty by default, which leaves the engine's notifier at
// its no-op default; an operator opts in by pointing it at a running
// NATS server, the way the teacher always assumed one was present.
type NatsConfig struct {
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

const defaultNatsSubject = "schemaregistry.events.version-registered"

// SchemaConfig holds the two enumerated cache tuning keys from the
// configuration surface: cache size and per-entry expiry.
type SchemaConfig struct {
	CacheSize           int   `toml:"cache_size"`
	CacheExpiryInterval int64 `toml:"cache_expiry_interval"`
}

// CacheTTL returns CacheExpiryInterval as a time.Duration.
func (s SchemaConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheExpiryInterval) * time.Second
}

// PostgresConfig is the storage-port connection configuration.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	DbName   string `toml:"dbname"`
	SSLMode  string `toml:"sslmode"`
}

// MinioConfig is the file-store-port connection configuration.
type MinioConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Default returns a Config with every enumerated key at its documented
// default.
func Default() Config {
	return Config{
		HTTPAddr:    defaultHTTPAddr,
		MetricsAddr: defaultMetricsAddr,
		Backend:     "memory",
		Schema: SchemaConfig{
			CacheSize:           DefaultSchemaCacheSize,
			CacheExpiryInterval: int64(DefaultSchemaCacheExpiryInterval / time.Second),
		},
		Postgres: PostgresConfig{SSLMode: "disable"},
	}
}

// Load reads path as TOML over the defaults, then applies environment
// overrides for the connection secrets an operator would not want
// checked into a config file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("SCHEMAREGISTRY_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("SCHEMAREGISTRY_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("SCHEMAREGISTRY_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SCHEMAREGISTRY_MINIO_SECRET_KEY"); v != "" {
		cfg.Minio.SecretKey = v
	}
	if v := os.Getenv("SCHEMAREGISTRY_NATS_URL"); v != "" {
		cfg.Nats.URL = v
	}

	if cfg.Nats.URL != "" && cfg.Nats.Subject == "" {
		cfg.Nats.Subject = defaultNatsSubject
	}

	if cfg.Schema.CacheSize <= 0 {
		cfg.Schema.CacheSize = DefaultSchemaCacheSize
	}
	if cfg.Schema.CacheExpiryInterval <= 0 {
		cfg.Schema.CacheExpiryInterval = int64(DefaultSchemaCacheExpiryInterval / time.Second)
	}

	return cfg, nil
}
