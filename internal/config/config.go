package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/dhanbg/traditionalalley-sub002/pkg/config"
)

// Config holds all configuration for the cart sync service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"CARTSYNC_HTTP_PORT" envDefault:"8007"`

	// Remote line-item store
	RemoteStoreURL   string `env:"REMOTE_STORE_URL" envDefault:"http://localhost:1337"`
	RemoteStoreToken string `env:"REMOTE_STORE_TOKEN" envDefault:""`

	// Catalog service
	CatalogURL string `env:"CATALOG_URL" envDefault:"http://localhost:1337"`

	// Per-operation deadline for remote sync calls
	SyncOpTimeout time.Duration `env:"SYNC_OP_TIMEOUT" envDefault:"10s"`

	// Redis, for cart snapshots
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Snapshot TTL in hours (default: 7 days)
	SnapshotTTL int `env:"SNAPSHOT_TTL_HOURS" envDefault:"168"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Tracing
	TracingEnabled bool   `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"localhost:4318"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cartsync config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.RemoteStoreURL == "" {
		return fmt.Errorf("remote store URL is required")
	}
	if c.SyncOpTimeout <= 0 {
		return fmt.Errorf("invalid sync op timeout: %s", c.SyncOpTimeout)
	}
	return nil
}
