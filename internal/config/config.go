// Package config defines the top-level configuration for the mocktrade
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MOCKTRADE_* environment
// variables.
type Config struct {
	Feed     FeedConfig     `toml:"feed"`
	Engine   EngineConfig   `toml:"engine"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	Notify   NotifyConfig   `toml:"notify"`
	LogLevel string         `toml:"log_level"`
}

// FeedConfig holds upstream feed connection and reconnect parameters.
type FeedConfig struct {
	URL                   string   `toml:"url"`
	ConnectTimeout        duration `toml:"connect_timeout"`
	InitialReconnectDelay duration `toml:"initial_reconnect_delay"`
	MaxReconnectDelay     duration `toml:"max_reconnect_delay"`
	LivenessInterval      duration `toml:"liveness_interval"`
	ResubscribeAt         string   `toml:"resubscribe_at"` // "HH:MM" local, empty disables
	MatchWorkers          int      `toml:"match_workers"`
}

// EngineConfig holds matching and execution parameters.
type EngineConfig struct {
	QueueKey        string   `toml:"queue_key"`
	DrainInterval   duration `toml:"drain_interval"`
	StalenessWindow duration `toml:"staleness_window"`
	PriceCacheTTL   duration `toml:"price_cache_ttl"`
	DrainLock       bool     `toml:"drain_lock"`
	ReindexOnStart  bool     `toml:"reindex_on_start"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// NotifyConfig holds notification delivery parameters.
type NotifyConfig struct {
	PubSubEnabled bool   `toml:"pubsub_enabled"`
	WebhookURL    string `toml:"webhook_url"`
}

// duration wraps time.Duration for TOML decoding.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "100ms".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			URL:                   "wss://api.upbit.com/websocket/v1",
			ConnectTimeout:        duration{15 * time.Second},
			InitialReconnectDelay: duration{1 * time.Second},
			MaxReconnectDelay:     duration{60 * time.Second},
			LivenessInterval:      duration{30 * time.Second},
			ResubscribeAt:         "09:00",
			MatchWorkers:          16,
		},
		Engine: EngineConfig{
			QueueKey:        "queue:executions",
			DrainInterval:   duration{100 * time.Millisecond},
			StalenessWindow: duration{5 * time.Minute},
			PriceCacheTTL:   duration{10 * time.Second},
			DrainLock:       false,
			ReindexOnStart:  false,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "mocktrade",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Notify: NotifyConfig{
			PubSubEnabled: true,
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Feed
	if c.Feed.URL == "" {
		errs = append(errs, "feed: url must not be empty")
	}
	if c.Feed.ConnectTimeout.Duration <= 0 {
		errs = append(errs, "feed: connect_timeout must be positive")
	}
	if c.Feed.InitialReconnectDelay.Duration <= 0 {
		errs = append(errs, "feed: initial_reconnect_delay must be positive")
	}
	if c.Feed.MaxReconnectDelay.Duration < c.Feed.InitialReconnectDelay.Duration {
		errs = append(errs, "feed: max_reconnect_delay must be >= initial_reconnect_delay")
	}
	if c.Feed.MatchWorkers < 1 {
		errs = append(errs, "feed: match_workers must be >= 1")
	}
	if c.Feed.ResubscribeAt != "" {
		if _, err := time.Parse("15:04", c.Feed.ResubscribeAt); err != nil {
			errs = append(errs, fmt.Sprintf("feed: resubscribe_at %q is not HH:MM", c.Feed.ResubscribeAt))
		}
	}

	// Engine
	if c.Engine.QueueKey == "" {
		errs = append(errs, "engine: queue_key must not be empty")
	}
	if c.Engine.DrainInterval.Duration <= 0 {
		errs = append(errs, "engine: drain_interval must be positive")
	}
	if c.Engine.StalenessWindow.Duration <= 0 {
		errs = append(errs, "engine: staleness_window must be positive")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
