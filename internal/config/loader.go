package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MOCKTRADE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MOCKTRADE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// Feed
	setStr(&cfg.Feed.URL, "MOCKTRADE_FEED_URL")
	setDuration(&cfg.Feed.ConnectTimeout, "MOCKTRADE_FEED_CONNECT_TIMEOUT")
	setDuration(&cfg.Feed.InitialReconnectDelay, "MOCKTRADE_FEED_INITIAL_RECONNECT_DELAY")
	setDuration(&cfg.Feed.MaxReconnectDelay, "MOCKTRADE_FEED_MAX_RECONNECT_DELAY")
	setDuration(&cfg.Feed.LivenessInterval, "MOCKTRADE_FEED_LIVENESS_INTERVAL")
	setStr(&cfg.Feed.ResubscribeAt, "MOCKTRADE_FEED_RESUBSCRIBE_AT")
	setInt(&cfg.Feed.MatchWorkers, "MOCKTRADE_FEED_MATCH_WORKERS")

	// Engine
	setStr(&cfg.Engine.QueueKey, "MOCKTRADE_ENGINE_QUEUE_KEY")
	setDuration(&cfg.Engine.DrainInterval, "MOCKTRADE_ENGINE_DRAIN_INTERVAL")
	setDuration(&cfg.Engine.StalenessWindow, "MOCKTRADE_ENGINE_STALENESS_WINDOW")
	setDuration(&cfg.Engine.PriceCacheTTL, "MOCKTRADE_ENGINE_PRICE_CACHE_TTL")
	setBool(&cfg.Engine.DrainLock, "MOCKTRADE_ENGINE_DRAIN_LOCK")
	setBool(&cfg.Engine.ReindexOnStart, "MOCKTRADE_ENGINE_REINDEX_ON_START")

	// Redis
	setStr(&cfg.Redis.Addr, "MOCKTRADE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MOCKTRADE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MOCKTRADE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MOCKTRADE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MOCKTRADE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MOCKTRADE_REDIS_TLS_ENABLED")

	// Postgres
	setStr(&cfg.Postgres.DSN, "MOCKTRADE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MOCKTRADE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MOCKTRADE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MOCKTRADE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MOCKTRADE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MOCKTRADE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MOCKTRADE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MOCKTRADE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MOCKTRADE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MOCKTRADE_POSTGRES_RUN_MIGRATIONS")

	// Notify
	setBool(&cfg.Notify.PubSubEnabled, "MOCKTRADE_NOTIFY_PUBSUB_ENABLED")
	setStr(&cfg.Notify.WebhookURL, "MOCKTRADE_NOTIFY_WEBHOOK_URL")

	// Top-level
	setStr(&cfg.LogLevel, "MOCKTRADE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
