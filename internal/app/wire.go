package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/junhyuklee/mocktrade/internal/cache/redis"
	"github.com/junhyuklee/mocktrade/internal/config"
	"github.com/junhyuklee/mocktrade/internal/domain"
	"github.com/junhyuklee/mocktrade/internal/engine"
	"github.com/junhyuklee/mocktrade/internal/feed"
	"github.com/junhyuklee/mocktrade/internal/notify"
	"github.com/junhyuklee/mocktrade/internal/platform/upbit"
	"github.com/junhyuklee/mocktrade/internal/service"
	"github.com/junhyuklee/mocktrade/internal/store/postgres"
)

// Dependencies bundles everything the running engine needs. It is constructed
// by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	OrderLedger domain.OrderLedger
	SymbolStore domain.SymbolStore

	// Caches and queues
	PriceCache  domain.PriceCache
	OrderIndex  domain.OrderIndex
	Queue       domain.ExecutionQueue
	LockManager domain.LockManager
	NotifyBus   domain.NotificationBus

	// Services and pipeline
	Orders    *service.OrderService
	Matcher   *engine.Matcher
	Processor *engine.Processor
	Ingestor  *feed.Ingestor
	Notifier  *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.OrderLedger = postgres.NewOrderStore(pool)
	deps.SymbolStore = postgres.NewSymbolStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Engine.PriceCacheTTL.Duration)
	deps.OrderIndex = redis.NewOrderIndex(redisClient, cfg.Engine.QueueKey)
	deps.Queue = redis.NewExecutionQueue(redisClient, cfg.Engine.QueueKey)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.NotifyBus = redis.NewNotifyBus(redisClient)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.PubSubEnabled {
		senders = append(senders, notify.NewPubSubSender(deps.NotifyBus))
	}
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, logger)

	// --- Engine ---
	deps.Matcher = engine.NewMatcher(deps.OrderIndex, logger)

	var drainLock domain.LockManager
	if cfg.Engine.DrainLock {
		drainLock = deps.LockManager
	}
	deps.Processor = engine.NewProcessor(
		deps.Queue,
		deps.OrderLedger,
		deps.Notifier,
		drainLock,
		cfg.Engine.DrainInterval.Duration,
		cfg.Engine.StalenessWindow.Duration,
		logger,
	)

	deps.Orders = service.NewOrderService(deps.OrderLedger, deps.OrderIndex, logger)

	// --- Feed ---
	wsClient := upbit.NewClient(cfg.Feed.URL, cfg.Feed.ConnectTimeout.Duration)
	deps.Ingestor = feed.NewIngestor(
		wsClient,
		deps.PriceCache,
		deps.SymbolStore,
		deps.Matcher,
		feed.Config{
			InitialReconnectDelay: cfg.Feed.InitialReconnectDelay.Duration,
			MaxReconnectDelay:     cfg.Feed.MaxReconnectDelay.Duration,
			LivenessInterval:      cfg.Feed.LivenessInterval.Duration,
			MatchWorkers:          int64(cfg.Feed.MatchWorkers),
			ResubscribeAt:         cfg.Feed.ResubscribeAt,
		},
		logger,
	)

	return deps, cleanup, nil
}
