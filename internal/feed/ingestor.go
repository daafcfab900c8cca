// Package feed maintains the live subscription to the upstream tick stream
// and pushes every received tick into the matching pipeline.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/junhyuklee/mocktrade/internal/domain"
	"github.com/junhyuklee/mocktrade/internal/engine"
	"github.com/junhyuklee/mocktrade/internal/platform/upbit"
)

const (
	defaultInitialReconnectDelay = 1 * time.Second
	defaultMaxReconnectDelay     = 60 * time.Second
	defaultLivenessInterval      = 30 * time.Second
	defaultMatchWorkers          = 16

	// maxBackoffExp caps the exponent so the doubling series cannot
	// overflow before the max-delay clamp applies.
	maxBackoffExp = 6
)

// Config holds ingestor tuning. Zero values select the defaults above.
type Config struct {
	InitialReconnectDelay time.Duration
	MaxReconnectDelay     time.Duration
	LivenessInterval      time.Duration
	MatchWorkers          int64
	// ResubscribeAt is the local wall-clock time ("HH:MM") at which the
	// active symbol set is refreshed daily. Empty disables the refresh.
	ResubscribeAt string
}

// Ingestor owns the upbit transport and the reconnect, liveness, and daily
// resubscription policy around it. Ticks flow through onTick on the
// transport's read goroutine, so everything there is non-blocking: the cache
// write is fast and matcher evaluation is dispatched to a bounded pool.
type Ingestor struct {
	client  *upbit.Client
	prices  domain.PriceCache
	symbols domain.SymbolStore
	matcher *engine.Matcher

	initialDelay  time.Duration
	maxDelay      time.Duration
	livenessEvery time.Duration
	resubscribeAt string

	sem *semaphore.Weighted

	mu           sync.Mutex
	attempts     int
	reconnecting bool
	shuttingDown bool

	runCtx context.Context
	logger *slog.Logger
}

// NewIngestor creates an Ingestor driving the given transport.
func NewIngestor(
	client *upbit.Client,
	prices domain.PriceCache,
	symbols domain.SymbolStore,
	matcher *engine.Matcher,
	cfg Config,
	logger *slog.Logger,
) *Ingestor {
	if cfg.InitialReconnectDelay <= 0 {
		cfg.InitialReconnectDelay = defaultInitialReconnectDelay
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = defaultMaxReconnectDelay
	}
	if cfg.LivenessInterval <= 0 {
		cfg.LivenessInterval = defaultLivenessInterval
	}
	if cfg.MatchWorkers <= 0 {
		cfg.MatchWorkers = defaultMatchWorkers
	}
	return &Ingestor{
		client:        client,
		prices:        prices,
		symbols:       symbols,
		matcher:       matcher,
		initialDelay:  cfg.InitialReconnectDelay,
		maxDelay:      cfg.MaxReconnectDelay,
		livenessEvery: cfg.LivenessInterval,
		resubscribeAt: cfg.ResubscribeAt,
		sem:           semaphore.NewWeighted(cfg.MatchWorkers),
		runCtx:        context.Background(),
		logger:        logger.With(slog.String("component", "feed_ingestor")),
	}
}

// Run connects, subscribes the active symbol set, and blocks until the
// context is cancelled, at which point the ingestor shuts down and no further
// ticks are processed.
func (i *Ingestor) Run(ctx context.Context) error {
	i.runCtx = ctx
	i.client.OnTick(i.onTick)
	i.client.OnError(i.onTransportError)

	if err := i.connect(ctx); err != nil {
		// The upstream being down at startup is not fatal; the backoff loop
		// takes over.
		i.logger.Error("initial connect failed, entering reconnect loop",
			slog.String("error", err.Error()),
		)
		i.scheduleReconnect()
	}

	go i.livenessLoop(ctx)
	if i.resubscribeAt != "" {
		go i.resubscribeLoop(ctx)
	}

	i.logger.Info("feed ingestor started")
	<-ctx.Done()
	i.Shutdown()
	return ctx.Err()
}

// Shutdown flips the shutting-down flag before touching the transport so any
// callback that fires mid-close short-circuits, then closes the connection.
// No reconnect is scheduled afterwards. Safe to call multiple times.
func (i *Ingestor) Shutdown() {
	i.mu.Lock()
	if i.shuttingDown {
		i.mu.Unlock()
		return
	}
	i.shuttingDown = true
	i.mu.Unlock()

	_ = i.client.Close()
	i.logger.Info("feed ingestor stopped")
}

// connect dials the transport and subscribes the current active symbol set.
// On success the reconnect-attempt counter resets.
func (i *Ingestor) connect(ctx context.Context) error {
	codes, err := i.symbols.ActiveSymbols(ctx)
	if err != nil {
		return fmt.Errorf("feed: load active symbols: %w", err)
	}
	if len(codes) == 0 {
		return fmt.Errorf("feed: no active symbols to subscribe")
	}

	if err := i.client.Dial(ctx); err != nil {
		return err
	}
	if err := i.client.Subscribe(codes); err != nil {
		return err
	}

	i.mu.Lock()
	i.attempts = 0
	i.mu.Unlock()

	i.logger.Info("subscribed to tick stream",
		slog.Int("symbols", len(codes)),
	)
	return nil
}

// onTick runs on the transport's read goroutine and must not block. Invalid
// prices are rejected before any index scan; the cache write is best-effort;
// matcher evaluation is fire-and-forget on the bounded pool.
func (i *Ingestor) onTick(t domain.Tick) {
	i.mu.Lock()
	down := i.shuttingDown
	i.mu.Unlock()
	if down {
		return
	}

	if !t.Valid() {
		i.logger.Debug("malformed tick dropped",
			slog.String("symbol", t.Symbol),
			slog.Float64("price", t.Price),
		)
		return
	}

	ctx := i.runCtx
	if err := i.prices.SetPrice(ctx, t.Symbol, t.Price, t.ObservedAt); err != nil {
		i.logger.Warn("price cache update failed",
			slog.String("symbol", t.Symbol),
			slog.String("error", err.Error()),
		)
	}

	if !i.sem.TryAcquire(1) {
		// Pool saturated. Dropping is safe: the next tick re-evaluates the
		// same index state.
		i.logger.Warn("match pool saturated, tick dropped",
			slog.String("symbol", t.Symbol),
		)
		return
	}
	go func() {
		defer i.sem.Release(1)
		if err := i.matcher.Evaluate(ctx, t.Symbol, t.Price); err != nil {
			i.logger.Error("tick evaluation failed",
				slog.String("symbol", t.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// onTransportError is invoked by the transport when its read loop dies.
func (i *Ingestor) onTransportError(err error) {
	i.logger.Warn("transport error",
		slog.String("error", err.Error()),
	)
	i.scheduleReconnect()
}

// scheduleReconnect arranges a single delayed reconnect attempt. Only one may
// be in flight at a time; the flag is checked and set under the mutex.
func (i *Ingestor) scheduleReconnect() {
	i.mu.Lock()
	if i.shuttingDown || i.reconnecting {
		i.mu.Unlock()
		return
	}
	i.reconnecting = true
	i.attempts++
	delay := reconnectDelay(i.initialDelay, i.maxDelay, i.attempts)
	attempt := i.attempts
	i.mu.Unlock()

	i.logger.Info("scheduling reconnect",
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
	)

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-i.runCtx.Done():
			return
		case <-timer.C:
		}

		i.mu.Lock()
		down := i.shuttingDown
		i.mu.Unlock()
		if down {
			return
		}

		err := i.connect(i.runCtx)

		i.mu.Lock()
		i.reconnecting = false
		i.mu.Unlock()

		if err != nil {
			i.logger.Warn("reconnect failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			i.scheduleReconnect()
			return
		}
		i.logger.Info("reconnected", slog.Int("attempt", attempt))
	}()
}

// livenessLoop probes the connection periodically and forces a reconnect
// when no frame has arrived for a full probe interval.
func (i *Ingestor) livenessLoop(ctx context.Context) {
	ticker := time.NewTicker(i.livenessEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !i.client.Healthy(i.livenessEvery) {
				i.logger.Warn("liveness probe found connection unhealthy")
				i.scheduleReconnect()
			}
		}
	}
}

// resubscribeLoop refreshes the active symbol set once a day at the
// configured wall-clock time and re-sends the subscription.
func (i *Ingestor) resubscribeLoop(ctx context.Context) {
	for {
		next, err := nextOccurrence(i.resubscribeAt, time.Now())
		if err != nil {
			i.logger.Error("invalid resubscribe time, daily refresh disabled",
				slog.String("at", i.resubscribeAt),
				slog.String("error", err.Error()),
			)
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		i.mu.Lock()
		down := i.shuttingDown
		i.mu.Unlock()
		if down {
			return
		}

		codes, err := i.symbols.ActiveSymbols(ctx)
		if err != nil {
			i.logger.Error("daily symbol refresh failed",
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := i.client.Subscribe(codes); err != nil {
			i.logger.Error("daily resubscription failed",
				slog.String("error", err.Error()),
			)
			i.scheduleReconnect()
			continue
		}
		i.logger.Info("daily resubscription sent",
			slog.Int("symbols", len(codes)),
		)
	}
}

// reconnectDelay computes min(initial * 2^min(attempts, 6), max) for the
// given consecutive-failure count.
func reconnectDelay(initial, max time.Duration, attempts int) time.Duration {
	exp := attempts
	if exp > maxBackoffExp {
		exp = maxBackoffExp
	}
	d := initial << uint(exp)
	if d > max || d <= 0 {
		return max
	}
	return d
}

// nextOccurrence returns the next time after now whose local wall clock reads
// the given "HH:MM".
func nextOccurrence(at string, now time.Time) (time.Time, error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return time.Time{}, fmt.Errorf("feed: parse resubscribe time %q: %w", at, err)
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}
