package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/junhyuklee/mocktrade/internal/domain"
)

const (
	defaultDrainInterval   = 100 * time.Millisecond
	defaultStalenessWindow = 5 * time.Minute

	// drainLockKey serializes drains across replicas.
	drainLockKey = "execution:drain"
	drainLockTTL = 5 * time.Second

	dedupCleanupInterval = 30 * time.Second
)

// ExecutionNotifier delivers the post-execution notice to the owning user.
// Delivery is best-effort; a failure never affects the committed execution.
type ExecutionNotifier interface {
	NotifyExecution(ctx context.Context, userID string, notice domain.ExecutionNotice) error
}

// Processor drains the execution queue on a fixed cadence and commits each
// matched order to the ledger. The interval drain is the system's
// backpressure mechanism against the database: no matter how fast ticks
// arrive, executions land at most once per interval.
type Processor struct {
	queue    domain.ExecutionQueue
	ledger   domain.OrderLedger
	notifier ExecutionNotifier
	locks    domain.LockManager // nil disables cross-replica locking
	dedup    *Dedup

	interval  time.Duration
	staleness time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewProcessor creates a Processor. A nil locks manager is allowed for
// single-instance deployments; interval and staleness fall back to 100ms and
// five minutes when non-positive.
func NewProcessor(
	queue domain.ExecutionQueue,
	ledger domain.OrderLedger,
	notifier ExecutionNotifier,
	locks domain.LockManager,
	interval, staleness time.Duration,
	logger *slog.Logger,
) *Processor {
	if interval <= 0 {
		interval = defaultDrainInterval
	}
	if staleness <= 0 {
		staleness = defaultStalenessWindow
	}
	return &Processor{
		queue:     queue,
		ledger:    ledger,
		notifier:  notifier,
		locks:     locks,
		dedup:     NewDedup(staleness),
		interval:  interval,
		staleness: staleness,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "execution_processor")),
	}
}

// Run drains the queue until the context is cancelled. Drains are strictly
// sequential: the next tick of the interval timer is not serviced until the
// previous drain returns.
func (p *Processor) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	cleanup := time.NewTicker(dedupCleanupInterval)
	defer cleanup.Stop()

	p.logger.Info("execution processor started",
		slog.Duration("interval", p.interval),
		slog.Duration("staleness_window", p.staleness),
	)
	defer p.logger.Info("execution processor stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cleanup.C:
			p.dedup.Cleanup()
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

// drain pops and applies at most one message. Every failure mode ends the
// drain; the message is lost in the PersistenceError case, which is the
// accepted at-most-once limitation.
func (p *Processor) drain(ctx context.Context) {
	if p.locks != nil {
		unlock, err := p.locks.Acquire(ctx, drainLockKey, drainLockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			return
		}
		if err != nil {
			p.logger.ErrorContext(ctx, "drain lock acquire failed",
				slog.String("error", err.Error()),
			)
			return
		}
		defer unlock()
	}

	msg, err := p.queue.Pop(ctx)
	if errors.Is(err, domain.ErrQueueEmpty) {
		return
	}
	if err != nil {
		p.logger.ErrorContext(ctx, "queue pop failed",
			slog.String("error", err.Error()),
		)
		return
	}

	now := p.now()
	if msg.Age(now) > p.staleness {
		p.logger.WarnContext(ctx, "stale execution message dropped",
			slog.String("order_id", msg.OrderID),
			slog.Duration("age", msg.Age(now)),
		)
		return
	}

	ord, err := p.ledger.ClaimAndComplete(ctx, msg.OrderID, msg.ExecutionPrice, now)
	if errors.Is(err, domain.ErrNotFound) {
		// Already executed or cancelled elsewhere; the claim is a no-op.
		p.logger.DebugContext(ctx, "order no longer pending",
			slog.String("order_id", msg.OrderID),
		)
		return
	}
	if err != nil {
		// Transaction rolled back; the popped message is gone. Accepted
		// at-most-once limitation, not retried.
		p.logger.ErrorContext(ctx, "execution persist failed, message lost",
			slog.String("order_id", msg.OrderID),
			slog.String("error", err.Error()),
		)
		return
	}

	p.logger.InfoContext(ctx, "reserved order executed",
		slog.String("order_id", ord.ID),
		slog.String("symbol", ord.Symbol),
		slog.String("side", string(ord.Side)),
		slog.Float64("trade_price", msg.ExecutionPrice),
	)

	p.notify(ctx, ord, msg.ExecutionPrice, now)
}

// notify pushes the execution notice to the owning user. Failures are logged
// and never roll back the committed execution.
func (p *Processor) notify(ctx context.Context, ord domain.Order, tradePrice float64, at time.Time) {
	if p.notifier == nil {
		return
	}
	if p.dedup.IsDuplicate(ord.ID) {
		return
	}

	notice := domain.ExecutionNotice{
		OrderID:    ord.ID,
		OrderType:  ord.Side,
		Symbol:     ord.Symbol,
		Amount:     ord.Amount,
		TradePrice: tradePrice,
		ExecutedAt: at,
	}
	if err := p.notifier.NotifyExecution(ctx, ord.UserID, notice); err != nil {
		p.logger.ErrorContext(ctx, "execution notification failed",
			slog.String("order_id", ord.ID),
			slog.String("user_id", ord.UserID),
			slog.String("error", err.Error()),
		)
	}
}
