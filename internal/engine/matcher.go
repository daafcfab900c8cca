// Package engine contains the price-triggered matching and execution core:
// the matcher that turns ticks into queued executions, and the processor that
// drains the queue against the durable ledger.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/junhyuklee/mocktrade/internal/domain"
)

// Matcher scans the order index for reserved orders whose trigger price is
// crossed by an incoming tick and claims each one into the execution queue.
type Matcher struct {
	index  domain.OrderIndex
	logger *slog.Logger
}

// NewMatcher creates a Matcher over the given index.
func NewMatcher(index domain.OrderIndex, logger *slog.Logger) *Matcher {
	return &Matcher{
		index:  index,
		logger: logger.With(slog.String("component", "matcher")),
	}
}

// Evaluate finds and claims every order crossed by the given tick price.
// Sell-side orders trigger when their reserve price is at or below the tick;
// buy-side orders trigger when it is at or above. Claims are atomic at the
// index, so a concurrent tick for the same symbol cannot double-submit an
// order; a claim that comes back false simply means the other tick won.
// Per-order failures are logged and skipped, never fatal to the scan.
func (m *Matcher) Evaluate(ctx context.Context, symbol string, price float64) error {
	if price <= 0 {
		return fmt.Errorf("matcher: non-positive price %v for %s", price, symbol)
	}

	claimed := 0

	sellIDs, err := m.index.RangeSell(ctx, symbol, price)
	if err != nil {
		return fmt.Errorf("matcher: scan sell side %s: %w", symbol, err)
	}
	claimed += m.claimAll(ctx, symbol, domain.OrderSideSell, sellIDs, price)

	buyIDs, err := m.index.RangeBuy(ctx, symbol, price)
	if err != nil {
		return fmt.Errorf("matcher: scan buy side %s: %w", symbol, err)
	}
	claimed += m.claimAll(ctx, symbol, domain.OrderSideBuy, buyIDs, price)

	if claimed > 0 {
		m.logger.InfoContext(ctx, "orders matched",
			slog.String("symbol", symbol),
			slog.Float64("price", price),
			slog.Int("claimed", claimed),
		)
	}
	return nil
}

func (m *Matcher) claimAll(ctx context.Context, symbol string, side domain.OrderSide, ids []string, price float64) int {
	claimed := 0
	for _, id := range ids {
		if id == "" {
			m.logger.WarnContext(ctx, "blank order id in index, skipping",
				slog.String("symbol", symbol),
				slog.String("side", string(side)),
			)
			continue
		}

		ok, err := m.index.Claim(ctx, symbol, side, id, price)
		if err != nil {
			m.logger.ErrorContext(ctx, "claim failed, skipping order",
				slog.String("order_id", id),
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !ok {
			// Consumed by a concurrent tick or cancelled mid-scan.
			m.logger.DebugContext(ctx, "order already claimed",
				slog.String("order_id", id),
				slog.String("symbol", symbol),
			)
			continue
		}
		claimed++
	}
	return claimed
}
