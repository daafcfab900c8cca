// Package service contains the order-management edge of the engine: placing
// and cancelling reserved orders while keeping the ledger and the live index
// in lockstep.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/junhyuklee/mocktrade/internal/domain"
)

// OrderService creates and cancels reserved orders. The index entry exists
// only while the backing ledger row is PENDING; both paths here preserve
// that invariant.
type OrderService struct {
	ledger domain.OrderLedger
	index  domain.OrderIndex
	logger *slog.Logger
}

// NewOrderService creates an OrderService.
func NewOrderService(ledger domain.OrderLedger, index domain.OrderIndex, logger *slog.Logger) *OrderService {
	return &OrderService{
		ledger: ledger,
		index:  index,
		logger: logger.With(slog.String("component", "order_service")),
	}
}

// PlaceReserved validates and persists a new reserved order, then projects it
// into the index so the next tick can match it. The ledger row is written
// first: an indexed order without a PENDING row would let the processor
// execute nothing, but a PENDING row without an index entry is merely
// unmatched until reindexing.
func (s *OrderService) PlaceReserved(ctx context.Context, userID, symbol string, side domain.OrderSide, triggerPrice, amount float64) (domain.Order, error) {
	if userID == "" || symbol == "" {
		return domain.Order{}, fmt.Errorf("service: place reserved: %w", domain.ErrInvalidOrder)
	}
	if side != domain.OrderSideBuy && side != domain.OrderSideSell {
		return domain.Order{}, fmt.Errorf("service: place reserved: side %q: %w", side, domain.ErrInvalidOrder)
	}
	if triggerPrice <= 0 || amount <= 0 {
		return domain.Order{}, fmt.Errorf("service: place reserved: %w", domain.ErrInvalidOrder)
	}

	now := time.Now()
	ord := domain.Order{
		ID:           uuid.New().String(),
		UserID:       userID,
		Symbol:       symbol,
		Side:         side,
		TriggerPrice: triggerPrice,
		Amount:       amount,
		Status:       domain.OrderStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.ledger.Create(ctx, ord); err != nil {
		return domain.Order{}, fmt.Errorf("service: persist reserved order: %w", err)
	}

	if err := s.index.Add(ctx, domain.IndexedOrder{
		OrderID:      ord.ID,
		Symbol:       ord.Symbol,
		Side:         ord.Side,
		TriggerPrice: ord.TriggerPrice,
	}); err != nil {
		// The row stays PENDING and gets picked up by the next reindex.
		s.logger.ErrorContext(ctx, "order persisted but not indexed",
			slog.String("order_id", ord.ID),
			slog.String("error", err.Error()),
		)
		return ord, fmt.Errorf("service: index reserved order: %w", err)
	}

	s.logger.InfoContext(ctx, "reserved order placed",
		slog.String("order_id", ord.ID),
		slog.String("symbol", ord.Symbol),
		slog.String("side", string(ord.Side)),
		slog.Float64("trigger_price", ord.TriggerPrice),
	)
	return ord, nil
}

// CancelReserved removes the index projection and cancels the PENDING row.
// The index entry goes first so no new tick can claim the order mid-cancel;
// if a tick already enqueued an execution message, the processor's PENDING
// guard keeps the cancelled order from completing.
func (s *OrderService) CancelReserved(ctx context.Context, orderID string) error {
	ord, err := s.ledger.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("service: load order %s: %w", orderID, err)
	}

	if err := s.index.Remove(ctx, ord.Symbol, ord.Side, ord.ID); err != nil {
		return fmt.Errorf("service: unindex order %s: %w", orderID, err)
	}

	if err := s.ledger.CancelPending(ctx, orderID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Lost the race with execution; the order completed first.
			s.logger.InfoContext(ctx, "cancel lost race with execution",
				slog.String("order_id", orderID),
			)
			return fmt.Errorf("service: cancel order %s: %w", orderID, err)
		}
		return fmt.Errorf("service: cancel order %s: %w", orderID, err)
	}

	s.logger.InfoContext(ctx, "reserved order cancelled",
		slog.String("order_id", orderID),
	)
	return nil
}

// ReindexPending rebuilds the index projections for one symbol from the
// ledger, used after a cold start when Redis state may have been lost.
func (s *OrderService) ReindexPending(ctx context.Context, symbol string) (int, error) {
	orders, err := s.ledger.ListPendingBySymbol(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("service: list pending %s: %w", symbol, err)
	}

	indexed := 0
	for _, ord := range orders {
		if err := s.index.Add(ctx, domain.IndexedOrder{
			OrderID:      ord.ID,
			Symbol:       ord.Symbol,
			Side:         ord.Side,
			TriggerPrice: ord.TriggerPrice,
		}); err != nil {
			s.logger.ErrorContext(ctx, "reindex entry failed",
				slog.String("order_id", ord.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		indexed++
	}
	return indexed, nil
}
