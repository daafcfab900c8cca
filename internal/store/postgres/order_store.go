package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/junhyuklee/mocktrade/internal/domain"
)

// OrderStore implements domain.OrderLedger using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderSelectCols = `id, user_id, symbol, side, trigger_price, amount,
	status, execution_price, created_at, updated_at`

func scanOrder(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var side, status string

	err := scanner.Scan(
		&o.ID, &o.UserID, &o.Symbol, &side,
		&o.TriggerPrice, &o.Amount,
		&status, &o.ExecutionPrice,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

// Create inserts a new reserved order.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO reserved_orders (
			id, user_id, symbol, side, trigger_price, amount,
			status, execution_price, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.UserID, o.Symbol, string(o.Side),
		o.TriggerPrice, o.Amount,
		string(o.Status), o.ExecutionPrice,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// GetByID retrieves a single order by ID.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM reserved_orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListPendingBySymbol returns all PENDING orders for a symbol, oldest first.
// Used to rebuild the order index after a cold start.
func (s *OrderStore) ListPendingBySymbol(ctx context.Context, symbol string) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM reserved_orders
		 WHERE symbol = $1 AND status = $2 ORDER BY created_at`,
		symbol, string(domain.OrderStatusPending))
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending %s: %w", symbol, err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan pending %s: %w", symbol, err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ClaimAndComplete transitions one order PENDING -> COMPLETED inside a
// transaction, recording the execution price. The row is loaded with
// FOR UPDATE filtered by status, so a concurrent direct trade or cancellation
// that already resolved the order makes the load come back empty; that case
// surfaces as domain.ErrNotFound and the caller commits a no-op.
func (s *OrderStore) ClaimAndComplete(ctx context.Context, id string, execPrice float64, at time.Time) (domain.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: begin claim %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM reserved_orders
		 WHERE id = $1 AND status = $2 FOR UPDATE`,
		id, string(domain.OrderStatusPending))

	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already resolved elsewhere; committing keeps the read consistent.
		if err := tx.Commit(ctx); err != nil {
			return domain.Order{}, fmt.Errorf("postgres: commit noop claim %s: %w", id, err)
		}
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: load pending order %s: %w", id, err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE reserved_orders
		 SET status = $1, execution_price = $2, updated_at = $3
		 WHERE id = $4`,
		string(domain.OrderStatusCompleted), execPrice, at, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: complete order %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, fmt.Errorf("postgres: commit claim %s: %w", id, err)
	}

	o.Status = domain.OrderStatusCompleted
	o.ExecutionPrice = &execPrice
	o.UpdatedAt = at
	return o, nil
}

// CancelPending transitions PENDING -> CANCELLED. It returns
// domain.ErrNotFound when the order is absent or no longer PENDING.
func (s *OrderStore) CancelPending(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reserved_orders SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3`,
		string(domain.OrderStatusCancelled), id, string(domain.OrderStatusPending))
	if err != nil {
		return fmt.Errorf("postgres: cancel order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.OrderLedger = (*OrderStore)(nil)
