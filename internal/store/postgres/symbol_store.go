package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/junhyuklee/mocktrade/internal/domain"
)

// SymbolStore implements domain.SymbolStore using PostgreSQL. The symbols
// table is maintained by the market-administration path; the engine only
// reads it at startup and for the daily resubscription.
type SymbolStore struct {
	pool *pgxpool.Pool
}

// NewSymbolStore creates a new SymbolStore backed by the given connection pool.
func NewSymbolStore(pool *pgxpool.Pool) *SymbolStore {
	return &SymbolStore{pool: pool}
}

// ActiveSymbols returns the codes of all tradable symbols.
func (s *SymbolStore) ActiveSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT code FROM symbols WHERE active ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active symbols: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("postgres: scan symbol: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// Compile-time interface check.
var _ domain.SymbolStore = (*SymbolStore)(nil)
