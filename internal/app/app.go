// Package app provides top-level application lifecycle management for the
// mocktrade engine. It wires the stores, caches, feed, and execution pipeline
// together and runs them until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/junhyuklee/mocktrade/internal/config"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, optionally rebuilds
// the order index from the ledger, starts the execution processor and the
// feed ingestor, and blocks until the context is cancelled. On return it runs
// all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting engine",
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	if a.cfg.Engine.ReindexOnStart {
		if err := a.reindex(ctx, deps); err != nil {
			return fmt.Errorf("app: reindex: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Processor.Run(gctx)
	})
	g.Go(func() error {
		return deps.Ingestor.Run(gctx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return err
}

// reindex rebuilds the Redis order index from the PENDING rows in the
// ledger, symbol by symbol. Used when Redis state may have been lost.
func (a *App) reindex(ctx context.Context, deps *Dependencies) error {
	symbols, err := deps.SymbolStore.ActiveSymbols(ctx)
	if err != nil {
		return err
	}

	total := 0
	for _, sym := range symbols {
		n, err := deps.Orders.ReindexPending(ctx, sym)
		if err != nil {
			return err
		}
		total += n
	}
	a.logger.InfoContext(ctx, "order index rebuilt",
		slog.Int("symbols", len(symbols)),
		slog.Int("orders", total),
	)
	return nil
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down engine")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
