// Package app provides the top-level application lifecycle for the analysis
// gateway. It wires the cache store, pipeline stages, and gateways, runs the
// background maintenance loops, and blocks until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantpair/pairgate/internal/config"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions called in reverse order on shutdown.
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

// Run wires all dependencies, starts the agent hub, sweep loop, and HTTP
// server, and blocks until the context is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("cache_backend", a.cfg.Cache.Backend),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	if a.cfg.Cache.SweepOnStart {
		a.sweep(ctx, deps)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := deps.AgentHub.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("agent hub stopped", slog.String("error", err.Error()))
		}
	}()

	if interval := a.cfg.Cache.SweepInterval.Duration; interval > 0 && deps.CacheStore != nil {
		go a.sweepLoop(runCtx, deps, interval)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- deps.Server.Start()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := deps.Server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-serverErr:
		return err
	}
}

// sweepLoop periodically archives and deletes expired cache entries.
func (a *App) sweepLoop(ctx context.Context, deps *Dependencies, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sweep(ctx, deps)
		}
	}
}

// sweep runs one archive-then-delete pass over expired entries. Failures are
// logged and retried on the next tick.
func (a *App) sweep(ctx context.Context, deps *Dependencies) {
	if deps.CacheStore == nil {
		return
	}
	now := time.Now()

	if deps.Archiver != nil {
		archived, err := deps.Archiver.ArchiveExpired(ctx, now)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive of expired entries failed; skipping sweep",
				slog.String("error", err.Error()),
			)
			return
		}
		if archived > 0 {
			a.logger.InfoContext(ctx, "archived expired cache entries",
				slog.Int64("count", archived),
			)
		}
	}

	deleted, err := deps.CacheStore.SweepExpired(ctx, now)
	if err != nil {
		a.logger.ErrorContext(ctx, "expiry sweep failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if deleted > 0 {
		a.logger.InfoContext(ctx, "swept expired cache entries",
			slog.Int64("deleted", deleted),
		)
	}
}

// Close tears down all resources in reverse registration order. Safe to call
// multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
