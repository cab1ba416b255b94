package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tradekit/signalpilot/internal/domain"
	"github.com/tradekit/signalpilot/internal/executor"
	"github.com/tradekit/signalpilot/internal/feed"
	"github.com/tradekit/signalpilot/internal/server"
	"github.com/tradekit/signalpilot/internal/server/handler"
	"github.com/tradekit/signalpilot/internal/sizing"
	"github.com/tradekit/signalpilot/internal/staging"
	"github.com/tradekit/signalpilot/internal/supervise"
)

// signalBuffer is the capacity of the in-process signal channel between the
// HTTP intake and the executor.
const signalBuffer = 32

// LiveMode runs the engine against the terminal bridge with the tick feed.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode")
	return a.runEngine(ctx, deps)
}

// DryRunMode runs the full pipeline against the in-memory simulated venue.
// No broker orders leave the process.
func (a *App) DryRunMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting dry_run mode, orders stay in-process")
	return a.runEngine(ctx, deps)
}

// runEngine wires the execution pipeline and supervision loops, restores
// supervision state from the ledger, and blocks until the context ends.
func (a *App) runEngine(ctx context.Context, deps *Dependencies) error {
	if err := deps.Venue.Connect(ctx); err != nil {
		return fmt.Errorf("app: venue connect: %w", err)
	}
	a.closers = append(a.closers, func() { _ = deps.Venue.Close() })

	g, ctx := errgroup.WithContext(ctx)

	registry := supervise.NewRegistry()
	supervisor := supervise.New(
		supervise.Config{
			PollInterval:           a.cfg.Trading.PollInterval.Duration,
			TrailingStopPips:       a.cfg.Trading.TrailingStopPips,
			TrailingActivationPips: a.cfg.Trading.TrailingActivationPips,
			BreakevenEnabled:       a.cfg.Trading.BreakevenEnabled,
			BreakevenBufferPips:    a.cfg.Trading.BreakevenBufferPips,
		},
		deps.Venue, deps.Ledger, deps.Protection, deps.Quotes,
		registry, deps.Archiver, deps.Notifier, a.logger,
	)

	// Tick feed, when a stream is available. The supervisor falls back to
	// venue quotes without one.
	var tickFeed *feed.TickFeed
	var watcher executor.SymbolWatcher
	if deps.TickStream != nil {
		tickFeed = feed.NewTickFeed(deps.TickStream, deps.Quotes, a.logger)
		watcher = tickFeed
	}

	planner := staging.NewPlanner(staging.Config{
		NumPositions:  a.cfg.Trading.NumPositions,
		Slot1Target:   a.cfg.Trading.Slot1Target,
		StagedEntry:   a.cfg.Trading.StagedEntry,
		RunnerEnabled: a.cfg.Trading.RunnerEnabled,
	}, a.logger)
	calc := sizing.NewCalculator(sizing.Config{
		RiskPercent:     a.cfg.Trading.RiskPercent,
		NumPositions:    a.cfg.Trading.NumPositions,
		DefaultStopPips: a.cfg.Trading.DefaultStopPips,
	}, a.logger)

	signalCh := make(chan domain.Signal, signalBuffer)
	exec := executor.NewExecutor(
		signalCh, deps.Venue, deps.Ledger, planner, calc,
		registry, watcher, deps.Notifier, a.logger,
	)

	// Resume supervision of whatever the ledger still considers live, and
	// make sure their symbols get quotes again.
	if err := supervisor.RestoreFromLedger(ctx); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if tickFeed != nil {
		for _, symbol := range registry.Symbols() {
			tickFeed.Watch(symbol)
		}
	}

	g.Go(func() error { return exec.Run(ctx) })
	g.Go(func() error { return supervisor.RunTracker(ctx) })
	g.Go(func() error { return supervisor.RunTrailing(ctx) })
	g.Go(func() error { return supervisor.RunProtection(ctx) })
	if tickFeed != nil {
		g.Go(func() error {
			defer tickFeed.Close()
			return tickFeed.Run(ctx)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, signalCh, registry)
	}

	return g.Wait()
}

// startHTTPServer adds the HTTP intake server to the errgroup and shuts it
// down gracefully when the context is cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	signalCh chan<- domain.Signal,
	registry *supervise.Registry,
) {
	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health:  handler.NewHealthHandler(a.cfg.Mode, a.logger),
			Signals: handler.NewSignalHandler(signalCh, deps.Ledger, registry, a.logger),
		},
		a.logger,
	)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
