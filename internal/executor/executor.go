// Package executor turns accepted signals into venue orders: dedup, ledger
// gating, staged entry planning, risk sizing, and idempotent placement.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tradekit/signalpilot/internal/domain"
	"github.com/tradekit/signalpilot/internal/notify"
	"github.com/tradekit/signalpilot/internal/sizing"
	"github.com/tradekit/signalpilot/internal/staging"
	"github.com/tradekit/signalpilot/internal/supervise"
	"github.com/tradekit/signalpilot/internal/venue/symbols"
)

// SymbolWatcher is notified when a new symbol needs live quotes. The tick
// feed implements it.
type SymbolWatcher interface {
	Watch(symbol string)
}

// Executor reads signals from a channel and drives each through the full
// pipeline: dedup, ledger gate, opposite-exposure guard, staging, sizing,
// placement, and registration for supervision.
type Executor struct {
	signalCh <-chan domain.Signal

	venue    domain.ExecutionVenue
	ledger   domain.SignalLedger
	planner  *staging.Planner
	calc     *sizing.Calculator
	placer   *Placer
	resolver *symbols.Resolver
	registry *supervise.Registry
	watcher  SymbolWatcher
	notifier *notify.Notifier
	dedup    *Dedup
	logger   *slog.Logger

	cleanupInterval time.Duration
}

// NewExecutor wires the pipeline. watcher and notifier may be nil.
func NewExecutor(
	signalCh <-chan domain.Signal,
	venue domain.ExecutionVenue,
	ledger domain.SignalLedger,
	planner *staging.Planner,
	calc *sizing.Calculator,
	registry *supervise.Registry,
	watcher SymbolWatcher,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		signalCh:        signalCh,
		venue:           venue,
		ledger:          ledger,
		planner:         planner,
		calc:            calc,
		placer:          NewPlacer(venue, logger),
		resolver:        symbols.NewResolver(venue, logger),
		registry:        registry,
		watcher:         watcher,
		notifier:        notifier,
		dedup:           NewDedup(2 * time.Minute),
		logger:          logger.With(slog.String("component", "executor")),
		cleanupInterval: 30 * time.Second,
	}
}

// SetDedupTTL replaces the dedup window. Useful for tests and runtime tuning.
func (e *Executor) SetDedupTTL(ttl time.Duration) {
	e.dedup = NewDedup(ttl)
}

// Run processes signals until the context is cancelled, then drains whatever
// is still buffered in the channel so in-flight signals are not dropped.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("executor started")
	defer e.logger.Info("executor stopped")

	cleanupTicker := time.NewTicker(e.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drain()
			return ctx.Err()

		case sig, ok := <-e.signalCh:
			if !ok {
				return nil
			}
			e.Process(ctx, sig)

		case <-cleanupTicker.C:
			e.dedup.Cleanup()
		}
	}
}

// Process drives one signal through the pipeline. It is exported so the HTTP
// handler's synchronous path and tests can invoke it directly.
func (e *Executor) Process(ctx context.Context, sig domain.Signal) {
	if sig.Fingerprint == "" {
		sig.Fingerprint = sig.ComputeFingerprint()
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now().UTC()
	}

	log := e.logger.With(
		slog.String("fingerprint", sig.Fingerprint),
		slog.String("symbol", sig.Symbol),
		slog.String("direction", string(sig.Direction)),
		slog.String("source", sig.Source),
	)

	if err := sig.Validate(); err != nil {
		log.Warn("signal rejected", slog.String("error", err.Error()))
		return
	}

	// Swap in the broker's spelling of the symbol before anything touches
	// the venue or the ledger, so supervision and history agree with the
	// venue's books.
	if resolved := e.resolver.Resolve(ctx, sig.Symbol); resolved != sig.Symbol {
		log = log.With(slog.String("broker_symbol", resolved))
		sig.Symbol = resolved
	}

	// 1. In-memory dedup absorbs rapid re-sends before they reach the ledger.
	if e.dedup.IsDuplicate(sig.Fingerprint) {
		log.Debug("signal deduplicated, skipping")
		return
	}

	// 2. Ledger gate: a signal whose lifecycle has already ended never
	// re-enters.
	status, err := e.ledger.Status(ctx, sig.Fingerprint)
	switch {
	case err == nil && status.Blocked():
		log.Info("signal blocked by ledger status", slog.String("status", string(status)))
		return
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		log.Error("ledger status check failed", slog.String("error", err.Error()))
		return
	}

	// 3. Opposite-exposure guard: never hedge against our own book.
	if blocked, err := e.oppositeExposure(ctx, sig); err != nil {
		log.Error("exposure check failed", slog.String("error", err.Error()))
		return
	} else if blocked {
		log.Warn("opposite-direction exposure on symbol, skipping")
		e.notify(ctx, "signal_skipped", "Signal skipped",
			fmt.Sprintf("%s %s %s skipped: opposite-direction exposure already open",
				sig.Symbol, sig.Direction, sig.Fingerprint))
		return
	}

	// 4. Durable dedup: recording the fingerprint is the point of no return.
	if err := e.ledger.Record(ctx, sig); err != nil {
		if errors.Is(err, domain.ErrDuplicateSignal) {
			log.Debug("fingerprint already in ledger, skipping")
			return
		}
		log.Error("ledger record failed", slog.String("error", err.Error()))
		return
	}

	if err := e.place(ctx, sig, log); err != nil {
		log.Error("placement pipeline failed", slog.String("error", err.Error()))
		// The ledger entry must not stay active with nothing at the venue.
		if serr := e.ledger.SetStatus(ctx, sig.Fingerprint, domain.SignalStatusCancelled); serr != nil {
			log.Error("ledger cancel write failed", slog.String("error", serr.Error()))
		}
		e.notify(ctx, "signal_failed", "Signal failed",
			fmt.Sprintf("%s %s %s failed: %v", sig.Symbol, sig.Direction, sig.Fingerprint, err))
	}
}

// place sizes, stages, and submits the signal, then registers it for
// supervision.
func (e *Executor) place(ctx context.Context, sig domain.Signal, log *slog.Logger) error {
	account, err := e.venue.AccountInfo(ctx)
	if err != nil {
		return fmt.Errorf("account info: %w", err)
	}
	symbol, err := e.venue.SymbolInfo(ctx, sig.Symbol)
	if err != nil {
		return fmt.Errorf("symbol info: %w", err)
	}

	plan, err := e.planner.Plan(sig, symbol)
	if err != nil {
		return fmt.Errorf("staging: %w", err)
	}
	plan = e.calc.Apply(plan, account, symbol)
	if err := e.calc.ValidateTrade(plan, account, symbol); err != nil {
		return err
	}

	tickets, err := e.placer.PlaceAll(ctx, sig, plan)
	if err != nil {
		return err
	}

	e.registry.Register(sig, plan, tickets)
	if e.watcher != nil {
		e.watcher.Watch(sig.Symbol)
	}

	outcome := e.calc.PotentialOutcome(sig, plan, symbol)
	log.Info("signal placed",
		slog.Int("slots_placed", len(tickets)),
		slog.Int("slots_planned", len(plan)),
		slog.Float64("max_loss", outcome.MaxLoss),
		slog.Float64("tp1_profit", outcome.TP1Profit),
		slog.Float64("tp2_profit", outcome.TP2Profit),
	)
	e.notify(ctx, "signal_placed", "Signal placed",
		fmt.Sprintf("%s %s %s: %d/%d slots placed, max loss %.2f, TP2 profit %.2f",
			sig.Symbol, sig.Direction, sig.Fingerprint,
			len(tickets), len(plan), outcome.MaxLoss, outcome.TP2Profit))
	return nil
}

// oppositeExposure reports whether the venue holds a position on the signal's
// symbol in the opposite direction.
func (e *Executor) oppositeExposure(ctx context.Context, sig domain.Signal) (bool, error) {
	positions, err := e.venue.OpenPositions(ctx, sig.Symbol)
	if err != nil {
		return false, err
	}
	for _, pos := range positions {
		if pos.Direction != sig.Direction {
			return true, nil
		}
	}
	return false, nil
}

func (e *Executor) notify(ctx context.Context, event, title, message string) {
	if e.notifier == nil {
		return
	}
	_ = e.notifier.Notify(ctx, event, title, message)
}

// drain processes signals still buffered in the channel after cancellation,
// each under a short-lived context so shutdown cannot hang on the venue.
func (e *Executor) drain() {
	for {
		select {
		case sig, ok := <-e.signalCh:
			if !ok {
				return
			}
			e.logger.Warn("draining signal after shutdown",
				slog.String("fingerprint", sig.Fingerprint),
			)
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			e.Process(drainCtx, sig)
			cancel()
		default:
			return
		}
	}
}
