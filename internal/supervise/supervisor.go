package supervise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tradekit/signalpilot/internal/domain"
	"github.com/tradekit/signalpilot/internal/notify"
	"github.com/tradekit/signalpilot/internal/sizing"
)

// Archiver stores a retired signal's lifecycle summary in long-term storage.
type Archiver interface {
	ArchiveRetired(ctx context.Context, entry domain.LedgerEntry) error
}

// Config holds the supervision parameters.
type Config struct {
	// PollInterval is the cadence of the tracker, trailing, and protection
	// loops.
	PollInterval time.Duration
	// TrailingStopPips is the distance kept between best price and stop.
	TrailingStopPips float64
	// TrailingActivationPips gates trailing until a position is in profit
	// by this much.
	TrailingActivationPips float64
	// BreakevenEnabled moves non-runner stops to entry when protection
	// fires.
	BreakevenEnabled bool
	// BreakevenBufferPips pads the breakeven stop beyond the entry.
	BreakevenBufferPips float64
}

// Supervisor runs the three polling loops over the registry: slot tracking,
// stop trailing, and profit protection. Loops are independent; a venue error
// in one iteration is logged and retried on the next.
type Supervisor struct {
	cfg        Config
	venue      domain.ExecutionVenue
	ledger     domain.SignalLedger
	protection domain.ProtectionStore
	quotes     domain.QuoteCache
	registry   *Registry
	archiver   Archiver
	notifier   *notify.Notifier
	logger     *slog.Logger
}

// New creates a Supervisor. quotes and archiver may be nil; the supervisor
// falls back to venue quotes and skips archiving respectively.
func New(
	cfg Config,
	venue domain.ExecutionVenue,
	ledger domain.SignalLedger,
	protection domain.ProtectionStore,
	quotes domain.QuoteCache,
	registry *Registry,
	archiver Archiver,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Supervisor {
	return &Supervisor{
		cfg:        cfg,
		venue:      venue,
		ledger:     ledger,
		protection: protection,
		quotes:     quotes,
		registry:   registry,
		archiver:   archiver,
		notifier:   notifier,
		logger:     logger.With(slog.String("component", "supervisor")),
	}
}

// RestoreFromLedger registers every signal the ledger still considers live,
// so supervision resumes across restarts. Slot state is rebuilt from the
// venue on the first tracker poll.
func (s *Supervisor) RestoreFromLedger(ctx context.Context) error {
	entries, err := s.ledger.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("supervise: restore from ledger: %w", err)
	}

	for _, entry := range entries {
		fired, err := s.protection.Fired(ctx, entry.Signal.Fingerprint)
		if err != nil {
			return fmt.Errorf("supervise: restore protection state: %w", err)
		}
		s.registry.Restore(entry, fired)
		s.logger.Info("signal restored for supervision",
			slog.String("fingerprint", entry.Signal.Fingerprint),
			slog.String("symbol", entry.Signal.Symbol),
			slog.String("status", string(entry.Status)),
		)
	}
	return nil
}

// RunTracker polls slot states until the context is cancelled.
func (s *Supervisor) RunTracker(ctx context.Context) error {
	s.logger.Info("tracker loop started", slog.Duration("interval", s.cfg.PollInterval))
	defer s.logger.Info("tracker loop stopped")
	return s.runLoop(ctx, s.pollTracker)
}

// RunTrailing ratchets trailing stops until the context is cancelled.
func (s *Supervisor) RunTrailing(ctx context.Context) error {
	s.logger.Info("trailing loop started", slog.Duration("interval", s.cfg.PollInterval))
	defer s.logger.Info("trailing loop stopped")
	return s.runLoop(ctx, s.pollTrailing)
}

// RunProtection watches for TP2 touches until the context is cancelled.
func (s *Supervisor) RunProtection(ctx context.Context) error {
	s.logger.Info("protection loop started", slog.Duration("interval", s.cfg.PollInterval))
	defer s.logger.Info("protection loop stopped")
	return s.runLoop(ctx, s.pollProtection)
}

func (s *Supervisor) runLoop(ctx context.Context, poll func(context.Context)) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			poll(ctx)
		}
	}
}

// pollTracker refreshes every record's slot states from the venue and
// retires signals with nothing live left.
func (s *Supervisor) pollTracker(ctx context.Context) {
	for _, rec := range s.registry.List() {
		if err := s.trackRecord(ctx, rec); err != nil {
			s.logger.Warn("tracker poll failed",
				slog.String("fingerprint", rec.signal.Fingerprint),
				slog.String("error", err.Error()),
			)
		}
	}
}

// TrackOnce runs a single tracker pass, exposed for tests.
func (s *Supervisor) TrackOnce(ctx context.Context) {
	s.pollTracker(ctx)
}

func (s *Supervisor) trackRecord(ctx context.Context, rec *Record) error {
	fp := rec.signal.Fingerprint

	positions, err := s.venue.OpenPositions(ctx, rec.signal.Symbol)
	if err != nil {
		return err
	}
	pendings, err := s.venue.PendingOrders(ctx, rec.signal.Symbol)
	if err != nil {
		return err
	}
	positions = domain.PositionsForSignal(positions, fp)
	pendings = domain.OrdersForSignal(pendings, fp)

	rec.mu.Lock()
	live := make(map[int]struct{})
	for _, p := range positions {
		_, slot, _ := domain.ParseOrderComment(p.Comment)
		live[slot] = struct{}{}
		t, ok := rec.slots[slot]
		if !ok {
			t = &slotTrack{slot: slot, runner: s.isRunnerSlot(rec, slot)}
			rec.slots[slot] = t
		}
		if t.state != SlotOpen {
			s.logger.Info("slot opened",
				slog.String("fingerprint", fp),
				slog.Int("slot", slot),
				slog.Int64("ticket", p.Ticket),
				slog.Float64("open_price", p.OpenPrice),
			)
		}
		t.state = SlotOpen
		t.ticket = p.Ticket
		t.entry = p.OpenPrice
	}
	for _, o := range pendings {
		_, slot, _ := domain.ParseOrderComment(o.Comment)
		live[slot] = struct{}{}
		t, ok := rec.slots[slot]
		if !ok {
			t = &slotTrack{slot: slot, runner: s.isRunnerSlot(rec, slot)}
			rec.slots[slot] = t
		}
		if t.state == "" || t.state == SlotPending {
			t.state = SlotPending
		}
		t.ticket = o.Ticket
		t.entry = o.Price
	}
	for slot, t := range rec.slots {
		if _, ok := live[slot]; !ok && t.state != SlotClosed {
			t.state = SlotClosed
			s.logger.Info("slot closed",
				slog.String("fingerprint", fp),
				slog.Int("slot", slot),
				slog.Int64("ticket", t.ticket),
			)
		}
	}
	age := time.Since(rec.registeredAt)
	rec.mu.Unlock()

	// Retire when the venue holds nothing for the signal. The grace period
	// keeps a freshly registered signal alive until the venue reflects its
	// placements.
	if len(positions) == 0 && len(pendings) == 0 && age >= 2*s.cfg.PollInterval {
		s.retire(ctx, rec)
	}
	return nil
}

// isRunnerSlot reports whether slot is the runner. For restored records the
// slot layout is unknown, so the highest observed ordinal is assumed to be
// the runner; callers hold rec.mu.
func (s *Supervisor) isRunnerSlot(rec *Record, slot int) bool {
	for _, t := range rec.slots {
		if t.runner {
			return t.slot == slot
		}
	}
	max := slot
	for n := range rec.slots {
		if n > max {
			max = n
		}
	}
	return slot == max && slot > 1
}

func (s *Supervisor) retire(ctx context.Context, rec *Record) {
	fp := rec.signal.Fingerprint

	if err := s.ledger.SetStatus(ctx, fp, domain.SignalStatusCompleted); err != nil &&
		!errors.Is(err, domain.ErrNotFound) {
		s.logger.Error("ledger completion write failed",
			slog.String("fingerprint", fp),
			slog.String("error", err.Error()),
		)
		return // keep supervising; retry next poll
	}

	if s.archiver != nil {
		entry, err := s.ledger.Get(ctx, fp)
		if err == nil {
			if err := s.archiver.ArchiveRetired(ctx, entry); err != nil {
				s.logger.Warn("archive failed",
					slog.String("fingerprint", fp),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	s.registry.Remove(fp)
	s.logger.Info("signal retired",
		slog.String("fingerprint", fp),
		slog.String("symbol", rec.signal.Symbol),
	)
	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, "signal_retired", "Signal retired",
			fmt.Sprintf("%s %s has no remaining orders or positions", rec.signal.Symbol, fp))
	}
}

// exitQuote returns the exit-side price for the signal's direction, serving
// from the quote cache when fresh and falling back to the venue.
func (s *Supervisor) exitQuote(ctx context.Context, sig domain.Signal) (float64, error) {
	if s.quotes != nil {
		bid, ask, _, err := s.quotes.GetQuote(ctx, sig.Symbol)
		if err == nil {
			if sig.Direction == domain.DirectionBuy {
				return bid, nil
			}
			return ask, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Debug("quote cache read failed, falling back to venue",
				slog.String("symbol", sig.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}

	info, err := s.venue.SymbolInfo(ctx, sig.Symbol)
	if err != nil {
		return 0, err
	}
	return info.ExitPriceFor(sig.Direction), nil
}

// pipSize is a convenience wrapper so the loops share one pip definition
// with the sizing calculator.
func pipSize(symbol string) float64 {
	return sizing.PipSize(symbol)
}
