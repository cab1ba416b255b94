package supervise

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tradekit/signalpilot/internal/domain"
)

// cancelRetryPause is the pause before the single cancel retry.
const cancelRetryPause = 500 * time.Millisecond

// pollProtection checks every supervised signal for a TP2 touch and fires
// the one-shot protection sequence when it happens.
func (s *Supervisor) pollProtection(ctx context.Context) {
	for _, rec := range s.registry.List() {
		if err := s.protectRecord(ctx, rec); err != nil {
			s.logger.Warn("protection poll failed",
				slog.String("fingerprint", rec.signal.Fingerprint),
				slog.String("error", err.Error()),
			)
		}
	}
}

// ProtectOnce runs a single protection pass, exposed for tests.
func (s *Supervisor) ProtectOnce(ctx context.Context) {
	s.pollProtection(ctx)
}

func (s *Supervisor) protectRecord(ctx context.Context, rec *Record) error {
	sig := rec.signal
	if sig.TakeProfit2 == nil {
		return nil
	}

	rec.mu.Lock()
	fired := rec.protectionFired
	rec.mu.Unlock()
	if fired {
		return nil
	}

	// The durable marker wins over the in-memory flag: another instance or
	// a previous run may already have fired.
	stored, err := s.protection.Fired(ctx, sig.Fingerprint)
	if err != nil {
		return err
	}
	if stored {
		rec.mu.Lock()
		rec.protectionFired = true
		rec.mu.Unlock()
		return nil
	}

	touched, err := s.tp2Touched(ctx, rec, *sig.TakeProfit2)
	if err != nil {
		return err
	}
	if !touched {
		return nil
	}

	return s.fireProtection(ctx, rec, *sig.TakeProfit2)
}

// tp2Touched detects a TP2 touch two ways: the live exit quote, and a scan
// of the venue's deal history since the signal was registered. The history
// scan catches touches that happened while the engine was offline or the
// feed was gapped.
func (s *Supervisor) tp2Touched(ctx context.Context, rec *Record, tp2 float64) (bool, error) {
	sig := rec.signal

	exit, err := s.exitQuote(ctx, sig)
	if err != nil {
		return false, err
	}
	if beyond(sig.Direction, exit, tp2) {
		return true, nil
	}

	since := sig.CreatedAt
	if since.IsZero() {
		rec.mu.Lock()
		since = rec.registeredAt
		rec.mu.Unlock()
	}
	deals, err := s.venue.DealsSince(ctx, sig.Symbol, since)
	if err != nil {
		// Live detection still works; history is best-effort.
		s.logger.Debug("deal history scan failed",
			slog.String("symbol", sig.Symbol),
			slog.String("error", err.Error()),
		)
		return false, nil
	}
	for _, d := range deals {
		if beyond(sig.Direction, d.Price, tp2) {
			return true, nil
		}
	}
	return false, nil
}

// beyond reports whether price has reached tp2 in the trade's favor.
func beyond(d domain.Direction, price, tp2 float64) bool {
	if d == domain.DirectionBuy {
		return price >= tp2
	}
	return price <= tp2
}

// fireProtection runs the one-shot sequence: persist the marker, cancel
// pendings, move surviving stops to breakeven, arm the runner, and write
// tp2_hit to the ledger. Individual step failures are logged and reported
// but never stop the remaining steps.
func (s *Supervisor) fireProtection(ctx context.Context, rec *Record, tp2 float64) error {
	sig := rec.signal
	fp := sig.Fingerprint
	log := s.logger.With(slog.String("fingerprint", fp), slog.String("symbol", sig.Symbol))

	// Persist the marker first: the sequence must run at most once even if
	// the process dies halfway through.
	if err := s.protection.MarkFired(ctx, fp, time.Now().UTC()); err != nil {
		return fmt.Errorf("supervise: persist protection marker: %w", err)
	}
	rec.mu.Lock()
	rec.protectionFired = true
	rec.mu.Unlock()

	log.Info("profit protection triggered", slog.Float64("tp2", tp2))

	// 1. Cancel every unfilled entry order.
	s.cancelPendings(ctx, rec, log)

	// 2. Move non-runner stops to breakeven.
	if s.cfg.BreakevenEnabled {
		s.moveToBreakeven(ctx, rec, log)
	}

	// 3. Release the runner, anchored one trailing distance behind TP2.
	s.armRunner(ctx, rec, tp2, log)

	// 4. Seal the signal in the ledger.
	if err := s.ledger.SetStatus(ctx, fp, domain.SignalStatusTP2Hit); err != nil {
		log.Error("ledger tp2_hit write failed", slog.String("error", err.Error()))
	}

	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, "protection_fired", "Profit protection fired",
			fmt.Sprintf("%s %s reached TP2 at %v: pendings cancelled, stops at breakeven, runner armed",
				sig.Symbol, fp, tp2))
	}
	return nil
}

// cancelPendings cancels every unfilled order of the signal, retrying each
// once. A cancel that fails twice is reported for manual intervention and
// does not block the rest of the sequence.
func (s *Supervisor) cancelPendings(ctx context.Context, rec *Record, log *slog.Logger) {
	pendings, err := s.venue.PendingOrders(ctx, rec.signal.Symbol)
	if err != nil {
		log.Error("pending order fetch failed during protection", slog.String("error", err.Error()))
		return
	}
	pendings = domain.OrdersForSignal(pendings, rec.signal.Fingerprint)

	for _, o := range pendings {
		if err := s.venue.CancelOrder(ctx, o.Ticket); err == nil {
			log.Info("pending order cancelled", slog.Int64("ticket", o.Ticket))
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(cancelRetryPause):
		}

		if err := s.venue.CancelOrder(ctx, o.Ticket); err != nil {
			log.Error("pending order cancel failed after retry, manual intervention required",
				slog.Int64("ticket", o.Ticket),
				slog.String("error", err.Error()),
			)
			if s.notifier != nil {
				_ = s.notifier.Notify(ctx, "cancel_failed", "Order cancel failed",
					fmt.Sprintf("%s %s: ticket %d could not be cancelled: %v",
						rec.signal.Symbol, rec.signal.Fingerprint, o.Ticket, err))
			}
		} else {
			log.Info("pending order cancelled on retry", slog.Int64("ticket", o.Ticket))
		}
	}
}

// moveToBreakeven rewrites every non-runner open stop to the entry price
// padded by the breakeven buffer, only when that improves the stop.
func (s *Supervisor) moveToBreakeven(ctx context.Context, rec *Record, log *slog.Logger) {
	sig := rec.signal

	positions, err := s.venue.OpenPositions(ctx, sig.Symbol)
	if err != nil {
		log.Error("position fetch failed during protection", slog.String("error", err.Error()))
		return
	}
	positions = domain.PositionsForSignal(positions, sig.Fingerprint)

	buffer := s.cfg.BreakevenBufferPips * pipSize(sig.Symbol)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	for _, pos := range positions {
		_, slot, ok := domain.ParseOrderComment(pos.Comment)
		if !ok {
			continue
		}
		if t := rec.slots[slot]; (t != nil && t.runner) || (t == nil && s.isRunnerSlot(rec, slot)) {
			continue
		}

		var breakeven float64
		if sig.Direction == domain.DirectionBuy {
			breakeven = pos.OpenPrice + buffer
		} else {
			breakeven = pos.OpenPrice - buffer
		}
		if !moreFavorable(sig.Direction, breakeven, pos.StopLoss) {
			continue
		}

		if err := s.venue.ModifyPositionStops(ctx, pos.Ticket, breakeven, nil); err != nil {
			log.Error("breakeven move failed",
				slog.Int64("ticket", pos.Ticket),
				slog.String("error", err.Error()),
			)
			continue
		}
		log.Info("stop moved to breakeven",
			slog.Int("slot", slot),
			slog.Int64("ticket", pos.Ticket),
			slog.Float64("stop", breakeven),
		)
	}
}

// armRunner releases the runner slot to trail, anchoring its stop one
// trailing distance behind TP2.
func (s *Supervisor) armRunner(ctx context.Context, rec *Record, tp2 float64, log *slog.Logger) {
	sig := rec.signal

	rec.mu.Lock()
	rec.runnerArmed = true
	// Seed the ratchet at TP2 so the anchor holds even if price has pulled
	// back by the time the next trailing pass runs.
	rec.observeBest(tp2)
	rec.mu.Unlock()

	positions, err := s.venue.OpenPositions(ctx, sig.Symbol)
	if err != nil {
		log.Error("position fetch failed while arming runner", slog.String("error", err.Error()))
		return
	}
	positions = domain.PositionsForSignal(positions, sig.Fingerprint)

	anchor := trailCandidate(sig.Direction, tp2, s.cfg.TrailingStopPips*pipSize(sig.Symbol))

	rec.mu.Lock()
	defer rec.mu.Unlock()

	for _, pos := range positions {
		_, slot, ok := domain.ParseOrderComment(pos.Comment)
		if !ok {
			continue
		}
		if t := rec.slots[slot]; (t == nil || !t.runner) && !s.isRunnerSlot(rec, slot) {
			continue
		}
		if t := rec.slots[slot]; t != nil && !t.runner {
			continue
		}
		if !moreFavorable(sig.Direction, anchor, pos.StopLoss) {
			continue
		}
		if err := s.venue.ModifyPositionStops(ctx, pos.Ticket, anchor, nil); err != nil {
			log.Error("runner anchor failed",
				slog.Int64("ticket", pos.Ticket),
				slog.String("error", err.Error()),
			)
			continue
		}
		log.Info("runner armed",
			slog.Int("slot", slot),
			slog.Int64("ticket", pos.Ticket),
			slog.Float64("anchor", anchor),
		)
	}
}
