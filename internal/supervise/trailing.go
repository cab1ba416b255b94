package supervise

import (
	"context"
	"log/slog"

	"github.com/tradekit/signalpilot/internal/domain"
)

// pollTrailing ratchets the trailing stops of every supervised signal.
func (s *Supervisor) pollTrailing(ctx context.Context) {
	for _, rec := range s.registry.List() {
		if err := s.trailRecord(ctx, rec); err != nil {
			s.logger.Warn("trailing poll failed",
				slog.String("fingerprint", rec.signal.Fingerprint),
				slog.String("error", err.Error()),
			)
		}
	}
}

// TrailOnce runs a single trailing pass, exposed for tests.
func (s *Supervisor) TrailOnce(ctx context.Context) {
	s.pollTrailing(ctx)
}

func (s *Supervisor) trailRecord(ctx context.Context, rec *Record) error {
	sig := rec.signal
	fp := sig.Fingerprint

	positions, err := s.venue.OpenPositions(ctx, sig.Symbol)
	if err != nil {
		return err
	}
	positions = domain.PositionsForSignal(positions, fp)
	if len(positions) == 0 {
		return nil
	}

	exit, err := s.exitQuote(ctx, sig)
	if err != nil {
		return err
	}

	info, err := s.venue.SymbolInfo(ctx, sig.Symbol)
	if err != nil {
		return err
	}

	pip := pipSize(sig.Symbol)
	trailDist := s.cfg.TrailingStopPips * pip
	activationDist := s.cfg.TrailingActivationPips * pip

	rec.mu.Lock()
	defer rec.mu.Unlock()

	best := rec.observeBest(exit)

	for _, pos := range positions {
		_, slot, ok := domain.ParseOrderComment(pos.Comment)
		if !ok {
			continue
		}

		// The runner never trails on the activation rule; it waits for
		// profit protection to arm it.
		if t := rec.slots[slot]; t != nil && t.runner && !rec.runnerArmed {
			continue
		}
		if t := rec.slots[slot]; t == nil && s.isRunnerSlot(rec, slot) && !rec.runnerArmed {
			continue
		}

		// Activation: the position must be in profit by the activation
		// distance before its stop starts following the market.
		if !inProfitBy(sig.Direction, pos.OpenPrice, exit, activationDist) {
			continue
		}

		candidate := trailCandidate(sig.Direction, best, trailDist)
		if !moreFavorable(sig.Direction, candidate, pos.StopLoss) {
			continue
		}
		// The venue refuses stops inside its minimum distance; defer to
		// the next poll rather than fail the modify.
		if !stopDistanceOK(sig.Direction, exit, candidate, info.StopDistance) {
			s.logger.Debug("trailing stop deferred by min stop distance",
				slog.String("fingerprint", fp),
				slog.Int("slot", slot),
				slog.Float64("candidate", candidate),
			)
			continue
		}

		if err := s.venue.ModifyPositionStops(ctx, pos.Ticket, candidate, nil); err != nil {
			s.logger.Warn("trailing stop modify failed",
				slog.String("fingerprint", fp),
				slog.Int64("ticket", pos.Ticket),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.logger.Info("trailing stop advanced",
			slog.String("fingerprint", fp),
			slog.Int("slot", slot),
			slog.Int64("ticket", pos.Ticket),
			slog.Float64("stop", candidate),
			slog.Float64("best", best),
		)
	}
	return nil
}

// inProfitBy reports whether the position's unrealized move covers dist.
func inProfitBy(d domain.Direction, entry, exit, dist float64) bool {
	if d == domain.DirectionBuy {
		return exit-entry >= dist
	}
	return entry-exit >= dist
}

// trailCandidate is the stop level the ratchet proposes from the best price.
func trailCandidate(d domain.Direction, best, trailDist float64) float64 {
	if d == domain.DirectionBuy {
		return best - trailDist
	}
	return best + trailDist
}

// moreFavorable reports whether candidate improves on the current stop.
// A missing stop (zero) is always improved upon.
func moreFavorable(d domain.Direction, candidate, current float64) bool {
	if current == 0 {
		return true
	}
	if d == domain.DirectionBuy {
		return candidate > current
	}
	return candidate < current
}

// stopDistanceOK reports whether the venue's minimum stop distance allows
// placing the candidate stop at the current price.
func stopDistanceOK(d domain.Direction, exit, candidate, minDist float64) bool {
	if minDist <= 0 {
		return true
	}
	var gap float64
	if d == domain.DirectionBuy {
		gap = exit - candidate
	} else {
		gap = candidate - exit
	}
	return gap >= minDist
}
