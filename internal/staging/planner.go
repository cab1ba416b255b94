// Package staging turns a signal's entry zone into per-slot entry orders:
// which price each slot enters at, which protective levels it carries, and
// whether it fills immediately or rests at its level.
package staging

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tradekit/signalpilot/internal/domain"
)

// Config holds the staging policy.
type Config struct {
	// NumPositions is the number of entry slots.
	NumPositions int
	// Slot1Target selects "tp1" or "tp2" as the first slot's target.
	Slot1Target string
	// StagedEntry spreads slots across the zone; disabled, every slot
	// enters at the zone midpoint.
	StagedEntry bool
	// RunnerEnabled leaves the last slot without a fixed target.
	RunnerEnabled bool
}

// Planner builds slot plans from signals.
type Planner struct {
	cfg    Config
	logger *slog.Logger
}

// NewPlanner creates a Planner with the given policy.
func NewPlanner(cfg Config, logger *slog.Logger) *Planner {
	return &Planner{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "staging")),
	}
}

// Plan lays out the signal across NumPositions slots. Slot 1 sits at the zone
// edge closest to the incoming price, the last slot at the far edge, middle
// slots at the zone midpoint. Volumes are left zero; the sizing calculator
// assigns them.
func (p *Planner) Plan(sig domain.Signal, symbol domain.SymbolInfo) ([]domain.SlotPlan, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}

	n := p.cfg.NumPositions
	if n < 1 {
		return nil, fmt.Errorf("staging: num_positions must be >= 1, got %d", n)
	}

	current := symbol.PriceFor(sig.Direction)
	inZone := sig.InEntryZone(current)

	stop := 0.0
	if sl := sig.PrimaryStop(); sl != nil {
		stop = *sl
	}

	plan := make([]domain.SlotPlan, 0, n)
	for slot := 1; slot <= n; slot++ {
		entry := p.slotEntry(sig, slot, n)
		runner := p.cfg.RunnerEnabled && n > 1 && slot == n

		sp := domain.SlotPlan{
			Slot:       slot,
			Kind:       domain.OrderKindLimit,
			Entry:      entry,
			StopLoss:   stop,
			TakeProfit: p.slotTarget(sig, slot, n, runner),
			Runner:     runner,
		}

		// A slot whose level the market has already passed cannot rest;
		// it enters at market instead of being skipped. Levels inside the
		// venue's minimum stop distance cannot rest either.
		if inZone && (reached(current, entry) || tooClose(current, entry, symbol.StopDistance)) {
			sp.Kind = domain.OrderKindMarket
			sp.Entry = current
		}

		plan = append(plan, sp)
	}

	p.logger.Debug("staged entry plan built",
		slog.String("fingerprint", sig.Fingerprint),
		slog.String("symbol", sig.Symbol),
		slog.Bool("in_zone", inZone),
		slog.Int("slots", len(plan)),
	)
	return plan, nil
}

// slotEntry picks the entry level for a slot. Buys ladder from the upper
// bound down to the lower; sells mirror it.
func (p *Planner) slotEntry(sig domain.Signal, slot, n int) float64 {
	if !p.cfg.StagedEntry || n == 1 {
		return sig.EntryMiddle
	}
	near, far := sig.EntryUpper, sig.EntryLower
	if sig.Direction == domain.DirectionSell {
		near, far = sig.EntryLower, sig.EntryUpper
	}
	switch slot {
	case 1:
		return near
	case n:
		return far
	default:
		return sig.EntryMiddle
	}
}

// slotTarget picks the take-profit level for a slot. The first slot takes the
// configured primary target, middle slots take TP2, and the runner none.
// Missing levels fall back to the nearest defined one.
func (p *Planner) slotTarget(sig domain.Signal, slot, n int, runner bool) *float64 {
	if runner {
		return nil
	}
	if slot == 1 {
		if strings.EqualFold(p.cfg.Slot1Target, "tp2") {
			return firstDefined(sig.TakeProfit2, sig.TakeProfit1)
		}
		return firstDefined(sig.TakeProfit1, sig.TakeProfit2)
	}
	if slot == n {
		// Last slot with the runner disabled aims as far as the signal goes.
		return firstDefined(sig.TakeProfit3, sig.TakeProfit2, sig.TakeProfit1)
	}
	return firstDefined(sig.TakeProfit2, sig.TakeProfit1)
}

// reached reports whether the market has already traded at or through the
// slot's entry level. A level at or below the current price has been passed
// for both directions: only levels still above the price may rest.
func reached(current, entry float64) bool {
	return current >= entry
}

// tooClose reports whether a resting level would violate the venue's minimum
// stop distance.
func tooClose(current, entry, stopDistance float64) bool {
	if stopDistance <= 0 {
		return false
	}
	d := current - entry
	if d < 0 {
		d = -d
	}
	return d < stopDistance
}

func firstDefined(candidates ...*float64) *float64 {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}
