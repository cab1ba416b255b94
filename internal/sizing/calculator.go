// Package sizing converts a risk budget into per-slot lot volumes and
// validates that the resulting trade fits the account.
package sizing

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/tradekit/signalpilot/internal/domain"
)

// Config holds the risk parameters of the calculator.
type Config struct {
	// RiskPercent is the share of balance risked across the whole signal.
	RiskPercent float64
	// NumPositions is the slot count the budget is split over.
	NumPositions int
	// DefaultStopPips is the assumed stop distance when a slot has no stop.
	DefaultStopPips float64
}

// Calculator sizes staged entry slots. Each slot receives an equal share of
// the signal's risk budget; the stop distance of the slot determines how many
// lots that share buys.
type Calculator struct {
	cfg    Config
	logger *slog.Logger
}

// NewCalculator creates a Calculator with the given risk parameters.
func NewCalculator(cfg Config, logger *slog.Logger) *Calculator {
	return &Calculator{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "sizing")),
	}
}

// Apply assigns a volume to every slot in plan, in place, and returns the
// plan. Volumes are rounded down to the venue's lot step and clamped to its
// volume bounds.
func (c *Calculator) Apply(plan []domain.SlotPlan, account domain.AccountInfo, symbol domain.SymbolInfo) []domain.SlotPlan {
	budget := account.Balance * c.cfg.RiskPercent / 100 / float64(c.cfg.NumPositions)
	pip := PipSize(symbol.Name)
	pipValuePerLot := symbol.ContractSize * pip

	for i := range plan {
		dist := c.stopDistancePips(plan[i], symbol)
		lots := budget / (dist * pipValuePerLot)
		plan[i].Volume = clampVolume(roundToStep(lots, symbol.VolumeStep), symbol)
	}
	return plan
}

// stopDistancePips returns the slot's stop distance in pips, falling back to
// the configured default when the slot carries no stop.
func (c *Calculator) stopDistancePips(slot domain.SlotPlan, symbol domain.SymbolInfo) float64 {
	if slot.StopLoss <= 0 {
		c.logger.Warn("slot has no stop level, using default stop distance",
			slog.Int("slot", slot.Slot),
			slog.String("symbol", symbol.Name),
			slog.Float64("default_stop_pips", c.cfg.DefaultStopPips),
		)
		return c.cfg.DefaultStopPips
	}
	dist := PipDistance(symbol.Name, slot.Entry, slot.StopLoss)
	if dist <= 0 {
		return c.cfg.DefaultStopPips
	}
	return dist
}

// ValidateTrade estimates the margin the whole plan requires and rejects it
// when the account cannot carry it. A failed validation aborts the entire
// signal; no partial placements happen.
func (c *Calculator) ValidateTrade(plan []domain.SlotPlan, account domain.AccountInfo, symbol domain.SymbolInfo) error {
	leverage := account.Leverage
	if leverage <= 0 {
		leverage = 1
	}

	var totalMargin float64
	for _, slot := range plan {
		if slot.Volume < symbol.VolumeMin || slot.Volume > symbol.VolumeMax {
			return fmt.Errorf("%w: slot %d volume %v outside [%v, %v]",
				domain.ErrOrderRejected, slot.Slot, slot.Volume, symbol.VolumeMin, symbol.VolumeMax)
		}
		totalMargin += slot.Volume * symbol.ContractSize * slot.Entry / leverage
	}

	if totalMargin > account.FreeMargin {
		return fmt.Errorf("%w: need %.2f, free %.2f",
			domain.ErrInsufficientMargin, totalMargin, account.FreeMargin)
	}
	return nil
}

// Outcome summarizes the monetary consequences of a sized plan, for logging
// and operator notifications.
type Outcome struct {
	MaxLoss   float64
	TP1Profit float64
	TP2Profit float64
}

// PotentialOutcome estimates the worst-case loss and the profit at the first
// two targets for a sized plan. Runner slots contribute to TP2 profit at the
// TP2 level since their upside is open-ended.
func (c *Calculator) PotentialOutcome(sig domain.Signal, plan []domain.SlotPlan, symbol domain.SymbolInfo) Outcome {
	pip := PipSize(symbol.Name)
	pipValuePerLot := symbol.ContractSize * pip

	var out Outcome
	for _, slot := range plan {
		stop := slot.StopLoss
		if stop <= 0 {
			continue
		}
		out.MaxLoss += PipDistance(symbol.Name, slot.Entry, stop) * pipValuePerLot * slot.Volume

		if sig.TakeProfit1 != nil {
			out.TP1Profit += PipDistance(symbol.Name, slot.Entry, *sig.TakeProfit1) * pipValuePerLot * slot.Volume
		}
		if sig.TakeProfit2 != nil {
			out.TP2Profit += PipDistance(symbol.Name, slot.Entry, *sig.TakeProfit2) * pipValuePerLot * slot.Volume
		}
	}
	return out
}

// roundToStep rounds volume down to a whole number of lot steps.
func roundToStep(volume, step float64) float64 {
	if step <= 0 {
		return volume
	}
	steps := math.Floor(volume/step + 1e-9)
	return steps * step
}

// clampVolume bounds a volume to the venue's limits.
func clampVolume(volume float64, symbol domain.SymbolInfo) float64 {
	if volume < symbol.VolumeMin {
		return symbol.VolumeMin
	}
	if symbol.VolumeMax > 0 && volume > symbol.VolumeMax {
		return symbol.VolumeMax
	}
	return volume
}
