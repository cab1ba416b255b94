package sizing

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradekit/signalpilot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fptr(v float64) *float64 { return &v }

func xauSymbol() domain.SymbolInfo {
	return domain.SymbolInfo{
		Name:         "XAUUSD",
		Bid:          2401.50,
		Ask:          2401.80,
		ContractSize: 100,
		VolumeMin:    0.01,
		VolumeMax:    50,
		VolumeStep:   0.01,
	}
}

func TestPipSize(t *testing.T) {
	assert.Equal(t, 0.01, PipSize("XAUUSD"))
	assert.Equal(t, 0.01, PipSize("gold"))
	assert.Equal(t, 0.01, PipSize("BTCUSD"))
	assert.Equal(t, 0.01, PipSize("USDJPY"))
	assert.Equal(t, 0.0001, PipSize("EURUSD"))
	assert.Equal(t, 0.0001, PipSize("GBPAUD"))
}

func TestPipDistance(t *testing.T) {
	assert.InDelta(t, 1000, PipDistance("XAUUSD", 2400, 2390), 1e-9)
	assert.InDelta(t, 1000, PipDistance("XAUUSD", 2390, 2400), 1e-9)
	assert.InDelta(t, 50, PipDistance("EURUSD", 1.1000, 1.0950), 1e-9)
}

// A 10k account risking 1% over three slots has a $33.33 budget per slot.
// A 10.00 stop on gold is 1000 pips at a pip value of $1 per lot, so each
// slot sizes to 0.0333 lots and floors to 0.03 at the venue step.
func TestApplySizesGoldExample(t *testing.T) {
	calc := NewCalculator(Config{RiskPercent: 1, NumPositions: 3, DefaultStopPips: 50}, testLogger())

	plan := []domain.SlotPlan{
		{Slot: 1, Entry: 2400, StopLoss: 2390},
		{Slot: 2, Entry: 2400, StopLoss: 2390},
		{Slot: 3, Entry: 2400, StopLoss: 2390},
	}
	account := domain.AccountInfo{Balance: 10_000, FreeMargin: 10_000, Leverage: 100}

	plan = calc.Apply(plan, account, xauSymbol())

	for _, slot := range plan {
		assert.InDelta(t, 0.03, slot.Volume, 1e-9, "slot %d", slot.Slot)
	}
}

func TestApplyFallsBackToDefaultStop(t *testing.T) {
	calc := NewCalculator(Config{RiskPercent: 1, NumPositions: 1, DefaultStopPips: 100}, testLogger())

	plan := []domain.SlotPlan{{Slot: 1, Entry: 2400}} // no stop on the slot
	account := domain.AccountInfo{Balance: 10_000}

	plan = calc.Apply(plan, account, xauSymbol())

	// budget 100, 100 pips at pipValuePerLot 1 -> 1.00 lots.
	assert.InDelta(t, 1.0, plan[0].Volume, 1e-9)
}

func TestApplyClampsToVolumeBounds(t *testing.T) {
	calc := NewCalculator(Config{RiskPercent: 0.01, NumPositions: 1, DefaultStopPips: 50}, testLogger())

	symbol := xauSymbol()
	plan := []domain.SlotPlan{{Slot: 1, Entry: 2400, StopLoss: 2390}}

	// Tiny budget floors to zero lots, then clamps up to the minimum.
	plan = calc.Apply(plan, domain.AccountInfo{Balance: 100}, symbol)
	assert.InDelta(t, symbol.VolumeMin, plan[0].Volume, 1e-9)

	// Huge budget clamps down to the maximum.
	plan = []domain.SlotPlan{{Slot: 1, Entry: 2400, StopLoss: 2399.99}}
	calc = NewCalculator(Config{RiskPercent: 50, NumPositions: 1, DefaultStopPips: 50}, testLogger())
	plan = calc.Apply(plan, domain.AccountInfo{Balance: 1_000_000}, symbol)
	assert.InDelta(t, symbol.VolumeMax, plan[0].Volume, 1e-9)
}

func TestRoundToStep(t *testing.T) {
	assert.InDelta(t, 0.03, roundToStep(0.0333, 0.01), 1e-9)
	assert.InDelta(t, 0.03, roundToStep(0.03, 0.01), 1e-9) // exact boundary
	assert.InDelta(t, 0.0333, roundToStep(0.0333, 0), 1e-9)
}

func TestValidateTrade(t *testing.T) {
	calc := NewCalculator(Config{RiskPercent: 1, NumPositions: 2, DefaultStopPips: 50}, testLogger())
	symbol := xauSymbol()

	plan := []domain.SlotPlan{
		{Slot: 1, Entry: 2400, Volume: 0.03},
		{Slot: 2, Entry: 2400, Volume: 0.03},
	}

	// 2 x 0.03 x 100 x 2400 / 100 = 144 margin.
	ok := domain.AccountInfo{FreeMargin: 200, Leverage: 100}
	require.NoError(t, calc.ValidateTrade(plan, ok, symbol))

	broke := domain.AccountInfo{FreeMargin: 100, Leverage: 100}
	err := calc.ValidateTrade(plan, broke, symbol)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientMargin)

	// A volume outside the venue bounds is rejected before margin math.
	bad := []domain.SlotPlan{{Slot: 1, Entry: 2400, Volume: 100}}
	err = calc.ValidateTrade(bad, ok, symbol)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
}

func TestPotentialOutcome(t *testing.T) {
	calc := NewCalculator(Config{RiskPercent: 1, NumPositions: 2, DefaultStopPips: 50}, testLogger())
	sig := domain.Signal{
		Symbol:      "XAUUSD",
		Direction:   domain.DirectionBuy,
		TakeProfit1: fptr(2410),
		TakeProfit2: fptr(2420),
	}
	plan := []domain.SlotPlan{
		{Slot: 1, Entry: 2400, StopLoss: 2390, Volume: 0.05},
		{Slot: 2, Entry: 2400, StopLoss: 2390, Volume: 0.05, Runner: true},
	}

	out := calc.PotentialOutcome(sig, plan, xauSymbol())

	// Each slot: 1000 pips stop x $1 pip value x 0.05 = $50.
	assert.InDelta(t, 100, out.MaxLoss, 1e-9)
	assert.InDelta(t, 100, out.TP1Profit, 1e-9)
	assert.InDelta(t, 200, out.TP2Profit, 1e-9)
}
