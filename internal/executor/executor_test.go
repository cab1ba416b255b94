package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradekit/signalpilot/internal/domain"
	"github.com/tradekit/signalpilot/internal/sizing"
	"github.com/tradekit/signalpilot/internal/staging"
	"github.com/tradekit/signalpilot/internal/store/memstore"
	"github.com/tradekit/signalpilot/internal/supervise"
	"github.com/tradekit/signalpilot/internal/venue/sim"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fptr(v float64) *float64 { return &v }

func goldVenue() *sim.Venue {
	return sim.New(
		sim.WithBalance(10_000),
		sim.WithLeverage(100),
		sim.WithSymbol(domain.SymbolInfo{
			Name:         "XAUUSD",
			Bid:          2409.8,
			Ask:          2410,
			ContractSize: 100,
			VolumeMin:    0.01,
			VolumeMax:    50,
			VolumeStep:   0.01,
		}),
	)
}

func goldSignal() domain.Signal {
	return domain.Signal{
		Symbol:      "XAUUSD",
		Direction:   domain.DirectionBuy,
		EntryUpper:  2405,
		EntryMiddle: 2400,
		EntryLower:  2395,
		StopLoss1:   fptr(2390),
		TakeProfit1: fptr(2410),
		TakeProfit2: fptr(2420),
		Source:      "test",
	}
}

type harness struct {
	exec     *Executor
	venue    *sim.Venue
	ledger   *memstore.Ledger
	registry *supervise.Registry
}

func newHarness(t *testing.T, venue *sim.Venue) *harness {
	t.Helper()
	logger := testLogger()
	ledger := memstore.NewLedger()
	registry := supervise.NewRegistry()

	planner := staging.NewPlanner(staging.Config{
		NumPositions:  3,
		Slot1Target:   "tp1",
		StagedEntry:   true,
		RunnerEnabled: true,
	}, logger)
	calc := sizing.NewCalculator(sizing.Config{
		RiskPercent:     1,
		NumPositions:    3,
		DefaultStopPips: 50,
	}, logger)

	exec := NewExecutor(nil, venue, ledger, planner, calc, registry, nil, nil, logger)
	return &harness{exec: exec, venue: venue, ledger: ledger, registry: registry}
}

func TestProcessPlacesAllSlots(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, goldVenue())
	sig := goldSignal()

	h.exec.Process(ctx, sig)

	// Price is above the zone, so every slot rests as a limit order.
	pendings, err := h.venue.PendingOrders(ctx, "XAUUSD")
	require.NoError(t, err)
	require.Len(t, pendings, 3)

	// Per-slot budget is $33.33; stop distances of 1500/1000/500 pips at a
	// $1 pip value size the slots to 0.02/0.03/0.06 lots.
	wantVolume := map[int]float64{1: 0.02, 2: 0.03, 3: 0.06}
	fp := sig.ComputeFingerprint()
	for _, o := range pendings {
		gotFP, slot, ok := domain.ParseOrderComment(o.Comment)
		require.True(t, ok)
		assert.Equal(t, fp, gotFP)
		assert.InDelta(t, wantVolume[slot], o.Volume, 1e-9, "slot %d", slot)
	}

	status, err := h.ledger.Status(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, domain.SignalStatusActive, status)

	rec, ok := h.registry.Get(fp)
	require.True(t, ok)
	assert.Len(t, rec.Snapshot(), 3)
}

func TestProcessResolvesBrokerSymbol(t *testing.T) {
	ctx := context.Background()
	// The broker lists gold only under a suffixed name.
	venue := sim.New(
		sim.WithBalance(10_000),
		sim.WithLeverage(100),
		sim.WithSymbol(domain.SymbolInfo{
			Name:         "XAUUSD+",
			Bid:          2409.8,
			Ask:          2410,
			ContractSize: 100,
			VolumeMin:    0.01,
			VolumeMax:    50,
			VolumeStep:   0.01,
		}),
	)
	h := newHarness(t, venue)
	sig := goldSignal()

	h.exec.Process(ctx, sig)

	// Orders land under the broker's spelling, and supervision carries it.
	pendings, err := venue.PendingOrders(ctx, "XAUUSD+")
	require.NoError(t, err)
	assert.Len(t, pendings, 3)

	rec, ok := h.registry.Get(sig.ComputeFingerprint())
	require.True(t, ok)
	assert.Equal(t, "XAUUSD+", rec.Signal().Symbol)
}

func TestProcessDeduplicatesResend(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, goldVenue())

	h.exec.Process(ctx, goldSignal())
	h.exec.Process(ctx, goldSignal())

	pendings, err := h.venue.PendingOrders(ctx, "XAUUSD")
	require.NoError(t, err)
	assert.Len(t, pendings, 3)
}

func TestProcessLedgerBlocksFinishedSignal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, goldVenue())
	h.exec.SetDedupTTL(0)

	sig := goldSignal()
	sig.Fingerprint = sig.ComputeFingerprint()

	// The signal already lived and hit TP2; a re-send must never re-enter.
	require.NoError(t, h.ledger.Record(ctx, sig))
	require.NoError(t, h.ledger.SetStatus(ctx, sig.Fingerprint, domain.SignalStatusTP2Hit))

	h.exec.Process(ctx, sig)

	pendings, err := h.venue.PendingOrders(ctx, "XAUUSD")
	require.NoError(t, err)
	assert.Empty(t, pendings)
}

func TestProcessSkipsOnOppositeExposure(t *testing.T) {
	ctx := context.Background()
	venue := goldVenue()
	h := newHarness(t, venue)

	// An open short on the symbol blocks a new long.
	_, err := venue.PlaceOrder(ctx, domain.OrderRequest{
		Symbol:    "XAUUSD",
		Direction: domain.DirectionSell,
		Kind:      domain.OrderKindMarket,
		Volume:    0.1,
		Comment:   "manual",
	})
	require.NoError(t, err)

	sig := goldSignal()
	h.exec.Process(ctx, sig)

	// Nothing placed and nothing recorded: the signal may retry later once
	// the exposure is gone.
	pendings, err := venue.PendingOrders(ctx, "XAUUSD")
	require.NoError(t, err)
	assert.Empty(t, pendings)

	_, err = h.ledger.Status(ctx, sig.ComputeFingerprint())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProcessSurvivesPartialPlacementFailure(t *testing.T) {
	ctx := context.Background()
	venue := goldVenue()
	h := newHarness(t, venue)

	venue.FailNextPlace(1)
	sig := goldSignal()
	h.exec.Process(ctx, sig)

	pendings, err := venue.PendingOrders(ctx, "XAUUSD")
	require.NoError(t, err)
	assert.Len(t, pendings, 2)

	fp := sig.ComputeFingerprint()
	status, err := h.ledger.Status(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, domain.SignalStatusActive, status)

	rec, ok := h.registry.Get(fp)
	require.True(t, ok)
	assert.Len(t, rec.Snapshot(), 2)
}

func TestProcessCancelsLedgerWhenNothingPlaced(t *testing.T) {
	ctx := context.Background()
	venue := goldVenue()
	h := newHarness(t, venue)

	venue.FailNextPlace(3)
	sig := goldSignal()
	h.exec.Process(ctx, sig)

	fp := sig.ComputeFingerprint()
	status, err := h.ledger.Status(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, domain.SignalStatusCancelled, status)

	_, ok := h.registry.Get(fp)
	assert.False(t, ok)
}

func TestProcessRejectsInvalidSignal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, goldVenue())

	h.exec.Process(ctx, domain.Signal{Symbol: "XAUUSD", Direction: "LONG"})

	pendings, err := h.venue.PendingOrders(ctx, "XAUUSD")
	require.NoError(t, err)
	assert.Empty(t, pendings)
}

func TestPlaceAllSkipsLiveSlots(t *testing.T) {
	ctx := context.Background()
	venue := goldVenue()
	placer := NewPlacer(venue, testLogger())

	sig := goldSignal()
	sig.Fingerprint = sig.ComputeFingerprint()
	plan := []domain.SlotPlan{
		{Slot: 1, Kind: domain.OrderKindLimit, Entry: 2405, Volume: 0.03, StopLoss: 2390, TakeProfit: fptr(2410)},
		{Slot: 2, Kind: domain.OrderKindLimit, Entry: 2400, Volume: 0.03, StopLoss: 2390, TakeProfit: fptr(2420)},
	}

	first, err := placer.PlaceAll(ctx, sig, plan)
	require.NoError(t, err)
	require.Len(t, first, 2)

	// Re-placing the same plan finds both slots live and submits nothing new.
	second, err := placer.PlaceAll(ctx, sig, plan)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	pendings, err := venue.PendingOrders(ctx, "XAUUSD")
	require.NoError(t, err)
	assert.Len(t, pendings, 2)
}

func TestPlaceAllErrorsWhenNothingPlaced(t *testing.T) {
	ctx := context.Background()
	venue := goldVenue()
	venue.FailNextPlace(1)
	placer := NewPlacer(venue, testLogger())

	sig := goldSignal()
	sig.Fingerprint = sig.ComputeFingerprint()
	plan := []domain.SlotPlan{
		{Slot: 1, Kind: domain.OrderKindLimit, Entry: 2405, Volume: 0.03, StopLoss: 2390},
	}

	_, err := placer.PlaceAll(ctx, sig, plan)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOrderRejected))
}

func TestDedupWindow(t *testing.T) {
	d := NewDedup(time.Minute)
	assert.False(t, d.IsDuplicate("abc"))
	assert.True(t, d.IsDuplicate("abc"))
	assert.False(t, d.IsDuplicate("def"))

	// A zero TTL disables the window entirely.
	d = NewDedup(0)
	assert.False(t, d.IsDuplicate("abc"))
	assert.False(t, d.IsDuplicate("abc"))
}
