package supervise

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradekit/signalpilot/internal/domain"
	"github.com/tradekit/signalpilot/internal/store/memstore"
	"github.com/tradekit/signalpilot/internal/venue/sim"
)

// positionStop returns the current stop of a ticket at the venue.
func (f *fixture) positionStop(t *testing.T, ticket int64) float64 {
	t.Helper()
	positions, err := f.venue.OpenPositions(context.Background(), "XAUUSD")
	require.NoError(t, err)
	for _, p := range positions {
		if p.Ticket == ticket {
			return p.StopLoss
		}
	}
	t.Fatalf("ticket %d not found", ticket)
	return 0
}

func TestTrailingActivatesAndRatchets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultSuperviseConfig())
	sig := goldSignal()

	// Open at the ask (2402) with the signal stop.
	ticket := placeSlot(t, f.venue, sig, 1, domain.OrderKindMarket, 0, 2390)
	plan := []domain.SlotPlan{{Slot: 1, Kind: domain.OrderKindMarket, Entry: 2402, StopLoss: 2390}}
	f.registry.Register(sig, plan, map[int]int64{1: ticket})

	// 10 pips of profit is below the 20-pip activation: no trail.
	f.venue.SetQuote("XAUUSD", 2402.1, 2402.3)
	f.sup.TrailOnce(ctx)
	assert.Equal(t, 2390.0, f.positionStop(t, ticket))

	// 100 pips of profit activates; stop follows the best bid minus the
	// 30-pip trail distance.
	f.venue.SetQuote("XAUUSD", 2403, 2403.2)
	f.sup.TrailOnce(ctx)
	assert.InDelta(t, 2402.7, f.positionStop(t, ticket), 1e-9)

	// A pullback never loosens the stop.
	f.venue.SetQuote("XAUUSD", 2402.5, 2402.7)
	f.sup.TrailOnce(ctx)
	assert.InDelta(t, 2402.7, f.positionStop(t, ticket), 1e-9)

	// A new high ratchets it further.
	f.venue.SetQuote("XAUUSD", 2404, 2404.2)
	f.sup.TrailOnce(ctx)
	assert.InDelta(t, 2403.7, f.positionStop(t, ticket), 1e-9)
}

func TestTrailingSellDirection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultSuperviseConfig())
	sig := goldSignal()
	sig.Direction = domain.DirectionSell
	sig.Fingerprint = sig.ComputeFingerprint()

	// Open at the bid (2401.8) with a stop above.
	ticket := placeSlot(t, f.venue, sig, 1, domain.OrderKindMarket, 0, 2410)
	plan := []domain.SlotPlan{{Slot: 1, Kind: domain.OrderKindMarket, Entry: 2401.8, StopLoss: 2410}}
	f.registry.Register(sig, plan, map[int]int64{1: ticket})

	// The market drops a dollar; the sell trails from the best ask plus the
	// trail distance.
	f.venue.SetQuote("XAUUSD", 2400.6, 2400.8)
	f.sup.TrailOnce(ctx)
	assert.InDelta(t, 2401.1, f.positionStop(t, ticket), 1e-9)
}

func TestTrailingSkipsUnarmedRunner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultSuperviseConfig())
	sig := goldSignal()

	ticket := placeSlot(t, f.venue, sig, 3, domain.OrderKindMarket, 0, 2390)
	plan := []domain.SlotPlan{{Slot: 3, Kind: domain.OrderKindMarket, Entry: 2402, Runner: true, StopLoss: 2390}}
	rec := f.registry.Register(sig, plan, map[int]int64{3: ticket})

	// Deep in profit, but the runner waits for protection to arm it.
	f.venue.SetQuote("XAUUSD", 2415, 2415.2)
	f.sup.TrailOnce(ctx)
	assert.Equal(t, 2390.0, f.positionStop(t, ticket))
	assert.False(t, rec.RunnerArmed())
}

func TestTrailingDefersInsideMinStopDistance(t *testing.T) {
	ctx := context.Background()

	// The venue demands half a dollar between price and stop; the 30-pip
	// trail candidate sits closer than that.
	venue := sim.New(sim.WithSymbol(domain.SymbolInfo{
		Name:         "XAUUSD",
		Bid:          2401.8,
		Ask:          2402,
		ContractSize: 100,
		VolumeMin:    0.01,
		VolumeMax:    50,
		VolumeStep:   0.01,
		StopDistance: 0.5,
	}))
	f := &fixture{
		venue:      venue,
		ledger:     memstore.NewLedger(),
		protection: memstore.NewProtectionStore(),
		registry:   NewRegistry(),
	}
	f.sup = New(defaultSuperviseConfig(), f.venue, f.ledger, f.protection, nil, f.registry, nil, nil, testLogger())

	sig := goldSignal()
	ticket := placeSlot(t, f.venue, sig, 1, domain.OrderKindMarket, 0, 2390)
	plan := []domain.SlotPlan{{Slot: 1, Kind: domain.OrderKindMarket, Entry: 2402, StopLoss: 2390}}
	f.registry.Register(sig, plan, map[int]int64{1: ticket})

	f.venue.SetQuote("XAUUSD", 2403, 2403.2)
	f.sup.TrailOnce(ctx)
	// Candidate 2402.7 is only 0.3 under the bid: deferred.
	assert.Equal(t, 2390.0, f.positionStop(t, ticket))
}

func TestTrailingHelpers(t *testing.T) {
	assert.True(t, inProfitBy(domain.DirectionBuy, 2400, 2400.5, 0.2))
	assert.False(t, inProfitBy(domain.DirectionBuy, 2400, 2400.1, 0.2))
	assert.True(t, inProfitBy(domain.DirectionSell, 2400, 2399.5, 0.2))

	assert.Equal(t, 2402.7, trailCandidate(domain.DirectionBuy, 2403, 0.3))
	assert.Equal(t, 2403.3, trailCandidate(domain.DirectionSell, 2403, 0.3))

	assert.True(t, moreFavorable(domain.DirectionBuy, 2402.7, 2390))
	assert.False(t, moreFavorable(domain.DirectionBuy, 2390, 2402.7))
	assert.True(t, moreFavorable(domain.DirectionBuy, 2390, 0)) // no stop yet
	assert.True(t, moreFavorable(domain.DirectionSell, 2401, 2410))

	assert.True(t, stopDistanceOK(domain.DirectionBuy, 2403, 2402.4, 0.5))
	assert.False(t, stopDistanceOK(domain.DirectionBuy, 2403, 2402.7, 0.5))
	assert.True(t, stopDistanceOK(domain.DirectionBuy, 2403, 2402.9, 0))
}
