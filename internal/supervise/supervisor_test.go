package supervise

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradekit/signalpilot/internal/domain"
	"github.com/tradekit/signalpilot/internal/store/memstore"
	"github.com/tradekit/signalpilot/internal/venue/sim"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fptr(v float64) *float64 { return &v }

func goldVenue() *sim.Venue {
	return sim.New(
		sim.WithSymbol(domain.SymbolInfo{
			Name:         "XAUUSD",
			Bid:          2401.8,
			Ask:          2402,
			ContractSize: 100,
			VolumeMin:    0.01,
			VolumeMax:    50,
			VolumeStep:   0.01,
		}),
	)
}

func goldSignal() domain.Signal {
	sig := domain.Signal{
		Symbol:      "XAUUSD",
		Direction:   domain.DirectionBuy,
		EntryUpper:  2405,
		EntryMiddle: 2400,
		EntryLower:  2395,
		StopLoss1:   fptr(2390),
		TakeProfit1: fptr(2410),
		TakeProfit2: fptr(2420),
	}
	sig.Fingerprint = sig.ComputeFingerprint()
	return sig
}

func defaultSuperviseConfig() Config {
	return Config{
		PollInterval:           time.Second,
		TrailingStopPips:       30,
		TrailingActivationPips: 20,
		BreakevenEnabled:       true,
		BreakevenBufferPips:    1,
	}
}

// captureArchiver records the entries handed to it.
type captureArchiver struct {
	mu      sync.Mutex
	entries []domain.LedgerEntry
}

func (c *captureArchiver) ArchiveRetired(_ context.Context, entry domain.LedgerEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
	return nil
}

type fixture struct {
	sup        *Supervisor
	venue      *sim.Venue
	ledger     *memstore.Ledger
	protection *memstore.ProtectionStore
	registry   *Registry
	archiver   *captureArchiver
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		venue:      goldVenue(),
		ledger:     memstore.NewLedger(),
		protection: memstore.NewProtectionStore(),
		registry:   NewRegistry(),
		archiver:   &captureArchiver{},
	}
	f.sup = New(cfg, f.venue, f.ledger, f.protection, nil, f.registry, f.archiver, nil, testLogger())
	return f
}

// placeSlot opens or parks one order for the signal at the venue and returns
// its ticket.
func placeSlot(t *testing.T, venue *sim.Venue, sig domain.Signal, slot int, kind domain.OrderKind, entry, stop float64) int64 {
	t.Helper()
	res, err := venue.PlaceOrder(context.Background(), domain.OrderRequest{
		Symbol:    sig.Symbol,
		Direction: sig.Direction,
		Kind:      kind,
		Volume:    0.03,
		Price:     entry,
		StopLoss:  stop,
		Comment:   domain.OrderComment(sig.Fingerprint, slot),
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	return res.Ticket
}

func TestTrackerFollowsSlotLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultSuperviseConfig())
	sig := goldSignal()
	require.NoError(t, f.ledger.Record(ctx, sig))

	ticket := placeSlot(t, f.venue, sig, 1, domain.OrderKindLimit, 2400, 2390)
	plan := []domain.SlotPlan{{Slot: 1, Kind: domain.OrderKindLimit, Entry: 2400, StopLoss: 2390}}
	rec := f.registry.Register(sig, plan, map[int]int64{1: ticket})

	f.sup.TrackOnce(ctx)
	assert.Equal(t, SlotPending, rec.Snapshot()[1])

	// The quote drops through the level and the resting buy fills.
	f.venue.SetQuote("XAUUSD", 2399.8, 2400)
	f.sup.TrackOnce(ctx)
	assert.Equal(t, SlotOpen, rec.Snapshot()[1])

	require.NoError(t, f.venue.ClosePosition(ctx, ticket))
	f.sup.TrackOnce(ctx)
	assert.Equal(t, SlotClosed, rec.Snapshot()[1])
}

func TestTrackerRetiresEmptySignal(t *testing.T) {
	ctx := context.Background()
	cfg := defaultSuperviseConfig()
	cfg.PollInterval = time.Millisecond
	f := newFixture(t, cfg)

	sig := goldSignal()
	require.NoError(t, f.ledger.Record(ctx, sig))
	// The venue holds nothing for the signal.
	f.registry.Register(sig, nil, nil)

	// Let the registration age past the retirement grace period.
	time.Sleep(5 * time.Millisecond)
	f.sup.TrackOnce(ctx)

	status, err := f.ledger.Status(ctx, sig.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, domain.SignalStatusCompleted, status)

	_, ok := f.registry.Get(sig.Fingerprint)
	assert.False(t, ok)

	require.Len(t, f.archiver.entries, 1)
	assert.Equal(t, sig.Fingerprint, f.archiver.entries[0].Signal.Fingerprint)
	assert.Equal(t, domain.SignalStatusCompleted, f.archiver.entries[0].Status)
}

func TestTrackerKeepsFreshSignalAlive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultSuperviseConfig())

	sig := goldSignal()
	require.NoError(t, f.ledger.Record(ctx, sig))
	f.registry.Register(sig, nil, nil)

	// Registered moments ago: the grace period keeps it supervised even
	// though the venue shows nothing yet.
	f.sup.TrackOnce(ctx)

	_, ok := f.registry.Get(sig.Fingerprint)
	assert.True(t, ok)

	status, err := f.ledger.Status(ctx, sig.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, domain.SignalStatusActive, status)
}

func TestRestoreFromLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultSuperviseConfig())

	active := goldSignal()
	require.NoError(t, f.ledger.Record(ctx, active))

	protected := goldSignal()
	protected.TakeProfit2 = fptr(2430) // different identity
	protected.Fingerprint = protected.ComputeFingerprint()
	require.NoError(t, f.ledger.Record(ctx, protected))
	require.NoError(t, f.ledger.SetStatus(ctx, protected.Fingerprint, domain.SignalStatusTP2Hit))
	require.NoError(t, f.protection.MarkFired(ctx, protected.Fingerprint, time.Now()))

	require.NoError(t, f.sup.RestoreFromLedger(ctx))

	rec, ok := f.registry.Get(active.Fingerprint)
	require.True(t, ok)
	assert.False(t, rec.RunnerArmed())

	rec, ok = f.registry.Get(protected.Fingerprint)
	require.True(t, ok)
	assert.True(t, rec.RunnerArmed())
}

func TestObserveBestRatchets(t *testing.T) {
	rec := &Record{signal: domain.Signal{Direction: domain.DirectionBuy}}
	assert.Equal(t, 2400.0, rec.observeBest(2400))
	assert.Equal(t, 2405.0, rec.observeBest(2405))
	assert.Equal(t, 2405.0, rec.observeBest(2402)) // pullback keeps the high

	rec = &Record{signal: domain.Signal{Direction: domain.DirectionSell}}
	assert.Equal(t, 2400.0, rec.observeBest(2400))
	assert.Equal(t, 2395.0, rec.observeBest(2395))
	assert.Equal(t, 2395.0, rec.observeBest(2398))
}
