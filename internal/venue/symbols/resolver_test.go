package symbols

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradekit/signalpilot/internal/domain"
)

type listingStub struct {
	listed map[string]bool
	calls  int
}

func (s *listingStub) SymbolInfo(_ context.Context, symbol string) (domain.SymbolInfo, error) {
	s.calls++
	if s.listed[symbol] {
		return domain.SymbolInfo{Name: symbol}, nil
	}
	return domain.SymbolInfo{}, fmt.Errorf("symbol %s: %w", symbol, domain.ErrNotFound)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newResolver(listed ...string) (*Resolver, *listingStub) {
	stub := &listingStub{listed: make(map[string]bool)}
	for _, s := range listed {
		stub.listed[s] = true
	}
	return NewResolver(stub, testLogger()), stub
}

func TestResolveExactMatch(t *testing.T) {
	r, _ := newResolver("XAUUSD")
	assert.Equal(t, "XAUUSD", r.Resolve(context.Background(), "XAUUSD"))
}

func TestResolveNormalizesInput(t *testing.T) {
	r, _ := newResolver("XAUUSD")
	assert.Equal(t, "XAUUSD", r.Resolve(context.Background(), "  xauusd "))
}

func TestResolveBrokerVariant(t *testing.T) {
	r, _ := newResolver("XAUUSD+")
	assert.Equal(t, "XAUUSD+", r.Resolve(context.Background(), "XAUUSD"))
}

func TestResolveRenamedInstrument(t *testing.T) {
	r, _ := newResolver("GOLD")
	assert.Equal(t, "GOLD", r.Resolve(context.Background(), "XAUUSD"))
}

func TestResolveGenericSuffix(t *testing.T) {
	// US30 has no variant table entry; the suffix sweep finds it.
	r, _ := newResolver("US30.")
	assert.Equal(t, "US30.", r.Resolve(context.Background(), "US30"))
}

func TestResolveUnknownPassesThrough(t *testing.T) {
	r, _ := newResolver()
	assert.Equal(t, "NOPE", r.Resolve(context.Background(), "nope"))
}

func TestResolveCachesHits(t *testing.T) {
	ctx := context.Background()
	r, stub := newResolver("XAUUSDm")

	assert.Equal(t, "XAUUSDm", r.Resolve(ctx, "XAUUSD"))
	seen := stub.calls
	assert.Greater(t, seen, 1)

	// The second lookup is served from the cache without touching the venue.
	assert.Equal(t, "XAUUSDm", r.Resolve(ctx, "XAUUSD"))
	assert.Equal(t, seen, stub.calls)
}

func TestResolveMissDoesNotStick(t *testing.T) {
	ctx := context.Background()
	r, stub := newResolver()

	assert.Equal(t, "XAUUSD", r.Resolve(ctx, "XAUUSD"))
	seen := stub.calls

	// The instrument appears later (venue reconnect); a fresh lookup goes
	// back to the venue and resolves in one call.
	stub.listed["XAUUSD"] = true
	assert.Equal(t, "XAUUSD", r.Resolve(ctx, "XAUUSD"))
	assert.Equal(t, seen+1, stub.calls)
}
