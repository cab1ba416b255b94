// Package symbols maps signal symbol names onto the names a broker actually
// lists. Brokers suffix or rename instruments (XAUUSD+, XAUUSDm, GOLD), and a
// signal always carries the plain name; orders must carry the broker's.
package symbols

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/tradekit/signalpilot/internal/domain"
)

// InfoProvider is the lookup surface the resolver needs from a venue.
type InfoProvider interface {
	SymbolInfo(ctx context.Context, symbol string) (domain.SymbolInfo, error)
}

// knownVariants lists broker spellings for the instruments signals commonly
// carry, tried in order after an exact match fails.
var knownVariants = map[string][]string{
	"XAUUSD": {"XAUUSD+", "XAUUSD.", "XAUUSDm", "#XAUUSD", "GOLD", "GOLDm", "GOLD."},
	"XAGUSD": {"XAGUSD+", "XAGUSD.", "XAGUSDm", "#XAGUSD", "SILVER", "SILVERm", "SILVER."},
	"EURUSD": {"EURUSD+", "EURUSD.", "EURUSDm", "#EURUSD", "EURUSD.a", "EURUSDc"},
	"GBPUSD": {"GBPUSD+", "GBPUSD.", "GBPUSDm", "#GBPUSD", "GBPUSD.a", "GBPUSDc"},
	"USDJPY": {"USDJPY+", "USDJPY.", "USDJPYm", "#USDJPY", "USDJPY.a", "USDJPYc"},
	"AUDUSD": {"AUDUSD+", "AUDUSD.", "AUDUSDm", "#AUDUSD", "AUDUSD.a", "AUDUSDc"},
	"USDCAD": {"USDCAD+", "USDCAD.", "USDCADm", "#USDCAD", "USDCAD.a", "USDCADc"},
	"NZDUSD": {"NZDUSD+", "NZDUSD.", "NZDUSDm", "#NZDUSD", "NZDUSD.a", "NZDUSDc"},
	"USDCHF": {"USDCHF+", "USDCHF.", "USDCHFm", "#USDCHF", "USDCHF.a", "USDCHFc"},
	"EURJPY": {"EURJPY+", "EURJPY.", "EURJPYm", "#EURJPY", "EURJPY.a", "EURJPYc"},
	"GBPJPY": {"GBPJPY+", "GBPJPY.", "GBPJPYm", "#GBPJPY", "GBPJPY.a", "GBPJPYc"},
	"EURGBP": {"EURGBP+", "EURGBP.", "EURGBPm", "#EURGBP", "EURGBP.a", "EURGBPc"},
	"BTCUSD": {"BTCUSD+", "BTCUSD.", "BTCUSDm", "#BTCUSD", "BITCOIN"},
	"ETHUSD": {"ETHUSD+", "ETHUSD.", "ETHUSDm", "#ETHUSD", "ETHEREUM"},
}

// commonSuffixes are tried on symbols the variant table does not cover.
var commonSuffixes = []string{"+", ".", "m", "#", ".a", ".b", ".c", "_raw", "_ecn"}

// Resolver resolves signal symbols against a venue and remembers every hit, so
// each instrument is looked up at most once per process.
type Resolver struct {
	venue  InfoProvider
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver creates a Resolver backed by the given venue.
func NewResolver(venue InfoProvider, logger *slog.Logger) *Resolver {
	return &Resolver{
		venue:  venue,
		logger: logger.With(slog.String("component", "symbols")),
		cache:  make(map[string]string),
	}
}

// Resolve returns the broker name for a signal symbol. When no listed variant
// can be found the normalized input is returned as-is, leaving the venue to
// reject it with a precise error.
func (r *Resolver) Resolve(ctx context.Context, symbol string) string {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))

	r.mu.Lock()
	if hit, ok := r.cache[normalized]; ok {
		r.mu.Unlock()
		return hit
	}
	r.mu.Unlock()

	resolved, ok := r.lookup(ctx, normalized)
	if !ok {
		r.logger.Warn("symbol not listed at venue, passing through",
			slog.String("symbol", normalized),
		)
		return normalized
	}

	r.mu.Lock()
	r.cache[normalized] = resolved
	r.mu.Unlock()

	if resolved != normalized {
		r.logger.Info("symbol resolved to broker variant",
			slog.String("symbol", normalized),
			slog.String("broker_symbol", resolved),
		)
	}
	return resolved
}

// lookup tries the exact name, the known broker variants, then generic
// suffixes, returning the first one the venue lists.
func (r *Resolver) lookup(ctx context.Context, symbol string) (string, bool) {
	if r.listed(ctx, symbol) {
		return symbol, true
	}
	for _, v := range knownVariants[symbol] {
		if r.listed(ctx, v) {
			return v, true
		}
	}
	for _, suffix := range commonSuffixes {
		if candidate := symbol + suffix; r.listed(ctx, candidate) {
			return candidate, true
		}
	}
	return "", false
}

func (r *Resolver) listed(ctx context.Context, symbol string) bool {
	_, err := r.venue.SymbolInfo(ctx, symbol)
	return err == nil
}
