// Package feed pumps live venue ticks into the shared quote cache so the
// supervision loops read fresh prices without hitting the venue per loop.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tradekit/signalpilot/internal/domain"
	"github.com/tradekit/signalpilot/internal/venue/mt5bridge"
)

// TickFeed subscribes to the bridge tick stream for a dynamic set of symbols
// and writes every tick into the quote cache. It reconnects on disconnect.
type TickFeed struct {
	stream *mt5bridge.TickStream
	quotes domain.QuoteCache
	logger *slog.Logger

	mu      sync.Mutex
	symbols map[string]struct{}
	bump    chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// NewTickFeed creates a feed writing into the given quote cache.
func NewTickFeed(stream *mt5bridge.TickStream, quotes domain.QuoteCache, logger *slog.Logger) *TickFeed {
	return &TickFeed{
		stream:  stream,
		quotes:  quotes,
		logger:  logger.With(slog.String("component", "tick_feed")),
		symbols: make(map[string]struct{}),
		bump:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Watch adds a symbol to the subscription set. The feed resubscribes on the
// next (re)connection.
func (f *TickFeed) Watch(symbol string) {
	f.mu.Lock()
	_, known := f.symbols[symbol]
	f.symbols[symbol] = struct{}{}
	f.mu.Unlock()

	if !known {
		select {
		case f.bump <- struct{}{}:
		default:
		}
	}
}

func (f *TickFeed) watched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.symbols))
	for s := range f.symbols {
		out = append(out, s)
	}
	return out
}

// Run connects and consumes ticks until ctx is cancelled, reconnecting with a
// short backoff on disconnect and whenever the symbol set grows.
func (f *TickFeed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		symbols := f.watched()
		if len(symbols) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-f.done:
				return nil
			case <-f.bump:
				continue
			}
		}

		connCtx, cancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-f.bump:
				cancel() // resubscribe with the grown symbol set
			case <-connCtx.Done():
			}
		}()

		err := f.stream.Run(connCtx, symbols, func(symbol string, bid, ask float64, ts time.Time) {
			if err := f.quotes.SetQuote(connCtx, symbol, bid, ask, ts); err != nil {
				f.logger.Warn("quote cache write failed",
					slog.String("symbol", symbol),
					slog.String("error", err.Error()),
				)
			}
		})
		cancel()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && err != context.Canceled {
			f.logger.Warn("tick stream disconnected, reconnecting",
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(2 * time.Second):
		}
	}
}

// Close stops the feed.
func (f *TickFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
