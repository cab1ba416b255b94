package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradekit/signalpilot/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. Each symbol's
// quote is stored at key "quote:{symbol}" with fields "bid", "ask", and "ts"
// (Unix nanosecond timestamp). The tracker, trailing, and protection loops
// all read from here so one tick feed serves every loop.
type QuoteCache struct {
	rdb    *redis.Client
	maxAge time.Duration
}

// NewQuoteCache creates a QuoteCache backed by the given Client. maxAge bounds
// how stale a cached quote may be before GetQuote treats it as missing; zero
// disables the check.
func NewQuoteCache(c *Client, maxAge time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying(), maxAge: maxAge}
}

func quoteKey(symbol string) string {
	return "quote:" + symbol
}

// SetQuote stores the latest bid/ask and timestamp for a symbol.
func (qc *QuoteCache) SetQuote(ctx context.Context, symbol string, bid, ask float64, ts time.Time) error {
	fields := map[string]interface{}{
		"bid": strconv.FormatFloat(bid, 'f', -1, 64),
		"ask": strconv.FormatFloat(ask, 'f', -1, 64),
		"ts":  strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := qc.rdb.HSet(ctx, quoteKey(symbol), fields).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", symbol, err)
	}
	return nil
}

// GetQuote retrieves the latest quote for a symbol. It returns
// domain.ErrNotFound when the key does not exist or the quote is older than
// the configured staleness bound.
func (qc *QuoteCache) GetQuote(ctx context.Context, symbol string) (float64, float64, time.Time, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(symbol)).Result()
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("redis: get quote %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return 0, 0, time.Time{}, domain.ErrNotFound
	}

	bid, err := parseField(vals, "bid")
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("redis: quote %s: %w", symbol, err)
	}
	ask, err := parseField(vals, "ask")
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("redis: quote %s: %w", symbol, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("redis: parse quote ts %s: %w", symbol, err)
	}
	ts := time.Unix(0, tsNano)

	if qc.maxAge > 0 && time.Since(ts) > qc.maxAge {
		return 0, 0, time.Time{}, domain.ErrNotFound
	}

	return bid, ask, ts, nil
}

func parseField(vals map[string]string, field string) (float64, error) {
	raw, ok := vals[field]
	if !ok {
		return 0, domain.ErrNotFound
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return v, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
