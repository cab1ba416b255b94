// Package memstore provides in-memory implementations of the ledger and
// protection store interfaces for dry-run mode and tests. State does not
// survive a restart; live deployments use the postgres package.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tradekit/signalpilot/internal/domain"
)

// Ledger is an in-memory, append-only domain.SignalLedger.
type Ledger struct {
	mu      sync.Mutex
	entries map[string][]domain.LedgerEntry
	nextID  int64
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string][]domain.LedgerEntry)}
}

func (l *Ledger) append(sig domain.Signal, status domain.SignalStatus) {
	l.nextID++
	l.entries[sig.Fingerprint] = append(l.entries[sig.Fingerprint], domain.LedgerEntry{
		ID:        l.nextID,
		Signal:    sig,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	})
}

// Record appends a new active entry, rejecting known fingerprints.
func (l *Ledger) Record(_ context.Context, sig domain.Signal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries[sig.Fingerprint]) > 0 {
		return domain.ErrDuplicateSignal
	}
	l.append(sig, domain.SignalStatusActive)
	return nil
}

// Get returns the latest entry for a fingerprint.
func (l *Ledger) Get(_ context.Context, fingerprint string) (domain.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	hist := l.entries[fingerprint]
	if len(hist) == 0 {
		return domain.LedgerEntry{}, domain.ErrNotFound
	}
	return hist[len(hist)-1], nil
}

// Status returns the current status for a fingerprint.
func (l *Ledger) Status(ctx context.Context, fingerprint string) (domain.SignalStatus, error) {
	e, err := l.Get(ctx, fingerprint)
	if err != nil {
		return "", err
	}
	return e.Status, nil
}

// SetStatus appends a forward-only status row.
func (l *Ledger) SetStatus(_ context.Context, fingerprint string, status domain.SignalStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	hist := l.entries[fingerprint]
	if len(hist) == 0 {
		return domain.ErrNotFound
	}
	cur := hist[len(hist)-1]
	if cur.Status == status {
		return nil
	}
	if !cur.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrStatusRegression, cur.Status, status)
	}
	l.append(cur.Signal, status)
	return nil
}

// ListActive returns every signal still needing supervision.
func (l *Ledger) ListActive(_ context.Context) ([]domain.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.LedgerEntry
	for _, hist := range l.entries {
		e := hist[len(hist)-1]
		if e.Status == domain.SignalStatusActive || e.Status == domain.SignalStatusTP2Hit {
			out = append(out, e)
		}
	}
	return out, nil
}

// ProtectionStore is an in-memory domain.ProtectionStore.
type ProtectionStore struct {
	mu    sync.Mutex
	fired map[string]time.Time
}

// NewProtectionStore creates an empty in-memory protection store.
func NewProtectionStore() *ProtectionStore {
	return &ProtectionStore{fired: make(map[string]time.Time)}
}

// MarkFired records the protection marker; repeated calls are no-ops.
func (p *ProtectionStore) MarkFired(_ context.Context, fingerprint string, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.fired[fingerprint]; !ok {
		p.fired[fingerprint] = at
	}
	return nil
}

// Fired reports whether the marker exists.
func (p *ProtectionStore) Fired(_ context.Context, fingerprint string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.fired[fingerprint]
	return ok, nil
}

// QuoteCache is an in-memory domain.QuoteCache for tests and dry-run mode.
type QuoteCache struct {
	mu     sync.Mutex
	maxAge time.Duration
	quotes map[string]quote
}

type quote struct {
	bid, ask float64
	ts       time.Time
}

// NewQuoteCache creates a quote cache. maxAge 0 disables staleness checks.
func NewQuoteCache(maxAge time.Duration) *QuoteCache {
	return &QuoteCache{maxAge: maxAge, quotes: make(map[string]quote)}
}

// SetQuote stores the latest bid/ask for a symbol.
func (q *QuoteCache) SetQuote(_ context.Context, symbol string, bid, ask float64, ts time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.quotes[symbol] = quote{bid: bid, ask: ask, ts: ts}
	return nil
}

// GetQuote returns the latest quote, or domain.ErrNotFound when missing or
// older than the staleness bound.
func (q *QuoteCache) GetQuote(_ context.Context, symbol string) (float64, float64, time.Time, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	v, ok := q.quotes[symbol]
	if !ok {
		return 0, 0, time.Time{}, domain.ErrNotFound
	}
	if q.maxAge > 0 && time.Since(v.ts) > q.maxAge {
		return 0, 0, time.Time{}, domain.ErrNotFound
	}
	return v.bid, v.ask, v.ts, nil
}

// Compile-time interface checks.
var (
	_ domain.SignalLedger    = (*Ledger)(nil)
	_ domain.ProtectionStore = (*ProtectionStore)(nil)
	_ domain.QuoteCache      = (*QuoteCache)(nil)
)
