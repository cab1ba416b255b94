package domain

import (
	"context"
	"time"
)

// SignalLedger is the durable, append-only record of every signal the engine
// has accepted. The latest entry per fingerprint wins; a fingerprint whose
// status is tp2_hit or completed is blocked from re-entry forever, across
// restarts.
type SignalLedger interface {
	// Record appends a new active entry for the signal. It returns
	// ErrDuplicateSignal when an entry for the fingerprint already exists.
	Record(ctx context.Context, sig Signal) error
	// Status returns the current (latest) status for a fingerprint, or
	// ErrNotFound when the fingerprint has never been recorded.
	Status(ctx context.Context, fingerprint string) (SignalStatus, error)
	// Get returns the latest ledger entry for a fingerprint.
	Get(ctx context.Context, fingerprint string) (LedgerEntry, error)
	// SetStatus appends a status row. Forward-only: it returns
	// ErrStatusRegression for transitions the lifecycle forbids, and is a
	// no-op success when the status is already set.
	SetStatus(ctx context.Context, fingerprint string, status SignalStatus) error
	// ListActive returns the latest entry of every signal whose status is
	// active or tp2_hit, used to rebuild supervision state after restart.
	ListActive(ctx context.Context) ([]LedgerEntry, error)
}

// ProtectionStore persists the one-shot profit-protection marker so a
// restart between trigger and ledger write cannot re-fire the sequence.
type ProtectionStore interface {
	// MarkFired records that protection ran for a fingerprint. Firing twice
	// is a silent no-op.
	MarkFired(ctx context.Context, fingerprint string, at time.Time) error
	// Fired reports whether protection has already run for a fingerprint.
	Fired(ctx context.Context, fingerprint string) (bool, error)
}

// QuoteCache shares the latest bid/ask per symbol between the polling loops
// so several loops watching one symbol cost a single venue quote per tick.
type QuoteCache interface {
	SetQuote(ctx context.Context, symbol string, bid, ask float64, ts time.Time) error
	// GetQuote returns ErrNotFound when no quote is cached or the cached
	// quote is older than the cache's staleness bound.
	GetQuote(ctx context.Context, symbol string) (bid, ask float64, ts time.Time, err error)
}

// BlobWriter stores archive payloads in object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
