package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradekit/signalpilot/internal/domain"
)

// LedgerStore implements domain.SignalLedger using PostgreSQL. Entries are
// append-only; the newest row per fingerprint carries the current status.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

const ledgerSelectCols = `id, fingerprint, symbol, direction,
	entry_upper, entry_middle, entry_lower,
	stop_loss_1, stop_loss_2, stop_loss_3,
	take_profit_1, take_profit_2, take_profit_3,
	source, status, created_at`

func scanLedgerRow(row pgx.Row) (domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var direction, status string

	err := row.Scan(
		&e.ID, &e.Signal.Fingerprint, &e.Signal.Symbol, &direction,
		&e.Signal.EntryUpper, &e.Signal.EntryMiddle, &e.Signal.EntryLower,
		&e.Signal.StopLoss1, &e.Signal.StopLoss2, &e.Signal.StopLoss3,
		&e.Signal.TakeProfit1, &e.Signal.TakeProfit2, &e.Signal.TakeProfit3,
		&e.Signal.Source, &status, &e.CreatedAt,
	)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	e.Signal.Direction = domain.Direction(direction)
	e.Signal.CreatedAt = e.CreatedAt
	e.Status = domain.SignalStatus(status)
	return e, nil
}

// Record appends a new active entry for the signal. It returns
// domain.ErrDuplicateSignal when the fingerprint is already in the ledger.
func (s *LedgerStore) Record(ctx context.Context, sig domain.Signal) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM signal_ledger WHERE fingerprint = $1)",
		sig.Fingerprint,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("postgres: check signal %s: %w", sig.Fingerprint, err)
	}
	if exists {
		return domain.ErrDuplicateSignal
	}

	return s.insert(ctx, sig, domain.SignalStatusActive)
}

func (s *LedgerStore) insert(ctx context.Context, sig domain.Signal, status domain.SignalStatus) error {
	const query = `
		INSERT INTO signal_ledger (
			fingerprint, symbol, direction,
			entry_upper, entry_middle, entry_lower,
			stop_loss_1, stop_loss_2, stop_loss_3,
			take_profit_1, take_profit_2, take_profit_3,
			source, status
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9,
			$10, $11, $12,
			$13, $14
		)`

	_, err := s.pool.Exec(ctx, query,
		sig.Fingerprint, sig.Symbol, string(sig.Direction),
		sig.EntryUpper, sig.EntryMiddle, sig.EntryLower,
		sig.StopLoss1, sig.StopLoss2, sig.StopLoss3,
		sig.TakeProfit1, sig.TakeProfit2, sig.TakeProfit3,
		sig.Source, string(status),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert ledger entry %s: %w", sig.Fingerprint, err)
	}
	return nil
}

// Get returns the latest ledger entry for a fingerprint.
func (s *LedgerStore) Get(ctx context.Context, fingerprint string) (domain.LedgerEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+ledgerSelectCols+` FROM signal_ledger
		 WHERE fingerprint = $1
		 ORDER BY id DESC LIMIT 1`, fingerprint)

	e, err := scanLedgerRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LedgerEntry{}, domain.ErrNotFound
		}
		return domain.LedgerEntry{}, fmt.Errorf("postgres: get ledger entry %s: %w", fingerprint, err)
	}
	return e, nil
}

// Status returns the current status for a fingerprint.
func (s *LedgerStore) Status(ctx context.Context, fingerprint string) (domain.SignalStatus, error) {
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM signal_ledger
		 WHERE fingerprint = $1
		 ORDER BY id DESC LIMIT 1`, fingerprint,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("postgres: get status %s: %w", fingerprint, err)
	}
	return domain.SignalStatus(status), nil
}

// SetStatus appends a status row for a fingerprint. Transitions are
// forward-only; re-setting the current status is an idempotent no-op.
func (s *LedgerStore) SetStatus(ctx context.Context, fingerprint string, status domain.SignalStatus) error {
	cur, err := s.Get(ctx, fingerprint)
	if err != nil {
		return err
	}
	if cur.Status == status {
		return nil
	}
	if !cur.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrStatusRegression, cur.Status, status)
	}
	return s.insert(ctx, cur.Signal, status)
}

// ListActive returns the latest entry of every signal that still needs
// supervision (status active or tp2_hit).
func (s *LedgerStore) ListActive(ctx context.Context) ([]domain.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (fingerprint) `+ledgerSelectCols+`
		 FROM signal_ledger
		 ORDER BY fingerprint, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active signals: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan ledger entry: %w", err)
		}
		if e.Status == domain.SignalStatusActive || e.Status == domain.SignalStatusTP2Hit {
			entries = append(entries, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active signals: %w", err)
	}
	return entries, nil
}

// Compile-time interface check.
var _ domain.SignalLedger = (*LedgerStore)(nil)
