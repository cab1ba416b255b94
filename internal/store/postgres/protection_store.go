package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradekit/signalpilot/internal/domain"
)

// ProtectionStore implements domain.ProtectionStore using PostgreSQL.
type ProtectionStore struct {
	pool *pgxpool.Pool
}

// NewProtectionStore creates a new ProtectionStore backed by the given pool.
func NewProtectionStore(pool *pgxpool.Pool) *ProtectionStore {
	return &ProtectionStore{pool: pool}
}

// MarkFired records that the protection sequence ran for a fingerprint.
// A second call for the same fingerprint is a silent no-op.
func (s *ProtectionStore) MarkFired(ctx context.Context, fingerprint string, at time.Time) error {
	const query = `
		INSERT INTO protection_events (fingerprint, fired_at)
		VALUES ($1, $2)
		ON CONFLICT (fingerprint) DO NOTHING`

	if _, err := s.pool.Exec(ctx, query, fingerprint, at); err != nil {
		return fmt.Errorf("postgres: mark protection fired %s: %w", fingerprint, err)
	}
	return nil
}

// Fired reports whether protection has already run for a fingerprint.
func (s *ProtectionStore) Fired(ctx context.Context, fingerprint string) (bool, error) {
	var firedAt time.Time
	err := s.pool.QueryRow(ctx,
		"SELECT fired_at FROM protection_events WHERE fingerprint = $1",
		fingerprint,
	).Scan(&firedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("postgres: check protection fired %s: %w", fingerprint, err)
	}
	return true, nil
}

// Compile-time interface check.
var _ domain.ProtectionStore = (*ProtectionStore)(nil)
