// Package archive writes retired signal lifecycles to long-term blob storage
// so the operational database stays small.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tradekit/signalpilot/internal/domain"
)

// Archiver serializes retired ledger entries to a blob store, one JSON
// document per signal under signals/YYYY/MM/.
type Archiver struct {
	writer domain.BlobWriter
	logger *slog.Logger
}

// New creates an Archiver writing through the given blob writer.
func New(writer domain.BlobWriter, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveRetired uploads the entry's lifecycle summary.
func (a *Archiver) ArchiveRetired(ctx context.Context, entry domain.LedgerEntry) error {
	data, err := json.MarshalIndent(archiveDoc{
		Signal:     entry.Signal,
		Status:     entry.Status,
		RecordedAt: entry.CreatedAt,
		ArchivedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: marshal %s: %w", entry.Signal.Fingerprint, err)
	}

	path := archivePath(entry)
	if err := a.writer.Put(ctx, path, data, "application/json"); err != nil {
		return fmt.Errorf("archive: upload %s: %w", path, err)
	}

	a.logger.Info("signal archived",
		slog.String("fingerprint", entry.Signal.Fingerprint),
		slog.String("path", path),
	)
	return nil
}

// archiveDoc is the stored document shape.
type archiveDoc struct {
	Signal     domain.Signal       `json:"signal"`
	Status     domain.SignalStatus `json:"status"`
	RecordedAt time.Time           `json:"recorded_at"`
	ArchivedAt time.Time           `json:"archived_at"`
}

// archivePath partitions archives by the month the signal was recorded.
func archivePath(entry domain.LedgerEntry) string {
	ts := entry.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return fmt.Sprintf("signals/%04d/%02d/%s.json", ts.Year(), int(ts.Month()), entry.Signal.Fingerprint)
}
