package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradekit/signalpilot/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemWriter() *memWriter {
	return &memWriter{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *memWriter) Put(_ context.Context, path string, data []byte, contentType string) error {
	if m.err != nil {
		return m.err
	}
	m.objects[path] = data
	m.types[path] = contentType
	return nil
}

func TestArchiveRetired(t *testing.T) {
	writer := newMemWriter()
	a := New(writer, slog.New(slog.NewTextHandler(io.Discard, nil)))

	recorded := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)
	entry := domain.LedgerEntry{
		Signal: domain.Signal{
			Fingerprint: "a1b2c3d4e5f6",
			Symbol:      "XAUUSD",
			Direction:   domain.DirectionBuy,
		},
		Status:    domain.SignalStatusCompleted,
		CreatedAt: recorded,
	}

	require.NoError(t, a.ArchiveRetired(context.Background(), entry))

	path := "signals/2026/03/a1b2c3d4e5f6.json"
	data, ok := writer.objects[path]
	require.True(t, ok, "expected object at %s", path)
	assert.Equal(t, "application/json", writer.types[path])

	var doc struct {
		Signal     domain.Signal       `json:"signal"`
		Status     domain.SignalStatus `json:"status"`
		RecordedAt time.Time           `json:"recorded_at"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "XAUUSD", doc.Signal.Symbol)
	assert.Equal(t, domain.SignalStatusCompleted, doc.Status)
	assert.Equal(t, recorded, doc.RecordedAt)
}

func TestArchiveRetiredPropagatesWriteError(t *testing.T) {
	writer := newMemWriter()
	writer.err = errors.New("bucket gone")
	a := New(writer, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := a.ArchiveRetired(context.Background(), domain.LedgerEntry{
		Signal: domain.Signal{Fingerprint: "a1b2c3d4e5f6"},
		Status: domain.SignalStatusCompleted,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket gone")
}
