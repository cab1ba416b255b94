package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name string
	sent []string
	err  error
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, title)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersEvents(t *testing.T) {
	ctx := context.Background()
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, []string{"signal_placed", "protection_fired"}, testLogger())

	require.NoError(t, n.Notify(ctx, "signal_placed", "placed", "body"))
	require.NoError(t, n.Notify(ctx, "signal_skipped", "skipped", "body"))
	require.NoError(t, n.Notify(ctx, "protection_fired", "fired", "body"))

	assert.Equal(t, []string{"placed", "fired"}, s.sent)
}

func TestNotifyEmptyEventListAllowsAll(t *testing.T) {
	ctx := context.Background()
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, nil, testLogger())

	require.NoError(t, n.Notify(ctx, "anything", "title", "body"))
	assert.Equal(t, []string{"title"}, s.sent)
}

func TestNotifyAllBypassesFilter(t *testing.T) {
	ctx := context.Background()
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, []string{"signal_placed"}, testLogger())

	require.NoError(t, n.NotifyAll(ctx, "urgent", "body"))
	assert.Equal(t, []string{"urgent"}, s.sent)
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	ctx := context.Background()
	broken := &fakeSender{name: "broken", err: errors.New("webhook down")}
	healthy := &fakeSender{name: "healthy"}
	n := NewNotifier([]Sender{broken, healthy}, nil, testLogger())

	err := n.Notify(ctx, "signal_placed", "title", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, []string{"title"}, healthy.sent)
}

func TestNotifyNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, testLogger())
	assert.NoError(t, n.Notify(context.Background(), "signal_placed", "title", "body"))
}
