package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fptr(v float64) *float64 { return &v }

func TestComputeFingerprint(t *testing.T) {
	sig := Signal{
		Symbol:      "XAUUSD",
		Direction:   DirectionBuy,
		EntryUpper:  2405,
		EntryMiddle: 2400,
		EntryLower:  2395,
		TakeProfit1: fptr(2410),
		TakeProfit2: fptr(2420),
	}

	fp := sig.ComputeFingerprint()
	require.Len(t, fp, 12)
	assert.Regexp(t, "^[0-9a-f]{12}$", fp)

	// Deterministic.
	assert.Equal(t, fp, sig.ComputeFingerprint())

	// Fields outside the identity do not change the fingerprint: the same
	// trade relayed for another symbol name or with extra stops hashes the
	// same.
	other := sig
	other.Symbol = "GOLD"
	other.Source = "telegram"
	other.StopLoss1 = fptr(2390)
	assert.Equal(t, fp, other.ComputeFingerprint())

	// Identity fields do.
	flipped := sig
	flipped.Direction = DirectionSell
	assert.NotEqual(t, fp, flipped.ComputeFingerprint())

	moved := sig
	moved.TakeProfit2 = fptr(2425)
	assert.NotEqual(t, fp, moved.ComputeFingerprint())

	// Missing targets hash as zero, not as a crash.
	bare := Signal{Direction: DirectionBuy, EntryUpper: 2405, EntryLower: 2395}
	require.Len(t, bare.ComputeFingerprint(), 12)
}

func TestSignalStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to SignalStatus
		ok       bool
	}{
		{SignalStatusActive, SignalStatusTP2Hit, true},
		{SignalStatusActive, SignalStatusCancelled, true},
		{SignalStatusActive, SignalStatusCompleted, true},
		{SignalStatusTP2Hit, SignalStatusCompleted, true},
		{SignalStatusCancelled, SignalStatusCompleted, true},
		{SignalStatusTP2Hit, SignalStatusActive, false},
		{SignalStatusCompleted, SignalStatusActive, false},
		{SignalStatusCompleted, SignalStatusTP2Hit, false},
		{SignalStatusCancelled, SignalStatusTP2Hit, false},
		// Idempotent re-set is always allowed.
		{SignalStatusActive, SignalStatusActive, true},
		{SignalStatusCompleted, SignalStatusCompleted, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestSignalStatusBlocked(t *testing.T) {
	assert.False(t, SignalStatusActive.Blocked())
	assert.False(t, SignalStatusCancelled.Blocked())
	assert.True(t, SignalStatusTP2Hit.Blocked())
	assert.True(t, SignalStatusCompleted.Blocked())
}

func TestPrimaryStop(t *testing.T) {
	sig := Signal{StopLoss2: fptr(2385), StopLoss3: fptr(2380)}
	require.NotNil(t, sig.PrimaryStop())
	assert.Equal(t, 2385.0, *sig.PrimaryStop())

	sig.StopLoss1 = fptr(2390)
	assert.Equal(t, 2390.0, *sig.PrimaryStop())

	assert.Nil(t, Signal{}.PrimaryStop())
}

func TestSignalValidate(t *testing.T) {
	valid := Signal{Symbol: "EURUSD", Direction: DirectionSell, EntryUpper: 1.10, EntryLower: 1.09}
	require.NoError(t, valid.Validate())

	for name, sig := range map[string]Signal{
		"missing symbol":  {Direction: DirectionBuy, EntryUpper: 2, EntryLower: 1},
		"bad direction":   {Symbol: "EURUSD", Direction: "LONG", EntryUpper: 2, EntryLower: 1},
		"inverted zone":   {Symbol: "EURUSD", Direction: DirectionBuy, EntryUpper: 1, EntryLower: 2},
		"zero boundaries": {Symbol: "EURUSD", Direction: DirectionBuy},
	} {
		err := sig.Validate()
		require.Error(t, err, name)
		assert.ErrorIs(t, err, ErrInvalidSignal, name)
	}
}

func TestInEntryZone(t *testing.T) {
	sig := Signal{EntryUpper: 2405, EntryLower: 2395}
	assert.True(t, sig.InEntryZone(2400))
	assert.True(t, sig.InEntryZone(2395))
	assert.True(t, sig.InEntryZone(2405))
	assert.False(t, sig.InEntryZone(2394.99))
	assert.False(t, sig.InEntryZone(2405.01))
}
