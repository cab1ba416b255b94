package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Direction is the trade direction of a signal.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// SignalStatus tracks the lifecycle of a signal in the ledger. Transitions are
// forward-only: active -> tp2_hit or cancelled -> completed.
type SignalStatus string

const (
	SignalStatusActive    SignalStatus = "active"
	SignalStatusTP2Hit    SignalStatus = "tp2_hit"
	SignalStatusCancelled SignalStatus = "cancelled"
	SignalStatusCompleted SignalStatus = "completed"
)

// CanTransition reports whether moving from s to next respects the
// forward-only lifecycle. Re-setting the same status is always allowed so
// status writes stay idempotent.
func (s SignalStatus) CanTransition(next SignalStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case SignalStatusActive:
		return next == SignalStatusTP2Hit || next == SignalStatusCancelled || next == SignalStatusCompleted
	case SignalStatusTP2Hit, SignalStatusCancelled:
		return next == SignalStatusCompleted
	default:
		return false
	}
}

// Blocked reports whether the status permanently blocks re-entry.
func (s SignalStatus) Blocked() bool {
	return s == SignalStatusTP2Hit || s == SignalStatusCompleted
}

// Signal is a parsed trading signal: a direction, an entry zone, up to three
// stop levels, and up to three targets. Level pointers are nil when the
// source did not provide them.
type Signal struct {
	Fingerprint string
	Symbol      string
	Direction   Direction
	EntryUpper  float64
	EntryMiddle float64
	EntryLower  float64
	StopLoss1   *float64
	StopLoss2   *float64
	StopLoss3   *float64
	TakeProfit1 *float64
	TakeProfit2 *float64
	TakeProfit3 *float64
	Source      string
	CreatedAt   time.Time
}

// ComputeFingerprint derives the content fingerprint of a signal: the first
// twelve hex characters of the MD5 of its direction, entry bounds, and first
// two targets. Two messages describing the same trade hash identically
// regardless of formatting.
func (s Signal) ComputeFingerprint() string {
	tp1, tp2 := 0.0, 0.0
	if s.TakeProfit1 != nil {
		tp1 = *s.TakeProfit1
	}
	if s.TakeProfit2 != nil {
		tp2 = *s.TakeProfit2
	}
	raw := fmt.Sprintf("%s_%s_%s_%s_%s",
		s.Direction,
		trimFloat(s.EntryUpper),
		trimFloat(s.EntryLower),
		trimFloat(tp1),
		trimFloat(tp2),
	)
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])[:12]
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// PrimaryStop returns the stop level a slot should use: the first defined
// stop, scanning SL1 -> SL3. Returns nil when the signal carries no stop.
func (s Signal) PrimaryStop() *float64 {
	for _, sl := range []*float64{s.StopLoss1, s.StopLoss2, s.StopLoss3} {
		if sl != nil {
			return sl
		}
	}
	return nil
}

// InEntryZone reports whether price lies inside the signal's entry zone.
func (s Signal) InEntryZone(price float64) bool {
	return price >= s.EntryLower && price <= s.EntryUpper
}

// Validate checks structural sanity: a symbol, a known direction, and an
// ordered entry zone.
func (s Signal) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalidSignal)
	}
	if s.Direction != DirectionBuy && s.Direction != DirectionSell {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidSignal, s.Direction)
	}
	if s.EntryUpper < s.EntryLower {
		return fmt.Errorf("%w: entry_upper %v below entry_lower %v", ErrInvalidSignal, s.EntryUpper, s.EntryLower)
	}
	if s.EntryUpper <= 0 || s.EntryLower <= 0 {
		return fmt.Errorf("%w: non-positive entry bounds", ErrInvalidSignal)
	}
	return nil
}

// LedgerEntry is one append-only row of the signal ledger. The newest entry
// for a fingerprint determines the signal's current status.
type LedgerEntry struct {
	ID        int64
	Signal    Signal
	Status    SignalStatus
	CreatedAt time.Time
}
