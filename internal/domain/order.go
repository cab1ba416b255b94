package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OrderKind selects between an immediate fill and a resting order at a
// specified price.
type OrderKind string

const (
	OrderKindMarket OrderKind = "market"
	OrderKindLimit  OrderKind = "limit"
)

// SlotPlan describes one staged entry slot of a signal: where it enters, the
// protective levels it carries, and the volume the risk calculator assigned.
// Slot ordinals start at 1; slot 1 sits closest to the current price.
type SlotPlan struct {
	Slot       int
	Kind       OrderKind
	Entry      float64
	Volume     float64
	StopLoss   float64
	TakeProfit *float64 // nil for the runner slot
	Runner     bool
}

// OrderRequest is a single placement request against the execution venue.
// Stop and target levels travel inside the request so protective levels are
// attached atomically with the fill.
type OrderRequest struct {
	ClientID   string
	Symbol     string
	Direction  Direction
	Kind       OrderKind
	Volume     float64
	Price      float64 // entry price; ignored for market orders by some venues
	StopLoss   float64 // 0 means no stop
	TakeProfit float64 // 0 means no target
	Comment    string
}

// OrderResult is the venue's answer to a placement request.
type OrderResult struct {
	Success     bool
	Ticket      int64
	FillPrice   float64
	Message     string
	ShouldRetry bool
}

// PendingOrder is a resting order the venue has acknowledged but not filled.
type PendingOrder struct {
	Ticket  int64
	Symbol  string
	Kind    OrderKind
	Price   float64
	Volume  float64
	Comment string
}

// Deal is a historical execution record, used for retroactive target-touch
// detection after restarts or feed gaps.
type Deal struct {
	Ticket  int64
	Symbol  string
	Price   float64
	Volume  float64
	Time    time.Time
	Comment string
}

// OrderComment encodes the (fingerprint, slot) identity into the venue-side
// order comment so positions and orders can be matched back to their signal.
func OrderComment(fingerprint string, slot int) string {
	return fmt.Sprintf("%s_s%d", fingerprint, slot)
}

// ParseOrderComment extracts the fingerprint and slot from a comment written
// by OrderComment. ok is false for comments this engine did not write.
func ParseOrderComment(comment string) (fingerprint string, slot int, ok bool) {
	idx := strings.LastIndex(comment, "_s")
	if idx <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(comment[idx+2:])
	if err != nil || n < 1 {
		return "", 0, false
	}
	return comment[:idx], n, true
}
