package domain

import (
	"context"
	"time"
)

// ExecutionVenue is the broker-side surface the engine drives. Implementations
// wrap a live terminal bridge or an in-memory simulator; the engine never
// talks to a terminal directly.
type ExecutionVenue interface {
	Connect(ctx context.Context) error
	Close() error

	AccountInfo(ctx context.Context) (AccountInfo, error)
	SymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error)

	// PlaceOrder submits one order. Stop and target levels inside the
	// request are attached atomically with the placement; a partially
	// protected fill must never exist.
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)

	// ModifyPositionStops rewrites the protective levels of an open
	// position. takeProfit nil leaves the current target untouched.
	ModifyPositionStops(ctx context.Context, ticket int64, stopLoss float64, takeProfit *float64) error
	ClosePosition(ctx context.Context, ticket int64) error
	CancelOrder(ctx context.Context, ticket int64) error

	OpenPositions(ctx context.Context, symbol string) ([]OpenPosition, error)
	PendingOrders(ctx context.Context, symbol string) ([]PendingOrder, error)

	// DealsSince returns historical executions for retroactive target-touch
	// detection when the engine was offline at the moment of the touch.
	DealsSince(ctx context.Context, symbol string, since time.Time) ([]Deal, error)
}

// PositionsForSignal filters positions whose comment matches the fingerprint.
func PositionsForSignal(positions []OpenPosition, fingerprint string) []OpenPosition {
	var out []OpenPosition
	for _, p := range positions {
		if fp, _, ok := ParseOrderComment(p.Comment); ok && fp == fingerprint {
			out = append(out, p)
		}
	}
	return out
}

// OrdersForSignal filters pending orders whose comment matches the fingerprint.
func OrdersForSignal(orders []PendingOrder, fingerprint string) []PendingOrder {
	var out []PendingOrder
	for _, o := range orders {
		if fp, _, ok := ParseOrderComment(o.Comment); ok && fp == fingerprint {
			out = append(out, o)
		}
	}
	return out
}
