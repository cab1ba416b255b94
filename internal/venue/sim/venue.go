// Package sim provides a deterministic in-memory execution venue for tests
// and dry-run mode. Orders fill against quotes the caller feeds in; no
// network is involved.
package sim

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tradekit/signalpilot/internal/domain"
)

// Venue is an in-memory domain.ExecutionVenue. It is safe for concurrent use.
type Venue struct {
	mu        sync.Mutex
	account   domain.AccountInfo
	symbols   map[string]domain.SymbolInfo
	positions map[int64]*domain.OpenPosition
	pendings  map[int64]*restingOrder
	deals     []domain.Deal
	ticketSeq atomic.Int64

	failPlace  int
	failCancel int
	failModify int
}

// restingOrder keeps the protective levels a pending order will carry into
// its position once it fills.
type restingOrder struct {
	order      domain.PendingOrder
	direction  domain.Direction
	stopLoss   float64
	takeProfit float64
}

// Option configures a simulated venue.
type Option func(*Venue)

// WithBalance sets the account balance, equity, and free margin.
func WithBalance(balance float64) Option {
	return func(v *Venue) {
		v.account.Balance = balance
		v.account.Equity = balance
		v.account.FreeMargin = balance
	}
}

// WithLeverage sets the account leverage.
func WithLeverage(leverage float64) Option {
	return func(v *Venue) { v.account.Leverage = leverage }
}

// WithSymbol registers a tradable symbol.
func WithSymbol(info domain.SymbolInfo) Option {
	return func(v *Venue) { v.symbols[info.Name] = info }
}

// New creates a simulated venue. Without options it has a 10k balance,
// 1:100 leverage, and no symbols.
func New(opts ...Option) *Venue {
	v := &Venue{
		account: domain.AccountInfo{
			Balance:    10_000,
			Equity:     10_000,
			FreeMargin: 10_000,
			Leverage:   100,
			Currency:   "USD",
		},
		symbols:   make(map[string]domain.SymbolInfo),
		positions: make(map[int64]*domain.OpenPosition),
		pendings:  make(map[int64]*restingOrder),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// FailNextPlace makes the next n PlaceOrder calls return a rejection.
func (v *Venue) FailNextPlace(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failPlace = n
}

// FailNextCancel makes the next n CancelOrder calls fail.
func (v *Venue) FailNextCancel(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failCancel = n
}

// FailNextModify makes the next n ModifyPositionStops calls fail.
func (v *Venue) FailNextModify(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failModify = n
}

// SetQuote moves the market for a symbol and fills any resting orders whose
// level the new quote has reached.
func (v *Venue) SetQuote(symbol string, bid, ask float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	info, ok := v.symbols[symbol]
	if !ok {
		return
	}
	info.Bid = bid
	info.Ask = ask
	v.symbols[symbol] = info

	for ticket, r := range v.pendings {
		if r.order.Symbol != symbol {
			continue
		}
		filled := false
		if r.direction == domain.DirectionBuy && ask <= r.order.Price {
			filled = true
		}
		if r.direction == domain.DirectionSell && bid >= r.order.Price {
			filled = true
		}
		if filled {
			v.openLocked(symbol, r.direction, r.order.Price, r.order.Volume, r.stopLoss, r.takeProfit, r.order.Comment, ticket)
			delete(v.pendings, ticket)
		}
	}
}

// Connect is a no-op for the simulator.
func (v *Venue) Connect(context.Context) error { return nil }

// Close is a no-op for the simulator.
func (v *Venue) Close() error { return nil }

// AccountInfo returns the simulated account snapshot.
func (v *Venue) AccountInfo(context.Context) (domain.AccountInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.account, nil
}

// SymbolInfo returns the registered parameters for a symbol.
func (v *Venue) SymbolInfo(_ context.Context, symbol string) (domain.SymbolInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	info, ok := v.symbols[symbol]
	if !ok {
		return domain.SymbolInfo{}, fmt.Errorf("sim: symbol %s: %w", symbol, domain.ErrNotFound)
	}
	return info, nil
}

// PlaceOrder fills market orders immediately and parks limit orders until a
// quote reaches their level.
func (v *Venue) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.failPlace > 0 {
		v.failPlace--
		return domain.OrderResult{Success: false, Message: "simulated rejection"}, nil
	}

	info, ok := v.symbols[req.Symbol]
	if !ok {
		return domain.OrderResult{}, fmt.Errorf("sim: symbol %s: %w", req.Symbol, domain.ErrNotFound)
	}
	if req.Volume <= 0 {
		return domain.OrderResult{Success: false, Message: "non-positive volume"}, nil
	}

	ticket := v.ticketSeq.Add(1)

	if req.Kind == domain.OrderKindMarket {
		fill := info.PriceFor(req.Direction)
		v.openLocked(req.Symbol, req.Direction, fill, req.Volume, req.StopLoss, req.TakeProfit, req.Comment, ticket)
		return domain.OrderResult{Success: true, Ticket: ticket, FillPrice: fill}, nil
	}

	v.pendings[ticket] = &restingOrder{
		order: domain.PendingOrder{
			Ticket:  ticket,
			Symbol:  req.Symbol,
			Kind:    req.Kind,
			Price:   req.Price,
			Volume:  req.Volume,
			Comment: req.Comment,
		},
		direction:  req.Direction,
		stopLoss:   req.StopLoss,
		takeProfit: req.TakeProfit,
	}
	return domain.OrderResult{Success: true, Ticket: ticket}, nil
}

// openLocked creates a position record; callers hold v.mu.
func (v *Venue) openLocked(symbol string, d domain.Direction, price, volume, sl, tp float64, comment string, ticket int64) {
	v.positions[ticket] = &domain.OpenPosition{
		Ticket:     ticket,
		Symbol:     symbol,
		Direction:  d,
		OpenPrice:  price,
		Volume:     volume,
		StopLoss:   sl,
		TakeProfit: tp,
		OpenedAt:   time.Now().UTC(),
		Comment:    comment,
	}
	v.deals = append(v.deals, domain.Deal{
		Ticket:  ticket,
		Symbol:  symbol,
		Price:   price,
		Volume:  volume,
		Time:    time.Now().UTC(),
		Comment: comment,
	})
}

// ModifyPositionStops rewrites a position's protective levels.
func (v *Venue) ModifyPositionStops(_ context.Context, ticket int64, stopLoss float64, takeProfit *float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.failModify > 0 {
		v.failModify--
		return fmt.Errorf("sim: modify %d: %w", ticket, domain.ErrVenueUnavailable)
	}

	pos, ok := v.positions[ticket]
	if !ok {
		return fmt.Errorf("sim: position %d: %w", ticket, domain.ErrNotFound)
	}
	pos.StopLoss = stopLoss
	if takeProfit != nil {
		pos.TakeProfit = *takeProfit
	}
	return nil
}

// ClosePosition removes a position and records the closing deal.
func (v *Venue) ClosePosition(_ context.Context, ticket int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	pos, ok := v.positions[ticket]
	if !ok {
		return fmt.Errorf("sim: position %d: %w", ticket, domain.ErrNotFound)
	}
	info := v.symbols[pos.Symbol]
	v.deals = append(v.deals, domain.Deal{
		Ticket:  ticket,
		Symbol:  pos.Symbol,
		Price:   info.ExitPriceFor(pos.Direction),
		Volume:  pos.Volume,
		Time:    time.Now().UTC(),
		Comment: pos.Comment,
	})
	delete(v.positions, ticket)
	return nil
}

// CancelOrder removes a resting order.
func (v *Venue) CancelOrder(_ context.Context, ticket int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.failCancel > 0 {
		v.failCancel--
		return fmt.Errorf("sim: cancel %d: %w", ticket, domain.ErrVenueUnavailable)
	}

	if _, ok := v.pendings[ticket]; !ok {
		return fmt.Errorf("sim: pending order %d: %w", ticket, domain.ErrNotFound)
	}
	delete(v.pendings, ticket)
	return nil
}

// OpenPositions returns the open positions for a symbol; empty symbol means
// all symbols.
func (v *Venue) OpenPositions(_ context.Context, symbol string) ([]domain.OpenPosition, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var out []domain.OpenPosition
	for _, p := range v.positions {
		if symbol == "" || p.Symbol == symbol {
			out = append(out, *p)
		}
	}
	return out, nil
}

// PendingOrders returns the resting orders for a symbol; empty symbol means
// all symbols.
func (v *Venue) PendingOrders(_ context.Context, symbol string) ([]domain.PendingOrder, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var out []domain.PendingOrder
	for _, r := range v.pendings {
		if symbol == "" || r.order.Symbol == symbol {
			out = append(out, r.order)
		}
	}
	return out, nil
}

// DealsSince returns executions at or after since for a symbol.
func (v *Venue) DealsSince(_ context.Context, symbol string, since time.Time) ([]domain.Deal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var out []domain.Deal
	for _, d := range v.deals {
		if d.Symbol == symbol && !d.Time.Before(since) {
			out = append(out, d)
		}
	}
	return out, nil
}

// RecordDeal injects a historical execution, used by tests exercising
// retroactive target-touch detection.
func (v *Venue) RecordDeal(d domain.Deal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.deals = append(v.deals, d)
}

// Compile-time interface check.
var _ domain.ExecutionVenue = (*Venue)(nil)
