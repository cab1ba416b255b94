package domain

import "time"

// OpenPosition is a filled position the venue is currently holding.
type OpenPosition struct {
	Ticket     int64
	Symbol     string
	Direction  Direction
	OpenPrice  float64
	Volume     float64
	StopLoss   float64 // 0 means no stop attached
	TakeProfit float64 // 0 means no target attached
	Profit     float64
	OpenedAt   time.Time
	Comment    string
}

// AccountInfo is a snapshot of the trading account.
type AccountInfo struct {
	Balance    float64
	Equity     float64
	FreeMargin float64
	Leverage   float64
	Currency   string
}

// SymbolInfo carries the venue's trading parameters for one symbol.
type SymbolInfo struct {
	Name         string
	Bid          float64
	Ask          float64
	Point        float64
	Digits       int
	ContractSize float64
	VolumeMin    float64
	VolumeMax    float64
	VolumeStep   float64
	// StopDistance is the minimum distance, in price units, the venue
	// requires between the current price and a stop or pending level.
	StopDistance float64
}

// PriceFor returns the side of the quote relevant to opening a position in
// the given direction: ask for buys, bid for sells.
func (si SymbolInfo) PriceFor(d Direction) float64 {
	if d == DirectionBuy {
		return si.Ask
	}
	return si.Bid
}

// ExitPriceFor returns the side of the quote relevant to closing a position
// in the given direction.
func (si SymbolInfo) ExitPriceFor(d Direction) float64 {
	if d == DirectionBuy {
		return si.Bid
	}
	return si.Ask
}
