package mt5bridge

import "time"

// Wire types for the bridge REST API. The bridge runs next to the terminal
// and exposes its trading operations as JSON over HTTP.

type accountPayload struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	FreeMargin float64 `json:"free_margin"`
	Leverage   float64 `json:"leverage"`
	Currency   string  `json:"currency"`
}

type symbolPayload struct {
	Name         string  `json:"name"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Point        float64 `json:"point"`
	Digits       int     `json:"digits"`
	ContractSize float64 `json:"contract_size"`
	VolumeMin    float64 `json:"volume_min"`
	VolumeMax    float64 `json:"volume_max"`
	VolumeStep   float64 `json:"volume_step"`
	StopsLevel   float64 `json:"stops_level"`
}

type orderPayload struct {
	ClientID   string  `json:"client_id,omitempty"`
	Symbol     string  `json:"symbol"`
	Direction  string  `json:"direction"`
	Kind       string  `json:"kind"`
	Volume     float64 `json:"volume"`
	Price      float64 `json:"price,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	Comment    string  `json:"comment,omitempty"`
}

type orderResultPayload struct {
	Success   bool    `json:"success"`
	Ticket    int64   `json:"ticket"`
	FillPrice float64 `json:"fill_price"`
	Message   string  `json:"message"`
	Retryable bool    `json:"retryable"`
}

type positionPayload struct {
	Ticket     int64     `json:"ticket"`
	Symbol     string    `json:"symbol"`
	Direction  string    `json:"direction"`
	OpenPrice  float64   `json:"open_price"`
	Volume     float64   `json:"volume"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Profit     float64   `json:"profit"`
	OpenedAt   time.Time `json:"opened_at"`
	Comment    string    `json:"comment"`
}

type pendingPayload struct {
	Ticket  int64   `json:"ticket"`
	Symbol  string  `json:"symbol"`
	Kind    string  `json:"kind"`
	Price   float64 `json:"price"`
	Volume  float64 `json:"volume"`
	Comment string  `json:"comment"`
}

type dealPayload struct {
	Ticket  int64     `json:"ticket"`
	Symbol  string    `json:"symbol"`
	Price   float64   `json:"price"`
	Volume  float64   `json:"volume"`
	Time    time.Time `json:"time"`
	Comment string    `json:"comment"`
}

type modifyPayload struct {
	StopLoss   float64  `json:"stop_loss"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
}

type sessionPayload struct {
	Login    string `json:"login,omitempty"`
	Password string `json:"password,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// tickPayload is one tick frame on the websocket stream.
type tickPayload struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	TimeMs int64   `json:"time_ms"`
}

// subscribePayload asks the stream for ticks on a set of symbols.
type subscribePayload struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}
