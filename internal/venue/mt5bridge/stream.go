package mt5bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// TickHandler receives one tick from the bridge stream.
type TickHandler func(symbol string, bid, ask float64, ts time.Time)

// TickStream consumes the bridge's websocket tick feed for a set of symbols.
// A TickStream handles a single connection; callers reconnect by invoking
// Run again.
type TickStream struct {
	wsURL string
	token string
}

// NewTickStream creates a stream client for the given websocket endpoint.
func NewTickStream(wsURL, token string) *TickStream {
	return &TickStream{wsURL: wsURL, token: token}
}

// Run dials the stream, subscribes to the symbols, and invokes handler for
// every tick until the context is cancelled or the connection drops.
func (s *TickStream) Run(ctx context.Context, symbols []string, handler TickHandler) error {
	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, header)
	if err != nil {
		return fmt.Errorf("mt5bridge: dial tick stream: %w", err)
	}
	defer conn.Close()

	sub := subscribePayload{Op: "subscribe", Symbols: symbols}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("mt5bridge: subscribe ticks: %w", err)
	}

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("mt5bridge: read tick: %w", err)
		}

		var tick tickPayload
		if err := json.Unmarshal(msg, &tick); err != nil {
			continue // skip frames that are not ticks (acks, heartbeats)
		}
		if tick.Symbol == "" {
			continue
		}
		handler(tick.Symbol, tick.Bid, tick.Ask, time.UnixMilli(tick.TimeMs))
	}
}
