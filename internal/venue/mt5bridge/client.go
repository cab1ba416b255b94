// Package mt5bridge implements domain.ExecutionVenue against a MetaTrader
// terminal exposed through an HTTP/WebSocket bridge service.
package mt5bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tradekit/signalpilot/internal/domain"
)

// Config holds bridge connection parameters.
type Config struct {
	// BaseURL is the bridge REST root, e.g. "http://localhost:8787".
	BaseURL string
	// APIToken authenticates against the bridge; sent as a bearer token.
	APIToken string
	// Login and Password open the terminal session on Connect. Empty values
	// assume the bridge already holds a session.
	Login    string
	Password string
}

// Client is the REST client for the bridge. It implements
// domain.ExecutionVenue.
type Client struct {
	baseURL    string
	token      string
	login      string
	password   string
	httpClient *http.Client
}

// NewClient creates a bridge client.
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		token:    cfg.APIToken,
		login:    cfg.Login,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Connect opens the terminal session on the bridge.
func (c *Client) Connect(ctx context.Context) error {
	body := sessionPayload{Login: c.login, Password: c.password}
	if _, err := c.doRequest(ctx, http.MethodPost, "/api/session", body); err != nil {
		return fmt.Errorf("mt5bridge: connect: %w", err)
	}
	return nil
}

// Close tears down the terminal session. Errors are ignored; the bridge
// reaps stale sessions on its own.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = c.doRequest(ctx, http.MethodDelete, "/api/session", nil)
	return nil
}

// AccountInfo returns the current account snapshot.
func (c *Client) AccountInfo(ctx context.Context) (domain.AccountInfo, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/account", nil)
	if err != nil {
		return domain.AccountInfo{}, fmt.Errorf("mt5bridge: account info: %w", err)
	}

	var p accountPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.AccountInfo{}, fmt.Errorf("mt5bridge: decode account: %w", err)
	}
	return domain.AccountInfo{
		Balance:    p.Balance,
		Equity:     p.Equity,
		FreeMargin: p.FreeMargin,
		Leverage:   p.Leverage,
		Currency:   p.Currency,
	}, nil
}

// SymbolInfo returns the trading parameters and current quote for a symbol.
func (c *Client) SymbolInfo(ctx context.Context, symbol string) (domain.SymbolInfo, error) {
	path := "/api/symbols/" + url.PathEscape(symbol)
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.SymbolInfo{}, fmt.Errorf("mt5bridge: symbol info %s: %w", symbol, err)
	}

	var p symbolPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.SymbolInfo{}, fmt.Errorf("mt5bridge: decode symbol: %w", err)
	}
	return domain.SymbolInfo{
		Name:         p.Name,
		Bid:          p.Bid,
		Ask:          p.Ask,
		Point:        p.Point,
		Digits:       p.Digits,
		ContractSize: p.ContractSize,
		VolumeMin:    p.VolumeMin,
		VolumeMax:    p.VolumeMax,
		VolumeStep:   p.VolumeStep,
		StopDistance: p.StopsLevel,
	}, nil
}

// PlaceOrder submits an order. Protective levels travel inside the request so
// the bridge attaches them atomically with the placement.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	payload := orderPayload{
		ClientID:   req.ClientID,
		Symbol:     req.Symbol,
		Direction:  string(req.Direction),
		Kind:       string(req.Kind),
		Volume:     req.Volume,
		Price:      req.Price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Comment:    req.Comment,
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/api/orders", payload)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("mt5bridge: place order: %w", err)
	}

	var p orderResultPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.OrderResult{}, fmt.Errorf("mt5bridge: decode order result: %w", err)
	}
	return domain.OrderResult{
		Success:     p.Success,
		Ticket:      p.Ticket,
		FillPrice:   p.FillPrice,
		Message:     p.Message,
		ShouldRetry: p.Retryable,
	}, nil
}

// ModifyPositionStops rewrites the protective levels of an open position.
func (c *Client) ModifyPositionStops(ctx context.Context, ticket int64, stopLoss float64, takeProfit *float64) error {
	path := fmt.Sprintf("/api/positions/%d/modify", ticket)
	if _, err := c.doRequest(ctx, http.MethodPost, path, modifyPayload{StopLoss: stopLoss, TakeProfit: takeProfit}); err != nil {
		return fmt.Errorf("mt5bridge: modify position %d: %w", ticket, err)
	}
	return nil
}

// ClosePosition closes an open position at market.
func (c *Client) ClosePosition(ctx context.Context, ticket int64) error {
	path := fmt.Sprintf("/api/positions/%d", ticket)
	if _, err := c.doRequest(ctx, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("mt5bridge: close position %d: %w", ticket, err)
	}
	return nil
}

// CancelOrder cancels a resting order.
func (c *Client) CancelOrder(ctx context.Context, ticket int64) error {
	path := fmt.Sprintf("/api/orders/%d", ticket)
	if _, err := c.doRequest(ctx, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("mt5bridge: cancel order %d: %w", ticket, err)
	}
	return nil
}

// OpenPositions lists open positions, optionally filtered by symbol.
func (c *Client) OpenPositions(ctx context.Context, symbol string) ([]domain.OpenPosition, error) {
	path := "/api/positions"
	if symbol != "" {
		path += "?symbol=" + url.QueryEscape(symbol)
	}
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("mt5bridge: list positions: %w", err)
	}

	var resp struct {
		Positions []positionPayload `json:"positions"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("mt5bridge: decode positions: %w", err)
	}

	out := make([]domain.OpenPosition, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		out = append(out, domain.OpenPosition{
			Ticket:     p.Ticket,
			Symbol:     p.Symbol,
			Direction:  domain.Direction(p.Direction),
			OpenPrice:  p.OpenPrice,
			Volume:     p.Volume,
			StopLoss:   p.StopLoss,
			TakeProfit: p.TakeProfit,
			Profit:     p.Profit,
			OpenedAt:   p.OpenedAt,
			Comment:    p.Comment,
		})
	}
	return out, nil
}

// PendingOrders lists resting orders, optionally filtered by symbol.
func (c *Client) PendingOrders(ctx context.Context, symbol string) ([]domain.PendingOrder, error) {
	path := "/api/orders"
	if symbol != "" {
		path += "?symbol=" + url.QueryEscape(symbol)
	}
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("mt5bridge: list orders: %w", err)
	}

	var resp struct {
		Orders []pendingPayload `json:"orders"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("mt5bridge: decode orders: %w", err)
	}

	out := make([]domain.PendingOrder, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		out = append(out, domain.PendingOrder{
			Ticket:  o.Ticket,
			Symbol:  o.Symbol,
			Kind:    domain.OrderKind(o.Kind),
			Price:   o.Price,
			Volume:  o.Volume,
			Comment: o.Comment,
		})
	}
	return out, nil
}

// DealsSince returns historical executions at or after since.
func (c *Client) DealsSince(ctx context.Context, symbol string, since time.Time) ([]domain.Deal, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("since", strconv.FormatInt(since.UnixMilli(), 10))

	body, err := c.doRequest(ctx, http.MethodGet, "/api/deals?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("mt5bridge: list deals: %w", err)
	}

	var resp struct {
		Deals []dealPayload `json:"deals"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("mt5bridge: decode deals: %w", err)
	}

	out := make([]domain.Deal, 0, len(resp.Deals))
	for _, d := range resp.Deals {
		out = append(out, domain.Deal{
			Ticket:  d.Ticket,
			Symbol:  d.Symbol,
			Price:   d.Price,
			Volume:  d.Volume,
			Time:    d.Time,
			Comment: d.Comment,
		})
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doRequest builds, authenticates, sends, and reads an HTTP request against
// the bridge API.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w: %v", domain.ErrVenueUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrVenueUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := c.checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to domain errors.
func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorPayload
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s (%s)", domain.ErrNotFound, apiErr.Message, apiErr.Code)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s (%s)", domain.ErrMissingCredentials, apiErr.Message, apiErr.Code)
	case http.StatusUnprocessableEntity, http.StatusBadRequest, http.StatusConflict:
		return fmt.Errorf("%w: %s (%s)", domain.ErrOrderRejected, apiErr.Message, apiErr.Code)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s (%s)", domain.ErrVenueUnavailable, apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("mt5bridge: HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}

// Compile-time interface check.
var _ domain.ExecutionVenue = (*Client)(nil)
