package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Wire timeouts for the gateway websocket. Historical fetches can take a
// while on the gateway side, everything else answers quickly.
const (
	wsHandshakeTimeout = 10 * time.Second
	wsCallTimeout      = 60 * time.Second
	wsWriteTimeout     = 10 * time.Second
)

// WSDialer opens gateway sessions over a websocket bridge. Each session is
// one socket, identified to the gateway by the clientId query parameter.
type WSDialer struct {
	host string
	port string
	loc  *time.Location
}

// NewWSDialer creates a dialer for the gateway at host:port. Bar timestamps
// coming off the wire are exchange-local, so the dialer carries the exchange
// timezone for decoding.
func NewWSDialer(host, port string, loc *time.Location) *WSDialer {
	return &WSDialer{host: host, port: port, loc: loc}
}

// Connect opens a session for the given client identity. The gateway rejects
// the handshake when the identity already has an active session.
func (d *WSDialer) Connect(ctx context.Context, clientID int) (Conn, error) {
	u := url.URL{
		Scheme:   "ws",
		Host:     net.JoinHostPort(d.host, d.port),
		Path:     "/ws",
		RawQuery: fmt.Sprintf("clientId=%d", clientID),
	}

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("gateway handshake failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("gateway handshake failed: %w", err)
	}

	return &wsConn{conn: conn, loc: d.loc}, nil
}

type wsRequest struct {
	ID     int64       `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

type wsResponse struct {
	ID     int64           `json:"id"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// wsConn serializes request/response pairs over a single socket. The gateway
// paces requests per session, so one in-flight call at a time is the
// contract, enforced with the mutex.
type wsConn struct {
	conn   *websocket.Conn
	loc    *time.Location
	mu     sync.Mutex
	nextID int64
}

func (c *wsConn) call(ctx context.Context, method string, params, result interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	req := wsRequest{ID: c.nextID, Method: method, Params: params}

	deadline := time.Now().Add(wsCallTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}

	c.conn.SetReadDeadline(deadline)
	for {
		var resp wsResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			return fmt.Errorf("%s response failed: %w", method, err)
		}
		if resp.ID != req.ID {
			// Stale reply from an abandoned call, keep reading.
			continue
		}
		if resp.Error != "" {
			return fmt.Errorf("%s: gateway error: %s", method, resp.Error)
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("%s: bad gateway payload: %w", method, err)
			}
		}
		return nil
	}
}

func (c *wsConn) ContractDetails(ctx context.Context, contract Contract) ([]ContractDetails, error) {
	var details []ContractDetails
	if err := c.call(ctx, "contractDetails", contract, &details); err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, fmt.Errorf("contract details not found for %s", contract.Symbol)
	}
	return details, nil
}

func (c *wsConn) OptionChains(ctx context.Context, underlying Contract) ([]OptionChain, error) {
	params := struct {
		Symbol  string `json:"symbol"`
		SecType string `json:"sec_type"`
		ConID   int64  `json:"con_id"`
	}{underlying.Symbol, underlying.SecType, underlying.ConID}

	var chains []OptionChain
	if err := c.call(ctx, "optionChainParams", params, &chains); err != nil {
		return nil, err
	}
	return chains, nil
}

func (c *wsConn) MarketPrice(ctx context.Context, contract Contract) (float64, error) {
	var result struct {
		Last *float64 `json:"last"`
	}
	if err := c.call(ctx, "marketPrice", contract, &result); err != nil {
		return 0, err
	}
	if result.Last == nil {
		return math.NaN(), nil
	}
	return *result.Last, nil
}

func (c *wsConn) HistoricalBars(ctx context.Context, contract Contract, req HistoricalRequest) ([]Bar, error) {
	params := struct {
		Contract Contract `json:"contract"`
		Duration string   `json:"duration"`
		BarSize  string   `json:"bar_size"`
		What     string   `json:"what_to_show"`
		UseRTH   bool     `json:"use_rth"`
	}{contract, req.Duration, barSizeSetting(req.BarSize), req.WhatToShow, req.UseRTH}

	var raw []struct {
		Date   int64   `json:"date"` // epoch seconds
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume int64   `json:"volume"`
	}
	if err := c.call(ctx, "historicalData", params, &raw); err != nil {
		return nil, err
	}

	bars := make([]Bar, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, Bar{
			Date:   time.Unix(b.Date, 0).In(c.loc),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	return bars, nil
}

func barSizeSetting(minutes int) string {
	if minutes == 1 {
		return "1 min"
	}
	return fmt.Sprintf("%d mins", minutes)
}

func (c *wsConn) Close() error {
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}
