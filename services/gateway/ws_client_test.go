package gateway

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatewayStub is a websocket endpoint answering wire calls from canned
// handlers keyed by method name.
type gatewayStub struct {
	handlers map[string]func(params json.RawMessage) (interface{}, string)

	mu        sync.Mutex
	clientIDs []int
}

func newGatewayStub(t *testing.T) (*gatewayStub, *WSDialer) {
	t.Helper()
	stub := &gatewayStub{
		handlers: map[string]func(json.RawMessage) (interface{}, string){},
	}

	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)

	return stub, NewWSDialer(host, port, time.UTC)
}

func (g *gatewayStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/ws") {
		http.NotFound(w, r)
		return
	}

	var clientID int
	if id := r.URL.Query().Get("clientId"); id != "" {
		clientID, _ = strconv.Atoi(id)
	}
	g.mu.Lock()
	g.clientIDs = append(g.clientIDs, clientID)
	g.mu.Unlock()

	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var req struct {
			ID     int64           `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		resp := map[string]interface{}{"id": req.ID}
		if handler, ok := g.handlers[req.Method]; ok {
			result, errMsg := handler(req.Params)
			if errMsg != "" {
				resp["error"] = errMsg
			} else {
				resp["result"] = result
			}
		} else {
			resp["error"] = "unknown method " + req.Method
		}
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

func TestConnectSendsClientIdentity(t *testing.T) {
	stub, dialer := newGatewayStub(t)

	conn, err := dialer.Connect(context.Background(), 7)
	require.NoError(t, err)
	defer conn.Close()

	stub.mu.Lock()
	defer stub.mu.Unlock()
	assert.Equal(t, []int{7}, stub.clientIDs)
}

func TestHistoricalBarsDecodesEpochSeconds(t *testing.T) {
	stub, dialer := newGatewayStub(t)

	var gotParams struct {
		Duration string `json:"duration"`
		BarSize  string `json:"bar_size"`
		What     string `json:"what_to_show"`
	}
	stub.handlers["historicalData"] = func(params json.RawMessage) (interface{}, string) {
		require.NoError(t, json.Unmarshal(params, &gotParams))
		return []map[string]interface{}{
			{"date": 1767277800, "open": 1.0, "high": 2.0, "low": 1.0, "close": 1.5, "volume": 42},
		}, ""
	}

	conn, err := dialer.Connect(context.Background(), 1)
	require.NoError(t, err)
	defer conn.Close()

	bars, err := conn.HistoricalBars(context.Background(), Contract{Symbol: "ES"}, HistoricalRequest{
		Duration:   "10 D",
		BarSize:    5,
		WhatToShow: "TRADES",
	})
	require.NoError(t, err)

	assert.Equal(t, "10 D", gotParams.Duration)
	assert.Equal(t, "5 mins", gotParams.BarSize)
	assert.Equal(t, "TRADES", gotParams.What)

	require.Len(t, bars, 1)
	assert.Equal(t, int64(1767277800), bars[0].Date.Unix())
	assert.Equal(t, 1.5, bars[0].Close)
	assert.Equal(t, int64(42), bars[0].Volume)
}

func TestMarketPriceMapsNullToNaN(t *testing.T) {
	stub, dialer := newGatewayStub(t)

	resolved := false
	stub.handlers["marketPrice"] = func(json.RawMessage) (interface{}, string) {
		if !resolved {
			resolved = true
			return map[string]interface{}{"last": nil}, ""
		}
		return map[string]interface{}{"last": 187.5}, ""
	}

	conn, err := dialer.Connect(context.Background(), 1)
	require.NoError(t, err)
	defer conn.Close()

	price, err := conn.MarketPrice(context.Background(), Contract{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(price))

	price, err = conn.MarketPrice(context.Background(), Contract{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, 187.5, price)
}

func TestGatewayErrorsSurfaceToCaller(t *testing.T) {
	stub, dialer := newGatewayStub(t)
	stub.handlers["optionChainParams"] = func(json.RawMessage) (interface{}, string) {
		return nil, "no security definition"
	}

	conn, err := dialer.Connect(context.Background(), 1)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.OptionChains(context.Background(), Contract{Symbol: "AAPL"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no security definition")
}

func TestContractDetailsRequiresAMatch(t *testing.T) {
	stub, dialer := newGatewayStub(t)
	stub.handlers["contractDetails"] = func(json.RawMessage) (interface{}, string) {
		return []ContractDetails{}, ""
	}

	conn, err := dialer.Connect(context.Background(), 1)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.ContractDetails(context.Background(), Contract{Symbol: "NOPE"})
	assert.Error(t, err)
}

func TestBarSizeSetting(t *testing.T) {
	assert.Equal(t, "1 min", barSizeSetting(1))
	assert.Equal(t, "5 mins", barSizeSetting(5))
}
