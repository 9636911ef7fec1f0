package gateway

import (
	"context"
	"time"
)

// Security type tags understood by the market-data gateway.
const (
	SecTypeStock  = "STK"
	SecTypeOption = "OPT"
	SecTypeFuture = "CONTFUT" // continuous futures only
	SecTypeForex  = "CASH"
	SecTypeIndex  = "IND"
)

// Contract identifies an instrument on the gateway wire. Option fields are
// only set for SecTypeOption.
type Contract struct {
	Symbol        string  `json:"symbol"`
	SecType       string  `json:"sec_type"`
	Exchange      string  `json:"exchange,omitempty"`
	Currency      string  `json:"currency,omitempty"`
	ConID         int64   `json:"con_id,omitempty"`
	LastTradeDate string  `json:"last_trade_date,omitempty"` // YYYYMMDD
	Strike        float64 `json:"strike,omitempty"`
	Right         string  `json:"right,omitempty"` // C or P
}

// ContractDetails is the gateway's resolved view of a contract.
type ContractDetails struct {
	Contract Contract `json:"contract"`
	LongName string   `json:"long_name,omitempty"`
}

// OptionChain describes the option contracts the gateway lists for one
// underlying on one exchange.
type OptionChain struct {
	Exchange    string    `json:"exchange"`
	Expirations []string  `json:"expirations"` // YYYYMMDD
	Strikes     []float64 `json:"strikes"`
}

// Bar is one OHLCV observation as returned by the gateway.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// HistoricalRequest parameterizes a historical bar fetch. Duration uses the
// gateway's duration-string format, e.g. "1800 S" or "2 D".
type HistoricalRequest struct {
	Duration   string `json:"duration"`
	BarSize    int    `json:"bar_size"` // minutes
	WhatToShow string `json:"what_to_show"`
	UseRTH     bool   `json:"use_rth"`
}

// Conn is one live gateway session. Requests on a single Conn are paced by
// the gateway, so callers issue them sequentially; concurrent work uses
// separate sessions.
type Conn interface {
	// ContractDetails resolves a contract, filling in gateway identifiers.
	ContractDetails(ctx context.Context, c Contract) ([]ContractDetails, error)

	// OptionChains lists option chain definitions for an underlying.
	OptionChains(ctx context.Context, underlying Contract) ([]OptionChain, error)

	// MarketPrice returns the latest traded price for a contract, or NaN
	// while the gateway has not resolved one yet.
	MarketPrice(ctx context.Context, c Contract) (float64, error)

	// HistoricalBars returns bars ordered oldest-first.
	HistoricalBars(ctx context.Context, c Contract, req HistoricalRequest) ([]Bar, error)

	Close() error
}

// Dialer opens gateway sessions. The gateway permits at most one active
// session per client identity; Connect fails if the identity is taken.
type Dialer interface {
	Connect(ctx context.Context, clientID int) (Conn, error)
}
