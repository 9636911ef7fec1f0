package prices

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"market_reader_backend/models"
	"market_reader_backend/services/calendar"
	"market_reader_backend/services/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.MigrateContractModels(db))
	require.NoError(t, models.MigratePriceBarModels(db))
	return db
}

func testStock(t *testing.T, db *gorm.DB, symbol string) *models.Contract {
	t.Helper()
	stock := &models.Contract{
		Symbol:       symbol,
		ContractType: models.ContractStock,
		Currency:     "USD",
	}
	require.NoError(t, db.Create(stock).Error)
	return stock
}

// stubConn serves canned bars and records the historical requests it saw.
type stubConn struct {
	bars     []gateway.Bar
	requests []gateway.HistoricalRequest

	prices     []float64
	priceCalls int
}

func (c *stubConn) ContractDetails(ctx context.Context, _ gateway.Contract) ([]gateway.ContractDetails, error) {
	return nil, nil
}

func (c *stubConn) OptionChains(ctx context.Context, _ gateway.Contract) ([]gateway.OptionChain, error) {
	return nil, nil
}

func (c *stubConn) MarketPrice(ctx context.Context, _ gateway.Contract) (float64, error) {
	c.priceCalls++
	if len(c.prices) == 0 {
		return math.NaN(), nil
	}
	price := c.prices[0]
	c.prices = c.prices[1:]
	return price, nil
}

func (c *stubConn) HistoricalBars(ctx context.Context, _ gateway.Contract, req gateway.HistoricalRequest) ([]gateway.Bar, error) {
	c.requests = append(c.requests, req)
	return c.bars, nil
}

func (c *stubConn) Close() error { return nil }

func fixedNow() time.Time {
	// A Wednesday afternoon during regular trading hours.
	return time.Date(2026, 3, 4, 15, 0, 0, 0, calendar.NewYork)
}

func TestFetchDurationDefaults(t *testing.T) {
	now := fixedNow()

	assert.Equal(t, "10 D", fetchDuration(models.ContractStock, nil, now))
	assert.Equal(t, "10 D", fetchDuration(models.ContractIndex, nil, now))
	assert.Equal(t, "10 D", fetchDuration(models.ContractForex, nil, now))
	assert.Equal(t, "10 D", fetchDuration(models.ContractFuture, nil, now))
	assert.Equal(t, "1 D", fetchDuration(models.ContractOption, nil, now))
}

func TestFetchDurationFromGap(t *testing.T) {
	now := fixedNow()

	cases := []struct {
		gapSeconds int
		want       string
	}{
		{1800, "1800 S"},
		{1790, "1800 S"}, // rounds up to the next whole minute
		{3599, "3600 S"},
		{7200, "1 D"},  // 2h / 6.5h trading day
		{30000, "2 D"}, // ~8.3h / 6.5h
	}
	for _, tc := range cases {
		last := now.Add(-time.Duration(tc.gapSeconds) * time.Second)
		got := fetchDuration(models.ContractStock, &last, now)
		assert.Equalf(t, tc.want, got, "gap %ds", tc.gapSeconds)
	}
}

func TestSyncBarsRequestsDefaultDurationWithoutHistory(t *testing.T) {
	db := testDB(t)
	stock := testStock(t, db, "AAPL")
	svc := NewService(db)
	svc.now = fixedNow

	conn := &stubConn{}
	_, err := svc.SyncBars(context.Background(), conn, stock, gateway.Contract{}, models.DataTrades, 5)
	require.NoError(t, err)

	require.Len(t, conn.requests, 1)
	assert.Equal(t, "10 D", conn.requests[0].Duration)
	assert.Equal(t, 5, conn.requests[0].BarSize)
	assert.Equal(t, "TRADES", conn.requests[0].WhatToShow)
}

func TestSyncBarsSkipsStoredAndOpenWindows(t *testing.T) {
	db := testDB(t)
	stock := testStock(t, db, "AAPL")
	svc := NewService(db)
	svc.now = fixedNow
	now := fixedNow()

	stored := now.Add(-30 * time.Minute)
	require.NoError(t, db.Create(&models.PriceBar{
		ContractID: stock.ID,
		Date:       stored,
		Close:      101,
		BarSize:    5,
		DataType:   models.DataTrades,
	}).Error)

	conn := &stubConn{bars: []gateway.Bar{
		{Date: stored, Close: 101},                     // already stored
		{Date: now.Add(-10 * time.Minute), Close: 102}, // new, window closed
		{Date: now.Add(-5 * time.Minute), Close: 103},  // new, window closes exactly now
		{Date: now.Add(-2 * time.Minute), Close: 104},  // window still open
	}}

	batch, err := svc.SyncBars(context.Background(), conn, stock, gateway.Contract{}, models.DataTrades, 5)
	require.NoError(t, err)

	require.Len(t, batch, 2)
	assert.Equal(t, 102.0, batch[0].Close)
	assert.Equal(t, 103.0, batch[1].Close)
	for _, bar := range batch {
		assert.False(t, bar.Date.Add(5*time.Minute).After(now))
	}
}

func TestSyncBarsIsIdempotent(t *testing.T) {
	db := testDB(t)
	stock := testStock(t, db, "AAPL")
	svc := NewService(db)
	svc.now = fixedNow
	now := fixedNow()

	conn := &stubConn{bars: []gateway.Bar{
		{Date: now.Add(-20 * time.Minute), Close: 101},
		{Date: now.Add(-15 * time.Minute), Close: 102},
	}}

	first, err := svc.SyncBars(context.Background(), conn, stock, gateway.Contract{}, models.DataTrades, 5)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NoError(t, svc.InsertBars(first))

	// No new gateway data: the second run must produce an empty batch.
	second, err := svc.SyncBars(context.Background(), conn, stock, gateway.Contract{}, models.DataTrades, 5)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestInsertBarsIgnoresDuplicateObservations(t *testing.T) {
	db := testDB(t)
	stock := testStock(t, db, "AAPL")
	svc := NewService(db)

	bar := models.PriceBar{
		ContractID: stock.ID,
		Date:       fixedNow().Add(-time.Hour),
		Close:      100,
		BarSize:    5,
		DataType:   models.DataTrades,
	}
	require.NoError(t, svc.InsertBars([]models.PriceBar{bar}))

	// A racing job writing the same observation window must not error and
	// must not create a second row.
	require.NoError(t, svc.InsertBars([]models.PriceBar{bar}))

	var count int64
	require.NoError(t, db.Model(&models.PriceBar{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestBarsOrderingAndLimit(t *testing.T) {
	db := testDB(t)
	stock := testStock(t, db, "AAPL")
	svc := NewService(db)
	base := fixedNow().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		require.NoError(t, db.Create(&models.PriceBar{
			ContractID: stock.ID,
			Date:       base.Add(time.Duration(i) * 5 * time.Minute),
			Close:      float64(100 + i),
			BarSize:    5,
			DataType:   models.DataTrades,
		}).Error)
	}

	desc, err := svc.Bars(stock.ID, models.DataTrades, 5, "desc", 3)
	require.NoError(t, err)
	require.Len(t, desc, 3)
	assert.Equal(t, []float64{104, 103, 102}, closes(desc))

	// asc returns the same 3 most recent bars, oldest first
	asc, err := svc.Bars(stock.ID, models.DataTrades, 5, "asc", 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{102, 103, 104}, closes(asc))

	// a non-positive limit returns everything, newest first
	all, err := svc.Bars(stock.ID, models.DataTrades, 5, "desc", 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{104, 103, 102, 101, 100}, closes(all))
}

func closes(bars []models.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func TestPollLastPriceResolves(t *testing.T) {
	conn := &stubConn{prices: []float64{math.NaN(), math.NaN(), 187.5}}

	price, err := PollLastPrice(context.Background(), conn, gateway.Contract{})
	require.NoError(t, err)
	assert.Equal(t, 187.5, price)
	assert.Equal(t, 3, conn.priceCalls)
}

func TestPollLastPriceTimesOut(t *testing.T) {
	oldInterval := pricePollInterval
	pricePollInterval = 50 * time.Millisecond
	defer func() { pricePollInterval = oldInterval }()

	conn := &stubConn{} // never resolves

	start := time.Now()
	_, err := PollLastPrice(context.Background(), conn, gateway.Contract{})
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrPriceUnavailable)
	assert.Equal(t, pricePollAttempts, conn.priceCalls)

	// 19 waits separate the 20 attempts; none after the final one.
	assert.Less(t, elapsed, time.Duration(pricePollAttempts)*pricePollInterval)
}
