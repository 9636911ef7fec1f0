// Package prices owns price-bar storage and the incremental bar synchronizer.
package prices

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"market_reader_backend/models"
	"market_reader_backend/services/calendar"
	"market_reader_backend/services/gateway"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrPriceUnavailable is returned when the gateway never resolves a last
// traded price within the polling budget. Callers skip the dependent work for
// that instrument instead of failing the whole cycle.
var ErrPriceUnavailable = errors.New("latest price unavailable")

const pricePollAttempts = 20

var pricePollInterval = 100 * time.Millisecond

// Service provides price-bar storage operations and synchronization.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService creates a price service over the given store.
func NewService(db *gorm.DB) *Service {
	return NewServiceWithClock(db, func() time.Time {
		return time.Now().In(calendar.NewYork)
	})
}

// NewServiceWithClock creates a price service reading "now" from the given
// clock.
func NewServiceWithClock(db *gorm.DB, now func() time.Time) *Service {
	return &Service{
		db:  db,
		now: now,
	}
}

// LatestBar returns the most recent stored bar for (contract, data type,
// bar size), or nil when none exists yet.
func (s *Service) LatestBar(contractID uint, dataType models.DataType, barSize int) (*models.PriceBar, error) {
	var bar models.PriceBar
	err := s.db.
		Where("contract_id = ? AND data_type = ? AND bar_size = ?", contractID, dataType, barSize).
		Order("date DESC").
		First(&bar).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bar, nil
}

// ExistingBarTimes loads every stored bar timestamp for (contract, data type,
// bar size) as a set keyed by unix seconds, for O(1) dedupe checks.
func (s *Service) ExistingBarTimes(contractID uint, dataType models.DataType, barSize int) (map[int64]struct{}, error) {
	var dates []time.Time
	err := s.db.Model(&models.PriceBar{}).
		Where("contract_id = ? AND data_type = ? AND bar_size = ?", contractID, dataType, barSize).
		Pluck("date", &dates).Error
	if err != nil {
		return nil, err
	}

	existing := make(map[int64]struct{}, len(dates))
	for _, d := range dates {
		existing[d.Unix()] = struct{}{}
	}
	return existing, nil
}

// InsertBars commits a batch of bars in a single transaction. Rows colliding
// with an already-stored observation window are dropped by the store's unique
// index, so a concurrent job racing on the same window cannot double-insert.
func (s *Service) InsertBars(bars []models.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&bars).Error
}

// Bars returns stored bars for a contract. The limit most recent bars are
// always selected; order controls whether they come back newest-first
// ("desc") or oldest-first ("asc"). A non-positive limit returns everything.
func (s *Service) Bars(contractID uint, dataType models.DataType, barSize int, order string, limit int) ([]models.PriceBar, error) {
	query := s.db.
		Where("contract_id = ? AND data_type = ? AND bar_size = ?", contractID, dataType, barSize).
		Order("date DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var bars []models.PriceBar
	if err := query.Find(&bars).Error; err != nil {
		return nil, err
	}

	if order != "desc" {
		for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
			bars[i], bars[j] = bars[j], bars[i]
		}
	}
	return bars, nil
}

// SyncBars fetches the bars missing from the store for one (contract,
// data type, bar size) and returns the delta to persist. It requests just
// enough history to cover the gap since the last stored bar, drops bars whose
// timestamp is already stored, and drops bars whose window has not closed
// yet. The caller commits the returned batch atomically.
func (s *Service) SyncBars(
	ctx context.Context,
	conn gateway.Conn,
	contract *models.Contract,
	wire gateway.Contract,
	dataType models.DataType,
	barSize int,
) ([]models.PriceBar, error) {
	last, err := s.LatestBar(contract.ID, dataType, barSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest bar: %w", err)
	}

	now := s.now()
	var lastDate *time.Time
	if last != nil {
		lastDate = &last.Date
	}
	duration := fetchDuration(contract.ContractType, lastDate, now)

	existing, err := s.ExistingBarTimes(contract.ID, dataType, barSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing bars: %w", err)
	}

	fetched, err := conn.HistoricalBars(ctx, wire, gateway.HistoricalRequest{
		Duration:   duration,
		BarSize:    barSize,
		WhatToShow: string(dataType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bars: %w", err)
	}

	window := time.Duration(barSize) * time.Minute
	var batch []models.PriceBar
	for _, bar := range fetched {
		if _, ok := existing[bar.Date.Unix()]; ok {
			continue
		}
		if bar.Date.Add(window).After(now) {
			// Bar window still in progress, never persist it.
			continue
		}
		batch = append(batch, models.PriceBar{
			ContractID: contract.ID,
			Date:       bar.Date,
			Open:       bar.Open,
			High:       bar.High,
			Low:        bar.Low,
			Close:      bar.Close,
			Volume:     bar.Volume,
			BarSize:    barSize,
			DataType:   dataType,
		})
	}
	return batch, nil
}

// fetchDuration computes the gateway duration string covering the gap since
// the last stored bar.
//
// With no prior bar the default is 10 trading days of history for the
// top-level classes and a single day for freshly discovered options. With a
// prior bar, gaps under an hour round up to the next whole minute of seconds;
// longer gaps convert to days using a 6.5 hour trading day, which keeps the
// request bounded while still covering gaps that span non-trading hours.
func fetchDuration(ct models.ContractType, last *time.Time, now time.Time) string {
	if last == nil {
		switch ct {
		case models.ContractStock, models.ContractIndex, models.ContractForex, models.ContractFuture:
			return "10 D"
		}
		return "1 D"
	}

	gap := now.Sub(*last).Seconds()
	if gap < 3600 {
		return fmt.Sprintf("%d S", int(math.Ceil(gap/60))*60)
	}
	return fmt.Sprintf("%d D", int(math.Ceil(gap/3600/6.5)))
}

// PollLastPrice asks the gateway for an instrument's latest traded price,
// polling until it resolves or the budget (20 attempts, 100 ms apart) runs
// out, in which case ErrPriceUnavailable is returned.
func PollLastPrice(ctx context.Context, conn gateway.Conn, c gateway.Contract) (float64, error) {
	for attempt := 0; attempt < pricePollAttempts; attempt++ {
		price, err := conn.MarketPrice(ctx, c)
		if err != nil {
			return 0, err
		}
		if !math.IsNaN(price) {
			return price, nil
		}
		if attempt == pricePollAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(pricePollInterval):
		}
	}
	return 0, ErrPriceUnavailable
}
