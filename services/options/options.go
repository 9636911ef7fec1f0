// Package options derives same-day-expiration option contracts for tradable
// stocks, bounded around the spot price.
package options

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"market_reader_backend/models"
	"market_reader_backend/services/calendar"
	"market_reader_backend/services/contracts"
	"market_reader_backend/services/gateway"
	"market_reader_backend/services/prices"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// chainExchange is the smart-routed exchange whose chain definition is used.
const chainExchange = "SMART"

// ErrExpirationNotFound means the gateway's chain for the underlying does not
// list the requested expiration. Discovery for that underlying aborts; other
// underlyings are unaffected.
var ErrExpirationNotFound = errors.New("expiration date not found in chain")

// defaultSpread bounds strikes around spot when a stock row predates the
// spread_around_spot column.
const defaultSpread = 2.0

// Service discovers and stores option contracts.
type Service struct {
	db        *gorm.DB
	contracts *contracts.Service
	now       func() time.Time
}

// NewService creates an option discovery service.
func NewService(db *gorm.DB, contractSvc *contracts.Service) *Service {
	return NewServiceWithClock(db, contractSvc, func() time.Time {
		return time.Now().In(calendar.NewYork)
	})
}

// NewServiceWithClock creates an option discovery service reading "now" from
// the given clock.
func NewServiceWithClock(db *gorm.DB, contractSvc *contracts.Service, now func() time.Time) *Service {
	return &Service{
		db:        db,
		contracts: contractSvc,
		now:       now,
	}
}

// Existing returns the stored option contracts for (underlying, expiration).
func (s *Service) Existing(underlyingID uint, expiration string) ([]models.Contract, error) {
	expDate, err := time.ParseInLocation("20060102", expiration, calendar.NewYork)
	if err != nil {
		return nil, fmt.Errorf("invalid expiration date %q: %w", expiration, err)
	}

	var options []models.Contract
	err = s.db.
		Where("contract_type = ?", models.ContractOption).
		Where("underlying_id = ?", underlyingID).
		Where("last_trade_date = ?", expDate).
		Find(&options).Error
	return options, err
}

// Expirations returns the distinct expiration dates (YYYYMMDD) of stored
// options for an underlying.
func (s *Service) Expirations(underlyingID uint) ([]string, error) {
	var dates []time.Time
	err := s.db.Model(&models.Contract{}).
		Where("contract_type = ? AND underlying_id = ?", models.ContractOption, underlyingID).
		Distinct("last_trade_date").
		Order("last_trade_date").
		Pluck("last_trade_date", &dates).Error
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.Format("20060102"))
	}
	return out, nil
}

// Strikes returns the distinct ordered strikes of stored options for
// (underlying, expiration).
func (s *Service) Strikes(underlyingID uint, expiration string) ([]decimal.Decimal, error) {
	expDate, err := time.ParseInLocation("20060102", expiration, calendar.NewYork)
	if err != nil {
		return nil, fmt.Errorf("invalid expiration date %q: %w", expiration, err)
	}

	var strikes []decimal.Decimal
	err = s.db.Model(&models.Contract{}).
		Where("contract_type = ? AND underlying_id = ? AND last_trade_date = ?",
			models.ContractOption, underlyingID, expDate).
		Distinct("strike").
		Order("strike").
		Pluck("strike", &strikes).Error
	return strikes, err
}

// ByKey returns the stored option for (underlying, expiration, strike,
// right), or nil.
func (s *Service) ByKey(underlyingID uint, expiration string, strike decimal.Decimal, right models.Right) (*models.Contract, error) {
	expDate, err := time.ParseInLocation("20060102", expiration, calendar.NewYork)
	if err != nil {
		return nil, fmt.Errorf("invalid expiration date %q: %w", expiration, err)
	}

	var option models.Contract
	err = s.db.
		Where("contract_type = ? AND underlying_id = ? AND last_trade_date = ? AND strike = ? AND \"right\" = ?",
			models.ContractOption, underlyingID, expDate, strike, right).
		First(&option).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &option, nil
}

// Discover returns the option contracts to synchronize for one underlying and
// expiration. Contracts already stored for the pair are reused without a
// gateway round trip. Otherwise the chain is fetched, strikes are bounded to
// the open interval (spot - tolerance, spot + tolerance) using the stock's
// spread_around_spot, and a CALL and PUT are persisted per surviving strike.
//
// Same-day expirations are only constructed once the market has opened; an
// option that can no longer trade today is never represented.
func (s *Service) Discover(ctx context.Context, conn gateway.Conn, stock *models.Contract, expiration string) ([]models.Contract, error) {
	existing, err := s.Existing(stock.ID, expiration)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored options for %s: %w", stock.Symbol, err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	now := s.now()
	if expiration < now.Format("20060102") || calendar.BeforeMarketOpen(now) {
		return nil, nil
	}

	underlying, ok, err := s.contracts.GatewayContract(*stock)
	if err != nil || !ok {
		return nil, err
	}

	chains, err := conn.OptionChains(ctx, underlying)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch option chains for %s: %w", stock.Symbol, err)
	}

	chain, found := smartChain(chains)
	if !found {
		return nil, fmt.Errorf("no %s option chain for %s", chainExchange, stock.Symbol)
	}
	if !containsString(chain.Expirations, expiration) {
		return nil, fmt.Errorf("%w: %s for %s", ErrExpirationNotFound, expiration, stock.Symbol)
	}

	spot, err := prices.PollLastPrice(ctx, conn, underlying)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve spot price for %s: %w", stock.Symbol, err)
	}

	tolerance := defaultSpread
	if stock.SpreadAroundSpot != nil {
		tolerance = *stock.SpreadAroundSpot
	}

	expDate, err := time.ParseInLocation("20060102", expiration, calendar.NewYork)
	if err != nil {
		return nil, fmt.Errorf("invalid expiration date %q: %w", expiration, err)
	}

	var created []models.Contract
	for _, strike := range chain.Strikes {
		if strike <= spot-tolerance || strike >= spot+tolerance {
			continue
		}
		for _, right := range []models.Right{models.RightCall, models.RightPut} {
			exchange := chainExchange
			underlyingID := stock.ID
			expCopy := expDate
			created = append(created, models.Contract{
				Symbol:        stock.Symbol,
				ContractType:  models.ContractOption,
				Exchange:      &exchange,
				Currency:      stock.Currency,
				LastTradeDate: &expCopy,
				Strike:        decimal.NullDecimal{Decimal: decimal.NewFromFloat(strike), Valid: true},
				Right:         right,
				UnderlyingID:  &underlyingID,
			})
		}
	}
	if len(created) == 0 {
		return nil, nil
	}

	if err := s.db.Create(&created).Error; err != nil {
		return nil, fmt.Errorf("failed to store option contracts for %s: %w", stock.Symbol, err)
	}

	log.Printf("Discovered %d option contracts for %s exp %s", len(created), stock.Symbol, expiration)
	return created, nil
}

func smartChain(chains []gateway.OptionChain) (gateway.OptionChain, bool) {
	for _, chain := range chains {
		if chain.Exchange == chainExchange {
			return chain, true
		}
	}
	return gateway.OptionChain{}, false
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
