// Package contracts manages the instrument universe: lookups, creation,
// removal, and translation of stored rows into gateway wire contracts.
package contracts

import (
	"context"
	"fmt"
	"log"
	"time"

	"market_reader_backend/models"
	"market_reader_backend/services/calendar"
	"market_reader_backend/services/gateway"

	"gorm.io/gorm"
)

// Service provides contract storage operations.
type Service struct {
	db       *gorm.DB
	sessions *gateway.SessionManager
	now      func() time.Time
}

// NewService creates a contract service. sessions may be nil when no gateway
// round trips are needed (query-only callers).
func NewService(db *gorm.DB, sessions *gateway.SessionManager) *Service {
	return NewServiceWithClock(db, sessions, func() time.Time {
		return time.Now().In(calendar.NewYork)
	})
}

// NewServiceWithClock creates a contract service reading "now" from the given
// clock, so callers coordinating time-dependent work across services can share
// one time source.
func NewServiceWithClock(db *gorm.DB, sessions *gateway.SessionManager, now func() time.Time) *Service {
	return &Service{
		db:       db,
		sessions: sessions,
		now:      now,
	}
}

// List returns all contracts of one class.
func (s *Service) List(ct models.ContractType) ([]models.Contract, error) {
	var contracts []models.Contract
	err := s.db.Where("contract_type = ?", ct).Find(&contracts).Error
	return contracts, err
}

// ListTradable returns the contracts of one class with the tradable flag set.
// Legacy rows with a NULL flag count as tradable.
func (s *Service) ListTradable(ct models.ContractType) ([]models.Contract, error) {
	var contracts []models.Contract
	err := s.db.
		Where("contract_type = ?", ct).
		Where("to_trade = ? OR to_trade IS NULL", true).
		Find(&contracts).Error
	return contracts, err
}

// Exists checks whether a logical contract is already stored. Identity is
// (symbol, exchange, currency, tradable flag) within one class.
func (s *Service) Exists(c models.Contract) (bool, error) {
	query := s.db.Model(&models.Contract{}).
		Where("contract_type = ?", c.ContractType).
		Where("symbol = ?", c.Symbol).
		Where("currency = ?", c.Currency)

	if c.Exchange == nil {
		query = query.Where("exchange IS NULL")
	} else {
		query = query.Where("exchange = ?", *c.Exchange)
	}
	if c.ToTrade == nil {
		query = query.Where("to_trade IS NULL")
	} else {
		query = query.Where("to_trade = ?", *c.ToTrade)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// BySymbol returns the contract of a class with the given symbol, or nil.
func (s *Service) BySymbol(symbol string, ct models.ContractType) (*models.Contract, error) {
	var contract models.Contract
	err := s.db.Where("contract_type = ? AND symbol = ?", ct, symbol).First(&contract).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

// ByID returns a contract by primary key, or nil.
func (s *Service) ByID(id uint) (*models.Contract, error) {
	var contract models.Contract
	err := s.db.First(&contract, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

// Create persists a new contract row.
func (s *Service) Create(c *models.Contract) error {
	return s.db.Create(c).Error
}

// Delete removes a contract. Options that reference it as their underlying go
// with it; their bars stay (bars are append-only history).
func (s *Service) Delete(c *models.Contract) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("underlying_id = ?", c.ID).Delete(&models.Contract{}).Error; err != nil {
			return err
		}
		return tx.Delete(c).Error
	})
}

// OnboardStock resolves a stock against the gateway and stores it. Called
// asynchronously from the API: the caller has already answered 202.
func (s *Service) OnboardStock(ctx context.Context, symbol string, exchange *string, currency string, toTrade bool) error {
	return s.sessions.WithSession(ctx, func(sess *gateway.Session) error {
		lookup := gateway.Contract{
			Symbol:   symbol,
			SecType:  gateway.SecTypeStock,
			Currency: currency,
		}
		if exchange != nil {
			lookup.Exchange = *exchange
		}

		details, err := sess.Conn.ContractDetails(ctx, lookup)
		if err != nil {
			return fmt.Errorf("failed to resolve stock %s: %w", symbol, err)
		}
		conID := details[0].Contract.ConID

		stock := models.Contract{
			Symbol:       symbol,
			ContractType: models.ContractStock,
			Exchange:     exchange,
			Currency:     currency,
			ConID:        &conID,
			ToTrade:      &toTrade,
		}
		if err := s.db.Create(&stock).Error; err != nil {
			return fmt.Errorf("failed to store stock %s: %w", symbol, err)
		}

		log.Printf("Onboarded stock %s (conId %d)", symbol, conID)
		return nil
	})
}

// GatewayContract translates a stored contract into its wire form. The second
// return is false when the contract should be skipped rather than requested:
// an option whose expiration has already elapsed, or a same-day option before
// the market opens.
func (s *Service) GatewayContract(c models.Contract) (gateway.Contract, bool, error) {
	exchange := ""
	if c.Exchange != nil {
		exchange = *c.Exchange
	}

	switch c.ContractType {
	case models.ContractStock:
		var conID int64
		if c.ConID != nil {
			conID = *c.ConID
		}
		return gateway.Contract{
			Symbol:   c.Symbol,
			SecType:  gateway.SecTypeStock,
			Exchange: exchange,
			Currency: c.Currency,
			ConID:    conID,
		}, true, nil

	case models.ContractOption:
		if c.LastTradeDate == nil {
			return gateway.Contract{}, false, fmt.Errorf("option %d has no expiration date", c.ID)
		}
		now := s.now()
		if c.LastTradeDate.Format("20060102") < now.Format("20060102") || calendar.BeforeMarketOpen(now) {
			return gateway.Contract{}, false, nil
		}
		strike, _ := c.Strike.Decimal.Float64()
		return gateway.Contract{
			Symbol:        c.Symbol,
			SecType:       gateway.SecTypeOption,
			Exchange:      exchange,
			Currency:      c.Currency,
			LastTradeDate: c.LastTradeDate.Format("20060102"),
			Strike:        strike,
			Right:         wireRight(c.Right),
		}, true, nil

	case models.ContractFuture:
		return gateway.Contract{
			Symbol:   c.Symbol,
			SecType:  gateway.SecTypeFuture,
			Exchange: exchange,
		}, true, nil

	case models.ContractForex:
		return gateway.Contract{
			Symbol:   c.Symbol,
			SecType:  gateway.SecTypeForex,
			Currency: c.Currency,
		}, true, nil

	case models.ContractIndex:
		return gateway.Contract{
			Symbol:   c.Symbol,
			SecType:  gateway.SecTypeIndex,
			Exchange: exchange,
		}, true, nil
	}

	return gateway.Contract{}, false, fmt.Errorf("invalid contract type %q", c.ContractType)
}

func wireRight(r models.Right) string {
	if r == models.RightPut {
		return "P"
	}
	return "C"
}
