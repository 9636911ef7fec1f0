package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ContractType is the class tag discriminating the contract variants stored
// in the single contracts table.
type ContractType string

const (
	ContractStock  ContractType = "Stock"
	ContractOption ContractType = "Option"
	ContractFuture ContractType = "Future"
	ContractForex  ContractType = "Forex"
	ContractIndex  ContractType = "Index"
)

// ParseContractType validates a class tag coming from an API path or a job
// payload. Unknown tags are rejected immediately, never retried.
func ParseContractType(s string) (ContractType, error) {
	switch ContractType(s) {
	case ContractStock, ContractOption, ContractFuture, ContractForex, ContractIndex:
		return ContractType(s), nil
	}
	return "", fmt.Errorf("invalid contract type %q", s)
}

// Right designates an option contract side.
type Right string

const (
	RightCall Right = "CALL"
	RightPut  Right = "PUT"
)

// ParseRight validates an option right coming from a query parameter.
func ParseRight(s string) (Right, error) {
	switch Right(s) {
	case RightCall, RightPut:
		return Right(s), nil
	}
	return "", fmt.Errorf("invalid option right %q", s)
}

// Contract represents one tradable instrument. All variants share this row
// shape; ContractType discriminates and the option/stock specific columns are
// nullable for the other classes.
type Contract struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	Symbol       string       `gorm:"index;not null" json:"symbol"`
	Exchange     *string      `json:"exchange"`
	Currency     string       `gorm:"not null" json:"currency"`
	ContractType ContractType `gorm:"index;not null" json:"contract_type"`
	ToTrade      *bool        `gorm:"default:true" json:"to_trade"`

	// Stock fields
	ConID            *int64   `gorm:"uniqueIndex" json:"con_id,omitempty"`
	SpreadAroundSpot *float64 `gorm:"default:2" json:"spread_around_spot,omitempty"`

	// Option fields. UnderlyingID is set once at creation and never changes;
	// deleting the underlying removes its dependent options.
	LastTradeDate *time.Time          `gorm:"index" json:"last_trade_date,omitempty"`
	Strike        decimal.NullDecimal `gorm:"type:decimal(15,4)" json:"strike,omitempty"`
	Right         Right               `json:"right,omitempty"`
	UnderlyingID  *uint               `gorm:"index" json:"underlying_id,omitempty"`
	Underlying    *Contract           `gorm:"foreignKey:UnderlyingID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tradable reports the to_trade flag, treating the column's NULL as true the
// way the legacy rows expect.
func (c *Contract) Tradable() bool {
	return c.ToTrade == nil || *c.ToTrade
}

// MigrateContractModels runs database migrations for contract models
func MigrateContractModels(db *gorm.DB) error {
	return db.AutoMigrate(&Contract{})
}
