package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DataType identifies which side or kind of quote a bar summarizes.
type DataType string

const (
	DataBid    DataType = "BID"
	DataAsk    DataType = "ASK"
	DataTrades DataType = "TRADES"
)

// ParseDataType validates a price-type coming from a query parameter.
func ParseDataType(s string) (DataType, error) {
	switch DataType(s) {
	case DataBid, DataAsk, DataTrades:
		return DataType(s), nil
	}
	return "", fmt.Errorf("invalid data type %q", s)
}

// PriceBar is one OHLCV observation over a closed bar window. Bars are
// append-only: the synchronizer creates them, nothing updates or deletes them.
//
// The composite unique index is what makes concurrent sync jobs for the same
// (contract, data type, bar size) safe: both may decide a timestamp is new,
// but only one insert lands (the other is dropped by ON CONFLICT DO NOTHING).
type PriceBar struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ContractID uint      `gorm:"not null;uniqueIndex:idx_bar_observation" json:"contract_id"`
	Contract   Contract  `gorm:"foreignKey:ContractID" json:"-"`
	Date       time.Time `gorm:"not null;uniqueIndex:idx_bar_observation" json:"date"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	BarSize    int       `gorm:"not null;uniqueIndex:idx_bar_observation" json:"bar_size"` // minutes
	DataType   DataType  `gorm:"not null;uniqueIndex:idx_bar_observation" json:"data_type"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MigratePriceBarModels runs database migrations for price bar models
func MigratePriceBarModels(db *gorm.DB) error {
	return db.AutoMigrate(&PriceBar{})
}
