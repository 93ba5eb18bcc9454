package storage

import (
	"github.com/shopspring/decimal"

	"github.com/qklafk/deribit-price-tracker/internal/instrument"
)

// PriceRecord is one observed index price. Records are immutable once
// inserted; ID is assigned by the store and never reused.
type PriceRecord struct {
	ID         int64
	Ticker     instrument.Instrument
	Price      decimal.Decimal
	ObservedAt int64
}
