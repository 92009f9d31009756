// Package marketdata owns instruments and their daily OHLCV bars: reference
// types, the Twelve Data collector and the CSV importer.
package marketdata

import (
	"time"

	"github.com/shopspring/decimal"
)

// Symbol identifies one tradable instrument on a venue.
type Symbol struct {
	ID       int64
	Code     string
	Exchange string
	Name     string
	IsActive bool
}

// DailyBar is one day's OHLCV for a symbol. Prices carry 4 decimal places.
type DailyBar struct {
	SymbolID int64
	Date     time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   int64
}

// Day truncates t to midnight UTC so bar dates compare and hash consistently.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
