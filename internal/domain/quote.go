package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quotes snapshot of fiat unit prices keyed by asset code.
// A snapshot is valid only for the operation that fetched it.
type Quotes struct {
	Fiat      string                     `json:"fiat"`
	Prices    map[string]decimal.Decimal `json:"prices"`
	FetchedAt time.Time                  `json:"fetched_at"`
}

// NewQuotes creates an empty snapshot for fiat.
func NewQuotes(fiat string, fetchedAt time.Time) Quotes {
	return Quotes{Fiat: fiat, Prices: make(map[string]decimal.Decimal), FetchedAt: fetchedAt}
}

// Set stores a price, ignoring non-positive values.
func (q Quotes) Set(asset string, price decimal.Decimal) {
	if !price.IsPositive() {
		return
	}
	q.Prices[NormalizeAsset(asset)] = price
}

// Price returns the unit price of asset if it is quoted and positive.
func (q Quotes) Price(asset string) (decimal.Decimal, bool) {
	price, ok := q.Prices[NormalizeAsset(asset)]
	if !ok || !price.IsPositive() {
		return decimal.Zero, false
	}
	return price, true
}
