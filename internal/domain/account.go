package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// FiatScale is the number of fractional digits kept for fiat amounts.
	FiatScale int32 = 2
	// QuantityScale is the number of fractional digits kept for asset quantities.
	QuantityScale int32 = 8
)

// Account wallet owner's fiat balance.
type Account struct {
	Identity string          `json:"identity"`
	Balance  decimal.Decimal `json:"balance"`
}

// Holding quantity of a non-fiat asset owned by an identity.
// A zero quantity is equivalent to an absent row.
type Holding struct {
	Identity string          `json:"identity"`
	Asset    string          `json:"asset"`
	Quantity decimal.Decimal `json:"quantity"`
}

// IsEmpty reports whether the holding has no quantity left.
func (h Holding) IsEmpty() bool {
	return h.Quantity.IsZero()
}

// NormalizeAsset returns the canonical (upper-case, trimmed) asset code.
func NormalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// FitsScale reports whether v carries no more than scale fractional digits.
func FitsScale(v decimal.Decimal, scale int32) bool {
	return v.Equal(v.Truncate(scale))
}
