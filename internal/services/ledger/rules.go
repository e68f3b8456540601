package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/carteira/internal/domain"
)

const (
	defaultQuoteTimeout    = 5 * time.Second
	defaultRecentTransfers = 5
)

// Rules business limits the engine enforces.
type Rules struct {
	MinimumTransactionValue decimal.Decimal
	SupportedAssets         []string
	InitialBalanceMin       decimal.Decimal
	InitialBalanceMax       decimal.Decimal
	QuoteTimeout            time.Duration
	RecentTransfers         int
}

// DefaultRules mirrors the reference deployment: BRL wallet, 0.01 minimum.
func DefaultRules() Rules {
	return Rules{
		MinimumTransactionValue: decimal.RequireFromString("0.01"),
		SupportedAssets:         []string{"BTC", "USD", "EUR", "GBP", "CNY"},
		InitialBalanceMin:       decimal.NewFromInt(1000),
		InitialBalanceMax:       decimal.NewFromInt(10000),
		QuoteTimeout:            defaultQuoteTimeout,
		RecentTransfers:         defaultRecentTransfers,
	}
}

func (r Rules) validate() error {
	if !r.MinimumTransactionValue.IsPositive() {
		return fmt.Errorf("minimum transaction value must be positive, got %s", r.MinimumTransactionValue)
	}
	if !domain.FitsScale(r.MinimumTransactionValue, domain.FiatScale) {
		return fmt.Errorf("minimum transaction value %s has more than %d fractional digits",
			r.MinimumTransactionValue, domain.FiatScale)
	}
	if len(r.SupportedAssets) == 0 {
		return fmt.Errorf("at least one supported asset is required")
	}
	if r.InitialBalanceMin.IsNegative() || r.InitialBalanceMax.LessThan(r.InitialBalanceMin) {
		return fmt.Errorf("invalid initial balance range %s..%s", r.InitialBalanceMin, r.InitialBalanceMax)
	}
	if r.QuoteTimeout < 0 {
		return fmt.Errorf("quote timeout must not be negative, got %s", r.QuoteTimeout)
	}
	return nil
}

func (r Rules) withDefaults() Rules {
	if r.QuoteTimeout == 0 {
		r.QuoteTimeout = defaultQuoteTimeout
	}
	if r.RecentTransfers <= 0 {
		r.RecentTransfers = defaultRecentTransfers
	}
	assets := make([]string, 0, len(r.SupportedAssets))
	for _, a := range r.SupportedAssets {
		if code := domain.NormalizeAsset(a); code != "" {
			assets = append(assets, code)
		}
	}
	r.SupportedAssets = assets
	return r
}
