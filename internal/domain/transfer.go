package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transfer immutable record of fiat moved between two accounts.
type Transfer struct {
	ID        string          `json:"id"`
	Sender    string          `json:"sender"`
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"ts"`
}

// Involves reports whether identity is the sender or the recipient.
func (t Transfer) Involves(identity string) bool {
	return t.Sender == identity || t.Recipient == identity
}

// Portfolio read-only view of an identity's committed ledger state.
type Portfolio struct {
	Account         Account    `json:"account"`
	Holdings        []Holding  `json:"holdings"`
	RecentTransfers []Transfer `json:"recent_transfers"`
}

// Holding returns the quantity held for asset, zero when absent.
func (p Portfolio) Holding(asset string) decimal.Decimal {
	for _, h := range p.Holdings {
		if h.Asset == asset {
			return h.Quantity
		}
	}
	return decimal.Zero
}

// Value returns the fiat balance plus every holding priced with quotes.
// Holdings without a quote are left out and reported in missing.
func (p Portfolio) Value(quotes Quotes) (total decimal.Decimal, missing []string) {
	total = p.Account.Balance
	for _, h := range p.Holdings {
		price, ok := quotes.Price(h.Asset)
		if !ok {
			missing = append(missing, h.Asset)
			continue
		}
		total = total.Add(h.Quantity.Mul(price))
	}
	return total.Truncate(FiatScale), missing
}
