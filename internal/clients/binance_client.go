// Package clients constructs the exchange SDK clients the quote sources read from.
package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient returns a Binance client. Empty credentials give
// access to the public market data endpoints only.
func NewBinanceClient(apiKey, apiSecret string) *binance.Client {
	return binance.NewClient(apiKey, apiSecret)
}
