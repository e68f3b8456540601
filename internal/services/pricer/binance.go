package pricer

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/carteira/internal/domain"
)

// BinanceSource prices assets with Binance spot tickers, symbol <ASSET><FIAT>.
type BinanceSource struct {
	client *binance.Client
	fiat   string
	assets []string
	now    clock
}

func NewBinanceSource(client *binance.Client, fiat string, assets []string) *BinanceSource {
	return &BinanceSource{
		client: client,
		fiat:   domain.NormalizeAsset(fiat),
		assets: normalizeAssets(fiat, assets),
		now:    time.Now,
	}
}

// FetchQuotes lists every spot price in one call and keeps the configured symbols.
func (p *BinanceSource) FetchQuotes(ctx context.Context) (domain.Quotes, error) {
	if p.client == nil {
		return domain.Quotes{}, errors.New("binance client is nil")
	}

	prices, err := p.client.NewListPricesService().Do(ctx)
	if err != nil {
		return domain.Quotes{}, errors.Wrap(err, "binance: list prices")
	}

	bySymbol := make(map[string]string, len(prices))
	for _, price := range prices {
		bySymbol[price.Symbol] = price.Price
	}

	snap := newSnapshot(p.fiat, p.assets, p.now)
	for _, asset := range p.assets {
		pair := domain.Pair{From: asset, To: p.fiat}
		if raw, ok := bySymbol[pair.Symbol()]; ok {
			if err := snap.add(asset, raw); err != nil {
				return domain.Quotes{}, errors.Wrap(err, "binance")
			}
		}
	}

	if len(snap.quotes.Prices) == 0 {
		return domain.Quotes{}, errors.Errorf("binance API returned no prices for %v against %s", p.assets, p.fiat)
	}
	return snap.quotes, nil
}
