package pricer

import (
	"context"
	"time"

	"github.com/pkg/errors"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/vadiminshakov/carteira/internal/domain"
)

// HyperliquidSource prices assets with mid prices from the Hyperliquid public Info API.
// Mids are quoted in USD and keyed by base coin (e.g. "BTC").
type HyperliquidSource struct {
	info   *hyperliquid.Info
	fiat   string
	assets []string
	now    clock
}

func NewHyperliquidSource(info *hyperliquid.Info, fiat string, assets []string) *HyperliquidSource {
	return &HyperliquidSource{
		info:   info,
		fiat:   domain.NormalizeAsset(fiat),
		assets: normalizeAssets(fiat, assets),
		now:    time.Now,
	}
}

func (p *HyperliquidSource) FetchQuotes(ctx context.Context) (domain.Quotes, error) {
	if p.info == nil {
		return domain.Quotes{}, errors.New("hyperliquid info client is nil")
	}

	mids, err := p.info.AllMids(ctx)
	if err != nil {
		return domain.Quotes{}, errors.Wrap(err, "hyperliquid: all mids")
	}

	snap := newSnapshot(p.fiat, p.assets, p.now)
	for coin, mid := range mids {
		if mid == "" {
			continue
		}
		if err := snap.add(coin, mid); err != nil {
			return domain.Quotes{}, errors.Wrap(err, "hyperliquid")
		}
	}

	if len(snap.quotes.Prices) == 0 {
		return domain.Quotes{}, errors.Errorf("hyperliquid API returned no mids for %v", p.assets)
	}
	return snap.quotes, nil
}
