package pricer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/carteira/internal/domain"
	"golang.org/x/sync/errgroup"
)

// BybitSource requests one V5 spot ticker per asset in parallel.
type BybitSource struct {
	client *bybit.Client
	fiat   string
	assets []string
	now    clock
}

func NewBybitSource(client *bybit.Client, fiat string, assets []string) *BybitSource {
	return &BybitSource{
		client: client,
		fiat:   domain.NormalizeAsset(fiat),
		assets: normalizeAssets(fiat, assets),
		now:    time.Now,
	}
}

// FetchQuotes fails as a whole if any ticker request fails. The bybit client
// is not context aware, so an expired ctx abandons the in-flight requests.
func (p *BybitSource) FetchQuotes(ctx context.Context) (domain.Quotes, error) {
	if p.client == nil {
		return domain.Quotes{}, errors.New("bybit client is nil")
	}

	snap := newSnapshot(p.fiat, p.assets, p.now)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, asset := range p.assets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pair := domain.Pair{From: asset, To: p.fiat}
			symbol := bybit.SymbolV5(pair.Symbol())

			result, err := p.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
				Category: "spot",
				Symbol:   &symbol,
			})
			if err != nil {
				return errors.Wrapf(err, "bybit: tickers for %s", pair.String())
			}
			if result == nil || len(result.Result.Spot.List) == 0 {
				return fmt.Errorf("bybit API returned empty prices for %s", pair.String())
			}

			mu.Lock()
			defer mu.Unlock()
			return errors.Wrap(snap.add(asset, result.Result.Spot.List[0].LastPrice), "bybit")
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case <-ctx.Done():
		return domain.Quotes{}, errors.Wrap(ctx.Err(), "bybit: fetch abandoned")
	case err := <-done:
		if err != nil {
			return domain.Quotes{}, err
		}
	}

	return snap.quotes, nil
}
