// Package pricer provides the quote sources the ledger engine prices buys and sells with.
// Every source returns one snapshot of fiat unit prices per call and never retries.
package pricer

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/carteira/internal/domain"
)

type clock func() time.Time

// snapshot accumulates parsed prices for the configured assets.
type snapshot struct {
	quotes domain.Quotes
	wanted map[string]struct{}
}

func newSnapshot(fiat string, assets []string, now clock) snapshot {
	wanted := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		wanted[domain.NormalizeAsset(a)] = struct{}{}
	}
	return snapshot{quotes: domain.NewQuotes(domain.NormalizeAsset(fiat), now().UTC()), wanted: wanted}
}

// add parses raw and stores it when asset was requested. Non-positive prices
// read as unquoted; an unparseable price fails the whole snapshot.
func (s snapshot) add(asset, raw string) error {
	asset = domain.NormalizeAsset(asset)
	if _, ok := s.wanted[asset]; !ok {
		return nil
	}
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return errors.Wrapf(err, "parse %s price %q", asset, raw)
	}
	s.quotes.Set(asset, price)
	return nil
}

func normalizeAssets(fiat string, assets []string) []string {
	fiat = domain.NormalizeAsset(fiat)
	out := make([]string, 0, len(assets))
	seen := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		a = domain.NormalizeAsset(a)
		if a == "" || a == fiat {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
