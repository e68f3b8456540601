package pricer

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/carteira/internal/domain"
)

// StaticSource serves a fixed price table that can be changed at runtime.
// It backs offline simulation and tests.
type StaticSource struct {
	mu     sync.RWMutex
	fiat   string
	prices map[string]decimal.Decimal
	err    error
	delay  time.Duration
	calls  int
}

func NewStaticSource(fiat string, prices map[string]decimal.Decimal) *StaticSource {
	s := &StaticSource{fiat: domain.NormalizeAsset(fiat), prices: make(map[string]decimal.Decimal, len(prices))}
	for asset, price := range prices {
		s.prices[domain.NormalizeAsset(asset)] = price
	}
	return s
}

// SetPrice replaces the price of one asset.
func (s *StaticSource) SetPrice(asset string, price decimal.Decimal) {
	s.mu.Lock()
	s.prices[domain.NormalizeAsset(asset)] = price
	s.mu.Unlock()
}

// Remove drops an asset from the table.
func (s *StaticSource) Remove(asset string) {
	s.mu.Lock()
	delete(s.prices, domain.NormalizeAsset(asset))
	s.mu.Unlock()
}

// FailWith makes every following fetch return err. A nil err restores normal behaviour.
func (s *StaticSource) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// SetDelay makes fetches wait d before answering, or until ctx is done.
func (s *StaticSource) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// Calls reports how many fetches have been made.
func (s *StaticSource) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

func (s *StaticSource) FetchQuotes(ctx context.Context) (domain.Quotes, error) {
	s.mu.Lock()
	s.calls++
	delay, err := s.delay, s.err
	s.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return domain.Quotes{}, ctx.Err()
		case <-timer.C:
		}
	}
	if err != nil {
		return domain.Quotes{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	q := domain.NewQuotes(s.fiat, time.Now().UTC())
	for asset, price := range s.prices {
		q.Set(asset, price)
	}
	return q, nil
}
