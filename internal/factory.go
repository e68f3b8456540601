package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/carteira/config"
	"github.com/vadiminshakov/carteira/internal/clients"
	"github.com/vadiminshakov/carteira/internal/services/ledger"
	"github.com/vadiminshakov/carteira/internal/services/pricer"
	"github.com/vadiminshakov/carteira/internal/storage/memstore"
	"github.com/vadiminshakov/carteira/internal/storage/pebblestore"
	"github.com/vadiminshakov/carteira/internal/storage/sqlstore"
	"github.com/vadiminshakov/carteira/pkg/retrier"
)

// NewQuoteSource creates the quote source selected by cfg.Quotes.Provider.
// This is the single point of truth for dispatching to provider implementations.
func NewQuoteSource(cfg config.Config, logger *zap.Logger) (ledger.QuoteSource, error) {
	assets := cfg.Rules.SupportedAssets

	switch cfg.Quotes.Provider {
	case config.ProviderAwesomeAPI:
		var opts []pricer.AwesomeAPIOption
		if cfg.Quotes.BaseURL != "" {
			opts = append(opts, pricer.WithBaseURL(cfg.Quotes.BaseURL))
		}
		return pricer.NewAwesomeAPISource(cfg.Fiat, assets, opts...), nil
	case config.ProviderBinance:
		return pricer.NewBinanceSource(clients.NewBinanceClient("", ""), cfg.Fiat, assets), nil
	case config.ProviderBybit:
		return pricer.NewBybitSource(clients.NewBybitClient("", ""), cfg.Fiat, assets), nil
	case config.ProviderHyperliquid:
		client, err := clients.NewHyperliquidClient(cfg.Quotes.HyperliquidKey, cfg.Quotes.BaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create hyperliquid client")
		}
		if client.Ephemeral() {
			logger.Info("hyperliquid quotes use a throwaway signing key",
				zap.String("address", client.AccountAddress()))
		}
		return pricer.NewHyperliquidSource(client.Info(), cfg.Fiat, assets), nil
	case config.ProviderStatic:
		return pricer.NewStaticSource(cfg.Fiat, cfg.Quotes.StaticPrices), nil
	default:
		return nil, fmt.Errorf("unsupported quote provider: %s", cfg.Quotes.Provider)
	}
}

// Store is a ledger store that owns resources.
type Store interface {
	ledger.Store
	io.Closer
}

type nopCloser struct{ *memstore.Store }

func (nopCloser) Close() error { return nil }

// OpenStore opens the configured store backend. Disk backends are retried
// while another process still holds the files.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	if cfg.Driver == config.DriverMemory {
		logger.Warn("using in-memory ledger store, state is lost on exit")
		return nopCloser{memstore.New()}, nil
	}

	r := retrier.New(
		retrier.WithMaxRetries(3),
		retrier.WithInitialInterval(500*time.Millisecond),
		retrier.WithOnRetry(func(attempt int, err error, wait time.Duration) {
			logger.Warn("ledger store unavailable, retrying",
				zap.String("driver", cfg.Driver),
				zap.String("path", cfg.Path),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
		}),
	)

	return retrier.DoWithData(r, ctx, func(ctx context.Context) (Store, error) {
		switch cfg.Driver {
		case config.DriverPebble:
			s, err := pebblestore.Open(cfg.Path)
			if err != nil {
				return nil, err
			}
			return s, nil
		case config.DriverSQLite:
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, retrier.Permanent(errors.Wrap(err, "create sqlite directory"))
			}
			s, err := sqlstore.Open(cfg.Path)
			if err != nil {
				return nil, err
			}
			return s, nil
		default:
			return nil, retrier.Permanent(fmt.Errorf("unsupported store driver: %s", cfg.Driver))
		}
	})
}
