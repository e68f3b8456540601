// Command carteira runs the simulated multi-asset wallet console.
// Accounts hold a fiat balance and crypto or foreign-currency holdings,
// priced from a live quote provider and persisted in a local ledger store.
//
// Usage:
//
//	carteira --config carteira.yaml
//	carteira --identity alice --store sqlite --store-path ./data/ledger.db
//	carteira --http :8080 (also serves the read-only dashboard)
//
// Optional environment variables:
//
//	CARTEIRA_STORE_DRIVER, CARTEIRA_STORE_PATH, CARTEIRA_JOURNAL_DIR
//	CARTEIRA_QUOTES_PROVIDER, CARTEIRA_LOG_LEVEL, CARTEIRA_HTTP_ADDR
//	HYPERLIQUID_PRIVATE_KEY
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vadiminshakov/carteira/config"
	"github.com/vadiminshakov/carteira/dashboard"
	"github.com/vadiminshakov/carteira/internal"
	"github.com/vadiminshakov/carteira/internal/console"
	"github.com/vadiminshakov/carteira/internal/logging"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	// the console owns the terminal, so logs go to the file only
	logger, err := logging.NewFileOnly(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wallet, err := internal.NewWallet(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start wallet", zap.Error(err))
		log.Fatal(err)
	}

	go func() {
		if err := wallet.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("ledger event loop stopped", zap.Error(err))
		}
	}()

	if cfg.HTTP.Addr != "" {
		go serveDashboard(ctx, cfg, wallet, logger)
	}

	runErr := console.New(wallet.Engine, cfg.Fiat, os.Stdout, logger).Run(ctx, cfg.Identity)
	stop()

	if err := wallet.Close(); err != nil {
		logger.Error("failed to close wallet", zap.Error(err))
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("console stopped", zap.Error(runErr))
		log.Fatal(runErr)
	}
	logger.Info("wallet stopped")
}

func serveDashboard(ctx context.Context, cfg config.Config, wallet *internal.Wallet, logger *zap.Logger) {
	opts := []dashboard.Option{dashboard.WithAllowedOrigins(cfg.HTTP.AllowedOrigins...)}

	var srv *dashboard.Server
	if cfg.Journal != "" {
		srv = dashboard.NewServer(cfg.HTTP.Addr, wallet.Engine, wallet, wallet.Events, logger, opts...)
	} else {
		srv = dashboard.NewServer(cfg.HTTP.Addr, wallet.Engine, nil, wallet.Events, logger, opts...)
	}

	var err error
	if len(cfg.HTTP.TLSDomains) > 0 {
		err = srv.StartWithAutoTLS(ctx, cfg.HTTP.TLSDomains, cfg.HTTP.CertCache)
	} else {
		err = srv.Start(ctx)
	}
	if err != nil {
		logger.Error("dashboard stopped", zap.Error(err))
	}
}
