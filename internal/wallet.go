package internal

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vadiminshakov/carteira/config"
	"github.com/vadiminshakov/carteira/internal/domain"
	"github.com/vadiminshakov/carteira/internal/events"
	"github.com/vadiminshakov/carteira/internal/services/ledger"
	"github.com/vadiminshakov/carteira/internal/storage/journal"
)

// Wallet wires the ledger engine to its store, quote source, journal and
// event broadcaster.
type Wallet struct {
	Engine *ledger.Engine
	Events *events.LedgerBroadcaster

	store   Store
	journal *journal.WALStore
	logger  *zap.Logger
}

// NewWallet opens every collaborator named by conf and builds the engine.
func NewWallet(ctx context.Context, conf config.Config, logger *zap.Logger) (*Wallet, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	quotes, err := NewQuoteSource(conf, logger)
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, conf.Store, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open ledger store")
	}

	w := &Wallet{
		Events: events.NewLedgerBroadcaster(256),
		store:  store,
		logger: logger,
	}
	opts := []ledger.Option{ledger.WithPublisher(w.Events)}

	if conf.Journal != "" {
		w.journal, err = journal.NewWALStore(conf.Journal)
		if err != nil {
			_ = store.Close()
			return nil, errors.Wrap(err, "failed to open ledger journal")
		}
		opts = append(opts, ledger.WithJournal(w.journal))
	}

	w.Engine, err = ledger.NewEngine(store, quotes, conf.Rules, logger, opts...)
	if err != nil {
		_ = w.Close()
		return nil, errors.Wrap(err, "failed to create ledger engine")
	}

	logger.Info("wallet ready",
		zap.String("store", conf.Store.Driver),
		zap.String("quotes", conf.Quotes.Provider),
		zap.String("fiat", conf.Fiat),
		zap.Uint64("journal_index", w.journal.CurrentIndex()))
	return w, nil
}

// Replay returns the journaled events after seq.
func (w *Wallet) Replay(seq uint64) ([]domain.LedgerEventRecord, error) {
	if w.journal == nil {
		return nil, nil
	}
	return w.journal.EventsAfter(seq)
}

// Run logs published ledger events until ctx is done.
func (w *Wallet) Run(ctx context.Context) error {
	sub := w.Events.Subscribe()
	defer w.Events.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("context done, stopping ledger event loop")
			return ctx.Err()
		case e, ok := <-sub:
			if !ok {
				return nil
			}
			w.logger.Info("ledger event",
				zap.String("id", e.ID),
				zap.String("kind", string(e.Kind)),
				zap.String("identity", e.Identity),
				zap.String("counterparty", e.Counterparty),
				zap.String("asset", e.Asset),
				zap.String("fiat_amount", e.FiatAmount.String()),
				zap.String("quantity", e.Quantity.String()))
		}
	}
}

// Close releases the store and journal.
func (w *Wallet) Close() error {
	w.Events.Close()

	var err error
	if w.journal != nil {
		if jerr := w.journal.Close(); jerr != nil {
			err = multierr.Append(err, errors.Wrap(jerr, "close journal"))
		}
	}
	if serr := w.store.Close(); serr != nil {
		err = multierr.Append(err, errors.Wrap(serr, "close store"))
	}
	return err
}
