// Package ledger implements the transaction engine: it validates buy, sell and
// transfer requests, prices them with a fresh quote snapshot and applies every
// balance/holding mutation as one atomic, row-locked store transaction.
package ledger

import (
	"context"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/carteira/internal/domain"
	"go.uber.org/zap"
)

// Engine is safe for concurrent use.
type Engine struct {
	store     Store
	quotes    QuoteSource
	rules     Rules
	assets    map[string]struct{}
	logger    *zap.Logger
	journal   Journal
	publisher Publisher
	now       func() time.Time
	draw      func(min, max decimal.Decimal) decimal.Decimal
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithJournal records every committed operation in j.
func WithJournal(j Journal) Option {
	return func(e *Engine) {
		e.journal = j
	}
}

// WithPublisher announces every committed operation on p.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithClock overrides the source of transfer and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithBalanceDraw overrides how OpenAccount picks an initial balance.
func WithBalanceDraw(draw func(min, max decimal.Decimal) decimal.Decimal) Option {
	return func(e *Engine) {
		e.draw = draw
	}
}

// NewEngine creates an engine over store and quotes.
func NewEngine(store Store, quotes QuoteSource, rules Rules, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	if quotes == nil {
		return nil, errors.New("quote source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	rules = rules.withDefaults()
	if err := rules.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid ledger rules")
	}

	assets := make(map[string]struct{}, len(rules.SupportedAssets))
	for _, a := range rules.SupportedAssets {
		assets[a] = struct{}{}
	}

	e := &Engine{
		store:  store,
		quotes: quotes,
		rules:  rules,
		assets: assets,
		logger: logger,
		now:    time.Now,
		draw:   uniformBalance,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Rules returns the effective business rules.
func (e *Engine) Rules() Rules {
	r := e.rules
	r.SupportedAssets = slices.Clone(r.SupportedAssets)
	return r
}

// Quotes fetches a fresh quote snapshot under the engine's timeout.
func (e *Engine) Quotes(ctx context.Context) (domain.Quotes, error) {
	return e.fetchQuotes(ctx)
}

// Portfolio returns committed balance, holdings and recent transfers of identity.
func (e *Engine) Portfolio(ctx context.Context, identity string) (domain.Portfolio, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return domain.Portfolio{}, domain.ErrInvalidIdentity
	}

	acc, err := e.store.Account(ctx, identity)
	if err != nil {
		return domain.Portfolio{}, e.classify("portfolio", err)
	}
	holdings, err := e.store.Holdings(ctx, identity)
	if err != nil {
		return domain.Portfolio{}, e.classify("portfolio", err)
	}
	slices.SortFunc(holdings, func(a, b domain.Holding) int {
		return strings.Compare(a.Asset, b.Asset)
	})
	transfers, err := e.store.RecentTransfers(ctx, identity, e.rules.RecentTransfers)
	if err != nil {
		return domain.Portfolio{}, e.classify("portfolio", err)
	}

	return domain.Portfolio{Account: acc, Holdings: holdings, RecentTransfers: transfers}, nil
}

// checkFiat validates a fiat amount against the minimum, then its scale.
// Zero and negative amounts are below any minimum.
func (e *Engine) checkFiat(amount decimal.Decimal) error {
	if amount.LessThan(e.rules.MinimumTransactionValue) {
		return errors.Wrapf(domain.ErrBelowMinimum, "amount %s is below minimum %s",
			amount, e.rules.MinimumTransactionValue)
	}
	if !domain.FitsScale(amount, domain.FiatScale) {
		return errors.Wrapf(domain.ErrInvalidAmount, "fiat amount %s has more than %d decimals",
			amount, domain.FiatScale)
	}
	return nil
}

func (e *Engine) checkAsset(asset string) error {
	if _, ok := e.assets[asset]; !ok {
		return errors.Wrapf(domain.ErrUnsupportedAsset, "asset %q", asset)
	}
	return nil
}

func checkIdentity(identity string) (string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", domain.ErrInvalidIdentity
	}
	return identity, nil
}

// fetchQuotes enforces the hard timeout even against sources that ignore ctx.
// Every failure collapses to ErrQuoteUnavailable.
func (e *Engine) fetchQuotes(ctx context.Context) (domain.Quotes, error) {
	qctx, cancel := context.WithTimeout(ctx, e.rules.QuoteTimeout)
	defer cancel()

	type result struct {
		quotes domain.Quotes
		err    error
	}
	done := make(chan result, 1)
	go func() {
		q, err := e.quotes.FetchQuotes(qctx)
		done <- result{quotes: q, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return domain.Quotes{}, errors.Wrapf(domain.ErrQuoteUnavailable, "fetch quotes: %v", r.err)
		}
		return r.quotes, nil
	case <-qctx.Done():
		return domain.Quotes{}, errors.Wrapf(domain.ErrQuoteUnavailable, "fetch quotes: %v", qctx.Err())
	}
}

func (e *Engine) price(ctx context.Context, asset string) (decimal.Decimal, error) {
	quotes, err := e.fetchQuotes(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	price, ok := quotes.Price(asset)
	if !ok {
		return decimal.Zero, errors.Wrapf(domain.ErrQuoteUnavailable, "no price for %s", asset)
	}
	return price, nil
}

// atomically runs fn inside one store transaction over identities. Any error
// from fn rolls the transaction back; a failed commit is a persistence error.
func (e *Engine) atomically(ctx context.Context, op string, identities []string, fn func(tx Tx) error) error {
	tx, err := e.store.Begin(ctx, identities...)
	if err != nil {
		return domain.NewPersistenceError(op+": begin", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			e.logger.Error("rollback failed", zap.String("op", op), zap.Error(rbErr))
		}
		return e.classify(op, err)
	}

	if err := tx.Commit(); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			e.logger.Error("rollback after failed commit", zap.String("op", op), zap.Error(rbErr))
		}
		e.logger.Error("commit failed", zap.String("op", op), zap.Error(err))
		return domain.NewPersistenceError(op+": commit", err)
	}

	return nil
}

var businessErrors = []error{
	domain.ErrBelowMinimum,
	domain.ErrInsufficientFunds,
	domain.ErrInsufficientAssetBalance,
	domain.ErrRecipientNotFound,
	domain.ErrAccountNotFound,
	domain.ErrAccountExists,
	domain.ErrInvalidAmount,
}

// classify passes business errors through and turns everything else into a
// persistence error.
func (e *Engine) classify(op string, err error) error {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return domain.NewPersistenceError(op, err)
}

func (e *Engine) reject(op, identity string, err error) error {
	e.logger.Debug("operation rejected",
		zap.String("op", op),
		zap.String("identity", identity),
		zap.String("kind", domain.Kind(err)),
		zap.Error(err))
	return err
}

// emit hands a committed event to the journal and publisher. The store is the
// authority, so a journal failure is only logged.
func (e *Engine) emit(event domain.LedgerEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if e.journal != nil {
		if err := e.journal.Save(event); err != nil {
			e.logger.Warn("failed to journal ledger event",
				zap.String("id", event.ID),
				zap.String("kind", string(event.Kind)),
				zap.Error(err))
		}
	}
	if e.publisher != nil {
		e.publisher.Publish(event)
	}
}

// uniformBalance draws a cent-granular balance in [min, max].
func uniformBalance(min, max decimal.Decimal) decimal.Decimal {
	lo := min.Shift(domain.FiatScale).Ceil().IntPart()
	hi := max.Shift(domain.FiatScale).Floor().IntPart()
	if hi <= lo {
		return decimal.New(lo, -domain.FiatScale)
	}
	return decimal.New(lo+rand.Int64N(hi-lo+1), -domain.FiatScale)
}
