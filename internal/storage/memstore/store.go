// Package memstore is an in-memory ledger store. Writes are buffered per
// transaction and applied under a single store mutex at commit.
package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/carteira/internal/domain"
	"github.com/vadiminshakov/carteira/internal/services/ledger"
	"github.com/vadiminshakov/carteira/internal/storage/rowlock"
)

type holdingKey struct {
	identity string
	asset    string
}

// Store keeps committed ledger state in maps.
type Store struct {
	mu        sync.RWMutex
	accounts  map[string]decimal.Decimal
	holdings  map[holdingKey]decimal.Decimal
	transfers []domain.Transfer
	locks     *rowlock.Manager

	// failCommit makes the next commits fail, used to exercise rollback paths.
	failCommit error
}

var _ ledger.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts: make(map[string]decimal.Decimal),
		holdings: make(map[holdingKey]decimal.Decimal),
		locks:    rowlock.New(),
	}
}

// FailCommits makes every subsequent Commit return err; nil restores normal behaviour.
func (s *Store) FailCommits(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommit = err
}

// Begin locks identities and opens a transaction.
func (s *Store) Begin(ctx context.Context, identities ...string) (ledger.Tx, error) {
	set, err := s.locks.Acquire(ctx, identities...)
	if err != nil {
		return nil, errors.Wrap(err, "acquire row locks")
	}
	return &tx{
		store:    s,
		locks:    set,
		accounts: make(map[string]decimal.Decimal),
		holdings: make(map[holdingKey]decimal.Decimal),
	}, nil
}

// Account returns the committed account of identity.
func (s *Store) Account(_ context.Context, identity string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balance, ok := s.accounts[identity]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return domain.Account{Identity: identity, Balance: balance}, nil
}

// Holdings returns the committed non-empty holdings of identity.
func (s *Store) Holdings(_ context.Context, identity string) ([]domain.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Holding
	for k, q := range s.holdings {
		if k.identity == identity {
			out = append(out, domain.Holding{Identity: identity, Asset: k.asset, Quantity: q})
		}
	}
	slices.SortFunc(out, func(a, b domain.Holding) int {
		if a.Asset < b.Asset {
			return -1
		}
		if a.Asset > b.Asset {
			return 1
		}
		return 0
	})
	return out, nil
}

// RecentTransfers returns up to limit transfers involving identity, newest first.
func (s *Store) RecentTransfers(_ context.Context, identity string, limit int) ([]domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Transfer
	for i := len(s.transfers) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.transfers[i].Involves(identity) {
			out = append(out, s.transfers[i])
		}
	}
	return out, nil
}

// insertTransfer keeps s.transfers ordered by timestamp.
func (s *Store) insertTransfer(t domain.Transfer) {
	i := len(s.transfers)
	for i > 0 && s.transfers[i-1].Timestamp.After(t.Timestamp) {
		i--
	}
	s.transfers = slices.Insert(s.transfers, i, t)
}
