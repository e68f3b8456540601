package memstore

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/carteira/internal/domain"
	"github.com/vadiminshakov/carteira/internal/storage/rowlock"
)

type tx struct {
	store     *Store
	locks     *rowlock.Set
	accounts  map[string]decimal.Decimal
	holdings  map[holdingKey]decimal.Decimal
	transfers []domain.Transfer
	done      bool
}

func (t *tx) check(identity string) error {
	if t.done {
		return domain.ErrTxDone
	}
	if !t.locks.Contains(identity) {
		return errors.Wrapf(domain.ErrOutOfScope, "identity %q", identity)
	}
	return nil
}

func (t *tx) GetAccount(identity string) (domain.Account, error) {
	if err := t.check(identity); err != nil {
		return domain.Account{}, err
	}
	if balance, ok := t.accounts[identity]; ok {
		return domain.Account{Identity: identity, Balance: balance}, nil
	}
	t.store.mu.RLock()
	balance, ok := t.store.accounts[identity]
	t.store.mu.RUnlock()
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return domain.Account{Identity: identity, Balance: balance}, nil
}

func (t *tx) GetHolding(identity, asset string) (domain.Holding, error) {
	if err := t.check(identity); err != nil {
		return domain.Holding{}, err
	}
	h := domain.Holding{Identity: identity, Asset: asset}
	key := holdingKey{identity: identity, asset: asset}
	if q, ok := t.holdings[key]; ok {
		h.Quantity = q
		return h, nil
	}
	t.store.mu.RLock()
	h.Quantity = t.store.holdings[key]
	t.store.mu.RUnlock()
	return h, nil
}

func (t *tx) CreateAccount(acc domain.Account) error {
	if err := t.check(acc.Identity); err != nil {
		return err
	}
	if acc.Balance.IsNegative() {
		return domain.ErrNegativeValue
	}
	if _, err := t.GetAccount(acc.Identity); err == nil {
		return domain.ErrAccountExists
	}
	t.accounts[acc.Identity] = acc.Balance
	return nil
}

func (t *tx) UpdateBalance(identity string, balance decimal.Decimal) error {
	if _, err := t.GetAccount(identity); err != nil {
		return err
	}
	if balance.IsNegative() {
		return errors.Wrapf(domain.ErrNegativeValue, "balance %s for %q", balance, identity)
	}
	t.accounts[identity] = balance
	return nil
}

func (t *tx) UpsertHolding(h domain.Holding) error {
	if err := t.check(h.Identity); err != nil {
		return err
	}
	if h.Quantity.IsNegative() {
		return errors.Wrapf(domain.ErrNegativeValue, "%s quantity %s for %q", h.Asset, h.Quantity, h.Identity)
	}
	t.holdings[holdingKey{identity: h.Identity, asset: h.Asset}] = h.Quantity
	return nil
}

func (t *tx) AppendTransfer(tr domain.Transfer) error {
	if t.done {
		return domain.ErrTxDone
	}
	t.transfers = append(t.transfers, tr)
	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return domain.ErrTxDone
	}
	defer t.finish()

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCommit != nil {
		return s.failCommit
	}
	for id, balance := range t.accounts {
		s.accounts[id] = balance
	}
	for k, q := range t.holdings {
		if q.IsZero() {
			delete(s.holdings, k)
			continue
		}
		s.holdings[k] = q
	}
	for _, tr := range t.transfers {
		s.insertTransfer(tr)
	}
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *tx) finish() {
	t.done = true
	t.locks.Release()
}
