package pebblestore

import (
	"encoding/json"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/carteira/internal/domain"
	"github.com/vadiminshakov/carteira/internal/storage/rowlock"
)

type tx struct {
	batch *pebble.Batch
	locks *rowlock.Set
	done  bool
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
	return readAccount(t.batch, identity)
}

func (t *tx) GetHolding(identity, asset string) (domain.Holding, error) {
	if err := t.check(identity); err != nil {
		return domain.Holding{}, err
	}
	h := domain.Holding{Identity: identity, Asset: asset}
	val, closer, err := t.batch.Get(holdingKey(identity, asset))
	if err == pebble.ErrNotFound {
		return h, nil
	}
	if err != nil {
		return domain.Holding{}, errors.Wrap(err, "get holding")
	}
	defer closer.Close()

	h.Quantity, err = decimal.NewFromString(string(val))
	if err != nil {
		return domain.Holding{}, errors.Wrapf(err, "decode %s holding of %q", asset, identity)
	}
	return h, nil
}

func (t *tx) CreateAccount(acc domain.Account) error {
	if _, err := t.GetAccount(acc.Identity); err == nil {
		return domain.ErrAccountExists
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		return err
	}
	return t.putAccount(acc.Identity, acc.Balance)
}

func (t *tx) UpdateBalance(identity string, balance decimal.Decimal) error {
	if _, err := t.GetAccount(identity); err != nil {
		return err
	}
	return t.putAccount(identity, balance)
}

func (t *tx) putAccount(identity string, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return errors.Wrapf(domain.ErrNegativeValue, "balance %s for %q", balance, identity)
	}
	payload, err := json.Marshal(storedAccount{Balance: balance})
	if err != nil {
		return errors.Wrap(err, "encode account")
	}
	return t.batch.Set(accountKey(identity), payload, nil)
}

func (t *tx) UpsertHolding(h domain.Holding) error {
	if err := t.check(h.Identity); err != nil {
		return err
	}
	if h.Quantity.IsNegative() {
		return errors.Wrapf(domain.ErrNegativeValue, "%s quantity %s for %q", h.Asset, h.Quantity, h.Identity)
	}
	key := holdingKey(h.Identity, h.Asset)
	if h.Quantity.IsZero() {
		return t.batch.Delete(key, nil)
	}
	return t.batch.Set(key, []byte(h.Quantity.String()), nil)
}

func (t *tx) AppendTransfer(tr domain.Transfer) error {
	if t.done {
		return domain.ErrTxDone
	}
	payload, err := json.Marshal(tr)
	if err != nil {
		return errors.Wrap(err, "encode transfer")
	}
	if err := t.batch.Set(participantKey(tr.Sender, tr.Timestamp, tr.ID), payload, nil); err != nil {
		return err
	}
	return t.batch.Set(participantKey(tr.Recipient, tr.Timestamp, tr.ID), payload, nil)
}

func (t *tx) Commit() error {
	if t.done {
		return domain.ErrTxDone
	}
	defer t.finish()
	return t.batch.Commit(pebble.Sync)
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
	_ = t.batch.Close()
	t.locks.Release()
}
