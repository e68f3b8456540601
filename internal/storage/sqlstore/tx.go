package sqlstore

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/carteira/internal/domain"
	"github.com/vadiminshakov/carteira/internal/storage/rowlock"
)

type tx struct {
	sql   *sql.Tx
	locks *rowlock.Set
	done  bool
}

// statements run to completion regardless of the caller's context
var bg = context.Background()

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
	return queryAccount(bg, t.sql, identity)
}

func (t *tx) GetHolding(identity, asset string) (domain.Holding, error) {
	if err := t.check(identity); err != nil {
		return domain.Holding{}, err
	}
	h := domain.Holding{Identity: identity, Asset: asset}
	var quantity string
	err := t.sql.QueryRowContext(bg,
		`SELECT quantity FROM holdings WHERE identity = ? AND asset = ?`, identity, asset).Scan(&quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return h, nil
	}
	if err != nil {
		return domain.Holding{}, errors.Wrap(err, "query holding")
	}
	if h.Quantity, err = decimal.NewFromString(quantity); err != nil {
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
	if acc.Balance.IsNegative() {
		return errors.Wrapf(domain.ErrNegativeValue, "balance %s for %q", acc.Balance, acc.Identity)
	}
	_, err := t.sql.ExecContext(bg,
		`INSERT INTO accounts (identity, balance) VALUES (?, ?)`, acc.Identity, acc.Balance.String())
	return errors.Wrap(err, "insert account")
}

func (t *tx) UpdateBalance(identity string, balance decimal.Decimal) error {
	if _, err := t.GetAccount(identity); err != nil {
		return err
	}
	if balance.IsNegative() {
		return errors.Wrapf(domain.ErrNegativeValue, "balance %s for %q", balance, identity)
	}
	_, err := t.sql.ExecContext(bg,
		`UPDATE accounts SET balance = ? WHERE identity = ?`, balance.String(), identity)
	return errors.Wrap(err, "update balance")
}

func (t *tx) UpsertHolding(h domain.Holding) error {
	if err := t.check(h.Identity); err != nil {
		return err
	}
	if h.Quantity.IsNegative() {
		return errors.Wrapf(domain.ErrNegativeValue, "%s quantity %s for %q", h.Asset, h.Quantity, h.Identity)
	}
	if h.Quantity.IsZero() {
		_, err := t.sql.ExecContext(bg,
			`DELETE FROM holdings WHERE identity = ? AND asset = ?`, h.Identity, h.Asset)
		return errors.Wrap(err, "delete holding")
	}
	_, err := t.sql.ExecContext(bg, `
		INSERT INTO holdings (identity, asset, quantity) VALUES (?, ?, ?)
		ON CONFLICT (identity, asset) DO UPDATE SET quantity = excluded.quantity`,
		h.Identity, h.Asset, h.Quantity.String())
	return errors.Wrap(err, "upsert holding")
}

func (t *tx) AppendTransfer(tr domain.Transfer) error {
	if t.done {
		return domain.ErrTxDone
	}
	_, err := t.sql.ExecContext(bg, `
		INSERT INTO transfers (id, sender, recipient, amount, created_at) VALUES (?, ?, ?, ?, ?)`,
		tr.ID, tr.Sender, tr.Recipient, tr.Amount.String(), tr.Timestamp.UnixNano())
	return errors.Wrap(err, "insert transfer")
}

func (t *tx) Commit() error {
	if t.done {
		return domain.ErrTxDone
	}
	defer t.finish()
	if err := t.sql.Commit(); err != nil {
		_ = t.sql.Rollback()
		return errors.Wrap(err, "commit")
	}
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	defer t.finish()
	if err := t.sql.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return errors.Wrap(err, "rollback")
	}
	return nil
}

func (t *tx) finish() {
	t.done = true
	t.locks.Release()
}
