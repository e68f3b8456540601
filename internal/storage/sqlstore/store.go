// Package sqlstore is a ledger store backed by SQLite. Decimals are stored as
// canonical TEXT so no value ever passes through a float column.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/carteira/internal/domain"
	"github.com/vadiminshakov/carteira/internal/services/ledger"
	"github.com/vadiminshakov/carteira/internal/storage/rowlock"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	identity TEXT PRIMARY KEY,
	balance  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS holdings (
	identity TEXT NOT NULL REFERENCES accounts(identity),
	asset    TEXT NOT NULL,
	quantity TEXT NOT NULL,
	PRIMARY KEY (identity, asset)
);
CREATE TABLE IF NOT EXISTS transfers (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	sender     TEXT NOT NULL,
	recipient  TEXT NOT NULL,
	amount     TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS transfers_sender_time ON transfers (sender, created_at DESC);
CREATE INDEX IF NOT EXISTS transfers_recipient_time ON transfers (recipient, created_at DESC);
`

// Store persists the ledger in a SQLite database file. Transactions share a
// single writer connection; committed-state reads use a separate pool so they
// never queue behind an open transaction.
type Store struct {
	writer *sql.DB
	reader *sql.DB
	locks  *rowlock.Manager
}

var _ ledger.Store = (*Store)(nil)

// Open opens (or creates) the database file at path and applies the schema.
func Open(path string) (*Store, error) {
	writer, err := openPool(path, 1)
	if err != nil {
		return nil, err
	}
	if _, err := writer.Exec(schema); err != nil {
		_ = writer.Close()
		return nil, errors.Wrap(err, "apply ledger schema")
	}
	reader, err := openPool(path, 4)
	if err != nil {
		_ = writer.Close()
		return nil, err
	}

	return &Store{writer: writer, reader: reader, locks: rowlock.New()}, nil
}

// pragmas are applied by the driver to every new connection
const pragmas = "?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

func openPool(path string, conns int) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+pragmas)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(conns)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open sqlite ledger at %s: %w", path, err)
	}
	return db, nil
}

// Close closes both connection pools.
func (s *Store) Close() error {
	rerr := s.reader.Close()
	if err := s.writer.Close(); err != nil {
		return err
	}
	return rerr
}

// Begin locks identities and starts a SQL transaction. The transaction is
// detached from ctx cancellation: once started it commits or rolls back.
func (s *Store) Begin(ctx context.Context, identities ...string) (ledger.Tx, error) {
	set, err := s.locks.Acquire(ctx, identities...)
	if err != nil {
		return nil, errors.Wrap(err, "acquire row locks")
	}
	sqlTx, err := s.writer.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		set.Release()
		return nil, errors.Wrap(err, "begin sqlite transaction")
	}
	return &tx{sql: sqlTx, locks: set}, nil
}

// Account returns the committed account of identity.
func (s *Store) Account(ctx context.Context, identity string) (domain.Account, error) {
	return queryAccount(ctx, s.reader, identity)
}

// Holdings returns the committed holdings of identity ordered by asset.
func (s *Store) Holdings(ctx context.Context, identity string) ([]domain.Holding, error) {
	rows, err := s.reader.QueryContext(ctx,
		`SELECT asset, quantity FROM holdings WHERE identity = ? ORDER BY asset`, identity)
	if err != nil {
		return nil, errors.Wrap(err, "query holdings")
	}
	defer rows.Close()

	var out []domain.Holding
	for rows.Next() {
		var asset, quantity string
		if err := rows.Scan(&asset, &quantity); err != nil {
			return nil, errors.Wrap(err, "scan holding")
		}
		q, err := decimal.NewFromString(quantity)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s holding", asset)
		}
		out = append(out, domain.Holding{Identity: identity, Asset: asset, Quantity: q})
	}
	return out, rows.Err()
}

// RecentTransfers returns up to limit transfers involving identity, newest first.
func (s *Store) RecentTransfers(ctx context.Context, identity string, limit int) ([]domain.Transfer, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.reader.QueryContext(ctx, `
		SELECT id, sender, recipient, amount, created_at FROM transfers
		WHERE sender = ? OR recipient = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT ?`, identity, identity, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query transfers")
	}
	defer rows.Close()

	var out []domain.Transfer
	for rows.Next() {
		var (
			t      domain.Transfer
			amount string
			nanos  int64
		)
		if err := rows.Scan(&t.ID, &t.Sender, &t.Recipient, &amount, &nanos); err != nil {
			return nil, errors.Wrap(err, "scan transfer")
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, errors.Wrapf(err, "decode transfer %s amount", t.ID)
		}
		t.Timestamp = time.Unix(0, nanos).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryAccount(ctx context.Context, q queryer, identity string) (domain.Account, error) {
	var balance string
	err := q.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE identity = ?`, identity).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, errors.Wrap(err, "query account")
	}
	b, err := decimal.NewFromString(balance)
	if err != nil {
		return domain.Account{}, errors.Wrapf(err, "decode balance of %q", identity)
	}
	return domain.Account{Identity: identity, Balance: b}, nil
}
