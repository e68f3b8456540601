// Package pebblestore is a ledger store on top of the Pebble LSM key-value
// engine. A transaction is an indexed batch committed with a synced write.
package pebblestore

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/carteira/internal/domain"
	"github.com/vadiminshakov/carteira/internal/services/ledger"
	"github.com/vadiminshakov/carteira/internal/storage/rowlock"
)

// Store persists the ledger in a Pebble database.
type Store struct {
	db    *pebble.DB
	locks *rowlock.Manager
}

var _ ledger.Store = (*Store)(nil)

type storedAccount struct {
	Balance decimal.Decimal `json:"balance"`
}

// Open opens (or creates) the database in dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble ledger at %s", dir)
	}
	return &Store{db: db, locks: rowlock.New()}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin locks identities and opens an indexed batch that reads its own writes.
func (s *Store) Begin(ctx context.Context, identities ...string) (ledger.Tx, error) {
	for _, id := range identities {
		if strings.Contains(id, sep) {
			return nil, errors.Errorf("identity %q contains a reserved byte", id)
		}
	}
	set, err := s.locks.Acquire(ctx, identities...)
	if err != nil {
		return nil, errors.Wrap(err, "acquire row locks")
	}
	return &tx{batch: s.db.NewIndexedBatch(), locks: set}, nil
}

// Account returns the committed account of identity.
func (s *Store) Account(_ context.Context, identity string) (domain.Account, error) {
	return readAccount(s.db, identity)
}

// Holdings returns the committed holdings of identity ordered by asset.
func (s *Store) Holdings(_ context.Context, identity string) ([]domain.Holding, error) {
	prefix := holdingPrefix(identity)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil, errors.Wrap(err, "iterate holdings")
	}
	defer iter.Close()

	var out []domain.Holding
	for iter.First(); iter.Valid(); iter.Next() {
		q, err := decimal.NewFromString(string(iter.Value()))
		if err != nil {
			return nil, errors.Wrapf(err, "decode holding %q", iter.Key())
		}
		out = append(out, domain.Holding{
			Identity: identity,
			Asset:    assetFromHoldingKey(iter.Key()),
			Quantity: q,
		})
	}
	return out, iter.Error()
}

// RecentTransfers walks the participant index backwards from the newest entry.
func (s *Store) RecentTransfers(_ context.Context, identity string, limit int) ([]domain.Transfer, error) {
	prefix := participantPrefix(identity)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil, errors.Wrap(err, "iterate transfers")
	}
	defer iter.Close()

	var out []domain.Transfer
	for iter.Last(); iter.Valid() && (limit <= 0 || len(out) < limit); iter.Prev() {
		var t domain.Transfer
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, errors.Wrap(err, "decode transfer")
		}
		out = append(out, t)
	}
	return out, iter.Error()
}

func readAccount(r pebble.Reader, identity string) (domain.Account, error) {
	val, closer, err := r.Get(accountKey(identity))
	if err == pebble.ErrNotFound {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, errors.Wrap(err, "get account")
	}
	defer closer.Close()

	var stored storedAccount
	if err := json.Unmarshal(val, &stored); err != nil {
		return domain.Account{}, errors.Wrapf(err, "decode account %q", identity)
	}
	return domain.Account{Identity: identity, Balance: stored.Balance}, nil
}
