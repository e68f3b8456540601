package ledger

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/carteira/internal/domain"
)

// Store is the durable home of accounts, holdings and transfer history.
type Store interface {
	// Begin opens an atomic transaction holding exclusive locks on identities
	// until Commit or Rollback. Locks are taken in sorted order.
	Begin(ctx context.Context, identities ...string) (Tx, error)

	// Account, Holdings and RecentTransfers read committed state only.
	Account(ctx context.Context, identity string) (domain.Account, error)
	Holdings(ctx context.Context, identity string) ([]domain.Holding, error)
	RecentTransfers(ctx context.Context, identity string, limit int) ([]domain.Transfer, error)
}

// Tx is a unit of work against the Store. Reads inside one Tx are consistent
// with each other and observe the Tx's own writes. Nothing is visible to other
// readers before Commit; a failed Commit applies nothing.
type Tx interface {
	// GetAccount returns domain.ErrAccountNotFound when the identity has no account.
	GetAccount(identity string) (domain.Account, error)
	// GetHolding returns a zero-quantity Holding when no row exists.
	GetHolding(identity, asset string) (domain.Holding, error)
	// CreateAccount returns domain.ErrAccountExists for a duplicate identity.
	CreateAccount(acc domain.Account) error
	UpdateBalance(identity string, balance decimal.Decimal) error
	// UpsertHolding writes the holding, deleting the row when quantity is zero.
	UpsertHolding(h domain.Holding) error
	AppendTransfer(t domain.Transfer) error
	Commit() error
	// Rollback discards the Tx. It is a no-op after Commit.
	Rollback() error
}

// QuoteSource fetches current fiat prices for supported assets.
type QuoteSource interface {
	FetchQuotes(ctx context.Context) (domain.Quotes, error)
}

// Journal durably records committed ledger events.
type Journal interface {
	Save(event domain.LedgerEvent) error
}

// Publisher fans committed ledger events out to live subscribers.
type Publisher interface {
	Publish(event domain.LedgerEvent)
}
