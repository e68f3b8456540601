// Package storetest holds the behaviour every ledger.Store implementation
// must provide. Store packages call Run from their own tests.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/carteira/internal/domain"
	"github.com/vadiminshakov/carteira/internal/services/ledger"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) ledger.Store

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("account lifecycle", func(t *testing.T) { testAccountLifecycle(t, newStore(t)) })
	t.Run("duplicate account", func(t *testing.T) { testDuplicateAccount(t, newStore(t)) })
	t.Run("holding upsert and delete at zero", func(t *testing.T) { testHoldings(t, newStore(t)) })
	t.Run("rollback discards writes", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("reads see own writes only", func(t *testing.T) { testIsolation(t, newStore(t)) })
	t.Run("out of scope rows rejected", func(t *testing.T) { testScope(t, newStore(t)) })
	t.Run("negative values rejected", func(t *testing.T) { testNegative(t, newStore(t)) })
	t.Run("recent transfers newest first", func(t *testing.T) { testRecentTransfers(t, newStore(t)) })
	t.Run("finished tx is unusable", func(t *testing.T) { testTxDone(t, newStore(t)) })
	t.Run("concurrent increments serialize", func(t *testing.T) { testSerializedIncrements(t, newStore(t)) })
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Seed opens accounts with the given balances in one committed transaction.
func Seed(t *testing.T, s ledger.Store, balances map[string]string) {
	t.Helper()
	ids := make([]string, 0, len(balances))
	for id := range balances {
		ids = append(ids, id)
	}
	tx, err := s.Begin(context.Background(), ids...)
	require.NoError(t, err)
	for id, b := range balances {
		require.NoError(t, tx.CreateAccount(domain.Account{Identity: id, Balance: dec(b)}))
	}
	require.NoError(t, tx.Commit())
}

func testAccountLifecycle(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	_, err := s.Account(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	Seed(t, s, map[string]string{"alice": "1000.50"})

	acc, err := s.Account(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("1000.50")), "got %s", acc.Balance)

	tx, err := s.Begin(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, tx.UpdateBalance("alice", dec("0.01")))
	require.NoError(t, tx.Commit())

	acc, err = s.Account(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("0.01")))
}

func testDuplicateAccount(t *testing.T, s ledger.Store) {
	Seed(t, s, map[string]string{"alice": "10"})

	tx, err := s.Begin(context.Background(), "alice")
	require.NoError(t, err)
	defer tx.Rollback()
	assert.ErrorIs(t, tx.CreateAccount(domain.Account{Identity: "alice", Balance: dec("5")}), domain.ErrAccountExists)
}

func testHoldings(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	Seed(t, s, map[string]string{"alice": "10"})

	tx, err := s.Begin(ctx, "alice")
	require.NoError(t, err)
	h, err := tx.GetHolding("alice", "BTC")
	require.NoError(t, err)
	assert.True(t, h.Quantity.IsZero())

	require.NoError(t, tx.UpsertHolding(domain.Holding{Identity: "alice", Asset: "BTC", Quantity: dec("0.00000001")}))
	require.NoError(t, tx.UpsertHolding(domain.Holding{Identity: "alice", Asset: "EUR", Quantity: dec("12.5")}))
	h, err = tx.GetHolding("alice", "BTC")
	require.NoError(t, err)
	assert.True(t, h.Quantity.Equal(dec("0.00000001")))
	require.NoError(t, tx.Commit())

	holdings, err := s.Holdings(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, holdings, 2)
	assert.Equal(t, "BTC", holdings[0].Asset)
	assert.True(t, holdings[0].Quantity.Equal(dec("0.00000001")))

	tx, err = s.Begin(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, tx.UpsertHolding(domain.Holding{Identity: "alice", Asset: "BTC", Quantity: decimal.Zero}))
	require.NoError(t, tx.Commit())

	holdings, err = s.Holdings(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "EUR", holdings[0].Asset)
}

func testRollback(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	Seed(t, s, map[string]string{"alice": "100", "bob": "0"})

	tx, err := s.Begin(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NoError(t, tx.UpdateBalance("alice", dec("40")))
	require.NoError(t, tx.UpdateBalance("bob", dec("60")))
	require.NoError(t, tx.UpsertHolding(domain.Holding{Identity: "alice", Asset: "BTC", Quantity: dec("1")}))
	require.NoError(t, tx.AppendTransfer(domain.Transfer{ID: "t1", Sender: "alice", Recipient: "bob", Amount: dec("60"), Timestamp: time.Now()}))
	require.NoError(t, tx.Rollback())

	alice, err := s.Account(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, alice.Balance.Equal(dec("100")))
	holdings, err := s.Holdings(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, holdings)
	transfers, err := s.RecentTransfers(ctx, "alice", 5)
	require.NoError(t, err)
	assert.Empty(t, transfers)

	// locks are released by rollback
	tx, err = s.Begin(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
}

func testIsolation(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	Seed(t, s, map[string]string{"alice": "100"})

	tx, err := s.Begin(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, tx.UpdateBalance("alice", dec("1")))

	acc, err := tx.GetAccount("alice")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("1")), "tx must read its own write")

	committed, err := s.Account(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, committed.Balance.Equal(dec("100")), "uncommitted write leaked")

	require.NoError(t, tx.Commit())
}

func testScope(t *testing.T, s ledger.Store) {
	Seed(t, s, map[string]string{"alice": "100", "bob": "100"})

	tx, err := s.Begin(context.Background(), "alice")
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.GetAccount("bob")
	assert.ErrorIs(t, err, domain.ErrOutOfScope)
	assert.ErrorIs(t, tx.UpdateBalance("bob", dec("1")), domain.ErrOutOfScope)
}

func testNegative(t *testing.T, s ledger.Store) {
	Seed(t, s, map[string]string{"alice": "100"})

	tx, err := s.Begin(context.Background(), "alice")
	require.NoError(t, err)
	defer tx.Rollback()

	assert.ErrorIs(t, tx.UpdateBalance("alice", dec("-0.01")), domain.ErrNegativeValue)
	assert.ErrorIs(t, tx.UpsertHolding(domain.Holding{Identity: "alice", Asset: "BTC", Quantity: dec("-1")}), domain.ErrNegativeValue)
}

func testRecentTransfers(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	Seed(t, s, map[string]string{"alice": "100", "bob": "100", "carol": "100"})

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	records := []domain.Transfer{
		{ID: "1", Sender: "alice", Recipient: "bob", Amount: dec("1"), Timestamp: base},
		{ID: "2", Sender: "bob", Recipient: "carol", Amount: dec("2"), Timestamp: base.Add(time.Second)},
		{ID: "3", Sender: "carol", Recipient: "alice", Amount: dec("3.33"), Timestamp: base.Add(2 * time.Second)},
		{ID: "4", Sender: "alice", Recipient: "carol", Amount: dec("4"), Timestamp: base.Add(3 * time.Second)},
	}
	for _, r := range records {
		tx, err := s.Begin(ctx, r.Sender, r.Recipient)
		require.NoError(t, err)
		require.NoError(t, tx.AppendTransfer(r))
		require.NoError(t, tx.Commit())
	}

	got, err := s.RecentTransfers(ctx, "alice", 5)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"4", "3", "1"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.True(t, got[1].Amount.Equal(dec("3.33")))
	assert.True(t, got[0].Timestamp.Equal(base.Add(3*time.Second)))

	got, err = s.RecentTransfers(ctx, "carol", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "4", got[0].ID)
	assert.Equal(t, "3", got[1].ID)

	got, err = s.RecentTransfers(ctx, "nobody", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testTxDone(t *testing.T, s ledger.Store) {
	Seed(t, s, map[string]string{"alice": "100"})

	tx, err := s.Begin(context.Background(), "alice")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.NoError(t, tx.Rollback())
	assert.Error(t, tx.Commit())
	assert.Error(t, tx.UpdateBalance("alice", dec("1")))
}

func testSerializedIncrements(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	Seed(t, s, map[string]string{"alice": "0"})

	const workers = 25
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := s.Begin(ctx, "alice")
			if err != nil {
				errs <- err
				return
			}
			acc, err := tx.GetAccount("alice")
			if err != nil {
				_ = tx.Rollback()
				errs <- err
				return
			}
			if err := tx.UpdateBalance("alice", acc.Balance.Add(decimal.NewFromInt(1))); err != nil {
				_ = tx.Rollback()
				errs <- err
				return
			}
			errs <- tx.Commit()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	acc, err := s.Account(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(workers)), "lost update: %s", acc.Balance)
}
