package pebblestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/carteira/internal/domain"
	"github.com/vadiminshakov/carteira/internal/services/ledger"
	"github.com/vadiminshakov/carteira/internal/storage/storetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ledger"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ledger.Store {
		return openTemp(t)
	})
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ledger")
	ctx := context.Background()

	s, err := Open(dir)
	require.NoError(t, err)
	storetest.Seed(t, s, map[string]string{"alice": "900"})
	tx, err := s.Begin(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, tx.UpsertHolding(domain.Holding{Identity: "alice", Asset: "BTC", Quantity: decimal.RequireFromString("0.002")}))
	require.NoError(t, tx.Commit())
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	acc, err := s.Account(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(900)))
	holdings, err := s.Holdings(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "BTC", holdings[0].Asset)
	assert.Equal(t, "0.002", holdings[0].Quantity.String())
}

func TestStore_HoldingsDoNotBleedAcrossPrefixes(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	storetest.Seed(t, s, map[string]string{"al": "1", "alice": "1"})

	tx, err := s.Begin(ctx, "al", "alice")
	require.NoError(t, err)
	require.NoError(t, tx.UpsertHolding(domain.Holding{Identity: "al", Asset: "BTC", Quantity: decimal.NewFromInt(1)}))
	require.NoError(t, tx.UpsertHolding(domain.Holding{Identity: "alice", Asset: "EUR", Quantity: decimal.NewFromInt(2)}))
	require.NoError(t, tx.Commit())

	holdings, err := s.Holdings(ctx, "al")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "BTC", holdings[0].Asset)
}

func TestStore_RejectsReservedByte(t *testing.T) {
	s := openTemp(t)
	_, err := s.Begin(context.Background(), "bad\x00id")
	assert.Error(t, err)
}

func TestUpperBound(t *testing.T) {
	assert.Equal(t, []byte("h\x00al\x01"), upperBound([]byte("h\x00al\x00")))
	assert.Equal(t, []byte("b"), upperBound([]byte("a\xff")))
	assert.Nil(t, upperBound([]byte{0xff, 0xff}))
}
