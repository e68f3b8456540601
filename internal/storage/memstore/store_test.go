package memstore

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/carteira/internal/services/ledger"
	"github.com/vadiminshakov/carteira/internal/storage/storetest"
)

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ledger.Store {
		return New()
	})
}

func TestStore_FailCommitsAppliesNothing(t *testing.T) {
	s := New()
	storetest.Seed(t, s, map[string]string{"alice": "100"})
	s.FailCommits(errors.New("disk full"))

	tx, err := s.Begin(context.Background(), "alice")
	require.NoError(t, err)
	require.NoError(t, tx.UpdateBalance("alice", decimal.NewFromInt(1)))
	assert.EqualError(t, tx.Commit(), "disk full")

	s.FailCommits(nil)
	acc, err := s.Account(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 0, s.locks.Len())
}
