package ledger_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/carteira/internal/domain"
	"github.com/vadiminshakov/carteira/internal/services/ledger"
)

func TestOpenAccount_DrawsWithinRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rules := f.engine.Rules()

	for i := 0; i < 50; i++ {
		acc, err := f.engine.OpenAccount(ctx, fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
		assert.True(t, acc.Balance.GreaterThanOrEqual(rules.InitialBalanceMin), acc.Balance.String())
		assert.True(t, acc.Balance.LessThanOrEqual(rules.InitialBalanceMax), acc.Balance.String())
		assert.True(t, domain.FitsScale(acc.Balance, domain.FiatScale), acc.Balance.String())
		requireDecimal(t, acc.Balance.String(), f.balance(t, acc.Identity))
	}
}

func TestOpenAccount_CustomDraw(t *testing.T) {
	var gotMin, gotMax decimal.Decimal
	f := newFixture(t, ledger.WithBalanceDraw(func(min, max decimal.Decimal) decimal.Decimal {
		gotMin, gotMax = min, max
		return dec("1234.56")
	}))

	acc, err := f.engine.OpenAccount(context.Background(), "alice")
	require.NoError(t, err)
	requireDecimal(t, "1234.56", acc.Balance)
	requireDecimal(t, "1000", gotMin)
	requireDecimal(t, "10000", gotMax)
}

func TestOpenAccount_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice", "10")

	_, err := f.engine.OpenAccount(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrAccountExists)
	requireDecimal(t, "10", f.balance(t, "alice"), "existing account untouched")

	_, err = f.engine.OpenAccount(ctx, "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)

	_, err = f.engine.OpenAccountWithBalance(ctx, "bob", dec("-1"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = f.engine.OpenAccountWithBalance(ctx, "bob", dec("1.001"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.store.Account(ctx, "bob")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}
