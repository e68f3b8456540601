package ledger

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/carteira/internal/domain"
	"go.uber.org/zap"
)

// OpenAccount registers identity with an initial balance drawn from the
// configured range.
func (e *Engine) OpenAccount(ctx context.Context, identity string) (domain.Account, error) {
	return e.OpenAccountWithBalance(ctx, identity, e.draw(e.rules.InitialBalanceMin, e.rules.InitialBalanceMax))
}

// OpenAccountWithBalance registers identity with the given balance.
func (e *Engine) OpenAccountWithBalance(ctx context.Context, identity string, balance decimal.Decimal) (domain.Account, error) {
	const op = "open"

	identity, err := checkIdentity(identity)
	if err != nil {
		return domain.Account{}, e.reject(op, identity, err)
	}
	if balance.IsNegative() || !domain.FitsScale(balance, domain.FiatScale) {
		return domain.Account{}, e.reject(op, identity, errors.Wrapf(domain.ErrInvalidAmount,
			"initial balance %s", balance))
	}

	acc := domain.Account{Identity: identity, Balance: balance}
	err = e.atomically(ctx, op, []string{identity}, func(tx Tx) error {
		return tx.CreateAccount(acc)
	})
	if err != nil {
		return domain.Account{}, e.reject(op, identity, err)
	}

	e.logger.Info("account opened",
		zap.String("identity", identity),
		zap.String("balance", balance.String()))
	e.emit(domain.LedgerEvent{
		Kind:       domain.LedgerEventOpen,
		Identity:   identity,
		FiatAmount: balance,
		Timestamp:  e.now().UTC(),
	})

	return acc, nil
}
