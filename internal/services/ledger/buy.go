package ledger

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/carteira/internal/domain"
	"go.uber.org/zap"
)

// BuyResult outcome of a committed buy.
type BuyResult struct {
	Asset    string          `json:"asset"`
	Spent    decimal.Decimal `json:"spent"`
	Quantity decimal.Decimal `json:"quantity"`
	Holding  decimal.Decimal `json:"holding"`
	Price    decimal.Decimal `json:"price"`
	Balance  decimal.Decimal `json:"balance"`
}

// Buy converts fiatAmount of identity's balance into asset at the current quote.
// The purchased quantity is fiatAmount/price truncated to domain.QuantityScale.
func (e *Engine) Buy(ctx context.Context, identity, asset string, fiatAmount decimal.Decimal) (BuyResult, error) {
	const op = "buy"
	asset = domain.NormalizeAsset(asset)

	identity, err := checkIdentity(identity)
	if err != nil {
		return BuyResult{}, e.reject(op, identity, err)
	}
	if err := e.checkFiat(fiatAmount); err != nil {
		return BuyResult{}, e.reject(op, identity, err)
	}
	if err := e.checkAsset(asset); err != nil {
		return BuyResult{}, e.reject(op, identity, err)
	}

	price, err := e.price(ctx, asset)
	if err != nil {
		return BuyResult{}, e.reject(op, identity, err)
	}

	quantity, _ := fiatAmount.QuoRem(price, domain.QuantityScale)
	if !quantity.IsPositive() {
		return BuyResult{}, e.reject(op, identity, errors.Wrapf(domain.ErrBelowMinimum,
			"%s buys less than %s %s at %s", fiatAmount, decimal.New(1, -domain.QuantityScale), asset, price))
	}

	var res BuyResult
	err = e.atomically(ctx, op, []string{identity}, func(tx Tx) error {
		acc, err := tx.GetAccount(identity)
		if err != nil {
			return err
		}
		if acc.Balance.LessThan(fiatAmount) {
			return errors.Wrapf(domain.ErrInsufficientFunds, "balance %s, need %s", acc.Balance, fiatAmount)
		}

		holding, err := tx.GetHolding(identity, asset)
		if err != nil {
			return err
		}

		balance := acc.Balance.Sub(fiatAmount)
		if err := tx.UpdateBalance(identity, balance); err != nil {
			return err
		}
		holding.Identity, holding.Asset = identity, asset
		holding.Quantity = holding.Quantity.Add(quantity)
		if err := tx.UpsertHolding(holding); err != nil {
			return err
		}

		res = BuyResult{
			Asset:    asset,
			Spent:    fiatAmount,
			Quantity: quantity,
			Holding:  holding.Quantity,
			Price:    price,
			Balance:  balance,
		}
		return nil
	})
	if err != nil {
		return BuyResult{}, e.reject(op, identity, err)
	}

	e.logger.Info("buy executed",
		zap.String("identity", identity),
		zap.String("asset", asset),
		zap.String("spent", fiatAmount.String()),
		zap.String("quantity", quantity.String()),
		zap.String("price", price.String()))
	e.emit(domain.LedgerEvent{
		Kind:       domain.LedgerEventBuy,
		Identity:   identity,
		Asset:      asset,
		FiatAmount: fiatAmount,
		Quantity:   quantity,
		Price:      price,
		Timestamp:  e.now().UTC(),
	})

	return res, nil
}
