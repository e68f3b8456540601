package ledger

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/carteira/internal/domain"
	"go.uber.org/zap"
)

// SellResult outcome of a committed sell.
type SellResult struct {
	Asset     string          `json:"asset"`
	Sold      decimal.Decimal `json:"sold"`
	Credited  decimal.Decimal `json:"credited"`
	Price     decimal.Decimal `json:"price"`
	Remaining decimal.Decimal `json:"remaining"`
	Balance   decimal.Decimal `json:"balance"`
}

// Sell converts quantity of identity's asset holding back into fiat at the
// current quote. The credit is quantity*price truncated to domain.FiatScale.
func (e *Engine) Sell(ctx context.Context, identity, asset string, quantity decimal.Decimal) (SellResult, error) {
	const op = "sell"
	asset = domain.NormalizeAsset(asset)

	identity, err := checkIdentity(identity)
	if err != nil {
		return SellResult{}, e.reject(op, identity, err)
	}
	if !quantity.IsPositive() || !domain.FitsScale(quantity, domain.QuantityScale) {
		return SellResult{}, e.reject(op, identity, errors.Wrapf(domain.ErrInvalidAmount,
			"quantity %s must be positive with at most %d decimals", quantity, domain.QuantityScale))
	}
	if err := e.checkAsset(asset); err != nil {
		return SellResult{}, e.reject(op, identity, err)
	}

	price, err := e.price(ctx, asset)
	if err != nil {
		return SellResult{}, e.reject(op, identity, err)
	}

	var res SellResult
	err = e.atomically(ctx, op, []string{identity}, func(tx Tx) error {
		holding, err := tx.GetHolding(identity, asset)
		if err != nil {
			return err
		}
		if holding.Quantity.LessThan(quantity) {
			return errors.Wrapf(domain.ErrInsufficientAssetBalance, "%s holding %s, need %s",
				asset, holding.Quantity, quantity)
		}

		credited := quantity.Mul(price).RoundDown(domain.FiatScale)
		if credited.LessThan(e.rules.MinimumTransactionValue) {
			return errors.Wrapf(domain.ErrBelowMinimum, "sale value %s is below minimum %s",
				credited, e.rules.MinimumTransactionValue)
		}

		acc, err := tx.GetAccount(identity)
		if err != nil {
			return err
		}

		holding.Identity, holding.Asset = identity, asset
		holding.Quantity = holding.Quantity.Sub(quantity)
		if err := tx.UpsertHolding(holding); err != nil {
			return err
		}
		balance := acc.Balance.Add(credited)
		if err := tx.UpdateBalance(identity, balance); err != nil {
			return err
		}

		res = SellResult{
			Asset:     asset,
			Sold:      quantity,
			Credited:  credited,
			Price:     price,
			Remaining: holding.Quantity,
			Balance:   balance,
		}
		return nil
	})
	if err != nil {
		return SellResult{}, e.reject(op, identity, err)
	}

	e.logger.Info("sell executed",
		zap.String("identity", identity),
		zap.String("asset", asset),
		zap.String("quantity", quantity.String()),
		zap.String("credited", res.Credited.String()),
		zap.String("price", price.String()))
	e.emit(domain.LedgerEvent{
		Kind:       domain.LedgerEventSell,
		Identity:   identity,
		Asset:      asset,
		FiatAmount: res.Credited,
		Quantity:   quantity,
		Price:      price,
		Timestamp:  e.now().UTC(),
	})

	return res, nil
}
