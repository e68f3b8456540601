package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/carteira/internal/domain"
	"go.uber.org/zap"
)

// Transfer moves amount of fiat from sender to recipient and records it.
// Both accounts are locked in identity order for the whole check-and-apply.
func (e *Engine) Transfer(ctx context.Context, sender, recipient string, amount decimal.Decimal) (domain.Transfer, error) {
	const op = "transfer"

	sender, err := checkIdentity(sender)
	if err != nil {
		return domain.Transfer{}, e.reject(op, sender, err)
	}
	recipient, err = checkIdentity(recipient)
	if err != nil {
		return domain.Transfer{}, e.reject(op, sender, err)
	}
	if err := e.checkFiat(amount); err != nil {
		return domain.Transfer{}, e.reject(op, sender, err)
	}
	if sender == recipient {
		return domain.Transfer{}, e.reject(op, sender, domain.ErrSelfTransfer)
	}

	var record domain.Transfer
	err = e.atomically(ctx, op, []string{sender, recipient}, func(tx Tx) error {
		to, err := tx.GetAccount(recipient)
		if err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				return errors.Wrapf(domain.ErrRecipientNotFound, "%q", recipient)
			}
			return err
		}
		from, err := tx.GetAccount(sender)
		if err != nil {
			return err
		}
		if from.Balance.LessThan(amount) {
			return errors.Wrapf(domain.ErrInsufficientFunds, "balance %s, need %s", from.Balance, amount)
		}

		if err := tx.UpdateBalance(sender, from.Balance.Sub(amount)); err != nil {
			return err
		}
		if err := tx.UpdateBalance(recipient, to.Balance.Add(amount)); err != nil {
			return err
		}

		record = domain.Transfer{
			ID:        uuid.NewString(),
			Sender:    sender,
			Recipient: recipient,
			Amount:    amount,
			Timestamp: e.now().UTC(),
		}
		return tx.AppendTransfer(record)
	})
	if err != nil {
		return domain.Transfer{}, e.reject(op, sender, err)
	}

	e.logger.Info("transfer executed",
		zap.String("id", record.ID),
		zap.String("sender", sender),
		zap.String("recipient", recipient),
		zap.String("amount", amount.String()))
	e.emit(domain.LedgerEvent{
		ID:           record.ID,
		Kind:         domain.LedgerEventTransfer,
		Identity:     sender,
		Counterparty: recipient,
		FiatAmount:   amount,
		Timestamp:    record.Timestamp,
	})

	return record, nil
}
