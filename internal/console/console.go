// Package console is the interactive terminal front end of the wallet.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/carteira/internal/domain"
	"github.com/vadiminshakov/carteira/internal/services/ledger"
	"go.uber.org/zap"
)

type wallet interface {
	OpenAccount(ctx context.Context, identity string) (domain.Account, error)
	Buy(ctx context.Context, identity, asset string, fiatAmount decimal.Decimal) (ledger.BuyResult, error)
	Sell(ctx context.Context, identity, asset string, quantity decimal.Decimal) (ledger.SellResult, error)
	Transfer(ctx context.Context, sender, recipient string, amount decimal.Decimal) (domain.Transfer, error)
	Portfolio(ctx context.Context, identity string) (domain.Portfolio, error)
	Quotes(ctx context.Context) (domain.Quotes, error)
	Rules() ledger.Rules
}

// Console drives one identity's session against the ledger engine.
type Console struct {
	wallet   wallet
	fiat     string
	identity string
	out      io.Writer
	logger   *zap.Logger
}

func New(w wallet, fiat string, out io.Writer, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{wallet: w, fiat: strings.ToUpper(fiat), out: out, logger: logger}
}

// Identity returns the identity the session acts as.
func (c *Console) Identity() string { return c.identity }

// SignIn switches the session to identity, opening the account first when asked.
func (c *Console) SignIn(ctx context.Context, identity string, open bool) (string, error) {
	identity = strings.TrimSpace(identity)
	if err := validateIdentity(identity); err != nil {
		return "", err
	}

	if open {
		acc, err := c.wallet.OpenAccount(ctx, identity)
		if err != nil {
			return "", err
		}
		c.identity = identity
		return successStyle.Render(fmt.Sprintf("Account %s opened with %s %s",
			identity, formatFiat(acc.Balance), c.fiat)), nil
	}

	if _, err := c.wallet.Portfolio(ctx, identity); err != nil {
		return "", err
	}
	c.identity = identity
	return successStyle.Render("Signed in as " + identity), nil
}

func (c *Console) portfolio(ctx context.Context) (string, error) {
	p, err := c.wallet.Portfolio(ctx, c.identity)
	if err != nil {
		return "", err
	}

	// valuation is best effort; the portfolio renders without quotes
	quotes, err := c.wallet.Quotes(ctx)
	if err != nil {
		c.logger.Debug("portfolio valuation without quotes", zap.Error(err))
		quotes = domain.NewQuotes(c.fiat, quotes.FetchedAt)
	}
	return renderPortfolio(p, quotes, c.fiat), nil
}

func (c *Console) quotes(ctx context.Context) (string, error) {
	q, err := c.wallet.Quotes(ctx)
	if err != nil {
		return "", err
	}
	return renderQuotes(q, c.wallet.Rules().SupportedAssets), nil
}

func (c *Console) buy(ctx context.Context, asset, amount string) (string, error) {
	fiatAmount, err := parseAmount(amount)
	if err != nil {
		return "", err
	}
	res, err := c.wallet.Buy(ctx, c.identity, asset, fiatAmount)
	if err != nil {
		return "", err
	}
	return successStyle.Render(fmt.Sprintf("Bought %s %s for %s %s at %s\nHolding %s %s, balance %s %s",
		res.Quantity, res.Asset, formatFiat(res.Spent), c.fiat, res.Price,
		res.Holding, res.Asset, formatFiat(res.Balance), c.fiat)), nil
}

func (c *Console) sell(ctx context.Context, asset, quantity string) (string, error) {
	qty, err := parseAmount(quantity)
	if err != nil {
		return "", err
	}
	res, err := c.wallet.Sell(ctx, c.identity, asset, qty)
	if err != nil {
		return "", err
	}
	return successStyle.Render(fmt.Sprintf("Sold %s %s for %s %s at %s\nRemaining %s %s, balance %s %s",
		res.Sold, res.Asset, formatFiat(res.Credited), c.fiat, res.Price,
		res.Remaining, res.Asset, formatFiat(res.Balance), c.fiat)), nil
}

func (c *Console) transfer(ctx context.Context, recipient, amount string) (string, error) {
	value, err := parseAmount(amount)
	if err != nil {
		return "", err
	}
	t, err := c.wallet.Transfer(ctx, c.identity, strings.TrimSpace(recipient), value)
	if err != nil {
		return "", err
	}
	return successStyle.Render(fmt.Sprintf("Sent %s %s to %s (ref %s)",
		formatFiat(t.Amount), c.fiat, t.Recipient, shortID(t.ID))), nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return decimal.Zero, errors.Wrap(domain.ErrInvalidAmount, "amount cannot be empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(domain.ErrInvalidAmount, "%q is not a number", s)
	}
	if !d.IsPositive() {
		return decimal.Zero, errors.Wrapf(domain.ErrInvalidAmount, "%s must be greater than zero", d)
	}
	return d, nil
}

func validateIdentity(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.Wrap(domain.ErrInvalidIdentity, "identity cannot be empty")
	}
	if strings.ContainsAny(s, "\x00\n\t") {
		return errors.Wrap(domain.ErrInvalidIdentity, "identity contains control characters")
	}
	return nil
}

func validateAmount(s string) error {
	_, err := parseAmount(s)
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
