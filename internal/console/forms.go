package console

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	actionPortfolio = "portfolio"
	actionQuotes    = "quotes"
	actionBuy       = "buy"
	actionSell      = "sell"
	actionTransfer  = "transfer"
	actionSwitch    = "switch"
	actionQuit      = "quit"
)

// Run shows the sign-in form unless identity is preset, then loops over the
// main menu until the user quits or ctx is cancelled.
func (c *Console) Run(ctx context.Context, identity string) error {
	c.clear()
	fmt.Fprintln(c.out, headerStyle.Render("CARTEIRA"))
	fmt.Fprintln(c.out, mutedStyle.Render("Simulated multi-asset wallet.\n"))

	if identity != "" {
		msg, err := c.SignIn(ctx, identity, false)
		if err != nil {
			fmt.Fprintln(c.out, renderError(err))
		} else {
			fmt.Fprintln(c.out, msg)
		}
	}

	for ctx.Err() == nil {
		if c.identity == "" {
			if err := c.signInForm(ctx); err != nil {
				return quitErr(err)
			}
			continue
		}

		action, err := c.menu()
		if err != nil {
			return quitErr(err)
		}
		if action == actionQuit {
			return nil
		}

		msg, err := c.dispatch(ctx, action)
		if err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				continue
			}
			c.logger.Debug("console action failed", zap.String("action", action), zap.Error(err))
			fmt.Fprintln(c.out, renderError(err))
			continue
		}
		if msg != "" {
			fmt.Fprintln(c.out, msg)
		}
	}
	return ctx.Err()
}

func (c *Console) dispatch(ctx context.Context, action string) (string, error) {
	switch action {
	case actionPortfolio:
		return c.portfolio(ctx)
	case actionQuotes:
		return c.quotes(ctx)
	case actionBuy:
		asset, amount, err := c.tradeForm("BUY", "Amount to spend ("+c.fiat+")")
		if err != nil {
			return "", err
		}
		return c.buy(ctx, asset, amount)
	case actionSell:
		asset, qty, err := c.tradeForm("SELL", "Quantity to sell")
		if err != nil {
			return "", err
		}
		return c.sell(ctx, asset, qty)
	case actionTransfer:
		recipient, amount, err := c.transferForm()
		if err != nil {
			return "", err
		}
		return c.transfer(ctx, recipient, amount)
	case actionSwitch:
		c.identity = ""
		return "", nil
	default:
		return "", fmt.Errorf("unknown action %q", action)
	}
}

func (c *Console) signInForm(ctx context.Context) error {
	var (
		identity string
		open     bool
	)

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Identity").
				Description("Your wallet name").
				Value(&identity).
				Validate(validateIdentity),
			huh.NewConfirm().
				Title("Open a new account?").
				Affirmative("Yes, open").
				Negative("No, sign in").
				Value(&open),
		),
	).Run()
	if err != nil {
		return err
	}

	msg, err := c.SignIn(ctx, identity, open)
	if err != nil {
		fmt.Fprintln(c.out, renderError(err))
		return nil
	}
	fmt.Fprintln(c.out, msg)
	return nil
}

func (c *Console) menu() (string, error) {
	var action string
	fmt.Fprintln(c.out, sectionStyle.Render("SIGNED IN AS "+c.identity))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("What next?").
				Options(
					huh.NewOption("Portfolio", actionPortfolio),
					huh.NewOption("Quotes", actionQuotes),
					huh.NewOption("Buy", actionBuy),
					huh.NewOption("Sell", actionSell),
					huh.NewOption("Transfer", actionTransfer),
					huh.NewOption("Switch identity", actionSwitch),
					huh.NewOption("Quit", actionQuit),
				).
				Value(&action),
		),
	).Run()
	return action, err
}

func (c *Console) tradeForm(title, amountTitle string) (asset, amount string, err error) {
	assets := c.wallet.Rules().SupportedAssets
	options := make([]huh.Option[string], 0, len(assets))
	for _, a := range assets {
		options = append(options, huh.NewOption(a, a))
	}

	fmt.Fprintln(c.out, sectionStyle.Render(title))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Asset").
				Options(options...).
				Value(&asset),
			huh.NewInput().
				Title(amountTitle).
				Value(&amount).
				Validate(validateAmount),
		),
	).Run()
	return asset, amount, err
}

func (c *Console) transferForm() (recipient, amount string, err error) {
	fmt.Fprintln(c.out, sectionStyle.Render("TRANSFER"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Recipient").
				Value(&recipient).
				Validate(func(s string) error {
					if err := validateIdentity(s); err != nil {
						return err
					}
					if s == c.identity {
						return fmt.Errorf("cannot transfer to yourself")
					}
					return nil
				}),
			huh.NewInput().
				Title("Amount ("+c.fiat+")").
				Value(&amount).
				Validate(validateAmount),
		),
	).Run()
	return recipient, amount, err
}

func (c *Console) clear() {
	fmt.Fprint(c.out, "\033[H\033[2J")
}

func quitErr(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return nil
	}
	return err
}
