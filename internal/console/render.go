package console

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/carteira/internal/domain"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	warning   = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#FF5F87"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1)

	boxStyle     = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
	mutedStyle   = lipgloss.NewStyle().Foreground(subtle)
	successStyle = lipgloss.NewStyle().Foreground(special)
	errorStyle   = lipgloss.NewStyle().Foreground(warning).Bold(true)
)

var messages = map[string]string{
	"below_minimum":              "Amount is below the minimum transaction value",
	"unsupported_asset":          "This asset is not supported",
	"quote_unavailable":          "Quotes are unavailable right now, try again later",
	"insufficient_funds":         "Insufficient balance",
	"insufficient_asset_balance": "Insufficient asset quantity",
	"self_transfer":              "You cannot transfer to yourself",
	"recipient_not_found":        "Recipient not found",
	"internal_persistence_error": "Internal error, nothing was changed",
	"invalid_amount":             "Invalid amount",
	"invalid_identity":           "Invalid identity",
	"account_not_found":          "Account not found",
	"account_exists":             "Account already exists",
}

// renderError turns an engine error into a single user-facing line.
func renderError(err error) string {
	kind := domain.Kind(err)
	msg, ok := messages[kind]
	if !ok {
		return errorStyle.Render("Error: " + err.Error())
	}
	if kind == "internal_persistence_error" {
		return errorStyle.Render(msg)
	}
	var detail string
	if cause := errors.Cause(err); cause != err {
		detail = strings.TrimSuffix(err.Error(), ": "+cause.Error())
	}
	if detail == "" {
		return errorStyle.Render(msg)
	}
	return errorStyle.Render(fmt.Sprintf("%s (%s)", msg, detail))
}

func renderPortfolio(p domain.Portfolio, quotes domain.Quotes, fiat string) string {
	var b strings.Builder

	b.WriteString(sectionStyle.Render("WALLET " + p.Account.Identity))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Balance: %s %s\n", formatFiat(p.Account.Balance), fiat)

	if len(p.Holdings) == 0 {
		b.WriteString(mutedStyle.Render("No holdings"))
		b.WriteString("\n")
	} else {
		rows := make([]string, 0, len(p.Holdings))
		for _, h := range p.Holdings {
			line := fmt.Sprintf("%-5s %s", h.Asset, h.Quantity.StringFixed(domain.QuantityScale))
			if price, ok := quotes.Price(h.Asset); ok {
				line += fmt.Sprintf("  ≈ %s %s", formatFiat(h.Quantity.Mul(price)), fiat)
			}
			rows = append(rows, line)
		}
		b.WriteString(boxStyle.Render(strings.Join(rows, "\n")))
		b.WriteString("\n")
	}

	if len(quotes.Prices) > 0 {
		total, missing := p.Value(quotes)
		fmt.Fprintf(&b, "Estimated value: %s %s", formatFiat(total), fiat)
		if len(missing) > 0 {
			fmt.Fprintf(&b, " (unpriced: %s)", strings.Join(missing, ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString(sectionStyle.Render("RECENT TRANSFERS"))
	b.WriteString("\n")
	if len(p.RecentTransfers) == 0 {
		b.WriteString(mutedStyle.Render("No transfers yet"))
		b.WriteString("\n")
		return b.String()
	}
	for _, t := range p.RecentTransfers {
		when := t.Timestamp.Local().Format("2006-01-02 15:04")
		if t.Sender == p.Account.Identity {
			fmt.Fprintf(&b, "%s  -%s %s  to %s\n", when, formatFiat(t.Amount), fiat, t.Recipient)
		} else {
			fmt.Fprintf(&b, "%s  +%s %s  from %s\n", when, formatFiat(t.Amount), fiat, t.Sender)
		}
	}
	return b.String()
}

func renderQuotes(q domain.Quotes, assets []string) string {
	if len(assets) == 0 {
		for asset := range q.Prices {
			assets = append(assets, asset)
		}
		sort.Strings(assets)
	}

	rows := make([]string, 0, len(assets))
	for _, asset := range assets {
		if price, ok := q.Price(asset); ok {
			rows = append(rows, fmt.Sprintf("%-5s %s %s", asset, price.String(), q.Fiat))
		} else {
			rows = append(rows, fmt.Sprintf("%-5s %s", asset, mutedStyle.Render("n/a")))
		}
	}

	header := sectionStyle.Render("QUOTES")
	if !q.FetchedAt.IsZero() {
		header += mutedStyle.Render("  as of " + q.FetchedAt.Local().Format("15:04:05"))
	}
	return header + "\n" + boxStyle.Render(strings.Join(rows, "\n")) + "\n"
}

func formatFiat(d decimal.Decimal) string {
	return d.StringFixed(domain.FiatScale)
}
