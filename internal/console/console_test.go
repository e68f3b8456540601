package console

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/carteira/internal/domain"
	"github.com/vadiminshakov/carteira/internal/services/ledger"
	"github.com/vadiminshakov/carteira/internal/services/pricer"
	"github.com/vadiminshakov/carteira/internal/storage/memstore"
)

func newTestConsole(t *testing.T) (*Console, *pricer.StaticSource) {
	t.Helper()

	quotes := pricer.NewStaticSource("BRL", map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(50000),
		"USD": decimal.RequireFromString("5.00"),
	})
	engine, err := ledger.NewEngine(memstore.New(), quotes, ledger.DefaultRules(), nil,
		ledger.WithBalanceDraw(func(_, _ decimal.Decimal) decimal.Decimal { return decimal.NewFromInt(1000) }))
	require.NoError(t, err)

	return New(engine, "brl", &bytes.Buffer{}, nil), quotes
}

func TestConsole_SignIn(t *testing.T) {
	c, _ := newTestConsole(t)
	ctx := context.Background()

	_, err := c.SignIn(ctx, "alice", false)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.Empty(t, c.Identity())

	msg, err := c.SignIn(ctx, " alice ", true)
	require.NoError(t, err)
	assert.Contains(t, msg, "1000.00 BRL")
	assert.Equal(t, "alice", c.Identity())

	_, err = c.SignIn(ctx, "alice", true)
	assert.ErrorIs(t, err, domain.ErrAccountExists)

	_, err = c.SignIn(ctx, "", false)
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
}

func TestConsole_TradeRoundTrip(t *testing.T) {
	c, _ := newTestConsole(t)
	ctx := context.Background()
	_, err := c.SignIn(ctx, "alice", true)
	require.NoError(t, err)

	msg, err := c.buy(ctx, "BTC", "100,00")
	require.NoError(t, err)
	assert.Contains(t, msg, "Bought 0.002 BTC")
	assert.Contains(t, msg, "balance 900.00 BRL")

	out, err := c.portfolio(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "Balance: 900.00 BRL")
	assert.Contains(t, out, "0.00200000")
	assert.Contains(t, out, "Estimated value: 1000.00 BRL")

	msg, err = c.sell(ctx, "btc", "0.002")
	require.NoError(t, err)
	assert.Contains(t, msg, "for 100.00 BRL")
	assert.Contains(t, msg, "balance 1000.00 BRL")

	out, err = c.portfolio(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "No holdings")
}

func TestConsole_Transfer(t *testing.T) {
	c, _ := newTestConsole(t)
	ctx := context.Background()
	_, err := c.SignIn(ctx, "bob", true)
	require.NoError(t, err)
	_, err = c.SignIn(ctx, "alice", true)
	require.NoError(t, err)

	msg, err := c.transfer(ctx, "bob", "250.5")
	require.NoError(t, err)
	assert.Contains(t, msg, "Sent 250.50 BRL to bob")

	out, err := c.portfolio(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "-250.50 BRL  to bob")

	_, err = c.transfer(ctx, "carol", "1")
	assert.ErrorIs(t, err, domain.ErrRecipientNotFound)
	_, err = c.transfer(ctx, "alice", "1")
	assert.ErrorIs(t, err, domain.ErrSelfTransfer)
	_, err = c.transfer(ctx, "bob", "abc")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestConsole_QuotesUnavailable(t *testing.T) {
	c, quotes := newTestConsole(t)
	ctx := context.Background()
	_, err := c.SignIn(ctx, "alice", true)
	require.NoError(t, err)

	out, err := c.quotes(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "BTC")
	assert.Contains(t, out, "50000 BRL")
	assert.Contains(t, out, "n/a", "EUR is supported but not quoted")

	quotes.FailWith(errors.New("offline"))
	_, err = c.quotes(ctx)
	assert.ErrorIs(t, err, domain.ErrQuoteUnavailable)

	// portfolio still renders, without valuation
	out, err = c.portfolio(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "Balance: 1000.00 BRL")
	assert.NotContains(t, out, "Estimated value")
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "10", want: "10"},
		{in: " 0.5 ", want: "0.5"},
		{in: "12,34", want: "12.34"},
		{in: "", wantErr: true},
		{in: "0", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "ten", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAmount(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestValidateIdentity(t *testing.T) {
	assert.NoError(t, validateIdentity("alice"))
	assert.Error(t, validateIdentity("  "))
	assert.Error(t, validateIdentity("a\x00b"))
}

func TestRenderError(t *testing.T) {
	out := renderError(pkgerrors.Wrap(domain.ErrInsufficientFunds, "balance 10, need 20"))
	assert.Contains(t, out, "Insufficient balance")
	assert.Contains(t, out, "balance 10, need 20")

	out = renderError(domain.NewPersistenceError("commit", errors.New("disk full")))
	assert.Contains(t, out, "nothing was changed")
	assert.NotContains(t, out, "disk full")

	out = renderError(domain.ErrSelfTransfer)
	assert.Contains(t, out, "cannot transfer to yourself")

	out = renderError(errors.New("boom"))
	assert.Contains(t, out, "Error: boom")
}

func TestRenderPortfolio_IncomingTransfer(t *testing.T) {
	p := domain.Portfolio{
		Account: domain.Account{Identity: "bob", Balance: decimal.NewFromInt(10)},
		RecentTransfers: []domain.Transfer{{
			ID: "t1", Sender: "alice", Recipient: "bob",
			Amount: decimal.RequireFromString("2.5"), Timestamp: time.Now(),
		}},
		Holdings: []domain.Holding{{Identity: "bob", Asset: "EUR", Quantity: decimal.NewFromInt(1)}},
	}
	quotes := domain.NewQuotes("BRL", time.Now())
	quotes.Set("BTC", decimal.NewFromInt(1))

	out := renderPortfolio(p, quotes, "BRL")
	assert.Contains(t, out, "+2.50 BRL  from alice")
	assert.Contains(t, out, "unpriced: EUR")
}
