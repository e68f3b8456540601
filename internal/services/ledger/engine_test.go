package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/carteira/internal/domain"
	"github.com/vadiminshakov/carteira/internal/services/ledger"
	"github.com/vadiminshakov/carteira/internal/services/pricer"
	"github.com/vadiminshakov/carteira/internal/storage/memstore"
)

func TestNewEngine_Validation(t *testing.T) {
	quotes := pricer.NewStaticSource("BRL", nil)

	_, err := ledger.NewEngine(nil, quotes, ledger.DefaultRules(), nil)
	assert.Error(t, err)

	_, err = ledger.NewEngine(memstore.New(), nil, ledger.DefaultRules(), nil)
	assert.Error(t, err)

	tests := []struct {
		name   string
		modify func(r *ledger.Rules)
	}{
		{"zero minimum", func(r *ledger.Rules) { r.MinimumTransactionValue = decimal.Zero }},
		{"minimum finer than cents", func(r *ledger.Rules) { r.MinimumTransactionValue = dec("0.001") }},
		{"no assets", func(r *ledger.Rules) { r.SupportedAssets = []string{" "} }},
		{"inverted balance range", func(r *ledger.Rules) { r.InitialBalanceMin, r.InitialBalanceMax = dec("10"), dec("5") }},
		{"negative timeout", func(r *ledger.Rules) { r.QuoteTimeout = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := ledger.DefaultRules()
			tt.modify(&rules)
			_, err := ledger.NewEngine(memstore.New(), quotes, rules, nil)
			assert.Error(t, err)
		})
	}
}

func TestEngine_RulesDefaults(t *testing.T) {
	rules := ledger.DefaultRules()
	rules.QuoteTimeout = 0
	rules.RecentTransfers = 0
	rules.SupportedAssets = []string{" btc", "eth "}

	f := newFixtureWithRules(t, rules)
	got := f.engine.Rules()
	assert.Equal(t, 5*time.Second, got.QuoteTimeout)
	assert.Equal(t, 5, got.RecentTransfers)
	assert.Equal(t, []string{"BTC", "ETH"}, got.SupportedAssets)

	got.SupportedAssets[0] = "XXX"
	assert.Equal(t, "BTC", f.engine.Rules().SupportedAssets[0], "Rules returns a copy")
}

func TestBuySell_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice", "1000")

	bought, err := f.engine.Buy(ctx, "alice", "BTC", dec("100"))
	require.NoError(t, err)
	requireDecimal(t, "0.002", bought.Quantity)
	requireDecimal(t, "0.002", bought.Holding)
	requireDecimal(t, "900", bought.Balance)
	requireDecimal(t, "50000", bought.Price)
	requireDecimal(t, "900", f.balance(t, "alice"))

	hs := f.holdings(t, "alice")
	require.Len(t, hs, 1)
	assert.Equal(t, "BTC", hs[0].Asset)
	requireDecimal(t, "0.002", hs[0].Quantity)

	sold, err := f.engine.Sell(ctx, "alice", "btc", dec("0.002"))
	require.NoError(t, err)
	requireDecimal(t, "100", sold.Credited)
	requireDecimal(t, "0", sold.Remaining)
	requireDecimal(t, "1000", sold.Balance)
	requireDecimal(t, "1000", f.balance(t, "alice"))
	assert.Empty(t, f.holdings(t, "alice"), "zero holding must not persist")
}

func TestBuy_TruncatesQuantity(t *testing.T) {
	f := newFixture(t)
	f.open(t, "alice", "1000")

	res, err := f.engine.Buy(context.Background(), "alice", "EUR", dec("100"))
	require.NoError(t, err)
	requireDecimal(t, "33.33333333", res.Quantity)
	requireDecimal(t, "900", res.Balance)

	// the full amount is charged even though the quantity was truncated
	requireDecimal(t, "900", f.balance(t, "alice"))
}

func TestBuy_TruncatesWithoutCarry(t *testing.T) {
	f := newFixture(t)
	f.open(t, "alice", "10")
	// 1/50.0000000000000002 = 0.0199999999999999992..., rounding at any
	// intermediate scale would carry into the eighth digit
	f.quotes.SetPrice("BTC", decimal.RequireFromString("50.0000000000000002"))

	res, err := f.engine.Buy(context.Background(), "alice", "BTC", dec("1"))
	require.NoError(t, err)
	requireDecimal(t, "0.01999999", res.Quantity)
	require.True(t, res.Quantity.Mul(res.Price).LessThanOrEqual(dec("1")))
	requireDecimal(t, "9", f.balance(t, "alice"))
}

func TestBuy_AccumulatesHolding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice", "1000")

	_, err := f.engine.Buy(ctx, "alice", "USD", dec("10"))
	require.NoError(t, err)
	res, err := f.engine.Buy(ctx, "alice", "USD", dec("15"))
	require.NoError(t, err)

	requireDecimal(t, "5", res.Holding)
	requireDecimal(t, "975", f.balance(t, "alice"))
}

func TestBuy_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		identity  string
		asset     string
		amount    string
		setup     func(f *fixture)
		want      error
		wantFetch bool
	}{
		{name: "below minimum", identity: "alice", asset: "BTC", amount: "0.009", want: domain.ErrBelowMinimum},
		{name: "zero amount", identity: "alice", asset: "BTC", amount: "0", want: domain.ErrBelowMinimum},
		{name: "negative amount", identity: "alice", asset: "BTC", amount: "-5", want: domain.ErrBelowMinimum},
		{name: "sub-cent amount", identity: "alice", asset: "BTC", amount: "10.001", want: domain.ErrInvalidAmount},
		{name: "unsupported asset", identity: "alice", asset: "DOGE", amount: "10", want: domain.ErrUnsupportedAsset},
		{name: "empty identity", identity: " ", asset: "BTC", amount: "10", want: domain.ErrInvalidIdentity},
		{name: "insufficient funds", identity: "alice", asset: "BTC", amount: "1000.01", want: domain.ErrInsufficientFunds, wantFetch: true},
		{name: "unknown account", identity: "ghost", asset: "BTC", amount: "10", want: domain.ErrAccountNotFound, wantFetch: true},
		{
			name: "asset not quoted", identity: "alice", asset: "GBP", amount: "10",
			want: domain.ErrQuoteUnavailable, wantFetch: true,
		},
		{
			name: "quote source down", identity: "alice", asset: "BTC", amount: "10",
			setup:     func(f *fixture) { f.quotes.FailWith(errors.New("503")) },
			want:      domain.ErrQuoteUnavailable,
			wantFetch: true,
		},
		{
			name: "quantity truncates to zero", identity: "alice", asset: "BTC", amount: "0.01",
			setup:     func(f *fixture) { f.quotes.SetPrice("BTC", dec("10000000000")) },
			want:      domain.ErrBelowMinimum,
			wantFetch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.open(t, "alice", "1000")
			if tt.setup != nil {
				tt.setup(f)
			}

			_, err := f.engine.Buy(context.Background(), tt.identity, tt.asset, dec(tt.amount))
			require.ErrorIs(t, err, tt.want)
			assert.NotErrorIs(t, err, domain.ErrInternalPersistence)

			requireDecimal(t, "1000", f.balance(t, "alice"))
			assert.Empty(t, f.holdings(t, "alice"))
			assert.Equal(t, tt.wantFetch, f.quotes.Calls() > 0, "quote fetch")
			assert.Len(t, f.journal.Events(), 1, "only the account opening is journaled")
		})
	}
}

func TestSell_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		asset    string
		quantity string
		want     error
	}{
		{name: "no holding", asset: "USD", quantity: "1", want: domain.ErrInsufficientAssetBalance},
		{name: "more than held", asset: "BTC", quantity: "0.00200001", want: domain.ErrInsufficientAssetBalance},
		{name: "value below minimum", asset: "BTC", quantity: "0.0000001", want: domain.ErrBelowMinimum},
		{name: "zero quantity", asset: "BTC", quantity: "0", want: domain.ErrInvalidAmount},
		{name: "negative quantity", asset: "BTC", quantity: "-0.001", want: domain.ErrInvalidAmount},
		{name: "too precise", asset: "BTC", quantity: "0.000000001", want: domain.ErrInvalidAmount},
		{name: "unsupported asset", asset: "DOGE", quantity: "1", want: domain.ErrUnsupportedAsset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.open(t, "alice", "1000")
			_, err := f.engine.Buy(ctx, "alice", "BTC", dec("100"))
			require.NoError(t, err)

			_, err = f.engine.Sell(ctx, "alice", tt.asset, dec(tt.quantity))
			require.ErrorIs(t, err, tt.want)

			requireDecimal(t, "900", f.balance(t, "alice"))
			hs := f.holdings(t, "alice")
			require.Len(t, hs, 1)
			requireDecimal(t, "0.002", hs[0].Quantity)
		})
	}
}

func TestSell_UsesLiveQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice", "1000")

	_, err := f.engine.Buy(ctx, "alice", "BTC", dec("100"))
	require.NoError(t, err)

	f.quotes.SetPrice("BTC", dec("60000"))
	res, err := f.engine.Sell(ctx, "alice", "BTC", dec("0.001"))
	require.NoError(t, err)
	requireDecimal(t, "60", res.Credited)
	requireDecimal(t, "0.001", res.Remaining)
	requireDecimal(t, "960", f.balance(t, "alice"))

	hs := f.holdings(t, "alice")
	require.Len(t, hs, 1)
	requireDecimal(t, "0.001", hs[0].Quantity)
}

func TestSell_TruncatesCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice", "1000")

	_, err := f.engine.Buy(ctx, "alice", "EUR", dec("100"))
	require.NoError(t, err)

	f.quotes.SetPrice("EUR", dec("3.333"))
	res, err := f.engine.Sell(ctx, "alice", "EUR", dec("1.5"))
	require.NoError(t, err)
	// 1.5 * 3.333 = 4.9995
	requireDecimal(t, "4.99", res.Credited)
}

func TestQuoteTimeout_NoMutation(t *testing.T) {
	stuck := stuckSource{release: make(chan struct{})}
	t.Cleanup(func() { close(stuck.release) })

	rules := ledger.DefaultRules()
	rules.QuoteTimeout = 50 * time.Millisecond

	store := memstore.New()
	engine, err := ledger.NewEngine(store, stuck, rules, nil)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = engine.OpenAccountWithBalance(ctx, "alice", dec("1000"))
	require.NoError(t, err)

	start := time.Now()
	_, err = engine.Buy(ctx, "alice", "BTC", dec("100"))
	require.ErrorIs(t, err, domain.ErrQuoteUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)

	_, err = engine.Quotes(ctx)
	assert.ErrorIs(t, err, domain.ErrQuoteUnavailable)

	acc, err := store.Account(ctx, "alice")
	require.NoError(t, err)
	requireDecimal(t, "1000", acc.Balance)
}

func TestQuoteFetch_HoldsNoLock(t *testing.T) {
	store := memstore.New()
	static := pricer.NewStaticSource("BRL", map[string]decimal.Decimal{"BTC": dec("50000")})

	var lockErr error
	source := hookSource{next: static, during: func(context.Context) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		tx, err := store.Begin(ctx, "alice")
		if err != nil {
			lockErr = err
			return
		}
		lockErr = tx.Rollback()
	}}

	engine, err := ledger.NewEngine(store, source, ledger.DefaultRules(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = engine.OpenAccountWithBalance(ctx, "alice", dec("1000"))
	require.NoError(t, err)

	_, err = engine.Buy(ctx, "alice", "BTC", dec("100"))
	require.NoError(t, err)
	assert.NoError(t, lockErr, "alice must be lockable while quotes are fetched")
}

func TestCommitFailure_NoEffect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice", "1000")
	f.open(t, "bob", "10")

	f.mem.FailCommits(errors.New("disk on fire"))

	_, err := f.engine.Buy(ctx, "alice", "BTC", dec("100"))
	require.ErrorIs(t, err, domain.ErrInternalPersistence)
	assert.Equal(t, "internal_persistence_error", domain.Kind(err))

	_, err = f.engine.Transfer(ctx, "alice", "bob", dec("100"))
	require.ErrorIs(t, err, domain.ErrInternalPersistence)

	requireDecimal(t, "1000", f.balance(t, "alice"))
	requireDecimal(t, "10", f.balance(t, "bob"))
	assert.Empty(t, f.holdings(t, "alice"))
	p, err := f.engine.Portfolio(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, p.RecentTransfers)
	assert.Len(t, f.journal.Events(), 2, "failed operations are not journaled")

	f.mem.FailCommits(nil)
	_, err = f.engine.Transfer(ctx, "alice", "bob", dec("100"))
	require.NoError(t, err, "locks were released after the failed commits")
	requireDecimal(t, "900", f.balance(t, "alice"))
}

func TestPortfolio(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice", "1000")
	f.open(t, "bob", "0")

	_, err := f.engine.Buy(ctx, "alice", "USD", dec("50"))
	require.NoError(t, err)
	_, err = f.engine.Buy(ctx, "alice", "BTC", dec("100"))
	require.NoError(t, err)
	_, err = f.engine.Transfer(ctx, "alice", "bob", dec("25"))
	require.NoError(t, err)

	p, err := f.engine.Portfolio(ctx, "alice")
	require.NoError(t, err)
	requireDecimal(t, "825", p.Account.Balance)
	require.Len(t, p.Holdings, 2)
	assert.Equal(t, "BTC", p.Holdings[0].Asset)
	assert.Equal(t, "USD", p.Holdings[1].Asset)
	requireDecimal(t, "10", p.Holding("USD"))
	require.Len(t, p.RecentTransfers, 1)
	assert.Equal(t, "bob", p.RecentTransfers[0].Recipient)

	quotes, err := f.engine.Quotes(ctx)
	require.NoError(t, err)
	total, missing := p.Value(quotes)
	requireDecimal(t, "975", total)
	assert.Empty(t, missing)

	_, err = f.engine.Portfolio(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	_, err = f.engine.Portfolio(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
}
