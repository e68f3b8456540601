package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/carteira/internal/domain"
	"github.com/vadiminshakov/carteira/internal/services/ledger"
	"github.com/vadiminshakov/carteira/internal/services/pricer"
	"github.com/vadiminshakov/carteira/internal/storage/memstore"
)

var epoch = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

type fixture struct {
	store   ledger.Store
	mem     *memstore.Store
	quotes  *pricer.StaticSource
	journal *recordingJournal
	engine  *ledger.Engine
}

func newFixture(t *testing.T, opts ...ledger.Option) *fixture {
	t.Helper()
	return newFixtureWithRules(t, ledger.DefaultRules(), opts...)
}

func newFixtureWithRules(t *testing.T, rules ledger.Rules, opts ...ledger.Option) *fixture {
	t.Helper()
	mem := memstore.New()
	f := newFixtureOn(t, mem, rules, opts...)
	f.mem = mem
	return f
}

func newFixtureOn(t *testing.T, store ledger.Store, rules ledger.Rules, opts ...ledger.Option) *fixture {
	t.Helper()

	f := &fixture{
		store: store,
		quotes: pricer.NewStaticSource("BRL", map[string]decimal.Decimal{
			"BTC": decimal.NewFromInt(50000),
			"USD": decimal.RequireFromString("5.00"),
			"EUR": decimal.RequireFromString("3"),
		}),
		journal: &recordingJournal{},
	}
	opts = append([]ledger.Option{ledger.WithJournal(f.journal), ledger.WithClock(newClock().Now)}, opts...)

	engine, err := ledger.NewEngine(f.store, f.quotes, rules, nil, opts...)
	require.NoError(t, err)
	f.engine = engine
	return f
}

func (f *fixture) open(t *testing.T, identity, balance string) {
	t.Helper()
	_, err := f.engine.OpenAccountWithBalance(context.Background(), identity, dec(balance))
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, identity string) decimal.Decimal {
	t.Helper()
	acc, err := f.store.Account(context.Background(), identity)
	require.NoError(t, err)
	return acc.Balance
}

func (f *fixture) holdings(t *testing.T, identity string) []domain.Holding {
	t.Helper()
	hs, err := f.store.Holdings(context.Background(), identity)
	require.NoError(t, err)
	return hs
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got}, msgAndArgs...)...)
}

// clock ticks one second per call so transfer timestamps are strictly ordered.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: epoch} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordingJournal struct {
	mu     sync.Mutex
	events []domain.LedgerEvent
	err    error
}

func (j *recordingJournal) Save(e domain.LedgerEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.events = append(j.events, e)
	return nil
}

func (j *recordingJournal) Events() []domain.LedgerEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]domain.LedgerEvent(nil), j.events...)
}

// stuckSource never answers until released and ignores its context.
type stuckSource struct {
	release chan struct{}
}

func (s stuckSource) FetchQuotes(context.Context) (domain.Quotes, error) {
	<-s.release
	return domain.Quotes{}, errors.New("released")
}

// hookSource runs during while "fetching" and then answers from next.
type hookSource struct {
	next   ledger.QuoteSource
	during func(ctx context.Context)
}

func (s hookSource) FetchQuotes(ctx context.Context) (domain.Quotes, error) {
	s.during(ctx)
	return s.next.FetchQuotes(ctx)
}
