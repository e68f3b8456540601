package pricer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const awesomeBody = `{
  "BTCBRL": {"code": "BTC", "codein": "BRL", "bid": "350123.45", "ask": "350200.00"},
  "USDBRL": {"code": "USD", "codein": "BRL", "bid": "5.4321", "ask": "5.4400"},
  "EURBRL": {"code": "EUR", "codein": "BRL", "bid": "0", "ask": "6.0"},
  "GBPBRL": {"code": "GBP", "codein": "USD", "bid": "not-a-number"}
}`

func TestAwesomeAPISource_FetchQuotes(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(awesomeBody))
	}))
	defer srv.Close()

	src := NewAwesomeAPISource("brl", []string{"BTC", "usd", "EUR", "GBP", "BRL", "BTC"}, WithBaseURL(srv.URL+"/"))
	quotes, err := src.FetchQuotes(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/last/BTC-BRL,USD-BRL,EUR-BRL,GBP-BRL", gotPath)
	assert.Equal(t, "BRL", quotes.Fiat)
	assert.False(t, quotes.FetchedAt.IsZero())

	btc, ok := quotes.Price("BTC")
	require.True(t, ok)
	assert.True(t, btc.Equal(decimal.RequireFromString("350123.45")))

	usd, ok := quotes.Price("USD")
	require.True(t, ok)
	assert.Equal(t, "5.4321", usd.String())

	_, ok = quotes.Price("EUR")
	assert.False(t, ok, "zero bid must read as unquoted")
	_, ok = quotes.Price("GBP")
	assert.False(t, ok, "quote against another fiat is ignored")
}

func TestAwesomeAPISource_UnparseableBidFailsSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"BTCBRL": {"bid": "not-a-number"}, "USDBRL": {"bid": "5.10"}}`))
	}))
	defer srv.Close()

	src := NewAwesomeAPISource("BRL", []string{"BTC", "USD"}, WithBaseURL(srv.URL))
	quotes, err := src.FetchQuotes(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BTC")
	assert.Empty(t, quotes.Prices)
}

func TestAwesomeAPISource_KeyFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"CNYBRL": {"bid": "0.75"}}`))
	}))
	defer srv.Close()

	src := NewAwesomeAPISource("BRL", []string{"CNY"}, WithBaseURL(srv.URL))
	quotes, err := src.FetchQuotes(context.Background())
	require.NoError(t, err)

	cny, ok := quotes.Price("CNY")
	require.True(t, ok)
	assert.Equal(t, "0.75", cny.String())
}

func TestAwesomeAPISource_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-200 status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "rate limited", http.StatusTooManyRequests)
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"BTCBRL":`))
			},
		},
		{
			name: "no usable prices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"XYZBRL": {"code": "XYZ", "bid": "1"}}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			src := NewAwesomeAPISource("BRL", []string{"BTC"}, WithBaseURL(srv.URL))
			_, err := src.FetchQuotes(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestAwesomeAPISource_HonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	src := NewAwesomeAPISource("BRL", []string{"BTC"}, WithBaseURL(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := src.FetchQuotes(ctx)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAwesomeAPISource_NoAssets(t *testing.T) {
	src := NewAwesomeAPISource("BRL", []string{"BRL"})
	_, err := src.FetchQuotes(context.Background())
	assert.Error(t, err)
}
