package pricer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_Add(t *testing.T) {
	now := func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	snap := newSnapshot("brl", []string{"btc", "USD"}, now)

	require.NoError(t, snap.add("BTC", " 350000.10 "))
	require.NoError(t, snap.add("usd", "-1"))
	require.NoError(t, snap.add("ETH", "garbage"), "unrequested assets are ignored")
	assert.Error(t, snap.add("USD", "5,10"))

	btc, ok := snap.quotes.Price("BTC")
	require.True(t, ok)
	assert.Equal(t, "350000.1", btc.String())
	_, ok = snap.quotes.Price("USD")
	assert.False(t, ok)
	assert.Equal(t, "BRL", snap.quotes.Fiat)
}
