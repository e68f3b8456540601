package clients

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known test vector key; never funded.
const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestLoadKey(t *testing.T) {
	key, ephemeral, err := loadKey(testKey)
	require.NoError(t, err)
	assert.False(t, ephemeral)
	assert.NotNil(t, key)

	generated, ephemeral, err := loadKey("  ")
	require.NoError(t, err)
	assert.True(t, ephemeral)
	assert.NotNil(t, generated)

	_, _, err = loadKey("0xzz")
	assert.Error(t, err)
}

func TestAddressOf(t *testing.T) {
	key, _, err := loadKey(testKey)
	require.NoError(t, err)

	addr, err := addressOf(key)
	require.NoError(t, err)
	assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", addr)
}

func TestNewBybitClient(t *testing.T) {
	assert.NotNil(t, NewBybitClient("", ""))
	assert.NotNil(t, NewBybitClient("key", "secret"))
}

func TestNewBinanceClient(t *testing.T) {
	assert.NotNil(t, NewBinanceClient("", ""))
}
