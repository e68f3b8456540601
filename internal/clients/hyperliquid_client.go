package clients

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	hyperliquid "github.com/sonirico/go-hyperliquid"
)

const HyperliquidMainnetURL = "https://api.hyperliquid.xyz"

type HyperliquidClient struct {
	exchange    *hyperliquid.Exchange
	accountAddr string
	ephemeral   bool
}

// NewHyperliquidClient builds an exchange handle signed by privateKeyHex.
// Quotes only need the public Info API, so an empty key is replaced by a
// freshly generated throwaway key.
func NewHyperliquidClient(privateKeyHex string, baseURL string) (*HyperliquidClient, error) {
	if baseURL == "" {
		baseURL = HyperliquidMainnetURL
	}

	privateKey, ephemeral, err := loadKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	accountAddr, err := addressOf(privateKey)
	if err != nil {
		return nil, err
	}

	// Info and SpotMeta are fetched lazily by the SDK
	ex := hyperliquid.NewExchange(
		context.Background(),
		privateKey,
		baseURL,
		nil,
		"",
		accountAddr,
		nil,
	)

	return &HyperliquidClient{exchange: ex, accountAddr: accountAddr, ephemeral: ephemeral}, nil
}

func loadKey(hexKey string) (*ecdsa.PrivateKey, bool, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, false, errors.Wrap(err, "generate hyperliquid key")
		}
		return key, true, nil
	}

	hexKey = strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, false, errors.Wrap(err, "parse hyperliquid private key")
	}
	return key, false, nil
}

func addressOf(key *ecdsa.PrivateKey) (string, error) {
	pubECDSA, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return "", fmt.Errorf("error casting public key to ECDSA")
	}
	return crypto.PubkeyToAddress(*pubECDSA).Hex(), nil
}

func (c *HyperliquidClient) Exchange() *hyperliquid.Exchange { return c.exchange }
func (c *HyperliquidClient) Info() *hyperliquid.Info         { return c.exchange.Info() }
func (c *HyperliquidClient) AccountAddress() string          { return c.accountAddr }

// Ephemeral reports whether the signing key was generated for this process.
func (c *HyperliquidClient) Ephemeral() bool { return c.ephemeral }
