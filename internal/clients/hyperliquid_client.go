package clients

import (
	"context"
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	hyperliquid "github.com/sonirico/go-hyperliquid"
)

// HyperliquidMainnetURL public Hyperliquid API endpoint.
const HyperliquidMainnetURL = "https://api.hyperliquid.xyz"

// HyperliquidClient read-only access to the Hyperliquid Info API for one account.
type HyperliquidClient struct {
	info        *hyperliquid.Info
	accountAddr string
}

// NewHyperliquidClient derives the account address from the private key
// unless an explicit address is configured.
func NewHyperliquidClient(ctx context.Context, creds Credentials) (*HyperliquidClient, error) {
	baseURL := creds.BaseURL
	if baseURL == "" {
		baseURL = HyperliquidMainnetURL
	}

	accountAddr := creds.Address
	var privateKey *ecdsa.PrivateKey
	if creds.PrivateKey != "" {
		key := strings.TrimPrefix(strings.TrimPrefix(creds.PrivateKey, "0x"), "0X")

		var err error
		privateKey, err = crypto.HexToECDSA(key)
		if err != nil {
			return nil, errors.Wrap(err, "parse hyperliquid private key")
		}

		pub, ok := privateKey.Public().(*ecdsa.PublicKey)
		if !ok {
			return nil, errors.New("error casting public key to ECDSA")
		}
		if accountAddr == "" {
			accountAddr = crypto.PubkeyToAddress(*pub).Hex()
		}
	}

	ex := hyperliquid.NewExchange(ctx, privateKey, baseURL, nil, "", accountAddr, nil)

	return &HyperliquidClient{info: ex.Info(), accountAddr: accountAddr}, nil
}

func (c *HyperliquidClient) Info() *hyperliquid.Info { return c.info }
func (c *HyperliquidClient) AccountAddress() string  { return c.accountAddr }
