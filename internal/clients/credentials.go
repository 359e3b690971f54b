package clients

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/watchtower/internal/domain"
)

// Credentials exchange API credentials passed explicitly to gateway constructors.
type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
	// PrivateKey hex encoded wallet key (Hyperliquid).
	PrivateKey string
	// Address account address used instead of deriving it from PrivateKey.
	Address string
	BaseURL string
}

// Validate checks that the credentials required by platform are present.
func (c Credentials) Validate(platform string) error {
	var missing []string
	switch platform {
	case "okx":
		if c.APIKey == "" {
			missing = append(missing, "api key")
		}
		if c.APISecret == "" {
			missing = append(missing, "api secret")
		}
		if c.Passphrase == "" {
			missing = append(missing, "passphrase")
		}
	case "binance", "bybit":
		if c.APIKey == "" {
			missing = append(missing, "api key")
		}
		if c.APISecret == "" {
			missing = append(missing, "api secret")
		}
	case "hyperliquid":
		if c.PrivateKey == "" && c.Address == "" {
			missing = append(missing, "private key or address")
		}
	default:
		return errors.Wrapf(domain.ErrConfiguration, "unknown platform %q", platform)
	}

	if len(missing) > 0 {
		return errors.Wrapf(domain.ErrConfiguration, "%s credentials: missing %s", platform, strings.Join(missing, ", "))
	}
	return nil
}
