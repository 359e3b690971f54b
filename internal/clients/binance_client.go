package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient builds a Binance spot client.
func NewBinanceClient(creds Credentials) *binance.Client {
	client := binance.NewClient(creds.APIKey, creds.APISecret)
	if creds.BaseURL != "" {
		client.BaseURL = creds.BaseURL
	}
	return client
}
