package clients

import (
	"github.com/hirokisan/bybit/v2"
)

// NewBybitClient builds an authenticated Bybit client.
func NewBybitClient(creds Credentials) *bybit.Client {
	client := bybit.NewClient().WithAuth(creds.APIKey, creds.APISecret)
	if creds.BaseURL != "" {
		client = client.WithBaseURL(creds.BaseURL)
	}

	return client
}
