package internal

import (
	"context"
	"fmt"

	binance "github.com/adshao/go-binance/v2"
	bybit "github.com/hirokisan/bybit/v2"
	"github.com/vadiminshakov/watchtower/config"
	"github.com/vadiminshakov/watchtower/internal/clients"
	"github.com/vadiminshakov/watchtower/internal/services/account"
	"github.com/vadiminshakov/watchtower/internal/services/marketdata"
)

// serviceProvider builds the platform-specific gateways.
type serviceProvider interface {
	Market() marketdata.Gateway
	Account() account.Gateway
}

// newServiceProvider creates the gateways of the configured platform.
// This is the single point of truth for dispatching to platform-specific implementations.
func newServiceProvider(ctx context.Context, cfg config.Config) (serviceProvider, error) {
	creds := cfg.Credentials

	switch cfg.Platform {
	case config.PlatformOKX:
		baseURL := creds.BaseURL
		if baseURL == "" {
			baseURL = clients.OKXBaseURL
		}
		client := clients.NewOKXClient(baseURL, clients.NewOKXSigner(creds))
		return &okxProvider{client: client, quote: cfg.Quote}, nil
	case config.PlatformBinance:
		return &binanceProvider{client: clients.NewBinanceClient(creds), quote: cfg.Quote}, nil
	case config.PlatformBybit:
		return &bybitProvider{client: clients.NewBybitClient(creds), quote: cfg.Quote}, nil
	case config.PlatformHyperliquid:
		client, err := clients.NewHyperliquidClient(ctx, creds)
		if err != nil {
			return nil, err
		}
		return &hyperliquidProvider{client: client}, nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", cfg.Platform)
	}
}

type okxProvider struct {
	client *clients.OKXClient
	quote  string
}

func (p *okxProvider) Market() marketdata.Gateway {
	return marketdata.NewOKXGateway(p.client, p.quote)
}
func (p *okxProvider) Account() account.Gateway {
	return account.NewOKXGateway(p.client)
}

type binanceProvider struct {
	client *binance.Client
	quote  string
}

func (p *binanceProvider) Market() marketdata.Gateway {
	return marketdata.NewBinanceGateway(p.client, p.quote)
}
func (p *binanceProvider) Account() account.Gateway {
	return account.NewBinanceGateway(p.client)
}

type bybitProvider struct {
	client *bybit.Client
	quote  string
}

func (p *bybitProvider) Market() marketdata.Gateway {
	return marketdata.NewBybitGateway(p.client, p.quote)
}
func (p *bybitProvider) Account() account.Gateway {
	return account.NewBybitGateway(p.client)
}

type hyperliquidProvider struct {
	client *clients.HyperliquidClient
}

func (p *hyperliquidProvider) Market() marketdata.Gateway {
	return marketdata.NewHyperliquidGateway(p.client.Info())
}
func (p *hyperliquidProvider) Account() account.Gateway {
	return account.NewHyperliquidGateway(p.client.Info(), p.client.AccountAddress())
}
