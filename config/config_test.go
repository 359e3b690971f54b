package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/watchtower/internal/domain"
)

func env(pairs map[string]string) func(string) string {
	return func(k string) string { return pairs[k] }
}

func TestParse(t *testing.T) {
	data := []byte(`
platform: OKX
quote: usdt
ignored_assets: [usdc, " okb "]
epsilon: "0.0001"
watchlist: [btc, eth]
movement_threshold: "3.5"
intervals:
  alerts: 15s
  hourly: 2h
cycle_timeout: 20s
run_on_start: true
journal:
  path: trades.db
telegram:
  chat_id: "-100123"
log:
  debug: true
virtual:
  enabled: true
`)

	cfg, err := Parse(data, env(map[string]string{
		"OKX_API_KEY":        "key",
		"OKX_API_SECRET":     "secret",
		"OKX_API_PASSPHRASE": "pass",
		"TELEGRAM_BOT_TOKEN": "token",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, PlatformOKX, cfg.Platform)
	assert.Equal(t, "USDT", cfg.Quote)
	assert.Equal(t, []string{"USDC", "OKB"}, cfg.IgnoredAssets)
	assert.Equal(t, []string{"BTC", "ETH"}, cfg.Watchlist)
	assert.True(t, cfg.Epsilon.Equal(decimal.RequireFromString("0.0001")))
	assert.True(t, cfg.MovementThreshold.Equal(decimal.RequireFromString("3.5")))

	assert.Equal(t, 15*time.Second, cfg.Intervals.Alerts)
	assert.Equal(t, time.Minute, cfg.Intervals.Balances)
	assert.Equal(t, time.Minute, cfg.Intervals.Movement)
	assert.Equal(t, 2*time.Hour, cfg.Intervals.Hourly)
	assert.Equal(t, 24*time.Hour, cfg.Intervals.Daily)
	assert.Equal(t, time.Minute, cfg.Intervals.Virtual)
	assert.Equal(t, 20*time.Second, cfg.CycleTimeout)
	assert.True(t, cfg.RunOnStart)

	assert.Equal(t, StoreWAL, cfg.Store.Backend)
	assert.Equal(t, "trades.db", cfg.JournalPath)
	assert.Equal(t, "token", cfg.Telegram.BotToken)
	assert.Equal(t, "-100123", cfg.Telegram.ChatID)
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.VirtualEnabled)
	assert.Equal(t, "pass", cfg.Credentials.Passphrase)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("platform: binance\n"), env(map[string]string{
		"BINANCE_API_KEY":    "k",
		"BINANCE_API_SECRET": "s",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "USDT", cfg.Quote)
	assert.True(t, cfg.Epsilon.Equal(domain.DefaultEpsilon))
	assert.True(t, cfg.MovementThreshold.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, 30*time.Second, cfg.Intervals.Alerts)
	assert.False(t, cfg.Telegram.Enabled())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "unknown platform", yaml: "platform: kraken"},
		{name: "missing credentials", yaml: "platform: okx", env: map[string]string{"OKX_API_KEY": "k"}},
		{
			name: "chat id without token",
			yaml: "platform: bybit\ntelegram:\n  chat_id: \"1\"",
			env:  map[string]string{"BYBIT_API_KEY": "k", "BYBIT_API_SECRET": "s"},
		},
		{
			name: "redis without address",
			yaml: "platform: hyperliquid\nstore:\n  backend: redis",
			env:  map[string]string{"HYPERLIQUID_ACCOUNT_ADDRESS": "0xabc"},
		},
		{
			name: "non positive threshold",
			yaml: "platform: hyperliquid\nmovement_threshold: \"0\"",
			env:  map[string]string{"HYPERLIQUID_ACCOUNT_ADDRESS": "0xabc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml), env(tt.env))
			require.NoError(t, err)
			err = cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrConfiguration), err.Error())
		})
	}
}

func TestParse_InvalidDecimal(t *testing.T) {
	_, err := Parse([]byte("platform: okx\nepsilon: abc"), env(nil))
	assert.Error(t, err)
}

func TestWriteAndLoad(t *testing.T) {
	t.Setenv("BYBIT_API_KEY", "k")
	t.Setenv("BYBIT_API_SECRET", "s")

	tmp := Default()
	tmp.Platform = PlatformBybit
	tmp.Watchlist = []string{"SOL"}

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Write(path, tmp))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, PlatformBybit, cfg.Platform)
	assert.Equal(t, []string{"SOL"}, cfg.Watchlist)
	assert.Equal(t, 45*time.Second, cfg.CycleTimeout)
}
