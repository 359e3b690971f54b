// Command watchtower monitors an exchange account: it keeps a cost-basis
// ledger of held assets, notifies about large price moves and one-shot price
// alerts, and sends periodic portfolio reports.
//
// Usage:
//
//	watchtower setup                       # interactive config wizard
//	watchtower run --config config.yaml    # start the engine
//	watchtower alerts add BTC-USDT above 70000
//
// Required environment variables (a .env file is loaded when present):
//
//	For OKX: OKX_API_KEY, OKX_API_SECRET, OKX_API_PASSPHRASE
//	For Binance: BINANCE_API_KEY, BINANCE_API_SECRET
//	For Bybit: BYBIT_API_KEY, BYBIT_API_SECRET
//	For Hyperliquid: HYPERLIQUID_PRIVATE_KEY or HYPERLIQUID_ACCOUNT_ADDRESS
//	For Telegram: TELEGRAM_BOT_TOKEN, TELEGRAM_CHAT_ID
package main

import "github.com/vadiminshakov/watchtower/internal/cli"

func main() {
	cli.Execute()
}
