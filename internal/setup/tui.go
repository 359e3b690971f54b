// Package setup implements the interactive configuration wizard.
package setup

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/watchtower/config"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

const title = "WATCHTOWER CONFIG WIZARD"

// Answers user input collected by the wizard.
type Answers struct {
	Platform     string
	Quote        string
	Watchlist    string
	Threshold    string
	AlertsEvery  string
	BalanceEvery string
	ChatID       string
	Backend      string
	RedisAddr    string
	JournalPath  string
	Virtual      bool
}

// RunTUI launches the terminal configuration wizard and writes the result to path.
func RunTUI(path string) error {
	defaults := config.Default()
	a := Answers{
		Platform:     defaults.Platform,
		Quote:        defaults.Quote,
		Threshold:    defaults.MovementThreshold,
		AlertsEvery:  defaults.Intervals.Alerts.String(),
		BalanceEvery: defaults.Intervals.Balances.String(),
		Backend:      defaults.Store.Backend,
	}

	step("STEP 1: EXCHANGE")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Read-only API keys are enough, nothing is ever traded.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Exchange Platform").
				Options(
					huh.NewOption("OKX", config.PlatformOKX),
					huh.NewOption("Binance", config.PlatformBinance),
					huh.NewOption("Bybit", config.PlatformBybit),
					huh.NewOption("Hyperliquid", config.PlatformHyperliquid),
				).
				Value(&a.Platform),
			huh.NewInput().
				Title("Quote currency").
				Description("Balances in this currency never become positions").
				Value(&a.Quote).
				Validate(notEmpty("quote")),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 2: MOVEMENT")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Watchlist").
				Description("Comma separated symbols watched besides open positions (e.g. BTC,ETH)").
				Value(&a.Watchlist),
			huh.NewInput().
				Title("Movement threshold %").
				Description("Notify when a price moves this much from the last notified level").
				Value(&a.Threshold).
				Validate(validatePercent),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 3: TIMING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Price alert interval").
				Description("Duration string (e.g. 30s, 1m)").
				Value(&a.AlertsEvery).
				Validate(validateDuration),
			huh.NewInput().
				Title("Balance and movement interval").
				Description("Duration string (e.g. 1m, 5m)").
				Value(&a.BalanceEvery).
				Validate(validateDuration),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 4: STORAGE AND NOTIFICATIONS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("State store").
				Options(
					huh.NewOption("Local write-ahead log", config.StoreWAL),
					huh.NewOption("Redis", config.StoreRedis),
				).
				Value(&a.Backend),
			huh.NewInput().
				Title("Redis address").
				Description("Only used with the Redis store (e.g. localhost:6379)").
				Value(&a.RedisAddr),
			huh.NewInput().
				Title("Trade journal path").
				Description("SQLite file mirroring closed trades, empty to disable").
				Value(&a.JournalPath),
			huh.NewInput().
				Title("Telegram chat id").
				Description("Bot token is read from TELEGRAM_BOT_TOKEN, empty to log notifications").
				Value(&a.ChatID),
			huh.NewConfirm().
				Title("Track virtual trades?").
				Value(&a.Virtual),
		),
	).Run()
	if err != nil {
		return err
	}

	step("FINAL CONFIRMATION")
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(a.Summary()))

	var confirm bool
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	cfg, err := a.Config()
	if err != nil {
		return err
	}
	if err := config.Write(path, cfg); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", path)))
	return nil
}

// Summary renders the answers for confirmation.
func (a Answers) Summary() string {
	return fmt.Sprintf(
		"Platform: %s\nQuote: %s\nWatchlist: %s\nThreshold: %s%%\nIntervals: alerts %s, balances %s\nStore: %s\n",
		a.Platform, a.Quote, a.Watchlist, a.Threshold, a.AlertsEvery, a.BalanceEvery, a.Backend,
	)
}

// Config converts the answers into a config file body.
func (a Answers) Config() (config.ConfigTmp, error) {
	cfg := config.Default()
	cfg.Platform = a.Platform
	cfg.Quote = strings.ToUpper(strings.TrimSpace(a.Quote))
	cfg.MovementThreshold = a.Threshold
	cfg.Watchlist = splitSymbols(a.Watchlist)
	cfg.Telegram.ChatID = strings.TrimSpace(a.ChatID)
	cfg.Journal.Path = strings.TrimSpace(a.JournalPath)
	cfg.Virtual.Enabled = a.Virtual
	cfg.Store.Backend = a.Backend
	if a.Backend == config.StoreRedis {
		cfg.Store.Redis.Addr = strings.TrimSpace(a.RedisAddr)
	}

	var err error
	if cfg.Intervals.Alerts, err = time.ParseDuration(a.AlertsEvery); err != nil {
		return cfg, err
	}
	if cfg.Intervals.Balances, err = time.ParseDuration(a.BalanceEvery); err != nil {
		return cfg, err
	}
	cfg.Intervals.Movement = cfg.Intervals.Balances

	return cfg, nil
}

func step(name string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render(title))
	fmt.Println(stepStyle.Render(name))
}

func splitSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func notEmpty(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s cannot be empty", field)
		}
		return nil
	}
}

func validatePercent(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if !d.IsPositive() || d.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("must be between 0 and 100")
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}
