// Package config loads the engine configuration from YAML and the environment.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/watchtower/internal/clients"
	"github.com/vadiminshakov/watchtower/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	PlatformOKX         = "okx"
	PlatformBinance     = "binance"
	PlatformBybit       = "bybit"
	PlatformHyperliquid = "hyperliquid"

	StoreWAL   = "wal"
	StoreRedis = "redis"

	DefaultPath = "config.yaml"
)

// Intervals task cadences.
type Intervals struct {
	Alerts   time.Duration
	Balances time.Duration
	Movement time.Duration
	Hourly   time.Duration
	Daily    time.Duration
	Virtual  time.Duration
}

type StoreConfig struct {
	Backend string
	WALDir  string
	Redis   RedisConfig
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	PoolSize  int
	Namespace string
}

type TelegramConfig struct {
	BaseURL  string
	BotToken string
	ChatID   string
}

// Enabled reports whether Telegram delivery is configured.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" || t.ChatID != ""
}

// Config validated engine configuration.
type Config struct {
	Platform          string
	Quote             string
	IgnoredAssets     []string
	Epsilon           decimal.Decimal
	Watchlist         []string
	MovementThreshold decimal.Decimal
	Intervals         Intervals
	CycleTimeout      time.Duration
	RunOnStart        bool
	Store             StoreConfig
	JournalPath       string
	Telegram          TelegramConfig
	WebAddr           string
	Debug             bool
	VirtualEnabled    bool
	Credentials       clients.Credentials
}

// ConfigTmp raw YAML representation. Decimals are kept as strings.
type ConfigTmp struct {
	Platform          string        `yaml:"platform"`
	Quote             string        `yaml:"quote,omitempty"`
	IgnoredAssets     []string      `yaml:"ignored_assets,omitempty"`
	Epsilon           string        `yaml:"epsilon,omitempty"`
	Watchlist         []string      `yaml:"watchlist,omitempty"`
	MovementThreshold string        `yaml:"movement_threshold,omitempty"`
	Intervals         IntervalsTmp  `yaml:"intervals,omitempty"`
	CycleTimeout      time.Duration `yaml:"cycle_timeout,omitempty"`
	RunOnStart        bool          `yaml:"run_on_start,omitempty"`
	Store             StoreTmp      `yaml:"store,omitempty"`
	Journal           JournalTmp    `yaml:"journal,omitempty"`
	Telegram          TelegramTmp   `yaml:"telegram,omitempty"`
	Web               WebTmp        `yaml:"web,omitempty"`
	Log               LogTmp        `yaml:"log,omitempty"`
	Virtual           VirtualTmp    `yaml:"virtual,omitempty"`
	Exchange          ExchangeTmp   `yaml:"exchange,omitempty"`
}

type IntervalsTmp struct {
	Alerts   time.Duration `yaml:"alerts,omitempty"`
	Balances time.Duration `yaml:"balances,omitempty"`
	Movement time.Duration `yaml:"movement,omitempty"`
	Hourly   time.Duration `yaml:"hourly,omitempty"`
	Daily    time.Duration `yaml:"daily,omitempty"`
	Virtual  time.Duration `yaml:"virtual,omitempty"`
}

type StoreTmp struct {
	Backend string   `yaml:"backend,omitempty"`
	WALDir  string   `yaml:"wal_dir,omitempty"`
	Redis   RedisTmp `yaml:"redis,omitempty"`
}

type RedisTmp struct {
	Addr      string `yaml:"addr,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	PoolSize  int    `yaml:"pool_size,omitempty"`
	Namespace string `yaml:"namespace,omitempty"`
}

type JournalTmp struct {
	Path string `yaml:"path,omitempty"`
}

type TelegramTmp struct {
	BaseURL string `yaml:"base_url,omitempty"`
	ChatID  string `yaml:"chat_id,omitempty"`
}

type WebTmp struct {
	Addr string `yaml:"addr,omitempty"`
}

type LogTmp struct {
	Debug bool `yaml:"debug,omitempty"`
}

type VirtualTmp struct {
	Enabled bool `yaml:"enabled,omitempty"`
}

type ExchangeTmp struct {
	BaseURL string `yaml:"base_url,omitempty"`
}

// Default returns the configuration written by the setup wizard before user input.
func Default() ConfigTmp {
	return ConfigTmp{
		Platform:          PlatformOKX,
		Quote:             "USDT",
		MovementThreshold: "5",
		Intervals: IntervalsTmp{
			Alerts:   30 * time.Second,
			Balances: time.Minute,
			Movement: time.Minute,
			Hourly:   time.Hour,
			Daily:    24 * time.Hour,
		},
		CycleTimeout: 45 * time.Second,
		Store:        StoreTmp{Backend: StoreWAL, WALDir: "wal/state"},
		Web:          WebTmp{Addr: ":9090"},
	}
}

// Load reads path and the environment (.env is loaded when present) into a validated Config.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Read is Load without validation. Admin commands that only touch the state
// store use it so they work without exchange credentials.
func Read(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "failed to load .env")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config %s", path)
	}

	return Parse(data, os.Getenv)
}

// Parse decodes YAML data and fills secrets through getenv. It does not validate credentials.
func Parse(data []byte, getenv func(string) string) (Config, error) {
	tmp := Default()
	if err := yaml.Unmarshal(data, &tmp); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse yaml config")
	}
	return tmp.build(getenv)
}

func (c ConfigTmp) build(getenv func(string) string) (Config, error) {
	defaults := Default()

	cfg := Config{
		Platform:       strings.ToLower(strings.TrimSpace(c.Platform)),
		Quote:          domain.NormalizeSymbol(c.Quote),
		IgnoredAssets:  normalize(c.IgnoredAssets),
		Watchlist:      normalize(c.Watchlist),
		CycleTimeout:   orDuration(c.CycleTimeout, defaults.CycleTimeout),
		RunOnStart:     c.RunOnStart,
		JournalPath:    c.Journal.Path,
		WebAddr:        c.Web.Addr,
		Debug:          c.Log.Debug,
		VirtualEnabled: c.Virtual.Enabled,
		Intervals: Intervals{
			Alerts:   orDuration(c.Intervals.Alerts, defaults.Intervals.Alerts),
			Balances: orDuration(c.Intervals.Balances, defaults.Intervals.Balances),
			Movement: orDuration(c.Intervals.Movement, defaults.Intervals.Movement),
			Hourly:   orDuration(c.Intervals.Hourly, defaults.Intervals.Hourly),
			Daily:    orDuration(c.Intervals.Daily, defaults.Intervals.Daily),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(c.Store.Backend),
			WALDir:  c.Store.WALDir,
			Redis: RedisConfig{
				Addr:      c.Store.Redis.Addr,
				Password:  getenv("REDIS_PASSWORD"),
				DB:        c.Store.Redis.DB,
				PoolSize:  c.Store.Redis.PoolSize,
				Namespace: c.Store.Redis.Namespace,
			},
		},
		Telegram: TelegramConfig{
			BaseURL:  c.Telegram.BaseURL,
			BotToken: getenv("TELEGRAM_BOT_TOKEN"),
			ChatID:   firstNonEmpty(getenv("TELEGRAM_CHAT_ID"), c.Telegram.ChatID),
		},
	}
	cfg.Intervals.Virtual = orDuration(c.Intervals.Virtual, cfg.Intervals.Balances)
	if cfg.Quote == "" {
		cfg.Quote = "USDT"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreWAL
	}
	if addr := getenv("REDIS_ADDR"); addr != "" {
		cfg.Store.Redis.Addr = addr
	}

	var err error
	cfg.Epsilon = domain.DefaultEpsilon
	if c.Epsilon != "" {
		if cfg.Epsilon, err = decimal.NewFromString(c.Epsilon); err != nil {
			return Config{}, errors.Wrapf(err, "incorrect 'epsilon' param in yaml config: %s", c.Epsilon)
		}
	}
	if cfg.MovementThreshold, err = decimal.NewFromString(orString(c.MovementThreshold, defaults.MovementThreshold)); err != nil {
		return Config{}, errors.Wrapf(err, "incorrect 'movement_threshold' param in yaml config: %s", c.MovementThreshold)
	}

	cfg.Credentials = credentialsFromEnv(cfg.Platform, getenv)
	if c.Exchange.BaseURL != "" {
		cfg.Credentials.BaseURL = c.Exchange.BaseURL
	}

	return cfg, nil
}

// Validate checks required settings and credentials. Failures wrap domain.ErrConfiguration.
func (c Config) Validate() error {
	switch c.Platform {
	case PlatformOKX, PlatformBinance, PlatformBybit, PlatformHyperliquid:
	default:
		return errors.Wrapf(domain.ErrConfiguration, "unsupported platform %q", c.Platform)
	}
	if err := c.Credentials.Validate(c.Platform); err != nil {
		return err
	}
	if !c.Epsilon.IsPositive() {
		return errors.Wrap(domain.ErrConfiguration, "epsilon must be positive")
	}
	if !c.MovementThreshold.IsPositive() {
		return errors.Wrap(domain.ErrConfiguration, "movement_threshold must be positive")
	}

	switch c.Store.Backend {
	case StoreWAL:
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			return errors.Wrap(domain.ErrConfiguration, "store.redis.addr is required for the redis backend")
		}
	default:
		return errors.Wrapf(domain.ErrConfiguration, "unsupported store backend %q", c.Store.Backend)
	}

	if c.Telegram.Enabled() && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return errors.Wrap(domain.ErrConfiguration, "both TELEGRAM_BOT_TOKEN and a telegram chat id are required")
	}

	return nil
}

// Write stores c as YAML at path.
func Write(path string, c ConfigTmp) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to generate yaml")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o600), "failed to save config file %s", path)
}

func credentialsFromEnv(platform string, getenv func(string) string) clients.Credentials {
	switch platform {
	case PlatformOKX:
		return clients.Credentials{
			APIKey:     getenv("OKX_API_KEY"),
			APISecret:  getenv("OKX_API_SECRET"),
			Passphrase: getenv("OKX_API_PASSPHRASE"),
		}
	case PlatformBinance:
		return clients.Credentials{APIKey: getenv("BINANCE_API_KEY"), APISecret: getenv("BINANCE_API_SECRET")}
	case PlatformBybit:
		return clients.Credentials{APIKey: getenv("BYBIT_API_KEY"), APISecret: getenv("BYBIT_API_SECRET")}
	case PlatformHyperliquid:
		return clients.Credentials{
			PrivateKey: getenv("HYPERLIQUID_PRIVATE_KEY"),
			Address:    getenv("HYPERLIQUID_ACCOUNT_ADDRESS"),
		}
	}
	return clients.Credentials{}
}

func normalize(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = domain.NormalizeSymbol(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func orDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
