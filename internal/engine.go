package internal

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vadiminshakov/watchtower/config"
	"github.com/vadiminshakov/watchtower/internal/domain"
	"github.com/vadiminshakov/watchtower/internal/events"
	"github.com/vadiminshakov/watchtower/internal/metrics"
	"github.com/vadiminshakov/watchtower/internal/scheduler"
	"github.com/vadiminshakov/watchtower/internal/services/account"
	"github.com/vadiminshakov/watchtower/internal/services/alerts"
	"github.com/vadiminshakov/watchtower/internal/services/extrema"
	"github.com/vadiminshakov/watchtower/internal/services/ledger"
	"github.com/vadiminshakov/watchtower/internal/services/movement"
	"github.com/vadiminshakov/watchtower/internal/services/notify"
	"github.com/vadiminshakov/watchtower/internal/services/rollup"
	"github.com/vadiminshakov/watchtower/internal/storage/keys"
	"github.com/vadiminshakov/watchtower/internal/storage/kv"
	"github.com/vadiminshakov/watchtower/internal/storage/tradejournal"
	"github.com/vadiminshakov/watchtower/internal/web"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	TaskAlerts   = "alerts"
	TaskBalances = "balances"
	TaskMovement = "movement"
	TaskHourly   = "hourly_report"
	TaskDaily    = "daily_report"
	TaskVirtual  = "virtual_balances"

	eventBuffer = 64
)

type journal interface {
	Record(ctx context.Context, scope string, e domain.TradeHistoryEntry) error
}

// Engine wires the monitoring tasks to the scheduler and the web server.
type Engine struct {
	l         *zap.Logger
	cfg       config.Config
	store     kv.Store
	journal   *tradejournal.SQLite
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	events    *events.Broadcaster
	notifier  *notify.Service
	ledger    *ledger.Ledger
	virtual   *ledger.Ledger
	detector  *movement.Detector
	alerts    *alerts.Evaluator
	reporter  *rollup.Reporter
	scheduler *scheduler.Scheduler
	server    *web.Server
}

// NewEngine opens the state store and builds every component for cfg.
func NewEngine(ctx context.Context, l *zap.Logger, cfg config.Config) (*Engine, error) {
	provider, err := newServiceProvider(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create platform services")
	}

	store, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	dispatcher, err := newDispatcher(l, cfg.Telegram)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	e, err := newEngine(l, cfg, provider, store, dispatcher)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return e, nil
}

func newEngine(l *zap.Logger, cfg config.Config, provider serviceProvider, store kv.Store, dispatcher notify.Dispatcher) (*Engine, error) {
	e := &Engine{
		l:        l,
		cfg:      cfg,
		store:    store,
		registry: prometheus.NewRegistry(),
		events:   events.NewBroadcaster(eventBuffer),
	}
	e.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	e.metrics = metrics.New(e.registry)

	var j journal
	if cfg.JournalPath != "" {
		sqlite, err := tradejournal.NewSQLite(cfg.JournalPath)
		if err != nil {
			return nil, err
		}
		e.journal = sqlite
		j = sqlite
	}

	e.notifier = notify.NewService(l, dispatcher, notify.NewFormatter(cfg.Quote),
		notify.WithPublisher(e.events),
		notify.WithMetrics(e.metrics),
		notify.WithDiagnostics(cfg.Debug),
	)

	market := provider.Market()
	e.ledger = ledger.NewLedger(l, store, provider.Account(), market, e.notifier, j, ledger.Config{
		Quote:   cfg.Quote,
		Ignored: cfg.IgnoredAssets,
		Epsilon: cfg.Epsilon,
	})
	tracker := extrema.NewTracker(l, store, "")

	positions := []movement.PositionLister{e.ledger}
	observers := []movement.PriceObserver{tracker}

	if cfg.VirtualEnabled {
		virtualAccount := account.NewStoreAccount(store, keys.ForScope(keys.VirtualScope).Balances())
		e.virtual = ledger.NewLedger(l, store, virtualAccount, market, e.notifier, j, ledger.Config{
			Scope:   keys.VirtualScope,
			Quote:   cfg.Quote,
			Ignored: cfg.IgnoredAssets,
			Epsilon: cfg.Epsilon,
		})
		positions = append(positions, e.virtual)
		observers = append(observers, extrema.NewTracker(l, store, keys.VirtualScope))
	}

	e.detector = movement.NewDetector(l, store, market, e.notifier, positions, observers, movement.Config{
		DefaultThreshold: cfg.MovementThreshold,
		Watchlist:        cfg.Watchlist,
	})
	e.alerts = alerts.NewEvaluator(l, store, market, e.notifier, cfg.Quote)
	e.reporter = rollup.NewReporter(l, e.ledger, tracker, market, e.notifier)

	tasks := []scheduler.Task{
		{Name: TaskAlerts, Interval: cfg.Intervals.Alerts, Run: e.alerts.Run},
		{Name: TaskBalances, Interval: cfg.Intervals.Balances, Run: e.reconcile(e.ledger, "account")},
		{Name: TaskMovement, Interval: cfg.Intervals.Movement, Run: e.detector.Run},
		{Name: TaskHourly, Interval: cfg.Intervals.Hourly, Run: e.reporter.Hourly},
		{Name: TaskDaily, Interval: cfg.Intervals.Daily, Run: e.reporter.Daily},
	}
	if e.virtual != nil {
		tasks = append(tasks, scheduler.Task{
			Name:     TaskVirtual,
			Interval: cfg.Intervals.Virtual,
			Run:      e.reconcile(e.virtual, keys.VirtualScope),
		})
	}

	sched, err := scheduler.New(l, scheduler.Config{
		CycleTimeout: cfg.CycleTimeout,
		RunOnStart:   cfg.RunOnStart,
	}, e.metrics, e.notifier, tasks...)
	if err != nil {
		e.closeJournal()
		return nil, errors.Wrap(err, "failed to create scheduler")
	}
	e.scheduler = sched

	if cfg.WebAddr != "" {
		readers := map[string]web.PositionReader{"account": e.ledger}
		if e.virtual != nil {
			readers[keys.VirtualScope] = e.virtual
		}
		e.server = web.NewServer(l, cfg.WebAddr, e.scheduler, e.events, e.registry, readers)
	}

	return e, nil
}

// reconcile runs one ledger cycle and refreshes the open positions gauge.
func (e *Engine) reconcile(lg *ledger.Ledger, scope string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := lg.Run(ctx); err != nil {
			return err
		}
		positions, err := lg.Positions(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to count open positions")
		}
		e.metrics.SetOpenPositions(scope, len(positions))
		return nil
	}
}

// Run blocks until ctx is cancelled or a component fails.
func (e *Engine) Run(ctx context.Context) error {
	e.l.Info("engine started",
		zap.String("platform", e.cfg.Platform),
		zap.String("quote", e.cfg.Quote),
		zap.Bool("virtual", e.virtual != nil),
		zap.String("web", e.cfg.WebAddr),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.scheduler.Run(ctx)
	})
	if e.server != nil {
		g.Go(func() error {
			return e.server.Start(ctx)
		})
	}

	err := g.Wait()
	e.l.Info("engine stopped")
	return err
}

// Trigger runs a task immediately.
func (e *Engine) Trigger(ctx context.Context, task string) error {
	return e.scheduler.Trigger(ctx, task)
}

func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Virtual returns the paper-trading ledger, nil when disabled.
func (e *Engine) Virtual() *ledger.Ledger { return e.virtual }

func (e *Engine) Events() *events.Broadcaster { return e.events }

// Close releases the state store and the trade journal.
func (e *Engine) Close() error {
	e.closeJournal()
	return errors.Wrap(e.store.Close(), "failed to close state store")
}

func (e *Engine) closeJournal() {
	if e.journal == nil {
		return
	}
	if err := e.journal.Close(); err != nil {
		e.l.Warn("failed to close trade journal", zap.Error(err))
	}
}

// OpenStore opens the configured state store backend.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (kv.Store, error) {
	switch cfg.Backend {
	case config.StoreRedis:
		return kv.NewRedisStore(ctx, kv.RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			Namespace: cfg.Redis.Namespace,
		})
	case config.StoreWAL, "":
		dir := cfg.WALDir
		if dir == "" {
			dir = "wal/state"
		}
		return kv.NewWALStore(dir)
	default:
		return nil, errors.Wrapf(domain.ErrConfiguration, "unsupported store backend %q", cfg.Backend)
	}
}

func newDispatcher(l *zap.Logger, cfg config.TelegramConfig) (notify.Dispatcher, error) {
	if !cfg.Enabled() {
		l.Warn("telegram is not configured, notifications go to the log only")
		return notify.NewLogDispatcher(l), nil
	}
	return notify.NewTelegramDispatcher(cfg.BaseURL, cfg.BotToken, cfg.ChatID)
}
