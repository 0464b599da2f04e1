package app

import (
	"context"
	"fmt"
	"strings"

	"spotguard/internal/backtest"
	"spotguard/internal/config"
	"spotguard/internal/engine"
	"spotguard/internal/execution"
	"spotguard/internal/gateway/binance"
	"spotguard/internal/gateway/exchange"
	"spotguard/internal/gateway/notifier"
	"spotguard/internal/ledger"
	"spotguard/internal/logger"
	"spotguard/internal/market"
	"spotguard/internal/metrics"
	"spotguard/internal/pkg/fsutil"
	"spotguard/internal/risk"
	"spotguard/internal/signal"
	"spotguard/internal/store/sqlite"
	backtesthttp "spotguard/internal/transport/http/backtest"
	livehttp "spotguard/internal/transport/http/live"
)

// Exchange 是交易循环需要的全部交易所能力，binance.Client 实现它。
type Exchange interface {
	exchange.Spot
	market.Source
}

type AppBuilder struct {
	cfg  *config.Config
	live bool

	exchangeFn func(*config.Config, *metrics.Metrics) Exchange
	notifierFn func(config.TelegramConfig) notifier.TextNotifier
	lookupEnv  engine.LookupEnv
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		exchangeFn: newBinance,
		notifierFn: newTelegram,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// WithLive 切换到实盘模式，默认模拟盘。
func WithLive(live bool) AppBuilderOption {
	return func(b *AppBuilder) { b.live = live }
}

func WithExchange(fn func(*config.Config, *metrics.Metrics) Exchange) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.exchangeFn = fn
		}
	}
}

func WithNotifier(fn func(config.TelegramConfig) notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.notifierFn = fn
		}
	}
}

// WithLookupEnv 替换启动检查读取环境变量的方式。
func WithLookupEnv(fn engine.LookupEnv) AppBuilderOption {
	return func(b *AppBuilder) { b.lookupEnv = fn }
}

type appBuilderDeps interface {
	Build(context.Context) (*App, error)
}

func provideAppFromBuilder(b appBuilderDeps, ctx context.Context) (*App, error) {
	return b.Build(ctx)
}

func provideAppBuilder(cfg *config.Config, opts []AppBuilderOption) *AppBuilder {
	return NewAppBuilder(cfg, opts...)
}

// Build 依次装配：实例锁 → kill switch → 风控 → 启动检查 → 流水库 → 账本 → 执行器 → 引擎 → HTTP。
// 任一步失败都会释放已获取的资源。
func (b *AppBuilder) Build(ctx context.Context) (app *App, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	engCfg, err := engine.ConfigFrom(cfg, b.live)
	if err != nil {
		return nil, err
	}
	mode := execution.ModePaper
	if b.live {
		mode = execution.ModeLive
	}

	app = &App{cfg: cfg, mode: mode, symbol: engCfg.Symbol, interval: engCfg.Timeframe.Key}
	defer func() {
		if err != nil {
			_ = app.Close()
			app = nil
		}
	}()

	lock, err := fsutil.AcquireLock(cfg.Storage.LockPath)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, lock.Release)

	m := metrics.New()
	app.alerts = notifier.NewAlerter(b.notifierFn(cfg.Notify.Telegram))

	fileSwitch, err := risk.NewFileSwitch(cfg.KillSwitch.File)
	if err != nil {
		return nil, err
	}
	fileSwitch.OnChange(func(active bool) {
		if active {
			logger.Criticalf("kill switch file %s activated", fileSwitch.Path())
			app.alerts.KillSwitch("file " + fileSwitch.Path())
			return
		}
		logger.Warnf("kill switch file %s cleared, restart required to resume trading", fileSwitch.Path())
	})
	if werr := fileSwitch.Watch(); werr != nil {
		logger.Warnf("kill switch watcher unavailable, falling back to polling: %v", werr)
	}
	app.closers = append(app.closers, fileSwitch.Close)
	killSwitch := risk.AnySwitch{risk.NewEnvSwitch(config.EnvKillSwitch), fileSwitch}

	gate, err := risk.NewGate(risk.LimitsFromConfig(cfg), risk.NewFileStore(cfg.Storage.RiskStatePath), killSwitch)
	if err != nil {
		return nil, fmt.Errorf("load risk state failed: %w", err)
	}
	app.gate = gate
	if err := engine.Preflight(cfg, gate.Status(), b.live, b.lookupEnv); err != nil {
		return nil, err
	}

	journalStore, err := sqlite.NewSqliteStore(cfg.Storage.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("open journal failed: %w", err)
	}
	app.closers = append(app.closers, journalStore.Close)
	journal := sqlite.NewJournal(journalStore, string(mode))

	book, err := ledger.New(ledger.NewFileStore(cfg.Storage.PortfolioPath), ledger.WithJournal(journal))
	if err != nil {
		return nil, fmt.Errorf("load portfolio failed: %w", err)
	}

	client := b.exchangeFn(cfg, m)
	executor := execution.NewExecutor(execution.ConfigFrom(cfg), client, client)
	deps := engine.Deps{
		Candles:  client,
		Prices:   client,
		Analyzer: signal.NewStrategy(cfg.Strategy),
		Gate:     gate,
		Ledger:   book,
		Executor: executor,
		Pending:  engine.NewFilePendingStore(cfg.Storage.PendingOrderPath),
		Journal:  journal,
		Alerts:   app.alerts,
		Metrics:  m,
	}
	if b.live {
		deps.Account = client
	}
	eng, err := engine.New(engCfg, deps)
	if err != nil {
		return nil, err
	}
	app.engine = eng

	if cfg.App.HTTPEnabled {
		srv, err := b.buildAdminHTTP(app, livehttp.Deps{
			Symbol:     engCfg.Symbol,
			Timeframe:  engCfg.Timeframe.Key,
			Engine:     eng,
			Risk:       gate,
			Ledger:     book,
			Journal:    journal,
			KillSwitch: fileSwitch,
		}, m)
		if err != nil {
			return nil, err
		}
		app.liveHTTP = srv
	}

	app.Summary = newStartupSummary(cfg, mode, engCfg, gate, book)
	return app, nil
}

func (b *AppBuilder) buildAdminHTTP(app *App, deps livehttp.Deps, m *metrics.Metrics) (*livehttp.Server, error) {
	cfg := b.cfg
	var extra []livehttp.Registrar
	if path := strings.TrimSpace(cfg.Backtest.StorePath); path != "" {
		runs, err := backtest.NewRunStore(path)
		if err != nil {
			logger.Warnf("backtest history unavailable over http: %v", err)
		} else {
			app.closers = append(app.closers, runs.Close)
			extra = append(extra, backtesthttp.NewRouter(runs))
		}
	}
	srv, err := livehttp.NewServer(livehttp.ServerConfig{
		Addr:    cfg.App.HTTPAddr,
		Deps:    deps,
		Metrics: m.Handler(),
		Extra:   extra,
	})
	if err != nil {
		return nil, fmt.Errorf("init admin http failed: %w", err)
	}
	logger.Infof("admin http listening on %s", srv.Addr())
	return srv, nil
}

func newBinance(cfg *config.Config, m *metrics.Metrics) Exchange {
	return binance.New(binance.ConfigFrom(cfg), m)
}

func newTelegram(cfg config.TelegramConfig) notifier.TextNotifier {
	if !cfg.Enabled || !cfg.Configured() {
		return nil
	}
	return notifier.NewTelegram(cfg.BotToken, cfg.ChatID)
}
