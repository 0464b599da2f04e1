package app

import (
	"context"
	"errors"
	"fmt"

	"spotguard/internal/config"
	"spotguard/internal/engine"
	"spotguard/internal/execution"
	"spotguard/internal/gateway/notifier"
	"spotguard/internal/logger"
	"spotguard/internal/risk"
	livehttp "spotguard/internal/transport/http/live"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动交易循环与管理接口。
type App struct {
	cfg      *config.Config
	mode     execution.Mode
	symbol   string
	interval string
	engine   *engine.Engine
	gate     *risk.Gate
	alerts   *notifier.Alerter
	liveHTTP *livehttp.Server
	Summary  *StartupSummary

	closers []func() error
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(ctx context.Context, cfg *config.Config, opts ...AppBuilderOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(ctx, cfg, opts)
}

// Run 启动交易循环与 HTTP 服务。kill switch 触发的停机视为正常退出。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil || a.engine == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	a.alerts.Startup(a.mode, a.symbol, a.interval, a.gate.Equity())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, gctx := errgroup.WithContext(runCtx)

	if a.liveHTTP != nil {
		group.Go(func() error {
			if err := a.liveHTTP.Start(gctx); err != nil {
				return fmt.Errorf("admin http server error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		// 引擎退出后同时停止 HTTP。
		defer cancel()
		return a.engine.Run(gctx)
	})

	err := group.Wait()
	if errors.Is(err, engine.ErrKillSwitch) {
		logger.Warnf("trading loop halted by kill switch, open positions left untouched")
		return nil
	}
	return err
}

// Engine 暴露底层引擎，供测试与运维命令使用。
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

func (a *App) Mode() execution.Mode { return a.mode }

// Close 按初始化的逆序释放资源（监听、数据库、实例锁）。
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
