package app

import (
	"context"
	"strings"

	"spotguard/internal/backtest"
	"spotguard/internal/config"
	"spotguard/internal/gateway/binance"
	"spotguard/internal/logger"
	"spotguard/internal/signal"
)

// BacktestService 组装回测所需的历史数据源、策略与结果库。
type BacktestService struct {
	runner *backtest.Runner
	store  *backtest.RunStore
}

// NewBacktestService 构建回测服务；source 为空时使用 Binance 公开行情接口。
func NewBacktestService(cfg *config.Config, source backtest.HistoryFetcher) (*BacktestService, error) {
	btCfg, err := backtest.ConfigFrom(cfg)
	if err != nil {
		return nil, err
	}
	if source == nil {
		source = binance.New(binance.ConfigFrom(cfg), nil)
	}
	svc := &BacktestService{}
	var opts []backtest.RunnerOption
	if path := strings.TrimSpace(cfg.Backtest.StorePath); path != "" {
		store, err := backtest.NewRunStore(path)
		if err != nil {
			logger.Warnf("backtest history store unavailable, results will not be recorded: %v", err)
		} else {
			svc.store = store
			opts = append(opts, backtest.WithStore(store))
		}
	}
	runner, err := backtest.NewRunner(btCfg, source, signal.NewStrategy(cfg.Strategy), opts...)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.runner = runner
	return svc, nil
}

func (b *BacktestService) Run(ctx context.Context) (backtest.Result, error) {
	return b.runner.Run(ctx)
}

// Close 释放回测相关资源。
func (b *BacktestService) Close() {
	if b == nil {
		return
	}
	if b.store != nil {
		_ = b.store.Close()
	}
}
