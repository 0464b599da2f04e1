package config

import (
	"strings"
)

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = "127.0.0.1:9991"
	defaultAppLogPath      = "data/logs/spotguard.log"
	defaultAppAuditLogPath = "data/logs/audit.log"

	defaultTradingPair         = "ETHUSDT"
	defaultTradingTimeframe    = "15m"
	defaultTradingCapital      = 100
	defaultTradingMinOrder     = 5
	defaultTradingCandleWindow = 100
	defaultTradingTickOffset   = 5

	defaultRiskPerTrade        = 15.0
	defaultRiskMaxExposure     = 50.0
	defaultRiskMaxPositions    = 1
	defaultRiskDailyLossCap    = 2.0
	defaultRiskMaxDrawdownCap  = 8.0
	defaultRiskConsecutiveLoss = 3
	defaultRiskCooldownMinutes = 120
	defaultRiskMinConfidence   = 0.55

	defaultExecMaxSpread    = 0.5
	defaultExecStalePrice   = 30
	defaultExecFee          = 0.1
	defaultExecSlippage     = 0.05
	defaultExecOrderTimeout = 10

	defaultExitStopLoss   = 1.5
	defaultExitTakeProfit = 3.0
	defaultExitMaxHolding = 48

	defaultBacktestCandles  = 2000
	defaultBacktestInSample = 0.7
	defaultBacktestReport   = "data/backtest"
	defaultBacktestStore    = "data/backtest/runs.db"

	defaultExchangeREST            = "https://api.binance.com"
	defaultExchangeTimeout         = 10
	defaultExchangeBreakerFailures = 5
	defaultExchangeBreakerCooldown = 60

	defaultStorageRiskState = "data/risk_state.json"
	defaultStoragePortfolio = "data/portfolio_state.json"
	defaultStorageJournal   = "data/journal.db"
	defaultStorageLock      = "data/spotguard.lock"
	defaultStoragePending   = "data/pending_order.json"
	defaultKillSwitchFile   = "data/KILL_SWITCH"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Execution.applyDefaults(keys)
	c.Exit.applyDefaults(keys)
	c.Strategy.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.Exchange.applyDefaults(keys)
	c.Storage.applyDefaults(keys)
	applyFieldDefaults(keys,
		stringFieldDefault("kill_switch.file", &c.KillSwitch.File, defaultKillSwitchFile),
	)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.audit_log_path", &a.AuditLogPath, defaultAppAuditLogPath),
		boolFieldDefault("app.http_enabled", &a.HTTPEnabled, true),
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	t.Pair = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(t.Pair), "/", ""))
	t.Timeframe = strings.ToLower(strings.TrimSpace(t.Timeframe))
	applyFieldDefaults(keys,
		stringFieldDefault("trading.pair", &t.Pair, defaultTradingPair),
		stringFieldDefault("trading.timeframe", &t.Timeframe, defaultTradingTimeframe),
		floatFieldDefault("trading.capital_limit_usdt", &t.CapitalLimitUSDT, defaultTradingCapital),
		floatFieldDefault("trading.min_order_usdt", &t.MinOrderUSDT, defaultTradingMinOrder),
		intFieldDefault("trading.candle_window", &t.CandleWindow, defaultTradingCandleWindow),
		intFieldDefault("trading.tick_offset_seconds", &t.TickOffsetSeconds, defaultTradingTickOffset),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("risk.risk_per_trade_pct", &r.RiskPerTradePct, defaultRiskPerTrade),
		floatFieldDefault("risk.max_total_exposure_pct", &r.MaxTotalExposurePct, defaultRiskMaxExposure),
		intFieldDefault("risk.max_concurrent_positions", &r.MaxConcurrentPositions, defaultRiskMaxPositions),
		floatFieldDefault("risk.daily_loss_cap_pct", &r.DailyLossCapPct, defaultRiskDailyLossCap),
		floatFieldDefault("risk.max_drawdown_cap_pct", &r.MaxDrawdownCapPct, defaultRiskMaxDrawdownCap),
		intFieldDefault("risk.consecutive_loss_limit", &r.ConsecutiveLossLimit, defaultRiskConsecutiveLoss),
		intFieldDefault("risk.cooldown_minutes", &r.CooldownMinutes, defaultRiskCooldownMinutes),
		floatFieldDefault("risk.min_signal_confidence", &r.MinSignalConfidence, defaultRiskMinConfidence),
	)
}

func (e *ExecutionConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("execution.max_spread_pct", &e.MaxSpreadPct, defaultExecMaxSpread),
		intFieldDefault("execution.stale_price_seconds", &e.StalePriceSeconds, defaultExecStalePrice),
		floatFieldDefault("execution.fee_pct", &e.FeePct, defaultExecFee),
		floatFieldDefault("execution.slippage_estimate_pct", &e.SlippageEstimatePct, defaultExecSlippage),
		intFieldDefault("execution.order_timeout_seconds", &e.OrderTimeoutSeconds, defaultExecOrderTimeout),
	)
}

func (e *ExitConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("exit.stop_loss_pct", &e.StopLossPct, defaultExitStopLoss),
		floatFieldDefault("exit.take_profit_pct", &e.TakeProfitPct, defaultExitTakeProfit),
		floatFieldDefault("exit.max_holding_hours", &e.MaxHoldingHours, defaultExitMaxHolding),
	)
}

func (s *StrategyConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("strategy.ema_fast", &s.EMAFast, 9),
		intFieldDefault("strategy.ema_slow", &s.EMASlow, 21),
		intFieldDefault("strategy.rsi_period", &s.RSIPeriod, 14),
		floatFieldDefault("strategy.rsi_overbought", &s.RSIOverbought, 70),
		floatFieldDefault("strategy.rsi_oversold", &s.RSIOversold, 30),
		intFieldDefault("strategy.macd_fast", &s.MACDFast, 12),
		intFieldDefault("strategy.macd_slow", &s.MACDSlow, 26),
		intFieldDefault("strategy.macd_signal", &s.MACDSignal, 9),
		intFieldDefault("strategy.atr_period", &s.ATRPeriod, 14),
		floatFieldDefault("strategy.min_atr_pct", &s.MinATRPct, 0.02),
		intFieldDefault("strategy.min_candles_required", &s.MinCandles, 50),
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("backtest.candle_limit", &b.CandleLimit, defaultBacktestCandles),
		floatFieldDefault("backtest.in_sample_ratio", &b.InSampleRatio, defaultBacktestInSample),
		boolFieldDefault("backtest.include_fees", &b.IncludeFees, true),
		boolFieldDefault("backtest.include_slippage", &b.IncludeSlippage, true),
		stringFieldDefault("backtest.report_dir", &b.ReportDir, defaultBacktestReport),
		stringFieldDefault("backtest.store_path", &b.StorePath, defaultBacktestStore),
	)
}

func (e *ExchangeConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("exchange.rest_base_url", &e.RESTBaseURL, defaultExchangeREST),
		intFieldDefault("exchange.timeout_seconds", &e.TimeoutSeconds, defaultExchangeTimeout),
		intFieldDefault("exchange.breaker_threshold", &e.BreakerThreshold, defaultExchangeBreakerFailures),
		intFieldDefault("exchange.breaker_cooldown_seconds", &e.BreakerCooldownSeconds, defaultExchangeBreakerCooldown),
	)
}

func (s *StorageConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("storage.risk_state_path", &s.RiskStatePath, defaultStorageRiskState),
		stringFieldDefault("storage.portfolio_path", &s.PortfolioPath, defaultStoragePortfolio),
		stringFieldDefault("storage.journal_path", &s.JournalPath, defaultStorageJournal),
		stringFieldDefault("storage.lock_path", &s.LockPath, defaultStorageLock),
		stringFieldDefault("storage.pending_order_path", &s.PendingOrderPath, defaultStoragePending),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
