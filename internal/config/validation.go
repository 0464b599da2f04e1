package config

import (
	"fmt"
	"strings"

	"spotguard/internal/market"
	"spotguard/internal/pkg/symbol"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Execution.validate(); err != nil {
		return err
	}
	if err := c.Exit.validate(); err != nil {
		return err
	}
	if err := c.Strategy.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (t *TradingConfig) validate() error {
	if !symbol.IsValid(t.Pair) {
		return fmt.Errorf("trading.pair %q is not a recognised spot pair", t.Pair)
	}
	if _, err := market.ParseTimeframe(t.Timeframe); err != nil {
		return fmt.Errorf("trading.timeframe: %w", err)
	}
	if t.CapitalLimitUSDT <= 0 {
		return fmt.Errorf("trading.capital_limit_usdt must be > 0")
	}
	if t.MinOrderUSDT <= 0 || t.MinOrderUSDT > t.CapitalLimitUSDT {
		return fmt.Errorf("trading.min_order_usdt must be in (0, capital_limit_usdt]")
	}
	if t.TickOffsetSeconds < 0 || t.PollSeconds < 0 {
		return fmt.Errorf("trading.tick_offset_seconds and trading.poll_seconds must be >= 0")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	pcts := map[string]float64{
		"risk.risk_per_trade_pct":     r.RiskPerTradePct,
		"risk.max_total_exposure_pct": r.MaxTotalExposurePct,
		"risk.daily_loss_cap_pct":     r.DailyLossCapPct,
		"risk.max_drawdown_cap_pct":   r.MaxDrawdownCapPct,
	}
	for key, v := range pcts {
		if v <= 0 || v > 100 {
			return fmt.Errorf("%s must be in (0, 100], got %v", key, v)
		}
	}
	if r.MaxConcurrentPositions < 1 {
		return fmt.Errorf("risk.max_concurrent_positions must be >= 1")
	}
	if r.ConsecutiveLossLimit < 1 {
		return fmt.Errorf("risk.consecutive_loss_limit must be >= 1")
	}
	if r.CooldownMinutes < 0 {
		return fmt.Errorf("risk.cooldown_minutes must be >= 0")
	}
	if r.MinSignalConfidence < 0 || r.MinSignalConfidence > 1 {
		return fmt.Errorf("risk.min_signal_confidence must be in [0, 1]")
	}
	return nil
}

func (e *ExecutionConfig) validate() error {
	if e.MaxSpreadPct <= 0 {
		return fmt.Errorf("execution.max_spread_pct must be > 0")
	}
	if e.StalePriceSeconds <= 0 {
		return fmt.Errorf("execution.stale_price_seconds must be > 0")
	}
	if e.FeePct < 0 || e.SlippageEstimatePct < 0 {
		return fmt.Errorf("execution.fee_pct and execution.slippage_estimate_pct must be >= 0")
	}
	if e.OrderTimeoutSeconds <= 0 {
		return fmt.Errorf("execution.order_timeout_seconds must be > 0")
	}
	return nil
}

func (e *ExitConfig) validate() error {
	if e.StopLossPct <= 0 || e.StopLossPct >= 100 {
		return fmt.Errorf("exit.stop_loss_pct must be in (0, 100)")
	}
	if e.TakeProfitPct <= 0 {
		return fmt.Errorf("exit.take_profit_pct must be > 0")
	}
	if e.MaxHoldingHours <= 0 {
		return fmt.Errorf("exit.max_holding_hours must be > 0")
	}
	return nil
}

func (s *StrategyConfig) validate() error {
	if s.EMAFast >= s.EMASlow {
		return fmt.Errorf("strategy.ema_fast (%d) must be < strategy.ema_slow (%d)", s.EMAFast, s.EMASlow)
	}
	if s.MACDFast >= s.MACDSlow {
		return fmt.Errorf("strategy.macd_fast must be < strategy.macd_slow")
	}
	if s.RSIOversold >= s.RSIOverbought {
		return fmt.Errorf("strategy.rsi_oversold must be < strategy.rsi_overbought")
	}
	if s.MinCandles <= s.MACDSlow+s.MACDSignal {
		return fmt.Errorf("strategy.min_candles_required must exceed macd_slow+macd_signal")
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.InSampleRatio <= 0 || b.InSampleRatio >= 1 {
		return fmt.Errorf("backtest.in_sample_ratio must be in (0, 1)")
	}
	if b.CandleLimit <= 0 {
		return fmt.Errorf("backtest.candle_limit must be > 0")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	tg := n.Telegram
	if !tg.Enabled {
		return nil
	}
	if strings.TrimSpace(tg.BotToken) == "" || strings.TrimSpace(tg.ChatID) == "" {
		return fmt.Errorf("notify.telegram enabled but bot_token/chat_id missing (or set TELEGRAM_TOKEN / TELEGRAM_CHAT_ID)")
	}
	return nil
}
