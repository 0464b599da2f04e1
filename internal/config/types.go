package config

import (
	"strings"
	"time"
)

// Config 是 spotguard 的主配置载体。
type Config struct {
	App        AppConfig        `toml:"app"`
	Trading    TradingConfig    `toml:"trading"`
	Risk       RiskConfig       `toml:"risk"`
	Execution  ExecutionConfig  `toml:"execution"`
	Exit       ExitConfig       `toml:"exit"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Backtest   BacktestConfig   `toml:"backtest"`
	Exchange   ExchangeConfig   `toml:"exchange"`
	Notify     NotifyConfig     `toml:"notify"`
	Storage    StorageConfig    `toml:"storage"`
	KillSwitch KillSwitchConfig `toml:"kill_switch"`
}

type AppConfig struct {
	Env          string `toml:"env"`
	LogLevel     string `toml:"log_level"`
	HTTPAddr     string `toml:"http_addr"`
	HTTPEnabled  bool   `toml:"http_enabled"`
	LogPath      string `toml:"log_path"`
	AuditLogPath string `toml:"audit_log_path"`
}

// TradingConfig 交易对、周期与资金上限。
type TradingConfig struct {
	Pair             string  `toml:"pair"`
	Timeframe        string  `toml:"timeframe"`
	CapitalLimitUSDT float64 `toml:"capital_limit_usdt"`
	MinOrderUSDT     float64 `toml:"min_order_usdt"`
	CandleWindow     int     `toml:"candle_window"`
	// TickOffsetSeconds K线收盘后延迟多少秒再执行 tick，避免拿到未收盘的 K 线。
	TickOffsetSeconds int `toml:"tick_offset_seconds"`
	// PollSeconds >0 时改为固定间隔轮询，不再对齐 K 线收盘。
	PollSeconds int `toml:"poll_seconds"`
}

// RiskConfig 风控闸门阈值，百分比字段均为 0~100。
type RiskConfig struct {
	RiskPerTradePct        float64 `toml:"risk_per_trade_pct"`
	MaxTotalExposurePct    float64 `toml:"max_total_exposure_pct"`
	MaxConcurrentPositions int     `toml:"max_concurrent_positions"`
	DailyLossCapPct        float64 `toml:"daily_loss_cap_pct"`
	MaxDrawdownCapPct      float64 `toml:"max_drawdown_cap_pct"`
	ConsecutiveLossLimit   int     `toml:"consecutive_loss_limit"`
	CooldownMinutes        int     `toml:"cooldown_minutes"`
	MinSignalConfidence    float64 `toml:"min_signal_confidence"`
}

type ExecutionConfig struct {
	MaxSpreadPct        float64 `toml:"max_spread_pct"`
	StalePriceSeconds   int     `toml:"stale_price_seconds"`
	FeePct              float64 `toml:"fee_pct"`
	SlippageEstimatePct float64 `toml:"slippage_estimate_pct"`
	OrderTimeoutSeconds int     `toml:"order_timeout_seconds"`
}

func (e ExecutionConfig) StalePriceAfter() time.Duration {
	return time.Duration(e.StalePriceSeconds) * time.Second
}

func (e ExecutionConfig) OrderTimeout() time.Duration {
	return time.Duration(e.OrderTimeoutSeconds) * time.Second
}

type ExitConfig struct {
	StopLossPct     float64 `toml:"stop_loss_pct"`
	TakeProfitPct   float64 `toml:"take_profit_pct"`
	MaxHoldingHours float64 `toml:"max_holding_hours"`
}

func (e ExitConfig) MaxHolding() time.Duration {
	return time.Duration(e.MaxHoldingHours * float64(time.Hour))
}

// StrategyConfig EMA/RSI/MACD 策略参数，对核心而言是纯外部配置。
type StrategyConfig struct {
	EMAFast       int     `toml:"ema_fast"`
	EMASlow       int     `toml:"ema_slow"`
	RSIPeriod     int     `toml:"rsi_period"`
	RSIOverbought float64 `toml:"rsi_overbought"`
	RSIOversold   float64 `toml:"rsi_oversold"`
	MACDFast      int     `toml:"macd_fast"`
	MACDSlow      int     `toml:"macd_slow"`
	MACDSignal    int     `toml:"macd_signal"`
	ATRPeriod     int     `toml:"atr_period"`
	MinATRPct     float64 `toml:"min_atr_pct"`
	MinCandles    int     `toml:"min_candles_required"`
}

type BacktestConfig struct {
	CandleLimit     int     `toml:"candle_limit"`
	InSampleRatio   float64 `toml:"in_sample_ratio"`
	IncludeFees     bool    `toml:"include_fees"`
	IncludeSlippage bool    `toml:"include_slippage"`
	ReportDir       string  `toml:"report_dir"`
	StorePath       string  `toml:"store_path"`
}

type ExchangeConfig struct {
	RESTBaseURL            string `toml:"rest_base_url"`
	APIKey                 string `toml:"api_key"`
	SecretKey              string `toml:"secret_key"`
	TimeoutSeconds         int    `toml:"timeout_seconds"`
	BreakerThreshold       int    `toml:"breaker_threshold"`
	BreakerCooldownSeconds int    `toml:"breaker_cooldown_seconds"`
}

func (e ExchangeConfig) HasCredentials() bool {
	return strings.TrimSpace(e.APIKey) != "" && strings.TrimSpace(e.SecretKey) != ""
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

func (t TelegramConfig) Configured() bool {
	return strings.TrimSpace(t.BotToken) != "" && strings.TrimSpace(t.ChatID) != ""
}

// StorageConfig 持久化文件位置。风控状态与组合状态是两份独立记录。
type StorageConfig struct {
	RiskStatePath string `toml:"risk_state_path"`
	PortfolioPath string `toml:"portfolio_path"`
	JournalPath   string `toml:"journal_path"`
	LockPath      string `toml:"lock_path"`
	// PendingOrderPath 记录结果未知的实盘订单，重启后继续核对。
	PendingOrderPath string `toml:"pending_order_path"`
}

type KillSwitchConfig struct {
	File string `toml:"file"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
