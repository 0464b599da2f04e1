package app

import (
	"fmt"
	"time"

	"spotguard/internal/config"
	"spotguard/internal/engine"
	"spotguard/internal/ledger"
	"spotguard/internal/pkg/fsutil"
	"spotguard/internal/pkg/symbol"
	"spotguard/internal/risk"
)

// StatusReport 是 status 命令的 YAML 输出。
type StatusReport struct {
	Symbol    string         `yaml:"symbol"`
	Timeframe string         `yaml:"timeframe"`
	Risk      riskView       `yaml:"risk"`
	Position  *positionView  `yaml:"position,omitempty"`
	Pending   *pendingView   `yaml:"pending_order,omitempty"`
	Trades    ledger.Summary `yaml:"trades"`
}

type riskView struct {
	Equity              float64    `yaml:"equity"`
	PeakEquity          float64    `yaml:"peak_equity"`
	DailyPnL            float64    `yaml:"daily_pnl"`
	DailyDate           string     `yaml:"daily_date"`
	MaxDrawdownSeen     float64    `yaml:"max_drawdown_seen_pct"`
	ConsecutiveLosses   int        `yaml:"consecutive_losses"`
	CooldownUntil       *time.Time `yaml:"cooldown_until,omitempty"`
	LiveTradingDisabled bool       `yaml:"live_trading_disabled"`
	OpenPositions       int        `yaml:"open_positions"`
	KillSwitch          bool       `yaml:"kill_switch"`
}

type positionView struct {
	Symbol     string    `yaml:"symbol"`
	EntryPrice float64   `yaml:"entry_price"`
	Quantity   float64   `yaml:"quantity"`
	Capital    float64   `yaml:"capital"`
	StopLoss   float64   `yaml:"stop_loss"`
	TakeProfit float64   `yaml:"take_profit"`
	OpenedAt   time.Time `yaml:"opened_at"`
}

type pendingView struct {
	Side  string `yaml:"side"`
	Token string `yaml:"token"`
}

// openRiskGate 只读打开风控状态，不启动 kill switch 监听。
func openRiskGate(cfg *config.Config) (*risk.Gate, error) {
	fileSwitch, err := risk.NewFileSwitch(cfg.KillSwitch.File)
	if err != nil {
		return nil, err
	}
	kill := risk.AnySwitch{risk.NewEnvSwitch(config.EnvKillSwitch), fileSwitch}
	gate, err := risk.NewGate(risk.LimitsFromConfig(cfg), risk.NewFileStore(cfg.Storage.RiskStatePath), kill)
	if err != nil {
		return nil, fmt.Errorf("load risk state failed: %w", err)
	}
	return gate, nil
}

// LoadStatus 汇总持久化的风控、持仓与待核对订单，运行中的实例不受影响。
func LoadStatus(cfg *config.Config) (StatusReport, error) {
	gate, err := openRiskGate(cfg)
	if err != nil {
		return StatusReport{}, err
	}
	book, err := ledger.New(ledger.NewFileStore(cfg.Storage.PortfolioPath))
	if err != nil {
		return StatusReport{}, fmt.Errorf("load portfolio failed: %w", err)
	}
	st := gate.Status()
	rep := StatusReport{
		Symbol:    symbol.Parse(cfg.Trading.Pair).Binance(),
		Timeframe: cfg.Trading.Timeframe,
		Risk: riskView{
			Equity:              st.Equity,
			PeakEquity:          st.PeakEquity,
			DailyPnL:            st.DailyPnL,
			DailyDate:           st.DailyDate,
			MaxDrawdownSeen:     st.MaxDrawdownSeen,
			ConsecutiveLosses:   st.ConsecutiveLosses,
			CooldownUntil:       st.CooldownUntil,
			LiveTradingDisabled: st.LiveTradingDisabled,
			OpenPositions:       st.OpenPositionCount,
			KillSwitch:          st.KillSwitch,
		},
		Trades: book.Summary(),
	}
	if pos, ok := book.Position(); ok {
		rep.Position = &positionView{
			Symbol:     pos.Symbol,
			EntryPrice: pos.EntryPrice,
			Quantity:   pos.Quantity,
			Capital:    pos.CapitalCommitted,
			StopLoss:   gate.StopLossLevel(pos.EntryPrice),
			TakeProfit: gate.TakeProfitLevel(pos.EntryPrice),
			OpenedAt:   pos.OpenedAt,
		}
	}
	pending, err := engine.NewFilePendingStore(cfg.Storage.PendingOrderPath).Load()
	if err != nil {
		return StatusReport{}, err
	}
	if pending != nil {
		rep.Pending = &pendingView{Side: string(pending.Order.Side), Token: pending.Order.Token}
	}
	return rep, nil
}

// ResetRisk 手工解除回撤锁定与冷却。持有实例锁期间执行，避免与运行中的引擎同时写风控状态。
func ResetRisk(cfg *config.Config, opts risk.ResetOptions) (risk.State, error) {
	lock, err := fsutil.AcquireLock(cfg.Storage.LockPath)
	if err != nil {
		return risk.State{}, fmt.Errorf("stop the running instance before resetting risk state: %w", err)
	}
	defer lock.Release()
	gate, err := openRiskGate(cfg)
	if err != nil {
		return risk.State{}, err
	}
	return gate.Reset(opts)
}
