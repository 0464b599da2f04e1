// Package risk 实现交易前风控闸门：所有开仓请求都必须经过 CanOpenPosition，
// 平仓结果通过 OnTradeClose 回写，状态每次变更都同步落盘。
package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"spotguard/internal/config"
	"spotguard/internal/logger"
	"spotguard/internal/pkg/money"
)

// RejectReason 标识闸门拒绝开仓的具体检查项。
type RejectReason string

const (
	ReasonNone            RejectReason = ""
	ReasonKillSwitch      RejectReason = "kill_switch"
	ReasonTradingDisabled RejectReason = "trading_disabled"
	ReasonCooldown        RejectReason = "cooldown"
	ReasonDailyLossCap    RejectReason = "daily_loss_cap"
	ReasonMaxPositions    RejectReason = "max_positions"
	ReasonExposure        RejectReason = "exposure"
	ReasonLowConfidence   RejectReason = "low_confidence"
	ReasonBelowMinOrder   RejectReason = "below_min_order"
)

// Limits 风控阈值，百分比字段均为 0~100。
type Limits struct {
	RiskPerTradePct        float64
	MaxTotalExposurePct    float64
	MaxConcurrentPositions int
	DailyLossCapPct        float64
	MaxDrawdownCapPct      float64
	ConsecutiveLossLimit   int
	CooldownMinutes        int
	MinSignalConfidence    float64
	CapitalLimitUSDT       float64
	MinOrderUSDT           float64
	StopLossPct            float64
	TakeProfitPct          float64
}

func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		RiskPerTradePct:        cfg.Risk.RiskPerTradePct,
		MaxTotalExposurePct:    cfg.Risk.MaxTotalExposurePct,
		MaxConcurrentPositions: cfg.Risk.MaxConcurrentPositions,
		DailyLossCapPct:        cfg.Risk.DailyLossCapPct,
		MaxDrawdownCapPct:      cfg.Risk.MaxDrawdownCapPct,
		ConsecutiveLossLimit:   cfg.Risk.ConsecutiveLossLimit,
		CooldownMinutes:        cfg.Risk.CooldownMinutes,
		MinSignalConfidence:    cfg.Risk.MinSignalConfidence,
		CapitalLimitUSDT:       cfg.Trading.CapitalLimitUSDT,
		MinOrderUSDT:           cfg.Trading.MinOrderUSDT,
		StopLossPct:            cfg.Exit.StopLossPct,
		TakeProfitPct:          cfg.Exit.TakeProfitPct,
	}
}

func (l Limits) cooldown() time.Duration {
	return time.Duration(l.CooldownMinutes) * time.Minute
}

// Decision 是 CanOpenPosition 的结果。
type Decision struct {
	Allowed           bool
	Reason            RejectReason
	Message           string
	CooldownRemaining time.Duration
}

// CloseOutcome 描述一次平仓对风控状态造成的变化。
type CloseOutcome struct {
	DrawdownPct float64
	// DrawdownBreached 仅在本次平仓把闸门从可交易切换为锁定时为 true。
	DrawdownBreached bool
	CooldownStarted  bool
	CooldownUntil    time.Time
	State            State
}

// Status 是对外（CLI/HTTP/告警）展示的快照。
type Status struct {
	State
	KillSwitch bool   `json:"kill_switch"`
	Limits     Limits `json:"-"`
}

// ResetOptions 手工干预选项，只能由运维命令触发。
type ResetOptions struct {
	ClearLatch    bool
	ClearCooldown bool
	// RebasePeak 把 peak_equity 对齐到当前 equity，避免解锁后立即再次触发。
	RebasePeak bool
}

type Option func(*Gate)

// WithClock 替换时钟，回测和测试使用。
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// Gate 是风控状态的唯一写入者，方法并发安全。
type Gate struct {
	mu     sync.Mutex
	limits Limits
	store  Store
	kill   KillSwitch
	now    func() time.Time
	state  State
}

// NewGate 从 store 恢复状态；记录损坏时返回错误，调用方应当终止启动。
func NewGate(limits Limits, store Store, kill KillSwitch, opts ...Option) (*Gate, error) {
	if store == nil {
		return nil, fmt.Errorf("risk store is required")
	}
	if kill == nil {
		kill = NeverSwitch{}
	}
	g := &Gate{limits: limits, store: store, kill: kill, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	st, found, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load risk state: %w", err)
	}
	if !found {
		g.state = freshState(limits.CapitalLimitUSDT, g.now())
		if err := g.persistLocked(); err != nil {
			return nil, err
		}
		logger.Infof("risk state initialised: equity=%.2f", g.state.Equity)
		return g, nil
	}
	if st.PeakEquity <= 0 {
		st.PeakEquity = limits.CapitalLimitUSDT
	}
	if st.equityMissing {
		// 缺少 equity 的旧记录按峰值恢复；存在的值（包括 0）原样保留。
		st.Equity = st.PeakEquity
		st.equityMissing = false
	}
	g.state = st
	if st.LiveTradingDisabled {
		logger.Warnf("risk state loaded with live trading DISABLED (max drawdown seen %.2f%%)", st.MaxDrawdownSeen)
	}
	return g, nil
}

func (g *Gate) Limits() Limits { return g.limits }

// CanOpenPosition 依次执行八项检查，第一项失败即返回。
// 除跨日重置外不修改任何状态。
func (g *Gate) CanOpenPosition(usdtAmount, confidence float64) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.rolloverLocked(); err != nil {
		logger.Errorf("risk daily rollover persist failed: %v", err)
	}
	now := g.now()
	st := g.state
	l := g.limits

	if g.kill.Active() {
		return reject(ReasonKillSwitch, "kill switch is ON, all trading disabled")
	}
	if st.LiveTradingDisabled {
		return reject(ReasonTradingDisabled, "live trading disabled after max drawdown breach, manual review required")
	}
	if st.CooldownUntil != nil && now.Before(*st.CooldownUntil) {
		remaining := st.CooldownUntil.Sub(now)
		d := reject(ReasonCooldown, fmt.Sprintf("cooldown active, %d minutes remaining after %d consecutive losses",
			int(remaining/time.Minute), st.ConsecutiveLosses))
		d.CooldownRemaining = remaining
		return d
	}
	equity := g.equityBasis()
	if st.DailyPnL < 0 {
		lossPct := math.Abs(st.DailyPnL) / equity * 100
		if lossPct >= l.DailyLossCapPct {
			return reject(ReasonDailyLossCap, fmt.Sprintf("daily loss cap hit (%.2f%% >= %.2f%%), no more trades today", lossPct, l.DailyLossCapPct))
		}
	}
	if st.OpenPositionCount >= l.MaxConcurrentPositions {
		return reject(ReasonMaxPositions, fmt.Sprintf("max concurrent positions reached (%d)", l.MaxConcurrentPositions))
	}
	exposure := usdtAmount / equity * 100
	if exposure > l.MaxTotalExposurePct {
		return reject(ReasonExposure, fmt.Sprintf("position too large (%.1f%% > %.1f%% max exposure)", exposure, l.MaxTotalExposurePct))
	}
	if confidence < l.MinSignalConfidence {
		return reject(ReasonLowConfidence, fmt.Sprintf("signal confidence too low (%.2f < %.2f)", confidence, l.MinSignalConfidence))
	}
	if usdtAmount < l.MinOrderUSDT {
		return reject(ReasonBelowMinOrder, fmt.Sprintf("order too small ($%.2f < $%.2f minimum)", usdtAmount, l.MinOrderUSDT))
	}
	logger.Infof("pre-trade checks passed: amount=$%.2f confidence=%.2f", usdtAmount, confidence)
	return Decision{Allowed: true, Message: "all checks passed"}
}

func reject(reason RejectReason, msg string) Decision {
	return Decision{Reason: reason, Message: msg}
}

// equityBasis 检查所用的权益分母，非正时退回资金上限。
func (g *Gate) equityBasis() float64 {
	if g.state.Equity > 0 {
		return g.state.Equity
	}
	return g.limits.CapitalLimitUSDT
}

// CalculatePositionSize 按单笔风险比例计算下单金额。
// available 是可用于交易的资金（实盘为账户可用 USDT），不会改写闸门跟踪的权益。
func (g *Gate) CalculatePositionSize(available float64) float64 {
	basis := math.Min(available, g.limits.CapitalLimitUSDT)
	if basis <= 0 {
		return 0
	}
	return money.Round2(basis * g.limits.RiskPerTradePct / 100)
}

// Equity 返回闸门当前跟踪的权益。
func (g *Gate) Equity() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.equityBasis()
}

func (g *Gate) OnTradeOpen() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.rolloverLocked(); err != nil {
		return err
	}
	g.state.OpenPositionCount++
	return g.persistLocked()
}

// OnTradeClose 回写一次平仓盈亏，返回前已持久化。
func (g *Gate) OnTradeClose(pnl float64) (CloseOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.rolloverLocked(); err != nil {
		return CloseOutcome{}, err
	}
	now := g.now()
	st := &g.state
	wasDisabled := st.LiveTradingDisabled

	if st.OpenPositionCount > 0 {
		st.OpenPositionCount--
	}
	st.DailyPnL = money.Round4(st.DailyPnL + pnl)
	st.Equity = money.Round4(g.equityBasis() + pnl)
	if st.Equity > st.PeakEquity {
		st.PeakEquity = st.Equity
	}
	drawdown := 0.0
	if st.PeakEquity > 0 {
		drawdown = (st.PeakEquity - st.Equity) / st.PeakEquity * 100
	}
	st.MaxDrawdownSeen = math.Max(st.MaxDrawdownSeen, drawdown)

	out := CloseOutcome{DrawdownPct: drawdown}
	if pnl < 0 {
		st.ConsecutiveLosses++
		logger.Warnf("consecutive losses: %d", st.ConsecutiveLosses)
		if g.limits.ConsecutiveLossLimit > 0 && st.ConsecutiveLosses >= g.limits.ConsecutiveLossLimit {
			until := now.UTC().Add(g.limits.cooldown())
			st.CooldownUntil = &until
			out.CooldownStarted = true
			out.CooldownUntil = until
			logger.Warnf("consecutive loss limit hit, cooldown until %s", until.Format(time.RFC3339))
		}
	} else {
		st.ConsecutiveLosses = 0
		st.CooldownUntil = nil
	}
	if drawdown >= g.limits.MaxDrawdownCapPct {
		st.LiveTradingDisabled = true
		if !wasDisabled {
			t := now.UTC()
			st.DisabledAt = &t
			out.DrawdownBreached = true
		}
	}
	if err := g.persistLocked(); err != nil {
		return out, err
	}
	out.State = st.clone()
	logger.Infof("trade closed: pnl=$%+.4f daily_pnl=$%+.4f equity=$%.2f drawdown=%.2f%%", pnl, st.DailyPnL, st.Equity, drawdown)
	return out, nil
}

// StopLossLevel 止损价，保留两位小数。
func (g *Gate) StopLossLevel(entry float64) float64 {
	return money.Round2(entry * (1 - g.limits.StopLossPct/100))
}

// TakeProfitLevel 止盈价，保留两位小数。
func (g *Gate) TakeProfitLevel(entry float64) float64 {
	return money.Round2(entry * (1 + g.limits.TakeProfitPct/100))
}

func (g *Gate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.rolloverLocked(); err != nil {
		logger.Errorf("risk daily rollover persist failed: %v", err)
	}
	st := g.state.clone()
	st.Equity = g.equityBasis()
	return Status{State: st, KillSwitch: g.kill.Active(), Limits: g.limits}
}

func (g *Gate) KillSwitchActive() bool {
	return g.kill.Active()
}

// Rollover 显式触发跨日检查，编排器每个 tick 开始时调用，落盘失败向上返回。
func (g *Gate) Rollover() (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	before := g.state.DailyDate
	if err := g.rolloverLocked(); err != nil {
		return false, err
	}
	return before != g.state.DailyDate, nil
}

// Reset 人工解除锁定或冷却，总是以 WARN 级别留痕。
func (g *Gate) Reset(opts ResetOptions) (State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := &g.state
	if opts.ClearLatch && st.LiveTradingDisabled {
		logger.Warnf("manual reset: clearing drawdown latch (max drawdown seen %.2f%%)", st.MaxDrawdownSeen)
		logger.Audit("risk_reset", "drawdown latch cleared", "max_drawdown_seen", st.MaxDrawdownSeen)
		st.LiveTradingDisabled = false
		st.DisabledAt = nil
	}
	if opts.ClearCooldown {
		logger.Warnf("manual reset: clearing cooldown and %d consecutive losses", st.ConsecutiveLosses)
		logger.Audit("risk_reset", "cooldown cleared", "consecutive_losses", st.ConsecutiveLosses)
		st.ConsecutiveLosses = 0
		st.CooldownUntil = nil
	}
	if opts.RebasePeak {
		equity := g.equityBasis()
		logger.Warnf("manual reset: rebasing peak equity %.2f -> %.2f", st.PeakEquity, equity)
		logger.Audit("risk_reset", "peak equity rebased", "from", st.PeakEquity, "to", equity)
		st.PeakEquity = equity
	}
	if err := g.persistLocked(); err != nil {
		return State{}, err
	}
	return st.clone(), nil
}

// ReconcileOpenPositions 启动时用账本的持仓数校正计数，防止崩溃导致的计数漂移。
func (g *Gate) ReconcileOpenPositions(count int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if count < 0 {
		count = 0
	}
	if g.state.OpenPositionCount == count {
		return nil
	}
	logger.Warnf("risk open position count %d disagrees with ledger (%d), correcting", g.state.OpenPositionCount, count)
	g.state.OpenPositionCount = count
	return g.persistLocked()
}

func (g *Gate) rolloverLocked() error {
	today := g.now().UTC().Format(dateLayout)
	if g.state.DailyDate == today {
		return nil
	}
	g.state.DailyDate = today
	g.state.DailyPnL = 0
	logger.Infof("new trading day %s, daily loss counter reset", today)
	return g.persistLocked()
}

func (g *Gate) persistLocked() error {
	if err := g.store.Save(g.state.clone()); err != nil {
		return fmt.Errorf("persist risk state: %w", err)
	}
	return nil
}
