// Package engine 编排单个交易对的 tick：行情 → 信号 → 风控 → 执行 → 账本/风控更新 → 通知。
// 引擎是唯一决定继续、告警或终止的地方，其它组件只返回类型化的结果或错误。
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"spotguard/internal/config"
	"spotguard/internal/execution"
	"spotguard/internal/gateway/exchange"
	"spotguard/internal/gateway/notifier"
	"spotguard/internal/ledger"
	"spotguard/internal/logger"
	"spotguard/internal/market"
	"spotguard/internal/metrics"
	"spotguard/internal/pkg/symbol"
	"spotguard/internal/risk"
	"spotguard/internal/scheduler"
	"spotguard/internal/signal"
	"spotguard/internal/store"
)

var (
	// ErrKillSwitch 主循环因 kill switch 正常停止。
	ErrKillSwitch = errors.New("kill switch active, trading halted")
	// ErrStateWrite 风控或账本落盘失败，继续运行可能丢失锁定状态，主循环终止。
	ErrStateWrite = errors.New("durable state write failed")
)

type Config struct {
	Symbol          string
	Timeframe       market.Timeframe
	CandleLimit     int
	Live            bool
	QuoteAsset      string
	MaxHold         time.Duration
	StalePriceAfter time.Duration
	TickOffset      time.Duration
	PollInterval    time.Duration
}

func ConfigFrom(cfg *config.Config, live bool) (Config, error) {
	tf, err := market.ParseTimeframe(cfg.Trading.Timeframe)
	if err != nil {
		return Config{}, err
	}
	sym := symbol.Parse(cfg.Trading.Pair)
	if sym.Binance() == "" {
		return Config{}, fmt.Errorf("invalid trading.pair %q", cfg.Trading.Pair)
	}
	return Config{
		Symbol:          sym.Binance(),
		Timeframe:       tf,
		CandleLimit:     cfg.Trading.CandleWindow,
		Live:            live,
		QuoteAsset:      sym.Quote,
		MaxHold:         cfg.Exit.MaxHolding(),
		StalePriceAfter: cfg.Execution.StalePriceAfter(),
		TickOffset:      time.Duration(cfg.Trading.TickOffsetSeconds) * time.Second,
		PollInterval:    time.Duration(cfg.Trading.PollSeconds) * time.Second,
	}, nil
}

func (c Config) mode() execution.Mode {
	if c.Live {
		return execution.ModeLive
	}
	return execution.ModePaper
}

// PriceSource 提供带观测时间的最新价。
type PriceSource interface {
	Price(ctx context.Context, symbol string) (exchange.PriceQuote, error)
}

// OrderExecutor 由 execution.Executor 实现。
type OrderExecutor interface {
	ExecuteBuy(ctx context.Context, req execution.BuyRequest) (execution.Fill, error)
	ExecuteSell(ctx context.Context, req execution.SellRequest) (execution.Fill, error)
	Reconcile(ctx context.Context, pending execution.PendingOrder) (execution.Fill, bool, error)
}

type TickJournal interface {
	RecordTick(ctx context.Context, rec store.TickRecord) error
}

// Deps 是引擎依赖的协作者；Account 仅实盘需要，Journal/Alerts/Metrics 可为空。
type Deps struct {
	Candles  market.Source
	Prices   PriceSource
	Account  exchange.AccountReader
	Analyzer signal.Analyzer
	Gate     *risk.Gate
	Ledger   *ledger.Ledger
	Executor OrderExecutor
	Pending  PendingStore
	Journal  TickJournal
	Alerts   *notifier.Alerter
	Metrics  *metrics.Metrics
}

// Report 描述一次 tick 的结果。
type Report struct {
	At          time.Time     `json:"at"`
	CandleClose time.Time     `json:"candle_close"`
	Price       float64       `json:"price"`
	Signal      signal.Result `json:"signal"`
	Action      Action        `json:"action"`
	Detail      string        `json:"detail,omitempty"`
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

type Engine struct {
	cfg  Config
	deps Deps
	now  func() time.Time

	mu          sync.RWMutex
	phase       Phase
	lastCandle  time.Time
	pending     *PendingRecord
	summaryDate string
	dayStatus   risk.Status
	last        Report
	halted      bool
}

func New(cfg Config, deps Deps, opts ...Option) (*Engine, error) {
	switch {
	case deps.Candles == nil:
		return nil, errors.New("engine: candle source is required")
	case deps.Prices == nil:
		return nil, errors.New("engine: price source is required")
	case deps.Analyzer == nil:
		return nil, errors.New("engine: analyzer is required")
	case deps.Gate == nil || deps.Ledger == nil:
		return nil, errors.New("engine: risk gate and ledger are required")
	case deps.Executor == nil:
		return nil, errors.New("engine: executor is required")
	case cfg.Live && deps.Account == nil:
		return nil, errors.New("engine: live mode requires an account reader")
	}
	if deps.Pending == nil {
		deps.Pending = &MemoryPendingStore{}
	}
	if deps.Alerts == nil {
		deps.Alerts = notifier.NewAlerter(nil)
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = 100
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	e := &Engine{cfg: cfg, deps: deps, now: time.Now, phase: PhaseIdle}
	for _, opt := range opts {
		opt(e)
	}

	pending, err := deps.Pending.Load()
	if err != nil {
		return nil, err
	}
	if pending != nil {
		logger.Warnf("unresolved %s order %s from previous run, will reconcile before trading",
			pending.Order.Side, pending.Order.Token)
	}
	e.pending = pending

	if err := deps.Gate.ReconcileOpenPositions(deps.Ledger.OpenCount()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStateWrite, err)
	}
	e.dayStatus = deps.Gate.Status()
	e.summaryDate = e.now().UTC().Format(time.DateOnly)
	return e, nil
}

func (e *Engine) State() Phase {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.phase
}

func (e *Engine) LastReport() Report {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// Pending 返回当前等待核对的订单。
func (e *Engine) Pending() (PendingRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.pending == nil {
		return PendingRecord{}, false
	}
	return *e.pending, true
}

func (e *Engine) Mode() execution.Mode { return e.cfg.mode() }

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	prev := e.phase
	e.phase = p
	e.mu.Unlock()
	if prev != p {
		logger.Debugf("engine phase %s -> %s", prev, p)
	}
}

// Run 按 K 线收盘对齐（或固定间隔）循环执行 tick，直到 ctx 结束、kill switch 触发或落盘失败。
func (e *Engine) Run(ctx context.Context) error {
	interval := e.cfg.Timeframe.Duration
	sched := scheduler.NewAlignedScheduler(interval, e.cfg.TickOffset)
	if e.cfg.PollInterval > 0 {
		sched = scheduler.NewAlignedScheduler(e.cfg.PollInterval, 0)
		sched.Fixed = true
	}
	sched.RunImmediately = true

	var fatal error
	err := sched.Run(ctx, func(ctx context.Context) error {
		if err := e.Step(ctx); err != nil {
			if errors.Is(err, ErrKillSwitch) || errors.Is(err, ErrStateWrite) {
				fatal = err
				return scheduler.ErrStop
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return fatal
}

// Step 是主循环的一次迭代：kill switch 检查、日报、tick。
// tick 中的普通错误在此记录并告警，只有 ErrKillSwitch 与 ErrStateWrite 向上返回。
func (e *Engine) Step(ctx context.Context) error {
	if e.deps.Gate.KillSwitchActive() {
		return e.halt(ctx)
	}
	e.maybeDailySummary()
	rep, err := e.Tick(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStateWrite) {
		logger.Criticalf("tick aborted, durable state write failed: %v", err)
		e.deps.Alerts.Error("state", err)
		return err
	}
	if ctx.Err() != nil {
		return nil
	}
	logger.Errorf("tick error (%s): %v", rep.Action, err)
	e.deps.Alerts.Error("tick", err)
	return nil
}

func (e *Engine) halt(ctx context.Context) error {
	e.mu.Lock()
	already := e.halted
	e.halted = true
	e.mu.Unlock()
	if !already {
		logger.Criticalf("kill switch active, halting trading loop (open positions are left untouched)")
		e.deps.Alerts.KillSwitch("kill switch")
		e.deps.Metrics.SetRisk(e.riskSnapshot(e.deps.Gate.Status()))
		e.record(ctx, Report{At: e.now().UTC(), Action: ActionHalted})
	}
	return ErrKillSwitch
}

// maybeDailySummary 在 UTC 日期变化后推送前一天的汇总。
func (e *Engine) maybeDailySummary() {
	today := e.now().UTC().Format(time.DateOnly)
	e.mu.Lock()
	date, status := e.summaryDate, e.dayStatus
	if date == today {
		e.mu.Unlock()
		return
	}
	e.summaryDate = today
	e.mu.Unlock()
	sum := e.deps.Ledger.Summary()
	logger.Infof("daily summary %s | trades=%d win_rate=%.1f%% total_pnl=$%.2f daily_pnl=$%.4f",
		date, sum.TradeCount, sum.WinRatePct, sum.TotalPnL, status.DailyPnL)
	e.deps.Alerts.DailySummary(date, sum, status)
}

// Tick 执行一个完整的决策周期，结束时总是回到 Idle。
func (e *Engine) Tick(ctx context.Context) (Report, error) {
	defer e.setPhase(PhaseIdle)
	now := e.now().UTC()
	rep := Report{At: now, Action: ActionNone}

	if _, err := e.deps.Gate.Rollover(); err != nil {
		return e.settle(ctx, rep, fmt.Errorf("%w: %w", ErrStateWrite, err))
	}

	if _, ok := e.Pending(); ok {
		rep, err := e.reconcilePending(ctx, rep)
		return e.settle(ctx, rep, err)
	}

	e.setPhase(PhaseGathering)
	candles, err := e.deps.Candles.Candles(ctx, e.cfg.Symbol, e.cfg.Timeframe.Key, e.cfg.CandleLimit)
	if err != nil {
		return e.settle(ctx, rep, fmt.Errorf("fetch candles: %w", err))
	}
	if len(candles) == 0 {
		return e.settle(ctx, rep, errors.New("fetch candles: no closed candles"))
	}
	closeAt := candles[len(candles)-1].CloseAt()
	rep.CandleClose = closeAt
	e.mu.RLock()
	seen := e.lastCandle
	e.mu.RUnlock()
	if closeAt.Equal(seen) {
		rep.Action = ActionDuplicate
		logger.Debugf("candle %s already processed, skip", closeAt.Format(time.RFC3339))
		return rep, nil
	}

	quote, err := e.deps.Prices.Price(ctx, e.cfg.Symbol)
	if err != nil {
		return e.settle(ctx, rep, fmt.Errorf("fetch price: %w", err))
	}
	if err := execution.CheckFreshness(quote, now, e.cfg.StalePriceAfter); err != nil {
		return e.settle(ctx, rep, err)
	}
	res := e.deps.Analyzer.Analyze(candles)
	rep.Price = quote.Price
	rep.Signal = res
	e.mu.Lock()
	e.lastCandle = closeAt
	e.mu.Unlock()
	e.deps.Metrics.Signal(string(res.Signal))
	logger.Infof("[%s] Price: $%.2f | Signal: %s | Confidence: %.2f | %s",
		strings.ToUpper(string(e.cfg.mode())), quote.Price, res.Signal, res.Confidence, res.Reason)

	e.setPhase(PhaseDeciding)
	if pos, ok := e.deps.Ledger.Position(); ok {
		rep, err = e.decideExit(ctx, rep, pos, quote.Price, res)
	} else if res.Signal == signal.Buy {
		rep, err = e.decideEntry(ctx, rep, res)
	} else {
		rep.Action = ActionHold
	}
	return e.settle(ctx, rep, err)
}

func (e *Engine) decideExit(ctx context.Context, rep Report, pos ledger.Position, price float64, res signal.Result) (Report, error) {
	gate := e.deps.Gate
	sl, tp := gate.StopLossLevel(pos.EntryPrice), gate.TakeProfitLevel(pos.EntryPrice)
	reason, ok := EvaluateExit(ExitCheck{
		StopLoss:   sl,
		TakeProfit: tp,
		Low:        price,
		High:       price,
		Signal:     res.Signal,
		Held:       pos.HeldFor(rep.At),
		MaxHold:    e.cfg.MaxHold,
	})
	if !ok {
		rep.Action = ActionHold
		rep.Detail = fmt.Sprintf("holding, unrealized $%+.4f (SL $%.2f TP $%.2f)", pos.UnrealizedPnL(price), sl, tp)
		return rep, nil
	}
	logger.Infof("exit triggered: %s at $%.2f (entry $%.2f)", reason, price, pos.EntryPrice)

	e.setPhase(PhaseExecuting)
	fill, err := e.deps.Executor.ExecuteSell(ctx, execution.SellRequest{
		Symbol:     pos.Symbol,
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		Live:       e.cfg.Live,
	})
	if err != nil {
		return e.orderFailed(rep, exchange.SideSell, err, PendingRecord{ExitReason: reason})
	}
	return e.applySell(ctx, rep, fill, reason)
}

func (e *Engine) decideEntry(ctx context.Context, rep Report, res signal.Result) (Report, error) {
	gate := e.deps.Gate
	available := gate.Equity()
	if e.cfg.Live {
		bal, err := e.deps.Account.Balance(ctx, e.cfg.QuoteAsset)
		if err != nil {
			return rep, fmt.Errorf("fetch %s balance: %w", e.cfg.QuoteAsset, err)
		}
		available = bal.Free
	}
	usdt := gate.CalculatePositionSize(available)
	decision := gate.CanOpenPosition(usdt, res.Confidence)
	if !decision.Allowed {
		e.setPhase(PhaseSkipped)
		logger.Warnf("Trade blocked: %s", decision.Message)
		e.deps.Alerts.RiskBlock(decision, usdt, res.Confidence)
		e.deps.Metrics.RiskBlock(string(decision.Reason))
		rep.Action = ActionBlocked
		rep.Detail = decision.Message
		return rep, nil
	}

	e.setPhase(PhaseExecuting)
	fill, err := e.deps.Executor.ExecuteBuy(ctx, execution.BuyRequest{
		Symbol:     e.cfg.Symbol,
		USDTAmount: usdt,
		Live:       e.cfg.Live,
	})
	if err != nil {
		return e.orderFailed(rep, exchange.SideBuy, err, PendingRecord{Capital: usdt, Confidence: res.Confidence})
	}
	return e.applyBuy(rep, fill, usdt, res.Confidence)
}

// applyBuy 先更新风控计数再开仓，两者都同步落盘。
func (e *Engine) applyBuy(rep Report, fill execution.Fill, capital, confidence float64) (Report, error) {
	gate := e.deps.Gate
	if err := gate.OnTradeOpen(); err != nil {
		return rep, fmt.Errorf("%w: %w", ErrStateWrite, err)
	}
	pos, err := e.deps.Ledger.Open(fill.Symbol, fill.Price, fill.Quantity, capital)
	if err != nil {
		logger.Criticalf("buy %s filled but ledger open failed: %v", fill.ClientOrderID, err)
		return rep, fmt.Errorf("%w: %w", ErrStateWrite, err)
	}
	e.deps.Metrics.Order(string(fill.Mode), string(exchange.SideBuy), "filled")
	e.deps.Alerts.Buy(fill, confidence)
	logger.Infof("position opened %s qty=%.8f @ $%.2f | SL $%.2f TP $%.2f",
		pos.Symbol, pos.Quantity, pos.EntryPrice, gate.StopLossLevel(pos.EntryPrice), gate.TakeProfitLevel(pos.EntryPrice))
	rep.Action = ActionBuy
	rep.Detail = fmt.Sprintf("bought %.8f @ %.2f", fill.Quantity, fill.Price)
	return rep, nil
}

// applySell 风控状态先于账本落盘，崩溃时宁可丢一条成交记录也不丢回撤锁定。
func (e *Engine) applySell(ctx context.Context, rep Report, fill execution.Fill, reason ledger.ExitReason) (Report, error) {
	out, err := e.deps.Gate.OnTradeClose(fill.PnL)
	if err != nil {
		return rep, fmt.Errorf("%w: %w", ErrStateWrite, err)
	}
	trade, closed, err := e.deps.Ledger.Close(ctx, fill.Price, fill.PnL, reason)
	if err != nil {
		logger.Criticalf("sell %s filled but ledger close failed: %v", fill.ClientOrderID, err)
		return rep, fmt.Errorf("%w: %w", ErrStateWrite, err)
	}
	e.deps.Metrics.Order(string(fill.Mode), string(exchange.SideSell), "filled")
	e.deps.Metrics.TradeClosed(fill.PnL)
	if closed {
		e.deps.Alerts.Sell(trade, fill.Mode)
	}
	if out.CooldownStarted {
		logger.Warnf("cooldown started until %s after %d consecutive losses",
			out.CooldownUntil.Format(time.RFC3339), out.State.ConsecutiveLosses)
	}
	if out.DrawdownBreached {
		capPct := e.deps.Gate.Limits().MaxDrawdownCapPct
		logger.Criticalf("max drawdown breached (%.2f%% >= %.2f%%), live trading disabled until manual reset", out.DrawdownPct, capPct)
		e.deps.Alerts.DrawdownBreach(out, capPct)
	}
	rep.Action = ActionSell
	rep.Detail = fmt.Sprintf("%s: sold %.8f @ %.2f pnl %+.4f", reason, fill.Quantity, fill.Price, fill.PnL)
	return rep, nil
}

// orderFailed 按错误类别分流：拦截 → Skipped；结果未知 → 记录待核对；其余 → tick 错误。
func (e *Engine) orderFailed(rep Report, side exchange.Side, err error, rec PendingRecord) (Report, error) {
	mode := string(e.cfg.mode())
	if execution.IsBlocking(err) {
		e.setPhase(PhaseSkipped)
		logger.Warnf("%s skipped: %v", side, err)
		e.deps.Metrics.Order(mode, string(side), "blocked")
		rep.Action = ActionBlocked
		rep.Detail = err.Error()
		return rep, nil
	}

	var dup *execution.DuplicateOrderError
	if unknown, ok := execution.IsOutcomeUnknown(err); ok {
		rec.Order = unknown.Pending
	} else if errors.As(err, &dup) {
		rec.Order = dup.Pending
	} else {
		e.deps.Metrics.Order(mode, string(side), "error")
		return rep, fmt.Errorf("execute %s: %w", strings.ToLower(string(side)), err)
	}

	e.deps.Metrics.Order(mode, string(side), "unknown")
	logger.Criticalf("%s order %s outcome unknown, no new orders until reconciled: %v", side, rec.Order.Token, err)
	e.deps.Alerts.OrderUnknown(rec.Order, err)
	if perr := e.setPending(&rec); perr != nil {
		return rep, perr
	}
	rep.Action = ActionPending
	rep.Detail = err.Error()
	return rep, nil
}

func (e *Engine) setPending(rec *PendingRecord) error {
	e.mu.Lock()
	e.pending = rec
	e.mu.Unlock()
	if err := e.deps.Pending.Save(rec); err != nil {
		return fmt.Errorf("%w: %w", ErrStateWrite, err)
	}
	return nil
}

// reconcilePending 只按 token 查询，交易所确认成交后补记账本与风控。
func (e *Engine) reconcilePending(ctx context.Context, rep Report) (Report, error) {
	e.mu.RLock()
	rec := *e.pending
	e.mu.RUnlock()
	order := rec.Order

	e.setPhase(PhaseExecuting)
	fill, found, err := e.deps.Executor.Reconcile(ctx, order)
	var notFilled *execution.OrderNotFilledError
	switch {
	case errors.As(err, &notFilled) && notFilled.Terminal():
		logger.Warnf("pending %s order %s ended %s without fill, clearing", order.Side, order.Token, notFilled.Status)
		rep.Action = ActionReconciled
		rep.Detail = notFilled.Error()
		return rep, e.setPending(nil)
	case err != nil:
		rep.Action = ActionPending
		return rep, fmt.Errorf("reconcile %s: %w", order.Token, err)
	case !found:
		logger.Warnf("pending %s order %s not found on exchange, it was never accepted; clearing", order.Side, order.Token)
		rep.Action = ActionReconciled
		rep.Detail = "order not found on exchange"
		return rep, e.setPending(nil)
	}

	logger.Warnf("pending %s order %s confirmed by exchange: %.8f @ $%.2f", order.Side, order.Token, fill.Quantity, fill.Price)
	if order.Side == exchange.SideBuy {
		if e.deps.Ledger.HasPosition() {
			logger.Criticalf("pending buy %s filled but ledger already holds a position, manual review required", order.Token)
		} else if rep, err = e.applyBuy(rep, fill, rec.Capital, rec.Confidence); err != nil {
			return rep, err
		}
	} else {
		if !e.deps.Ledger.HasPosition() {
			logger.Criticalf("pending sell %s filled but ledger has no position, manual review required", order.Token)
		} else if rep, err = e.applySell(ctx, rep, fill, rec.ExitReason); err != nil {
			return rep, err
		}
	}
	if err := e.setPending(nil); err != nil {
		return rep, err
	}
	rep.Action = ActionReconciled
	return rep, nil
}

// settle 写 tick 日志并刷新指标；日志写入失败不影响交易。
func (e *Engine) settle(ctx context.Context, rep Report, err error) (Report, error) {
	e.setPhase(PhaseSettling)
	if err != nil {
		if rep.Action == ActionNone || rep.Action == ActionHold {
			rep.Action = ActionError
		}
		rep.Detail = err.Error()
	}
	e.record(ctx, rep)
	status := e.deps.Gate.Status()
	e.deps.Metrics.SetRisk(e.riskSnapshot(status))
	e.mu.Lock()
	e.last = rep
	e.dayStatus = status
	e.mu.Unlock()
	return rep, err
}

func (e *Engine) record(ctx context.Context, rep Report) {
	e.deps.Metrics.Tick(string(rep.Action), rep.At)
	if e.deps.Journal == nil {
		return
	}
	rec := store.TickRecord{
		Symbol:      e.cfg.Symbol,
		Mode:        string(e.cfg.mode()),
		CandleClose: rep.CandleClose,
		Signal:      string(rep.Signal.Signal),
		Confidence:  rep.Signal.Confidence,
		Price:       rep.Price,
		Action:      string(rep.Action),
		Detail:      rep.Detail,
		At:          rep.At,
	}
	if rep.Signal.Signal != "" {
		rec.Indicators = rep.Signal.Indicators.Map()
	}
	if err := e.deps.Journal.RecordTick(ctx, rec); err != nil {
		logger.Warnf("tick journal write failed: %v", err)
	}
}

func (e *Engine) riskSnapshot(st risk.Status) metrics.RiskSnapshot {
	return metrics.RiskSnapshot{
		Equity:          st.Equity,
		DailyPnL:        st.DailyPnL,
		MaxDrawdownSeen: st.MaxDrawdownSeen,
		TradingDisabled: st.LiveTradingDisabled,
		KillSwitch:      st.KillSwitch,
		OpenPosition:    e.deps.Ledger.HasPosition(),
	}
}
