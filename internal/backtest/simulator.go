package backtest

import (
	"fmt"
	"time"

	"spotguard/internal/config"
	"spotguard/internal/engine"
	"spotguard/internal/ledger"
	"spotguard/internal/logger"
	"spotguard/internal/market"
	"spotguard/internal/pkg/money"
	"spotguard/internal/pkg/symbol"
	"spotguard/internal/risk"
	"spotguard/internal/signal"
)

// Strategy 是回测所需的信号分析器，需要声明最少 K 线数。
type Strategy interface {
	signal.Analyzer
	MinCandles() int
}

// Params 回放参数。费率与滑点是百分比（0.1 表示 0.1%）。
type Params struct {
	Symbol      string
	Timeframe   market.Timeframe
	Limits      risk.Limits
	FeePct      float64
	SlippagePct float64
	// MaxHoldCandles 由 max_holding_hours 按周期换算而来，0 表示不限。
	MaxHoldCandles int
	// Window 每次分析取最近多少根 K 线，与实时 tick 拉取的窗口一致。
	Window int
}

func ParamsFrom(cfg *config.Config) (Params, error) {
	tf, err := market.ParseTimeframe(cfg.Trading.Timeframe)
	if err != nil {
		return Params{}, err
	}
	sym := symbol.Parse(cfg.Trading.Pair)
	if sym.Binance() == "" {
		return Params{}, fmt.Errorf("invalid trading.pair %q", cfg.Trading.Pair)
	}
	p := Params{
		Symbol:         sym.Binance(),
		Timeframe:      tf,
		Limits:         risk.LimitsFromConfig(cfg),
		MaxHoldCandles: tf.CandlesFor(cfg.Exit.MaxHolding()),
		Window:         cfg.Trading.CandleWindow,
	}
	if cfg.Backtest.IncludeFees {
		p.FeePct = cfg.Execution.FeePct
	}
	if cfg.Backtest.IncludeSlippage {
		p.SlippagePct = cfg.Execution.SlippageEstimatePct
	}
	return p, nil
}

// Trade 一笔回放成交（开+平）。PnL 为扣除双边手续费后的净值。
type Trade struct {
	EntryTime      time.Time         `json:"entry_time" yaml:"entry_time"`
	ExitTime       time.Time         `json:"exit_time" yaml:"exit_time"`
	EntryPrice     float64           `json:"entry_price" yaml:"entry_price"`
	ExitPrice      float64           `json:"exit_price" yaml:"exit_price"`
	Quantity       float64           `json:"quantity" yaml:"quantity"`
	CapitalUSDT    float64           `json:"capital_usdt" yaml:"capital_usdt"`
	Fees           float64           `json:"fees" yaml:"fees"`
	PnL            float64           `json:"pnl" yaml:"pnl"`
	PnLPct         float64           `json:"pnl_pct" yaml:"pnl_pct"`
	Reason         ledger.ExitReason `json:"reason" yaml:"reason"`
	Confidence     float64           `json:"confidence" yaml:"confidence"`
	HoldingCandles int               `json:"holding_candles" yaml:"holding_candles"`
}

// EquityPoint 每次平仓后的权益。
type EquityPoint struct {
	Time   time.Time `json:"time" yaml:"time"`
	Equity float64   `json:"equity" yaml:"equity"`
}

// SegmentResult 单段（样本内/样本外）回放结果。
type SegmentResult struct {
	Label      string                    `json:"label" yaml:"label"`
	Candles    int                       `json:"candles" yaml:"candles"`
	From       time.Time                 `json:"from" yaml:"from"`
	To         time.Time                 `json:"to" yaml:"to"`
	Stats      Stats                     `json:"stats" yaml:"stats"`
	RiskBlocks map[risk.RejectReason]int `json:"risk_blocks,omitempty" yaml:"risk_blocks,omitempty"`
	Trades     []Trade                   `json:"trades" yaml:"trades"`
	Equity     []EquityPoint             `json:"equity" yaml:"-"`
}

type openPosition struct {
	entryIdx   int
	entryTime  time.Time
	buyPrice   float64
	qty        float64
	usdt       float64
	entryFee   float64
	stopLoss   float64
	takeProfit float64
	confidence float64
}

// Simulate 逐根回放一段 K 线。每段使用独立的内存风控闸门，时钟跟随 K 线收盘时间，
// 因此冷却、日亏损上限与回撤锁定在回测中同样生效。
func Simulate(label string, candles market.Candles, strat Strategy, p Params) (SegmentResult, error) {
	res := SegmentResult{Label: label, Candles: len(candles), RiskBlocks: map[risk.RejectReason]int{}}
	initial := p.Limits.CapitalLimitUSDT
	if len(candles) > 0 {
		res.From = time.UnixMilli(candles[0].OpenTime).UTC()
		res.To = candles[len(candles)-1].CloseAt()
		res.Equity = append(res.Equity, EquityPoint{Time: res.From, Equity: initial})
	}

	var clock time.Time
	gate, err := risk.NewGate(p.Limits, risk.NewMemoryStore(), risk.NeverSwitch{},
		risk.WithClock(func() time.Time { return clock }))
	if err != nil {
		return res, err
	}

	fee := p.FeePct / 100
	slip := p.SlippagePct / 100
	barDur := p.Timeframe.Duration
	var pos *openPosition

	for i := strat.MinCandles(); i < len(candles)-1; i++ {
		bar := candles[i]
		clock = bar.CloseAt()
		from := 0
		if p.Window > 0 && i+1 > p.Window {
			from = i + 1 - p.Window
		}
		sig := strat.Analyze(candles[from : i+1])

		if pos == nil {
			if sig.Signal != signal.Buy {
				continue
			}
			usdt := gate.CalculatePositionSize(gate.Equity())
			d := gate.CanOpenPosition(usdt, sig.Confidence)
			if !d.Allowed {
				res.RiskBlocks[d.Reason]++
				logger.Debugf("[backtest] %s %s blocked: %s", label, bar.TimeString(), d.Message)
				continue
			}
			buy := bar.Close * (1 + slip)
			entryFee := usdt * fee
			pos = &openPosition{
				entryIdx:   i,
				entryTime:  clock,
				buyPrice:   buy,
				qty:        (usdt - entryFee) / buy,
				usdt:       usdt,
				entryFee:   entryFee,
				stopLoss:   gate.StopLossLevel(buy),
				takeProfit: gate.TakeProfitLevel(buy),
				confidence: sig.Confidence,
			}
			if err := gate.OnTradeOpen(); err != nil {
				return res, err
			}
			continue
		}

		held := i - pos.entryIdx
		reason, ok := engine.EvaluateExit(engine.ExitCheck{
			StopLoss:   pos.stopLoss,
			TakeProfit: pos.takeProfit,
			Low:        bar.Low,
			High:       bar.High,
			Signal:     sig.Signal,
			Held:       time.Duration(held) * barDur,
			MaxHold:    time.Duration(p.MaxHoldCandles) * barDur,
		})
		if !ok {
			continue
		}
		var exit float64
		switch reason {
		case ledger.ExitStopLoss:
			exit = pos.stopLoss * (1 - slip)
		case ledger.ExitTakeProfit:
			exit = pos.takeProfit * (1 - slip)
		default:
			exit = bar.Close * (1 - slip)
		}
		exitFee := exit * pos.qty * fee
		pnl := money.Round4(exit*pos.qty - exitFee - pos.usdt)
		res.Trades = append(res.Trades, Trade{
			EntryTime:      pos.entryTime,
			ExitTime:       clock,
			EntryPrice:     pos.buyPrice,
			ExitPrice:      exit,
			Quantity:       pos.qty,
			CapitalUSDT:    pos.usdt,
			Fees:           money.Round4(pos.entryFee + exitFee),
			PnL:            pnl,
			PnLPct:         money.Round2((exit - pos.buyPrice) / pos.buyPrice * 100),
			Reason:         reason,
			Confidence:     pos.confidence,
			HoldingCandles: held,
		})
		if _, err := gate.OnTradeClose(pnl); err != nil {
			return res, err
		}
		res.Equity = append(res.Equity, EquityPoint{Time: clock, Equity: gate.Equity()})
		pos = nil
	}

	res.Stats = ComputeStats(initial, res.Trades)
	if res.Stats.Trades == 0 {
		logger.Warnf("[backtest] %s: no trades generated", label)
	}
	return res, nil
}
