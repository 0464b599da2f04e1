// Package signal 把 EMA/RSI/MACD/ATR 指标转换成 BUY/SELL/HOLD 信号。
// 规则按优先级逐条匹配，先命中者生效；信号本身不含任何风控判断。
package signal

import (
	"fmt"

	"spotguard/internal/analysis/indicator"
	"spotguard/internal/config"
	"spotguard/internal/market"
	"spotguard/internal/pkg/money"
)

type Signal string

const (
	Buy  Signal = "BUY"
	Sell Signal = "SELL"
	Hold Signal = "HOLD"
)

// Indicators 是写入日志与 tick 记录的指标快照（已四舍五入）。
type Indicators struct {
	EMAFast    float64 `json:"ema_fast"`
	EMASlow    float64 `json:"ema_slow"`
	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	ATRPct     float64 `json:"atr_pct"`
	Price      float64 `json:"price"`
}

func (i Indicators) Map() map[string]float64 {
	return map[string]float64{
		"ema_fast":    i.EMAFast,
		"ema_slow":    i.EMASlow,
		"rsi":         i.RSI,
		"macd":        i.MACD,
		"macd_signal": i.MACDSignal,
		"atr_pct":     i.ATRPct,
		"price":       i.Price,
	}
}

type Result struct {
	Signal     Signal     `json:"signal"`
	Confidence float64    `json:"confidence"`
	Reason     string     `json:"reason"`
	Indicators Indicators `json:"indicators"`
}

func (r Result) String() string {
	return fmt.Sprintf("%s conf=%.2f (%s)", r.Signal, r.Confidence, r.Reason)
}

func hold(reason string, ind Indicators) Result {
	return Result{Signal: Hold, Reason: reason, Indicators: ind}
}

// Analyzer 从已收盘 K 线生成信号。实现必须是纯函数。
type Analyzer interface {
	Analyze(candles market.Candles) Result
}

type Strategy struct {
	settings      indicator.Settings
	rsiOverbought float64
	rsiOversold   float64
	minATRPct     float64
	minCandles    int
}

var _ Analyzer = (*Strategy)(nil)

func NewStrategy(cfg config.StrategyConfig) *Strategy {
	minCandles := cfg.MinCandles
	if minCandles < 2 {
		minCandles = 2
	}
	return &Strategy{
		settings:      indicator.SettingsFrom(cfg),
		rsiOverbought: cfg.RSIOverbought,
		rsiOversold:   cfg.RSIOversold,
		minATRPct:     cfg.MinATRPct,
		minCandles:    minCandles,
	}
}

func (s *Strategy) MinCandles() int { return s.minCandles }

func (s *Strategy) Analyze(candles market.Candles) Result {
	if len(candles) < s.minCandles {
		return hold("Not enough candles", Indicators{})
	}
	series, err := indicator.Compute(candles, s.settings)
	if err != nil {
		return hold(err.Error(), Indicators{})
	}
	cur, prev := series.At(-1), series.At(-2)
	if !cur.Valid() || !prev.Valid() {
		return hold("Indicators not ready", Indicators{})
	}
	atrPct := cur.ATRPct()
	ind := Indicators{
		EMAFast:    money.Round2(cur.EMAFast),
		EMASlow:    money.Round2(cur.EMASlow),
		RSI:        money.Round2(cur.RSI),
		MACD:       money.Round4(cur.MACD),
		MACDSignal: money.Round4(cur.MACDSignal),
		ATRPct:     money.Round4(atrPct),
		Price:      money.Round2(cur.Close),
	}
	if atrPct < s.minATRPct {
		return hold("Volatility too low", ind)
	}
	in := facts{
		uptrend:       cur.EMAFast > cur.EMASlow,
		downtrend:     cur.EMAFast < cur.EMASlow,
		emaCrossUp:    prev.EMAFast <= prev.EMASlow && cur.EMAFast > cur.EMASlow,
		emaCrossDown:  prev.EMAFast >= prev.EMASlow && cur.EMAFast < cur.EMASlow,
		macdBullish:   cur.MACD > cur.MACDSignal,
		macdBearish:   cur.MACD < cur.MACDSignal,
		macdCrossUp:   prev.MACD <= prev.MACDSignal && cur.MACD > cur.MACDSignal,
		macdCrossDown: prev.MACD >= prev.MACDSignal && cur.MACD < cur.MACDSignal,
		rsi:           cur.RSI,
		overbought:    s.rsiOverbought,
		oversold:      s.rsiOversold,
	}
	for _, r := range rules {
		if r.match(in) {
			return Result{Signal: r.signal, Confidence: r.confidence, Reason: r.reason, Indicators: ind}
		}
	}
	return hold("No confirmed signal", ind)
}
