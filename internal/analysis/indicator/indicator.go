package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"spotguard/internal/config"
	"spotguard/internal/market"
)

// Settings 描述计算指标所需的周期参数。
type Settings struct {
	EMAFast    int
	EMASlow    int
	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	ATRPeriod  int
}

func SettingsFrom(cfg config.StrategyConfig) Settings {
	return Settings{
		EMAFast:    cfg.EMAFast,
		EMASlow:    cfg.EMASlow,
		RSIPeriod:  cfg.RSIPeriod,
		MACDFast:   cfg.MACDFast,
		MACDSlow:   cfg.MACDSlow,
		MACDSignal: cfg.MACDSignal,
		ATRPeriod:  cfg.ATRPeriod,
	}
}

func (s Settings) withDefaults() Settings {
	if s.EMAFast <= 0 {
		s.EMAFast = 9
	}
	if s.EMASlow <= 0 {
		s.EMASlow = 21
	}
	if s.RSIPeriod <= 0 {
		s.RSIPeriod = 14
	}
	if s.MACDFast <= 0 {
		s.MACDFast = 12
	}
	if s.MACDSlow <= 0 {
		s.MACDSlow = 26
	}
	if s.MACDSignal <= 0 {
		s.MACDSignal = 9
	}
	if s.ATRPeriod <= 0 {
		s.ATRPeriod = 14
	}
	return s
}

// Series 与输入 K 线逐根对齐，指标尚未成形的位置为 NaN。
type Series struct {
	Close      []float64
	EMAFast    []float64
	EMASlow    []float64
	RSI        []float64
	MACD       []float64
	MACDSignal []float64
	ATR        []float64
}

// Point 是某一根 K 线上的指标取值。
type Point struct {
	Close      float64
	EMAFast    float64
	EMASlow    float64
	RSI        float64
	MACD       float64
	MACDSignal float64
	ATR        float64
}

// ATRPct 以收盘价百分比表示的波动率。
func (p Point) ATRPct() float64 {
	if p.Close == 0 {
		return math.NaN()
	}
	return p.ATR / p.Close * 100
}

// Valid 所有指标均已成形。
func (p Point) Valid() bool {
	for _, v := range []float64{p.EMAFast, p.EMASlow, p.RSI, p.MACD, p.MACDSignal, p.ATR} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s Series) Len() int { return len(s.Close) }

// At 取第 i 根的指标；负数表示从末尾倒数。
func (s Series) At(i int) Point {
	if i < 0 {
		i += s.Len()
	}
	if i < 0 || i >= s.Len() {
		nan := math.NaN()
		return Point{Close: nan, EMAFast: nan, EMASlow: nan, RSI: nan, MACD: nan, MACDSignal: nan, ATR: nan}
	}
	return Point{
		Close:      s.Close[i],
		EMAFast:    s.EMAFast[i],
		EMASlow:    s.EMASlow[i],
		RSI:        s.RSI[i],
		MACD:       s.MACD[i],
		MACDSignal: s.MACDSignal[i],
		ATR:        s.ATR[i],
	}
}

// Compute 计算 EMA/RSI/MACD/ATR 序列。
// ATR 取真实波幅的简单移动平均。
func Compute(candles market.Candles, cfg Settings) (Series, error) {
	if len(candles) < 2 {
		return Series{}, fmt.Errorf("need at least 2 candles, got %d", len(candles))
	}
	cfg = cfg.withDefaults()
	closes := candles.Closes()
	highs := candles.Highs()
	lows := candles.Lows()

	macd, macdSignal, _ := talib.Macd(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	macdLookback := cfg.MACDSlow - 1 + cfg.MACDSignal - 1
	tr := talib.TRange(highs, lows, closes)

	return Series{
		Close:      closes,
		EMAFast:    maskLookback(talib.Ema(closes, cfg.EMAFast), cfg.EMAFast-1),
		EMASlow:    maskLookback(talib.Ema(closes, cfg.EMASlow), cfg.EMASlow-1),
		RSI:        maskLookback(talib.Rsi(closes, cfg.RSIPeriod), cfg.RSIPeriod),
		MACD:       maskLookback(macd, macdLookback),
		MACDSignal: maskLookback(macdSignal, macdLookback),
		ATR:        maskLookback(talib.Sma(tr, cfg.ATRPeriod), cfg.ATRPeriod),
	}, nil
}

// maskLookback 把 TALib 在预热区填充的 0 换成 NaN，非有限值同样视为缺失。
func maskLookback(src []float64, lookback int) []float64 {
	out := make([]float64, len(src))
	for i, v := range src {
		if i < lookback || math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = math.NaN()
			continue
		}
		out[i] = v
	}
	return out
}
