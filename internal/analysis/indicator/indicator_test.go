package indicator

import (
	"math"
	"testing"

	"spotguard/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rampCandles(n int, start, step float64) market.Candles {
	out := make(market.Candles, n)
	for i := range out {
		c := start + float64(i)*step
		out[i] = market.Candle{OpenTime: int64(i) * 60000, Open: c, High: c + 1, Low: c - 1, Close: c}
	}
	return out
}

func TestCompute_AlignsAndMasksWarmup(t *testing.T) {
	candles := rampCandles(60, 100, 0.5)
	s, err := Compute(candles, Settings{})
	require.NoError(t, err)
	require.Equal(t, 60, s.Len())

	assert.True(t, math.IsNaN(s.EMAFast[0]))
	assert.True(t, math.IsNaN(s.MACD[10]))
	assert.False(t, s.At(0).Valid())

	last := s.At(-1)
	require.True(t, last.Valid())
	assert.Equal(t, candles[59].Close, last.Close)
	// 单调上涨：快线在慢线之上，MACD 为正，RSI 贴近 100。
	assert.Greater(t, last.EMAFast, last.EMASlow)
	assert.Greater(t, last.MACD, 0.0)
	assert.Greater(t, last.RSI, 90.0)
	assert.InDelta(t, 2.0, last.ATR, 1e-9)
	assert.InDelta(t, 2.0/last.Close*100, last.ATRPct(), 1e-9)
}

func TestCompute_TooFewCandles(t *testing.T) {
	_, err := Compute(rampCandles(1, 100, 1), Settings{})
	require.Error(t, err)
}

func TestSeries_AtOutOfRange(t *testing.T) {
	s, err := Compute(rampCandles(5, 100, 1), Settings{})
	require.NoError(t, err)
	assert.False(t, s.At(10).Valid())
	assert.False(t, s.At(-10).Valid())
}
