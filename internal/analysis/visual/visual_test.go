package visual

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotguard/internal/analysis/indicator"
	"spotguard/internal/market"
)

func sampleCandles(n int) []market.Candle {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, n)
	for i := range out {
		open := start.Add(time.Duration(i) * time.Hour)
		px := 100 + float64(i%7)
		out[i] = market.Candle{
			OpenTime:  open.UnixMilli(),
			CloseTime: open.Add(time.Hour).UnixMilli() - 1,
			Open:      px - 0.5,
			High:      px + 1,
			Low:       px - 1,
			Close:     px,
		}
	}
	return out
}

func TestRenderReport(t *testing.T) {
	candles := sampleCandles(60)
	html, err := RenderReport(ReportInput{
		Symbol:     "ethusdt",
		Timeframe:  "1h",
		Subtitle:   "IS PASS",
		Candles:    candles,
		Indicators: indicator.Settings{EMAFast: 5, EMASlow: 10, RSIPeriod: 7, MACDFast: 5, MACDSlow: 10, MACDSignal: 3, ATRPeriod: 5},
		Markers:    []Marker{{Time: candles[10].CloseAt(), Price: 103, Buy: true}, {Time: candles[12].CloseAt(), Price: 105}},
		Equity: []Series{{Name: "IN-SAMPLE", Points: []Point{
			{Time: candles[0].CloseAt(), Value: 100},
			{Time: candles[12].CloseAt(), Value: 100.3},
		}}},
	})
	require.NoError(t, err)
	page := string(html)
	assert.Contains(t, page, "ETHUSDT 1h")
	assert.Contains(t, page, "Equity (USDT)")
	assert.Contains(t, page, "IN-SAMPLE")
}

func TestRenderReportRequiresData(t *testing.T) {
	_, err := RenderReport(ReportInput{Symbol: "ETHUSDT"})
	require.Error(t, err)
	_, err = RenderReport(ReportInput{})
	require.Error(t, err)
}
