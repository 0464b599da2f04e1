// Package visual 用 go-echarts 生成回测报告的 HTML 图表（价格 + 买卖点 + 权益曲线）。
package visual

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"spotguard/internal/analysis/indicator"
	"spotguard/internal/market"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorEmaFast       = "#3b82f6"
	colorEmaSlow       = "#f472b6"

	chartWidthPx   = 1600
	klineHeightPx  = 600
	equityHeightPx = 360
)

var segmentColors = []string{"#fbbf24", "#22d3ee", "#a78bfa"}

// Point 时间序列上的一个点。
type Point struct {
	Time  time.Time
	Value float64
}

// Series 一条带名字的曲线（例如样本内权益）。
type Series struct {
	Name   string
	Points []Point
}

// Marker 价格图上的成交标记。
type Marker struct {
	Time  time.Time
	Price float64
	Buy   bool
}

// ReportInput 回测报告图表的输入。
type ReportInput struct {
	Symbol     string
	Timeframe  string
	Subtitle   string
	Candles    []market.Candle
	Indicators indicator.Settings
	Markers    []Marker
	Equity     []Series
}

// RenderReport 返回完整 HTML 页面。没有 K 线时只渲染权益曲线。
func RenderReport(input ReportInput) ([]byte, error) {
	if input.Symbol == "" {
		return nil, fmt.Errorf("symbol required for report render")
	}
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("%s %s backtest", strings.ToUpper(input.Symbol), input.Timeframe)
	page.SetLayout(components.PageFlexLayout)

	if len(input.Candles) > 0 {
		page.AddCharts(buildPriceChart(input))
	}
	if len(input.Equity) > 0 {
		page.AddCharts(buildEquityChart(input))
	}
	if len(page.Charts) == 0 {
		return nil, fmt.Errorf("no charts rendered for %s", input.Symbol)
	}
	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildPriceChart(input ReportInput) *charts.Kline {
	candles := input.Candles
	minPrice, maxPrice := priceBounds(candles)
	padding := (maxPrice - minPrice) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxPrice)*0.01)
	}
	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", klineHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTitleOpts(opts.Title{
			Title:         fmt.Sprintf("%s %s", strings.ToUpper(input.Symbol), input.Timeframe),
			Subtitle:      input.Subtitle,
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			Min:       round(minPrice-padding, 4),
			Max:       round(maxPrice+padding, 4),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)
	xAxis := buildXAxis(candles)
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", buildKlineSeries(candles))

	if ema := buildEMALine(candles, input.Indicators); ema != nil {
		ema.SetXAxis(xAxis)
		kline.Overlap(ema)
	}
	if len(input.Markers) > 0 {
		kline.Overlap(buildMarkers(input.Markers))
	}
	return kline
}

func buildEMALine(candles []market.Candle, settings indicator.Settings) *charts.Line {
	series, err := indicator.Compute(candles, settings)
	if err != nil {
		return nil
	}
	line := charts.NewLine()
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	line.AddSeries("EMA Fast", toLineData(series.EMAFast), charts.WithLineStyleOpts(opts.LineStyle{Color: colorEmaFast, Width: 2}))
	line.AddSeries("EMA Slow", toLineData(series.EMASlow), charts.WithLineStyleOpts(opts.LineStyle{Color: colorEmaSlow, Width: 2}))
	return line
}

func buildMarkers(markers []Marker) *charts.Scatter {
	scatter := charts.NewScatter()
	var buys, sells []opts.ScatterData
	for _, m := range markers {
		d := opts.ScatterData{Value: []interface{}{axisLabel(m.Time), m.Price}, SymbolSize: 12}
		if m.Buy {
			d.Symbol = "triangle"
			buys = append(buys, d)
			continue
		}
		d.Symbol = "pin"
		sells = append(sells, d)
	}
	scatter.AddSeries("Buy", buys, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBull}))
	scatter.AddSeries("Sell", sells, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBear}))
	return scatter
}

func buildEquityChart(input ReportInput) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", equityHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Equity (USDT)", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "time",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	for i, s := range input.Equity {
		data := make([]opts.LineData, 0, len(s.Points))
		for _, p := range s.Points {
			data = append(data, opts.LineData{Value: []interface{}{p.Time.UnixMilli(), round(p.Value, 2)}})
		}
		color := segmentColors[i%len(segmentColors)]
		line.AddSeries(s.Name, data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: color, Width: 2}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: color}),
		)
	}
	return line
}

func buildXAxis(candles []market.Candle) []string {
	x := make([]string, len(candles))
	for i, c := range candles {
		x[i] = axisLabel(c.CloseAt())
	}
	return x
}

func axisLabel(t time.Time) string {
	return t.UTC().Format("01-02 15:04")
}

func buildKlineSeries(candles []market.Candle) []opts.KlineData {
	data := make([]opts.KlineData, 0, len(candles))
	for _, c := range candles {
		data = append(data, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}
	return data
}

func toLineData(values []float64) []opts.LineData {
	data := make([]opts.LineData, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			data[i] = opts.LineData{Value: "-"}
			continue
		}
		data[i] = opts.LineData{Value: round(v, 4)}
	}
	return data
}

func priceBounds(candles []market.Candle) (float64, float64) {
	minPrice, maxPrice := math.MaxFloat64, -math.MaxFloat64
	for _, c := range candles {
		minPrice = math.Min(minPrice, c.Low)
		maxPrice = math.Max(maxPrice, c.High)
	}
	return minPrice, maxPrice
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
