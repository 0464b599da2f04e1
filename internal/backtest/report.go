package backtest

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"spotguard/internal/analysis/indicator"
	"spotguard/internal/analysis/visual"
	"spotguard/internal/logger"
	"spotguard/internal/market"
)

// Report 是写入 YAML 的完整回测报告。
type Report struct {
	Run         Run           `yaml:"run"`
	Criteria    Criteria      `yaml:"criteria"`
	InSample    SegmentResult `yaml:"in_sample"`
	OutOfSample SegmentResult `yaml:"out_of_sample"`
}

// Criteria 报告中附带的通过标准，方便离线阅读。
type Criteria struct {
	MinWinRate      float64 `yaml:"min_win_rate"`
	MinProfitFactor float64 `yaml:"min_profit_factor"`
	MaxDrawdownPct  float64 `yaml:"max_drawdown_pct"`
}

func defaultCriteria() Criteria {
	return Criteria{
		MinWinRate:      PassMinWinRate,
		MinProfitFactor: PassMinProfitFactor,
		MaxDrawdownPct:  PassMaxDrawdownPct,
	}
}

// WriteYAML 把报告写到 dir/<run id>.yaml 并返回路径。
func WriteYAML(dir string, rep Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	raw, err := yaml.Marshal(rep)
	if err != nil {
		return "", fmt.Errorf("encode backtest report: %w", err)
	}
	path := filepath.Join(dir, rep.Run.ID+".yaml")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// WriteChart 渲染价格与权益曲线 HTML，写到 dir/<run id>_equity.html。
func WriteChart(dir string, rep Report, candles market.Candles, settings indicator.Settings) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	input := visual.ReportInput{
		Symbol:     rep.Run.Symbol,
		Timeframe:  rep.Run.Timeframe,
		Subtitle:   chartSubtitle(rep),
		Candles:    candles,
		Indicators: settings,
	}
	for _, seg := range []SegmentResult{rep.InSample, rep.OutOfSample} {
		series := visual.Series{Name: seg.Label}
		for _, p := range seg.Equity {
			series.Points = append(series.Points, visual.Point{Time: p.Time, Value: p.Equity})
		}
		input.Equity = append(input.Equity, series)
		for _, t := range seg.Trades {
			input.Markers = append(input.Markers,
				visual.Marker{Time: t.EntryTime, Price: t.EntryPrice, Buy: true},
				visual.Marker{Time: t.ExitTime, Price: t.ExitPrice})
		}
	}
	html, err := visual.RenderReport(input)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, rep.Run.ID+"_equity.html")
	if err := os.WriteFile(path, html, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func chartSubtitle(rep Report) string {
	return fmt.Sprintf("IS %s WR %.1f%% PF %s | OOS %s WR %.1f%% PF %s",
		rep.InSample.Stats.Verdict(), rep.InSample.Stats.WinRate, formatPF(rep.InSample.Stats.ProfitFactor),
		rep.OutOfSample.Stats.Verdict(), rep.OutOfSample.Stats.WinRate, formatPF(rep.OutOfSample.Stats.ProfitFactor))
}

func formatPF(pf float64) string {
	if math.IsInf(pf, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", pf)
}

// LogSegment 以固定版式打印单段结果。
func LogSegment(seg SegmentResult) {
	st := seg.Stats
	bar := strings.Repeat("=", 55)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", bar)
	fmt.Fprintf(&b, "  %s | %s\n", seg.Label, st.Verdict())
	fmt.Fprintf(&b, "%s\n", bar)
	fmt.Fprintf(&b, "  Period:             %s -> %s (%d candles)\n", seg.From.Format(time.DateTime), seg.To.Format(time.DateTime), seg.Candles)
	fmt.Fprintf(&b, "  Total Trades:       %d\n", st.Trades)
	fmt.Fprintf(&b, "  Wins / Losses:      %d / %d\n", st.Wins, st.Losses)
	fmt.Fprintf(&b, "  Win Rate:           %.1f%%\n", st.WinRate)
	fmt.Fprintf(&b, "  Profit Factor:      %s\n", formatPF(st.ProfitFactor))
	fmt.Fprintf(&b, "  Total Return:       %+.2f%%\n", st.TotalReturnPct)
	fmt.Fprintf(&b, "  Max Drawdown:       %.2f%%\n", st.MaxDrawdownPct)
	fmt.Fprintf(&b, "  Expectancy/trade:   $%+.2f\n", st.ExpectancyUSDT)
	fmt.Fprintf(&b, "  Fees Paid:          $%.2f\n", st.TotalFeesUSDT)
	fmt.Fprintf(&b, "  Avg Hold (candles): %.1f\n", st.AvgHoldingCandles)
	fmt.Fprintf(&b, "  Final Capital:      $%.2f\n", st.FinalCapital)
	for reason, n := range seg.RiskBlocks {
		fmt.Fprintf(&b, "  Blocked (%s): %d\n", reason, n)
	}
	fmt.Fprintf(&b, "%s", bar)
	logger.InfoBlock(b.String())
	if !st.Passed() {
		logger.Warnf("[backtest] %s did not meet minimum criteria, review before proceeding", seg.Label)
	}
}
