package backtest

import (
	"encoding/json"
	"time"
)

const (
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// 分段标签。
const (
	SegmentInSample    = "IN-SAMPLE"
	SegmentOutOfSample = "OUT-OF-SAMPLE"
)

// RunConfig 记录本次回测的参数快照，便于重放。
type RunConfig struct {
	Symbol          string  `json:"symbol" yaml:"symbol"`
	Timeframe       string  `json:"timeframe" yaml:"timeframe"`
	CandleLimit     int     `json:"candle_limit" yaml:"candle_limit"`
	InSampleRatio   float64 `json:"in_sample_ratio" yaml:"in_sample_ratio"`
	CapitalUSDT     float64 `json:"capital_usdt" yaml:"capital_usdt"`
	RiskPerTradePct float64 `json:"risk_per_trade_pct" yaml:"risk_per_trade_pct"`
	StopLossPct     float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	TakeProfitPct   float64 `json:"take_profit_pct" yaml:"take_profit_pct"`
	MaxHoldCandles  int     `json:"max_hold_candles" yaml:"max_hold_candles"`
	FeePct          float64 `json:"fee_pct" yaml:"fee_pct"`
	SlippagePct     float64 `json:"slippage_pct" yaml:"slippage_pct"`
}

// Run 表示一次回测，入库时不包含逐笔成交。
type Run struct {
	ID          string    `json:"id" yaml:"id"`
	Symbol      string    `json:"symbol" yaml:"symbol"`
	Timeframe   string    `json:"timeframe" yaml:"timeframe"`
	Status      string    `json:"status" yaml:"status"`
	Candles     int       `json:"candles" yaml:"candles"`
	StartTS     int64     `json:"start_ts" yaml:"start_ts"`
	EndTS       int64     `json:"end_ts" yaml:"end_ts"`
	Config      RunConfig `json:"config" yaml:"config"`
	InSample    Stats     `json:"in_sample" yaml:"in_sample"`
	OutOfSample Stats     `json:"out_of_sample" yaml:"out_of_sample"`
	Verdict     string    `json:"verdict" yaml:"verdict"`
	Warning     string    `json:"warning,omitempty" yaml:"warning,omitempty"`
	ReportPath  string    `json:"report_path,omitempty" yaml:"report_path,omitempty"`
	ChartPath   string    `json:"chart_path,omitempty" yaml:"chart_path,omitempty"`
	Message     string    `json:"message,omitempty" yaml:"message,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	CompletedAt time.Time `json:"completed_at" yaml:"completed_at"`
}

// MarshalStats 返回两段统计的 JSON。
func (r Run) MarshalStats() (in, out []byte, err error) {
	if in, err = json.Marshal(r.InSample); err != nil {
		return nil, nil, err
	}
	if out, err = json.Marshal(r.OutOfSample); err != nil {
		return nil, nil, err
	}
	return in, out, nil
}
