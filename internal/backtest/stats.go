package backtest

import (
	"encoding/json"
	"math"

	"spotguard/internal/pkg/money"
)

// 上线前的最低要求。
const (
	PassMinWinRate      = 45.0
	PassMinProfitFactor = 1.2
	PassMaxDrawdownPct  = 15.0

	// 样本外低于以下任一值时告警。
	oosMinWinRate      = 40.0
	oosMinProfitFactor = 1.0
)

// Stats 单段统计。ProfitFactor 在没有亏损交易时为 +Inf。
type Stats struct {
	Trades            int     `json:"total_trades" yaml:"total_trades"`
	Wins              int     `json:"wins" yaml:"wins"`
	Losses            int     `json:"losses" yaml:"losses"`
	WinRate           float64 `json:"win_rate" yaml:"win_rate"`
	ProfitFactor      float64 `json:"-" yaml:"profit_factor"`
	TotalReturnPct    float64 `json:"total_return_pct" yaml:"total_return_pct"`
	MaxDrawdownPct    float64 `json:"max_drawdown_pct" yaml:"max_drawdown_pct"`
	ExpectancyUSDT    float64 `json:"expectancy_usdt" yaml:"expectancy_usdt"`
	TotalFeesUSDT     float64 `json:"total_fees_usdt" yaml:"total_fees_usdt"`
	AvgHoldingCandles float64 `json:"avg_holding_candles" yaml:"avg_holding_candles"`
	InitialCapital    float64 `json:"initial_capital" yaml:"initial_capital"`
	FinalCapital      float64 `json:"final_capital" yaml:"final_capital"`
}

// MarshalJSON 与账本汇总一致，无穷大的盈亏比写成 "inf"。
func (s Stats) MarshalJSON() ([]byte, error) {
	type plain Stats
	var pf any = s.ProfitFactor
	if math.IsInf(s.ProfitFactor, 1) {
		pf = "inf"
	}
	return json.Marshal(struct {
		plain
		ProfitFactor any `json:"profit_factor"`
	}{plain: plain(s), ProfitFactor: pf})
}

func (s *Stats) UnmarshalJSON(b []byte) error {
	type plain Stats
	aux := struct {
		*plain
		ProfitFactor any `json:"profit_factor"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	switch v := aux.ProfitFactor.(type) {
	case float64:
		s.ProfitFactor = v
	case string:
		if v == "inf" {
			s.ProfitFactor = math.Inf(1)
		}
	}
	return nil
}

// ComputeStats 汇总交易列表。盈亏为 0 的交易计入亏损。
func ComputeStats(initial float64, trades []Trade) Stats {
	st := Stats{InitialCapital: initial, FinalCapital: money.Round2(initial)}
	if len(trades) == 0 {
		return st
	}
	var grossProfit, grossLoss, fees float64
	holding := 0
	capital := initial
	peak := initial
	maxDD := 0.0
	for _, t := range trades {
		if t.PnL > 0 {
			st.Wins++
			grossProfit += t.PnL
		} else {
			st.Losses++
			grossLoss += math.Abs(t.PnL)
		}
		fees += t.Fees
		holding += t.HoldingCandles
		capital += t.PnL
		if capital > peak {
			peak = capital
		}
		if peak > 0 {
			maxDD = math.Max(maxDD, (peak-capital)/peak*100)
		}
	}
	n := float64(len(trades))
	st.Trades = len(trades)
	st.WinRate = money.Round(float64(st.Wins)/n*100, 1)
	switch {
	case grossLoss > 0:
		st.ProfitFactor = money.Round2(grossProfit / grossLoss)
	case grossProfit > 0:
		st.ProfitFactor = math.Inf(1)
	}
	if initial > 0 {
		st.TotalReturnPct = money.Round2((capital - initial) / initial * 100)
	}
	st.MaxDrawdownPct = money.Round2(maxDD)
	st.ExpectancyUSDT = money.Round2((capital - initial) / n)
	st.TotalFeesUSDT = money.Round2(fees)
	st.AvgHoldingCandles = money.Round(float64(holding)/n, 1)
	st.FinalCapital = money.Round2(capital)
	return st
}

// Passed 是否满足上线最低要求。没有交易视为未通过。
func (s Stats) Passed() bool {
	return s.Trades > 0 &&
		s.WinRate >= PassMinWinRate &&
		s.ProfitFactor >= PassMinProfitFactor &&
		s.MaxDrawdownPct <= PassMaxDrawdownPct
}

// Verdict 返回 PASS/FAIL。
func (s Stats) Verdict() string {
	if s.Passed() {
		return "PASS"
	}
	return "FAIL"
}

// Underperforms 样本外表现告警条件。
func (s Stats) Underperforms() bool {
	return s.WinRate < oosMinWinRate || s.ProfitFactor < oosMinProfitFactor
}
