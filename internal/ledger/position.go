package ledger

import (
	"encoding/json"
	"math"
	"time"

	"spotguard/internal/pkg/money"
)

// ExitReason 平仓原因，取值即对外展示文本。
type ExitReason string

const (
	ExitStopLoss    ExitReason = "Stop Loss"
	ExitTakeProfit  ExitReason = "Take Profit"
	ExitSignal      ExitReason = "Signal Exit"
	ExitMaxHoldTime ExitReason = "Max Hold Time"
)

// Position 当前唯一持仓。
type Position struct {
	Symbol           string    `json:"symbol"`
	EntryPrice       float64   `json:"entry_price"`
	Quantity         float64   `json:"quantity"`
	CapitalCommitted float64   `json:"capital_committed"`
	OpenedAt         time.Time `json:"opened_at"`
}

// UnrealizedPnL 不含费用的浮动盈亏。
func (p Position) UnrealizedPnL(price float64) float64 {
	return money.Round4((price - p.EntryPrice) * p.Quantity)
}

func (p Position) HeldFor(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}

// TradeRecord 是已平仓交易，写入后不再修改。
type TradeRecord struct {
	ID string `json:"id"`
	Position
	ExitPrice   float64    `json:"exit_price"`
	RealizedPnL float64    `json:"pnl"`
	ExitReason  ExitReason `json:"exit_reason"`
	ClosedAt    time.Time  `json:"closed_at"`
}

func (t TradeRecord) Win() bool { return t.RealizedPnL > 0 }

// Summary 交易汇总；没有亏损且至少一笔盈利时 ProfitFactor 为 +Inf。
type Summary struct {
	TradeCount   int     `json:"trade_count" yaml:"trade_count"`
	Wins         int     `json:"wins" yaml:"wins"`
	Losses       int     `json:"losses" yaml:"losses"`
	WinRatePct   float64 `json:"win_rate_pct" yaml:"win_rate_pct"`
	TotalPnL     float64 `json:"total_pnl" yaml:"total_pnl"`
	ProfitFactor float64 `json:"-" yaml:"profit_factor"`
	AvgPnL       float64 `json:"avg_pnl" yaml:"avg_pnl"`
}

// MarshalJSON 把无穷大的盈亏比写成 "inf"，encoding/json 不接受 Inf。
func (s Summary) MarshalJSON() ([]byte, error) {
	type plain Summary
	var pf any = s.ProfitFactor
	if math.IsInf(s.ProfitFactor, 1) {
		pf = "inf"
	}
	return json.Marshal(struct {
		plain
		ProfitFactor any `json:"profit_factor"`
	}{plain: plain(s), ProfitFactor: pf})
}

// Summarize 计算交易统计，胜负以 pnl > 0 区分。
func Summarize(history []TradeRecord) Summary {
	if len(history) == 0 {
		return Summary{}
	}
	var (
		wins        int
		total       float64
		grossProfit float64
		grossLoss   float64
	)
	for _, t := range history {
		total += t.RealizedPnL
		if t.Win() {
			wins++
			grossProfit += t.RealizedPnL
		} else {
			grossLoss += math.Abs(t.RealizedPnL)
		}
	}
	n := len(history)
	pf := 0.0
	switch {
	case grossLoss > 0:
		pf = money.Round2(grossProfit / grossLoss)
	case wins > 0:
		pf = math.Inf(1)
	}
	return Summary{
		TradeCount:   n,
		Wins:         wins,
		Losses:       n - wins,
		WinRatePct:   money.Round(float64(wins)/float64(n)*100, 1),
		TotalPnL:     money.Round2(total),
		ProfitFactor: pf,
		AvgPnL:       money.Round2(total / float64(n)),
	}
}
