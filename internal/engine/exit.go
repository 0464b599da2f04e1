package engine

import (
	"time"

	"spotguard/internal/ledger"
	"spotguard/internal/signal"
)

// ExitCheck 是判断平仓所需的全部输入。实时 tick 中 Low=High=最新价，
// 回测中取 K 线的最低价与最高价。
type ExitCheck struct {
	StopLoss   float64
	TakeProfit float64
	Low        float64
	High       float64
	Signal     signal.Signal
	Held       time.Duration
	MaxHold    time.Duration
}

// EvaluateExit 按 止损 > 止盈 > 信号 > 持仓超时 的顺序返回第一个命中的平仓原因。
// 同一根 K 线同时触及止损与止盈时按止损处理。
func EvaluateExit(c ExitCheck) (ledger.ExitReason, bool) {
	switch {
	case c.Low <= c.StopLoss:
		return ledger.ExitStopLoss, true
	case c.High >= c.TakeProfit:
		return ledger.ExitTakeProfit, true
	case c.Signal == signal.Sell:
		return ledger.ExitSignal, true
	case c.MaxHold > 0 && c.Held >= c.MaxHold:
		return ledger.ExitMaxHoldTime, true
	}
	return "", false
}
