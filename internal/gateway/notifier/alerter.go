package notifier

import (
	"fmt"
	"time"

	"spotguard/internal/execution"
	"spotguard/internal/ledger"
	"spotguard/internal/logger"
	"spotguard/internal/risk"
)

// Alerter 把引擎事件渲染成 StructuredMessage 并推送。
// 推送失败只记日志，不向调用方返回错误。
type Alerter struct {
	out TextNotifier
	now func() time.Time
}

func NewAlerter(out TextNotifier) *Alerter {
	if out == nil {
		out = NopNotifier{}
	}
	return &Alerter{out: out, now: time.Now}
}

func (a *Alerter) send(msg StructuredMessage) {
	if a == nil {
		return
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = a.now()
	}
	if err := a.out.SendText(msg.RenderHTML()); err != nil {
		logger.Warnf("alert %q not delivered: %v", msg.Title, err)
	}
}

func (a *Alerter) Startup(mode execution.Mode, symbol, timeframe string, equity float64) {
	a.send(StructuredMessage{
		Icon:  "🚀",
		Title: "spotguard started",
		Sections: []MessageSection{{Lines: []string{
			Line("Mode", mode),
			Line("Pair", symbol),
			Line("Timeframe", timeframe),
			Line("Equity", fmt.Sprintf("$%.2f", equity)),
		}}},
	})
}

func (a *Alerter) Buy(fill execution.Fill, confidence float64) {
	lines := []string{
		Line("Pair", fill.Symbol),
		Line("Qty", fill.Quantity),
		Line("Price", fmt.Sprintf("$%.2f", fill.Price)),
		Line("Notional", fmt.Sprintf("$%.2f", fill.Notional)),
		Line("Est. cost", fmt.Sprintf("$%.4f", fill.EstimatedCost)),
		Line("Confidence", fmt.Sprintf("%.2f", confidence)),
	}
	if fill.ClientOrderID != "" {
		lines = append(lines, Line("Order", fill.ClientOrderID))
	}
	a.send(StructuredMessage{
		Icon:     "🟢",
		Title:    fmt.Sprintf("BUY %s (%s)", fill.Symbol, fill.Mode),
		Sections: []MessageSection{{Lines: lines}},
	})
}

func (a *Alerter) Sell(trade ledger.TradeRecord, mode execution.Mode) {
	icon := "🔴"
	if trade.Win() {
		icon = "✅"
	}
	a.send(StructuredMessage{
		Icon:  icon,
		Title: fmt.Sprintf("SELL %s (%s)", trade.Symbol, mode),
		Sections: []MessageSection{{Lines: []string{
			Line("Reason", trade.ExitReason),
			Line("Entry", fmt.Sprintf("$%.2f", trade.EntryPrice)),
			Line("Exit", fmt.Sprintf("$%.2f", trade.ExitPrice)),
			Line("Qty", trade.Quantity),
			Line("PnL", fmt.Sprintf("$%+.4f", trade.RealizedPnL)),
			Line("Held", trade.ClosedAt.Sub(trade.OpenedAt).Round(time.Minute)),
		}}},
	})
}

func (a *Alerter) RiskBlock(d risk.Decision, usdt, confidence float64) {
	a.send(StructuredMessage{
		Icon:  "⚠️",
		Title: "Trade blocked by risk gate",
		Sections: []MessageSection{{Lines: []string{
			Line("Reason", d.Reason),
			d.Message,
			Line("Size", fmt.Sprintf("$%.2f", usdt)),
			Line("Confidence", fmt.Sprintf("%.2f", confidence)),
		}}},
	})
}

func (a *Alerter) Error(stage string, err error) {
	a.send(StructuredMessage{
		Icon:     "❗",
		Title:    "Tick error",
		Sections: []MessageSection{{Lines: []string{Line("Stage", stage), Line("Error", err)}}},
	})
}

func (a *Alerter) OrderUnknown(p execution.PendingOrder, err error) {
	a.send(StructuredMessage{
		Icon:  "🚨",
		Title: "Order outcome unknown",
		Sections: []MessageSection{{Lines: []string{
			Line("Side", p.Side),
			Line("Pair", p.Symbol),
			Line("Token", p.Token),
			Line("Qty", p.Quantity),
			Line("Error", err),
		}}},
		Footer: "No new orders until the exchange confirms this token.",
	})
}

func (a *Alerter) DailySummary(date string, sum ledger.Summary, st risk.Status) {
	pf := fmt.Sprintf("%.2f", sum.ProfitFactor)
	if sum.ProfitFactor > 1e300 {
		pf = "inf"
	}
	a.send(StructuredMessage{
		Icon:  "📊",
		Title: "Daily summary " + date,
		Sections: []MessageSection{
			{Title: "Day", Lines: []string{
				Line("Daily PnL", fmt.Sprintf("$%+.4f", st.DailyPnL)),
				Line("Equity", fmt.Sprintf("$%.2f", st.Equity)),
				Line("Max drawdown", fmt.Sprintf("%.2f%%", st.MaxDrawdownSeen)),
				Line("Trading disabled", st.LiveTradingDisabled),
			}},
			{Title: "All time", Lines: []string{
				Line("Trades", sum.TradeCount),
				Line("Win rate", fmt.Sprintf("%.1f%%", sum.WinRatePct)),
				Line("Total PnL", fmt.Sprintf("$%+.2f", sum.TotalPnL)),
				Line("Profit factor", pf),
			}},
		},
	})
}

func (a *Alerter) KillSwitch(source string) {
	a.send(StructuredMessage{
		Icon:     "🛑",
		Title:    "Kill switch active, trading halted",
		Sections: []MessageSection{{Lines: []string{Line("Source", source)}}},
		Footer:   "Open positions are left untouched.",
	})
}

func (a *Alerter) DrawdownBreach(out risk.CloseOutcome, capPct float64) {
	a.send(StructuredMessage{
		Icon:  "🚨",
		Title: "Max drawdown breached, live trading disabled",
		Sections: []MessageSection{{Lines: []string{
			Line("Drawdown", fmt.Sprintf("%.2f%%", out.DrawdownPct)),
			Line("Cap", fmt.Sprintf("%.2f%%", capPct)),
			Line("Equity", fmt.Sprintf("$%.2f", out.State.Equity)),
		}}},
		Footer: "Manual reset required (spotguard reset-risk).",
	})
}
