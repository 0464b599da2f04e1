package app

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"spotguard/internal/config"
	"spotguard/internal/engine"
	"spotguard/internal/execution"
	"spotguard/internal/ledger"
	"spotguard/internal/risk"
)

type StartupSummary struct {
	Mode       execution.Mode
	Symbol     string
	Timeframe  string
	Schedule   string
	Limits     risk.Limits
	Risk       risk.Status
	Position   *ledger.Position
	Storage    config.StorageConfig
	KillSwitch string
	HTTPAddr   string
}

func newStartupSummary(cfg *config.Config, mode execution.Mode, engCfg engine.Config, gate *risk.Gate, book *ledger.Ledger) *StartupSummary {
	s := &StartupSummary{
		Mode:       mode,
		Symbol:     engCfg.Symbol,
		Timeframe:  engCfg.Timeframe.Key,
		Schedule:   fmt.Sprintf("candle close + %s", engCfg.TickOffset),
		Limits:     gate.Limits(),
		Risk:       gate.Status(),
		Storage:    cfg.Storage,
		KillSwitch: cfg.KillSwitch.File,
	}
	if engCfg.PollInterval > 0 {
		s.Schedule = fmt.Sprintf("every %s", engCfg.PollInterval)
	}
	if pos, ok := book.Position(); ok {
		s.Position = &pos
	}
	if cfg.App.HTTPEnabled {
		s.HTTPAddr = cfg.App.HTTPAddr
	}
	return s
}

func (s *StartupSummary) Print() {
	s.Fprint(os.Stdout)
}

func (s *StartupSummary) Fprint(w io.Writer) {
	title := "启动配置摘要 (STARTUP SUMMARY)"
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[交易 (TRADING)]")
	fmt.Fprintf(w, "  模式: %s\n", strings.ToUpper(string(s.Mode)))
	fmt.Fprintf(w, "  交易对: %s  周期: %s\n", s.Symbol, s.Timeframe)
	fmt.Fprintf(w, "  调度: %s\n", s.Schedule)
	fmt.Fprintln(w)

	l := s.Limits
	fmt.Fprintln(w, "[风控参数 (RISK LIMITS)]")
	fmt.Fprintf(w, "  资金上限: $%.2f  最小下单: $%.2f\n", l.CapitalLimitUSDT, l.MinOrderUSDT)
	fmt.Fprintf(w, "  单笔风险: %.1f%%  总敞口: %.1f%%  最大持仓数: %d\n", l.RiskPerTradePct, l.MaxTotalExposurePct, l.MaxConcurrentPositions)
	fmt.Fprintf(w, "  日亏损上限: %.1f%%  最大回撤: %.1f%%\n", l.DailyLossCapPct, l.MaxDrawdownCapPct)
	fmt.Fprintf(w, "  连亏 %d 次冷却 %d 分钟  最低置信度: %.2f\n", l.ConsecutiveLossLimit, l.CooldownMinutes, l.MinSignalConfidence)
	fmt.Fprintf(w, "  止损: %.2f%%  止盈: %.2f%%\n", l.StopLossPct, l.TakeProfitPct)
	fmt.Fprintln(w)

	st := s.Risk
	fmt.Fprintln(w, "[风控状态 (RISK STATE)]")
	fmt.Fprintf(w, "  权益: $%.2f  峰值: $%.2f  当日盈亏: $%.4f\n", st.Equity, st.PeakEquity, st.DailyPnL)
	fmt.Fprintf(w, "  连续亏损: %d  历史最大回撤: %.2f%%\n", st.ConsecutiveLosses, st.MaxDrawdownSeen)
	if st.CooldownUntil != nil {
		fmt.Fprintf(w, "  冷却至: %s\n", st.CooldownUntil.UTC().Format(time.RFC3339))
	}
	if st.LiveTradingDisabled {
		fmt.Fprintln(w, "  实盘已锁定 (drawdown latch set)")
	}
	fmt.Fprintf(w, "  kill switch: %v (%s)\n", st.KillSwitch, s.KillSwitch)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[持仓 (POSITION)]")
	if s.Position == nil {
		fmt.Fprintln(w, "  (无)")
	} else {
		p := s.Position
		fmt.Fprintf(w, "  %s qty=%.6f entry=$%.4f capital=$%.2f opened=%s\n",
			p.Symbol, p.Quantity, p.EntryPrice, p.CapitalCommitted, p.OpenedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[存储 (STORAGE)]")
	fmt.Fprintf(w, "  风控状态: %s\n", s.Storage.RiskStatePath)
	fmt.Fprintf(w, "  组合: %s\n", s.Storage.PortfolioPath)
	fmt.Fprintf(w, "  流水: %s\n", s.Storage.JournalPath)
	fmt.Fprintf(w, "  管理接口: %s\n", orDash(s.HTTPAddr))
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
