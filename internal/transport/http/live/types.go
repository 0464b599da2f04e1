package livehttp

import (
	"context"
	"time"

	"spotguard/internal/engine"
	"spotguard/internal/execution"
	"spotguard/internal/ledger"
	"spotguard/internal/risk"
	"spotguard/internal/store"
)

// EngineView 编排器的只读视图。
type EngineView interface {
	State() engine.Phase
	LastReport() engine.Report
	Pending() (engine.PendingRecord, bool)
	Mode() execution.Mode
}

type RiskView interface {
	Status() risk.Status
	StopLossLevel(entry float64) float64
	TakeProfitLevel(entry float64) float64
}

type LedgerView interface {
	Position() (ledger.Position, bool)
	History() []ledger.TradeRecord
	Summary() ledger.Summary
}

// JournalView 读取 sqlite 流水，未启用时为 nil。
type JournalView interface {
	RecentTicks(ctx context.Context, limit int) ([]store.TickRecord, error)
	RecentTrades(ctx context.Context, limit int) ([]ledger.TradeRecord, error)
}

// KillSwitchToggle 由文件型 kill switch 实现。
type KillSwitchToggle interface {
	Active() bool
	Set(active bool) error
}

// Deps 路由依赖；Journal 与 KillSwitch 可为空。
type Deps struct {
	Symbol     string
	Timeframe  string
	Engine     EngineView
	Risk       RiskView
	Ledger     LedgerView
	Journal    JournalView
	KillSwitch KillSwitchToggle
	Now        func() time.Time
}

type statusResponse struct {
	Mode       execution.Mode        `json:"mode"`
	Symbol     string                `json:"symbol"`
	Timeframe  string                `json:"timeframe"`
	Phase      engine.Phase          `json:"phase"`
	Risk       risk.Status           `json:"risk"`
	LastTick   *engine.Report        `json:"last_tick,omitempty"`
	Pending    *engine.PendingRecord `json:"pending_order,omitempty"`
	HasPos     bool                  `json:"has_position"`
	ServerTime time.Time             `json:"server_time"`
}

type positionResponse struct {
	ledger.Position
	MarkPrice     float64 `json:"mark_price,omitempty"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	StopLoss      float64 `json:"stop_loss"`
	TakeProfit    float64 `json:"take_profit"`
	HeldMinutes   int     `json:"held_minutes"`
}

type summaryResponse struct {
	Trades ledger.Summary `json:"trades"`
	Equity float64        `json:"equity"`
	Peak   float64        `json:"peak_equity"`
	Daily  float64        `json:"daily_pnl"`
	MaxDD  float64        `json:"max_drawdown_seen"`
}

type killSwitchRequest struct {
	Active *bool  `json:"active" binding:"required"`
	Reason string `json:"reason"`
}
