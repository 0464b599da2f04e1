package engine

// Phase 是单个 tick 的状态机阶段。
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseGathering Phase = "gathering"
	PhaseDeciding  Phase = "deciding"
	PhaseExecuting Phase = "executing"
	PhaseSkipped   Phase = "skipped"
	PhaseSettling  Phase = "settling"
)

// Action 是一个 tick 最终做了什么，写入 tick 日志与指标。
type Action string

const (
	ActionNone       Action = "none"
	ActionDuplicate  Action = "duplicate_candle"
	ActionHold       Action = "hold"
	ActionBuy        Action = "buy"
	ActionSell       Action = "sell"
	ActionBlocked    Action = "blocked"
	ActionPending    Action = "pending"
	ActionReconciled Action = "reconciled"
	ActionHalted     Action = "halted"
	ActionError      Action = "error"
)
