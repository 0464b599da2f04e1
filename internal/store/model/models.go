package model

import (
	"time"

	"gorm.io/datatypes"
)

// TradeModel 映射 trades 表，一行对应一笔已平仓交易。
type TradeModel struct {
	ID               int64          `gorm:"column:id;primaryKey"`
	TradeID          string         `gorm:"column:trade_id;uniqueIndex"`
	Symbol           string         `gorm:"column:symbol;index"`
	Mode             string         `gorm:"column:mode"`
	EntryPrice       float64        `gorm:"column:entry_price"`
	Quantity         float64        `gorm:"column:quantity"`
	CapitalCommitted float64        `gorm:"column:capital_committed"`
	ExitPrice        float64        `gorm:"column:exit_price"`
	PnLUSD           float64        `gorm:"column:pnl_usd"`
	ExitReason       string         `gorm:"column:exit_reason"`
	OpenedAtUnix     int64          `gorm:"column:opened_at"`
	ClosedAtUnix     int64          `gorm:"column:closed_at;index"`
	RawData          datatypes.JSON `gorm:"column:raw_data;type:TEXT"`
	CreatedAtUnix    int64          `gorm:"column:created_at"`

	CreatedAt time.Time `gorm:"-"`
}

func (TradeModel) TableName() string { return "trades" }

// TickModel 映射 tick_log 表，记录每个 tick 的信号与处理结果。
type TickModel struct {
	ID              int64          `gorm:"column:id;primaryKey"`
	Symbol          string         `gorm:"column:symbol;index"`
	Mode            string         `gorm:"column:mode"`
	CandleCloseUnix int64          `gorm:"column:candle_close;index"`
	Signal          string         `gorm:"column:signal"`
	Confidence      float64        `gorm:"column:confidence"`
	Price           float64        `gorm:"column:price"`
	Action          string         `gorm:"column:action"`
	Detail          string         `gorm:"column:detail"`
	Indicators      datatypes.JSON `gorm:"column:indicators;type:TEXT"`
	Timestamp       int64          `gorm:"column:timestamp"`
}

func (TickModel) TableName() string { return "tick_log" }
