package store

import (
	"context"
	"time"

	"spotguard/internal/store/model"
)

// UnitOfWork defines a transaction scope.
type UnitOfWork interface {
	// Commit commits the transaction.
	Commit() error
	// Rollback rolls back the transaction.
	Rollback() error

	// Trades returns the trade repository within this transaction.
	Trades() TradeRepository
	// Ticks returns the tick log repository within this transaction.
	Ticks() TickRepository
}

// Store is the entry point for journal database access.
type Store interface {
	// Begin starts a new UnitOfWork (transaction).
	Begin(ctx context.Context) (UnitOfWork, error)
	// Close closes the store connection.
	Close() error
}

// TradeRepository handles closed trade persistence.
type TradeRepository interface {
	Save(ctx context.Context, trade *model.TradeModel) error
	FindByTradeID(ctx context.Context, tradeID string) (*model.TradeModel, error)
	ListRecent(ctx context.Context, limit int) ([]model.TradeModel, error)
}

// TickRepository handles tick decision logs.
type TickRepository interface {
	Insert(ctx context.Context, tick *model.TickModel) error
	ListRecent(ctx context.Context, limit int) ([]model.TickModel, error)
}

// TickRecord 是编排器每个 tick 的处理结果。
type TickRecord struct {
	Symbol      string             `json:"symbol"`
	Mode        string             `json:"mode"`
	CandleClose time.Time          `json:"candle_close"`
	Signal      string             `json:"signal"`
	Confidence  float64            `json:"confidence"`
	Price       float64            `json:"price"`
	Action      string             `json:"action"`
	Detail      string             `json:"detail,omitempty"`
	Indicators  map[string]float64 `json:"indicators,omitempty"`
	At          time.Time          `json:"at"`
}
