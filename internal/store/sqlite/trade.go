package sqlite

import (
	"context"
	"errors"

	"spotguard/internal/store/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// tradeRepository implements the TradeRepository interface.
type tradeRepository struct {
	db *gorm.DB
}

func NewTradeRepo(db *gorm.DB) *tradeRepository {
	return &tradeRepository{db: db}
}

// Save inserts a trade; replaying the same trade id updates the existing row.
func (r *tradeRepository) Save(ctx context.Context, trade *model.TradeModel) error {
	if trade == nil {
		return errors.New("trade cannot be nil")
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "trade_id"}},
		UpdateAll: true,
	}).Create(trade).Error
}

func (r *tradeRepository) FindByTradeID(ctx context.Context, tradeID string) (*model.TradeModel, error) {
	var trade model.TradeModel
	err := r.db.WithContext(ctx).Where("trade_id = ?", tradeID).First(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &trade, nil
}

// ListRecent lists trades, newest first.
func (r *tradeRepository) ListRecent(ctx context.Context, limit int) ([]model.TradeModel, error) {
	var trades []model.TradeModel
	if limit <= 0 {
		limit = 100
	}
	if err := r.db.WithContext(ctx).
		Order("closed_at DESC, id DESC").
		Limit(limit).
		Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}
