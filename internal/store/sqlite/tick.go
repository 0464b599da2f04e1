package sqlite

import (
	"context"

	"spotguard/internal/store/model"

	"gorm.io/gorm"
)

type tickRepo struct {
	db *gorm.DB
}

func NewTickRepo(db *gorm.DB) *tickRepo {
	return &tickRepo{db: db}
}

func (r *tickRepo) Insert(ctx context.Context, tick *model.TickModel) error {
	return r.db.WithContext(ctx).Create(tick).Error
}

func (r *tickRepo) ListRecent(ctx context.Context, limit int) ([]model.TickModel, error) {
	var ticks []model.TickModel
	q := r.db.WithContext(ctx).Order("timestamp DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&ticks).Error; err != nil {
		return nil, err
	}
	return ticks, nil
}
