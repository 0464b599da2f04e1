package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"spotguard/internal/ledger"
	"spotguard/internal/store"
	"spotguard/internal/store/model"

	"gorm.io/datatypes"
)

// Journal 把交易与 tick 写入 SQLite，作为 JSON 账本之外的查询副本。
type Journal struct {
	store store.Store
	mode  string
}

var _ ledger.Journal = (*Journal)(nil)

func NewJournal(st store.Store, mode string) *Journal {
	return &Journal{store: st, mode: mode}
}

func (j *Journal) RecordTrade(ctx context.Context, rec ledger.TradeRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}
	row := &model.TradeModel{
		TradeID:          rec.ID,
		Symbol:           rec.Symbol,
		Mode:             j.mode,
		EntryPrice:       rec.EntryPrice,
		Quantity:         rec.Quantity,
		CapitalCommitted: rec.CapitalCommitted,
		ExitPrice:        rec.ExitPrice,
		PnLUSD:           rec.RealizedPnL,
		ExitReason:       string(rec.ExitReason),
		OpenedAtUnix:     rec.OpenedAt.UnixMilli(),
		ClosedAtUnix:     rec.ClosedAt.UnixMilli(),
		RawData:          datatypes.JSON(raw),
		CreatedAtUnix:    time.Now().UnixMilli(),
	}
	return j.inTx(ctx, func(uow store.UnitOfWork) error {
		return uow.Trades().Save(ctx, row)
	})
}

func (j *Journal) RecordTick(ctx context.Context, rec store.TickRecord) error {
	var indicators datatypes.JSON
	if len(rec.Indicators) > 0 {
		raw, err := json.Marshal(rec.Indicators)
		if err != nil {
			return fmt.Errorf("marshal indicators: %w", err)
		}
		indicators = datatypes.JSON(raw)
	}
	mode := rec.Mode
	if mode == "" {
		mode = j.mode
	}
	row := &model.TickModel{
		Symbol:          rec.Symbol,
		Mode:            mode,
		CandleCloseUnix: rec.CandleClose.UnixMilli(),
		Signal:          rec.Signal,
		Confidence:      rec.Confidence,
		Price:           rec.Price,
		Action:          rec.Action,
		Detail:          rec.Detail,
		Indicators:      indicators,
		Timestamp:       rec.At.UnixMilli(),
	}
	return j.inTx(ctx, func(uow store.UnitOfWork) error {
		return uow.Ticks().Insert(ctx, row)
	})
}

// RecentTrades 按平仓时间倒序返回交易。
func (j *Journal) RecentTrades(ctx context.Context, limit int) ([]ledger.TradeRecord, error) {
	var rows []model.TradeModel
	err := j.inTx(ctx, func(uow store.UnitOfWork) error {
		var err error
		rows, err = uow.Trades().ListRecent(ctx, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]ledger.TradeRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, ledger.TradeRecord{
			ID: row.TradeID,
			Position: ledger.Position{
				Symbol:           row.Symbol,
				EntryPrice:       row.EntryPrice,
				Quantity:         row.Quantity,
				CapitalCommitted: row.CapitalCommitted,
				OpenedAt:         time.UnixMilli(row.OpenedAtUnix).UTC(),
			},
			ExitPrice:   row.ExitPrice,
			RealizedPnL: row.PnLUSD,
			ExitReason:  ledger.ExitReason(row.ExitReason),
			ClosedAt:    time.UnixMilli(row.ClosedAtUnix).UTC(),
		})
	}
	return out, nil
}

func (j *Journal) RecentTicks(ctx context.Context, limit int) ([]store.TickRecord, error) {
	var rows []model.TickModel
	err := j.inTx(ctx, func(uow store.UnitOfWork) error {
		var err error
		rows, err = uow.Ticks().ListRecent(ctx, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]store.TickRecord, 0, len(rows))
	for _, row := range rows {
		rec := store.TickRecord{
			Symbol:      row.Symbol,
			Mode:        row.Mode,
			CandleClose: time.UnixMilli(row.CandleCloseUnix).UTC(),
			Signal:      row.Signal,
			Confidence:  row.Confidence,
			Price:       row.Price,
			Action:      row.Action,
			Detail:      row.Detail,
			At:          time.UnixMilli(row.Timestamp).UTC(),
		}
		if len(row.Indicators) > 0 {
			_ = json.Unmarshal(row.Indicators, &rec.Indicators)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (j *Journal) inTx(ctx context.Context, fn func(store.UnitOfWork) error) error {
	uow, err := j.store.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(uow); err != nil {
		_ = uow.Rollback()
		return err
	}
	return uow.Commit()
}
