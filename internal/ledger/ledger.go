// Package ledger 维护唯一持仓与已平仓交易历史。
// 主记录是原子写入的 JSON 文件；Journal 是尽力而为的副本，失败只记日志。
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"spotguard/internal/logger"

	"github.com/oklog/ulid/v2"
)

var ErrPositionExists = errors.New("position already open")

// Journal 是交易记录的二级存储。
type Journal interface {
	RecordTrade(ctx context.Context, rec TradeRecord) error
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func WithJournal(j Journal) Option {
	return func(l *Ledger) { l.journal = j }
}

type Ledger struct {
	mu      sync.RWMutex
	store   Store
	journal Journal
	now     func() time.Time
	snap    Snapshot
}

// New 从 store 恢复账本，记录损坏时返回错误。
func New(store Store, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	l := &Ledger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	snap, found, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load portfolio state: %w", err)
	}
	if found {
		l.snap = snap
	}
	if l.snap.Position != nil {
		p := l.snap.Position
		logger.Infof("restored open position: %.8f %s @ %.2f opened %s", p.Quantity, p.Symbol, p.EntryPrice, p.OpenedAt.Format(time.RFC3339))
	}
	return l, nil
}

func (l *Ledger) HasPosition() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap.Position != nil
}

func (l *Ledger) Position() (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.snap.Position == nil {
		return Position{}, false
	}
	return *l.snap.Position, true
}

// OpenCount 当前持仓数量（0 或 1）。
func (l *Ledger) OpenCount() int {
	if l.HasPosition() {
		return 1
	}
	return 0
}

// Open 记录新持仓，已有持仓时返回 ErrPositionExists。
func (l *Ledger) Open(symbol string, price, qty, capital float64) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.snap.Position != nil {
		return Position{}, ErrPositionExists
	}
	pos := Position{
		Symbol:           symbol,
		EntryPrice:       price,
		Quantity:         qty,
		CapitalCommitted: capital,
		OpenedAt:         l.now().UTC(),
	}
	next := l.snap.clone()
	next.Position = &pos
	if err := l.store.Save(next); err != nil {
		return Position{}, fmt.Errorf("persist portfolio state: %w", err)
	}
	l.snap = next
	logger.Infof("position opened: %.8f %s @ $%.2f", qty, symbol, price)
	return pos, nil
}

// Close 平掉当前持仓；没有持仓时返回 (零值, false, nil)。
func (l *Ledger) Close(ctx context.Context, exitPrice, pnl float64, reason ExitReason) (TradeRecord, bool, error) {
	l.mu.Lock()
	if l.snap.Position == nil {
		l.mu.Unlock()
		return TradeRecord{}, false, nil
	}
	closedAt := l.now().UTC()
	rec := TradeRecord{
		ID:          ulid.MustNew(ulid.Timestamp(closedAt), ulid.DefaultEntropy()).String(),
		Position:    *l.snap.Position,
		ExitPrice:   exitPrice,
		RealizedPnL: pnl,
		ExitReason:  reason,
		ClosedAt:    closedAt,
	}
	next := l.snap.clone()
	next.Position = nil
	next.TradeHistory = append(next.TradeHistory, rec)
	if err := l.store.Save(next); err != nil {
		l.mu.Unlock()
		return TradeRecord{}, false, fmt.Errorf("persist portfolio state: %w", err)
	}
	l.snap = next
	l.mu.Unlock()

	logger.Infof("position closed: pnl=$%+.4f reason=%s", pnl, reason)
	l.journalTrade(ctx, rec)
	return rec, true, nil
}

func (l *Ledger) journalTrade(ctx context.Context, rec TradeRecord) {
	if l.journal == nil {
		return
	}
	if err := l.journal.RecordTrade(ctx, rec); err != nil {
		logger.Warnf("journal trade %s failed: %v", rec.ID, err)
	}
}

// History 返回交易历史副本。
func (l *Ledger) History() []TradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]TradeRecord(nil), l.snap.TradeHistory...)
}

func (l *Ledger) Summary() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Summarize(l.snap.TradeHistory)
}
