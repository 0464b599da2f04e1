package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"spotguard/internal/logger"
	"spotguard/internal/market"
)

// maxPageSize 是 Binance 单次 klines 请求的上限。
const maxPageSize = 1000

// HistoryFetcher 按结束时间向前拉取已收盘 K 线，返回结果按开盘时间升序。
type HistoryFetcher interface {
	CandlesBefore(ctx context.Context, symbol, interval string, end time.Time, limit int) ([]market.Candle, error)
}

// FetchHistory 从最新一根开始向前翻页，直到凑够 total 根或交易所没有更早的数据。
func FetchHistory(ctx context.Context, src HistoryFetcher, symbol, interval string, total int) (market.Candles, error) {
	if src == nil {
		return nil, fmt.Errorf("history source is required")
	}
	if total <= 0 {
		return nil, fmt.Errorf("candle limit must be > 0")
	}
	seen := make(map[int64]struct{}, total)
	out := make([]market.Candle, 0, total)
	var end time.Time
	for len(out) < total {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		want := total - len(out)
		if want > maxPageSize {
			want = maxPageSize
		}
		page, err := src.CandlesBefore(ctx, symbol, interval, end, want)
		if err != nil {
			return nil, fmt.Errorf("fetch %s %s before %s: %w", symbol, interval, end.Format(time.RFC3339), err)
		}
		added := 0
		oldest := int64(0)
		for _, c := range page {
			if oldest == 0 || c.OpenTime < oldest {
				oldest = c.OpenTime
			}
			if _, ok := seen[c.OpenTime]; ok {
				continue
			}
			seen[c.OpenTime] = struct{}{}
			out = append(out, c)
			added++
		}
		logger.Debugf("[backtest] page fetched: %d candles (%d new), total=%d", len(page), added, len(out))
		if added == 0 || len(page) < want {
			break
		}
		end = time.UnixMilli(oldest - 1).UTC()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime < out[j].OpenTime })
	if len(out) > total {
		out = out[len(out)-total:]
	}
	return out, nil
}

// Split 按比例切分样本内与样本外两段。
func Split(candles market.Candles, ratio float64) (market.Candles, market.Candles) {
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.7
	}
	cut := int(float64(len(candles)) * ratio)
	return candles[:cut], candles[cut:]
}
