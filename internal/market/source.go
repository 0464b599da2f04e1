package market

import "context"

// Source 提供已收盘的 K 线序列（按时间升序）。
type Source interface {
	Candles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}
