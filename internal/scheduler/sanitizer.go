package scheduler

import (
	"time"

	"spotguard/internal/market"
)

// closeGrace 收盘后仍视为未定稿的时长。
const closeGrace = 10 * time.Second

// ClosedCandles 去掉尾部尚未收盘的 K 线（交易所返回的最后一根通常是进行中的）。
// 收盘时间按 OpenTime + interval 计算，收盘不足 closeGrace 的也会被去掉。
func ClosedCandles(candles []market.Candle, interval time.Duration, now time.Time) []market.Candle {
	if interval <= 0 {
		return candles
	}
	cutoff := now.Add(-closeGrace).UnixMilli()
	n := len(candles)
	for n > 0 {
		last := candles[n-1]
		if last.OpenTime <= 0 || last.OpenTime+interval.Milliseconds() <= cutoff {
			break
		}
		n--
	}
	return candles[:n]
}
