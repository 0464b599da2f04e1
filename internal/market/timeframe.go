package market

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Timeframe 描述交易周期（内部 duration + 交易所 interval）。
type Timeframe struct {
	Key      string
	Duration time.Duration
}

// Binance 现货不提供 10m K 线，因此不在支持列表中。
var supportedTimeframes = map[string]Timeframe{
	"1m":  {Key: "1m", Duration: time.Minute},
	"3m":  {Key: "3m", Duration: 3 * time.Minute},
	"5m":  {Key: "5m", Duration: 5 * time.Minute},
	"15m": {Key: "15m", Duration: 15 * time.Minute},
	"30m": {Key: "30m", Duration: 30 * time.Minute},
	"1h":  {Key: "1h", Duration: time.Hour},
	"4h":  {Key: "4h", Duration: 4 * time.Hour},
	"1d":  {Key: "1d", Duration: 24 * time.Hour},
}

// ParseTimeframe 返回标准化周期定义；不支持的周期是致命配置错误。
func ParseTimeframe(input string) (Timeframe, error) {
	key := strings.ToLower(strings.TrimSpace(input))
	tf, ok := supportedTimeframes[key]
	if !ok {
		return Timeframe{}, fmt.Errorf("unsupported timeframe %q (supported: %s)", input, strings.Join(SupportedTimeframes(), ", "))
	}
	return tf, nil
}

// SupportedTimeframes 返回所有支持的 key（按时长排序）。
func SupportedTimeframes() []string {
	keys := make([]string, 0, len(supportedTimeframes))
	for k := range supportedTimeframes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return supportedTimeframes[keys[i]].Duration < supportedTimeframes[keys[j]].Duration
	})
	return keys
}

// CandlesFor 返回覆盖 d 所需的 K 线根数（向上取整）。
func (tf Timeframe) CandlesFor(d time.Duration) int {
	if tf.Duration <= 0 || d <= 0 {
		return 0
	}
	n := d / tf.Duration
	if d%tf.Duration != 0 {
		n++
	}
	return int(n)
}
