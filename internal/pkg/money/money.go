// Package money 统一货币/数量的十进制取整，避免 float 直接 Round 带来的边界误差。
package money

import "github.com/shopspring/decimal"

// Round 四舍五入到 places 位小数。
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Round2 货币精度（USDT 两位小数）。
func Round2(v float64) float64 {
	return Round(v, 2)
}

// Round4 PnL/费用精度。
func Round4(v float64) float64 {
	return Round(v, 4)
}
