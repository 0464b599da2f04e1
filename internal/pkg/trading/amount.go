// Package trading 提供与交易所精度相关的数量计算。
package trading

import (
	"math"

	"github.com/shopspring/decimal"
)

// StepPrecision 返回步长对应的小数位数，例如 0.0001 -> 4。
func StepPrecision(step float64) int32 {
	if step <= 0 || step >= 1 {
		return 0
	}
	return int32(math.Round(-math.Log10(step)))
}

// FloorToStep 把数量向下截断到交易所步长，绝不向上取整。
func FloorToStep(qty, step float64) float64 {
	if qty <= 0 {
		return 0
	}
	if step <= 0 {
		return qty
	}
	q := decimal.NewFromFloat(qty)
	s := decimal.NewFromFloat(step)
	floored := q.Div(s).Floor().Mul(s)
	return floored.Truncate(StepPrecision(step)).InexactFloat64()
}
