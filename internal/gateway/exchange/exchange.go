// Package exchange 定义现货交易所端口：行情、下单与账户查询。
// 具体实现见 gateway/binance，执行层与编排器只依赖这里的接口。
package exchange

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable 交易所不可达或熔断打开。
	ErrUnavailable = errors.New("exchange unavailable")
	// ErrDuplicateOrder 交易所拒绝了重复的 client order id。
	ErrDuplicateOrder = errors.New("duplicate client order id")
	// ErrOrderRejected 订单确定未被交易所创建（未发出或被明确拒绝），可以安全地换 token 重试。
	// PlaceMarketOrder 的其他错误都意味着订单可能已存在。
	ErrOrderRejected = errors.New("order rejected by exchange")
)

type MarketData interface {
	OrderBook(ctx context.Context, symbol string) (OrderBook, error)

	Price(ctx context.Context, symbol string) (PriceQuote, error)

	StepSize(ctx context.Context, symbol string) (float64, error)
}

type OrderGateway interface {
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (Order, error)

	// GetOrder 按 client order id 查询，不存在时返回 found=false 且 err 为 nil。
	GetOrder(ctx context.Context, symbol, clientOrderID string) (Order, bool, error)
}

type AccountReader interface {
	Balance(ctx context.Context, asset string) (Balance, error)
}

// Spot 是完整的现货交易所能力集合。
type Spot interface {
	MarketData
	OrderGateway
	AccountReader
}
