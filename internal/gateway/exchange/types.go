package exchange

import "time"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type Level struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook 只保留前几档。
type OrderBook struct {
	Symbol string  `json:"symbol"`
	Bids   []Level `json:"bids"`
	Asks   []Level `json:"asks"`
}

func (b OrderBook) BestBid() (float64, bool) {
	if len(b.Bids) == 0 || b.Bids[0].Price <= 0 {
		return 0, false
	}
	return b.Bids[0].Price, true
}

func (b OrderBook) BestAsk() (float64, bool) {
	if len(b.Asks) == 0 || b.Asks[0].Price <= 0 {
		return 0, false
	}
	return b.Asks[0].Price, true
}

// PriceQuote 最新成交价及本地观测时间。
type PriceQuote struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}

type Balance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

type OrderRequest struct {
	Symbol        string
	Side          Side
	Quantity      float64
	ClientOrderID string
}

type OrderFill struct {
	Price           float64 `json:"price"`
	Quantity        float64 `json:"quantity"`
	Commission      float64 `json:"commission"`
	CommissionAsset string  `json:"commission_asset"`
}

type Order struct {
	OrderID         int64       `json:"order_id"`
	ClientOrderID   string      `json:"client_order_id"`
	Symbol          string      `json:"symbol"`
	Side            Side        `json:"side"`
	Status          string      `json:"status"`
	ExecutedQty     float64     `json:"executed_qty"`
	CumulativeQuote float64     `json:"cumulative_quote"`
	Fills           []OrderFill `json:"fills,omitempty"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// AvgFillPrice 优先按成交明细加权，其次用累计成交额除以成交量。
func (o Order) AvgFillPrice() (float64, bool) {
	var qty, notional float64
	for _, f := range o.Fills {
		qty += f.Quantity
		notional += f.Price * f.Quantity
	}
	if qty > 0 {
		return notional / qty, true
	}
	if o.ExecutedQty > 0 && o.CumulativeQuote > 0 {
		return o.CumulativeQuote / o.ExecutedQty, true
	}
	return 0, false
}
