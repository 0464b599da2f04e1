package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"spotguard/internal/gateway/exchange"
	"spotguard/internal/logger"
	"spotguard/internal/market"
	"spotguard/internal/metrics"
	"spotguard/internal/pkg/circuit"
	"spotguard/internal/pkg/convert"
	symbolpkg "spotguard/internal/pkg/symbol"
	"spotguard/internal/scheduler"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
)

// Binance 单次最多返回 1000 根现货 K 线。
const MaxKlinesPerRequest = 1000

const depthLimit = 5

// Client 基于 go-binance 现货 SDK 实现 exchange.Spot 与 market.Source。
// 所有调用经过熔断器，熔断打开时直接返回 exchange.ErrUnavailable。
type Client struct {
	cfg     Config
	api     *binance.Client
	breaker *circuit.Breaker
	metrics *metrics.Metrics
	now     func() time.Time

	stepMu sync.Mutex
	steps  map[string]float64
}

var (
	_ exchange.Spot = (*Client)(nil)
	_ market.Source = (*Client)(nil)
)

func New(cfg Config, m *metrics.Metrics) *Client {
	final := cfg.withDefaults()
	api := binance.NewClient(final.APIKey, final.SecretKey)
	api.BaseURL = final.RESTBaseURL
	api.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}

	// 参数错误、余额不足等请求级错误说明交易所可用，不计入熔断失败。
	breaker := circuit.New("binance", final.BreakerThreshold, final.BreakerCooldown,
		circuit.CountIf(func(err error) bool { return err != nil && !isRequestError(err) }),
		circuit.OnStateChange(func(name string, _, to circuit.State) { m.BreakerState(name, int(to)) }),
	)
	m.BreakerState(breaker.Name(), int(circuit.StateClosed))
	return &Client{
		cfg:     final,
		api:     api,
		breaker: breaker,
		metrics: m,
		now:     time.Now,
		steps:   make(map[string]float64),
	}
}

func (c *Client) HasCredentials() bool {
	return c.cfg.APIKey != "" && c.cfg.SecretKey != ""
}

// Candles 返回最近 limit 根已收盘 K 线（按时间升序）。
func (c *Client) Candles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	return c.CandlesBefore(ctx, symbol, interval, time.Time{}, limit)
}

// CandlesBefore 返回 endTime（含）之前的 K 线，endTime 为零值时取最新。
func (c *Client) CandlesBefore(ctx context.Context, symbol, interval string, endTime time.Time, limit int) ([]market.Candle, error) {
	tf, err := market.ParseTimeframe(interval)
	if err != nil {
		return nil, err
	}
	sym, err := binanceSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > MaxKlinesPerRequest {
		limit = MaxKlinesPerRequest
	}
	var kls []*binance.Kline
	err = c.call(ctx, "klines", func(ctx context.Context) error {
		svc := c.api.NewKlinesService().Symbol(sym).Interval(tf.Key).Limit(limit)
		if !endTime.IsZero() {
			svc = svc.EndTime(endTime.UnixMilli())
		}
		var err error
		kls, err = svc.Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      convert.ToFloat64(kl.Open),
			High:      convert.ToFloat64(kl.High),
			Low:       convert.ToFloat64(kl.Low),
			Close:     convert.ToFloat64(kl.Close),
			Volume:    convert.ToFloat64(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	return scheduler.ClosedCandles(out, tf.Duration, c.now()), nil
}

// Price 返回最新成交价，ObservedAt 取响应到达的本地时间。
func (c *Client) Price(ctx context.Context, symbol string) (exchange.PriceQuote, error) {
	sym, err := binanceSymbol(symbol)
	if err != nil {
		return exchange.PriceQuote{}, err
	}
	var prices []*binance.SymbolPrice
	err = c.call(ctx, "price", func(ctx context.Context) error {
		var err error
		prices, err = c.api.NewListPricesService().Symbol(sym).Do(ctx)
		return err
	})
	if err != nil {
		return exchange.PriceQuote{}, err
	}
	observed := c.now().UTC()
	for _, p := range prices {
		if p == nil || !strings.EqualFold(p.Symbol, sym) {
			continue
		}
		price, err := convert.ParsePositive("price", p.Price)
		if err != nil {
			return exchange.PriceQuote{}, err
		}
		return exchange.PriceQuote{Symbol: sym, Price: price, ObservedAt: observed}, nil
	}
	return exchange.PriceQuote{}, fmt.Errorf("price not available for %s", sym)
}

func (c *Client) OrderBook(ctx context.Context, symbol string) (exchange.OrderBook, error) {
	sym, err := binanceSymbol(symbol)
	if err != nil {
		return exchange.OrderBook{}, err
	}
	var res *binance.DepthResponse
	err = c.call(ctx, "depth", func(ctx context.Context) error {
		var err error
		res, err = c.api.NewDepthService().Symbol(sym).Limit(depthLimit).Do(ctx)
		return err
	})
	if err != nil {
		return exchange.OrderBook{}, err
	}
	book := exchange.OrderBook{Symbol: sym}
	for _, b := range res.Bids {
		book.Bids = append(book.Bids, exchange.Level{Price: convert.ToFloat64(b.Price), Quantity: convert.ToFloat64(b.Quantity)})
	}
	for _, a := range res.Asks {
		book.Asks = append(book.Asks, exchange.Level{Price: convert.ToFloat64(a.Price), Quantity: convert.ToFloat64(a.Quantity)})
	}
	return book, nil
}

// StepSize 读取 LOT_SIZE 过滤器并缓存；缺失时退回 0.00001。
func (c *Client) StepSize(ctx context.Context, symbol string) (float64, error) {
	sym, err := binanceSymbol(symbol)
	if err != nil {
		return 0, err
	}
	c.stepMu.Lock()
	step, ok := c.steps[sym]
	c.stepMu.Unlock()
	if ok {
		return step, nil
	}
	var info *binance.ExchangeInfo
	err = c.call(ctx, "exchange_info", func(ctx context.Context) error {
		var err error
		info, err = c.api.NewExchangeInfoService().Symbol(sym).Do(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	step = defaultStepSize
	found := false
	for i := range info.Symbols {
		s := info.Symbols[i]
		if !strings.EqualFold(s.Symbol, sym) {
			continue
		}
		found = true
		if lot := s.LotSizeFilter(); lot != nil {
			if v := convert.ToFloat64(lot.StepSize); v > 0 {
				step = v
			}
		}
	}
	if !found {
		return 0, fmt.Errorf("symbol %s not found on binance", sym)
	}
	c.stepMu.Lock()
	c.steps[sym] = step
	c.stepMu.Unlock()
	return step, nil
}

// Balance 返回指定资产余额，账户中没有该资产时返回 0。
func (c *Client) Balance(ctx context.Context, asset string) (exchange.Balance, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	var acct *binance.Account
	err := c.call(ctx, "account", func(ctx context.Context) error {
		var err error
		acct, err = c.api.NewGetAccountService().Do(ctx)
		return err
	})
	if err != nil {
		return exchange.Balance{}, err
	}
	for _, b := range acct.Balances {
		if strings.EqualFold(b.Asset, asset) {
			return exchange.Balance{Asset: asset, Free: convert.ToFloat64(b.Free), Locked: convert.ToFloat64(b.Locked)}, nil
		}
	}
	return exchange.Balance{Asset: asset}, nil
}

func (c *Client) PlaceMarketOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	sym, err := binanceSymbol(req.Symbol)
	if err != nil {
		return exchange.Order{}, fmt.Errorf("%w: %w", exchange.ErrOrderRejected, err)
	}
	side := binance.SideTypeBuy
	if req.Side == exchange.SideSell {
		side = binance.SideTypeSell
	}
	var res *binance.CreateOrderResponse
	err = c.call(ctx, "create_order", func(ctx context.Context) error {
		var err error
		res, err = c.api.NewCreateOrderService().
			Symbol(sym).
			Side(side).
			Type(binance.OrderTypeMarket).
			Quantity(decimal.NewFromFloat(req.Quantity).String()).
			NewClientOrderID(req.ClientOrderID).
			NewOrderRespType(binance.NewOrderRespTypeFULL).
			Do(ctx)
		return err
	})
	if err != nil {
		switch {
		case isDuplicateOrder(err):
			return exchange.Order{}, fmt.Errorf("binance create_order %s: %w", req.ClientOrderID, exchange.ErrDuplicateOrder)
		case errors.Is(err, circuit.ErrOpen), isOrderRejection(err):
			return exchange.Order{}, fmt.Errorf("binance create_order %s: %w: %w", req.ClientOrderID, exchange.ErrOrderRejected, err)
		}
		return exchange.Order{}, err
	}
	order := exchange.Order{
		OrderID:         res.OrderID,
		ClientOrderID:   res.ClientOrderID,
		Symbol:          res.Symbol,
		Side:            req.Side,
		Status:          string(res.Status),
		ExecutedQty:     convert.ToFloat64(res.ExecutedQuantity),
		CumulativeQuote: convert.ToFloat64(res.CummulativeQuoteQuantity),
		UpdatedAt:       time.UnixMilli(res.TransactTime).UTC(),
	}
	for _, f := range res.Fills {
		if f == nil {
			continue
		}
		order.Fills = append(order.Fills, exchange.OrderFill{
			Price:           convert.ToFloat64(f.Price),
			Quantity:        convert.ToFloat64(f.Quantity),
			Commission:      convert.ToFloat64(f.Commission),
			CommissionAsset: f.CommissionAsset,
		})
	}
	logger.Audit("order", "binance order placed", "token", req.ClientOrderID, "side", req.Side, "qty", req.Quantity, "order_id", res.OrderID, "status", res.Status)
	return order, nil
}

// GetOrder 按 client order id 查询；-2013 视为不存在。
func (c *Client) GetOrder(ctx context.Context, symbol, clientOrderID string) (exchange.Order, bool, error) {
	sym, err := binanceSymbol(symbol)
	if err != nil {
		return exchange.Order{}, false, err
	}
	var res *binance.Order
	err = c.call(ctx, "get_order", func(ctx context.Context) error {
		var err error
		res, err = c.api.NewGetOrderService().Symbol(sym).OrigClientOrderID(clientOrderID).Do(ctx)
		return err
	})
	if err != nil {
		if isOrderNotFound(err) {
			return exchange.Order{}, false, nil
		}
		return exchange.Order{}, false, err
	}
	return exchange.Order{
		OrderID:         res.OrderID,
		ClientOrderID:   res.ClientOrderID,
		Symbol:          res.Symbol,
		Side:            exchange.Side(res.Side),
		Status:          string(res.Status),
		ExecutedQty:     convert.ToFloat64(res.ExecutedQuantity),
		CumulativeQuote: convert.ToFloat64(res.CummulativeQuoteQuantity),
		UpdatedAt:       time.UnixMilli(res.UpdateTime).UTC(),
	}, true, nil
}

// Ping 检查 REST 连通性。
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", func(ctx context.Context) error {
		return c.api.NewPingService().Do(ctx)
	})
}

// SyncTime 对齐服务器时间，避免签名请求因时钟偏差被拒（-1021）。
func (c *Client) SyncTime(ctx context.Context) error {
	return c.call(ctx, "server_time", func(ctx context.Context) error {
		offset, err := c.api.NewSetServerTimeService().Do(ctx)
		if err == nil && (offset > 1000 || offset < -1000) {
			logger.Warnf("binance clock offset %dms", offset)
		}
		return err
	})
}

func (c *Client) call(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	err := c.breaker.Execute(func() error { return fn(ctx) })
	if errors.Is(err, circuit.ErrOpen) {
		err = fmt.Errorf("binance %s: %w: %w", op, exchange.ErrUnavailable, err)
		c.metrics.ObserveExchangeCall(op, 0, err)
		return err
	}
	c.metrics.ObserveExchangeCall(op, time.Since(start), err)
	if err == nil || isRequestError(err) {
		return err
	}
	return fmt.Errorf("binance %s: %w: %w", op, exchange.ErrUnavailable, err)
}

func binanceSymbol(raw string) (string, error) {
	sym := symbolpkg.Parse(raw).Binance()
	if sym == "" {
		return "", fmt.Errorf("invalid symbol %q", raw)
	}
	return sym, nil
}

func asAPIError(err error) (*common.APIError, bool) {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr, true
	}
	return nil, false
}

// isRequestError 区分交易所已处理的业务错误与网络/服务端故障。
// -10xx 是 Binance 的服务端与网络类错误，计入熔断。
func isRequestError(err error) bool {
	apiErr, ok := asAPIError(err)
	if !ok || apiErr.Code == 0 {
		return false
	}
	return !(apiErr.Code <= -1000 && apiErr.Code > -1100)
}

// isOrderRejection 只认 -11xx 及以下的请求/撮合错误（例如 -2010 余额不足）。
// -1007 等 -10xx 错误表示执行状态未知，订单可能已经成交。
func isOrderRejection(err error) bool {
	apiErr, ok := asAPIError(err)
	return ok && apiErr.Code <= -1100
}

func isOrderNotFound(err error) bool {
	apiErr, ok := asAPIError(err)
	return ok && apiErr.Code == -2013
}

func isDuplicateOrder(err error) bool {
	apiErr, ok := asAPIError(err)
	return ok && apiErr.Code == -2010 && strings.Contains(strings.ToLower(apiErr.Message), "duplicate")
}
