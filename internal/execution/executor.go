// Package execution 实现下单协议：价差与价格时效检查、按步长截断数量、
// 费用估算，以及基于 client order id 的实盘幂等提交。
package execution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"spotguard/internal/config"
	"spotguard/internal/gateway/exchange"
	"spotguard/internal/logger"
	"spotguard/internal/pkg/money"
	"spotguard/internal/pkg/trading"

	"github.com/google/uuid"
)

type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

const (
	buyTokenPrefix  = "bot_buy_"
	sellTokenPrefix = "bot_sell_"
	spreadOnFailure = 999.0
)

type Config struct {
	CapitalLimitUSDT float64
	MaxSpreadPct     float64
	StalePriceAfter  time.Duration
	FeePct           float64
	SlippagePct      float64
	OrderTimeout     time.Duration
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		CapitalLimitUSDT: cfg.Trading.CapitalLimitUSDT,
		MaxSpreadPct:     cfg.Execution.MaxSpreadPct,
		StalePriceAfter:  cfg.Execution.StalePriceAfter(),
		FeePct:           cfg.Execution.FeePct,
		SlippagePct:      cfg.Execution.SlippageEstimatePct,
		OrderTimeout:     cfg.Execution.OrderTimeout(),
	}
}

type BuyRequest struct {
	Symbol     string
	USDTAmount float64
	Live       bool
	// ClientOrderID 为空时生成新 token；重放同一 token 只会查到已有订单。
	ClientOrderID string
}

type SellRequest struct {
	Symbol        string
	Quantity      float64
	EntryPrice    float64
	Live          bool
	ClientOrderID string
}

// Fill 是一次执行的结果，PnL 仅卖出时有意义。
type Fill struct {
	Mode          Mode          `json:"mode"`
	Symbol        string        `json:"symbol"`
	Side          exchange.Side `json:"side"`
	Quantity      float64       `json:"quantity"`
	Price         float64       `json:"price"`
	Notional      float64       `json:"notional"`
	EstimatedCost float64       `json:"estimated_cost"`
	PnL           float64       `json:"pnl"`
	ClientOrderID string        `json:"client_order_id,omitempty"`
	OrderID       int64         `json:"order_id,omitempty"`
	Existing      bool          `json:"existing,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// PendingOrder 描述一笔结果未知、等待核对的实盘订单。
type PendingOrder struct {
	Symbol        string        `json:"symbol"`
	Side          exchange.Side `json:"side"`
	Token         string        `json:"token"`
	Quantity      float64       `json:"quantity"`
	ObservedPrice float64       `json:"observed_price"`
	EntryPrice    float64       `json:"entry_price,omitempty"`
	EstimatedCost float64       `json:"estimated_cost"`
	Notional      float64       `json:"notional"`
	SubmittedAt   time.Time     `json:"submitted_at"`
}

type Option func(*Executor)

func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

func WithTokenSource(fn func(prefix string) string) Option {
	return func(e *Executor) {
		if fn != nil {
			e.newToken = fn
		}
	}
}

type Executor struct {
	cfg      Config
	market   exchange.MarketData
	orders   exchange.OrderGateway
	now      func() time.Time
	newToken func(prefix string) string
}

// NewExecutor orders 可以为 nil（纯模拟盘）。
func NewExecutor(cfg Config, market exchange.MarketData, orders exchange.OrderGateway, opts ...Option) *Executor {
	e := &Executor{cfg: cfg, market: market, orders: orders, now: time.Now, newToken: newToken}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func newToken(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func (e *Executor) ExecuteBuy(ctx context.Context, req BuyRequest) (Fill, error) {
	usdt := math.Min(req.USDTAmount, e.cfg.CapitalLimitUSDT)
	if usdt <= 0 {
		return Fill{}, ErrQuantityTooSmall
	}
	if err := e.checkSpread(ctx, req.Symbol); err != nil {
		return Fill{}, err
	}
	quote, err := e.freshPrice(ctx, req.Symbol)
	if err != nil {
		return Fill{}, err
	}
	qty, err := e.roundQuantity(ctx, req.Symbol, usdt/quote.Price)
	if err != nil {
		return Fill{}, err
	}
	cost := e.estimateCost(usdt)

	if !req.Live {
		fill := Fill{
			Mode:          ModePaper,
			Symbol:        req.Symbol,
			Side:          exchange.SideBuy,
			Quantity:      qty,
			Price:         quote.Price,
			Notional:      money.Round4(qty * quote.Price),
			EstimatedCost: cost,
			Timestamp:     e.now().UTC(),
		}
		logger.Infof("[PAPER] BUY %.8f %s @ $%.2f | USDT: $%.2f | est. cost: $%.4f", qty, req.Symbol, quote.Price, usdt, cost)
		return fill, nil
	}

	pending := PendingOrder{
		Symbol:        req.Symbol,
		Side:          exchange.SideBuy,
		Token:         e.tokenFor(req.ClientOrderID, buyTokenPrefix),
		Quantity:      qty,
		ObservedPrice: quote.Price,
		EstimatedCost: cost,
		Notional:      usdt,
	}
	order, existing, err := e.submit(ctx, pending)
	if err != nil {
		return Fill{}, err
	}
	fill, err := e.fillFromOrder(pending, order, existing)
	if err != nil {
		return Fill{}, err
	}
	logger.Infof("[LIVE] BUY executed | %.8f %s @ $%.2f | order=%d token=%s existing=%v",
		fill.Quantity, fill.Symbol, fill.Price, fill.OrderID, fill.ClientOrderID, existing)
	return fill, nil
}

func (e *Executor) ExecuteSell(ctx context.Context, req SellRequest) (Fill, error) {
	if err := e.checkSpread(ctx, req.Symbol); err != nil {
		return Fill{}, err
	}
	quote, err := e.freshPrice(ctx, req.Symbol)
	if err != nil {
		return Fill{}, err
	}
	qty, err := e.roundQuantity(ctx, req.Symbol, req.Quantity)
	if err != nil {
		return Fill{}, err
	}
	proceeds := qty * quote.Price
	cost := e.estimateCost(proceeds)

	if !req.Live {
		pnl := money.Round4((quote.Price-req.EntryPrice)*qty - cost)
		fill := Fill{
			Mode:          ModePaper,
			Symbol:        req.Symbol,
			Side:          exchange.SideSell,
			Quantity:      qty,
			Price:         quote.Price,
			Notional:      money.Round4(proceeds),
			EstimatedCost: cost,
			PnL:           pnl,
			Timestamp:     e.now().UTC(),
		}
		logger.Infof("[PAPER] SELL %.8f %s @ $%.2f | PnL: $%+.4f", qty, req.Symbol, quote.Price, pnl)
		return fill, nil
	}

	pending := PendingOrder{
		Symbol:        req.Symbol,
		Side:          exchange.SideSell,
		Token:         e.tokenFor(req.ClientOrderID, sellTokenPrefix),
		Quantity:      qty,
		ObservedPrice: quote.Price,
		EntryPrice:    req.EntryPrice,
		EstimatedCost: cost,
		Notional:      proceeds,
	}
	order, existing, err := e.submit(ctx, pending)
	if err != nil {
		return Fill{}, err
	}
	fill, err := e.fillFromOrder(pending, order, existing)
	if err != nil {
		return Fill{}, err
	}
	logger.Infof("[LIVE] SELL executed | %.8f %s @ $%.2f | PnL: $%+.4f | order=%d existing=%v",
		fill.Quantity, fill.Symbol, fill.Price, fill.PnL, fill.OrderID, existing)
	return fill, nil
}

// Reconcile 只按 token 查询结果未知的订单，从不重新提交。
// 找到且已成交时返回 (fill, true, nil)；交易所没有该订单时返回 (零值, false, nil)。
func (e *Executor) Reconcile(ctx context.Context, pending PendingOrder) (Fill, bool, error) {
	if e.orders == nil {
		return Fill{}, false, ErrLiveDisabled
	}
	lookupCtx, cancel := e.withOrderTimeout(ctx)
	defer cancel()
	order, found, err := e.orders.GetOrder(lookupCtx, pending.Symbol, pending.Token)
	if err != nil {
		return Fill{}, false, fmt.Errorf("reconcile order %s: %w", pending.Token, err)
	}
	if !found {
		return Fill{}, false, nil
	}
	fill, err := e.fillFromOrder(pending, order, true)
	if err != nil {
		return Fill{}, true, err
	}
	return fill, true, nil
}

func (e *Executor) tokenFor(requested, prefix string) string {
	if token := strings.TrimSpace(requested); token != "" {
		return token
	}
	return e.newToken(prefix)
}

// submit 先查询再提交；查询失败时不提交。
func (e *Executor) submit(ctx context.Context, pending PendingOrder) (exchange.Order, bool, error) {
	if e.orders == nil {
		return exchange.Order{}, false, ErrLiveDisabled
	}
	lookupCtx, cancel := e.withOrderTimeout(ctx)
	existing, found, err := e.orders.GetOrder(lookupCtx, pending.Symbol, pending.Token)
	cancel()
	if err != nil {
		return exchange.Order{}, false, fmt.Errorf("pre-submit lookup %s: %w", pending.Token, err)
	}
	if found {
		logger.Warnf("order %s already exists, skipping submission to avoid duplicate", pending.Token)
		return existing, true, nil
	}

	placeCtx, cancel := e.withOrderTimeout(ctx)
	defer cancel()
	pending.SubmittedAt = e.now().UTC()
	order, err := e.orders.PlaceMarketOrder(placeCtx, exchange.OrderRequest{
		Symbol:        pending.Symbol,
		Side:          pending.Side,
		Quantity:      pending.Quantity,
		ClientOrderID: pending.Token,
	})
	if err == nil {
		return order, false, nil
	}
	// 查询已确认 token 未被使用，此后只有明确拒绝才能视为未下单。
	switch {
	case errors.Is(err, exchange.ErrDuplicateOrder):
		return exchange.Order{}, false, &DuplicateOrderError{Token: pending.Token, Pending: pending}
	case errors.Is(err, exchange.ErrOrderRejected):
		return exchange.Order{}, false, fmt.Errorf("place %s order %s: %w", pending.Side, pending.Token, err)
	default:
		return exchange.Order{}, false, &OrderOutcomeUnknownError{Pending: pending, Cause: err}
	}
}

func (e *Executor) fillFromOrder(pending PendingOrder, order exchange.Order, existing bool) (Fill, error) {
	qty := order.ExecutedQty
	if qty <= 0 {
		switch strings.ToUpper(order.Status) {
		case "", "FILLED":
			qty = pending.Quantity
		default:
			return Fill{}, &OrderNotFilledError{Token: pending.Token, Status: order.Status}
		}
	}
	price, ok := order.AvgFillPrice()
	if !ok {
		price = pending.ObservedPrice
	}
	token := order.ClientOrderID
	if token == "" {
		token = pending.Token
	}
	fill := Fill{
		Mode:          ModeLive,
		Symbol:        pending.Symbol,
		Side:          pending.Side,
		Quantity:      qty,
		Price:         price,
		Notional:      money.Round4(qty * price),
		EstimatedCost: pending.EstimatedCost,
		ClientOrderID: token,
		OrderID:       order.OrderID,
		Existing:      existing,
		Timestamp:     e.now().UTC(),
	}
	if pending.Side == exchange.SideSell {
		fill.PnL = money.Round4((price-pending.EntryPrice)*qty - pending.EstimatedCost)
	}
	return fill, nil
}

func (e *Executor) checkSpread(ctx context.Context, symbol string) error {
	book, err := e.market.OrderBook(ctx, symbol)
	if err != nil {
		logger.Errorf("spread check failed: %v", err)
		return &SpreadTooWideError{SpreadPct: spreadOnFailure, MaxPct: e.cfg.MaxSpreadPct, Cause: err}
	}
	bid, okBid := book.BestBid()
	ask, okAsk := book.BestAsk()
	if !okBid || !okAsk {
		return &SpreadTooWideError{SpreadPct: spreadOnFailure, MaxPct: e.cfg.MaxSpreadPct, Cause: fmt.Errorf("empty order book for %s", symbol)}
	}
	spread := money.Round4((ask - bid) / ((ask + bid) / 2) * 100)
	if spread > e.cfg.MaxSpreadPct {
		return &SpreadTooWideError{SpreadPct: spread, MaxPct: e.cfg.MaxSpreadPct}
	}
	return nil
}

func (e *Executor) freshPrice(ctx context.Context, symbol string) (exchange.PriceQuote, error) {
	quote, err := e.market.Price(ctx, symbol)
	if err != nil {
		return exchange.PriceQuote{}, fmt.Errorf("fetch price %s: %w", symbol, err)
	}
	if quote.Price <= 0 {
		return exchange.PriceQuote{}, fmt.Errorf("invalid price %.8f for %s", quote.Price, symbol)
	}
	if err := CheckFreshness(quote, e.now(), e.cfg.StalePriceAfter); err != nil {
		return exchange.PriceQuote{}, err
	}
	return quote, nil
}

// CheckFreshness 价格观测时间距 now 超过 maxAge 即视为陈旧。
func CheckFreshness(quote exchange.PriceQuote, now time.Time, maxAge time.Duration) error {
	age := now.Sub(quote.ObservedAt)
	if maxAge > 0 && age > maxAge {
		return &StalePriceError{Age: age, MaxAge: maxAge}
	}
	return nil
}

func (e *Executor) roundQuantity(ctx context.Context, symbol string, raw float64) (float64, error) {
	step, err := e.market.StepSize(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("fetch step size %s: %w", symbol, err)
	}
	qty := trading.FloorToStep(raw, step)
	if qty <= 0 {
		return 0, fmt.Errorf("%w: raw=%.10f step=%g", ErrQuantityTooSmall, raw, step)
	}
	return qty, nil
}

// estimateCost 双边手续费加一次滑点，仅用于展示和 PnL 估算。
func (e *Executor) estimateCost(notional float64) float64 {
	fee := notional * (e.cfg.FeePct / 100) * 2
	slippage := notional * (e.cfg.SlippagePct / 100)
	return money.Round4(fee + slippage)
}

func (e *Executor) withOrderTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.OrderTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.OrderTimeout)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrOrderTimeout) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
