package execution

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"spotguard/internal/gateway/exchange"
)

var (
	// ErrExchangeUnavailable 与交易所端口共用同一个哨兵值。
	ErrExchangeUnavailable = exchange.ErrUnavailable
	ErrOrderTimeout        = errors.New("order submission timed out")
	ErrOutcomeUnknown      = errors.New("order outcome unknown")
	ErrQuantityTooSmall    = errors.New("quantity rounds to zero at exchange step size")
	ErrOrderNotFilled      = errors.New("order exists but did not fill")
	ErrLiveDisabled        = errors.New("live order gateway not configured")
)

// SpreadTooWideError 盘口价差超过上限；盘口获取失败时 SpreadPct 记为 999。
type SpreadTooWideError struct {
	SpreadPct float64
	MaxPct    float64
	Cause     error
}

func (e *SpreadTooWideError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("spread check failed (%v), order blocked", e.Cause)
	}
	return fmt.Sprintf("spread too wide (%.4f%% > %.4f%%), order blocked", e.SpreadPct, e.MaxPct)
}

func (e *SpreadTooWideError) Unwrap() error { return e.Cause }

type StalePriceError struct {
	Age    time.Duration
	MaxAge time.Duration
}

func (e *StalePriceError) Error() string {
	return fmt.Sprintf("stale price (%.1fs > %.0fs), order blocked", e.Age.Seconds(), e.MaxAge.Seconds())
}

// DuplicateOrderError 交易所以重复 client order id 拒绝了提交，说明该 token 的订单已在交易所。
type DuplicateOrderError struct {
	Token   string
	Pending PendingOrder
}

func (e *DuplicateOrderError) Error() string {
	return fmt.Sprintf("duplicate order detected for token %s", e.Token)
}

func (e *DuplicateOrderError) Unwrap() error { return exchange.ErrDuplicateOrder }

// OrderOutcomeUnknownError 下单请求已发出但结果未知（超时、连接中断、取消、-1007 等），
// 订单可能已被交易所接收。调用方只能通过 Reconcile 按 Pending.Token 查询，不得重新提交。
type OrderOutcomeUnknownError struct {
	Pending PendingOrder
	Cause   error
}

func (e *OrderOutcomeUnknownError) Error() string {
	return fmt.Sprintf("%s order %s outcome unknown, investigate before retrying: %v", e.Pending.Side, e.Pending.Token, e.Cause)
}

func (e *OrderOutcomeUnknownError) Unwrap() []error {
	if isTimeout(e.Cause) {
		return []error{ErrOutcomeUnknown, ErrOrderTimeout, e.Cause}
	}
	return []error{ErrOutcomeUnknown, e.Cause}
}

// OrderNotFilledError 订单存在但成交量为 0。
type OrderNotFilledError struct {
	Token  string
	Status string
}

func (e *OrderNotFilledError) Error() string {
	return fmt.Sprintf("%v: token=%s status=%s", ErrOrderNotFilled, e.Token, e.Status)
}

func (e *OrderNotFilledError) Unwrap() error { return ErrOrderNotFilled }

// Terminal 订单已终结且未成交，不会再产生成交。
func (e *OrderNotFilledError) Terminal() bool {
	switch strings.ToUpper(e.Status) {
	case "CANCELED", "REJECTED", "EXPIRED", "EXPIRED_IN_MATCH":
		return true
	}
	return false
}

// IsBlocking 判断是否属于预期内的拦截（价差/陈旧价格），下个 tick 会重新评估。
func IsBlocking(err error) bool {
	var spread *SpreadTooWideError
	var stale *StalePriceError
	return errors.As(err, &spread) || errors.As(err, &stale)
}

// IsOutcomeUnknown 判断是否为结果未知的下单。
func IsOutcomeUnknown(err error) (*OrderOutcomeUnknownError, bool) {
	var unknown *OrderOutcomeUnknownError
	if errors.As(err, &unknown) {
		return unknown, true
	}
	return nil, false
}
