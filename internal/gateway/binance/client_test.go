package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"spotguard/internal/gateway/exchange"
	"spotguard/internal/pkg/circuit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		RESTBaseURL:      srv.URL,
		HTTPTimeout:      2 * time.Second,
		APIKey:           "key",
		SecretKey:        "secret",
		BreakerThreshold: 2,
		BreakerCooldown:  time.Minute,
	}, nil)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprint(w, body)
}

func TestClient_PriceParsesQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		writeJSON(w, http.StatusOK, `{"symbol":"ETHUSDT","price":"2001.55"}`)
	})
	fixed := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	q, err := c.Price(context.Background(), "ETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", q.Symbol)
	assert.InDelta(t, 2001.55, q.Price, 1e-9)
	assert.Equal(t, fixed, q.ObservedAt)
}

func TestClient_OrderBook(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/depth", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"lastUpdateId":1,"bids":[["2000.00","1.5"]],"asks":[["2000.50","2.0"]]}`)
	})
	book, err := c.OrderBook(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	bid, ok := book.BestBid()
	require.True(t, ok)
	ask, ok := book.BestAsk()
	require.True(t, ok)
	assert.Equal(t, 2000.0, bid)
	assert.Equal(t, 2000.5, ask)
}

func TestClient_StepSizeCached(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusOK, `{"symbols":[{"symbol":"ETHUSDT","filters":[{"filterType":"LOT_SIZE","minQty":"0.0001","maxQty":"9000","stepSize":"0.0001"}]}]}`)
	})
	for i := 0; i < 2; i++ {
		step, err := c.StepSize(context.Background(), "ETH/USDT")
		require.NoError(t, err)
		assert.Equal(t, 0.0001, step)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_CandlesKeepsClosedOnly(t *testing.T) {
	open := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		assert.Equal(t, "1700000000000", r.URL.Query().Get("endTime"))
		hour := time.Hour.Milliseconds()
		writeJSON(w, http.StatusOK, fmt.Sprintf(`[
			[%d,"10","12","9","11","100",%d,"1100",5,"50","550","0"],
			[%d,"11","13","10","12","80",%d,"960",4,"40","480","0"]
		]`, open, open+hour-1, open+hour, open+2*hour-1))
	})
	candles, err := c.CandlesBefore(context.Background(), "ETH/USDT", "1h", time.UnixMilli(1700000000000), 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 11.0, candles[0].Close)
	assert.Equal(t, 13.0, candles[1].High)
	assert.Equal(t, int64(4), candles[1].Trades)
}

func TestClient_CandlesRejectsUnsupportedInterval(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s", r.URL.Path)
	})
	_, err := c.Candles(context.Background(), "ETH/USDT", "10m", 50)
	require.Error(t, err)
}

func TestClient_GetOrderNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bot_buy_0123456789abcdef", r.URL.Query().Get("origClientOrderId"))
		writeJSON(w, http.StatusBadRequest, `{"code":-2013,"msg":"Order does not exist."}`)
	})
	_, found, err := c.GetOrder(context.Background(), "ETH/USDT", "bot_buy_0123456789abcdef")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, circuit.StateClosed, c.breaker.State())
}

func TestClient_PlaceMarketOrderFull(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/order", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "MARKET", r.Form.Get("type"))
		assert.Equal(t, "0.0123", r.Form.Get("quantity"))
		assert.Equal(t, "bot_buy_0123456789abcdef", r.Form.Get("newClientOrderId"))
		writeJSON(w, http.StatusOK, `{"symbol":"ETHUSDT","orderId":42,"clientOrderId":"bot_buy_0123456789abcdef",
			"transactTime":1780315205000,"executedQty":"0.0123","cummulativeQuoteQty":"24.6","status":"FILLED",
			"fills":[{"price":"2000","qty":"0.0123","commission":"0.0000123","commissionAsset":"ETH"}]}`)
	})
	order, err := c.PlaceMarketOrder(context.Background(), exchange.OrderRequest{
		Symbol: "ETH/USDT", Side: exchange.SideBuy, Quantity: 0.0123, ClientOrderID: "bot_buy_0123456789abcdef",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), order.OrderID)
	assert.Equal(t, "FILLED", order.Status)
	price, ok := order.AvgFillPrice()
	require.True(t, ok)
	assert.InDelta(t, 2000, price, 1e-9)
}

func TestClient_DuplicateOrderMapped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"code":-2010,"msg":"Duplicate order sent."}`)
	})
	_, err := c.PlaceMarketOrder(context.Background(), exchange.OrderRequest{
		Symbol: "ETH/USDT", Side: exchange.SideSell, Quantity: 0.5, ClientOrderID: "bot_sell_0123456789abcdef",
	})
	require.ErrorIs(t, err, exchange.ErrDuplicateOrder)
	assert.NotErrorIs(t, err, exchange.ErrUnavailable)
}

func TestClient_PlaceOrderClassifiesFailures(t *testing.T) {
	req := exchange.OrderRequest{Symbol: "ETHUSDT", Side: exchange.SideBuy, Quantity: 0.0075, ClientOrderID: "bot_buy_0123456789abcdef"}

	t.Run("send status unknown is not a rejection", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusGatewayTimeout, `{"code":-1007,"msg":"Timeout waiting for response from backend server. Send status unknown; execution status unknown."}`)
		})
		_, err := c.PlaceMarketOrder(context.Background(), req)
		require.Error(t, err)
		assert.NotErrorIs(t, err, exchange.ErrOrderRejected)
		assert.NotErrorIs(t, err, exchange.ErrDuplicateOrder)
	})

	t.Run("insufficient balance is a rejection", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, `{"code":-2010,"msg":"Account has insufficient balance for requested action."}`)
		})
		_, err := c.PlaceMarketOrder(context.Background(), req)
		require.ErrorIs(t, err, exchange.ErrOrderRejected)
		assert.NotErrorIs(t, err, exchange.ErrDuplicateOrder)
	})

	t.Run("open breaker never sends the order", func(t *testing.T) {
		var orders int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/v3/order" {
				atomic.AddInt32(&orders, 1)
			}
			writeJSON(w, http.StatusServiceUnavailable, `{"code":-1001,"msg":"Internal error; unable to process your request."}`)
		})
		for i := 0; i < 2; i++ {
			_ = c.Ping(context.Background())
		}
		require.Equal(t, circuit.StateOpen, c.breaker.State())

		_, err := c.PlaceMarketOrder(context.Background(), req)
		require.ErrorIs(t, err, exchange.ErrOrderRejected)
		assert.Equal(t, int32(0), atomic.LoadInt32(&orders))
	})
}

func TestClient_ServerErrorsOpenBreaker(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusServiceUnavailable, `{"code":-1001,"msg":"Internal error; unable to process your request."}`)
	})
	for i := 0; i < 2; i++ {
		err := c.Ping(context.Background())
		require.ErrorIs(t, err, exchange.ErrUnavailable)
	}
	assert.Equal(t, circuit.StateOpen, c.breaker.State())

	err := c.Ping(context.Background())
	require.True(t, errors.Is(err, exchange.ErrUnavailable))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_BalanceMissingAssetIsZero(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/account", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("signature"))
		writeJSON(w, http.StatusOK, `{"balances":[{"asset":"USDT","free":"150.25","locked":"0"}]}`)
	})
	usdt, err := c.Balance(context.Background(), "usdt")
	require.NoError(t, err)
	assert.InDelta(t, 150.25, usdt.Free, 1e-9)

	eth, err := c.Balance(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Zero(t, eth.Free)
}
