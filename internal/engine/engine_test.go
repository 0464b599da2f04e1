package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"spotguard/internal/execution"
	"spotguard/internal/gateway/exchange"
	"spotguard/internal/gateway/notifier"
	"spotguard/internal/ledger"
	"spotguard/internal/market"
	"spotguard/internal/risk"
	"spotguard/internal/signal"
	"spotguard/internal/store"

	"github.com/adshao/go-binance/v2/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testToken = "bot_buy_0123456789abcdef"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type flagSwitch struct{ on atomic.Bool }

func (f *flagSwitch) Active() bool { return f.on.Load() }

type fakeSource struct {
	mu      sync.Mutex
	candles []market.Candle
	err     error
}

func (f *fakeSource) Candles(context.Context, string, string, int) ([]market.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.candles, f.err
}

// fakeMarket 的价格观测时间总是当前时钟，因此不会陈旧。
type fakeMarket struct {
	clock *fakeClock
	mu    sync.Mutex
	price float64
	bid   float64
	ask   float64
}

func (m *fakeMarket) setPrice(p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.price, m.bid, m.ask = p, p-0.1, p+0.1
}

func (m *fakeMarket) OrderBook(context.Context, string) (exchange.OrderBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return exchange.OrderBook{Bids: []exchange.Level{{Price: m.bid, Quantity: 1}}, Asks: []exchange.Level{{Price: m.ask, Quantity: 1}}}, nil
}

func (m *fakeMarket) Price(_ context.Context, sym string) (exchange.PriceQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return exchange.PriceQuote{Symbol: sym, Price: m.price, ObservedAt: m.clock.Now()}, nil
}

func (m *fakeMarket) StepSize(context.Context, string) (float64, error) { return 0.0001, nil }

type stubAnalyzer struct {
	mu    sync.Mutex
	res   signal.Result
	calls int
}

func (a *stubAnalyzer) set(sig signal.Signal, conf float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.res = signal.Result{Signal: sig, Confidence: conf, Reason: "stub", Indicators: signal.Indicators{Price: 2000}}
}

func (a *stubAnalyzer) Analyze(market.Candles) signal.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return a.res
}

type MockOrders struct{ mock.Mock }

func (m *MockOrders) PlaceMarketOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(exchange.Order), args.Error(1)
}

func (m *MockOrders) GetOrder(ctx context.Context, symbol, token string) (exchange.Order, bool, error) {
	args := m.Called(ctx, symbol, token)
	return args.Get(0).(exchange.Order), args.Bool(1), args.Error(2)
}

type MockAccount struct{ mock.Mock }

func (m *MockAccount) Balance(ctx context.Context, asset string) (exchange.Balance, error) {
	args := m.Called(ctx, asset)
	return args.Get(0).(exchange.Balance), args.Error(1)
}

type recordingJournal struct {
	mu    sync.Mutex
	ticks []store.TickRecord
}

func (j *recordingJournal) RecordTick(_ context.Context, rec store.TickRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ticks = append(j.ticks, rec)
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) SendText(text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
	return nil
}

func (n *recordingNotifier) joined() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return strings.Join(n.msgs, "\n---\n")
}

// failingRiskStore 在 fail 置位后拒绝写入。
type failingRiskStore struct {
	*risk.MemoryStore
	fail atomic.Bool
}

func (s *failingRiskStore) Save(st risk.State) error {
	if s.fail.Load() {
		return errors.New("disk full")
	}
	return s.MemoryStore.Save(st)
}

type harness struct {
	clock     *fakeClock
	kill      *flagSwitch
	source    *fakeSource
	market    *fakeMarket
	analyzer  *stubAnalyzer
	riskStore *failingRiskStore
	gate      *risk.Gate
	ledger    *ledger.Ledger
	orders    *MockOrders
	account   *MockAccount
	pending   *MemoryPendingStore
	journal   *recordingJournal
	notes     *recordingNotifier
	engine    *Engine
}

func testLimits() risk.Limits {
	return risk.Limits{
		RiskPerTradePct:        15,
		MaxTotalExposurePct:    50,
		MaxConcurrentPositions: 1,
		DailyLossCapPct:        2,
		MaxDrawdownCapPct:      8,
		ConsecutiveLossLimit:   3,
		CooldownMinutes:        120,
		MinSignalConfidence:    0.55,
		CapitalLimitUSDT:       100,
		MinOrderUSDT:           5,
		StopLossPct:            1.5,
		TakeProfitPct:          3,
	}
}

func newHarness(t *testing.T, live bool) *harness {
	t.Helper()
	h := &harness{
		clock:     &fakeClock{t: time.Date(2026, 6, 1, 12, 0, 5, 0, time.UTC)},
		kill:      &flagSwitch{},
		source:    &fakeSource{},
		analyzer:  &stubAnalyzer{},
		riskStore: &failingRiskStore{MemoryStore: risk.NewMemoryStore()},
		orders:    new(MockOrders),
		account:   new(MockAccount),
		pending:   &MemoryPendingStore{},
		journal:   &recordingJournal{},
		notes:     &recordingNotifier{},
	}
	h.market = &fakeMarket{clock: h.clock}
	h.market.setPrice(2000)
	h.analyzer.set(signal.Hold, 0)
	h.setCandle(h.clock.Now().Truncate(time.Hour))

	var err error
	h.gate, err = risk.NewGate(testLimits(), h.riskStore, h.kill, risk.WithClock(h.clock.Now))
	require.NoError(t, err)
	h.ledger, err = ledger.New(ledger.NewMemoryStore(), ledger.WithClock(h.clock.Now))
	require.NoError(t, err)
	h.build(t, live)
	return h
}

func (h *harness) build(t *testing.T, live bool) {
	t.Helper()
	exec := execution.NewExecutor(execution.Config{
		CapitalLimitUSDT: 100,
		MaxSpreadPct:     0.1,
		StalePriceAfter:  10 * time.Second,
		FeePct:           0.1,
		SlippagePct:      0.05,
		OrderTimeout:     time.Second,
	}, h.market, h.orders,
		execution.WithClock(h.clock.Now),
		execution.WithTokenSource(func(string) string { return testToken }),
	)
	deps := Deps{
		Candles:  h.source,
		Prices:   h.market,
		Analyzer: h.analyzer,
		Gate:     h.gate,
		Ledger:   h.ledger,
		Executor: exec,
		Pending:  h.pending,
		Journal:  h.journal,
		Alerts:   notifier.NewAlerter(h.notes),
	}
	if live {
		deps.Account = h.account
	}
	tf, err := market.ParseTimeframe("1h")
	require.NoError(t, err)
	h.engine, err = New(Config{
		Symbol:          "ETHUSDT",
		Timeframe:       tf,
		CandleLimit:     100,
		Live:            live,
		QuoteAsset:      "USDT",
		MaxHold:         48 * time.Hour,
		StalePriceAfter: 10 * time.Second,
	}, deps, WithClock(h.clock.Now))
	require.NoError(t, err)
}

func (h *harness) setCandle(closeAt time.Time) {
	h.source.mu.Lock()
	defer h.source.mu.Unlock()
	h.source.candles = []market.Candle{{
		OpenTime:  closeAt.Add(-time.Hour).UnixMilli(),
		CloseTime: closeAt.UnixMilli(),
		Open:      2000, High: 2010, Low: 1990, Close: 2000,
	}}
}

// nextCandle 推进一小时并提供新的收盘 K 线。
func (h *harness) nextCandle() {
	h.clock.Advance(time.Hour)
	h.setCandle(h.clock.Now().Truncate(time.Hour))
}

func (h *harness) openPosition(t *testing.T, entry, qty float64) {
	t.Helper()
	require.NoError(t, h.gate.OnTradeOpen())
	_, err := h.ledger.Open("ETHUSDT", entry, qty, 15)
	require.NoError(t, err)
}

func TestTick_PaperBuyOpensPosition(t *testing.T) {
	h := newHarness(t, false)
	h.analyzer.set(signal.Buy, 0.7)

	rep, err := h.engine.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, rep.Action)
	assert.Equal(t, PhaseIdle, h.engine.State())

	pos, ok := h.ledger.Position()
	require.True(t, ok)
	assert.Equal(t, 2000.0, pos.EntryPrice)
	assert.InDelta(t, 0.0075, pos.Quantity, 1e-12)
	assert.Equal(t, 15.0, pos.CapitalCommitted)
	assert.Equal(t, 1, h.gate.Status().OpenPositionCount)

	require.Len(t, h.journal.ticks, 1)
	tick := h.journal.ticks[0]
	assert.Equal(t, "buy", tick.Action)
	assert.Equal(t, "paper", tick.Mode)
	assert.Equal(t, "BUY", tick.Signal)
	assert.Equal(t, 2000.0, tick.Indicators["price"])
	assert.Contains(t, h.notes.joined(), "BUY ETHUSDT (paper)")
}

func TestTick_DuplicateCandleIsNotReprocessed(t *testing.T) {
	h := newHarness(t, false)
	h.analyzer.set(signal.Buy, 0.7)

	_, err := h.engine.Tick(context.Background())
	require.NoError(t, err)
	rep, err := h.engine.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionDuplicate, rep.Action)
	assert.Equal(t, 1, h.analyzer.calls)
	assert.Len(t, h.journal.ticks, 1)

	h.nextCandle()
	_, err = h.engine.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, h.analyzer.calls)
}

func TestTick_RiskRejectionSkips(t *testing.T) {
	h := newHarness(t, false)
	h.analyzer.set(signal.Buy, 0.4)

	rep, err := h.engine.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionBlocked, rep.Action)
	assert.Contains(t, rep.Detail, "confidence too low")
	assert.False(t, h.ledger.HasPosition())
	assert.Contains(t, h.notes.joined(), "low_confidence")
}

func TestTick_HoldWithoutPositionDoesNothing(t *testing.T) {
	h := newHarness(t, false)
	h.analyzer.set(signal.Sell, 0.8)

	rep, err := h.engine.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionHold, rep.Action)
	assert.False(t, h.ledger.HasPosition())
}

func TestTick_ExitPriority(t *testing.T) {
	cases := []struct {
		name    string
		price   float64
		signal  signal.Signal
		advance time.Duration
		reason  ledger.ExitReason
	}{
		{"stop loss beats buy signal", 1969, signal.Buy, 0, ledger.ExitStopLoss},
		{"take profit beats sell signal", 2060, signal.Sell, 0, ledger.ExitTakeProfit},
		{"signal exit", 2000, signal.Sell, 0, ledger.ExitSignal},
		{"max hold", 2000, signal.Hold, 49 * time.Hour, ledger.ExitMaxHoldTime},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, false)
			h.openPosition(t, 2000, 0.0075)
			h.clock.Advance(tc.advance)
			h.setCandle(h.clock.Now().Truncate(time.Hour))
			h.market.setPrice(tc.price)
			h.analyzer.set(tc.signal, 0.8)

			rep, err := h.engine.Tick(context.Background())
			require.NoError(t, err)
			assert.Equal(t, ActionSell, rep.Action)
			assert.False(t, h.ledger.HasPosition())
			hist := h.ledger.History()
			require.Len(t, hist, 1)
			assert.Equal(t, tc.reason, hist[0].ExitReason)
			assert.Equal(t, 0, h.gate.Status().OpenPositionCount)
		})
	}
}

func TestTick_StopLossUpdatesRiskBeforeLedger(t *testing.T) {
	h := newHarness(t, false)
	h.openPosition(t, 2000, 0.0075)
	h.market.setPrice(1969)

	_, err := h.engine.Tick(context.Background())
	require.NoError(t, err)

	st := h.gate.Status()
	// (1969-2000)*0.0075 - 0.0369
	assert.InDelta(t, -0.2694, st.DailyPnL, 1e-9)
	assert.Equal(t, 1, st.ConsecutiveLosses)
	assert.InDelta(t, -0.2694, h.ledger.History()[0].RealizedPnL, 1e-9)
}

func TestTick_HoldingPositionWithinLevels(t *testing.T) {
	h := newHarness(t, false)
	h.openPosition(t, 2000, 0.0075)
	h.market.setPrice(2010)
	h.analyzer.set(signal.Buy, 0.9)

	rep, err := h.engine.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionHold, rep.Action)
	assert.Contains(t, rep.Detail, "SL $1970.00 TP $2060.00")
	assert.True(t, h.ledger.HasPosition())
}

func TestTick_WideSpreadBlocksSell(t *testing.T) {
	h := newHarness(t, false)
	h.openPosition(t, 2000, 0.0075)
	h.market.setPrice(1960)
	h.market.mu.Lock()
	h.market.bid, h.market.ask = 1950, 1970
	h.market.mu.Unlock()

	rep, err := h.engine.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionBlocked, rep.Action)
	assert.Contains(t, rep.Detail, "spread too wide")
	assert.True(t, h.ledger.HasPosition())
}

func TestTick_GatherFailureReportsError(t *testing.T) {
	h := newHarness(t, false)
	h.source.err = errors.New("connection reset")

	rep, err := h.engine.Tick(context.Background())
	require.Error(t, err)
	assert.Equal(t, ActionError, rep.Action)
	assert.Equal(t, 0, h.analyzer.calls)
	require.Len(t, h.journal.ticks, 1)
	assert.Equal(t, "error", h.journal.ticks[0].Action)

	// Step 吞掉普通 tick 错误，循环继续。
	assert.NoError(t, h.engine.Step(context.Background()))
	assert.Contains(t, h.notes.joined(), "connection reset")
}

func TestTick_LiveTimeoutThenReconcileByLookup(t *testing.T) {
	h := newHarness(t, true)
	h.analyzer.set(signal.Buy, 0.7)
	h.account.On("Balance", mock.Anything, "USDT").Return(exchange.Balance{Asset: "USDT", Free: 250}, nil)
	h.orders.On("GetOrder", mock.Anything, "ETHUSDT", testToken).Return(exchange.Order{}, false, nil).Once()
	h.orders.On("PlaceMarketOrder", mock.Anything, mock.MatchedBy(func(req exchange.OrderRequest) bool {
		return req.ClientOrderID == testToken && req.Side == exchange.SideBuy
	})).Return(exchange.Order{}, context.DeadlineExceeded).Once()

	rep, err := h.engine.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionPending, rep.Action)
	assert.False(t, h.ledger.HasPosition())
	stored, err := h.pending.Load()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, testToken, stored.Order.Token)
	assert.Equal(t, 15.0, stored.Capital)
	assert.Contains(t, h.notes.joined(), "Order outcome unknown")

	h.orders.On("GetOrder", mock.Anything, "ETHUSDT", testToken).Return(exchange.Order{
		OrderID: 7, ClientOrderID: testToken, Status: "FILLED", ExecutedQty: 0.0075, CumulativeQuote: 15.0,
	}, true, nil).Once()
	h.nextCandle()

	rep, err = h.engine.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionReconciled, rep.Action)
	pos, ok := h.ledger.Position()
	require.True(t, ok)
	assert.InDelta(t, 2000, pos.EntryPrice, 1e-9)
	assert.Equal(t, 15.0, pos.CapitalCommitted)
	_, stillPending := h.engine.Pending()
	assert.False(t, stillPending)
	stored, err = h.pending.Load()
	require.NoError(t, err)
	assert.Nil(t, stored)

	h.orders.AssertNumberOfCalls(t, "PlaceMarketOrder", 1)
	h.orders.AssertExpectations(t)
}

func TestTick_AmbiguousSubmitNeverResubmits(t *testing.T) {
	causes := map[string]error{
		"send status unknown": &common.APIError{Code: -1007, Message: "Send status unknown; execution status unknown."},
		"context canceled":    context.Canceled,
		"connection dropped":  io.ErrUnexpectedEOF,
	}
	for name, cause := range causes {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, true)
			h.analyzer.set(signal.Buy, 0.7)
			h.account.On("Balance", mock.Anything, "USDT").Return(exchange.Balance{Asset: "USDT", Free: 250}, nil)
			h.orders.On("GetOrder", mock.Anything, "ETHUSDT", testToken).Return(exchange.Order{}, false, nil).Once()
			h.orders.On("PlaceMarketOrder", mock.Anything, mock.Anything).Return(exchange.Order{}, cause).Once()

			rep, err := h.engine.Tick(context.Background())
			require.NoError(t, err)
			assert.Equal(t, ActionPending, rep.Action)
			stored, err := h.pending.Load()
			require.NoError(t, err)
			require.NotNil(t, stored)
			assert.Equal(t, testToken, stored.Order.Token)

			// 下一根 K 线仍是 BUY，只按 token 查询。
			h.orders.On("GetOrder", mock.Anything, "ETHUSDT", testToken).Return(exchange.Order{
				OrderID: 8, ClientOrderID: testToken, Status: "FILLED", ExecutedQty: 0.0075, CumulativeQuote: 15.0,
			}, true, nil).Once()
			h.nextCandle()
			rep, err = h.engine.Tick(context.Background())
			require.NoError(t, err)
			assert.Equal(t, ActionReconciled, rep.Action)
			assert.True(t, h.ledger.HasPosition())
			h.orders.AssertNumberOfCalls(t, "PlaceMarketOrder", 1)
		})
	}
}

func TestTick_RejectedSubmitIsTickError(t *testing.T) {
	h := newHarness(t, true)
	h.analyzer.set(signal.Buy, 0.7)
	h.account.On("Balance", mock.Anything, "USDT").Return(exchange.Balance{Asset: "USDT", Free: 250}, nil)
	h.orders.On("GetOrder", mock.Anything, "ETHUSDT", testToken).Return(exchange.Order{}, false, nil).Once()
	h.orders.On("PlaceMarketOrder", mock.Anything, mock.Anything).
		Return(exchange.Order{}, fmt.Errorf("%w: insufficient balance", exchange.ErrOrderRejected)).Once()

	rep, err := h.engine.Tick(context.Background())
	require.ErrorIs(t, err, exchange.ErrOrderRejected)
	assert.Equal(t, ActionError, rep.Action)
	_, pending := h.engine.Pending()
	assert.False(t, pending)
	assert.False(t, h.ledger.HasPosition())
}

func TestTick_PendingNotFoundIsCleared(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.pending.Save(&PendingRecord{Order: execution.PendingOrder{
		Symbol: "ETHUSDT", Side: exchange.SideBuy, Token: testToken, Quantity: 0.0075, ObservedPrice: 2000,
	}}))
	h.build(t, true)
	_, ok := h.engine.Pending()
	require.True(t, ok)

	h.orders.On("GetOrder", mock.Anything, "ETHUSDT", testToken).Return(exchange.Order{}, false, nil).Once()
	rep, err := h.engine.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionReconciled, rep.Action)
	assert.False(t, h.ledger.HasPosition())
	_, ok = h.engine.Pending()
	assert.False(t, ok)
	h.orders.AssertNotCalled(t, "PlaceMarketOrder", mock.Anything, mock.Anything)
}

func TestTick_PendingLookupFailureKeepsPending(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.pending.Save(&PendingRecord{Order: execution.PendingOrder{
		Symbol: "ETHUSDT", Side: exchange.SideBuy, Token: testToken, Quantity: 0.0075,
	}}))
	h.build(t, true)
	h.analyzer.set(signal.Buy, 0.9)
	h.orders.On("GetOrder", mock.Anything, "ETHUSDT", testToken).Return(exchange.Order{}, false, exchange.ErrUnavailable).Once()

	rep, err := h.engine.Tick(context.Background())
	require.ErrorIs(t, err, exchange.ErrUnavailable)
	assert.Equal(t, ActionPending, rep.Action)
	_, ok := h.engine.Pending()
	assert.True(t, ok)
	assert.Equal(t, 0, h.analyzer.calls)
}

func TestStep_KillSwitchHaltsWithoutLiquidation(t *testing.T) {
	h := newHarness(t, false)
	h.openPosition(t, 2000, 0.0075)
	h.kill.on.Store(true)

	err := h.engine.Step(context.Background())
	require.ErrorIs(t, err, ErrKillSwitch)
	assert.True(t, h.ledger.HasPosition())
	assert.Equal(t, 0, h.analyzer.calls)
	assert.Contains(t, h.notes.joined(), "Kill switch active")
}

func TestRun_StopsOnKillSwitch(t *testing.T) {
	h := newHarness(t, false)
	h.kill.on.Store(true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.ErrorIs(t, h.engine.Run(ctx), ErrKillSwitch)
}

func TestStep_StateWriteFailureIsFatal(t *testing.T) {
	h := newHarness(t, false)
	h.openPosition(t, 2000, 0.0075)
	h.market.setPrice(1969)
	h.riskStore.fail.Store(true)

	err := h.engine.Step(context.Background())
	require.ErrorIs(t, err, ErrStateWrite)
	// 风控未落盘时不关闭账本中的持仓。
	assert.True(t, h.ledger.HasPosition())
}

func TestStep_DailySummaryOnDateChange(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.engine.Step(context.Background()))
	assert.NotContains(t, h.notes.joined(), "Daily summary")

	h.clock.Advance(12 * time.Hour)
	h.setCandle(h.clock.Now().Truncate(time.Hour))
	require.NoError(t, h.engine.Step(context.Background()))
	assert.Contains(t, h.notes.joined(), "Daily summary 2026-06-01")
}

func TestEvaluateExit(t *testing.T) {
	base := ExitCheck{StopLoss: 1970, TakeProfit: 2060, Low: 2000, High: 2000, Signal: signal.Hold, MaxHold: 48 * time.Hour}
	cases := []struct {
		name   string
		mod    func(*ExitCheck)
		reason ledger.ExitReason
		ok     bool
	}{
		{"candle pierces both levels resolves to stop loss", func(c *ExitCheck) { c.Low, c.High = 1960, 2070 }, ledger.ExitStopLoss, true},
		{"touching stop loss", func(c *ExitCheck) { c.Low = 1970 }, ledger.ExitStopLoss, true},
		{"take profit", func(c *ExitCheck) { c.High = 2060; c.Signal = signal.Sell }, ledger.ExitTakeProfit, true},
		{"signal", func(c *ExitCheck) { c.Signal = signal.Sell; c.Held = 72 * time.Hour }, ledger.ExitSignal, true},
		{"max hold", func(c *ExitCheck) { c.Held = 48 * time.Hour }, ledger.ExitMaxHoldTime, true},
		{"max hold disabled", func(c *ExitCheck) { c.Held = 480 * time.Hour; c.MaxHold = 0 }, "", false},
		{"nothing", func(c *ExitCheck) {}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mod(&c)
			reason, ok := EvaluateExit(c)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.reason, reason)
		})
	}
}
