package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.Tick("processed", time.Unix(1700000000, 0))
	m.Tick("processed", time.Unix(1700000900, 0))
	m.RiskBlock("cooldown")
	m.TradeClosed(1.5)
	m.TradeClosed(0)
	m.ObserveExchangeCall("price", 20*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticks.WithLabelValues("processed")))
	assert.Equal(t, 1700000900.0, testutil.ToFloat64(m.lastTick))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.riskBlocks.WithLabelValues("cooldown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.trades.WithLabelValues("win")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.trades.WithLabelValues("loss")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.exchangeCalls))
}

func TestMetrics_SetRisk(t *testing.T) {
	m := New()
	m.SetRisk(RiskSnapshot{Equity: 97.5, DailyPnL: -2.5, MaxDrawdownSeen: 2.5, TradingDisabled: true})
	assert.Equal(t, 97.5, testutil.ToFloat64(m.equity))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tradingDisabled))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.killSwitch))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Signal("BUY")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `spotguard_signals_total{signal="BUY"} 1`)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Tick("error", time.Now())
		m.SetRisk(RiskSnapshot{})
		m.ObserveExchangeCall("x", time.Second, nil)
	})
}
