package livehttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotguard/internal/engine"
	"spotguard/internal/execution"
	"spotguard/internal/ledger"
	"spotguard/internal/metrics"
	"spotguard/internal/risk"
	"spotguard/internal/signal"
	"spotguard/internal/store"
)

var now = time.Date(2026, 6, 1, 12, 30, 0, 0, time.UTC)

type stubEngine struct {
	report  engine.Report
	pending *engine.PendingRecord
}

func (s *stubEngine) State() engine.Phase       { return engine.PhaseIdle }
func (s *stubEngine) LastReport() engine.Report { return s.report }
func (s *stubEngine) Mode() execution.Mode      { return execution.ModePaper }
func (s *stubEngine) Pending() (engine.PendingRecord, bool) {
	if s.pending == nil {
		return engine.PendingRecord{}, false
	}
	return *s.pending, true
}

type stubJournal struct {
	ticks []store.TickRecord
}

func (s *stubJournal) RecentTicks(_ context.Context, limit int) ([]store.TickRecord, error) {
	if len(s.ticks) > limit {
		return s.ticks[:limit], nil
	}
	return s.ticks, nil
}

func (s *stubJournal) RecentTrades(context.Context, int) ([]ledger.TradeRecord, error) {
	return nil, nil
}

type fixture struct {
	srv    *Server
	ledger *ledger.Ledger
	gate   *risk.Gate
	kill   *risk.FileSwitch
	eng    *stubEngine
}

func newFixture(t *testing.T, withJournal bool) *fixture {
	t.Helper()
	kill, err := risk.NewFileSwitch(filepath.Join(t.TempDir(), "KILL_SWITCH"))
	require.NoError(t, err)
	gate, err := risk.NewGate(risk.Limits{
		RiskPerTradePct:        15,
		MaxTotalExposurePct:    50,
		MaxConcurrentPositions: 1,
		DailyLossCapPct:        2,
		MaxDrawdownCapPct:      8,
		CapitalLimitUSDT:       100,
		MinOrderUSDT:           5,
		StopLossPct:            1.5,
		TakeProfitPct:          3,
	}, risk.NewMemoryStore(), kill, risk.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	book, err := ledger.New(ledger.NewMemoryStore(), ledger.WithClock(func() time.Time { return now.Add(-45 * time.Minute) }))
	require.NoError(t, err)
	eng := &stubEngine{}
	deps := Deps{
		Symbol:     "ETHUSDT",
		Timeframe:  "15m",
		Engine:     eng,
		Risk:       gate,
		Ledger:     book,
		KillSwitch: kill,
		Now:        func() time.Time { return now },
	}
	if withJournal {
		deps.Journal = &stubJournal{ticks: []store.TickRecord{{Symbol: "ETHUSDT", Action: "hold"}, {Symbol: "ETHUSDT", Action: "buy"}}}
	}
	srv, err := NewServer(ServerConfig{Deps: deps, Metrics: metrics.New().Handler()})
	require.NoError(t, err)
	return &fixture{srv: srv, ledger: book, gate: gate, kill: kill, eng: eng}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestNewServerRequiresDeps(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	require.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, false)
	code, body := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusReportsRiskAndPosition(t *testing.T) {
	f := newFixture(t, false)
	code, body := f.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "paper", body["mode"])
	assert.Equal(t, "ETHUSDT", body["symbol"])
	assert.Equal(t, false, body["has_position"])
	assert.NotContains(t, body, "last_tick")
	riskBody := body["risk"].(map[string]any)
	assert.Equal(t, 100.0, riskBody["equity"])
	assert.Equal(t, false, riskBody["kill_switch"])

	_, err := f.ledger.Open("ETHUSDT", 2000, 0.0075, 15)
	require.NoError(t, err)
	f.eng.report = engine.Report{At: now, Price: 2010, Signal: signal.Result{Signal: signal.Hold}, Action: engine.ActionHold}
	f.eng.pending = &engine.PendingRecord{Order: execution.PendingOrder{Token: "bot_sell_1"}}

	_, body = f.do(t, http.MethodGet, "/api/status", "")
	assert.Equal(t, true, body["has_position"])
	assert.Contains(t, body, "last_tick")
	assert.Equal(t, "bot_sell_1", body["pending_order"].(map[string]any)["order"].(map[string]any)["token"])
}

func TestPositionEndpoint(t *testing.T) {
	f := newFixture(t, false)
	_, body := f.do(t, http.MethodGet, "/api/position", "")
	assert.Nil(t, body["position"])

	_, err := f.ledger.Open("ETHUSDT", 2000, 0.0075, 15)
	require.NoError(t, err)
	f.eng.report = engine.Report{At: now, Price: 2010}

	code, body := f.do(t, http.MethodGet, "/api/position", "")
	require.Equal(t, http.StatusOK, code)
	pos := body["position"].(map[string]any)
	assert.Equal(t, 1970.0, pos["stop_loss"])
	assert.Equal(t, 2060.0, pos["take_profit"])
	assert.Equal(t, 2010.0, pos["mark_price"])
	assert.Equal(t, 0.075, pos["unrealized_pnl"])
	assert.Equal(t, 45.0, pos["held_minutes"])
}

func TestTradesAndSummary(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	for _, pnl := range []float64{0.3, -0.1, 0.2} {
		_, err := f.ledger.Open("ETHUSDT", 2000, 0.0075, 15)
		require.NoError(t, err)
		_, _, err = f.ledger.Close(ctx, 2000, pnl, ledger.ExitSignal)
		require.NoError(t, err)
	}

	code, body := f.do(t, http.MethodGet, "/api/trades?limit=2", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2.0, body["count"])
	assert.Equal(t, 3.0, body["total"])
	trades := body["trades"].([]any)
	assert.Equal(t, 0.2, trades[0].(map[string]any)["pnl"])

	_, body = f.do(t, http.MethodGet, "/api/summary", "")
	summary := body["trades"].(map[string]any)
	assert.Equal(t, 3.0, summary["trade_count"])
	assert.Equal(t, 100.0, body["equity"])

	code, _ = f.do(t, http.MethodGet, "/api/trades?source=journal", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestTicksEndpoint(t *testing.T) {
	code, _ := newFixture(t, false).do(t, http.MethodGet, "/api/ticks", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, body := newFixture(t, true).do(t, http.MethodGet, "/api/ticks?limit=1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, body["count"])
}

func TestKillSwitchToggle(t *testing.T) {
	f := newFixture(t, false)

	code, _ := f.do(t, http.MethodPost, "/api/kill-switch", `{"reason":"missing flag"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := f.do(t, http.MethodPost, "/api/kill-switch", `{"active":true,"reason":"manual"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["active"])
	assert.FileExists(t, f.kill.Path())
	assert.True(t, f.gate.KillSwitchActive())
	assert.Equal(t, risk.ReasonKillSwitch, f.gate.CanOpenPosition(15, 0.9).Reason)

	_, body = f.do(t, http.MethodGet, "/api/kill-switch", "")
	assert.Equal(t, true, body["active"])

	code, _ = f.do(t, http.MethodPost, "/api/kill-switch", `{"active":false}`)
	require.Equal(t, http.StatusOK, code)
	assert.NoFileExists(t, f.kill.Path())
	assert.False(t, f.gate.KillSwitchActive())
}
