package backtest

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"spotguard/internal/analysis/indicator"
	"spotguard/internal/ledger"
	"spotguard/internal/signal"
)

func TestRunStoreLifecycle(t *testing.T) {
	store, err := NewRunStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	created := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	run := Run{
		ID:        "01HZX0000000000000000000AA",
		Symbol:    "ETHUSDT",
		Timeframe: "1h",
		Status:    RunStatusRunning,
		Config:    RunConfig{Symbol: "ETHUSDT", Timeframe: "1h", CandleLimit: 2000, FeePct: 0.1},
		CreatedAt: created,
	}
	require.NoError(t, store.InsertRun(ctx, run))

	run.Candles = 2000
	run.InSample = Stats{Trades: 2, Wins: 2, WinRate: 100, ProfitFactor: math.Inf(1), FinalCapital: 101}
	run.OutOfSample = Stats{Trades: 1, Losses: 1, ProfitFactor: 0}
	run.Verdict = "FAIL"
	run.Warning = "underperforms"
	run.ReportPath = "data/backtest/x.yaml"
	run.CompletedAt = created.Add(time.Minute)
	require.NoError(t, store.CompleteRun(ctx, run))

	trades := []Trade{
		{EntryTime: created, ExitTime: created.Add(time.Hour), EntryPrice: 100, ExitPrice: 103, Quantity: 0.1, PnL: 0.3, Reason: ledger.ExitTakeProfit, HoldingCandles: 1},
		{EntryTime: created.Add(2 * time.Hour), ExitTime: created.Add(3 * time.Hour), EntryPrice: 100, ExitPrice: 98.5, Quantity: 0.1, PnL: -0.15, Reason: ledger.ExitStopLoss, HoldingCandles: 1},
	}
	require.NoError(t, store.InsertTrades(ctx, run.ID, SegmentInSample, trades[:1]))
	require.NoError(t, store.InsertTrades(ctx, run.ID, SegmentOutOfSample, trades[1:]))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusDone, got.Status)
	assert.Equal(t, 2000, got.Candles)
	assert.Equal(t, "FAIL", got.Verdict)
	assert.Equal(t, "underperforms", got.Warning)
	assert.Equal(t, 0.1, got.Config.FeePct)
	assert.True(t, math.IsInf(got.InSample.ProfitFactor, 1))
	assert.Equal(t, 1, got.OutOfSample.Losses)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, created.Add(time.Minute), got.CompletedAt)

	all, err := store.ListTrades(ctx, run.ID, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ledger.ExitTakeProfit, all[0].Reason)
	assert.Equal(t, created.Add(time.Hour), all[0].ExitTime)

	oos, err := store.ListTrades(ctx, run.ID, SegmentOutOfSample)
	require.NoError(t, err)
	require.Len(t, oos, 1)
	assert.Equal(t, -0.15, oos[0].PnL)

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestRunStoreFailRun(t *testing.T) {
	store, err := NewRunStore(filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.InsertRun(ctx, Run{ID: "r1", Symbol: "ETHUSDT", Timeframe: "1h", Status: RunStatusRunning}))
	require.NoError(t, store.FailRun(ctx, "r1", "boom"))
	got, err := store.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Message)
	assert.False(t, got.CompletedAt.IsZero())
}

func TestRunnerEndToEnd(t *testing.T) {
	candles := flatCandles(40, time.Hour)
	// 样本内 28 根：第 5 根买入、第 6 根止盈；样本外 12 根：第 3 根买入、第 4 根止损。
	candles[6].High = 104
	candles[31].Low = 98
	strat := script(candles, map[int]signal.Signal{5: signal.Buy, 30: signal.Buy})
	src := &pagedSource{candles: candles}

	store, err := NewRunStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	dir := t.TempDir()

	cfg := Config{
		Params:        testParams(),
		CandleLimit:   40,
		InSampleRatio: 0.7,
		ReportDir:     dir,
		Indicators:    indicator.Settings{EMAFast: 3, EMASlow: 5, RSIPeriod: 3, MACDFast: 3, MACDSlow: 5, MACDSignal: 2, ATRPeriod: 3},
	}
	runner, err := NewRunner(cfg, src, strat, WithStore(store),
		WithNow(func() time.Time { return time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC) }))
	require.NoError(t, err)

	res, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 28, res.InSample.Candles)
	assert.Equal(t, 12, res.OutOfSample.Candles)
	require.Len(t, res.InSample.Trades, 1)
	require.Len(t, res.OutOfSample.Trades, 1)
	assert.True(t, res.InSample.Stats.Passed())
	assert.False(t, res.OutOfSample.Stats.Passed())
	assert.Equal(t, "FAIL", res.Run.Verdict)
	assert.NotEmpty(t, res.Run.Warning)

	require.FileExists(t, res.Run.ReportPath)
	require.FileExists(t, res.Run.ChartPath)
	raw, err := os.ReadFile(res.Run.ReportPath)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "in_sample")
	assert.Contains(t, doc, "criteria")
	html, err := os.ReadFile(res.Run.ChartPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "echarts")

	stored, err := store.GetRun(context.Background(), res.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusDone, stored.Status)
	assert.Equal(t, res.Run.ReportPath, stored.ReportPath)
	trades, err := store.ListTrades(context.Background(), res.Run.ID, "")
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestRunnerNotEnoughHistory(t *testing.T) {
	candles := flatCandles(3, time.Hour)
	strat := &scriptedStrategy{min: 30}
	store, err := NewRunStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	runner, err := NewRunner(Config{Params: testParams(), CandleLimit: 100, InSampleRatio: 0.7}, &pagedSource{candles: candles}, strat, WithStore(store))
	require.NoError(t, err)
	_, err = runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enough history")

	runs, err := store.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunStatusFailed, runs[0].Status)
}
