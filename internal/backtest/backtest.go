// Package backtest 在历史 K 线上回放实盘同一套信号、风控与平仓规则，
// 按 70/30 做样本内/样本外检验，并输出 YAML 报告、HTML 图表和 sqlite 历史记录。
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"spotguard/internal/analysis/indicator"
	"spotguard/internal/config"
	"spotguard/internal/logger"
	"spotguard/internal/market"
)

// Config 一次回测的全部参数。
type Config struct {
	Params
	CandleLimit   int
	InSampleRatio float64
	ReportDir     string
	Indicators    indicator.Settings
}

func ConfigFrom(cfg *config.Config) (Config, error) {
	p, err := ParamsFrom(cfg)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Params:        p,
		CandleLimit:   cfg.Backtest.CandleLimit,
		InSampleRatio: cfg.Backtest.InSampleRatio,
		ReportDir:     cfg.Backtest.ReportDir,
		Indicators:    indicator.SettingsFrom(cfg.Strategy),
	}, nil
}

// Result 是 Runner.Run 的输出。
type Result struct {
	Run         Run
	InSample    SegmentResult
	OutOfSample SegmentResult
}

// Passed 两段均达标才视为通过。
func (r Result) Passed() bool {
	return r.InSample.Stats.Passed() && r.OutOfSample.Stats.Passed()
}

type RunnerOption func(*Runner)

// WithStore 把回测结果写入 sqlite 历史库。
func WithStore(store *RunStore) RunnerOption {
	return func(r *Runner) { r.store = store }
}

func WithNow(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

type Runner struct {
	cfg    Config
	source HistoryFetcher
	strat  Strategy
	store  *RunStore
	now    func() time.Time
}

func NewRunner(cfg Config, source HistoryFetcher, strat Strategy, opts ...RunnerOption) (*Runner, error) {
	if source == nil {
		return nil, fmt.Errorf("history source is required")
	}
	if strat == nil {
		return nil, fmt.Errorf("strategy is required")
	}
	r := &Runner{cfg: cfg, source: source, strat: strat, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run 拉取历史、切分、分段回放并落地产物。产物写入失败只记日志，不影响结果。
func (r *Runner) Run(ctx context.Context) (Result, error) {
	cfg := r.cfg
	started := r.now().UTC()
	run := Run{
		ID:        ulid.MustNew(ulid.Timestamp(started), ulid.DefaultEntropy()).String(),
		Symbol:    cfg.Symbol,
		Timeframe: cfg.Timeframe.Key,
		Status:    RunStatusRunning,
		Config:    r.runConfig(),
		CreatedAt: started,
	}
	if r.store != nil {
		if err := r.store.InsertRun(ctx, run); err != nil {
			logger.Warnf("[backtest] record run %s failed: %v", run.ID, err)
		}
	}
	res, err := r.run(ctx, run)
	if err != nil && r.store != nil {
		if ferr := r.store.FailRun(context.WithoutCancel(ctx), run.ID, err.Error()); ferr != nil {
			logger.Warnf("[backtest] mark run %s failed: %v", run.ID, ferr)
		}
	}
	return res, err
}

func (r *Runner) run(ctx context.Context, run Run) (Result, error) {
	cfg := r.cfg
	logger.Infof("[backtest] starting %s: %s %s | %d candles", run.ID, cfg.Symbol, cfg.Timeframe.Key, cfg.CandleLimit)
	candles, err := FetchHistory(ctx, r.source, cfg.Symbol, cfg.Timeframe.Key, cfg.CandleLimit)
	if err != nil {
		return Result{}, err
	}
	need := r.strat.MinCandles() + 2
	if len(candles) < need {
		return Result{}, fmt.Errorf("not enough history: got %d candles, need at least %d", len(candles), need)
	}
	run.Candles = len(candles)
	run.StartTS = candles[0].OpenTime
	run.EndTS = candles[len(candles)-1].CloseTime

	inCandles, outCandles := Split(candles, cfg.InSampleRatio)
	logger.Infof("[backtest] in-sample: %d candles | out-of-sample: %d candles", len(inCandles), len(outCandles))

	in, err := Simulate(SegmentInSample, inCandles, r.strat, cfg.Params)
	if err != nil {
		return Result{}, fmt.Errorf("simulate %s: %w", SegmentInSample, err)
	}
	LogSegment(in)
	out, err := Simulate(SegmentOutOfSample, outCandles, r.strat, cfg.Params)
	if err != nil {
		return Result{}, fmt.Errorf("simulate %s: %w", SegmentOutOfSample, err)
	}
	LogSegment(out)

	logger.Infof("[backtest] walk-forward validation complete")
	if out.Stats.Underperforms() {
		run.Warning = "strategy underperforms on out-of-sample data, review before going live"
		logger.Warnf("[backtest] %s", run.Warning)
	} else {
		logger.Infof("[backtest] strategy passed out-of-sample validation")
	}

	res := Result{Run: run, InSample: in, OutOfSample: out}
	res.Run.InSample = in.Stats
	res.Run.OutOfSample = out.Stats
	res.Run.Verdict = "FAIL"
	if res.Passed() {
		res.Run.Verdict = "PASS"
	}
	res.Run.Status = RunStatusDone
	res.Run.CompletedAt = r.now().UTC()
	r.writeArtifacts(&res, candles)
	if r.store != nil {
		r.persist(context.WithoutCancel(ctx), res)
	}
	return res, nil
}

func (r *Runner) writeArtifacts(res *Result, candles market.Candles) {
	dir := r.cfg.ReportDir
	if dir == "" {
		return
	}
	rep := Report{Run: res.Run, Criteria: defaultCriteria(), InSample: res.InSample, OutOfSample: res.OutOfSample}
	if path, err := WriteChart(dir, rep, candles, r.cfg.Indicators); err != nil {
		logger.Warnf("[backtest] render chart failed: %v", err)
	} else {
		res.Run.ChartPath = path
		logger.Infof("[backtest] equity chart written to %s", path)
	}
	rep.Run = res.Run
	if path, err := WriteYAML(dir, rep); err != nil {
		logger.Warnf("[backtest] write report failed: %v", err)
	} else {
		res.Run.ReportPath = path
		logger.Infof("[backtest] report written to %s", path)
	}
}

func (r *Runner) persist(ctx context.Context, res Result) {
	if err := r.store.CompleteRun(ctx, res.Run); err != nil {
		logger.Warnf("[backtest] store run %s failed: %v", res.Run.ID, err)
		return
	}
	for _, seg := range []SegmentResult{res.InSample, res.OutOfSample} {
		if err := r.store.InsertTrades(ctx, res.Run.ID, seg.Label, seg.Trades); err != nil {
			logger.Warnf("[backtest] store %s trades failed: %v", seg.Label, err)
		}
	}
}

func (r *Runner) runConfig() RunConfig {
	cfg := r.cfg
	return RunConfig{
		Symbol:          cfg.Symbol,
		Timeframe:       cfg.Timeframe.Key,
		CandleLimit:     cfg.CandleLimit,
		InSampleRatio:   cfg.InSampleRatio,
		CapitalUSDT:     cfg.Limits.CapitalLimitUSDT,
		RiskPerTradePct: cfg.Limits.RiskPerTradePct,
		StopLossPct:     cfg.Limits.StopLossPct,
		TakeProfitPct:   cfg.Limits.TakeProfitPct,
		MaxHoldCandles:  cfg.MaxHoldCandles,
		FeePct:          cfg.FeePct,
		SlippagePct:     cfg.SlippagePct,
	}
}
