// Package metrics 汇总 spotguard 的 Prometheus 指标，使用独立 Registry 以便测试。
//
//	spotguard_ticks_total{result}             tick 结果（processed|duplicate|skipped|error|halted）
//	spotguard_signals_total{signal}           信号分布
//	spotguard_risk_blocks_total{reason}       风控拒绝原因
//	spotguard_orders_total{mode,side,result}  下单结果
//	spotguard_trades_total{result}            平仓胜负
//	spotguard_exchange_call_seconds{op,result} 交易所调用耗时
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spotguard"

type Metrics struct {
	registry *prometheus.Registry

	ticks         *prometheus.CounterVec
	signals       *prometheus.CounterVec
	riskBlocks    *prometheus.CounterVec
	orders        *prometheus.CounterVec
	trades        *prometheus.CounterVec
	exchangeCalls *prometheus.HistogramVec
	breakerState  *prometheus.GaugeVec

	equity          prometheus.Gauge
	dailyPnL        prometheus.Gauge
	drawdown        prometheus.Gauge
	tradingDisabled prometheus.Gauge
	killSwitch      prometheus.Gauge
	openPosition    prometheus.Gauge
	lastTick        prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total", Help: "Ticks by result",
		}, []string{"result"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "signals_total", Help: "Signals produced by the strategy",
		}, []string{"signal"}),
		riskBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "risk_blocks_total", Help: "Trade requests rejected by the risk gate",
		}, []string{"reason"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_total", Help: "Order executions by mode, side and result",
		}, []string{"mode", "side", "result"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "trades_total", Help: "Closed trades by result (win|loss)",
		}, []string{"result"}),
		exchangeCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "exchange_call_seconds", Help: "Exchange REST call latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op", "result"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "breaker_state", Help: "0=closed, 1=open, 2=half_open",
		}, []string{"name"}),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "equity_usdt", Help: "Equity tracked by the risk gate",
		}),
		dailyPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "daily_pnl_usdt", Help: "Realized PnL for the current UTC day",
		}),
		drawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "max_drawdown_seen_pct", Help: "Largest drawdown seen",
		}),
		tradingDisabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "trading_disabled", Help: "1 when the drawdown latch is set",
		}),
		killSwitch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "kill_switch", Help: "1 when the kill switch is active",
		}),
		openPosition: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "open_position", Help: "1 when a position is open",
		}),
		lastTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_tick_timestamp_seconds", Help: "Unix time of the last processed tick",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticks, m.signals, m.riskBlocks, m.orders, m.trades, m.exchangeCalls, m.breakerState,
		m.equity, m.dailyPnL, m.drawdown, m.tradingDisabled, m.killSwitch, m.openPosition, m.lastTick,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Tick(result string, at time.Time) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(result).Inc()
	m.lastTick.Set(float64(at.Unix()))
}

func (m *Metrics) Signal(signal string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(signal).Inc()
}

func (m *Metrics) RiskBlock(reason string) {
	if m == nil {
		return
	}
	m.riskBlocks.WithLabelValues(reason).Inc()
}

func (m *Metrics) Order(mode, side, result string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(mode, side, result).Inc()
}

func (m *Metrics) TradeClosed(pnl float64) {
	if m == nil {
		return
	}
	result := "loss"
	if pnl > 0 {
		result = "win"
	}
	m.trades.WithLabelValues(result).Inc()
}

// ObserveExchangeCall 记录一次交易所调用，err 非空时 result=error。
func (m *Metrics) ObserveExchangeCall(op string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.exchangeCalls.WithLabelValues(op, result).Observe(elapsed.Seconds())
}

func (m *Metrics) BreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}

// RiskSnapshot 风控状态快照写入 gauge。
type RiskSnapshot struct {
	Equity          float64
	DailyPnL        float64
	MaxDrawdownSeen float64
	TradingDisabled bool
	KillSwitch      bool
	OpenPosition    bool
}

func (m *Metrics) SetRisk(s RiskSnapshot) {
	if m == nil {
		return
	}
	m.equity.Set(s.Equity)
	m.dailyPnL.Set(s.DailyPnL)
	m.drawdown.Set(s.MaxDrawdownSeen)
	m.tradingDisabled.Set(boolGauge(s.TradingDisabled))
	m.killSwitch.Set(boolGauge(s.KillSwitch))
	m.openPosition.Set(boolGauge(s.OpenPosition))
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
