// Package metrics exposes the engine's Prometheus collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups every collector the engine updates. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Orders           *prometheus.CounterVec
	Signals          *prometheus.CounterVec
	Exits            *prometheus.CounterVec
	ExitEscalations  prometheus.Counter
	LoopErrors       *prometheus.CounterVec
	DailyPnL         prometheus.Gauge
	DailyTrades      prometheus.Gauge
	OpenPositions    prometheus.Gauge
	AccountValue     prometheus.Gauge
	TradingHalted    prometheus.Gauge
	CycleDurationSec *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_orders_total",
				Help: "Orders submitted, by kind (entry|exit|cancel) and result (ok|error|rejected)",
			},
			[]string{"kind", "result"},
		),
		Signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_signals_total",
				Help: "Signals produced by each strategy",
			},
			[]string{"strategy", "direction"},
		),
		// reasons: stop_loss, trailing_stop, take_profit, manual
		Exits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_exits_total",
				Help: "Closed positions split by exit reason",
			},
			[]string{"reason"},
		),
		ExitEscalations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "engine_exit_retry_escalations_total",
				Help: "Exit orders that kept failing past the alert threshold",
			},
		),
		LoopErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_loop_errors_total",
				Help: "Cycle-level failures per loop",
			},
			[]string{"loop"},
		),
		DailyPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_daily_pnl_usd",
			Help: "Realized PnL for the current trading day",
		}),
		DailyTrades: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_daily_trades",
			Help: "Closed trades for the current trading day",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_open_positions",
			Help: "Committed positions in the ledger",
		}),
		AccountValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_account_value_usd",
			Help: "Last account value reported by the broker",
		}),
		TradingHalted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_trading_halted",
			Help: "1 while new entries are blocked by the risk gate or exposure limit",
		}),
		CycleDurationSec: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engine_cycle_duration_seconds",
				Help:    "Wall time of one scan or monitor cycle",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"loop"},
		),
	}
	reg.MustRegister(
		m.Orders, m.Signals, m.Exits, m.ExitEscalations, m.LoopErrors,
		m.DailyPnL, m.DailyTrades, m.OpenPositions, m.AccountValue, m.TradingHalted,
		m.CycleDurationSec,
	)
	return m
}

func (m *Metrics) Order(kind, result string) {
	if m == nil {
		return
	}
	m.Orders.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) Signal(strategy, direction string) {
	if m == nil {
		return
	}
	m.Signals.WithLabelValues(strategy, direction).Inc()
}

func (m *Metrics) Exit(reason string) {
	if m == nil {
		return
	}
	m.Exits.WithLabelValues(reason).Inc()
}

func (m *Metrics) Escalation() {
	if m == nil {
		return
	}
	m.ExitEscalations.Inc()
}

func (m *Metrics) LoopError(loop string) {
	if m == nil {
		return
	}
	m.LoopErrors.WithLabelValues(loop).Inc()
}

func (m *Metrics) ObserveCycle(loop string, seconds float64) {
	if m == nil {
		return
	}
	m.CycleDurationSec.WithLabelValues(loop).Observe(seconds)
}

// SetDaily publishes the risk gate's day counters.
func (m *Metrics) SetDaily(pnl float64, trades int) {
	if m == nil {
		return
	}
	m.DailyPnL.Set(pnl)
	m.DailyTrades.Set(float64(trades))
}

func (m *Metrics) SetOpenPositions(n int) {
	if m == nil {
		return
	}
	m.OpenPositions.Set(float64(n))
}

func (m *Metrics) SetAccountValue(v float64) {
	if m == nil {
		return
	}
	m.AccountValue.Set(v)
}

func (m *Metrics) SetHalted(halted bool) {
	if m == nil {
		return
	}
	if halted {
		m.TradingHalted.Set(1)
	} else {
		m.TradingHalted.Set(0)
	}
}
