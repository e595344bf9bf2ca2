package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Order("entry", "ok")
	m.Order("entry", "ok")
	m.Order("exit", "error")
	m.Signal("momentum_scalper", "LONG")
	m.Exit("stop_loss")
	m.Escalation()
	m.LoopError("scan")
	m.SetDaily(-42.5, 3)
	m.SetOpenPositions(2)
	m.SetAccountValue(10000)
	m.SetHalted(true)
	m.ObserveCycle("monitor", 0.2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Orders.WithLabelValues("entry", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Orders.WithLabelValues("exit", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Exits.WithLabelValues("stop_loss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExitEscalations))
	assert.Equal(t, -42.5, testutil.ToFloat64(m.DailyPnL))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DailyTrades))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradingHalted))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Order("entry", "ok")
		m.Exit("manual")
		m.SetHalted(false)
		m.SetDaily(0, 0)
		m.ObserveCycle("scan", 1)
	})
}
