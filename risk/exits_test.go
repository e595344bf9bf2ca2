package risk

import (
	"testing"

	"github.com/bhtaylor94/Stock-data/config"
	"github.com/bhtaylor94/Stock-data/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopLossModes(t *testing.T) {
	g, _ := newTestGate(nil)
	assert.InDelta(t, 97.0, g.StopLoss(100, true, 1.5), 1e-9)
	assert.InDelta(t, 103.0, g.StopLoss(100, false, 1.5), 1e-9)
	assert.InDelta(t, 98.0, g.StopLoss(100, true, 0), 1e-9, "missing ATR falls back to static")
	assert.InDelta(t, 98.0, g.StopLoss(100, true, 60), 1e-9, "stop below zero falls back to static")

	static, _ := newTestGate(func(rc *config.RiskConfig) { rc.StopLossType = config.StopLossStatic })
	assert.InDelta(t, 98.0, static.StopLoss(100, true, 1.5), 1e-9)
	assert.InDelta(t, 102.0, static.StopLoss(100, false, 1.5), 1e-9)
}

func TestTakeProfitModes(t *testing.T) {
	dyn, _ := newTestGate(func(rc *config.RiskConfig) { rc.TakeProfitType = config.TakeProfitDynamic })
	assert.InDelta(t, 106.0, dyn.TakeProfit(100, true, 2), 1e-9)
	assert.InDelta(t, 94.0, dyn.TakeProfit(100, false, 2), 1e-9)
	assert.InDelta(t, 104.0, dyn.TakeProfit(100, true, 0), 1e-9)

	tiered, _ := newTestGate(nil)
	assert.InDelta(t, 104.0, tiered.TakeProfit(100, true, 2), 1e-9)
	assert.InDelta(t, 96.0, tiered.TakeProfit(100, false, 2), 1e-9)
}

func TestTieredExits(t *testing.T) {
	g, _ := newTestGate(nil)
	levels := g.TieredExits(100, true)
	require.Len(t, levels, 3)
	assert.InDelta(t, 102.0, levels[0].Price, 1e-9)
	assert.InDelta(t, 105.0, levels[2].Price, 1e-9)

	var total float64
	for _, l := range levels {
		total += l.Fraction
	}
	assert.InDelta(t, 1.0, total, 1e-9)

	short := g.TieredExits(100, false)
	assert.InDelta(t, 97.0, short[1].Price, 1e-9)
}

func trailingGate(t *testing.T) *Gate {
	t.Helper()
	g, _ := newTestGate(func(rc *config.RiskConfig) {
		rc.TrailingStopEnabled = true
		rc.TrailingStopActivationPct = 0
		rc.TrailingStopDistancePct = 0.5
	})
	return g
}

func TestTrailingStopRatchetLong(t *testing.T) {
	g := trailingGate(t)

	stop, changed := g.UpdateTrailingStop("X", 196, 100, true)
	assert.True(t, changed)
	assert.InDelta(t, 98.0, stop, 1e-9)

	stop, changed = g.UpdateTrailingStop("X", 194, 100, true)
	assert.False(t, changed)
	assert.InDelta(t, 98.0, stop, 1e-9)

	stop, changed = g.UpdateTrailingStop("X", 198, 100, true)
	assert.True(t, changed)
	assert.InDelta(t, 99.0, stop, 1e-9)
}

func TestTrailingStopRatchetShort(t *testing.T) {
	g := trailingGate(t)

	stop, changed := g.UpdateTrailingStop("Y", 60, 100, false)
	assert.True(t, changed)
	assert.InDelta(t, 90.0, stop, 1e-9)

	stop, changed = g.UpdateTrailingStop("Y", 64, 100, false)
	assert.False(t, changed)
	assert.InDelta(t, 90.0, stop, 1e-9)

	stop, changed = g.UpdateTrailingStop("Y", 50, 100, false)
	assert.True(t, changed)
	assert.InDelta(t, 75.0, stop, 1e-9)
}

func TestTrailingStopActivation(t *testing.T) {
	g, _ := newTestGate(nil)
	_, changed := g.UpdateTrailingStop("Z", 101, 100, true)
	assert.False(t, changed, "1% gain is below the 1.5% activation")

	stop, changed := g.UpdateTrailingStop("Z", 102, 100, true)
	assert.True(t, changed)
	assert.InDelta(t, 102*0.99, stop, 1e-9)
}

func TestTrailingStopDisabled(t *testing.T) {
	g, _ := newTestGate(func(rc *config.RiskConfig) { rc.TrailingStopEnabled = false })
	_, changed := g.UpdateTrailingStop("Z", 200, 100, true)
	assert.False(t, changed)
}

func TestEvaluateExitLong(t *testing.T) {
	g, _ := newTestGate(nil)
	p := ledger.Position{Symbol: "AAPL", Quantity: 20, EntryPrice: 50, StopLoss: 49, TakeProfit: 52}

	act, ok := g.EvaluateExit(p, 48.9).(*CloseAction)
	require.True(t, ok)
	assert.Equal(t, ReasonStopLoss, act.Reason)

	act, ok = g.EvaluateExit(p, 52).(*CloseAction)
	require.True(t, ok)
	assert.Equal(t, ReasonTakeProfit, act.Reason)

	_, ok = g.EvaluateExit(p, 50.2).(*NoOpAction)
	assert.True(t, ok)
}

func TestEvaluateExitShort(t *testing.T) {
	g, _ := newTestGate(nil)
	p := ledger.Position{Symbol: "TSLA", Quantity: -10, EntryPrice: 100, StopLoss: 103, TakeProfit: 94}

	act, ok := g.EvaluateExit(p, 103.5).(*CloseAction)
	require.True(t, ok)
	assert.Equal(t, ReasonStopLoss, act.Reason)

	act, ok = g.EvaluateExit(p, 93).(*CloseAction)
	require.True(t, ok)
	assert.Equal(t, ReasonTakeProfit, act.Reason)
}

func TestEvaluateExitTrailingBinds(t *testing.T) {
	g, _ := newTestGate(nil)
	p := ledger.Position{Symbol: "NVDA", Quantity: 5, EntryPrice: 100, StopLoss: 97, TakeProfit: 110, TrailingStop: 103}

	act, ok := g.EvaluateExit(p, 102.5).(*CloseAction)
	require.True(t, ok)
	assert.Equal(t, ReasonTrailingStop, act.Reason)
	assert.InDelta(t, 103.0, act.Trigger, 1e-9)
}

func TestEvaluateExitStopBeatsTarget(t *testing.T) {
	g, _ := newTestGate(nil)
	// Degenerate levels where the price satisfies both conditions.
	p := ledger.Position{Symbol: "ODD", Quantity: 1, EntryPrice: 100, StopLoss: 120, TakeProfit: 105}
	act, ok := g.EvaluateExit(p, 110).(*CloseAction)
	require.True(t, ok)
	assert.Equal(t, ReasonStopLoss, act.Reason)
}

func TestEvaluateExitManualAndTrailingUpdate(t *testing.T) {
	g, _ := newTestGate(nil)
	p := ledger.Position{Symbol: "MSFT", Quantity: 10, EntryPrice: 100, StopLoss: 97, TakeProfit: 110}

	upd, ok := g.EvaluateExit(p, 105).(*TrailingStopUpdate)
	require.True(t, ok)
	assert.InDelta(t, 105*0.99, upd.NewStop, 1e-9)

	p.CloseRequested = true
	act, ok := g.EvaluateExit(p, 104).(*CloseAction)
	require.True(t, ok)
	assert.Equal(t, ReasonManual, act.Reason)
	assert.NotEmpty(t, act.Description())
}
