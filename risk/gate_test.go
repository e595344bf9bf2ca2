package risk

import (
	"sync"
	"testing"
	"time"

	"github.com/bhtaylor94/Stock-data/config"
	"github.com/bhtaylor94/Stock-data/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newTestGate(mutate func(rc *config.RiskConfig)) (*Gate, *fakeClock) {
	rc := config.DefaultRiskConfig()
	if mutate != nil {
		mutate(rc)
	}
	clock := &fakeClock{t: time.Date(2024, 3, 4, 10, 0, 0, 0, time.Local)}
	return NewGate(rc, WithClock(clock.Now)), clock
}

func TestCanTradeDailyLossBoundary(t *testing.T) {
	g, _ := newTestGate(nil)

	g.RecordTrade(-499.99)
	ok, reason := g.CanTrade(10000)
	assert.True(t, ok)
	assert.Equal(t, "OK", reason)

	g, _ = newTestGate(nil)
	g.RecordTrade(-500)
	ok, reason = g.CanTrade(10000)
	assert.False(t, ok)
	assert.Contains(t, reason, "Daily loss limit")
}

func TestCanTradeTradeCap(t *testing.T) {
	g, _ := newTestGate(func(rc *config.RiskConfig) { rc.MaxDailyTrades = 3 })
	for i := 0; i < 3; i++ {
		g.RecordTrade(10)
	}
	ok, reason := g.CanTrade(10000)
	assert.False(t, ok)
	assert.Contains(t, reason, "Daily trade limit")
}

func TestCanTradeWithoutAccountValue(t *testing.T) {
	g, _ := newTestGate(nil)
	ok, _ := g.CanTrade(0)
	assert.False(t, ok)
}

func TestDailyResetOnNewDate(t *testing.T) {
	g, clock := newTestGate(nil)
	g.RecordTrade(-600)
	ok, _ := g.CanTrade(10000)
	require.False(t, ok)

	clock.Set(time.Date(2024, 3, 4, 23, 59, 0, 0, time.Local))
	ok, _ = g.CanTrade(10000)
	assert.False(t, ok, "same date keeps the breaker tripped")

	clock.Set(time.Date(2024, 3, 5, 0, 0, 1, 0, time.Local))
	ok, _ = g.CanTrade(10000)
	assert.True(t, ok)
	assert.Equal(t, 0, g.Daily().Trades)
	assert.Zero(t, g.Daily().PnL)
}

func TestDailyNoResetWhenClockGoesBack(t *testing.T) {
	g, clock := newTestGate(nil)
	g.RecordTrade(-100)
	clock.Set(time.Date(2024, 3, 3, 12, 0, 0, 0, time.Local))
	assert.InDelta(t, -100.0, g.Daily().PnL, 1e-9)
	assert.Equal(t, 1, g.Daily().Trades)
}

func TestRecordTradeConcurrent(t *testing.T) {
	g, _ := newTestGate(func(rc *config.RiskConfig) { rc.MaxDailyTrades = 10000 })
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.RecordTrade(1)
		}()
	}
	wg.Wait()
	d := g.Daily()
	assert.Equal(t, 100, d.Trades)
	assert.InDelta(t, 100.0, d.PnL, 1e-9)
}

func TestSnapshotRestore(t *testing.T) {
	g, _ := newTestGate(func(rc *config.RiskConfig) {
		rc.TrailingStopActivationPct = 0
		rc.EnableMartingale = true
	})
	g.RecordTrade(-42)
	g.UpdateTrailingStop("AAPL", 110, 100, true)
	g.ApplyMartingale("AAPL", 10, true)

	st := g.Snapshot()
	assert.Equal(t, 1, st.Daily.Trades)
	assert.Contains(t, st.TrailingStops, "AAPL")
	assert.Equal(t, 1, st.ConsecutiveLosses["AAPL"])

	restored, _ := newTestGate(nil)
	restored.Restore(st)
	assert.InDelta(t, -42.0, restored.Daily().PnL, 1e-9)
	stop, ok := restored.TrailingStop("AAPL")
	assert.True(t, ok)
	assert.InDelta(t, 110*0.99, stop, 1e-9)

	restored.ClearSymbol("AAPL")
	_, ok = restored.TrailingStop("AAPL")
	assert.False(t, ok)
}

func TestRestoreStaleDayRolls(t *testing.T) {
	g, _ := newTestGate(nil)
	g.Restore(State{Daily: DailyState{PnL: -900, Trades: 4, ResetDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)}})
	ok, _ := g.CanTrade(10000)
	assert.True(t, ok)
	assert.Zero(t, g.Daily().Trades)
}

func TestPositionRiskAndAccountRisk(t *testing.T) {
	g, _ := newTestGate(nil)
	p := ledger.Position{Symbol: "AAPL", Quantity: 20, EntryPrice: 50, StopLoss: 49, TakeProfit: 52}
	pr := g.PositionRisk(p, 51)
	assert.InDelta(t, 1020.0, pr.PositionValue, 1e-9)
	assert.InDelta(t, 20.0, pr.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 2.0, pr.UnrealizedPnLPct, 1e-9)
	assert.InDelta(t, 40.0, pr.RiskToStop, 1e-9)

	g.RecordTrade(-100)
	ar := g.AccountRisk(10000, 5000, []PositionRisk{pr})
	assert.Equal(t, 1, ar.NumPositions)
	assert.InDelta(t, 10.2, ar.ExposurePct, 1e-9)
	assert.InDelta(t, -1.0, ar.DailyPnLPct, 1e-9)
	assert.Equal(t, 1, ar.NumTradesToday)
}

func TestPruneTrailingStops(t *testing.T) {
	g, _ := newTestGate(nil)
	g.Restore(State{TrailingStops: map[string]float64{"AAPL": 60, "MSFT": 410}})

	removed := g.PruneTrailingStops(func(symbol string) bool { return symbol == "MSFT" })

	assert.Equal(t, 1, removed)
	_, ok := g.TrailingStop("AAPL")
	assert.False(t, ok)
	stop, ok := g.TrailingStop("MSFT")
	assert.True(t, ok)
	assert.Equal(t, 410.0, stop)
}

func TestPositionRiskCarriesTierLadder(t *testing.T) {
	g, _ := newTestGate(func(rc *config.RiskConfig) {
		rc.TakeProfitType = config.TakeProfitTiered
		rc.TieredExits = []config.ExitTier{
			{Percentage: 0.5, ProfitTargetPct: 0.02},
			{Percentage: 0.5, ProfitTargetPct: 0.04},
		}
	})
	pr := g.PositionRisk(ledger.Position{Symbol: "AAPL", Quantity: -10, EntryPrice: 100}, 99)
	require.Len(t, pr.ExitLadder, 2)
	assert.InDelta(t, 98.0, pr.ExitLadder[0].Price, 1e-9)
	assert.InDelta(t, 96.0, pr.ExitLadder[1].Price, 1e-9)
	assert.Equal(t, 0.5, pr.ExitLadder[1].Fraction)

	ar := g.AccountRisk(10000, 10000, []PositionRisk{pr})
	require.Len(t, ar.Positions, 1)
	assert.Len(t, ar.Positions[0].ExitLadder, 2)

	static, _ := newTestGate(func(rc *config.RiskConfig) { rc.TakeProfitType = config.TakeProfitStatic })
	assert.Empty(t, static.PositionRisk(ledger.Position{Symbol: "AAPL", Quantity: 10, EntryPrice: 100}, 101).ExitLadder)
}
