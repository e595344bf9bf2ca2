// risk/manager.go
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/bhtaylor94/Stock-data/config"
	"github.com/bhtaylor94/Stock-data/logs"
)

// DailyState is the circuit-breaker accounting for one calendar day.
type DailyState struct {
	PnL       float64   `json:"pnl"`
	Trades    int       `json:"trades"`
	ResetDate time.Time `json:"reset_date"`
}

// State is everything the gate mutates, in a form that can be persisted and restored.
type State struct {
	Daily             DailyState         `json:"daily"`
	TrailingStops     map[string]float64 `json:"trailing_stops"`
	ConsecutiveLosses map[string]int     `json:"consecutive_losses"`
}

// Option customises a Gate at construction.
type Option func(*Gate)

// WithClock replaces the wall clock used for the daily reset.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// Gate decides whether, how much, and until where the engine may trade.
// The configuration is read-only. The daily counters, trailing stops and
// loss streaks are guarded by mu and shared by both trading loops.
type Gate struct {
	cfg *config.RiskConfig
	now func() time.Time

	mu                sync.Mutex
	daily             DailyState
	trailingStops     map[string]float64
	consecutiveLosses map[string]int
}

// NewGate builds a gate with empty counters whose trading day starts today.
func NewGate(cfg *config.RiskConfig, opts ...Option) *Gate {
	g := &Gate{
		cfg:               cfg,
		now:               time.Now,
		trailingStops:     make(map[string]float64),
		consecutiveLosses: make(map[string]int),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.daily.ResetDate = startOfDay(g.now())
	logs.Infof("[RiskGate] Initialized (sizing=%s, stop=%s, take_profit=%s, trailing=%t)",
		cfg.PositionSizingMethod, cfg.StopLossType, cfg.TakeProfitType, cfg.TrailingStopEnabled)
	return g
}

// Config exposes the immutable risk configuration.
func (g *Gate) Config() *config.RiskConfig { return g.cfg }

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// rollLocked starts a new trading day once the calendar date has advanced.
// A clock that moves backwards never resets the counters.
func (g *Gate) rollLocked() {
	today := startOfDay(g.now())
	if today.After(g.daily.ResetDate) {
		if g.daily.Trades > 0 || g.daily.PnL != 0 {
			logs.Infof("[RiskGate] New trading day, resetting daily stats (previous pnl=%.2f, trades=%d)",
				g.daily.PnL, g.daily.Trades)
		}
		g.daily = DailyState{ResetDate: today}
	}
}

// CanTrade reports whether new entries are allowed and, if not, why.
func (g *Gate) CanTrade(accountValue float64) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollLocked()

	if accountValue <= 0 {
		return false, "Account value unavailable"
	}
	maxLoss := accountValue * g.cfg.MaxDailyLossPct
	if g.daily.PnL <= -maxLoss {
		return false, fmt.Sprintf("Daily loss limit reached: $%.2f", g.daily.PnL)
	}
	if g.daily.Trades >= g.cfg.MaxDailyTrades {
		return false, fmt.Sprintf("Daily trade limit reached: %d", g.daily.Trades)
	}
	return true, "OK"
}

// RecordTrade adds a completed trade to the daily counters.
func (g *Gate) RecordTrade(pnl float64) {
	g.mu.Lock()
	g.rollLocked()
	g.daily.PnL += pnl
	g.daily.Trades++
	total := g.daily.PnL
	g.mu.Unlock()
	logs.Infof("[RiskGate] Trade recorded: PnL $%.2f, daily total $%.2f", pnl, total)
}

// Daily returns the current day's counters.
func (g *Gate) Daily() DailyState {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollLocked()
	return g.daily
}

// Snapshot copies all mutable state in one critical section.
func (g *Gate) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollLocked()
	st := State{
		Daily:             g.daily,
		TrailingStops:     make(map[string]float64, len(g.trailingStops)),
		ConsecutiveLosses: make(map[string]int, len(g.consecutiveLosses)),
	}
	for k, v := range g.trailingStops {
		st.TrailingStops[k] = v
	}
	for k, v := range g.consecutiveLosses {
		st.ConsecutiveLosses[k] = v
	}
	return st
}

// Restore replaces the mutable state, typically from the persisted file at
// startup. A daily state from a previous day is rolled on the next access.
func (g *Gate) Restore(st State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.daily = st.Daily
	if g.daily.ResetDate.IsZero() {
		g.daily.ResetDate = startOfDay(g.now())
	}
	g.trailingStops = make(map[string]float64, len(st.TrailingStops))
	for k, v := range st.TrailingStops {
		g.trailingStops[k] = v
	}
	g.consecutiveLosses = make(map[string]int, len(st.ConsecutiveLosses))
	for k, v := range st.ConsecutiveLosses {
		g.consecutiveLosses[k] = v
	}
	g.rollLocked()
}

// ClearSymbol forgets the trailing stop of a closed position. Loss streaks
// survive so martingale can see them on the next entry.
func (g *Gate) ClearSymbol(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.trailingStops, symbol)
}

// PruneTrailingStops drops the trailing stops of symbols for which held
// returns false and reports how many were removed.
func (g *Gate) PruneTrailingStops(held func(symbol string) bool) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for symbol := range g.trailingStops {
		if !held(symbol) {
			delete(g.trailingStops, symbol)
			n++
		}
	}
	return n
}
