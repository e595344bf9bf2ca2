package profit

import (
	"sort"
	"sync"
)

// StrategyStats is the running record of one strategy.
type StrategyStats struct {
	Signals  int     `json:"signals"`
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	TotalPnL float64 `json:"total_pnl"`
}

// WinRate is wins over closed trades, zero before the first trade.
func (s StrategyStats) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}

// Totals aggregates every strategy.
type Totals struct {
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	TotalPnL float64 `json:"total_pnl"`
	WinRate  float64 `json:"win_rate"`
}

// Accountant tracks per-strategy performance and the last result per symbol.
// Win rates feed Kelly sizing; the per-symbol result feeds martingale.
type Accountant struct {
	mu         sync.Mutex
	strategies map[string]*StrategyStats
	lastLoss   map[string]bool
}

// NewAccountant creates an empty accountant.
func NewAccountant() *Accountant {
	return &Accountant{
		strategies: make(map[string]*StrategyStats),
		lastLoss:   make(map[string]bool),
	}
}

func (a *Accountant) statsLocked(strategy string) *StrategyStats {
	s, ok := a.strategies[strategy]
	if !ok {
		s = &StrategyStats{}
		a.strategies[strategy] = s
	}
	return s
}

// RecordSignal counts a signal produced by strategy.
func (a *Accountant) RecordSignal(strategy string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statsLocked(strategy).Signals++
}

// RecordTrade books a closed trade. Breakeven counts as a loss.
func (a *Accountant) RecordTrade(strategy, symbol string, pnl float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.statsLocked(strategy)
	s.Trades++
	s.TotalPnL += pnl
	if pnl > 0 {
		s.Wins++
	} else {
		s.Losses++
	}
	a.lastLoss[symbol] = pnl <= 0
}

// WinRate returns the strategy's win rate, zero when unknown.
func (a *Accountant) WinRate(strategy string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.strategies[strategy]
	if !ok {
		return 0
	}
	return s.WinRate()
}

// LostLast reports whether the most recent closed trade on symbol lost money.
func (a *Accountant) LostLast(symbol string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastLoss[symbol]
}

// Stats returns a copy of every strategy's record.
func (a *Accountant) Stats() map[string]StrategyStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]StrategyStats, len(a.strategies))
	for name, s := range a.strategies {
		out[name] = *s
	}
	return out
}

// Totals sums all strategies.
func (a *Accountant) Totals() Totals {
	stats := a.Stats()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	var t Totals
	for _, name := range names {
		s := stats[name]
		t.Trades += s.Trades
		t.Wins += s.Wins
		t.Losses += s.Losses
		t.TotalPnL += s.TotalPnL
	}
	if t.Trades > 0 {
		t.WinRate = float64(t.Wins) / float64(t.Trades)
	}
	return t
}

// Restore recovers the statistics from persistent state.
func (a *Accountant) Restore(stats map[string]StrategyStats, lastLoss map[string]bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.strategies = make(map[string]*StrategyStats, len(stats))
	for name, s := range stats {
		s := s
		a.strategies[name] = &s
	}
	a.lastLoss = make(map[string]bool, len(lastLoss))
	for sym, v := range lastLoss {
		a.lastLoss[sym] = v
	}
}

// LastResults copies the per-symbol last-trade outcomes for persistence.
func (a *Accountant) LastResults() map[string]bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]bool, len(a.lastLoss))
	for sym, v := range a.lastLoss {
		out[sym] = v
	}
	return out
}
