package risk

import (
	"github.com/bhtaylor94/Stock-data/config"
	"github.com/bhtaylor94/Stock-data/ledger"
	"github.com/bhtaylor94/Stock-data/logs"
)

// ExitLevel is one rung of a tiered take-profit ladder.
type ExitLevel struct {
	Fraction float64 `json:"fraction"`
	Price    float64 `json:"price"`
}

// StopLoss places the protective stop. Dynamic mode uses ATR and falls back
// to the static percentage when ATR is missing or would put the stop at or
// below zero.
func (g *Gate) StopLoss(entry float64, isLong bool, atr float64) float64 {
	if g.cfg.StopLossType == config.StopLossDynamic && atr > 0 {
		dist := atr * g.cfg.DynamicStopLossATRMultiplier
		if isLong && entry-dist > 0 {
			return entry - dist
		}
		if !isLong {
			return entry + dist
		}
	}
	if isLong {
		return entry * (1 - g.cfg.StaticStopLossPct)
	}
	return entry * (1 + g.cfg.StaticStopLossPct)
}

// TakeProfit places the single profit target. Tiered mode uses the static
// target for the whole position; TieredExits describes the ladder.
func (g *Gate) TakeProfit(entry float64, isLong bool, atr float64) float64 {
	if g.cfg.TakeProfitType == config.TakeProfitDynamic && atr > 0 {
		dist := atr * g.cfg.DynamicTPVolatilityMultiplier
		if isLong {
			return entry + dist
		}
		if entry-dist > 0 {
			return entry - dist
		}
	}
	if isLong {
		return entry * (1 + g.cfg.StaticTakeProfitPct)
	}
	return entry * (1 - g.cfg.StaticTakeProfitPct)
}

// TieredExits expands the configured tiers into absolute prices.
func (g *Gate) TieredExits(entry float64, isLong bool) []ExitLevel {
	levels := make([]ExitLevel, 0, len(g.cfg.TieredExits))
	for _, tier := range g.cfg.TieredExits {
		price := entry * (1 + tier.ProfitTargetPct)
		if !isLong {
			price = entry * (1 - tier.ProfitTargetPct)
		}
		levels = append(levels, ExitLevel{Fraction: tier.Percentage, Price: price})
	}
	return levels
}

// UpdateTrailingStop ratchets the trailing stop for symbol. It activates once
// the unrealised gain reaches trailing_stop_activation_pct and afterwards only
// tightens. The bool is true only when the stored value changed.
func (g *Gate) UpdateTrailingStop(symbol string, price, entry float64, isLong bool) (float64, bool) {
	if !g.cfg.TrailingStopEnabled || entry <= 0 || price <= 0 {
		return 0, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	current, exists := g.trailingStops[symbol]

	gain := (price - entry) / entry
	if !isLong {
		gain = (entry - price) / entry
	}
	if gain < g.cfg.TrailingStopActivationPct {
		return current, false
	}

	var candidate float64
	if isLong {
		candidate = price * (1 - g.cfg.TrailingStopDistancePct)
		if exists && candidate <= current {
			return current, false
		}
	} else {
		candidate = price * (1 + g.cfg.TrailingStopDistancePct)
		if exists && candidate >= current {
			return current, false
		}
	}
	g.trailingStops[symbol] = candidate
	return candidate, true
}

// TrailingStop returns the stored trailing stop, if any.
func (g *Gate) TrailingStop(symbol string) (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.trailingStops[symbol]
	return v, ok
}

// effectiveStop is the more protective of the static stop and the trailing stop.
func effectiveStop(p ledger.Position) (float64, ExitReason) {
	stop, reason := p.StopLoss, ReasonStopLoss
	if p.TrailingStop <= 0 {
		return stop, reason
	}
	if stop <= 0 ||
		(p.IsLong() && p.TrailingStop > stop) ||
		(!p.IsLong() && p.TrailingStop < stop) {
		return p.TrailingStop, ReasonTrailingStop
	}
	return stop, reason
}

// EvaluateExit decides what the monitor should do with one position at
// price. Precedence: stop (static or trailing), then target, then a manual
// close request, then trailing-stop maintenance.
func (g *Gate) EvaluateExit(p ledger.Position, price float64) Action {
	if price <= 0 {
		return &NoOpAction{}
	}

	stop, reason := effectiveStop(p)
	if p.IsLong() {
		if stop > 0 && price <= stop {
			return &CloseAction{Symbol: p.Symbol, Reason: reason, Price: price, Trigger: stop}
		}
		if p.TakeProfit > 0 && price >= p.TakeProfit {
			return &CloseAction{Symbol: p.Symbol, Reason: ReasonTakeProfit, Price: price, Trigger: p.TakeProfit}
		}
	} else {
		if stop > 0 && price >= stop {
			return &CloseAction{Symbol: p.Symbol, Reason: reason, Price: price, Trigger: stop}
		}
		if p.TakeProfit > 0 && price <= p.TakeProfit {
			return &CloseAction{Symbol: p.Symbol, Reason: ReasonTakeProfit, Price: price, Trigger: p.TakeProfit}
		}
	}

	if p.CloseRequested {
		return &CloseAction{Symbol: p.Symbol, Reason: ReasonManual, Price: price}
	}

	if newStop, changed := g.UpdateTrailingStop(p.Symbol, price, p.EntryPrice, p.IsLong()); changed {
		logs.Debugf("[RiskGate] Trailing stop for %s moved to %.4f", p.Symbol, newStop)
		return &TrailingStopUpdate{Symbol: p.Symbol, NewStop: newStop, Price: price}
	}
	return &NoOpAction{}
}
