package risk

import (
	"math"

	"github.com/bhtaylor94/Stock-data/config"
	"github.com/bhtaylor94/Stock-data/logs"
)

// SizeRequest carries the inputs of one sizing decision. WinRate and ATR
// are optional; zero means unknown.
type SizeRequest struct {
	Symbol          string
	Entry           float64
	Stop            float64
	AccountValue    float64
	CurrentExposure float64
	WinRate         float64
	ATR             float64
}

// kellyPayoffRatio is the assumed average win / average loss.
const kellyPayoffRatio = 2.0

// PositionSize returns the share count for an entry. Zero means skip.
func (g *Gate) PositionSize(req SizeRequest) int {
	if req.Entry <= 0 || req.AccountValue <= 0 {
		return 0
	}
	var qty int
	switch g.cfg.PositionSizingMethod {
	case config.SizingKelly:
		qty = g.kellySize(req)
	case config.SizingVolatilityAdjusted:
		qty = g.volatilitySize(req)
	default:
		qty = g.fixedFractionalSize(req)
	}
	if qty < 0 {
		qty = 0
	}
	return qty
}

func (g *Gate) availableExposure(req SizeRequest) float64 {
	return req.AccountValue*g.cfg.MaxTotalExposurePct - req.CurrentExposure
}

func sharesFor(capital, entry float64) int {
	if capital <= 0 || entry <= 0 {
		return 0
	}
	return int(math.Floor(capital / entry))
}

// fixedFractionalSize allocates max_position_size_pct of the account,
// bounded by the exposure still available. The stop distance is ignored.
func (g *Gate) fixedFractionalSize(req SizeRequest) int {
	capital := math.Min(req.AccountValue*g.cfg.MaxPositionSizePct, g.availableExposure(req))
	return sharesFor(capital, req.Entry)
}

// kellySize uses half-Kelly with a fixed payoff ratio, capped at
// max_position_size_pct. Without a win rate it falls back to fixed fractional.
func (g *Gate) kellySize(req SizeRequest) int {
	if req.WinRate <= 0 {
		return g.fixedFractionalSize(req)
	}
	w := req.WinRate
	kelly := w - (1-w)/kellyPayoffRatio
	kelly *= 0.5
	kelly = math.Max(0, math.Min(kelly, g.cfg.MaxPositionSizePct))

	capital := math.Min(req.AccountValue*kelly, g.availableExposure(req))
	qty := sharesFor(capital, req.Entry)
	logs.Debugf("[RiskGate] Kelly sizing for %s: win_rate=%.2f fraction=%.4f qty=%d", req.Symbol, w, kelly, qty)
	return qty
}

// volatilitySize risks volatility_risk_per_trade_pct of the account against
// an ATR-derived stop distance, never exceeding the fixed-fractional size.
func (g *Gate) volatilitySize(req SizeRequest) int {
	ceiling := g.fixedFractionalSize(req)
	if req.ATR <= 0 {
		return ceiling
	}
	perShareRisk := req.ATR * g.cfg.DynamicStopLossATRMultiplier
	budget := req.AccountValue * g.cfg.VolatilityRiskPerTradePct
	qty := int(math.Floor(budget / perShareRisk))
	if qty > ceiling {
		qty = ceiling
	}
	return qty
}

// ExposureCapacity is the largest share count the remaining exposure budget allows.
func (g *Gate) ExposureCapacity(entry, accountValue, currentExposure float64) int {
	return sharesFor(accountValue*g.cfg.MaxTotalExposurePct-currentExposure, entry)
}

// RecordOutcome moves the symbol's loss streak once per closed trade: a loss
// (pnl <= 0) extends it, a win resets it.
func (g *Gate) RecordOutcome(symbol string, lost bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if lost {
		g.consecutiveLosses[symbol]++
	} else {
		delete(g.consecutiveLosses, symbol)
	}
}

// MartingaleSize scales base by 2^n, where n is the symbol's loss streak
// capped at martingale_max_doublings. It does not change the streak.
func (g *Gate) MartingaleSize(symbol string, base int) int {
	if !g.cfg.EnableMartingale {
		return base
	}
	g.mu.Lock()
	n := g.consecutiveLosses[symbol]
	g.mu.Unlock()

	if n > g.cfg.MartingaleMaxDoublings {
		n = g.cfg.MartingaleMaxDoublings
	}
	if n > config.MaxMartingaleDoublings {
		n = config.MaxMartingaleDoublings
	}
	if n > 0 {
		logs.Warnf("[RiskGate] Martingale on %s: %dx after %d consecutive losses", symbol, 1<<n, n)
	}
	return base * (1 << n)
}

// ApplyMartingale records the previous trade's outcome and sizes the next
// entry in one step. The engine splits the two so that only booked trades
// move the streak.
func (g *Gate) ApplyMartingale(symbol string, base int, lostPrevious bool) int {
	if !g.cfg.EnableMartingale {
		return base
	}
	g.RecordOutcome(symbol, lostPrevious)
	return g.MartingaleSize(symbol, base)
}
