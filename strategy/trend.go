package strategy

import (
	"math"

	"github.com/bhtaylor94/Stock-data/broker"
	"github.com/bhtaylor94/Stock-data/config"
	"github.com/bhtaylor94/Stock-data/logs"
)

// TrendFollower enters in the direction of a stacked EMA trend confirmed by MACD.
type TrendFollower struct {
	base
	minStrength float64
}

func NewTrendFollower(minStrength float64) *TrendFollower {
	return &TrendFollower{
		base:        base{name: string(config.StrategyTrendFollower)},
		minStrength: minStrength,
	}
}

func (s *TrendFollower) Analyze(symbol string, _ broker.Quote, ind *Indicators) (*Signal, bool) {
	if ind == nil || ind.EMA8 == 0 || ind.EMA21 == 0 || ind.EMA50 == 0 {
		return nil, false
	}
	if ind.MACD == 0 || ind.MACDSignal == 0 || ind.ATR == 0 {
		return nil, false
	}

	up := ind.EMA8 > ind.EMA21 && ind.EMA21 > ind.EMA50 && ind.Close > ind.EMA8
	down := ind.EMA8 < ind.EMA21 && ind.EMA21 < ind.EMA50 && ind.Close < ind.EMA8

	// 5% spread between EMA8 and EMA50 is full strength.
	strength := clampUnit(math.Abs(ind.EMA8-ind.EMA50) / ind.EMA50 / 0.05)
	meta := map[string]interface{}{
		"ema8":           ind.EMA8,
		"ema21":          ind.EMA21,
		"ema50":          ind.EMA50,
		"macd":           ind.MACD,
		"trend_strength": strength,
	}

	var sig *Signal
	switch {
	case up && ind.MACD > ind.MACDSignal:
		sig = s.signal(symbol, Long, strength, ind.Close, ind.EMA21*0.98, ind.Close+ind.ATR*4.0, meta)
	case down && ind.MACD < ind.MACDSignal:
		sig = s.signal(symbol, Short, strength, ind.Close, ind.EMA21*1.02, ind.Close-ind.ATR*4.0, meta)
	default:
		return nil, false
	}
	if sig.Strength < s.minStrength {
		return nil, false
	}
	logs.Infof("[Strategy] %s signal generated for %s: %s (strength: %.2f)", s.name, symbol, sig.Direction, sig.Strength)
	return sig, true
}
