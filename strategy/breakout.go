package strategy

import (
	"github.com/bhtaylor94/Stock-data/broker"
	"github.com/bhtaylor94/Stock-data/config"
	"github.com/bhtaylor94/Stock-data/logs"
)

// VolatilityBreakout trades closes outside the Bollinger bands on heavy volume.
// The stop sits at the band midline.
type VolatilityBreakout struct {
	base
	multiplier     float64
	minVolumeRatio float64
}

func NewVolatilityBreakout(multiplier float64) *VolatilityBreakout {
	return &VolatilityBreakout{
		base:           base{name: string(config.StrategyVolatilityBreakout)},
		multiplier:     multiplier,
		minVolumeRatio: 1.5,
	}
}

func (s *VolatilityBreakout) Analyze(symbol string, _ broker.Quote, ind *Indicators) (*Signal, bool) {
	if ind == nil || ind.BollingerUpper == 0 || ind.BollingerLower == 0 {
		return nil, false
	}
	if ind.ATR == 0 || ind.VolumeRatio == 0 || ind.VolumeRatio < s.minVolumeRatio {
		return nil, false
	}

	upper, lower := ind.BollingerUpper, ind.BollingerLower
	mid := (upper + lower) / 2
	meta := map[string]interface{}{
		"bollinger_upper": upper,
		"bollinger_lower": lower,
		"atr":             ind.ATR,
		"volume_ratio":    ind.VolumeRatio,
	}

	// A 2% move through the band is full strength.
	var sig *Signal
	switch {
	case ind.Close > upper:
		strength := clampUnit((ind.Close - upper) / upper / 0.02)
		sig = s.signal(symbol, Long, strength, ind.Close, mid, ind.Close+ind.ATR*s.multiplier, meta)
	case ind.Close < lower:
		strength := clampUnit((lower - ind.Close) / lower / 0.02)
		sig = s.signal(symbol, Short, strength, ind.Close, mid, ind.Close-ind.ATR*s.multiplier, meta)
	default:
		return nil, false
	}
	logs.Infof("[Strategy] %s signal generated for %s: %s", s.name, symbol, sig.Direction)
	return sig, true
}
