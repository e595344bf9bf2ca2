package strategy

import (
	"github.com/bhtaylor94/Stock-data/broker"
	"github.com/bhtaylor94/Stock-data/config"
	"github.com/bhtaylor94/Stock-data/logs"
)

// MomentumScalper buys oversold dips inside a short-term uptrend and sells
// overbought rips inside a downtrend, with volume confirmation.
type MomentumScalper struct {
	base
	minRSI         float64
	maxRSI         float64
	minVolumeRatio float64
}

func NewMomentumScalper() *MomentumScalper {
	return &MomentumScalper{
		base:           base{name: string(config.StrategyMomentumScalper)},
		minRSI:         30,
		maxRSI:         70,
		minVolumeRatio: 1.5,
	}
}

func (s *MomentumScalper) Analyze(symbol string, _ broker.Quote, ind *Indicators) (*Signal, bool) {
	if ind == nil || ind.RSI == 0 || ind.ATR == 0 {
		return nil, false
	}
	// An unknown volume ratio does not block the entry.
	if ind.VolumeRatio != 0 && ind.VolumeRatio < s.minVolumeRatio {
		return nil, false
	}
	if ind.EMA8 == 0 || ind.EMA21 == 0 {
		return nil, false
	}

	meta := map[string]interface{}{
		"rsi":          ind.RSI,
		"volume_ratio": ind.VolumeRatio,
		"atr":          ind.ATR,
	}
	span := s.maxRSI - s.minRSI

	var sig *Signal
	switch {
	case ind.RSI < s.minRSI && ind.EMA8 > ind.EMA21:
		sig = s.signal(symbol, Long, clampUnit((s.maxRSI-ind.RSI)/span),
			ind.Close, ind.Close-ind.ATR*1.5, ind.Close+ind.ATR*3.0, meta)
	case ind.RSI > s.maxRSI && ind.EMA8 < ind.EMA21:
		sig = s.signal(symbol, Short, clampUnit((ind.RSI-s.minRSI)/span),
			ind.Close, ind.Close+ind.ATR*1.5, ind.Close-ind.ATR*3.0, meta)
	default:
		return nil, false
	}
	logs.Infof("[Strategy] %s signal generated for %s: %s", s.name, symbol, sig.Direction)
	return sig, true
}
