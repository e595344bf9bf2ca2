// strategy/indicators.go
package strategy

import (
	"math"

	"github.com/bhtaylor94/Stock-data/broker"
)

// Indicators is the technical snapshot a strategy reads. A zero field means
// there was not enough history to compute it.
type Indicators struct {
	Symbol string  `json:"symbol"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`

	EMA8   float64 `json:"ema8,omitempty"`
	EMA21  float64 `json:"ema21,omitempty"`
	EMA50  float64 `json:"ema50,omitempty"`
	EMA200 float64 `json:"ema200,omitempty"`

	ATR            float64 `json:"atr,omitempty"`
	BollingerUpper float64 `json:"bollinger_upper,omitempty"`
	BollingerLower float64 `json:"bollinger_lower,omitempty"`

	RSI        float64 `json:"rsi,omitempty"`
	MACD       float64 `json:"macd,omitempty"`
	MACDSignal float64 `json:"macd_signal,omitempty"`

	VolumeSMA   float64 `json:"volume_sma,omitempty"`
	VolumeRatio float64 `json:"volume_ratio,omitempty"`
}

const (
	atrPeriod       = 14
	rsiPeriod       = 14
	bollingerPeriod = 20
	bollingerWidth  = 2.0
	volumePeriod    = 20
	macdFast        = 12
	macdSlow        = 26
	macdSignal      = 9
)

// CalculateIndicators computes every indicator the history supports.
// It returns false for an empty history.
func CalculateIndicators(symbol string, candles []broker.Candle) (*Indicators, bool) {
	n := len(candles)
	if n == 0 {
		return nil, false
	}
	closes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
	}
	last := candles[n-1]

	ind := &Indicators{Symbol: symbol, Close: last.Close, Volume: last.Volume}

	if n >= 8 {
		ind.EMA8 = EMA(closes, 8)
	}
	if n >= 21 {
		ind.EMA21 = EMA(closes, 21)
	}
	if n >= 50 {
		ind.EMA50 = EMA(closes, 50)
	}
	if n >= 200 {
		ind.EMA200 = EMA(closes, 200)
	}
	ind.ATR = ATR(candles, atrPeriod)
	ind.RSI = RSI(closes, rsiPeriod)
	ind.BollingerUpper, ind.BollingerLower = Bollinger(closes, bollingerPeriod, bollingerWidth)

	if n >= volumePeriod {
		var sum float64
		for _, c := range candles[n-volumePeriod:] {
			sum += c.Volume
		}
		ind.VolumeSMA = sum / volumePeriod
		if ind.VolumeSMA > 0 {
			ind.VolumeRatio = last.Volume / ind.VolumeSMA
		}
	}

	if n >= macdSlow {
		line := MACDLine(closes, macdFast, macdSlow)
		ind.MACD = line[n-1]
		if n >= macdSlow+macdSignal {
			ind.MACDSignal = EMA(line, macdSignal)
		}
	}
	return ind, true
}

// emaSeries seeds with the first value and applies alpha = 2/(span+1) to
// every following value.
func emaSeries(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// EMA returns the latest exponential moving average of values.
func EMA(values []float64, span int) float64 {
	if len(values) == 0 {
		return 0
	}
	s := emaSeries(values, span)
	return s[len(s)-1]
}

// MACDLine is EMA(fast) minus EMA(slow) at every bar.
func MACDLine(closes []float64, fast, slow int) []float64 {
	f := emaSeries(closes, fast)
	s := emaSeries(closes, slow)
	out := make([]float64, len(closes))
	for i := range closes {
		out[i] = f[i] - s[i]
	}
	return out
}

// ATR is the simple mean of the last period true ranges. The first bar's
// true range is its high-low span.
func ATR(candles []broker.Candle, period int) float64 {
	n := len(candles)
	if n < period {
		return 0
	}
	var sum float64
	for i := n - period; i < n; i++ {
		c := candles[i]
		tr := c.High - c.Low
		if i > 0 {
			prev := candles[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev)))
		}
		sum += tr
	}
	return sum / float64(period)
}

// RSI uses simple averages of gains and losses over the last period changes.
// It needs period+1 closes; with no movement at all it is undefined (zero).
func RSI(closes []float64, period int) float64 {
	n := len(closes)
	if n < period+1 {
		return 0
	}
	var gain, loss float64
	for i := n - period; i < n; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		if gain == 0 {
			return 0
		}
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

// Bollinger returns SMA ± width × sample standard deviation of the last period closes.
func Bollinger(closes []float64, period int, width float64) (upper, lower float64) {
	n := len(closes)
	if n < period || period < 2 {
		return 0, 0
	}
	window := closes[n-period:]
	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(period)
	var ss float64
	for _, v := range window {
		ss += (v - mean) * (v - mean)
	}
	std := math.Sqrt(ss / float64(period-1))
	return mean + width*std, mean - width*std
}
