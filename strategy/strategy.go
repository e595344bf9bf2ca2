// Package strategy turns price history into trade signals. Each strategy is
// a SignalSource; the engine asks them in configured order and takes the
// first signal.
package strategy

import (
	"fmt"
	"time"

	"github.com/bhtaylor94/Stock-data/broker"
	"github.com/bhtaylor94/Stock-data/config"
	"github.com/bhtaylor94/Stock-data/logs"
)

type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Signal is a proposed entry. Stop and target may be zero when the strategy
// leaves them to the risk gate.
type Signal struct {
	Symbol     string                 `json:"symbol"`
	Direction  Direction              `json:"direction"`
	Strength   float64                `json:"strength"`
	EntryPrice float64                `json:"entry_price"`
	StopLoss   float64                `json:"stop_loss"`
	TakeProfit float64                `json:"take_profit"`
	Strategy   string                 `json:"strategy"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

func (s *Signal) IsLong() bool { return s.Direction == Long }

// SignalSource is one strategy.
type SignalSource interface {
	Name() string
	CalculateIndicators(symbol string, candles []broker.Candle) (*Indicators, bool)
	Analyze(symbol string, quote broker.Quote, ind *Indicators) (*Signal, bool)
}

// New builds the strategy for kind.
func New(kind config.StrategyKind, cfg *config.StrategyConfig) (SignalSource, error) {
	switch kind {
	case config.StrategyMomentumScalper:
		return NewMomentumScalper(), nil
	case config.StrategyTrendFollower:
		return NewTrendFollower(cfg.TrendFollowerMinTrendStrength), nil
	case config.StrategyVolatilityBreakout:
		return NewVolatilityBreakout(cfg.VolatilityBreakoutMultiplier), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", kind)
	}
}

// NewFromConfig builds every active strategy in configured order.
func NewFromConfig(cfg *config.StrategyConfig) ([]SignalSource, error) {
	sources := make([]SignalSource, 0, len(cfg.ActiveStrategies))
	for _, kind := range cfg.ActiveStrategies {
		s, err := New(kind, cfg)
		if err != nil {
			return nil, err
		}
		logs.Infof("[Strategy] '%s' initialized", s.Name())
		sources = append(sources, s)
	}
	return sources, nil
}

// base carries the indicator step shared by all strategies.
type base struct {
	name string
}

func (b base) Name() string { return b.name }

func (b base) CalculateIndicators(symbol string, candles []broker.Candle) (*Indicators, bool) {
	return CalculateIndicators(symbol, candles)
}

func (b base) signal(symbol string, dir Direction, strength, entry, stop, target float64, meta map[string]interface{}) *Signal {
	return &Signal{
		Symbol:     symbol,
		Direction:  dir,
		Strength:   strength,
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: target,
		Strategy:   b.name,
		Timestamp:  time.Now(),
		Metadata:   meta,
	}
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
