package config

import "math"

// SizingMethod selects how the risk gate converts capital into share count.
type SizingMethod string

const (
	SizingFixedFractional    SizingMethod = "fixed_fractional"
	SizingKelly              SizingMethod = "kelly_criterion"
	SizingVolatilityAdjusted SizingMethod = "volatility_adjusted"
)

// StopLossMode selects static percentage or ATR-based stops.
type StopLossMode string

const (
	StopLossStatic  StopLossMode = "static"
	StopLossDynamic StopLossMode = "dynamic"
)

// TakeProfitMode selects how profit targets are placed.
type TakeProfitMode string

const (
	TakeProfitStatic  TakeProfitMode = "static"
	TakeProfitDynamic TakeProfitMode = "dynamic"
	TakeProfitTiered  TakeProfitMode = "tiered"
)

// RiskProfile names a preset bundle of risk parameters.
type RiskProfile string

const (
	ProfileConservative RiskProfile = "conservative"
	ProfileModerate     RiskProfile = "moderate"
	ProfileAggressive   RiskProfile = "aggressive"
)

// MaxMartingaleDoublings bounds martingale_max_doublings. Ten doublings
// already multiply the base size by 1024.
const MaxMartingaleDoublings = 10

// ExitTier closes Percentage of the position once price moves
// ProfitTargetPct in the position's favour.
type ExitTier struct {
	Percentage      float64 `yaml:"percentage" json:"percentage"`
	ProfitTargetPct float64 `yaml:"profit_target_pct" json:"profit_target_pct"`
}

// RiskConfig is read once at startup and never mutated afterwards.
type RiskConfig struct {
	Profile RiskProfile `yaml:"risk_profile"`

	MaxPositionSizePct        float64      `yaml:"max_position_size_pct"`
	MaxTotalExposurePct       float64      `yaml:"max_total_exposure_pct"`
	PositionSizingMethod      SizingMethod `yaml:"position_sizing_method"`
	VolatilityRiskPerTradePct float64      `yaml:"volatility_risk_per_trade_pct"`

	StopLossType                 StopLossMode `yaml:"stop_loss_type"`
	StaticStopLossPct            float64      `yaml:"static_stop_loss_pct"`
	DynamicStopLossATRMultiplier float64      `yaml:"dynamic_stop_loss_atr_multiplier"`

	TrailingStopEnabled       bool    `yaml:"trailing_stop_enabled"`
	TrailingStopActivationPct float64 `yaml:"trailing_stop_activation_pct"`
	TrailingStopDistancePct   float64 `yaml:"trailing_stop_distance_pct"`

	TakeProfitType                TakeProfitMode `yaml:"take_profit_type"`
	StaticTakeProfitPct           float64        `yaml:"static_take_profit_pct"`
	DynamicTPVolatilityMultiplier float64        `yaml:"dynamic_tp_volatility_multiplier"`
	TieredExits                   []ExitTier     `yaml:"tiered_exits"`

	MaxDailyLossPct float64 `yaml:"max_daily_loss_pct"`
	MaxDailyTrades  int     `yaml:"max_daily_trades"`

	EnableMartingale       bool    `yaml:"enable_martingale"`
	MartingaleMaxDoublings int     `yaml:"martingale_max_doublings"`
	MartingaleMinWinRate   float64 `yaml:"martingale_min_win_rate"`
}

// DefaultRiskConfig returns the moderate preset.
func DefaultRiskConfig() *RiskConfig {
	return &RiskConfig{
		Profile:                       ProfileModerate,
		MaxPositionSizePct:            0.10,
		MaxTotalExposurePct:           0.50,
		PositionSizingMethod:          SizingKelly,
		VolatilityRiskPerTradePct:     0.01,
		StopLossType:                  StopLossDynamic,
		StaticStopLossPct:             0.02,
		DynamicStopLossATRMultiplier:  2.0,
		TrailingStopEnabled:           true,
		TrailingStopActivationPct:     0.015,
		TrailingStopDistancePct:       0.01,
		TakeProfitType:                TakeProfitTiered,
		StaticTakeProfitPct:           0.04,
		DynamicTPVolatilityMultiplier: 3.0,
		TieredExits: []ExitTier{
			{Percentage: 0.33, ProfitTargetPct: 0.02},
			{Percentage: 0.33, ProfitTargetPct: 0.03},
			{Percentage: 0.34, ProfitTargetPct: 0.05},
		},
		MaxDailyLossPct:        0.05,
		MaxDailyTrades:         20,
		EnableMartingale:       false,
		MartingaleMaxDoublings: 2,
		MartingaleMinWinRate:   0.70,
	}
}

// ProfileRiskConfig returns the preset for profile on top of the defaults.
func ProfileRiskConfig(profile RiskProfile) (*RiskConfig, error) {
	rc := DefaultRiskConfig()
	rc.Profile = profile
	switch profile {
	case ProfileConservative:
		rc.MaxPositionSizePct = 0.05
		rc.MaxTotalExposurePct = 0.30
		rc.StaticStopLossPct = 0.015
		rc.StaticTakeProfitPct = 0.03
		rc.EnableMartingale = false
		rc.MaxDailyLossPct = 0.03
	case ProfileModerate:
	case ProfileAggressive:
		rc.MaxPositionSizePct = 0.15
		rc.MaxTotalExposurePct = 0.70
		rc.StaticStopLossPct = 0.03
		rc.StaticTakeProfitPct = 0.06
		rc.EnableMartingale = true
		rc.MaxDailyLossPct = 0.08
	default:
		return nil, invalid("Config error: unknown risk_profile %q", profile)
	}
	return rc, nil
}

// Validate enforces the hard limits on the risk parameters.
func (r *RiskConfig) Validate() error {
	if r.MaxPositionSizePct <= 0 {
		return invalid("Config error: max_position_size_pct must be positive")
	}
	if r.MaxPositionSizePct > 0.25 {
		return invalid("Config error: max_position_size_pct (%.2f) should not exceed 25%%", r.MaxPositionSizePct)
	}
	if r.MaxTotalExposurePct <= 0 {
		return invalid("Config error: max_total_exposure_pct must be positive")
	}
	if r.MaxTotalExposurePct > 1.0 {
		return invalid("Config error: max_total_exposure_pct (%.2f) should not exceed 100%%", r.MaxTotalExposurePct)
	}

	switch r.PositionSizingMethod {
	case SizingFixedFractional, SizingKelly:
	case SizingVolatilityAdjusted:
		if r.VolatilityRiskPerTradePct <= 0 {
			return invalid("Config error: volatility_risk_per_trade_pct must be positive for volatility_adjusted sizing")
		}
	default:
		return invalid("Config error: unknown position_sizing_method %q", r.PositionSizingMethod)
	}

	switch r.StopLossType {
	case StopLossStatic, StopLossDynamic:
	default:
		return invalid("Config error: unknown stop_loss_type %q", r.StopLossType)
	}
	if r.StaticStopLossPct <= 0 || r.StaticStopLossPct >= 1 {
		return invalid("Config error: static_stop_loss_pct must be in (0, 1)")
	}
	if r.DynamicStopLossATRMultiplier <= 0 {
		return invalid("Config error: dynamic_stop_loss_atr_multiplier must be positive")
	}

	switch r.TakeProfitType {
	case TakeProfitStatic, TakeProfitDynamic, TakeProfitTiered:
	default:
		return invalid("Config error: unknown take_profit_type %q", r.TakeProfitType)
	}
	if r.StaticTakeProfitPct <= 0 {
		return invalid("Config error: static_take_profit_pct must be positive")
	}
	if r.DynamicTPVolatilityMultiplier <= 0 {
		return invalid("Config error: dynamic_tp_volatility_multiplier must be positive")
	}

	var total float64
	for i, tier := range r.TieredExits {
		if tier.Percentage <= 0 || tier.Percentage > 1 {
			return invalid("Config error: tiered_exits[%d].percentage must be in (0, 1]", i)
		}
		if tier.ProfitTargetPct <= 0 {
			return invalid("Config error: tiered_exits[%d].profit_target_pct must be positive", i)
		}
		total += tier.Percentage
	}
	// Tolerate float noise from values like 0.33 + 0.33 + 0.34.
	if total > 1.0+1e-9 {
		return invalid("Config error: tiered_exits percentages total %.4f exceeds 1.0", total)
	}
	if r.TakeProfitType == TakeProfitTiered && len(r.TieredExits) == 0 {
		return invalid("Critical config missing: tiered_exits must be provided when take_profit_type is 'tiered'")
	}

	if r.TrailingStopEnabled {
		if r.TrailingStopDistancePct <= 0 || r.TrailingStopDistancePct >= 1 {
			return invalid("Config error: trailing_stop_distance_pct must be in (0, 1)")
		}
		if r.TrailingStopActivationPct < 0 {
			return invalid("Config error: trailing_stop_activation_pct cannot be negative")
		}
	}

	if r.MaxDailyLossPct <= 0 || r.MaxDailyLossPct >= 1 {
		return invalid("Config error: max_daily_loss_pct must be in (0, 1)")
	}
	if r.MaxDailyTrades <= 0 {
		return invalid("Config error: max_daily_trades must be positive")
	}

	if r.EnableMartingale {
		if r.MartingaleMaxDoublings < 0 || r.MartingaleMaxDoublings > MaxMartingaleDoublings {
			return invalid("Config error: martingale_max_doublings must be in [0, %d], got %d",
				MaxMartingaleDoublings, r.MartingaleMaxDoublings)
		}
		if r.MartingaleMinWinRate < 0 || r.MartingaleMinWinRate > 1 || math.IsNaN(r.MartingaleMinWinRate) {
			return invalid("Config error: martingale_min_win_rate must be in [0, 1]")
		}
	}
	return nil
}
