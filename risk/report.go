package risk

import (
	"math"

	"github.com/bhtaylor94/Stock-data/config"
	"github.com/bhtaylor94/Stock-data/ledger"
)

// PositionRisk describes one open position at a given price.
type PositionRisk struct {
	Symbol           string  `json:"symbol"`
	Quantity         int     `json:"quantity"`
	EntryPrice       float64 `json:"entry_price"`
	CurrentPrice     float64 `json:"current_price"`
	PositionValue    float64 `json:"position_value"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	UnrealizedPnLPct float64 `json:"unrealized_pnl_pct"`
	StopLoss         float64 `json:"stop_loss,omitempty"`
	TakeProfit       float64 `json:"take_profit,omitempty"`
	TrailingStop     float64 `json:"trailing_stop,omitempty"`
	RiskToStop       float64 `json:"risk_to_stop"`

	ExitLadder []ExitLevel `json:"exit_ladder,omitempty"`
}

// AccountRisk aggregates position risk against the account.
type AccountRisk struct {
	TotalValue         float64 `json:"total_value"`
	BuyingPower        float64 `json:"buying_power"`
	TotalExposure      float64 `json:"total_exposure"`
	ExposurePct        float64 `json:"exposure_pct"`
	DailyPnL           float64 `json:"daily_pnl"`
	DailyPnLPct        float64 `json:"daily_pnl_pct"`
	NumPositions       int     `json:"num_positions"`
	NumTradesToday     int     `json:"num_trades_today"`
	LargestPositionPct float64 `json:"largest_position_pct"`
	OpenRisk           float64 `json:"open_risk"`

	Positions []PositionRisk `json:"positions"`
}

// PositionRisk computes metrics for p at price. A non-positive price falls
// back to the entry price.
func (g *Gate) PositionRisk(p ledger.Position, price float64) PositionRisk {
	if price <= 0 {
		price = p.EntryPrice
	}
	stop, _ := effectiveStop(p)
	var riskToStop float64
	if stop > 0 {
		riskToStop = math.Max(0, p.PnL(price)-p.PnL(stop))
	}
	var ladder []ExitLevel
	if g.cfg.TakeProfitType == config.TakeProfitTiered {
		ladder = g.TieredExits(p.EntryPrice, p.IsLong())
	}
	return PositionRisk{
		Symbol:           p.Symbol,
		Quantity:         p.Quantity,
		EntryPrice:       p.EntryPrice,
		CurrentPrice:     price,
		PositionValue:    math.Abs(float64(p.Quantity)) * price,
		UnrealizedPnL:    p.PnL(price),
		UnrealizedPnLPct: p.PnLPct(price) * 100,
		StopLoss:         p.StopLoss,
		TakeProfit:       p.TakeProfit,
		TrailingStop:     p.TrailingStop,
		RiskToStop:       riskToStop,
		ExitLadder:       ladder,
	}
}

// AccountRisk summarises positions against the account. Percentages are 0-100.
func (g *Gate) AccountRisk(accountValue, buyingPower float64, positions []PositionRisk) AccountRisk {
	daily := g.Daily()
	ar := AccountRisk{
		TotalValue:     accountValue,
		BuyingPower:    buyingPower,
		DailyPnL:       daily.PnL,
		NumPositions:   len(positions),
		NumTradesToday: daily.Trades,
		Positions:      positions,
	}
	for _, p := range positions {
		ar.TotalExposure += p.PositionValue
		ar.OpenRisk += p.RiskToStop
		if accountValue > 0 {
			ar.LargestPositionPct = math.Max(ar.LargestPositionPct, p.PositionValue/accountValue*100)
		}
	}
	if accountValue > 0 {
		ar.ExposurePct = ar.TotalExposure / accountValue * 100
		ar.DailyPnLPct = daily.PnL / accountValue * 100
	}
	return ar
}
