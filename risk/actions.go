// risk/actions.go
package risk

import "fmt"

// Action is what the gate asks the monitor loop to do with a position.
type Action interface {
	Description() string
}

// ExitReason labels why a position was closed.
type ExitReason string

const (
	ReasonStopLoss     ExitReason = "stop_loss"
	ReasonTrailingStop ExitReason = "trailing_stop"
	ReasonTakeProfit   ExitReason = "take_profit"
	ReasonManual       ExitReason = "manual"
)

// NoOpAction represents that no action should be taken.
type NoOpAction struct{}

func (a *NoOpAction) Description() string { return "No operation." }

// CloseAction exits the whole position at market.
type CloseAction struct {
	Symbol  string
	Reason  ExitReason
	Price   float64
	Trigger float64
}

func (a *CloseAction) Description() string {
	if a.Trigger > 0 {
		return fmt.Sprintf("Close %s (%s): price %.4f crossed %.4f", a.Symbol, a.Reason, a.Price, a.Trigger)
	}
	return fmt.Sprintf("Close %s (%s) at %.4f", a.Symbol, a.Reason, a.Price)
}

// TrailingStopUpdate persists a tightened trailing stop on the position.
type TrailingStopUpdate struct {
	Symbol  string
	NewStop float64
	Price   float64
}

func (a *TrailingStopUpdate) Description() string {
	return fmt.Sprintf("Trail %s stop to %.4f (price %.4f)", a.Symbol, a.NewStop, a.Price)
}
