package orders

import "fmt"

// ValidationError reports a malformed order payload. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order: %s %s", e.Field, e.Reason)
}

// Validate checks the required fields of o and of every child order.
func Validate(o Order) error {
	return validate(o, "")
}

func validate(o Order, prefix string) error {
	switch {
	case o.OrderType == "":
		return &ValidationError{Field: prefix + "orderType", Reason: "is required"}
	case o.Session == "":
		return &ValidationError{Field: prefix + "session", Reason: "is required"}
	case o.Duration == "":
		return &ValidationError{Field: prefix + "duration", Reason: "is required"}
	case o.OrderStrategyType == "":
		return &ValidationError{Field: prefix + "orderStrategyType", Reason: "is required"}
	case len(o.OrderLegCollection) == 0:
		return &ValidationError{Field: prefix + "orderLegCollection", Reason: "cannot be empty"}
	}

	for i, leg := range o.OrderLegCollection {
		field := fmt.Sprintf("%sorderLegCollection[%d]", prefix, i)
		switch {
		case leg.Instruction == "":
			return &ValidationError{Field: field + ".instruction", Reason: "is required"}
		case leg.Quantity <= 0:
			return &ValidationError{Field: field + ".quantity", Reason: "must be positive"}
		case leg.Instrument == nil:
			return &ValidationError{Field: field + ".instrument", Reason: "is required"}
		case leg.Instrument.Symbol == "":
			return &ValidationError{Field: field + ".instrument.symbol", Reason: "is required"}
		case leg.Instrument.AssetType == "":
			return &ValidationError{Field: field + ".instrument.assetType", Reason: "is required"}
		}
	}

	if o.OrderType == Limit && o.Price == nil {
		return &ValidationError{Field: prefix + "price", Reason: "is required for LIMIT orders"}
	}
	if (o.OrderType == Stop || o.OrderType == StopLimit) && o.StopPrice == nil {
		return &ValidationError{Field: prefix + "stopPrice", Reason: "is required for stop orders"}
	}

	for i, child := range o.ChildOrderStrategies {
		if err := validate(child, fmt.Sprintf("%schildOrderStrategies[%d].", prefix, i)); err != nil {
			return err
		}
	}
	return nil
}
