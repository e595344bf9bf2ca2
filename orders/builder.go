// Package orders builds broker order payloads. Builders are pure; Validate
// checks the field contract before anything is submitted.
package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderType string

const (
	Market       OrderType = "MARKET"
	Limit        OrderType = "LIMIT"
	Stop         OrderType = "STOP"
	StopLimit    OrderType = "STOP_LIMIT"
	TrailingStop OrderType = "TRAILING_STOP"
)

type Duration string

const (
	Day            Duration = "DAY"
	GoodTillCancel Duration = "GOOD_TILL_CANCEL"
	FillOrKill     Duration = "FILL_OR_KILL"
)

type Instruction string

const (
	Buy         Instruction = "BUY"
	Sell        Instruction = "SELL"
	BuyToCover  Instruction = "BUY_TO_COVER"
	SellShort   Instruction = "SELL_SHORT"
	BuyToOpen   Instruction = "BUY_TO_OPEN"
	BuyToClose  Instruction = "BUY_TO_CLOSE"
	SellToOpen  Instruction = "SELL_TO_OPEN"
	SellToClose Instruction = "SELL_TO_CLOSE"
)

// IsBuy reports whether the instruction adds long exposure or covers a short.
func (i Instruction) IsBuy() bool {
	switch i {
	case Buy, BuyToCover, BuyToOpen, BuyToClose:
		return true
	}
	return false
}

type AssetType string

const (
	Equity AssetType = "EQUITY"
	Option AssetType = "OPTION"
)

type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// TrailType selects how a trailing-stop offset is interpreted.
type TrailType string

const (
	TrailPercent TrailType = "PERCENTAGE"
	TrailAmount  TrailType = "AMOUNT"
)

const (
	sessionNormal   = "NORMAL"
	strategySingle  = "SINGLE"
	strategyTrigger = "TRIGGER"
)

type Instrument struct {
	Symbol    string    `json:"symbol"`
	AssetType AssetType `json:"assetType"`
}

type Leg struct {
	Instruction Instruction `json:"instruction"`
	Quantity    int         `json:"quantity"`
	Instrument  *Instrument `json:"instrument"`
}

// Order is the broker's order payload. Optional prices are pointers so an
// unset price is omitted from JSON instead of sent as zero.
type Order struct {
	OrderType            OrderType `json:"orderType"`
	Session              string    `json:"session"`
	Duration             Duration  `json:"duration"`
	OrderStrategyType    string    `json:"orderStrategyType"`
	Price                *float64  `json:"price,omitempty"`
	StopPrice            *float64  `json:"stopPrice,omitempty"`
	StopPriceLinkBasis   string    `json:"stopPriceLinkBasis,omitempty"`
	StopPriceLinkType    string    `json:"stopPriceLinkType,omitempty"`
	StopPriceOffset      *float64  `json:"stopPriceOffset,omitempty"`
	OrderLegCollection   []Leg     `json:"orderLegCollection"`
	ChildOrderStrategies []Order   `json:"childOrderStrategies,omitempty"`
}

// FirstLeg returns the first leg, or false for an order without legs.
func (o Order) FirstLeg() (Leg, bool) {
	if len(o.OrderLegCollection) == 0 {
		return Leg{}, false
	}
	return o.OrderLegCollection[0], true
}

// RoundPrice rounds to cents.
func RoundPrice(p float64) float64 {
	return decimal.NewFromFloat(p).Round(2).InexactFloat64()
}

func cents(p float64) *float64 {
	v := RoundPrice(p)
	return &v
}

func singleLeg(symbol string, qty int, instr Instruction, asset AssetType) []Leg {
	return []Leg{{
		Instruction: instr,
		Quantity:    qty,
		Instrument:  &Instrument{Symbol: symbol, AssetType: asset},
	}}
}

func buildSingle(symbol string, qty int, instr Instruction, asset AssetType, typ OrderType, dur Duration, price, stopPrice float64) Order {
	o := Order{
		OrderType:          typ,
		Session:            sessionNormal,
		Duration:           dur,
		OrderStrategyType:  strategySingle,
		OrderLegCollection: singleLeg(symbol, qty, instr, asset),
	}
	if typ == Limit && price > 0 {
		o.Price = cents(price)
	}
	if (typ == Stop || typ == StopLimit) && stopPrice > 0 {
		o.StopPrice = cents(stopPrice)
		if typ == StopLimit && price > 0 {
			o.Price = cents(price)
		}
	}
	return o
}

// EquityOrder builds a single-leg stock order. Zero price or stopPrice means unset.
func EquityOrder(symbol string, qty int, instr Instruction, typ OrderType, dur Duration, price, stopPrice float64) Order {
	return buildSingle(symbol, qty, instr, Equity, typ, dur, price, stopPrice)
}

// OptionOrder builds a single-leg option order for a formatted option symbol.
func OptionOrder(optionSymbol string, qty int, instr Instruction, typ OrderType, dur Duration, price, stopPrice float64) Order {
	return buildSingle(optionSymbol, qty, instr, Option, typ, dur, price, stopPrice)
}

// EntryExitInstructions returns the opening and closing instructions for a direction.
func EntryExitInstructions(asset AssetType, isLong bool) (entry, exit Instruction) {
	if asset == Option {
		if isLong {
			return BuyToOpen, SellToClose
		}
		return SellToOpen, BuyToClose
	}
	if isLong {
		return Buy, Sell
	}
	return SellShort, BuyToCover
}

// BracketOrder is a limit entry that, once filled, triggers a GTC stop and a
// GTC limit target.
func BracketOrder(symbol string, qty int, entry, stopLoss, takeProfit float64, asset AssetType, isLong bool) Order {
	entryInstr, exitInstr := EntryExitInstructions(asset, isLong)
	return Order{
		OrderType:          Limit,
		Session:            sessionNormal,
		Duration:           Day,
		OrderStrategyType:  strategyTrigger,
		Price:              cents(entry),
		OrderLegCollection: singleLeg(symbol, qty, entryInstr, asset),
		ChildOrderStrategies: []Order{
			{
				OrderType:          Stop,
				Session:            sessionNormal,
				Duration:           GoodTillCancel,
				OrderStrategyType:  strategySingle,
				StopPrice:          cents(stopLoss),
				OrderLegCollection: singleLeg(symbol, qty, exitInstr, asset),
			},
			{
				OrderType:          Limit,
				Session:            sessionNormal,
				Duration:           GoodTillCancel,
				OrderStrategyType:  strategySingle,
				Price:              cents(takeProfit),
				OrderLegCollection: singleLeg(symbol, qty, exitInstr, asset),
			},
		},
	}
}

// TrailingStopOrder trails the bid by a percentage (2.0 means 2%) or a dollar amount.
func TrailingStopOrder(symbol string, qty int, instr Instruction, trail TrailType, value float64, asset AssetType) Order {
	linkType := "VALUE"
	if trail == TrailPercent {
		linkType = "PERCENT"
	}
	offset := value
	return Order{
		OrderType:          TrailingStop,
		Session:            sessionNormal,
		Duration:           GoodTillCancel,
		OrderStrategyType:  strategySingle,
		StopPriceLinkBasis: "BID",
		StopPriceLinkType:  linkType,
		StopPriceOffset:    &offset,
		OrderLegCollection: singleLeg(symbol, qty, instr, asset),
	}
}

// SpreadLeg is one option leg of a multi-leg order.
type SpreadLeg struct {
	Symbol      string
	Quantity    int
	Instruction Instruction
}

// OptionSpread builds a multi-leg option order. For limit orders netPrice is
// the net debit (positive) or credit (negative); the payload carries its magnitude.
func OptionSpread(legs []SpreadLeg, typ OrderType, dur Duration, netPrice *float64) Order {
	o := Order{
		OrderType:          typ,
		Session:            sessionNormal,
		Duration:           dur,
		OrderStrategyType:  strategySingle,
		OrderLegCollection: make([]Leg, 0, len(legs)),
	}
	for _, l := range legs {
		o.OrderLegCollection = append(o.OrderLegCollection, Leg{
			Instruction: l.Instruction,
			Quantity:    l.Quantity,
			Instrument:  &Instrument{Symbol: l.Symbol, AssetType: Option},
		})
	}
	if typ == Limit && netPrice != nil {
		p := *netPrice
		if p < 0 {
			p = -p
		}
		o.Price = cents(p)
	}
	return o
}

// OptionSymbol formats an OCC-style symbol: underlying padded to six
// characters, YYMMDD expiry, C or P, strike in thousandths as eight digits.
func OptionSymbol(underlying string, expiry time.Time, typ OptionType, strike float64) string {
	strikeMillis := decimal.NewFromFloat(strike).Mul(decimal.NewFromInt(1000)).IntPart()
	return fmt.Sprintf("%-6s%s%s%08d",
		strings.ToUpper(underlying),
		expiry.Format("060102"),
		string(typ)[:1],
		strikeMillis)
}
