package orders

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEquityMarketOrder(t *testing.T) {
	o := EquityOrder("AAPL", 10, Sell, Market, Day, 0, 0)
	require.NoError(t, Validate(o))
	assert.Nil(t, o.Price)
	assert.Nil(t, o.StopPrice)

	raw, err := json.Marshal(o)
	require.NoError(t, err)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "MARKET", payload["orderType"])
	assert.Equal(t, "NORMAL", payload["session"])
	assert.Equal(t, "SINGLE", payload["orderStrategyType"])
	assert.NotContains(t, payload, "price")
	leg := payload["orderLegCollection"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "SELL", leg["instruction"])
	assert.Equal(t, float64(10), leg["quantity"])
	assert.Equal(t, "EQUITY", leg["instrument"].(map[string]interface{})["assetType"])
}

func TestLimitAndStopPricesRounded(t *testing.T) {
	o := EquityOrder("MSFT", 5, Buy, Limit, Day, 123.456, 0)
	require.NotNil(t, o.Price)
	assert.Equal(t, 123.46, *o.Price)

	o = EquityOrder("MSFT", 5, Sell, StopLimit, GoodTillCancel, 99.994, 100.005)
	require.NotNil(t, o.StopPrice)
	require.NotNil(t, o.Price)
	assert.Equal(t, 100.01, *o.StopPrice)
	assert.Equal(t, 99.99, *o.Price)
	require.NoError(t, Validate(o))
}

func TestBracketOrder(t *testing.T) {
	o := BracketOrder("AAPL", 20, 50, 49, 52, Equity, true)
	require.NoError(t, Validate(o))
	assert.Equal(t, "TRIGGER", o.OrderStrategyType)
	assert.Equal(t, Buy, o.OrderLegCollection[0].Instruction)
	require.Len(t, o.ChildOrderStrategies, 2)

	stop := o.ChildOrderStrategies[0]
	assert.Equal(t, Stop, stop.OrderType)
	assert.Equal(t, 49.0, *stop.StopPrice)
	assert.Equal(t, Sell, stop.OrderLegCollection[0].Instruction)
	assert.Equal(t, GoodTillCancel, stop.Duration)

	target := o.ChildOrderStrategies[1]
	assert.Equal(t, Limit, target.OrderType)
	assert.Equal(t, 52.0, *target.Price)

	short := BracketOrder("TSLA", 3, 200, 204, 190, Equity, false)
	assert.Equal(t, SellShort, short.OrderLegCollection[0].Instruction)
	assert.Equal(t, BuyToCover, short.ChildOrderStrategies[0].OrderLegCollection[0].Instruction)

	opt := BracketOrder("AAPL  240119C00150000", 1, 2.5, 1.5, 4, Option, true)
	assert.Equal(t, BuyToOpen, opt.OrderLegCollection[0].Instruction)
	assert.Equal(t, SellToClose, opt.ChildOrderStrategies[1].OrderLegCollection[0].Instruction)
}

func TestTrailingStopOrder(t *testing.T) {
	o := TrailingStopOrder("SPY", 7, Sell, TrailPercent, 2.0, Equity)
	require.NoError(t, Validate(o))
	assert.Equal(t, "BID", o.StopPriceLinkBasis)
	assert.Equal(t, "PERCENT", o.StopPriceLinkType)
	assert.Equal(t, 2.0, *o.StopPriceOffset)

	o = TrailingStopOrder("SPY", 7, Sell, TrailAmount, 1.25, Equity)
	assert.Equal(t, "VALUE", o.StopPriceLinkType)
}

func TestOptionSpread(t *testing.T) {
	credit := -1.234
	o := OptionSpread([]SpreadLeg{
		{Symbol: "SPY   240119P00450000", Quantity: 1, Instruction: SellToOpen},
		{Symbol: "SPY   240119P00445000", Quantity: 1, Instruction: BuyToOpen},
	}, Limit, Day, &credit)
	require.NoError(t, Validate(o))
	assert.Len(t, o.OrderLegCollection, 2)
	assert.Equal(t, 1.23, *o.Price)
	for _, l := range o.OrderLegCollection {
		assert.Equal(t, Option, l.Instrument.AssetType)
	}
}

func TestOptionSymbol(t *testing.T) {
	exp := time.Date(2021, 1, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "AAPL  210115C00050000", OptionSymbol("AAPL", exp, Call, 50))
	assert.Equal(t, "SPY   210115P00452500", OptionSymbol("spy", exp, Put, 452.5))
	assert.Equal(t, "AAPL  210115C00000290", OptionSymbol("AAPL", exp, Call, 0.29))
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(o *Order){
		"orderType":                         func(o *Order) { o.OrderType = "" },
		"session":                           func(o *Order) { o.Session = "" },
		"duration":                          func(o *Order) { o.Duration = "" },
		"orderStrategyType":                 func(o *Order) { o.OrderStrategyType = "" },
		"orderLegCollection":                func(o *Order) { o.OrderLegCollection = nil },
		"instruction":                       func(o *Order) { o.OrderLegCollection[0].Instruction = "" },
		"quantity":                          func(o *Order) { o.OrderLegCollection[0].Quantity = 0 },
		"instrument":                        func(o *Order) { o.OrderLegCollection[0].Instrument = nil },
		"instrument.symbol":                 func(o *Order) { o.OrderLegCollection[0].Instrument.Symbol = "" },
		"instrument.assetType":              func(o *Order) { o.OrderLegCollection[0].Instrument.AssetType = "" },
		"childOrderStrategies[0].stopPrice": func(o *Order) { o.ChildOrderStrategies[0].StopPrice = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			o := BracketOrder("AAPL", 20, 50, 49, 52, Equity, true)
			mutate(&o)
			err := Validate(o)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
		})
	}
}

func TestInstructionIsBuy(t *testing.T) {
	assert.True(t, Buy.IsBuy())
	assert.True(t, BuyToCover.IsBuy())
	assert.False(t, Sell.IsBuy())
	assert.False(t, SellShort.IsBuy())
}
