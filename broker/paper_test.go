package broker

import (
	"context"
	"fmt"
	"testing"

	"github.com/bhtaylor94/Stock-data/orders"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMarket struct {
	prices map[string]float64
}

func (m *stubMarket) GetQuote(_ context.Context, symbol string) (*Quote, error) {
	p, ok := m.prices[symbol]
	if !ok {
		return nil, &APIError{StatusCode: 404, Body: fmt.Sprintf("no quote for %s", symbol)}
	}
	return &Quote{Symbol: symbol, Price: p}, nil
}

func (m *stubMarket) GetQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	out := make(map[string]Quote)
	for _, s := range symbols {
		if q, err := m.GetQuote(ctx, s); err == nil {
			out[s] = *q
		}
	}
	return out, nil
}

func (m *stubMarket) GetPriceHistory(context.Context, string, HistoryParams) ([]Candle, error) {
	return nil, nil
}

func TestPaperBracketRoundTrip(t *testing.T) {
	ctx := context.Background()
	market := &stubMarket{prices: map[string]float64{"AAPL": 52}}
	p := NewPaperGateway(market, 10000)

	id, err := p.PlaceOrder(ctx, orders.BracketOrder("AAPL", 20, 50, 49, 52, orders.Equity, true))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 3, p.WorkingOrders())

	positions, err := p.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 20.0, positions[0].Quantity)
	assert.Equal(t, 50.0, positions[0].AveragePrice)

	info, err := p.GetAccountInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, info.Value)
	assert.Equal(t, 9000.0, info.BuyingPower)

	ok, err := p.CancelOrder(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, p.WorkingOrders())

	ok, err = p.CancelOrder(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = p.PlaceOrder(ctx, orders.EquityOrder("AAPL", 20, orders.Sell, orders.Market, orders.Day, 0, 0))
	require.NoError(t, err)

	info, err = p.GetAccountInfo(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10040.0, info.Value, 1e-9)
	positions, _ = p.GetPositions(ctx)
	assert.Empty(t, positions)
}

func TestPaperMarketOrderNeedsQuote(t *testing.T) {
	p := NewPaperGateway(&stubMarket{prices: map[string]float64{}}, 1000)
	_, err := p.PlaceOrder(context.Background(), orders.EquityOrder("ZZZ", 1, orders.Buy, orders.Market, orders.Day, 0, 0))
	require.Error(t, err)
}

func TestPaperRejectsInvalidOrder(t *testing.T) {
	p := NewPaperGateway(&stubMarket{}, 1000)
	_, err := p.PlaceOrder(context.Background(), orders.Order{})
	require.Error(t, err)
}

func TestPaperDelegatesMarketData(t *testing.T) {
	p := NewPaperGateway(&stubMarket{prices: map[string]float64{"SPY": 450}}, 1000)
	q, err := p.GetQuote(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, 450.0, q.Price)
	qs, err := p.GetQuotes(context.Background(), []string{"SPY", "X"})
	require.NoError(t, err)
	assert.Len(t, qs, 1)
}

func TestPaperSeedNetsExits(t *testing.T) {
	ctx := context.Background()
	market := &stubMarket{prices: map[string]float64{"MSFT": 410}}
	p := NewPaperGateway(market, 10000)
	p.Seed([]Position{{Symbol: "MSFT", Quantity: 5, AveragePrice: 400}}, 25)

	info, err := p.GetAccountInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10025.0, info.Value)

	_, err = p.PlaceOrder(ctx, orders.EquityOrder("MSFT", 5, orders.Sell, orders.Market, orders.Day, 0, 0))
	require.NoError(t, err)
	positions, _ := p.GetPositions(ctx)
	assert.Empty(t, positions)
	info, _ = p.GetAccountInfo(ctx)
	assert.InDelta(t, 10075.0, info.Value, 1e-9)
}
