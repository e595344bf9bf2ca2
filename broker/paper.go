package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bhtaylor94/Stock-data/logs"
	"github.com/bhtaylor94/Stock-data/orders"
	"github.com/bhtaylor94/Stock-data/profit"

	"github.com/google/uuid"
)

var _ Gateway = (*PaperGateway)(nil)

// PaperGateway simulates execution against live market data. Entries fill
// immediately at their limit price (or the last trade for market orders);
// bracket children are parked as working orders until cancelled.
type PaperGateway struct {
	market          MarketData
	startingBalance float64
	book            *profit.Book

	mu      sync.Mutex
	working map[string]orders.Order
}

// NewPaperGateway wraps a market-data source with simulated execution.
func NewPaperGateway(market MarketData, startingBalance float64) *PaperGateway {
	logs.Infof("[PaperGateway] Paper trading with starting balance $%.2f", startingBalance)
	return &PaperGateway{
		market:          market,
		startingBalance: startingBalance,
		book:            profit.NewBook(),
		working:         make(map[string]orders.Order),
	}
}

func (p *PaperGateway) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	return p.market.GetQuote(ctx, symbol)
}

func (p *PaperGateway) GetQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	return p.market.GetQuotes(ctx, symbols)
}

func (p *PaperGateway) GetPriceHistory(ctx context.Context, symbol string, params HistoryParams) ([]Candle, error) {
	return p.market.GetPriceHistory(ctx, symbol, params)
}

// GetPositions reports the simulated holdings.
func (p *PaperGateway) GetPositions(context.Context) ([]Position, error) {
	open := p.book.Open()
	out := make([]Position, 0, len(open))
	for _, h := range open {
		out = append(out, Position{Symbol: h.Symbol, Quantity: h.Quantity, AveragePrice: h.AverageCost})
	}
	return out, nil
}

// GetAccountInfo values the account at starting balance plus realized profit.
// Buying power excludes capital tied up in open holdings.
func (p *PaperGateway) GetAccountInfo(context.Context) (*AccountInfo, error) {
	value := p.startingBalance + p.book.RealizedProfit()
	return &AccountInfo{Value: value, BuyingPower: value - p.book.CostBasis()}, nil
}

// Seed restores holdings and realized profit from a previous run so that
// exits net against them instead of opening the opposite side.
func (p *PaperGateway) Seed(positions []Position, realized float64) {
	holdings := make([]profit.Holding, 0, len(positions))
	for _, pos := range positions {
		holdings = append(holdings, profit.Holding{Symbol: pos.Symbol, Quantity: pos.Quantity, AverageCost: pos.AveragePrice})
	}
	p.book.Restore(holdings, realized)
	logs.Infof("[PaperGateway] Seeded %d holding(s), realized $%.2f", len(holdings), realized)
}

// PlaceOrder fills the order's first leg and parks any child orders.
func (p *PaperGateway) PlaceOrder(ctx context.Context, order orders.Order) (string, error) {
	if err := orders.Validate(order); err != nil {
		return "", err
	}
	leg, _ := order.FirstLeg()

	price, err := p.fillPrice(ctx, order, leg.Instrument.Symbol)
	if err != nil {
		return "", err
	}

	pnl := p.book.Apply(profit.Fill{
		Symbol:    leg.Instrument.Symbol,
		Buy:       leg.Instruction.IsBuy(),
		Price:     price,
		Quantity:  float64(leg.Quantity),
		Timestamp: time.Now(),
	})

	id := uuid.New().String()
	p.mu.Lock()
	for i, child := range order.ChildOrderStrategies {
		p.working[fmt.Sprintf("%s-%d", id, i)] = child
	}
	if len(order.ChildOrderStrategies) > 0 {
		p.working[id] = order
	}
	p.mu.Unlock()

	logs.Infof("[PaperGateway] Filled %s %d %s @ %.2f (order %s, realized %.2f)",
		leg.Instruction, leg.Quantity, leg.Instrument.Symbol, price, id, pnl)
	return id, nil
}

func (p *PaperGateway) fillPrice(ctx context.Context, order orders.Order, symbol string) (float64, error) {
	if order.OrderType == orders.Limit && order.Price != nil {
		return *order.Price, nil
	}
	q, err := p.market.GetQuote(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("paper fill for %s: %w", symbol, err)
	}
	return q.Price, nil
}

// CancelOrder removes a parked bracket and its children.
func (p *PaperGateway) CancelOrder(_ context.Context, orderID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	parent, ok := p.working[orderID]
	if !ok {
		return false, nil
	}
	delete(p.working, orderID)
	for i := range parent.ChildOrderStrategies {
		delete(p.working, fmt.Sprintf("%s-%d", orderID, i))
	}
	return true, nil
}

// WorkingOrders counts parked orders, children included.
func (p *PaperGateway) WorkingOrders() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.working)
}
