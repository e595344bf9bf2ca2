package profit

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Fill is a single execution against the book.
type Fill struct {
	Symbol    string
	Buy       bool
	Price     float64
	Quantity  float64
	Timestamp time.Time
}

// Holding is the state of one symbol in the book. Quantity is negative for shorts.
type Holding struct {
	Symbol         string  `json:"symbol"`
	Quantity       float64 `json:"quantity"`
	AverageCost    float64 `json:"average_cost"`
	RealizedProfit float64 `json:"realized_profit"`
}

// Book tracks holdings across symbols using the weighted average cost method.
type Book struct {
	mu       sync.Mutex
	holdings map[string]*Holding
	realized float64
	fills    []Fill
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{holdings: make(map[string]*Holding)}
}

// Apply records a fill and returns the profit it realized, if any.
func (b *Book) Apply(f Fill) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fills = append(b.fills, f)

	h, ok := b.holdings[f.Symbol]
	if !ok {
		h = &Holding{Symbol: f.Symbol}
		b.holdings[f.Symbol] = h
	}

	posQty := h.Quantity
	avgCost := h.AverageCost

	// A fill opposite to the holding closes (part of) it first.
	var pnl float64
	closing := (posQty > 0 && !f.Buy) || (posQty < 0 && f.Buy)
	if closing {
		qtyToClose := math.Min(math.Abs(posQty), f.Quantity)
		if f.Buy {
			pnl = (avgCost - f.Price) * qtyToClose
		} else {
			pnl = (f.Price - avgCost) * qtyToClose
		}
		h.RealizedProfit += pnl
		b.realized += pnl
	}

	signed := f.Quantity
	if !f.Buy {
		signed = -f.Quantity
	}

	if !closing {
		value := avgCost*math.Abs(posQty) + f.Price*f.Quantity
		h.Quantity += signed
		if h.Quantity != 0 {
			h.AverageCost = value / math.Abs(h.Quantity)
		} else {
			h.AverageCost = 0
		}
	} else {
		h.Quantity += signed
		// Partial closes keep the cost; a flip opens the remainder at the fill price.
		if posQty*h.Quantity < 0 {
			h.AverageCost = f.Price
		} else if h.Quantity == 0 {
			h.AverageCost = 0
		}
	}
	return pnl
}

// Holding returns a copy of one symbol's state.
func (b *Book) Holding(symbol string) (Holding, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.holdings[symbol]
	if !ok {
		return Holding{}, false
	}
	return *h, true
}

// Open returns every non-flat holding, ordered by symbol.
func (b *Book) Open() []Holding {
	b.mu.Lock()
	out := make([]Holding, 0, len(b.holdings))
	for _, h := range b.holdings {
		if h.Quantity != 0 {
			out = append(out, *h)
		}
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// CostBasis is the absolute capital tied up in open holdings.
func (b *Book) CostBasis() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var total float64
	for _, h := range b.holdings {
		total += math.Abs(h.Quantity) * h.AverageCost
	}
	return total
}

// UnrealizedProfit values open holdings at the given prices. Symbols without
// a price are valued at cost.
func (b *Book) UnrealizedProfit(prices map[string]float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var total float64
	for sym, h := range b.holdings {
		price, ok := prices[sym]
		if !ok || h.Quantity == 0 {
			continue
		}
		total += (price - h.AverageCost) * h.Quantity
	}
	return total
}

// RealizedProfit returns cumulative realized profit across all symbols.
func (b *Book) RealizedProfit() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.realized
}

// Restore seeds the book from persisted holdings and realized profit.
func (b *Book) Restore(holdings []Holding, realized float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdings = make(map[string]*Holding, len(holdings))
	for _, h := range holdings {
		h := h
		b.holdings[h.Symbol] = &h
	}
	b.realized = realized
}

// FillCount is the number of fills applied since construction.
func (b *Book) FillCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fills)
}
