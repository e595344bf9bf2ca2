// Package ledger holds the engine's view of open positions. It is the only
// shared mutable collection between the scan and monitor loops.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

var (
	ErrPositionExists = errors.New("position already exists")
	ErrNotFound       = errors.New("position not found")
	ErrNotReserved    = errors.New("position is not an uncommitted reservation")
	ErrInvalidLevels  = errors.New("invalid position levels")
)

// Position is one open (or reserved) holding. Quantity is signed: positive
// for long, negative for short. Zero stop, target or trailing values mean unset.
type Position struct {
	Symbol         string    `json:"symbol"`
	Quantity       int       `json:"quantity"`
	EntryPrice     float64   `json:"entry_price"`
	StopLoss       float64   `json:"stop_loss,omitempty"`
	TakeProfit     float64   `json:"take_profit,omitempty"`
	TrailingStop   float64   `json:"trailing_stop,omitempty"`
	Strategy       string    `json:"strategy"`
	EntryTime      time.Time `json:"entry_time"`
	OrderID        string    `json:"order_id,omitempty"`
	CloseRequested bool      `json:"close_requested,omitempty"`
}

func (p Position) IsLong() bool { return p.Quantity > 0 }

// Shares is the absolute quantity.
func (p Position) Shares() int {
	if p.Quantity < 0 {
		return -p.Quantity
	}
	return p.Quantity
}

func (p Position) Notional() float64 { return math.Abs(float64(p.Quantity)) * p.EntryPrice }

// PnL is the profit of closing the full position at price. The signed
// quantity makes the short case fall out of the same formula.
func (p Position) PnL(price float64) float64 {
	return float64(p.Quantity) * (price - p.EntryPrice)
}

// PnLPct is PnL relative to entry, positive when the trade is in profit.
func (p Position) PnLPct(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	pct := (price - p.EntryPrice) / p.EntryPrice
	if !p.IsLong() {
		pct = -pct
	}
	return pct
}

func (p Position) validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidLevels)
	}
	if p.Quantity == 0 {
		return fmt.Errorf("%w: zero quantity for %s", ErrInvalidLevels, p.Symbol)
	}
	if p.EntryPrice <= 0 {
		return fmt.Errorf("%w: non-positive entry for %s", ErrInvalidLevels, p.Symbol)
	}
	if p.IsLong() {
		if p.StopLoss > 0 && p.StopLoss >= p.EntryPrice {
			return fmt.Errorf("%w: long stop %.4f not below entry %.4f", ErrInvalidLevels, p.StopLoss, p.EntryPrice)
		}
		if p.TakeProfit > 0 && p.TakeProfit <= p.EntryPrice {
			return fmt.Errorf("%w: long target %.4f not above entry %.4f", ErrInvalidLevels, p.TakeProfit, p.EntryPrice)
		}
	} else {
		if p.StopLoss > 0 && p.StopLoss <= p.EntryPrice {
			return fmt.Errorf("%w: short stop %.4f not above entry %.4f", ErrInvalidLevels, p.StopLoss, p.EntryPrice)
		}
		if p.TakeProfit > 0 && p.TakeProfit >= p.EntryPrice {
			return fmt.Errorf("%w: short target %.4f not below entry %.4f", ErrInvalidLevels, p.TakeProfit, p.EntryPrice)
		}
	}
	return nil
}

type entry struct {
	pos       Position
	committed bool
}

// Ledger maps symbol to position. Every method holds the lock only for the
// map operation itself; callers never perform I/O while holding it.
type Ledger struct {
	mu        sync.Mutex
	positions map[string]*entry
}

func New() *Ledger {
	return &Ledger{positions: make(map[string]*entry)}
}

// Reserve claims the symbol for an entry that has not been acknowledged by
// the broker yet. Reservations count toward Has and Exposure but are not
// returned by Snapshot, so the monitor loop never acts on them.
func (l *Ledger) Reserve(pos Position) error {
	if err := pos.validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.positions[pos.Symbol]; ok {
		return fmt.Errorf("%w: %s", ErrPositionExists, pos.Symbol)
	}
	l.positions[pos.Symbol] = &entry{pos: pos}
	return nil
}

// Commit turns a reservation into an open position once the order is acknowledged.
func (l *Ledger) Commit(symbol, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.positions[symbol]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	if e.committed {
		return fmt.Errorf("%w: %s", ErrNotReserved, symbol)
	}
	e.committed = true
	e.pos.OrderID = orderID
	return nil
}

// Rollback drops an uncommitted reservation. Committed positions are left alone.
func (l *Ledger) Rollback(symbol string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.positions[symbol]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	if e.committed {
		return fmt.Errorf("%w: %s", ErrNotReserved, symbol)
	}
	delete(l.positions, symbol)
	return nil
}

// InsertIfAbsent adds an already-open position in a single step.
func (l *Ledger) InsertIfAbsent(pos Position) (bool, error) {
	if err := pos.validate(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.positions[pos.Symbol]; ok {
		return false, nil
	}
	l.positions[pos.Symbol] = &entry{pos: pos, committed: true}
	return true, nil
}

// Has reports whether the symbol is open or reserved.
func (l *Ledger) Has(symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.positions[symbol]
	return ok
}

// Get returns a copy of a committed position.
func (l *Ledger) Get(symbol string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.positions[symbol]
	if !ok || !e.committed {
		return Position{}, false
	}
	return e.pos, true
}

// Update applies fn to a committed position under the lock. fn must not block.
func (l *Ledger) Update(symbol string, fn func(p *Position)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.positions[symbol]
	if !ok || !e.committed {
		return fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	fn(&e.pos)
	return nil
}

// Remove deletes a committed position and returns it.
func (l *Ledger) Remove(symbol string) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.positions[symbol]
	if !ok || !e.committed {
		return Position{}, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	delete(l.positions, symbol)
	return e.pos, nil
}

// Snapshot copies all committed positions, ordered by symbol.
func (l *Ledger) Snapshot() []Position {
	l.mu.Lock()
	out := make([]Position, 0, len(l.positions))
	for _, e := range l.positions {
		if e.committed {
			out = append(out, e.pos)
		}
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Len counts committed positions.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.positions {
		if e.committed {
			n++
		}
	}
	return n
}

// Exposure sums the entry notional of open and reserved positions.
func (l *Ledger) Exposure() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total float64
	for _, e := range l.positions {
		total += e.pos.Notional()
	}
	return total
}
