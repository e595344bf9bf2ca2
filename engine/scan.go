package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bhtaylor94/Stock-data/broker"
	"github.com/bhtaylor94/Stock-data/ledger"
	"github.com/bhtaylor94/Stock-data/logs"
	"github.com/bhtaylor94/Stock-data/orders"
	"github.com/bhtaylor94/Stock-data/risk"
	"github.com/bhtaylor94/Stock-data/strategy"
)

// scanCycle is one pass of the entry loop and returns the wait before the next.
func (c *Coordinator) scanCycle(ctx context.Context) time.Duration {
	acct, err := c.accountInfo(ctx)
	if err != nil {
		logs.Errorf("[Engine] Scan: failed to fetch account info: %v. Retrying in %s", err, c.scanBackoff)
		c.markCycle("scan", err)
		return c.scanBackoff
	}
	c.metrics.SetAccountValue(acct.Value)

	if ok, reason := c.gate.CanTrade(acct.Value); !ok {
		logs.Warnf("[Engine] Trading halted: %s", reason)
		c.setHalted(true, reason)
		c.markCycle("scan", nil)
		return c.haltedRetry
	}
	if c.exposure != nil && c.exposure.CheckAndUpdate(acct.Value) {
		c.setHalted(true, fmt.Sprintf("Exposure limit $%.2f reached", c.exposure.Limit()))
		c.markCycle("scan", nil)
		return c.scanInterval
	}
	c.setHalted(false, "")

	symbols, err := c.ranker.RankedCandidates(ctx, c.cfg.Data.MaxScanSymbols)
	if err != nil {
		logs.Errorf("[Engine] Scan: failed to rank candidates: %v", err)
		c.markCycle("scan", err)
		return c.scanBackoff
	}

	entered := 0
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		if c.ledger.Has(symbol) {
			continue
		}
		if c.scanSymbol(ctx, symbol, acct) {
			entered++
		}
	}
	if entered > 0 {
		logs.Infof("[Engine] Scan opened %d position(s) from %d candidates", entered, len(symbols))
	} else {
		logs.Debugf("[Engine] Scan evaluated %d candidates, no entries", len(symbols))
	}
	c.markCycle("scan", nil)
	return c.scanInterval
}

// scanSymbol is the isolated unit of work for one candidate. Failures are
// logged and skip only this symbol.
func (c *Coordinator) scanSymbol(ctx context.Context, symbol string, acct *broker.AccountInfo) bool {
	quote, err := c.quote(ctx, symbol)
	if err != nil {
		logs.Warnf("[Engine] Skipping %s: quote failed: %v", symbol, err)
		return false
	}
	candles, err := c.history(ctx, symbol)
	if err != nil {
		logs.Warnf("[Engine] Skipping %s: price history failed: %v", symbol, err)
		return false
	}

	sig, atr := c.firstSignal(symbol, *quote, candles)
	if sig == nil {
		return false
	}
	c.accountant.RecordSignal(sig.Strategy)
	c.metrics.Signal(sig.Strategy, string(sig.Direction))

	if sig.EntryPrice <= 0 {
		sig.EntryPrice = quote.Price
	}
	return c.enter(ctx, sig, atr, acct)
}

// firstSignal asks each source in configured order and keeps the first signal.
func (c *Coordinator) firstSignal(symbol string, quote broker.Quote, candles []broker.Candle) (*strategy.Signal, float64) {
	for _, src := range c.sources {
		ind, ok := src.CalculateIndicators(symbol, candles)
		if !ok || ind == nil {
			continue
		}
		if sig, ok := src.Analyze(symbol, quote, ind); ok && sig != nil {
			return sig, ind.ATR
		}
	}
	return nil, 0
}

// normalizeLevels keeps the signal's stop and target when they sit on the
// correct side of entry and falls back to the gate's levels otherwise.
func (c *Coordinator) normalizeLevels(sig *strategy.Signal, atr float64) (stop, target float64) {
	entry, long := sig.EntryPrice, sig.IsLong()

	stop = sig.StopLoss
	if stop <= 0 || (long && stop >= entry) || (!long && stop <= entry) {
		stop = c.gate.StopLoss(entry, long, atr)
	}
	target = sig.TakeProfit
	if target <= 0 || (long && target <= entry) || (!long && target >= entry) {
		target = c.gate.TakeProfit(entry, long, atr)
	}
	return stop, target
}

func (c *Coordinator) size(sig *strategy.Signal, stop, atr float64, acct *broker.AccountInfo) int {
	exposure := c.ledger.Exposure()
	winRate := c.accountant.WinRate(sig.Strategy)

	qty := c.gate.PositionSize(risk.SizeRequest{
		Symbol:          sig.Symbol,
		Entry:           sig.EntryPrice,
		Stop:            stop,
		AccountValue:    acct.Value,
		CurrentExposure: exposure,
		WinRate:         winRate,
		ATR:             atr,
	})

	rc := c.gate.Config()
	// The streak only moves when a trade is booked; sizing never changes it.
	if qty > 0 && rc.EnableMartingale && winRate >= rc.MartingaleMinWinRate && c.accountant.LostLast(sig.Symbol) {
		qty = c.gate.MartingaleSize(sig.Symbol, qty)
		if capacity := c.gate.ExposureCapacity(sig.EntryPrice, acct.Value, exposure); qty > capacity {
			qty = capacity
		}
	}
	return qty
}

// enter reserves the symbol, submits the bracket order and commits the
// position once the broker acknowledges it. Any failure rolls back.
func (c *Coordinator) enter(ctx context.Context, sig *strategy.Signal, atr float64, acct *broker.AccountInfo) bool {
	stop, target := c.normalizeLevels(sig, atr)
	qty := c.size(sig, stop, atr, acct)
	if qty <= 0 {
		logs.Debugf("[Engine] %s signal on %s sized to zero, skipping", sig.Strategy, sig.Symbol)
		return false
	}

	signed := qty
	if !sig.IsLong() {
		signed = -qty
	}
	pos := ledger.Position{
		Symbol:     sig.Symbol,
		Quantity:   signed,
		EntryPrice: sig.EntryPrice,
		StopLoss:   stop,
		TakeProfit: target,
		Strategy:   sig.Strategy,
		EntryTime:  c.now(),
	}
	if err := c.ledger.Reserve(pos); err != nil {
		if errors.Is(err, ledger.ErrPositionExists) {
			logs.Debugf("[Engine] %s already held, dropping %s signal", sig.Symbol, sig.Strategy)
		} else {
			logs.Warnf("[Engine] Rejected %s entry: %v", sig.Symbol, err)
		}
		return false
	}

	order := orders.BracketOrder(sig.Symbol, qty, sig.EntryPrice, stop, target, orders.Equity, sig.IsLong())
	if err := orders.Validate(order); err != nil {
		c.rollback(sig.Symbol)
		c.metrics.Order("entry", "rejected")
		logs.Errorf("[Engine] Entry order for %s failed validation: %v", sig.Symbol, err)
		return false
	}

	octx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	orderID, err := c.gateway.PlaceOrder(octx, order)
	cancel()
	if err != nil {
		c.rollback(sig.Symbol)
		c.metrics.Order("entry", "error")
		logs.Errorf("[Engine] Entry order for %s failed: %v", sig.Symbol, err)
		return false
	}

	c.bookMu.Lock()
	err = c.ledger.Commit(sig.Symbol, orderID)
	if err == nil {
		// a new position starts without a high-water mark
		c.gate.ClearSymbol(sig.Symbol)
	}
	c.bookMu.Unlock()
	if err != nil {
		logs.Errorf("[Engine] Order %s for %s acknowledged but commit failed: %v", orderID, sig.Symbol, err)
		return false
	}

	c.metrics.Order("entry", "ok")
	c.metrics.SetOpenPositions(c.ledger.Len())
	logs.Infof("[Engine] Opened %s %d %s @ %.2f (stop %.2f, target %.2f, strategy %s, order %s)",
		sig.Direction, qty, sig.Symbol, sig.EntryPrice, stop, target, sig.Strategy, orderID)
	c.persist()
	return true
}

func (c *Coordinator) rollback(symbol string) {
	if err := c.ledger.Rollback(symbol); err != nil {
		logs.Errorf("[Engine] Rollback of %s failed: %v", symbol, err)
	}
}
