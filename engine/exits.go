package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/bhtaylor94/Stock-data/ledger"
	"github.com/bhtaylor94/Stock-data/logs"
	"github.com/bhtaylor94/Stock-data/orders"
	"github.com/bhtaylor94/Stock-data/risk"

	"github.com/cenkalti/backoff/v4"
)

// exitRetry tracks a position whose exit order keeps failing. The position
// stays in the ledger and is retried on the backoff schedule forever.
type exitRetry struct {
	backoff  *backoff.ExponentialBackOff
	attempts int
	next     time.Time
}

func (c *Coordinator) newExitBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.exitRetryInitial
	b.MaxInterval = c.exitRetryMax
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// monitorCycle evaluates every committed position once.
func (c *Coordinator) monitorCycle(ctx context.Context) time.Duration {
	positions := c.ledger.Snapshot()
	c.metrics.SetOpenPositions(len(positions))
	daily := c.gate.Daily()
	c.metrics.SetDaily(daily.PnL, daily.Trades)

	priced, failed := 0, 0
	for _, p := range positions {
		if ctx.Err() != nil {
			break
		}
		if !c.exitDue(p.Symbol) {
			continue
		}
		q, err := c.quote(ctx, p.Symbol)
		if err != nil {
			failed++
			logs.Warnf("[Engine] Monitor: quote for %s failed: %v", p.Symbol, err)
			continue
		}
		priced++
		c.evaluate(ctx, p, q.Price)
	}

	if failed > 0 && priced == 0 {
		err := fmt.Errorf("all %d quote requests failed", failed)
		logs.Errorf("[Engine] Monitor: %v. Backing off %s", err, c.monitorBackoff)
		c.markCycle("monitor", err)
		return c.monitorBackoff
	}
	c.markCycle("monitor", nil)
	return c.monitorInterval
}

func (c *Coordinator) evaluate(ctx context.Context, p ledger.Position, price float64) {
	switch action := c.gate.EvaluateExit(p, price).(type) {
	case *risk.CloseAction:
		logs.Infof("[Engine] %s", action.Description())
		c.closePosition(ctx, p, action)
	case *risk.TrailingStopUpdate:
		err := c.ledger.Update(p.Symbol, func(pos *ledger.Position) { pos.TrailingStop = action.NewStop })
		if err != nil {
			logs.Warnf("[Engine] Could not store trailing stop for %s: %v", p.Symbol, err)
			return
		}
		logs.Infof("[Engine] %s", action.Description())
		c.persist()
	case *risk.NoOpAction:
	}
}

// closePosition submits the exit. The position leaves the ledger only after
// the broker acknowledged the exit order.
func (c *Coordinator) closePosition(ctx context.Context, p ledger.Position, action *risk.CloseAction) {
	if c.cfg.Engine.CancelBracketOnExit && p.OrderID != "" {
		cctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		cancelled, err := c.gateway.CancelOrder(cctx, p.OrderID)
		cancel()
		switch {
		case err != nil:
			c.metrics.Order("cancel", "error")
			logs.Warnf("[Engine] Cancel of bracket %s for %s failed: %v", p.OrderID, p.Symbol, err)
		case cancelled:
			c.metrics.Order("cancel", "ok")
		default:
			logs.Debugf("[Engine] Bracket %s for %s was not open", p.OrderID, p.Symbol)
		}
	}

	_, exit := orders.EntryExitInstructions(orders.Equity, p.IsLong())
	order := orders.EquityOrder(p.Symbol, p.Shares(), exit, orders.Market, orders.Day, 0, 0)

	octx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	orderID, err := c.gateway.PlaceOrder(octx, order)
	cancel()
	if err != nil {
		c.metrics.Order("exit", "error")
		c.exitFailed(p.Symbol, err)
		return
	}
	delete(c.exitRetries, p.Symbol)

	c.bookMu.Lock()
	removed, err := c.ledger.Remove(p.Symbol)
	var pnl float64
	if err == nil {
		pnl = removed.PnL(action.Price)
		c.gate.RecordTrade(pnl)
		c.gate.RecordOutcome(p.Symbol, pnl <= 0)
		c.gate.ClearSymbol(p.Symbol)
		c.accountant.RecordTrade(removed.Strategy, removed.Symbol, pnl)
	}
	c.bookMu.Unlock()
	if err != nil {
		logs.Errorf("[Engine] Exit %s for %s acknowledged but position is gone: %v", orderID, p.Symbol, err)
		return
	}

	daily := c.gate.Daily()
	c.metrics.Order("exit", "ok")
	c.metrics.Exit(string(action.Reason))
	c.metrics.SetDaily(daily.PnL, daily.Trades)
	c.metrics.SetOpenPositions(c.ledger.Len())
	logs.Infof("[Engine] Closed %s (%s) @ %.2f, pnl %.2f, daily pnl %.2f over %d trades, order %s",
		p.Symbol, action.Reason, action.Price, pnl, daily.PnL, daily.Trades, orderID)
	c.persist()
}

func (c *Coordinator) exitDue(symbol string) bool {
	r, ok := c.exitRetries[symbol]
	return !ok || !c.now().Before(r.next)
}

// exitFailed schedules the next attempt. Past the alert threshold the
// failure is escalated once and retries continue at the maximum interval.
func (c *Coordinator) exitFailed(symbol string, err error) {
	r, ok := c.exitRetries[symbol]
	if !ok {
		r = &exitRetry{backoff: c.newExitBackoff()}
		c.exitRetries[symbol] = r
	}
	r.attempts++

	wait := r.backoff.NextBackOff()
	alertAt := c.cfg.Engine.ExitRetryAlertAttempts
	if alertAt > 0 && r.attempts >= alertAt {
		wait = c.exitRetryMax
		if r.attempts == alertAt {
			c.metrics.Escalation()
			logs.Errorf("[Engine] ALERT: exit for %s has failed %d times in a row, last error: %v. Position stays open and will be retried every %s",
				symbol, r.attempts, err, wait)
		}
	}
	r.next = c.now().Add(wait)
	logs.Errorf("[Engine] Exit order for %s failed (attempt %d): %v. Next attempt in %s", symbol, r.attempts, err, wait)
}
