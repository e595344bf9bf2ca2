// engine/coordinator.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bhtaylor94/Stock-data/broker"
	"github.com/bhtaylor94/Stock-data/config"
	"github.com/bhtaylor94/Stock-data/investment"
	"github.com/bhtaylor94/Stock-data/ledger"
	"github.com/bhtaylor94/Stock-data/logs"
	"github.com/bhtaylor94/Stock-data/metrics"
	"github.com/bhtaylor94/Stock-data/profit"
	"github.com/bhtaylor94/Stock-data/risk"
	"github.com/bhtaylor94/Stock-data/scanner"
	"github.com/bhtaylor94/Stock-data/state"
	"github.com/bhtaylor94/Stock-data/strategy"
)

var (
	ErrAlreadyRunning  = errors.New("coordinator already running")
	ErrShutdownTimeout = errors.New("trading loops did not stop within the grace period")
)

// Deps are the collaborators the coordinator drives. Exposure, State and
// Metrics are optional.
type Deps struct {
	Gateway    broker.Gateway
	Ledger     *ledger.Ledger
	Gate       *risk.Gate
	Sources    []strategy.SignalSource
	Ranker     scanner.Ranker
	Accountant *profit.Accountant
	Exposure   *investment.Manager
	State      state.StateManagerInterface
	Metrics    *metrics.Metrics
}

// Option customises a Coordinator at construction.
type Option func(*Coordinator)

// WithClock replaces the wall clock used for entry timestamps and exit retries.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Status is the operator view of the engine, read from one consistent snapshot.
type Status struct {
	Running       bool                            `json:"running"`
	Mode          string                          `json:"mode"`
	OpenPositions int                             `json:"open_position_count"`
	DailyPnL      float64                         `json:"daily_pnl"`
	DailyTrades   int                             `json:"daily_trade_count"`
	TradingHalted bool                            `json:"trading_halted"`
	HaltReason    string                          `json:"halt_reason,omitempty"`
	ExposureLimit float64                         `json:"exposure_limit"`
	OverExposed   bool                            `json:"over_exposed"`
	Strategies    map[string]profit.StrategyStats `json:"strategies"`
	Totals        profit.Totals                   `json:"totals"`
	LastScan      time.Time                       `json:"last_scan"`
	LastMonitor   time.Time                       `json:"last_monitor"`
	ScanError     string                          `json:"scan_error,omitempty"`
	MonitorError  string                          `json:"monitor_error,omitempty"`
	AsOf          time.Time                       `json:"as_of"`
}

// Coordinator runs the scan loop (entries) and the monitor loop (exits)
// against a shared ledger and risk gate.
type Coordinator struct {
	gateway    broker.Gateway
	ledger     *ledger.Ledger
	gate       *risk.Gate
	sources    []strategy.SignalSource
	ranker     scanner.Ranker
	accountant *profit.Accountant
	exposure   *investment.Manager
	store      state.StateManagerInterface
	metrics    *metrics.Metrics
	cfg        *config.Config
	now        func() time.Time

	scanInterval     time.Duration
	monitorInterval  time.Duration
	haltedRetry      time.Duration
	scanBackoff      time.Duration
	monitorBackoff   time.Duration
	requestTimeout   time.Duration
	shutdownGrace    time.Duration
	exitRetryInitial time.Duration
	exitRetryMax     time.Duration

	// bookMu makes multi-component bookkeeping (ledger + gate + accountant)
	// appear atomic to Status. It is never held across a network call.
	bookMu sync.RWMutex

	persistMu sync.Mutex

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	halted      bool
	haltReason  string
	lastScan    time.Time
	lastMonitor time.Time
	scanErr     string
	monitorErr  string

	// owned by the monitor loop
	exitRetries map[string]*exitRetry
}

func seconds(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

// New wires a coordinator. Nothing runs until Start.
func New(deps Deps, cfg *config.Config, opts ...Option) (*Coordinator, error) {
	switch {
	case deps.Gateway == nil:
		return nil, fmt.Errorf("engine: gateway is required")
	case deps.Ledger == nil:
		return nil, fmt.Errorf("engine: ledger is required")
	case deps.Gate == nil:
		return nil, fmt.Errorf("engine: risk gate is required")
	case deps.Ranker == nil:
		return nil, fmt.Errorf("engine: symbol ranker is required")
	case len(deps.Sources) == 0:
		return nil, fmt.Errorf("engine: at least one signal source is required")
	case cfg == nil || cfg.Engine == nil || cfg.Data == nil:
		return nil, fmt.Errorf("engine: engine and data config are required")
	}
	if deps.Accountant == nil {
		deps.Accountant = profit.NewAccountant()
	}
	if deps.Exposure == nil {
		deps.Exposure = investment.NewManager(deps.Ledger, deps.Gate.Config().MaxTotalExposurePct)
	}

	ec := cfg.Engine
	c := &Coordinator{
		gateway:          deps.Gateway,
		ledger:           deps.Ledger,
		gate:             deps.Gate,
		sources:          deps.Sources,
		ranker:           deps.Ranker,
		accountant:       deps.Accountant,
		exposure:         deps.Exposure,
		store:            deps.State,
		metrics:          deps.Metrics,
		cfg:              cfg,
		now:              time.Now,
		scanInterval:     seconds(ec.ScanIntervalSeconds, 10*time.Second),
		monitorInterval:  seconds(ec.MonitorIntervalSeconds, 5*time.Second),
		haltedRetry:      seconds(ec.HaltedRetrySeconds, time.Minute),
		scanBackoff:      seconds(ec.ScanErrorBackoffSeconds, 30*time.Second),
		monitorBackoff:   seconds(ec.MonitorErrorBackoffSeconds, 10*time.Second),
		requestTimeout:   seconds(ec.RequestTimeoutSeconds, 15*time.Second),
		shutdownGrace:    seconds(ec.ShutdownGraceSeconds, 10*time.Second),
		exitRetryInitial: seconds(ec.ExitRetryInitialSeconds, 5*time.Second),
		exitRetryMax:     seconds(ec.ExitRetryMaxSeconds, 2*time.Minute),
		exitRetries:      make(map[string]*exitRetry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start launches both loops. They stop when ctx is cancelled or Stop is called.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true

	c.wg.Add(2)
	go c.runLoop(loopCtx, "scan", c.scanCycle)
	go c.runLoop(loopCtx, "monitor", c.monitorCycle)

	logs.Infof("[Engine] Started (scan every %s, monitor every %s, %d strategies)",
		c.scanInterval, c.monitorInterval, len(c.sources))
	return nil
}

// Stop cancels both loops and waits for them up to the shutdown grace
// period. The final state is persisted either way.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.cancel()
	c.running = false
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		logs.Info("[Engine] Scan and monitor loops stopped.")
	case <-time.After(c.shutdownGrace):
		err = ErrShutdownTimeout
		logs.Errorf("[Engine] Loops still busy after %s, abandoning them.", c.shutdownGrace)
	}
	c.persist()
	return err
}

// runLoop calls cycle until ctx is done. Each cycle returns the wait before
// the next one; cancellation is only observed between cycles and inside them
// at per-symbol boundaries.
func (c *Coordinator) runLoop(ctx context.Context, name string, cycle func(context.Context) time.Duration) {
	defer c.wg.Done()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logs.Infof("[Engine] %s loop exiting", name)
			return
		case <-timer.C:
		}

		start := time.Now()
		wait := cycle(ctx)
		c.metrics.ObserveCycle(name, time.Since(start).Seconds())
		timer.Reset(wait)
	}
}

// Running reports whether the loops are active.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Status returns the current view. Daily counters come from the gate, so
// the last known values are reported even while a loop is degraded.
func (c *Coordinator) Status() Status {
	c.bookMu.RLock()
	daily := c.gate.Daily()
	open := c.ledger.Len()
	stats := c.accountant.Stats()
	totals := c.accountant.Totals()
	c.bookMu.RUnlock()
	limit, overExposed := c.exposure.Limit(), c.exposure.IsTradingHalted()

	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Running:       c.running,
		Mode:          string(c.cfg.TradingMode),
		OpenPositions: open,
		DailyPnL:      daily.PnL,
		DailyTrades:   daily.Trades,
		TradingHalted: c.halted,
		HaltReason:    c.haltReason,
		ExposureLimit: limit,
		OverExposed:   overExposed,
		Strategies:    stats,
		Totals:        totals,
		LastScan:      c.lastScan,
		LastMonitor:   c.lastMonitor,
		ScanError:     c.scanErr,
		MonitorError:  c.monitorErr,
		AsOf:          c.now(),
	}
}

// StatusFromState rebuilds a status view from a persisted state file, for
// inspecting an engine that is not running.
func StatusFromState(st state.AppState) Status {
	acct := profit.NewAccountant()
	acct.Restore(st.StrategyStats, st.LastLoss)
	return Status{
		Mode:          st.Mode,
		OpenPositions: len(st.Positions),
		DailyPnL:      st.Risk.Daily.PnL,
		DailyTrades:   st.Risk.Daily.Trades,
		Strategies:    acct.Stats(),
		Totals:        acct.Totals(),
		AsOf:          st.SavedAt,
	}
}

// Positions returns the committed positions ordered by symbol.
func (c *Coordinator) Positions() []ledger.Position {
	return c.ledger.Snapshot()
}

// RequestClose flags a position for a manual exit. The monitor loop closes
// it on its next pass, so removal stays on a single code path.
func (c *Coordinator) RequestClose(symbol string) error {
	err := c.ledger.Update(symbol, func(p *ledger.Position) { p.CloseRequested = true })
	if err != nil {
		return err
	}
	logs.Infof("[Engine] Manual close requested for %s", symbol)
	c.persist()
	return nil
}

// RiskReport prices every open position and aggregates it against the account.
func (c *Coordinator) RiskReport(ctx context.Context) (risk.AccountRisk, error) {
	positions := c.ledger.Snapshot()

	actx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	acct, err := c.gateway.GetAccountInfo(actx)
	if err != nil {
		return risk.AccountRisk{}, fmt.Errorf("failed to fetch account info: %w", err)
	}

	prices := map[string]broker.Quote{}
	if len(positions) > 0 {
		symbols := make([]string, len(positions))
		for i, p := range positions {
			symbols[i] = p.Symbol
		}
		qctx, qcancel := context.WithTimeout(ctx, c.requestTimeout)
		defer qcancel()
		if prices, err = c.gateway.GetQuotes(qctx, symbols); err != nil {
			return risk.AccountRisk{}, fmt.Errorf("failed to fetch quotes: %w", err)
		}
	}

	report := make([]risk.PositionRisk, 0, len(positions))
	for _, p := range positions {
		price := p.EntryPrice
		if q, ok := prices[p.Symbol]; ok && q.Price > 0 {
			price = q.Price
		}
		report = append(report, c.gate.PositionRisk(p, price))
	}
	return c.gate.AccountRisk(acct.Value, acct.BuyingPower, report), nil
}

// persist writes the ledger, gate and accountant to the state store. The
// snapshot and the write happen under one lock so saves never go backwards.
func (c *Coordinator) persist() {
	if c.store == nil {
		return
	}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.bookMu.RLock()
	st := state.AppState{
		SavedAt:       c.now(),
		Mode:          string(c.cfg.TradingMode),
		Positions:     c.ledger.Snapshot(),
		Risk:          c.gate.Snapshot(),
		StrategyStats: c.accountant.Stats(),
		LastLoss:      c.accountant.LastResults(),
	}
	c.bookMu.RUnlock()

	if err := c.store.Save(st); err != nil {
		logs.Errorf("[Engine] Failed to persist state: %v", err)
	}
}

func (c *Coordinator) setHalted(halted bool, reason string) {
	c.mu.Lock()
	changed := c.halted != halted
	c.halted = halted
	c.haltReason = reason
	c.mu.Unlock()

	c.metrics.SetHalted(halted)
	if changed && !halted {
		logs.Info("[Engine] Trading resumed.")
	}
}

func (c *Coordinator) markCycle(loop string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
		c.metrics.LoopError(loop)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch loop {
	case "scan":
		c.lastScan = c.now()
		c.scanErr = msg
	case "monitor":
		c.lastMonitor = c.now()
		c.monitorErr = msg
	}
}

func (c *Coordinator) accountInfo(ctx context.Context) (*broker.AccountInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	return c.gateway.GetAccountInfo(ctx)
}

func (c *Coordinator) quote(ctx context.Context, symbol string) (*broker.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	return c.gateway.GetQuote(ctx, symbol)
}

func (c *Coordinator) history(ctx context.Context, symbol string) ([]broker.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	dc := c.cfg.Data
	return c.gateway.GetPriceHistory(ctx, symbol, broker.HistoryParams{
		PeriodType:    dc.HistoryPeriodType,
		Period:        dc.HistoryPeriod,
		FrequencyType: dc.HistoryFrequencyType,
		Frequency:     dc.HistoryFrequency,
	})
}
