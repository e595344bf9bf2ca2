// orchestrator.go
package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bhtaylor94/Stock-data/broker"
	"github.com/bhtaylor94/Stock-data/config"
	"github.com/bhtaylor94/Stock-data/engine"
	"github.com/bhtaylor94/Stock-data/investment"
	"github.com/bhtaylor94/Stock-data/ledger"
	"github.com/bhtaylor94/Stock-data/logs"
	"github.com/bhtaylor94/Stock-data/metrics"
	"github.com/bhtaylor94/Stock-data/monitor"
	"github.com/bhtaylor94/Stock-data/profit"
	"github.com/bhtaylor94/Stock-data/risk"
	"github.com/bhtaylor94/Stock-data/scanner"
	"github.com/bhtaylor94/Stock-data/state"
	"github.com/bhtaylor94/Stock-data/strategy"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Orchestrator struct {
	cfg          *config.Config
	gateway      broker.Gateway
	paper        *broker.PaperGateway
	ledger       *ledger.Ledger
	gate         *risk.Gate
	accountant   *profit.Accountant
	stateManager *state.StateManager
	scanner      *scanner.MarketScanner
	coordinator  *engine.Coordinator
	statusServer *monitor.Server
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

func NewOrchestrator(cfg *config.Config, envCfg *config.EnvConfig, stateFilePath string) (*Orchestrator, error) {
	if err := envCfg.Validate(); err != nil {
		return nil, err
	}

	// A token that cannot be read or has expired stops startup here.
	tokens := broker.NewFileTokenSource(envCfg.TokenPath)
	tokenCtx, tokenCancel := context.WithTimeout(context.Background(), 10*time.Second)
	_, err := tokens.AccessToken(tokenCtx)
	tokenCancel()
	if err != nil {
		return nil, fmt.Errorf("broker token check failed: %w", err)
	}

	client := broker.NewClient(broker.ClientOptions{
		TraderURL:            envCfg.TraderURL,
		MarketDataURL:        envCfg.MarketDataURL,
		AccountNumber:        envCfg.AccountNumber,
		TimeoutSeconds:       cfg.Normal.HTTPTimeoutSeconds,
		MaxRequestsPerMinute: cfg.Normal.MaxRequestsPerMinute,
	}, tokens)

	o := &Orchestrator{cfg: cfg}
	if cfg.TradingMode == config.ModeLive {
		o.gateway = client
	} else {
		o.paper = broker.NewPaperGateway(client, cfg.Engine.PaperStartingBalance)
		o.gateway = o.paper
		logs.Warnf("<<<<<<<<<< Paper trading: orders are simulated against live quotes >>>>>>>>>>")
	}

	o.stateManager, err = state.NewStateManager(stateFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state manager: %w", err)
	}
	logs.Infof("State manager initialized successfully, state will be persisted to: %s", stateFilePath)

	o.ledger = ledger.New()
	o.gate = risk.NewGate(cfg.Risk)
	o.accountant = profit.NewAccountant()

	if err := o.reconcileStateOnStartup(); err != nil {
		return nil, fmt.Errorf("failed to reconcile state on startup: %w", err)
	}

	sources, err := strategy.NewFromConfig(cfg.Strategy)
	if err != nil {
		return nil, fmt.Errorf("failed to create strategies: %w", err)
	}

	var ranker scanner.Ranker
	if cfg.Data.UseMarketScanner {
		o.scanner = scanner.NewMarketScanner(o.gateway, cfg.Data, scanner.Universe)
		ranker = o.scanner
	} else {
		ranker = scanner.NewStaticRanker(cfg.Data.StreamSymbols)
		logs.Infof("[Orchestrator] Using static watchlist: %v", cfg.Data.StreamSymbols)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	o.coordinator, err = engine.New(engine.Deps{
		Gateway:    o.gateway,
		Ledger:     o.ledger,
		Gate:       o.gate,
		Sources:    sources,
		Ranker:     ranker,
		Accountant: o.accountant,
		Exposure:   investment.NewManager(o.ledger, cfg.Risk.MaxTotalExposurePct),
		State:      o.stateManager,
		Metrics:    metrics.New(registry),
	}, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution coordinator: %w", err)
	}

	if cfg.Normal.StatusListenAddr != "" {
		opts := []monitor.Option{monitor.WithAllowedOrigins(cfg.Normal.StatusAllowedOrigins...)}
		if o.scanner != nil {
			opts = append(opts, monitor.WithMovers(o.scanner))
		}
		o.statusServer = monitor.NewServer(cfg.Normal.StatusListenAddr, o.coordinator, registry, opts...)
	}

	o.ctx, o.cancel = context.WithCancel(context.Background())
	return o, nil
}

// reconcileStateOnStartup restores the persisted risk counters, statistics
// and positions. In live mode the broker is the ground truth: saved
// positions it no longer holds are dropped.
func (o *Orchestrator) reconcileStateOnStartup() error {
	logs.Info("[Orchestrator] Starting state reconciliation on startup...")
	appState := o.stateManager.GetFullState()

	if appState.Mode != "" && appState.Mode != string(o.cfg.TradingMode) {
		logs.Warnf("[Orchestrator] State file was written in %s mode, now running %s. Ignoring saved positions.",
			appState.Mode, o.cfg.TradingMode)
		appState.Positions = nil
	}

	o.gate.Restore(appState.Risk)
	o.accountant.Restore(appState.StrategyStats, appState.LastLoss)

	positions := appState.Positions
	if o.cfg.TradingMode == config.ModeLive {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		held, err := o.gateway.GetPositions(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to get broker positions at startup: %w", err)
		}
		logs.Infof("[Orchestrator] Broker reports %d position(s).", len(held))
		positions = keepHeld(positions, held)
	} else if o.paper != nil {
		seed := make([]broker.Position, 0, len(positions))
		for _, p := range positions {
			seed = append(seed, broker.Position{Symbol: p.Symbol, Quantity: float64(p.Quantity), AveragePrice: p.EntryPrice})
		}
		o.paper.Seed(seed, o.accountant.Totals().TotalPnL)
	}

	for _, p := range positions {
		if _, err := o.ledger.InsertIfAbsent(p); err != nil {
			logs.Errorf("[Orchestrator-Reconciliation] Dropping saved position %s: %v", p.Symbol, err)
		}
	}

	if n := o.gate.PruneTrailingStops(o.ledger.Has); n > 0 {
		logs.Infof("[Orchestrator-Reconciliation] Dropped %d trailing stop(s) without a restored position.", n)
	}

	daily := o.gate.Daily()
	logs.Infof("[Orchestrator] Restored %d position(s), daily pnl %.2f over %d trade(s).",
		o.ledger.Len(), daily.PnL, daily.Trades)
	logs.Info("[Orchestrator] State reconciliation complete.")
	return nil
}

// keepHeld returns the saved positions the broker still holds on the same side.
func keepHeld(saved []ledger.Position, held []broker.Position) []ledger.Position {
	bySymbol := make(map[string]float64, len(held))
	for _, h := range held {
		bySymbol[h.Symbol] = h.Quantity
	}
	out := make([]ledger.Position, 0, len(saved))
	for _, p := range saved {
		qty, ok := bySymbol[p.Symbol]
		if !ok || qty == 0 || (qty > 0) != p.IsLong() {
			logs.Warnf("[Orchestrator-Reconciliation] State file records %s %d, but the broker holds %.0f. Dropping the local record.",
				p.Symbol, p.Quantity, qty)
			continue
		}
		out = append(out, p)
	}
	return out
}

func (o *Orchestrator) Start() error {
	if err := o.coordinator.Start(o.ctx); err != nil {
		return err
	}

	if o.scanner != nil {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.scanner.Run(o.ctx)
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		monitor.RunHeartbeat(o.ctx, o.coordinator, time.Duration(o.cfg.Normal.HeartbeatIntervalMinutes)*time.Minute)
	}()

	if o.statusServer != nil {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := o.statusServer.Start(); err != nil {
				logs.Errorf("[Orchestrator] Status API stopped: %v", err)
			}
		}()
	}

	logs.Infof("Engine started in %s mode, press Ctrl+C to exit.", o.cfg.TradingMode)
	return nil
}

func (o *Orchestrator) Stop() {
	logs.Info("Received close signal, starting graceful shutdown...")

	if err := o.coordinator.Stop(); err != nil {
		logs.Errorf("[Orchestrator] %v", err)
	}

	if o.statusServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := o.statusServer.Shutdown(ctx); err != nil {
			logs.Errorf("[Orchestrator] Status API shutdown failed: %v", err)
		}
		cancel()
	}

	o.printFinalSummary()

	o.cancel()
	o.wg.Wait()
	logs.Info("All services stopped successfully.")
}

func (o *Orchestrator) printFinalSummary() {
	st := o.coordinator.Status()
	logs.Info("\n--- Final PnL Summary ---")
	logs.Infof("Daily realized PnL: $%.2f over %d trade(s)", st.DailyPnL, st.DailyTrades)
	for name, s := range st.Strategies {
		logs.Infof("Strategy %s: signals %d, trades %d, win rate %.1f%%, pnl $%.2f",
			name, s.Signals, s.Trades, s.WinRate()*100, s.TotalPnL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	report, err := o.coordinator.RiskReport(ctx)
	if err != nil {
		logs.Errorf("Failed to price open positions: %v", err)
	} else {
		logs.Infof("Open positions: %d, exposure $%.2f (%.1f%%), open risk to stops $%.2f",
			report.NumPositions, report.TotalExposure, report.ExposurePct, report.OpenRisk)
	}
	logs.Info("--------------------")
	logs.Infof("Total realized PnL: $%.2f (win rate %.1f%%)", st.Totals.TotalPnL, st.Totals.WinRate*100)
	logs.Info("--------------------")
}
