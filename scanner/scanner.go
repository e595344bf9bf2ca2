// scanner/scanner.go
package scanner

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/bhtaylor94/Stock-data/broker"
	"github.com/bhtaylor94/Stock-data/config"
	"github.com/bhtaylor94/Stock-data/logs"
)

// Ranker produces the ordered candidate list the scan loop evaluates.
type Ranker interface {
	RankedCandidates(ctx context.Context, max int) ([]string, error)
}

// StaticRanker returns the configured watchlist in order.
type StaticRanker struct {
	symbols []string
}

func NewStaticRanker(symbols []string) *StaticRanker {
	return &StaticRanker{symbols: append([]string(nil), symbols...)}
}

func (r *StaticRanker) RankedCandidates(_ context.Context, max int) ([]string, error) {
	if max <= 0 || max > len(r.symbols) {
		max = len(r.symbols)
	}
	return append([]string(nil), r.symbols[:max]...), nil
}

// batchSize bounds the symbols per quotes request.
const batchSize = 20

// Universe is the default scan list: large-cap S&P 500 names plus liquid ETFs.
var Universe = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "AVGO", "ORCL", "ADBE",
	"CRM", "AMD", "CSCO", "INTC", "QCOM", "TXN", "AMAT", "INTU", "NFLX", "PYPL",
	"BRK.B", "JPM", "V", "MA", "BAC", "WFC", "GS", "MS", "AXP", "SPGI",
	"BLK", "C", "SCHW", "CB", "PGR", "MMC", "USB", "TFC", "PNC", "AFL",
	"UNH", "JNJ", "LLY", "ABBV", "MRK", "TMO", "ABT", "DHR", "PFE", "BMY",
	"AMGN", "GILD", "CVS", "CI", "REGN", "VRTX", "ZTS", "ISRG", "BSX", "SYK",
	"WMT", "HD", "PG", "COST", "KO", "PEP", "MCD", "NKE", "SBUX", "TGT",
	"LOW", "DIS", "CMCSA", "VZ", "T", "TMUS", "PM", "MO", "EL", "CL",
	"XOM", "CVX", "CAT", "RTX", "UNP", "HON", "BA", "UPS", "GE", "LMT",
	"DE", "MMM", "ADP", "SLB", "EOG", "PXD", "COP", "WM", "NSC", "EMR",
	"SPY", "QQQ", "IWM", "DIA",
	"XLF", "XLK", "XLE", "XLV", "XLY", "XLP", "XLI", "XLU", "XLB", "XLRE", "XLC",
	"VXX", "UVXY", "SQQQ", "TQQQ", "SPXL", "SPXS",
}

// Candidate is a scored symbol.
type Candidate struct {
	Symbol string       `json:"symbol"`
	Score  float64      `json:"score"`
	Quote  broker.Quote `json:"quote"`
}

// Stats summarises the scan cache.
type Stats struct {
	TotalSymbols int       `json:"total_symbols"`
	LastScan     time.Time `json:"last_scan"`
	AvgVolume    float64   `json:"avg_volume"`
	AvgPrice     float64   `json:"avg_price"`
	AvgChangePct float64   `json:"avg_change_pct"`
}

// MarketScanner refreshes quotes for a symbol universe on its own schedule
// and ranks the cached results on demand.
type MarketScanner struct {
	market   broker.MarketData
	cfg      *config.DataConfig
	universe []string
	interval time.Duration

	mu       sync.RWMutex
	cache    map[string]broker.Quote
	lastScan time.Time
}

// NewMarketScanner scans universe, or Universe when it is empty.
func NewMarketScanner(market broker.MarketData, cfg *config.DataConfig, universe []string) *MarketScanner {
	if len(universe) == 0 {
		universe = Universe
	}
	interval := time.Duration(cfg.ScannerUpdateIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s := &MarketScanner{
		market:   market,
		cfg:      cfg,
		universe: append([]string(nil), universe...),
		interval: interval,
		cache:    make(map[string]broker.Quote),
	}
	logs.Infof("[Scanner] Market scanner initialized with %d symbols", len(s.universe))
	return s
}

// Run scans immediately and then every interval until ctx is done.
func (s *MarketScanner) Run(ctx context.Context) {
	s.Scan(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logs.Info("[Scanner] Received stop signal, exiting.")
			return
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

// Scan refreshes the cache batch by batch. A failed batch is logged and
// skipped; its symbols keep their previous quotes.
func (s *MarketScanner) Scan(ctx context.Context) int {
	logs.Info("[Scanner] Scanning market universe...")
	scanned := 0
	for i := 0; i < len(s.universe); i += batchSize {
		if ctx.Err() != nil {
			return scanned
		}
		end := i + batchSize
		if end > len(s.universe) {
			end = len(s.universe)
		}
		batch := s.universe[i:end]

		quotes, err := s.market.GetQuotes(ctx, batch)
		if err != nil {
			logs.Errorf("[Scanner] Error scanning batch %d-%d: %v", i, end, err)
			continue
		}
		s.mu.Lock()
		for _, sym := range batch {
			if q, ok := quotes[sym]; ok && q.Price > 0 {
				s.cache[sym] = q
				scanned++
			}
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.lastScan = time.Now()
	s.mu.Unlock()
	logs.Infof("[Scanner] Scan complete: %d symbols cached", scanned)
	return scanned
}

func spreadPct(q broker.Quote) (float64, bool) {
	if q.Bid <= 0 {
		return 0, false
	}
	return (q.Ask - q.Bid) / q.Bid, true
}

func (s *MarketScanner) passes(q broker.Quote) bool {
	if q.Price < s.cfg.MinPrice || q.Price > s.cfg.MaxPrice {
		return false
	}
	if q.Volume < s.cfg.MinVolume {
		return false
	}
	if spread, ok := spreadPct(q); ok && spread > s.cfg.MaxSpreadPct {
		return false
	}
	return true
}

// Score rates a quote from 0 to 100 on liquidity, intraday range, momentum
// and spread. Higher is better.
func Score(q broker.Quote) float64 {
	var score float64

	switch {
	case q.Volume >= 10_000_000:
		score += 30
	case q.Volume >= 5_000_000:
		score += 25
	case q.Volume >= 1_000_000:
		score += 20
	case q.Volume >= 500_000:
		score += 15
	default:
		score += 10
	}

	if q.High > 0 && q.Low > 0 && q.Price > 0 {
		r := (q.High - q.Low) / q.Price
		switch {
		case r >= 0.02 && r <= 0.08:
			score += 25
		case r >= 0.01 && r <= 0.10:
			score += 20
		case r < 0.01:
			score += 5
		default:
			score += 10
		}
	}

	change := math.Abs(q.ChangePct)
	switch {
	case change >= 0.5 && change <= 5.0:
		score += 25
	case change >= 0.2 && change <= 7.0:
		score += 20
	default:
		score += 10
	}

	if spread, ok := spreadPct(q); ok {
		switch {
		case spread <= 0.001:
			score += 20
		case spread <= 0.002:
			score += 15
		case spread <= 0.005:
			score += 10
		default:
			score += 5
		}
	}
	return score
}

// Candidates filters and scores the cache, best first. Ties break by symbol.
func (s *MarketScanner) Candidates() []Candidate {
	s.mu.RLock()
	out := make([]Candidate, 0, len(s.cache))
	for sym, q := range s.cache {
		if s.passes(q) {
			out = append(out, Candidate{Symbol: sym, Score: Score(q), Quote: q})
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// RankedCandidates returns up to max symbols from the cache. It never calls the broker.
func (s *MarketScanner) RankedCandidates(_ context.Context, max int) ([]string, error) {
	cands := s.Candidates()
	if max > 0 && len(cands) > max {
		cands = cands[:max]
	}
	symbols := make([]string, len(cands))
	for i, c := range cands {
		symbols[i] = c.Symbol
	}
	logs.Debugf("[Scanner] Selected %d symbols for trading", len(symbols))
	return symbols, nil
}

// TopMovers ranks cached symbols by absolute percentage change. direction is
// "up", "down" or anything else for both.
func (s *MarketScanner) TopMovers(count int, direction string) []broker.Quote {
	s.mu.RLock()
	movers := make([]broker.Quote, 0, len(s.cache))
	for _, q := range s.cache {
		if direction == "up" && q.ChangePct <= 0 {
			continue
		}
		if direction == "down" && q.ChangePct >= 0 {
			continue
		}
		movers = append(movers, q)
	}
	s.mu.RUnlock()
	sort.Slice(movers, func(i, j int) bool {
		return math.Abs(movers[i].ChangePct) > math.Abs(movers[j].ChangePct)
	})
	if count > 0 && len(movers) > count {
		movers = movers[:count]
	}
	return movers
}

// Stats reports cache size, last scan time and averages.
func (s *MarketScanner) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{TotalSymbols: len(s.cache), LastScan: s.lastScan}
	if len(s.cache) == 0 {
		return st
	}
	for _, q := range s.cache {
		st.AvgVolume += float64(q.Volume)
		st.AvgPrice += q.Price
		st.AvgChangePct += q.ChangePct
	}
	n := float64(len(s.cache))
	st.AvgVolume /= n
	st.AvgPrice /= n
	st.AvgChangePct /= n
	return st
}
