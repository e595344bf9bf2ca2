package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bhtaylor94/Stock-data/broker"
	"github.com/bhtaylor94/Stock-data/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMarket struct {
	mu       sync.Mutex
	quotes   map[string]broker.Quote
	failWith map[string]bool // first symbol of a batch that should fail
	calls    int
}

func (f *fakeMarket) GetQuote(_ context.Context, symbol string) (*broker.Quote, error) {
	q := f.quotes[symbol]
	return &q, nil
}

func (f *fakeMarket) GetQuotes(_ context.Context, symbols []string) (map[string]broker.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failWith[symbols[0]] {
		return nil, &broker.TransientError{Op: "quotes", Err: errors.New("boom")}
	}
	out := make(map[string]broker.Quote)
	for _, s := range symbols {
		if q, ok := f.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

func (f *fakeMarket) GetPriceHistory(context.Context, string, broker.HistoryParams) ([]broker.Candle, error) {
	return nil, nil
}

func dataConfig() *config.DataConfig {
	return config.NewConfig().Data
}

func liquid(sym string, price float64, volume int64, change float64) broker.Quote {
	return broker.Quote{
		Symbol: sym, Price: price, Bid: price - 0.01, Ask: price + 0.01,
		Volume: volume, High: price * 1.02, Low: price * 0.99, ChangePct: change,
	}
}

func TestScore(t *testing.T) {
	// 10M volume (30), 3% range (25), 1% move (25), spread 0.02/99.99 < 0.1% (20).
	assert.Equal(t, 100.0, Score(liquid("AAPL", 100, 10_000_000, 1)))

	thin := broker.Quote{Price: 10, Volume: 100_000, High: 10.05, Low: 10.0, ChangePct: 0.1, Bid: 9.9, Ask: 10.0}
	// 10 + 5 + 10 + 5
	assert.Equal(t, 30.0, Score(thin))

	noBid := broker.Quote{Price: 10, Volume: 600_000, ChangePct: 6}
	// 15 + 0 (no range) + 20 + 0 (no spread)
	assert.Equal(t, 35.0, Score(noBid))
}

func TestScanFiltersAndRanks(t *testing.T) {
	market := &fakeMarket{quotes: map[string]broker.Quote{
		"AAA":  liquid("AAA", 100, 10_000_000, 1),
		"BBB":  liquid("BBB", 50, 600_000, 0.1),
		"PENY": liquid("PENY", 2, 10_000_000, 1),
		"THIN": liquid("THIN", 100, 1000, 1),
		"WIDE": {Symbol: "WIDE", Price: 100, Bid: 99, Ask: 101, Volume: 10_000_000},
	}}
	s := NewMarketScanner(market, dataConfig(), []string{"AAA", "BBB", "PENY", "THIN", "WIDE", "MISSING"})

	got, err := s.RankedCandidates(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, got, "nothing cached before the first scan")

	assert.Equal(t, 5, s.Scan(context.Background()))
	got, err = s.RankedCandidates(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, got)

	got, _ = s.RankedCandidates(context.Background(), 1)
	assert.Equal(t, []string{"AAA"}, got)

	calls := market.calls
	_, _ = s.RankedCandidates(context.Background(), 5)
	assert.Equal(t, calls, market.calls, "ranking reads the cache only")
}

func TestScanIsolatesFailedBatch(t *testing.T) {
	universe := make([]string, 0, 45)
	quotes := make(map[string]broker.Quote)
	for i := 0; i < 45; i++ {
		sym := string(rune('A'+i/26)) + string(rune('A'+i%26))
		universe = append(universe, sym)
		quotes[sym] = liquid(sym, 100, 10_000_000, 1)
	}
	market := &fakeMarket{quotes: quotes, failWith: map[string]bool{universe[20]: true}}
	s := NewMarketScanner(market, dataConfig(), universe)

	assert.Equal(t, 25, s.Scan(context.Background()))
	assert.Equal(t, 3, market.calls)
	assert.Equal(t, 25, s.Stats().TotalSymbols)
}

func TestTopMoversAndStats(t *testing.T) {
	market := &fakeMarket{quotes: map[string]broker.Quote{
		"UP":   liquid("UP", 10, 1_000_000, 3),
		"DOWN": liquid("DOWN", 30, 3_000_000, -5),
		"FLAT": liquid("FLAT", 20, 2_000_000, 0),
	}}
	s := NewMarketScanner(market, dataConfig(), []string{"UP", "DOWN", "FLAT"})
	s.Scan(context.Background())

	both := s.TopMovers(2, "both")
	require.Len(t, both, 2)
	assert.Equal(t, "DOWN", both[0].Symbol)
	assert.Equal(t, "UP", both[1].Symbol)

	up := s.TopMovers(10, "up")
	require.Len(t, up, 1)
	assert.Equal(t, "UP", up[0].Symbol)

	st := s.Stats()
	assert.Equal(t, 3, st.TotalSymbols)
	assert.InDelta(t, 2_000_000.0, st.AvgVolume, 1e-6)
	assert.InDelta(t, 20.0, st.AvgPrice, 1e-9)
	assert.False(t, st.LastScan.IsZero())
}

func TestRunStopsOnCancel(t *testing.T) {
	market := &fakeMarket{quotes: map[string]broker.Quote{"AAA": liquid("AAA", 100, 10_000_000, 1)}}
	s := NewMarketScanner(market, dataConfig(), []string{"AAA"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return s.Stats().TotalSymbols == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStaticRanker(t *testing.T) {
	r := NewStaticRanker([]string{"SPY", "QQQ", "IWM"})
	got, err := r.RankedCandidates(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"SPY", "QQQ"}, got)
	got, _ = r.RankedCandidates(context.Background(), 0)
	assert.Len(t, got, 3)
}
