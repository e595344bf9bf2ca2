package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bhtaylor94/Stock-data/orders"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientOptions{
		TraderURL:            srv.URL + "/trader/v1",
		MarketDataURL:        srv.URL + "/marketdata/v1",
		AccountNumber:        "12345678",
		TimeoutSeconds:       5,
		MaxRequestsPerMinute: 6000,
	}, StaticToken("tok"))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func accountNumbersHandler(w http.ResponseWriter) {
	writeJSON(w, []map[string]string{
		{"accountNumber": "999", "hashValue": "OTHER"},
		{"accountNumber": "12345678", "hashValue": "HASH"},
	})
}

func TestGetQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/marketdata/v1/quotes/AAPL", r.URL.Path)
		writeJSON(w, map[string]interface{}{
			"AAPL": map[string]interface{}{"quote": map[string]interface{}{
				"lastPrice": 187.5, "bidPrice": 187.49, "askPrice": 187.51,
				"totalVolume": 5500000, "highPrice": 189, "lowPrice": 185,
				"netPercentChange": 1.2,
			}},
		})
	})
	q, err := c.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 187.5, q.Price)
	assert.Equal(t, int64(5500000), q.Volume)
	assert.Equal(t, 1.2, q.ChangePct)
}

func TestGetQuoteMissingSymbol(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{})
	})
	_, err := c.GetQuote(context.Background(), "NOPE")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
}

func TestGetQuotesBatched(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/marketdata/v1/quotes", r.URL.Path)
		assert.Equal(t, "AAPL,MSFT", r.URL.Query().Get("symbols"))
		writeJSON(w, map[string]interface{}{
			"AAPL": map[string]interface{}{"quote": map[string]interface{}{"lastPrice": 1.0}},
			"MSFT": map[string]interface{}{"quote": map[string]interface{}{"lastPrice": 2.0, "netPercentChangeInDouble": -0.5}},
		})
	})
	qs, err := c.GetQuotes(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, 2.0, qs["MSFT"].Price)
	assert.Equal(t, -0.5, qs["MSFT"].ChangePct)
}

func TestGetPriceHistory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "SPY", q.Get("symbol"))
		assert.Equal(t, "minute", q.Get("frequencyType"))
		assert.Equal(t, "5", q.Get("frequency"))
		writeJSON(w, map[string]interface{}{"candles": []map[string]interface{}{
			{"open": 1, "high": 2, "low": 0.5, "close": 1.5, "volume": 100, "datetime": 1700000000000},
			{"open": 1.5, "high": 2.5, "low": 1, "close": 2, "volume": 200, "datetime": 1700000300000},
		}})
	})
	bars, err := c.GetPriceHistory(context.Background(), "SPY", HistoryParams{PeriodType: "day", Period: 10, FrequencyType: "minute", Frequency: 5})
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 2.0, bars[1].Close)
	assert.Equal(t, int64(1700000300), bars[1].Time.Unix())
}

func TestAccountAndPositions(t *testing.T) {
	var hashLookups int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/trader/v1/accounts/accountNumbers":
			hashLookups++
			accountNumbersHandler(w)
		case "/trader/v1/accounts/HASH":
			writeJSON(w, map[string]interface{}{"securitiesAccount": map[string]interface{}{
				"currentBalances": map[string]interface{}{"liquidationValue": 10000, "buyingPower": 8000},
				"positions": []map[string]interface{}{
					{"longQuantity": 20, "averagePrice": 50, "instrument": map[string]interface{}{"symbol": "AAPL"}},
					{"shortQuantity": 5, "averagePrice": 200, "instrument": map[string]interface{}{"symbol": "TSLA"}},
				},
			}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	info, err := c.GetAccountInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10000.0, info.Value)
	assert.Equal(t, 8000.0, info.BuyingPower)

	positions, err := c.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, 20.0, positions[0].Quantity)
	assert.Equal(t, -5.0, positions[1].Quantity)
	assert.Equal(t, 1, hashLookups, "account hash is cached")
}

func TestUnknownAccount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]string{{"accountNumber": "1", "hashValue": "X"}})
	})
	_, err := c.GetAccountInfo(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "****5678")
}

func TestPlaceOrderReturnsLocationID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "accountNumbers") {
			accountNumbersHandler(w)
			return
		}
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/trader/v1/accounts/HASH/orders", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "TRIGGER", body["orderStrategyType"])
		w.Header().Set("Location", "https://api.example/trader/v1/accounts/HASH/orders/98765")
		w.WriteHeader(http.StatusCreated)
	})
	id, err := c.PlaceOrder(context.Background(), orders.BracketOrder("AAPL", 20, 50, 49, 52, orders.Equity, true))
	require.NoError(t, err)
	assert.Equal(t, "98765", id)
}

func TestPlaceOrderRejectsInvalidBeforeSending(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected, got %s", r.URL.Path)
	})
	o := orders.EquityOrder("AAPL", 0, orders.Buy, orders.Market, orders.Day, 0, 0)
	_, err := c.PlaceOrder(context.Background(), o)
	var verr *orders.ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
		auth      bool
	}{
		{http.StatusUnauthorized, false, true},
		{http.StatusForbidden, false, true},
		{http.StatusTooManyRequests, true, false},
		{http.StatusBadGateway, true, false},
		{http.StatusBadRequest, false, false},
	}
	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"message":"nope"}`))
		})
		_, err := c.GetQuote(context.Background(), "AAPL")
		require.Error(t, err)
		assert.Equal(t, tc.transient, IsTransient(err), "status %d", tc.status)
		assert.Equal(t, tc.auth, errors.Is(err, ErrAuth), "status %d", tc.status)
		if !tc.transient && !tc.auth {
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.status, apiErr.StatusCode)
		}
	}
}

func TestTransportFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()
	c := NewClient(ClientOptions{MarketDataURL: url, TimeoutSeconds: 1, MaxRequestsPerMinute: 6000}, StaticToken("tok"))
	_, err := c.GetQuote(context.Background(), "AAPL")
	assert.True(t, IsTransient(err))
}

func TestCancelOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "accountNumbers") {
			accountNumbersHandler(w)
			return
		}
		assert.Equal(t, http.MethodDelete, r.Method)
		if strings.HasSuffix(r.URL.Path, "/orders/1") {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	})
	ok, err := c.CancelOrder(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.CancelOrder(context.Background(), "2")
	require.NoError(t, err)
	assert.False(t, ok, "rejected cancel is not an error")
}

func TestMissingTokenIsAuthError(t *testing.T) {
	c := NewClient(ClientOptions{MarketDataURL: "http://127.0.0.1:1", MaxRequestsPerMinute: 6000}, StaticToken(""))
	_, err := c.GetQuote(context.Background(), "AAPL")
	assert.True(t, errors.Is(err, ErrAuth))
}
