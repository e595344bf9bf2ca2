// broker/client.go
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bhtaylor94/Stock-data/logs"
	"github.com/bhtaylor94/Stock-data/orders"

	"golang.org/x/time/rate"
)

var _ Gateway = (*Client)(nil)

// ClientOptions configures a Client.
type ClientOptions struct {
	TraderURL            string
	MarketDataURL        string
	AccountNumber        string
	TimeoutSeconds       int
	MaxRequestsPerMinute int
}

// Client talks to the Schwab trader and market-data REST APIs.
type Client struct {
	traderURL     string
	marketDataURL string
	accountNumber string
	tokens        TokenSource
	http          *http.Client
	limiter       *rate.Limiter

	mu          sync.Mutex
	accountHash string
}

// NewClient creates a REST client. Requests are throttled client-side to
// MaxRequestsPerMinute with a burst of a tenth of that.
func NewClient(opts ClientOptions, tokens TokenSource) *Client {
	perMinute := opts.MaxRequestsPerMinute
	if perMinute <= 0 {
		perMinute = 120
	}
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &Client{
		traderURL:     strings.TrimRight(opts.TraderURL, "/"),
		marketDataURL: strings.TrimRight(opts.MarketDataURL, "/"),
		accountNumber: opts.AccountNumber,
		tokens:        tokens,
		http:          &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second},
		limiter:       rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
	}
}

// sendRequest performs one authenticated JSON call and classifies failures:
// 401/403 wrap ErrAuth, 429/5xx and transport errors are TransientError,
// other 4xx are APIError.
func (c *Client) sendRequest(ctx context.Context, method, fullURL string, query url.Values, body interface{}, target interface{}) (http.Header, error) {
	op := method + " " + fullURL
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limiter: %w", op, err)
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Op: op, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrAuth, op, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &TransientError{Op: op, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))}
	case resp.StatusCode >= 400:
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if target != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, target); err != nil {
			return nil, fmt.Errorf("failed to decode JSON from %s: %w", op, err)
		}
	}
	return resp.Header, nil
}

type accountNumberEntry struct {
	AccountNumber string `json:"accountNumber"`
	HashValue     string `json:"hashValue"`
}

// resolveAccountHash maps the configured account number to the opaque hash
// the trader API expects. The result is cached for the client's lifetime.
func (c *Client) resolveAccountHash(ctx context.Context) (string, error) {
	c.mu.Lock()
	hash := c.accountHash
	c.mu.Unlock()
	if hash != "" {
		return hash, nil
	}

	var entries []accountNumberEntry
	if _, err := c.sendRequest(ctx, http.MethodGet, c.traderURL+"/accounts/accountNumbers", nil, nil, &entries); err != nil {
		return "", fmt.Errorf("failed to list account numbers: %w", err)
	}
	for _, e := range entries {
		if e.AccountNumber == c.accountNumber {
			c.mu.Lock()
			c.accountHash = e.HashValue
			c.mu.Unlock()
			logs.Infof("[Broker] Account %s resolved", maskAccount(c.accountNumber))
			return e.HashValue, nil
		}
	}
	return "", fmt.Errorf("account %s not found among %d linked accounts", maskAccount(c.accountNumber), len(entries))
}

func maskAccount(n string) string {
	if len(n) <= 4 {
		return "****"
	}
	return "****" + n[len(n)-4:]
}

type quoteEnvelope struct {
	Quote struct {
		LastPrice                float64 `json:"lastPrice"`
		BidPrice                 float64 `json:"bidPrice"`
		AskPrice                 float64 `json:"askPrice"`
		TotalVolume              int64   `json:"totalVolume"`
		HighPrice                float64 `json:"highPrice"`
		LowPrice                 float64 `json:"lowPrice"`
		NetPercentChange         float64 `json:"netPercentChange"`
		NetPercentChangeInDouble float64 `json:"netPercentChangeInDouble"`
	} `json:"quote"`
}

func (e quoteEnvelope) toQuote(symbol string) Quote {
	q := e.Quote
	change := q.NetPercentChange
	if change == 0 {
		change = q.NetPercentChangeInDouble
	}
	return Quote{
		Symbol:    symbol,
		Price:     q.LastPrice,
		Bid:       q.BidPrice,
		Ask:       q.AskPrice,
		Volume:    q.TotalVolume,
		High:      q.HighPrice,
		Low:       q.LowPrice,
		ChangePct: change,
	}
}

// GetQuote fetches a real-time quote for one symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	var raw map[string]quoteEnvelope
	endpoint := c.marketDataURL + "/quotes/" + url.PathEscape(symbol)
	if _, err := c.sendRequest(ctx, http.MethodGet, endpoint, nil, nil, &raw); err != nil {
		return nil, err
	}
	env, ok := raw[symbol]
	if !ok {
		return nil, &APIError{StatusCode: http.StatusNotFound, Body: "no quote returned for " + symbol}
	}
	q := env.toQuote(symbol)
	if q.Price <= 0 {
		return nil, &APIError{StatusCode: http.StatusNotFound, Body: "no last price for " + symbol}
	}
	return &q, nil
}

// GetQuotes fetches quotes for several symbols in one request. Symbols the
// broker does not return are absent from the map.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	var raw map[string]quoteEnvelope
	query := url.Values{"symbols": []string{strings.Join(symbols, ",")}}
	if _, err := c.sendRequest(ctx, http.MethodGet, c.marketDataURL+"/quotes", query, nil, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]Quote, len(raw))
	for sym, env := range raw {
		out[sym] = env.toQuote(sym)
	}
	return out, nil
}

type priceHistoryResponse struct {
	Candles []struct {
		Open     float64 `json:"open"`
		High     float64 `json:"high"`
		Low      float64 `json:"low"`
		Close    float64 `json:"close"`
		Volume   float64 `json:"volume"`
		Datetime int64   `json:"datetime"`
	} `json:"candles"`
	Empty bool `json:"empty"`
}

// GetPriceHistory returns bars oldest first.
func (c *Client) GetPriceHistory(ctx context.Context, symbol string, params HistoryParams) ([]Candle, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("periodType", params.PeriodType)
	query.Set("period", strconv.Itoa(params.Period))
	query.Set("frequencyType", params.FrequencyType)
	query.Set("frequency", strconv.Itoa(params.Frequency))

	var raw priceHistoryResponse
	if _, err := c.sendRequest(ctx, http.MethodGet, c.marketDataURL+"/pricehistory", query, nil, &raw); err != nil {
		return nil, err
	}
	candles := make([]Candle, 0, len(raw.Candles))
	for _, b := range raw.Candles {
		candles = append(candles, Candle{
			Time:   time.UnixMilli(b.Datetime),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	return candles, nil
}

type accountResponse struct {
	SecuritiesAccount struct {
		CurrentBalances struct {
			LiquidationValue float64 `json:"liquidationValue"`
			BuyingPower      float64 `json:"buyingPower"`
		} `json:"currentBalances"`
		Positions []struct {
			LongQuantity  float64 `json:"longQuantity"`
			ShortQuantity float64 `json:"shortQuantity"`
			AveragePrice  float64 `json:"averagePrice"`
			Instrument    struct {
				Symbol    string `json:"symbol"`
				AssetType string `json:"assetType"`
			} `json:"instrument"`
		} `json:"positions"`
	} `json:"securitiesAccount"`
}

func (c *Client) fetchAccount(ctx context.Context, fields string) (*accountResponse, error) {
	hash, err := c.resolveAccountHash(ctx)
	if err != nil {
		return nil, err
	}
	var query url.Values
	if fields != "" {
		query = url.Values{"fields": []string{fields}}
	}
	var raw accountResponse
	if _, err := c.sendRequest(ctx, http.MethodGet, c.traderURL+"/accounts/"+hash, query, nil, &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

// GetAccountInfo returns liquidation value and buying power.
func (c *Client) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	raw, err := c.fetchAccount(ctx, "")
	if err != nil {
		return nil, err
	}
	b := raw.SecuritiesAccount.CurrentBalances
	return &AccountInfo{Value: b.LiquidationValue, BuyingPower: b.BuyingPower}, nil
}

// GetPositions returns broker-side holdings with signed quantities.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	raw, err := c.fetchAccount(ctx, "positions")
	if err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(raw.SecuritiesAccount.Positions))
	for _, p := range raw.SecuritiesAccount.Positions {
		out = append(out, Position{
			Symbol:       p.Instrument.Symbol,
			Quantity:     p.LongQuantity - p.ShortQuantity,
			AveragePrice: p.AveragePrice,
		})
	}
	return out, nil
}

// PlaceOrder submits an order; the id comes from the Location header.
func (c *Client) PlaceOrder(ctx context.Context, order orders.Order) (string, error) {
	if err := orders.Validate(order); err != nil {
		return "", err
	}
	hash, err := c.resolveAccountHash(ctx)
	if err != nil {
		return "", err
	}
	header, err := c.sendRequest(ctx, http.MethodPost, c.traderURL+"/accounts/"+hash+"/orders", nil, order, nil)
	if err != nil {
		return "", err
	}
	location := header.Get("Location")
	if location == "" {
		logs.Warnf("[Broker] Order accepted without a Location header; order id unknown")
		return "", nil
	}
	return location[strings.LastIndex(location, "/")+1:], nil
}

// CancelOrder cancels a working order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	hash, err := c.resolveAccountHash(ctx)
	if err != nil {
		return false, err
	}
	endpoint := c.traderURL + "/accounts/" + hash + "/orders/" + url.PathEscape(orderID)
	if _, err := c.sendRequest(ctx, http.MethodDelete, endpoint, nil, nil, nil); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			logs.Warnf("[Broker] Cancel of order %s rejected: %v", orderID, apiErr)
			return false, nil
		}
		return false, err
	}
	return true, nil
}
