package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bhtaylor94/Stock-data/orders"
)

// Quote is a point-in-time market snapshot for one symbol.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Volume    int64   `json:"volume"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	ChangePct float64 `json:"change_pct"`
}

// Candle is one OHLCV bar.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// HistoryParams selects the window and bar size of a price-history request.
type HistoryParams struct {
	PeriodType    string
	Period        int
	FrequencyType string
	Frequency     int
}

// AccountInfo carries the balances the engine sizes against.
type AccountInfo struct {
	Value       float64 `json:"account_value"`
	BuyingPower float64 `json:"buying_power"`
}

// Position is a holding as the broker reports it. Quantity is signed.
type Position struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	AveragePrice float64 `json:"average_price"`
}

// MarketData is the read-only half of the gateway.
type MarketData interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	GetQuotes(ctx context.Context, symbols []string) (map[string]Quote, error)
	GetPriceHistory(ctx context.Context, symbol string, params HistoryParams) ([]Candle, error)
}

// Gateway is everything the engine needs from a broker. Every call may block
// on the network and must honour ctx.
type Gateway interface {
	MarketData
	GetPositions(ctx context.Context) ([]Position, error)
	GetAccountInfo(ctx context.Context) (*AccountInfo, error)
	// PlaceOrder returns the broker's order id once the order is acknowledged.
	PlaceOrder(ctx context.Context, order orders.Order) (string, error)
	// CancelOrder reports false when the broker refused the cancel, for
	// example because the order already filled.
	CancelOrder(ctx context.Context, orderID string) (bool, error)
}

// ErrAuth means the credentials are missing, expired or rejected.
var ErrAuth = errors.New("broker authentication failed")

// TransientError wraps failures worth retrying: transport errors, timeouts,
// rate limiting and server-side errors.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: transient: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err, or anything it wraps, is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// APIError is a non-retryable rejection from the broker.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("broker API error: HTTP %d, body: %s", e.StatusCode, e.Body)
}
