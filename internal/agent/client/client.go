// Package client is a thin, retrying HTTP client for the exchange's
// public and trader API. It retries transport errors and 5xx responses
// with exponential backoff and never retries 4xx. Order placement is the
// exception: PlaceOrder makes a single attempt whatever the failure.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stocksim/internal/domain"
)

const (
	requestTimeout = 5 * time.Second
	maxRetries     = 3
	backoffBase    = 100 * time.Millisecond
	backoffMax     = time.Second
)

// APIError is a non-2xx response from the exchange.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange API error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 APIError.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to one exchange with one account's API key.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a Client for the given exchange URL and API key.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// Account mirrors GET /account.
type Account struct {
	AccountID   string `json:"account_id"`
	CashBalance string `json:"cash_balance"`
	CreatedAt   string `json:"created_at"`
}

// CashCents parses the account's balance into cents.
func (a Account) CashCents() (int64, error) {
	return domain.ParseCents(a.CashBalance)
}

// Holding mirrors one entry of GET /holdings.
type Holding struct {
	Ticker   string `json:"ticker"`
	Quantity int64  `json:"quantity"`
}

// Company mirrors one entry of GET /companies.
type Company struct {
	Ticker      string `json:"ticker"`
	Name        string `json:"name"`
	TotalShares int64  `json:"total_shares"`
	FloatShares int64  `json:"float_shares"`
}

// BookLevel is one aggregated price level.
type BookLevel struct {
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
}

// PriceCents parses the level price into cents.
func (l BookLevel) PriceCents() (int64, error) {
	return domain.ParseCents(l.Price)
}

// OrderBook mirrors GET /orderbook/{ticker}.
type OrderBook struct {
	Ticker    string      `json:"ticker"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Spread    *string     `json:"spread"`
	LastPrice *string     `json:"last_price"`
}

// Trade mirrors one entry of GET /trades/{ticker}.
type Trade struct {
	ID        string `json:"id"`
	Price     string `json:"price"`
	Quantity  int64  `json:"quantity"`
	Timestamp string `json:"timestamp"`
}

// Order mirrors the exchange's order responses.
type Order struct {
	ID                string  `json:"id"`
	Ticker            string  `json:"ticker"`
	Side              string  `json:"side"`
	OrderType         string  `json:"order_type"`
	Price             *string `json:"price"`
	Quantity          int64   `json:"quantity"`
	RemainingQuantity int64   `json:"remaining_quantity"`
	Status            string  `json:"status"`
	Timestamp         string  `json:"timestamp"`
}

// GetCompanies fetches all listed companies.
func (c *Client) GetCompanies(ctx context.Context) ([]Company, error) {
	var resp struct {
		Companies []Company `json:"companies"`
	}
	if err := c.get(ctx, "/companies", nil, false, &resp); err != nil {
		return nil, err
	}
	return resp.Companies, nil
}

// GetOrderBook fetches the aggregated book for a ticker.
func (c *Client) GetOrderBook(ctx context.Context, ticker string, depth int) (*OrderBook, error) {
	q := url.Values{"depth": {fmt.Sprint(depth)}}
	var book OrderBook
	if err := c.get(ctx, "/orderbook/"+ticker, q, false, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

// GetTrades fetches recent trades for a ticker, newest first.
func (c *Client) GetTrades(ctx context.Context, ticker string, limit int) ([]Trade, error) {
	q := url.Values{"limit": {fmt.Sprint(limit)}}
	var resp struct {
		Trades []Trade `json:"trades"`
	}
	if err := c.get(ctx, "/trades/"+ticker, q, false, &resp); err != nil {
		return nil, err
	}
	return resp.Trades, nil
}

// GetAccount fetches the authenticated account.
func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	var account Account
	if err := c.get(ctx, "/account", nil, true, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetHoldings fetches the authenticated account's positions.
func (c *Client) GetHoldings(ctx context.Context) ([]Holding, error) {
	var resp struct {
		Holdings []Holding `json:"holdings"`
	}
	if err := c.get(ctx, "/holdings", nil, true, &resp); err != nil {
		return nil, err
	}
	return resp.Holdings, nil
}

// GetOrders fetches the account's orders, optionally filtered.
func (c *Client) GetOrders(ctx context.Context, status, ticker string) ([]Order, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if ticker != "" {
		q.Set("ticker", ticker)
	}
	var resp struct {
		Orders []Order `json:"orders"`
	}
	if err := c.get(ctx, "/orders", q, true, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// PlaceOrderRequest is the POST /orders body. Price is a decimal
// string, nil for market orders.
type PlaceOrderRequest struct {
	Ticker    string  `json:"ticker"`
	Side      string  `json:"side"`
	OrderType string  `json:"order_type"`
	Quantity  int64   `json:"quantity"`
	Price     *string `json:"price,omitempty"`
}

// PlaceOrder submits an order and returns its final state.
// Order placement is not idempotent, so it is never retried; a
// transport failure surfaces to the caller instead of risking a
// duplicate submit.
func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodPost, "/orders", nil, req, true, &order, false); err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrder cancels a resting order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodDelete, "/orders/"+orderID, nil, nil, true, &order, true); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, authed bool, out any) error {
	return c.do(ctx, http.MethodGet, path, q, nil, authed, out, true)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body any, authed bool, out any, retryable bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	attempts := 1
	if retryable {
		attempts = maxRetries + 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := backoffBase << (attempt - 1)
			if backoff > backoffMax {
				backoff = backoffMax
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := c.once(ctx, method, path, q, payload, authed, out)
		if err == nil {
			return nil
		}
		lastErr = err

		// 4xx responses are final; transport errors and 5xx retry.
		if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode < 500 {
			return err
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, path string, q url.Values, payload []byte, authed bool, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       envelope.Error.Code,
			Message:    envelope.Error.Message,
		}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
