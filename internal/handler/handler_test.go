package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stocksim/internal/auth"
	"stocksim/internal/engine"
	"stocksim/internal/service"
	"stocksim/internal/store"
)

const testAdminToken = "test-admin-token"

type testServer struct {
	srv *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	books := engine.NewBooks()
	keychain, err := auth.LoadKeychain(st)
	require.NoError(t, err)

	logger := zap.NewNop()
	matcher := engine.NewMatcher(st, books, logger)
	adminSvc := service.NewAdminService(st, matcher, keychain, logger)
	require.NoError(t, adminSvc.EnsureTreasury(context.Background()))

	router := NewRouter(
		service.NewMarketService(st, books),
		service.NewTraderService(st, matcher),
		adminSvc,
		keychain,
		testAdminToken,
		nil, // no rate limiting in tests
		logger,
	)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv}
}

// request issues a JSON request and decodes the response body into out
// (when out is non-nil). headers maps header names to values.
func (ts *testServer) request(t *testing.T, method, path string, body any, headers map[string]string, out any) *http.Response {
	t.Helper()

	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func adminHeaders() map[string]string {
	return map[string]string{"X-Admin-Token": testAdminToken}
}

// createAccount provisions an account and returns its API key.
func (ts *testServer) createAccount(t *testing.T, id, initialCash string) string {
	t.Helper()
	var resp struct {
		APIKey string `json:"api_key"`
	}
	r := ts.request(t, http.MethodPost, "/admin/accounts",
		map[string]any{"account_id": id, "initial_cash": initialCash},
		adminHeaders(), &resp)
	require.Equal(t, http.StatusCreated, r.StatusCode)
	require.NotEmpty(t, resp.APIKey)
	return resp.APIKey
}

func (ts *testServer) createCompany(t *testing.T, ticker string, total, float int64, ipo string) {
	t.Helper()
	body := map[string]any{
		"ticker":       ticker,
		"name":         ticker + " Corp",
		"total_shares": total,
		"float_shares": float,
	}
	if ipo != "" {
		body["ipo_price"] = ipo
	}
	r := ts.request(t, http.MethodPost, "/admin/companies", body, adminHeaders(), nil)
	require.Equal(t, http.StatusCreated, r.StatusCode)
}

func errCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error.Code
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.request(t, http.MethodGet, "/health", nil, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminAuth(t *testing.T) {
	ts := newTestServer(t)

	// No token.
	resp := ts.request(t, http.MethodPost, "/admin/companies",
		map[string]any{"ticker": "TECH", "name": "t", "total_shares": 1}, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong token.
	resp = ts.request(t, http.MethodPost, "/admin/companies",
		map[string]any{"ticker": "TECH", "name": "t", "total_shares": 1},
		map[string]string{"X-Admin-Token": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTraderAuth(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodGet, "/account", nil, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, CodeUnauthorized, errCode(t, resp))

	resp = ts.request(t, http.MethodGet, "/account", nil,
		map[string]string{"X-API-Key": "sk_bogus"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCompanyCRUDAndConflicts(t *testing.T) {
	ts := newTestServer(t)
	ts.createCompany(t, "TECH", 1_000_000, 1_000, "100.00")

	// Duplicate ticker conflicts.
	resp := ts.request(t, http.MethodPost, "/admin/companies",
		map[string]any{"ticker": "TECH", "name": "again", "total_shares": 10},
		adminHeaders(), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, CodeConflict, errCode(t, resp))

	var company struct {
		Ticker   string  `json:"ticker"`
		IPOPrice *string `json:"ipo_price"`
	}
	resp = ts.request(t, http.MethodGet, "/companies/TECH", nil, nil, &company)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "TECH", company.Ticker)
	require.NotNil(t, company.IPOPrice)
	assert.Equal(t, "100.00", *company.IPOPrice)

	resp = ts.request(t, http.MethodGet, "/companies/NOPE", nil, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEndToEnd_IPOMarketBuy(t *testing.T) {
	ts := newTestServer(t)
	ts.createCompany(t, "TECH", 1_000_000, 1_000, "100.00")
	aliceKey := ts.createAccount(t, "alice", "5000.00")
	aliceHeaders := map[string]string{"X-API-Key": aliceKey}

	// The IPO float rests as an ask.
	var book struct {
		Asks []struct {
			Price    string `json:"price"`
			Quantity int64  `json:"quantity"`
		} `json:"asks"`
	}
	resp := ts.request(t, http.MethodGet, "/orderbook/TECH?depth=5", nil, nil, &book)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, book.Asks, 1)
	assert.Equal(t, "100.00", book.Asks[0].Price)
	assert.Equal(t, int64(1000), book.Asks[0].Quantity)

	// Market buy 10 shares.
	var placed struct {
		Status string `json:"status"`
		Fills  []struct {
			Price    string `json:"price"`
			Quantity int64  `json:"quantity"`
		} `json:"fills"`
	}
	resp = ts.request(t, http.MethodPost, "/orders",
		map[string]any{"ticker": "TECH", "side": "BUY", "order_type": "MARKET", "quantity": 10},
		aliceHeaders, &placed)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "FILLED", placed.Status)
	require.Len(t, placed.Fills, 1)
	assert.Equal(t, "100.00", placed.Fills[0].Price)
	assert.Equal(t, int64(10), placed.Fills[0].Quantity)

	// Cash and holdings settled.
	var account struct {
		CashBalance string `json:"cash_balance"`
	}
	ts.request(t, http.MethodGet, "/account", nil, aliceHeaders, &account)
	assert.Equal(t, "4000.00", account.CashBalance)

	var holdings struct {
		Holdings []struct {
			Ticker   string `json:"ticker"`
			Quantity int64  `json:"quantity"`
		} `json:"holdings"`
	}
	ts.request(t, http.MethodGet, "/holdings", nil, aliceHeaders, &holdings)
	require.Len(t, holdings.Holdings, 1)
	assert.Equal(t, int64(10), holdings.Holdings[0].Quantity)

	// The trade shows up in public data.
	var trades struct {
		Trades []struct {
			Price string `json:"price"`
		} `json:"trades"`
	}
	ts.request(t, http.MethodGet, "/trades/TECH", nil, nil, &trades)
	require.Len(t, trades.Trades, 1)

	var md struct {
		LastPrice *string `json:"last_price"`
		MarketCap *string `json:"market_cap"`
	}
	ts.request(t, http.MethodGet, "/market-data/TECH", nil, nil, &md)
	require.NotNil(t, md.LastPrice)
	assert.Equal(t, "100.00", *md.LastPrice)
	require.NotNil(t, md.MarketCap)
	assert.Equal(t, "100000000.00", *md.MarketCap) // 100.00 × 1,000,000 shares
}

func TestOrderValidationAndPrechecks(t *testing.T) {
	ts := newTestServer(t)
	ts.createCompany(t, "TECH", 1_000, 0, "")
	key := ts.createAccount(t, "alice", "50.00")
	headers := map[string]string{"X-API-Key": key}

	// LIMIT without price.
	resp := ts.request(t, http.MethodPost, "/orders",
		map[string]any{"ticker": "TECH", "side": "BUY", "order_type": "LIMIT", "quantity": 1},
		headers, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, CodeInvalidParameters, errCode(t, resp))

	// MARKET with price.
	resp = ts.request(t, http.MethodPost, "/orders",
		map[string]any{"ticker": "TECH", "side": "BUY", "order_type": "MARKET", "quantity": 1, "price": "10.00"},
		headers, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown ticker.
	resp = ts.request(t, http.MethodPost, "/orders",
		map[string]any{"ticker": "NOPE", "side": "BUY", "order_type": "LIMIT", "quantity": 1, "price": "10.00"},
		headers, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, CodeNotFound, errCode(t, resp))

	// Insufficient funds: $50 cash, $100 order.
	resp = ts.request(t, http.MethodPost, "/orders",
		map[string]any{"ticker": "TECH", "side": "BUY", "order_type": "LIMIT", "quantity": 1, "price": "100.00"},
		headers, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, CodeInsufficientFunds, errCode(t, resp))

	// No order row was created.
	var orders struct {
		Orders []any `json:"orders"`
	}
	ts.request(t, http.MethodGet, "/orders", nil, headers, &orders)
	assert.Empty(t, orders.Orders)

	// Insufficient shares.
	resp = ts.request(t, http.MethodPost, "/orders",
		map[string]any{"ticker": "TECH", "side": "SELL", "order_type": "LIMIT", "quantity": 1, "price": "100.00"},
		headers, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, CodeInsufficientShares, errCode(t, resp))
}

func TestCancelFlowAndOwnership(t *testing.T) {
	ts := newTestServer(t)
	ts.createCompany(t, "TECH", 1_000, 0, "")
	aliceKey := ts.createAccount(t, "alice", "1000.00")
	mallyKey := ts.createAccount(t, "mallory", "1000.00")
	alice := map[string]string{"X-API-Key": aliceKey}
	mallory := map[string]string{"X-API-Key": mallyKey}

	var placed struct {
		ID string `json:"id"`
	}
	resp := ts.request(t, http.MethodPost, "/orders",
		map[string]any{"ticker": "TECH", "side": "BUY", "order_type": "LIMIT", "quantity": 2, "price": "10.00"},
		alice, &placed)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Another account cannot see or cancel it.
	resp = ts.request(t, http.MethodGet, "/orders/"+placed.ID, nil, mallory, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = ts.request(t, http.MethodDelete, "/orders/"+placed.ID, nil, mallory, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Owner cancels; second cancel conflicts.
	var cancelled struct {
		Status string `json:"status"`
	}
	resp = ts.request(t, http.MethodDelete, "/orders/"+placed.ID, nil, alice, &cancelled)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "CANCELLED", cancelled.Status)

	resp = ts.request(t, http.MethodDelete, "/orders/"+placed.ID, nil, alice, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, CodeConflict, errCode(t, resp))

	// Unknown order is 404, not 409.
	resp = ts.request(t, http.MethodDelete, "/orders/nope", nil, alice, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMarketBuyOnEmptyBook(t *testing.T) {
	ts := newTestServer(t)
	ts.createCompany(t, "TECH", 1_000, 0, "")
	key := ts.createAccount(t, "alice", "1000.00")

	var placed struct {
		Status string `json:"status"`
		Fills  []any  `json:"fills"`
	}
	resp := ts.request(t, http.MethodPost, "/orders",
		map[string]any{"ticker": "TECH", "side": "BUY", "order_type": "MARKET", "quantity": 5},
		map[string]string{"X-API-Key": key}, &placed)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "CANCELLED", placed.Status)
	assert.Empty(t, placed.Fills)
}

func TestAdminStatsAndOrderbook(t *testing.T) {
	ts := newTestServer(t)
	ts.createCompany(t, "TECH", 1_000_000, 1_000, "100.00")
	ts.createAccount(t, "alice", "5000.00")

	var stats struct {
		Companies int64  `json:"companies"`
		Accounts  int64  `json:"accounts"`
		Orders    int64  `json:"orders"`
		TotalCash string `json:"total_cash"`
	}
	resp := ts.request(t, http.MethodGet, "/admin/stats", nil, adminHeaders(), &stats)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), stats.Companies)
	assert.Equal(t, int64(2), stats.Accounts, "treasury plus alice")
	assert.Equal(t, int64(1), stats.Orders, "the IPO ask")
	assert.Equal(t, "5000.00", stats.TotalCash)

	var book struct {
		Asks []struct {
			AccountID string `json:"account_id"`
			Remaining int64  `json:"remaining_quantity"`
		} `json:"asks"`
	}
	resp = ts.request(t, http.MethodGet, "/admin/orderbook/TECH", nil, adminHeaders(), &book)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, book.Asks, 1)
	assert.Equal(t, "treasury", book.Asks[0].AccountID)
	assert.Equal(t, int64(1000), book.Asks[0].Remaining)
}

func TestContentTypeRequired(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/admin/companies",
		bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	req.Header.Set("X-Admin-Token", testAdminToken)
	// No Content-Type header.
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOrderbookDepthValidation(t *testing.T) {
	ts := newTestServer(t)
	ts.createCompany(t, "TECH", 1_000, 0, "")

	resp := ts.request(t, http.MethodGet, "/orderbook/TECH?depth=0", nil, nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.request(t, http.MethodGet, fmt.Sprintf("/orderbook/TECH?depth=%d", 101), nil, nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
