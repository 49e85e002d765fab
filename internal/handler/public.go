package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"stocksim/internal/domain"
	"stocksim/internal/engine"
	"stocksim/internal/service"
)

// PublicHandler serves unauthenticated market-data endpoints.
type PublicHandler struct {
	market *service.MarketService
}

// NewPublicHandler creates a PublicHandler.
func NewPublicHandler(market *service.MarketService) *PublicHandler {
	return &PublicHandler{market: market}
}

type companyResponse struct {
	Ticker      string  `json:"ticker"`
	Name        string  `json:"name"`
	TotalShares int64   `json:"total_shares"`
	FloatShares int64   `json:"float_shares"`
	IPOPrice    *string `json:"ipo_price"`
	CreatedAt   string  `json:"created_at"`
}

type companyListResponse struct {
	Companies []companyResponse `json:"companies"`
}

type priceLevelResponse struct {
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
	Orders   int    `json:"orders"`
}

type orderBookResponse struct {
	Ticker    string               `json:"ticker"`
	Bids      []priceLevelResponse `json:"bids"`
	Asks      []priceLevelResponse `json:"asks"`
	Spread    *string              `json:"spread"`
	LastPrice *string              `json:"last_price"`
}

type tradeResponse struct {
	ID        string `json:"id"`
	Ticker    string `json:"ticker"`
	Price     string `json:"price"`
	Quantity  int64  `json:"quantity"`
	Timestamp string `json:"timestamp"`
}

type tradesResponse struct {
	Ticker string          `json:"ticker"`
	Trades []tradeResponse `json:"trades"`
}

type marketDataResponse struct {
	Ticker      string  `json:"ticker"`
	LastPrice   *string `json:"last_price"`
	ChangePct   *string `json:"change_24h_pct"`
	Volume24h   int64   `json:"volume_24h"`
	High24h     *string `json:"high_24h"`
	Low24h      *string `json:"low_24h"`
	Open24h     *string `json:"open_24h"`
	MarketCap   *string `json:"market_cap"`
	TotalShares int64   `json:"total_shares"`
}

type allMarketDataResponse struct {
	Markets []marketDataResponse `json:"markets"`
}

// ListCompanies handles GET /companies.
func (h *PublicHandler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.market.ListCompanies()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := companyListResponse{Companies: make([]companyResponse, len(companies))}
	for i, c := range companies {
		resp.Companies[i] = buildCompanyResponse(c)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// GetCompany handles GET /companies/{ticker}.
func (h *PublicHandler) GetCompany(w http.ResponseWriter, r *http.Request) {
	company, err := h.market.GetCompany(chi.URLParam(r, "ticker"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildCompanyResponse(company))
}

// GetOrderBook handles GET /orderbook/{ticker}?depth=N.
func (h *PublicHandler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	depth := 10
	if raw := r.URL.Query().Get("depth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			WriteError(w, http.StatusBadRequest, CodeInvalidParameters, "depth must be an integer between 1 and 100")
			return
		}
		depth = n
	}

	view, err := h.market.OrderBook(chi.URLParam(r, "ticker"), depth)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := orderBookResponse{
		Ticker: view.Ticker,
		Bids:   buildLevels(view.Bids),
		Asks:   buildLevels(view.Asks),
	}
	if view.Spread != nil {
		s := domain.FormatCents(*view.Spread)
		resp.Spread = &s
	}
	if view.LastPrice != nil {
		p := domain.FormatCents(*view.LastPrice)
		resp.LastPrice = &p
	}
	WriteJSON(w, http.StatusOK, resp)
}

// GetTrades handles GET /trades/{ticker}?limit=N&since=T.
func (h *PublicHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteError(w, http.StatusBadRequest, CodeInvalidParameters, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, CodeInvalidParameters, "since must be an RFC 3339 timestamp")
			return
		}
		since = t
	}

	ticker := chi.URLParam(r, "ticker")
	trades, err := h.market.Trades(ticker, limit, since)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := tradesResponse{Ticker: strings.ToUpper(ticker), Trades: make([]tradeResponse, len(trades))}
	for i, t := range trades {
		resp.Trades[i] = buildTradeResponse(t)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// GetMarketData handles GET /market-data/{ticker}.
func (h *PublicHandler) GetMarketData(w http.ResponseWriter, r *http.Request) {
	md, err := h.market.Data(chi.URLParam(r, "ticker"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildMarketDataResponse(md))
}

// GetAllMarketData handles GET /market-data.
func (h *PublicHandler) GetAllMarketData(w http.ResponseWriter, r *http.Request) {
	all, err := h.market.DataAll()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := allMarketDataResponse{Markets: make([]marketDataResponse, len(all))}
	for i, md := range all {
		resp.Markets[i] = buildMarketDataResponse(md)
	}
	WriteJSON(w, http.StatusOK, resp)
}

func buildCompanyResponse(c *domain.Company) companyResponse {
	resp := companyResponse{
		Ticker:      c.Ticker,
		Name:        c.Name,
		TotalShares: c.TotalShares,
		FloatShares: c.FloatShares,
		CreatedAt:   isoTime(c.CreatedAt),
	}
	if c.IPOPrice != nil {
		p := domain.FormatCents(*c.IPOPrice)
		resp.IPOPrice = &p
	}
	return resp
}

func buildLevels(levels []engine.PriceLevel) []priceLevelResponse {
	out := make([]priceLevelResponse, len(levels))
	for i, l := range levels {
		out[i] = priceLevelResponse{
			Price:    domain.FormatCents(l.Price),
			Quantity: l.TotalQuantity,
			Orders:   l.OrderCount,
		}
	}
	return out
}

func buildTradeResponse(t *domain.Trade) tradeResponse {
	return tradeResponse{
		ID:        t.ID,
		Ticker:    t.Ticker,
		Price:     domain.FormatCents(t.Price),
		Quantity:  t.Quantity,
		Timestamp: isoTime(t.Timestamp),
	}
}

func buildMarketDataResponse(md *service.MarketData) marketDataResponse {
	resp := marketDataResponse{
		Ticker:      md.Ticker,
		ChangePct:   md.ChangePct,
		Volume24h:   md.Volume24h,
		TotalShares: md.TotalShares,
	}
	resp.LastPrice = centsPtr(md.LastPrice)
	resp.High24h = centsPtr(md.High24h)
	resp.Low24h = centsPtr(md.Low24h)
	resp.Open24h = centsPtr(md.Open24h)
	resp.MarketCap = centsPtr(md.MarketCap)
	return resp
}

func centsPtr(c *int64) *string {
	if c == nil {
		return nil
	}
	s := domain.FormatCents(*c)
	return &s
}

// isoTime renders timestamps as ISO-8601 UTC.
func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
