package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"stocksim/internal/domain"
	"stocksim/internal/engine"
	"stocksim/internal/service"
)

// AdminHandler serves token-gated administration endpoints.
type AdminHandler struct {
	admin  *service.AdminService
	market *service.MarketService
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(admin *service.AdminService, market *service.MarketService) *AdminHandler {
	return &AdminHandler{admin: admin, market: market}
}

type createCompanyRequest struct {
	Ticker      string  `json:"ticker" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	TotalShares int64   `json:"total_shares" validate:"required,gt=0"`
	FloatShares int64   `json:"float_shares" validate:"gte=0"`
	IPOPrice    *string `json:"ipo_price,omitempty"`
}

type createAccountRequest struct {
	AccountID   string `json:"account_id" validate:"required"`
	InitialCash string `json:"initial_cash" validate:"required"`
}

type createAccountResponse struct {
	AccountID   string `json:"account_id"`
	CashBalance string `json:"cash_balance"`
	APIKey      string `json:"api_key"`
	CreatedAt   string `json:"created_at"`
}

type adminAccountResponse struct {
	AccountID   string `json:"account_id"`
	CashBalance string `json:"cash_balance"`
	CreatedAt   string `json:"created_at"`
}

type adminAccountsResponse struct {
	Accounts []adminAccountResponse `json:"accounts"`
}

type statsResponse struct {
	Companies   int64  `json:"companies"`
	Accounts    int64  `json:"accounts"`
	Orders      int64  `json:"orders"`
	Trades      int64  `json:"trades"`
	TotalCash   string `json:"total_cash"`
	TotalVolume int64  `json:"total_volume"`
}

type bookOrderResponse struct {
	OrderID   string `json:"order_id"`
	AccountID string `json:"account_id"`
	Price     string `json:"price"`
	Remaining int64  `json:"remaining_quantity"`
	Timestamp string `json:"timestamp"`
}

type adminOrderBookResponse struct {
	Ticker string              `json:"ticker"`
	Bids   []bookOrderResponse `json:"bids"`
	Asks   []bookOrderResponse `json:"asks"`
}

// CreateCompany handles POST /admin/companies.
func (h *AdminHandler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	var req createCompanyRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, CodeInvalidParameters, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		WriteError(w, http.StatusBadRequest, CodeInvalidParameters, err.Error())
		return
	}

	var ipoPrice *int64
	if req.IPOPrice != nil {
		cents, err := domain.ParseCents(*req.IPOPrice)
		if err != nil {
			WriteError(w, http.StatusBadRequest, CodeInvalidParameters, err.Error())
			return
		}
		ipoPrice = &cents
	}

	company, err := h.admin.CreateCompany(r.Context(), service.CompanyCreate{
		Ticker:      req.Ticker,
		Name:        req.Name,
		TotalShares: req.TotalShares,
		FloatShares: req.FloatShares,
		IPOPrice:    ipoPrice,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildCompanyResponse(company))
}

// CreateAccount handles POST /admin/accounts. The response carries the
// raw API key; it is never shown again.
func (h *AdminHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, CodeInvalidParameters, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		WriteError(w, http.StatusBadRequest, CodeInvalidParameters, err.Error())
		return
	}

	initialCash, err := domain.ParseCents(req.InitialCash)
	if err != nil {
		WriteError(w, http.StatusBadRequest, CodeInvalidParameters, err.Error())
		return
	}

	account, apiKey, err := h.admin.CreateAccount(r.Context(), service.AccountCreate{
		AccountID:   req.AccountID,
		InitialCash: initialCash,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, createAccountResponse{
		AccountID:   account.ID,
		CashBalance: domain.FormatCents(account.CashBalance),
		APIKey:      apiKey,
		CreatedAt:   isoTime(account.CreatedAt),
	})
}

// GetAccount handles GET /admin/accounts/{account_id}.
func (h *AdminHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.admin.GetAccount(chi.URLParam(r, "account_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, adminAccountResponse{
		AccountID:   account.ID,
		CashBalance: domain.FormatCents(account.CashBalance),
		CreatedAt:   isoTime(account.CreatedAt),
	})
}

// ListAccounts handles GET /admin/accounts.
func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.admin.ListAccounts()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := adminAccountsResponse{Accounts: make([]adminAccountResponse, len(accounts))}
	for i, a := range accounts {
		resp.Accounts[i] = adminAccountResponse{
			AccountID:   a.ID,
			CashBalance: domain.FormatCents(a.CashBalance),
			CreatedAt:   isoTime(a.CreatedAt),
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// GetStats handles GET /admin/stats.
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, statsResponse{
		Companies:   stats.Companies,
		Accounts:    stats.Accounts,
		Orders:      stats.Orders,
		Trades:      stats.Trades,
		TotalCash:   domain.FormatCents(stats.TotalCash),
		TotalVolume: stats.TotalVolume,
	})
}

// GetOrderBook handles GET /admin/orderbook/{ticker}: the raw
// per-order book, not aggregated into levels.
func (h *AdminHandler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	bids, asks, err := h.market.RestingOrders(chi.URLParam(r, "ticker"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, adminOrderBookResponse{
		Ticker: chi.URLParam(r, "ticker"),
		Bids:   buildBookOrders(bids),
		Asks:   buildBookOrders(asks),
	})
}

func buildBookOrders(entries []engine.BookEntry) []bookOrderResponse {
	out := make([]bookOrderResponse, len(entries))
	for i, e := range entries {
		out[i] = bookOrderResponse{
			OrderID:   e.OrderID,
			AccountID: e.Order.AccountID,
			Price:     domain.FormatCents(e.Price),
			Remaining: e.Order.RemainingQuantity,
			Timestamp: isoTime(e.Timestamp),
		}
	}
	return out
}
