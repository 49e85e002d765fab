package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"stocksim/internal/auth"
	"stocksim/internal/domain"
	"stocksim/internal/service"
)

var validate = validator.New()

// TraderHandler serves authenticated trading endpoints. The account ID
// comes from the auth middleware's request context.
type TraderHandler struct {
	trader *service.TraderService
}

// NewTraderHandler creates a TraderHandler.
func NewTraderHandler(trader *service.TraderService) *TraderHandler {
	return &TraderHandler{trader: trader}
}

type placeOrderRequest struct {
	Ticker    string  `json:"ticker" validate:"required"`
	Side      string  `json:"side" validate:"required,oneof=BUY SELL"`
	OrderType string  `json:"order_type" validate:"required,oneof=LIMIT MARKET"`
	Quantity  int64   `json:"quantity" validate:"required,gt=0"`
	Price     *string `json:"price,omitempty"`
}

type orderResponse struct {
	ID                string         `json:"id"`
	AccountID         string         `json:"account_id"`
	Ticker            string         `json:"ticker"`
	Side              string         `json:"side"`
	OrderType         string         `json:"order_type"`
	Price             *string        `json:"price"`
	Quantity          int64          `json:"quantity"`
	RemainingQuantity int64          `json:"remaining_quantity"`
	Status            string         `json:"status"`
	Timestamp         string         `json:"timestamp"`
	Fills             []fillResponse `json:"fills,omitempty"`
}

type fillResponse struct {
	TradeID   string `json:"trade_id"`
	Price     string `json:"price"`
	Quantity  int64  `json:"quantity"`
	Timestamp string `json:"timestamp"`
}

type ordersResponse struct {
	Orders []orderResponse `json:"orders"`
}

type accountResponse struct {
	AccountID   string `json:"account_id"`
	CashBalance string `json:"cash_balance"`
	CreatedAt   string `json:"created_at"`
}

type holdingResponse struct {
	Ticker   string `json:"ticker"`
	Quantity int64  `json:"quantity"`
}

type holdingsResponse struct {
	Holdings []holdingResponse `json:"holdings"`
}

// GetAccount handles GET /account.
func (h *TraderHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.trader.GetAccount(auth.AccountID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, accountResponse{
		AccountID:   account.ID,
		CashBalance: domain.FormatCents(account.CashBalance),
		CreatedAt:   isoTime(account.CreatedAt),
	})
}

// GetHoldings handles GET /holdings.
func (h *TraderHandler) GetHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.trader.ListHoldings(auth.AccountID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := holdingsResponse{Holdings: make([]holdingResponse, len(holdings))}
	for i, hd := range holdings {
		resp.Holdings[i] = holdingResponse{Ticker: hd.Ticker, Quantity: hd.Quantity}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// PlaceOrder handles POST /orders.
func (h *TraderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, CodeInvalidParameters, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		WriteError(w, http.StatusBadRequest, CodeInvalidParameters, err.Error())
		return
	}

	var price *int64
	if req.Price != nil {
		cents, err := domain.ParseCents(*req.Price)
		if err != nil {
			WriteError(w, http.StatusBadRequest, CodeInvalidParameters, err.Error())
			return
		}
		price = &cents
	}

	placed, err := h.trader.PlaceOrder(r.Context(), auth.AccountID(r.Context()), service.OrderCreate{
		Ticker:    req.Ticker,
		Side:      domain.OrderSide(req.Side),
		OrderType: domain.OrderType(req.OrderType),
		Quantity:  req.Quantity,
		Price:     price,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := buildOrderResponse(placed.Order)
	resp.Fills = make([]fillResponse, len(placed.Trades))
	for i, t := range placed.Trades {
		resp.Fills[i] = fillResponse{
			TradeID:   t.ID,
			Price:     domain.FormatCents(t.Price),
			Quantity:  t.Quantity,
			Timestamp: isoTime(t.Timestamp),
		}
	}
	WriteJSON(w, http.StatusCreated, resp)
}

// GetOrder handles GET /orders/{order_id}.
func (h *TraderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.trader.GetOrder(auth.AccountID(r.Context()), chi.URLParam(r, "order_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// ListOrders handles GET /orders?status=&ticker=.
func (h *TraderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	status := domain.OrderStatus(r.URL.Query().Get("status"))
	ticker := r.URL.Query().Get("ticker")

	orders, err := h.trader.ListOrders(auth.AccountID(r.Context()), status, ticker)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := ordersResponse{Orders: make([]orderResponse, len(orders))}
	for i, o := range orders {
		resp.Orders[i] = buildOrderResponse(o)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// CancelOrder handles DELETE /orders/{order_id}.
func (h *TraderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.trader.CancelOrder(r.Context(), auth.AccountID(r.Context()), chi.URLParam(r, "order_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

func buildOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		ID:                o.ID,
		AccountID:         o.AccountID,
		Ticker:            o.Ticker,
		Side:              string(o.Side),
		OrderType:         string(o.OrderType),
		Quantity:          o.Quantity,
		RemainingQuantity: o.RemainingQuantity,
		Status:            string(o.Status),
		Timestamp:         isoTime(o.Timestamp),
	}
	if o.Price != nil {
		p := domain.FormatCents(*o.Price)
		resp.Price = &p
	}
	return resp
}
