package service

import (
	"context"
	"strings"

	"stocksim/internal/domain"
	"stocksim/internal/engine"
	"stocksim/internal/store"
)

// OrderCreate is the input for order placement.
type OrderCreate struct {
	Ticker    string
	Side      domain.OrderSide
	OrderType domain.OrderType
	Quantity  int64
	Price     *int64 // cents; required for LIMIT, forbidden for MARKET
}

// PlacedOrder pairs the final order row with the fills executed during
// its matching pass.
type PlacedOrder struct {
	Order  *domain.Order
	Trades []*domain.Trade
}

// TraderService handles authenticated trading operations.
type TraderService struct {
	store   *store.Store
	matcher *engine.Matcher
}

// NewTraderService creates a TraderService.
func NewTraderService(st *store.Store, m *engine.Matcher) *TraderService {
	return &TraderService{store: st, matcher: m}
}

// PlaceOrder validates the request and runs it through the matching
// engine. The returned order is in its final state: FILLED, CANCELLED
// (market IOC), or resting as OPEN/PARTIAL.
func (s *TraderService) PlaceOrder(ctx context.Context, accountID string, in OrderCreate) (*PlacedOrder, error) {
	ticker := strings.ToUpper(in.Ticker)
	if !tickerRegex.MatchString(ticker) {
		return nil, domain.Validationf("ticker must match ^[A-Z]{1,10}$")
	}
	if in.Side != domain.OrderSideBuy && in.Side != domain.OrderSideSell {
		return nil, domain.Validationf("side must be BUY or SELL")
	}
	if in.OrderType != domain.OrderTypeLimit && in.OrderType != domain.OrderTypeMarket {
		return nil, domain.Validationf("order_type must be LIMIT or MARKET")
	}
	if in.Quantity <= 0 {
		return nil, domain.Validationf("quantity must be a positive integer")
	}
	switch in.OrderType {
	case domain.OrderTypeLimit:
		if in.Price == nil {
			return nil, domain.Validationf("price is required for LIMIT orders")
		}
		if *in.Price <= 0 {
			return nil, domain.Validationf("price must be greater than 0")
		}
	case domain.OrderTypeMarket:
		if in.Price != nil {
			return nil, domain.Validationf("price must be omitted for MARKET orders")
		}
	}

	if _, err := s.store.GetCompany(ticker); err != nil {
		return nil, err
	}

	order := &domain.Order{
		AccountID: accountID,
		Ticker:    ticker,
		Side:      in.Side,
		OrderType: in.OrderType,
		Price:     in.Price,
		Quantity:  in.Quantity,
	}
	trades, err := s.matcher.Submit(ctx, order)
	if err != nil {
		return nil, err
	}

	return &PlacedOrder{Order: order, Trades: trades}, nil
}

// GetOrder returns one of the account's orders. Another account's order
// is ErrForbidden, not ErrOrderNotFound: the ID is valid, the caller
// just doesn't own it.
func (s *TraderService) GetOrder(accountID, orderID string) (*domain.Order, error) {
	order, err := s.store.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order.AccountID != accountID {
		return nil, domain.ErrForbidden
	}
	return order, nil
}

// ListOrders returns the account's orders, optionally filtered by
// status and ticker, newest first.
func (s *TraderService) ListOrders(accountID string, status domain.OrderStatus, ticker string) ([]*domain.Order, error) {
	if status != "" {
		switch status {
		case domain.OrderStatusOpen, domain.OrderStatusPartial,
			domain.OrderStatusFilled, domain.OrderStatusCancelled:
		default:
			return nil, domain.Validationf("status must be one of OPEN, PARTIAL, FILLED, CANCELLED")
		}
	}
	if ticker != "" {
		ticker = strings.ToUpper(ticker)
		if !tickerRegex.MatchString(ticker) {
			return nil, domain.Validationf("ticker must match ^[A-Z]{1,10}$")
		}
	}
	return s.store.ListOrders(store.OrderFilter{
		AccountID: accountID,
		Status:    status,
		Ticker:    ticker,
	})
}

// CancelOrder cancels the account's resting order.
func (s *TraderService) CancelOrder(ctx context.Context, accountID, orderID string) (*domain.Order, error) {
	order, err := s.store.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order.AccountID != accountID {
		return nil, domain.ErrForbidden
	}
	return s.matcher.Cancel(ctx, orderID)
}

// GetAccount returns the caller's own account.
func (s *TraderService) GetAccount(accountID string) (*domain.Account, error) {
	return s.store.GetAccount(accountID)
}

// ListHoldings returns the caller's positions.
func (s *TraderService) ListHoldings(accountID string) ([]*domain.Holding, error) {
	return s.store.ListHoldings(accountID)
}
