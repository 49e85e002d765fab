package store

import (
	"errors"

	"gorm.io/gorm"

	"stocksim/internal/domain"
)

// restingStatuses are the statuses of orders that live on the book.
var restingStatuses = []domain.OrderStatus{
	domain.OrderStatusOpen,
	domain.OrderStatusPartial,
}

// CreateOrder inserts an order row.
func (s *Store) CreateOrder(o *domain.Order) error {
	return s.db.Create(o).Error
}

// GetOrder retrieves an order by ID. It returns domain.ErrOrderNotFound
// if no such order exists.
func (s *Store) GetOrder(id string) (*domain.Order, error) {
	var o domain.Order
	if err := s.db.First(&o, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

// UpdateOrderFill persists an order's remaining quantity and status.
func (s *Store) UpdateOrderFill(o *domain.Order) error {
	return s.db.Model(&domain.Order{}).
		Where("id = ?", o.ID).
		Updates(map[string]any{
			"remaining_quantity": o.RemainingQuantity,
			"status":             o.Status,
		}).Error
}

// OrderFilter narrows ListOrders. Zero values mean "no filter".
type OrderFilter struct {
	AccountID string
	Ticker    string
	Status    domain.OrderStatus
}

// ListOrders returns orders matching the filter, newest first.
func (s *Store) ListOrders(f OrderFilter) ([]*domain.Order, error) {
	q := s.db.Model(&domain.Order{})
	if f.AccountID != "" {
		q = q.Where("account_id = ?", f.AccountID)
	}
	if f.Ticker != "" {
		q = q.Where("ticker = ?", f.Ticker)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var orders []*domain.Order
	if err := q.Order("timestamp DESC, id DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// RestingOrders returns the OPEN/PARTIAL orders for a ticker ordered by
// (price, timestamp, id). Used to rebuild the in-memory book at startup;
// the book's own comparators re-establish side-specific ordering.
func (s *Store) RestingOrders(ticker string) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := s.db.
		Where("ticker = ? AND status IN ?", ticker, restingStatuses).
		Order("price, timestamp, id").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// RestingTickers returns the distinct tickers that have resting orders.
func (s *Store) RestingTickers() ([]string, error) {
	var tickers []string
	err := s.db.Model(&domain.Order{}).
		Where("status IN ?", restingStatuses).
		Distinct("ticker").
		Pluck("ticker", &tickers).Error
	if err != nil {
		return nil, err
	}
	return tickers, nil
}

// CommittedBuyCents sums price × remaining over an account's resting BUY
// limit orders, excluding excludeOrderID. Cash backing those orders is
// not available to new buys.
func (s *Store) CommittedBuyCents(accountID, excludeOrderID string) (int64, error) {
	var total int64
	err := s.db.Model(&domain.Order{}).
		Where("account_id = ? AND side = ? AND status IN ? AND price IS NOT NULL AND id <> ?",
			accountID, domain.OrderSideBuy, restingStatuses, excludeOrderID).
		Select("COALESCE(SUM(price * remaining_quantity), 0)").
		Scan(&total).Error
	return total, err
}

// CommittedSellShares sums remaining over an account's resting SELL
// orders for a ticker, excluding excludeOrderID.
func (s *Store) CommittedSellShares(accountID, ticker, excludeOrderID string) (int64, error) {
	var total int64
	err := s.db.Model(&domain.Order{}).
		Where("account_id = ? AND ticker = ? AND side = ? AND status IN ? AND id <> ?",
			accountID, ticker, domain.OrderSideSell, restingStatuses, excludeOrderID).
		Select("COALESCE(SUM(remaining_quantity), 0)").
		Scan(&total).Error
	return total, err
}

// CountOrders returns the number of order rows.
func (s *Store) CountOrders() (int64, error) {
	var n int64
	err := s.db.Model(&domain.Order{}).Count(&n).Error
	return n, err
}
