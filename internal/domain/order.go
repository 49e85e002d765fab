package domain

import "time"

// OrderType distinguishes limit orders from market orders.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// OrderSide indicates whether an order buys or sells shares.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusPartial   OrderStatus = "PARTIAL"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Terminal reports whether the status excludes any future fills.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

// Order is a buy or sell instruction submitted by an account. Price is
// set iff the order is a LIMIT order, in cents. Timestamps increase
// monotonically per ticker; ties are broken by ID.
type Order struct {
	ID                string      `gorm:"primaryKey"`
	AccountID         string      `gorm:"index;not null"`
	Ticker            string      `gorm:"index;not null"`
	Side              OrderSide   `gorm:"not null"`
	OrderType         OrderType   `gorm:"not null"`
	Price             *int64      // cents, nil for market orders
	Quantity          int64       `gorm:"not null"`
	RemainingQuantity int64       `gorm:"not null"`
	Status            OrderStatus `gorm:"index;not null"`
	Timestamp         time.Time   `gorm:"index;not null"`
}

// Resting reports whether the order is (or may be) resting on the book.
func (o *Order) Resting() bool {
	return o.Status == OrderStatusOpen || o.Status == OrderStatusPartial
}

// FilledQuantity is the number of shares executed so far.
func (o *Order) FilledQuantity() int64 {
	return o.Quantity - o.RemainingQuantity
}
