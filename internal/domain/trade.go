package domain

import "time"

// Trade records one fill between a buy order and a sell order.
// Append-only; never modified after insert.
type Trade struct {
	ID          string `gorm:"primaryKey"`
	Ticker      string `gorm:"index;not null"`
	Price       int64  `gorm:"not null"` // cents
	Quantity    int64  `gorm:"not null"`
	BuyerID     string `gorm:"not null"`
	SellerID    string `gorm:"not null"`
	BuyOrderID  string `gorm:"index;not null"`
	SellOrderID string `gorm:"index;not null"`
	Timestamp   time.Time `gorm:"index;not null"`
}
