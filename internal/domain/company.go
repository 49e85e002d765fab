package domain

import "time"

// Company is a listed security. Immutable after creation.
// total_shares ≥ float_shares ≥ 0 and total_shares > 0. When IPOPrice is
// set, creation seeds a SELL-LIMIT at that price for the float from the
// exchange treasury account.
type Company struct {
	Ticker      string `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	TotalShares int64  `gorm:"not null"`
	FloatShares int64  `gorm:"not null"`
	IPOPrice    *int64 // cents, nil when the company lists without an IPO order
	CreatedAt   time.Time
}
