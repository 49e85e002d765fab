package domain

import "time"

// TreasuryAccountID is the synthetic exchange-owned account that holds a
// company's unfloated shares and sells the float at IPO.
const TreasuryAccountID = "treasury"

// Account is a trading participant. Cash changes only through settlement
// or admin seeding. The API key is stored as a sha256 hash; the raw key
// is returned exactly once, on creation.
type Account struct {
	ID          string `gorm:"primaryKey"`
	APIKeyHash  string `gorm:"uniqueIndex;not null"`
	CashBalance int64  `gorm:"not null"` // cents, never negative
	CreatedAt   time.Time
}

// Holding is a position in one ticker. Rows with zero quantity are
// deleted, never stored: an account owns shares iff it has a row.
type Holding struct {
	AccountID string `gorm:"primaryKey"`
	Ticker    string `gorm:"primaryKey"`
	Quantity  int64  `gorm:"not null"`
}
