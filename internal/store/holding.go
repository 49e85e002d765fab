package store

import (
	"errors"

	"gorm.io/gorm"

	"stocksim/internal/domain"
)

// GetHolding retrieves one position. It returns domain.ErrHoldingNotFound
// when the account holds no shares of the ticker.
func (s *Store) GetHolding(accountID, ticker string) (*domain.Holding, error) {
	var h domain.Holding
	err := s.db.First(&h, "account_id = ? AND ticker = ?", accountID, ticker).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrHoldingNotFound
		}
		return nil, err
	}
	return &h, nil
}

// HoldingQuantity returns the shares held, 0 when no row exists.
func (s *Store) HoldingQuantity(accountID, ticker string) (int64, error) {
	h, err := s.GetHolding(accountID, ticker)
	if errors.Is(err, domain.ErrHoldingNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return h.Quantity, nil
}

// ListHoldings returns an account's positions ordered by ticker.
func (s *Store) ListHoldings(accountID string) ([]*domain.Holding, error) {
	var holdings []*domain.Holding
	err := s.db.Where("account_id = ?", accountID).Order("ticker").Find(&holdings).Error
	if err != nil {
		return nil, err
	}
	return holdings, nil
}

// AddShares adjusts a position by delta, creating the row on first buy
// and deleting it when the quantity reaches zero. Rows never hold a
// non-positive quantity.
func (s *Store) AddShares(accountID, ticker string, delta int64) error {
	h, err := s.GetHolding(accountID, ticker)
	if errors.Is(err, domain.ErrHoldingNotFound) {
		if delta <= 0 {
			return domain.ErrHoldingNotFound
		}
		return s.db.Create(&domain.Holding{
			AccountID: accountID,
			Ticker:    ticker,
			Quantity:  delta,
		}).Error
	}
	if err != nil {
		return err
	}

	next := h.Quantity + delta
	switch {
	case next < 0:
		return domain.ErrInsufficientShares
	case next == 0:
		return s.db.Delete(&domain.Holding{}, "account_id = ? AND ticker = ?", accountID, ticker).Error
	default:
		return s.db.Model(&domain.Holding{}).
			Where("account_id = ? AND ticker = ?", accountID, ticker).
			Update("quantity", next).Error
	}
}

// TotalShares sums holdings across all accounts for a ticker
// (share-conservation checks).
func (s *Store) TotalShares(ticker string) (int64, error) {
	var total int64
	err := s.db.Model(&domain.Holding{}).
		Where("ticker = ?", ticker).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	return total, err
}
