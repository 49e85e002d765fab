package store

import (
	"errors"

	"gorm.io/gorm"

	"stocksim/internal/domain"
)

// CreateAccount inserts an account. It returns domain.ErrAccountExists
// if the ID is taken.
func (s *Store) CreateAccount(a *domain.Account) error {
	if err := s.db.Create(a).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrAccountExists
		}
		return err
	}
	return nil
}

// GetAccount retrieves an account by ID. It returns
// domain.ErrAccountNotFound if the account does not exist.
func (s *Store) GetAccount(id string) (*domain.Account, error) {
	var a domain.Account
	if err := s.db.First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ListAccounts returns all accounts ordered by creation time.
func (s *Store) ListAccounts() ([]*domain.Account, error) {
	var accounts []*domain.Account
	if err := s.db.Order("created_at").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// AddCash adjusts an account's cash balance by delta cents.
// The caller is responsible for the non-negativity pre-check; this only
// applies the update.
func (s *Store) AddCash(accountID string, delta int64) error {
	res := s.db.Model(&domain.Account{}).
		Where("id = ?", accountID).
		Update("cash_balance", gorm.Expr("cash_balance + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// TotalCash sums cash across all accounts (admin stats; conservation checks).
func (s *Store) TotalCash() (int64, error) {
	var total int64
	err := s.db.Model(&domain.Account{}).
		Select("COALESCE(SUM(cash_balance), 0)").
		Scan(&total).Error
	return total, err
}

// CountAccounts returns the number of accounts.
func (s *Store) CountAccounts() (int64, error) {
	var n int64
	err := s.db.Model(&domain.Account{}).Count(&n).Error
	return n, err
}
