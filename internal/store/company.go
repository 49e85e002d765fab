package store

import (
	"errors"

	"gorm.io/gorm"

	"stocksim/internal/domain"
)

// CreateCompany inserts a company. It returns domain.ErrCompanyExists
// if the ticker is already listed.
func (s *Store) CreateCompany(c *domain.Company) error {
	if err := s.db.Create(c).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrCompanyExists
		}
		return err
	}
	return nil
}

// GetCompany retrieves a company by ticker. It returns
// domain.ErrCompanyNotFound if the ticker is not listed.
func (s *Store) GetCompany(ticker string) (*domain.Company, error) {
	var c domain.Company
	if err := s.db.First(&c, "ticker = ?", ticker).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCompanyNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListCompanies returns all companies ordered by ticker.
func (s *Store) ListCompanies() ([]*domain.Company, error) {
	var companies []*domain.Company
	if err := s.db.Order("ticker").Find(&companies).Error; err != nil {
		return nil, err
	}
	return companies, nil
}

// CountCompanies returns the number of listed companies.
func (s *Store) CountCompanies() (int64, error) {
	var n int64
	err := s.db.Model(&domain.Company{}).Count(&n).Error
	return n, err
}
