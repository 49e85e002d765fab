package service

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.uber.org/zap"

	"stocksim/internal/auth"
	"stocksim/internal/domain"
	"stocksim/internal/engine"
	"stocksim/internal/store"
)

var (
	tickerRegex    = regexp.MustCompile(`^[A-Z]{1,10}$`)
	accountIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
)

// CompanyCreate is the input for listing a company.
type CompanyCreate struct {
	Ticker      string
	Name        string
	TotalShares int64
	FloatShares int64
	IPOPrice    *int64 // cents
}

// AccountCreate is the input for opening a trader account.
type AccountCreate struct {
	AccountID   string
	InitialCash int64 // cents
}

// Stats is the admin overview of exchange state.
type Stats struct {
	Companies   int64
	Accounts    int64
	Orders      int64
	Trades      int64
	TotalCash   int64
	TotalVolume int64
}

// AdminService implements company listing, account provisioning and the
// admin overview.
type AdminService struct {
	store    *store.Store
	matcher  *engine.Matcher
	keychain *auth.Keychain
	log      *zap.Logger
}

// NewAdminService creates an AdminService.
func NewAdminService(st *store.Store, m *engine.Matcher, kc *auth.Keychain, log *zap.Logger) *AdminService {
	return &AdminService{store: st, matcher: m, keychain: kc, log: log}
}

// EnsureTreasury creates the synthetic exchange-owned treasury account
// if it does not exist yet. Its key is generated and discarded: no
// client authenticates as the treasury; its shares reach the market only
// through the IPO orders that CreateCompany submits on its behalf.
func (s *AdminService) EnsureTreasury(ctx context.Context) error {
	_, err := s.store.GetAccount(domain.TreasuryAccountID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return err
	}

	key, err := auth.GenerateAPIKey()
	if err != nil {
		return err
	}
	return s.store.CreateAccount(&domain.Account{
		ID:          domain.TreasuryAccountID,
		APIKeyHash:  auth.HashAPIKey(key),
		CashBalance: 0,
		CreatedAt:   time.Now().UTC(),
	})
}

// CreateCompany lists a company, seeds the treasury with total_shares,
// and, when an IPO price is given, places a SELL-LIMIT for the float
// from the treasury so the float sells into the market like any other
// resting order.
func (s *AdminService) CreateCompany(ctx context.Context, in CompanyCreate) (*domain.Company, error) {
	if !tickerRegex.MatchString(in.Ticker) {
		return nil, domain.Validationf("ticker must match ^[A-Z]{1,10}$")
	}
	if in.Name == "" {
		return nil, domain.Validationf("name is required")
	}
	if in.TotalShares <= 0 {
		return nil, domain.Validationf("total_shares must be a positive integer")
	}
	if in.FloatShares < 0 || in.FloatShares > in.TotalShares {
		return nil, domain.Validationf("float_shares must be between 0 and total_shares")
	}
	if in.IPOPrice != nil && *in.IPOPrice <= 0 {
		return nil, domain.Validationf("ipo_price must be greater than 0")
	}

	company := &domain.Company{
		Ticker:      in.Ticker,
		Name:        in.Name,
		TotalShares: in.TotalShares,
		FloatShares: in.FloatShares,
		IPOPrice:    in.IPOPrice,
		CreatedAt:   time.Now().UTC(),
	}

	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.CreateCompany(company); err != nil {
			return err
		}
		return tx.AddShares(domain.TreasuryAccountID, company.Ticker, company.TotalShares)
	})
	if err != nil {
		return nil, err
	}

	if in.IPOPrice != nil && in.FloatShares > 0 {
		price := *in.IPOPrice
		ipo := &domain.Order{
			AccountID: domain.TreasuryAccountID,
			Ticker:    company.Ticker,
			Side:      domain.OrderSideSell,
			OrderType: domain.OrderTypeLimit,
			Price:     &price,
			Quantity:  company.FloatShares,
		}
		if _, err := s.matcher.Submit(ctx, ipo); err != nil {
			return nil, err
		}
		s.log.Info("ipo order placed",
			zap.String("ticker", company.Ticker),
			zap.Int64("float_shares", company.FloatShares),
			zap.String("price", domain.FormatCents(price)),
		)
	}

	return company, nil
}

// CreateAccount opens a trader account seeded with initial cash and
// returns it with the raw API key. The key is shown exactly once.
func (s *AdminService) CreateAccount(ctx context.Context, in AccountCreate) (*domain.Account, string, error) {
	if !accountIDRegex.MatchString(in.AccountID) {
		return nil, "", domain.Validationf("account_id must match ^[a-zA-Z0-9_-]{1,64}$")
	}
	if in.InitialCash < 0 {
		return nil, "", domain.Validationf("initial_cash must not be negative")
	}

	key, err := auth.GenerateAPIKey()
	if err != nil {
		return nil, "", err
	}

	account := &domain.Account{
		ID:          in.AccountID,
		APIKeyHash:  auth.HashAPIKey(key),
		CashBalance: in.InitialCash,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateAccount(account); err != nil {
		return nil, "", err
	}
	s.keychain.Register(account.APIKeyHash, account.ID)

	return account, key, nil
}

// GetAccount returns one account for the admin view.
func (s *AdminService) GetAccount(id string) (*domain.Account, error) {
	return s.store.GetAccount(id)
}

// ListAccounts returns all accounts for the admin view.
func (s *AdminService) ListAccounts() ([]*domain.Account, error) {
	return s.store.ListAccounts()
}

// Stats aggregates the admin overview counters.
func (s *AdminService) Stats() (*Stats, error) {
	var (
		stats Stats
		err   error
	)
	if stats.Companies, err = s.store.CountCompanies(); err != nil {
		return nil, err
	}
	if stats.Accounts, err = s.store.CountAccounts(); err != nil {
		return nil, err
	}
	if stats.Orders, err = s.store.CountOrders(); err != nil {
		return nil, err
	}
	if stats.Trades, err = s.store.CountTrades(); err != nil {
		return nil, err
	}
	if stats.TotalCash, err = s.store.TotalCash(); err != nil {
		return nil, err
	}
	if stats.TotalVolume, err = s.store.TotalVolume(); err != nil {
		return nil, err
	}
	return &stats, nil
}
