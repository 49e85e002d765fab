package service

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stocksim/internal/domain"
	"stocksim/internal/engine"
	"stocksim/internal/store"
)

// OrderBookView is the aggregated public book for one ticker.
type OrderBookView struct {
	Ticker    string
	Bids      []engine.PriceLevel
	Asks      []engine.PriceLevel
	Spread    *int64 // cents, nil when either side is empty
	LastPrice *int64 // cents, nil before the first trade
}

// MarketData summarizes one ticker for the market-data endpoints.
type MarketData struct {
	Ticker      string
	LastPrice   *int64  // cents
	ChangePct   *string // 24h change, 2-dp decimal string, nil without data
	Volume24h   int64
	High24h     *int64
	Low24h      *int64
	Open24h     *int64
	MarketCap   *int64 // last price × total shares, cents
	TotalShares int64
}

// MarketService serves public read-only market data. Reads come from
// store snapshots and the book's reader lock; they never touch the
// per-ticker write path.
type MarketService struct {
	store *store.Store
	books *engine.Books
}

// NewMarketService creates a MarketService.
func NewMarketService(st *store.Store, books *engine.Books) *MarketService {
	return &MarketService{store: st, books: books}
}

// ListCompanies returns all listed companies.
func (s *MarketService) ListCompanies() ([]*domain.Company, error) {
	return s.store.ListCompanies()
}

// GetCompany returns one company by ticker.
func (s *MarketService) GetCompany(ticker string) (*domain.Company, error) {
	return s.store.GetCompany(strings.ToUpper(ticker))
}

// OrderBook returns the top depth aggregated price levels per side.
func (s *MarketService) OrderBook(ticker string, depth int) (*OrderBookView, error) {
	ticker = strings.ToUpper(ticker)
	if _, err := s.store.GetCompany(ticker); err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = 10
	}

	book := s.books.GetOrCreate(ticker)
	view := &OrderBookView{
		Ticker: ticker,
		Bids:   book.Levels(domain.OrderSideBuy, depth),
		Asks:   book.Levels(domain.OrderSideSell, depth),
	}

	if len(view.Bids) > 0 && len(view.Asks) > 0 {
		spread := view.Asks[0].Price - view.Bids[0].Price
		view.Spread = &spread
	}
	if last, ok, err := s.store.LastTradePrice(ticker); err != nil {
		return nil, err
	} else if ok {
		view.LastPrice = &last
	}

	return view, nil
}

// RestingOrders returns the raw per-order book for the admin view.
func (s *MarketService) RestingOrders(ticker string) ([]engine.BookEntry, []engine.BookEntry, error) {
	ticker = strings.ToUpper(ticker)
	if _, err := s.store.GetCompany(ticker); err != nil {
		return nil, nil, err
	}
	book := s.books.GetOrCreate(ticker)
	return book.Entries(domain.OrderSideBuy), book.Entries(domain.OrderSideSell), nil
}

// Trades returns recent trades for a ticker, newest first.
func (s *MarketService) Trades(ticker string, limit int, since time.Time) ([]*domain.Trade, error) {
	ticker = strings.ToUpper(ticker)
	if _, err := s.store.GetCompany(ticker); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.store.RecentTrades(ticker, limit, since)
}

// Data returns the market-data summary for one ticker.
func (s *MarketService) Data(ticker string) (*MarketData, error) {
	company, err := s.store.GetCompany(strings.ToUpper(ticker))
	if err != nil {
		return nil, err
	}
	return s.dataFor(company)
}

// DataAll returns market data for every company, by ticker.
func (s *MarketService) DataAll() ([]*MarketData, error) {
	companies, err := s.store.ListCompanies()
	if err != nil {
		return nil, err
	}

	out := make([]*MarketData, 0, len(companies))
	for _, c := range companies {
		md, err := s.dataFor(c)
		if err != nil {
			return nil, err
		}
		out = append(out, md)
	}
	return out, nil
}

func (s *MarketService) dataFor(company *domain.Company) (*MarketData, error) {
	md := &MarketData{
		Ticker:      company.Ticker,
		TotalShares: company.TotalShares,
	}

	last, traded, err := s.store.LastTradePrice(company.Ticker)
	if err != nil {
		return nil, err
	}
	if !traded {
		return md, nil
	}
	md.LastPrice = &last

	marketCap := last * company.TotalShares
	md.MarketCap = &marketCap

	stats, err := s.store.TradeStats24h(company.Ticker, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	md.Volume24h = stats.Volume
	if stats.Count > 0 {
		md.High24h = &stats.High
		md.Low24h = &stats.Low
		md.Open24h = &stats.Open
		if stats.Open > 0 {
			pct := decimal.New(last-stats.Open, 0).
				Div(decimal.New(stats.Open, 0)).
				Mul(decimal.NewFromInt(100)).
				StringFixed(2)
			md.ChangePct = &pct
		}
	}

	return md, nil
}
