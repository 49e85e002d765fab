package store

import (
	"time"

	"stocksim/internal/domain"
)

// CreateTrade appends a trade row. Trades are never updated or deleted.
func (s *Store) CreateTrade(t *domain.Trade) error {
	return s.db.Create(t).Error
}

// RecentTrades returns trades for a ticker, newest first, at most limit.
// When since is non-zero only trades strictly after it are returned.
func (s *Store) RecentTrades(ticker string, limit int, since time.Time) ([]*domain.Trade, error) {
	q := s.db.Where("ticker = ?", ticker)
	if !since.IsZero() {
		q = q.Where("timestamp > ?", since)
	}

	var trades []*domain.Trade
	err := q.Order("timestamp DESC, id DESC").Limit(limit).Find(&trades).Error
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// LastTradePrice returns the most recent trade price for a ticker, or
// (0, false) when the ticker has never traded.
func (s *Store) LastTradePrice(ticker string) (int64, bool, error) {
	var trades []*domain.Trade
	err := s.db.Where("ticker = ?", ticker).
		Order("timestamp DESC, id DESC").
		Limit(1).
		Find(&trades).Error
	if err != nil {
		return 0, false, err
	}
	if len(trades) == 0 {
		return 0, false, nil
	}
	return trades[0].Price, true, nil
}

// DayStats aggregates a ticker's trades over the trailing 24 hours.
type DayStats struct {
	Open   int64 // price of the oldest trade in the window, 0 when none
	High   int64
	Low    int64
	Volume int64 // summed quantity
	Count  int64
}

// TradeStats24h computes open/high/low/volume over the last 24 hours.
func (s *Store) TradeStats24h(ticker string, now time.Time) (*DayStats, error) {
	cutoff := now.Add(-24 * time.Hour)

	var stats DayStats
	err := s.db.Model(&domain.Trade{}).
		Where("ticker = ? AND timestamp >= ?", ticker, cutoff).
		Select("COALESCE(MAX(price), 0) AS high, COALESCE(MIN(price), 0) AS low, COALESCE(SUM(quantity), 0) AS volume, COUNT(*) AS count").
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}

	if stats.Count > 0 {
		var opening []*domain.Trade
		err = s.db.Where("ticker = ? AND timestamp >= ?", ticker, cutoff).
			Order("timestamp, id").
			Limit(1).
			Find(&opening).Error
		if err != nil {
			return nil, err
		}
		if len(opening) > 0 {
			stats.Open = opening[0].Price
		}
	}

	return &stats, nil
}

// TradesForOrder returns all fills referencing the order on either side,
// oldest first.
func (s *Store) TradesForOrder(orderID string) ([]*domain.Trade, error) {
	var trades []*domain.Trade
	err := s.db.Where("buy_order_id = ? OR sell_order_id = ?", orderID, orderID).
		Order("timestamp, id").
		Find(&trades).Error
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// CountTrades returns the number of trade rows.
func (s *Store) CountTrades() (int64, error) {
	var n int64
	err := s.db.Model(&domain.Trade{}).Count(&n).Error
	return n, err
}

// TotalVolume sums executed quantity across all trades.
func (s *Store) TotalVolume() (int64, error) {
	var total int64
	err := s.db.Model(&domain.Trade{}).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	return total, err
}
