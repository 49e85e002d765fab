package engine

import (
	"fmt"

	"go.uber.org/zap"

	"stocksim/internal/store"
)

// Rebuild reconstructs the in-memory books from the store's resting
// orders. Called once at startup before the HTTP surface accepts
// traffic; afterwards every mutation is written through.
func Rebuild(st *store.Store, books *Books, log *zap.Logger) error {
	tickers, err := st.RestingTickers()
	if err != nil {
		return fmt.Errorf("scan resting tickers: %w", err)
	}

	var restored int
	for _, ticker := range tickers {
		orders, err := st.RestingOrders(ticker)
		if err != nil {
			return fmt.Errorf("scan resting orders for %s: %w", ticker, err)
		}

		book := books.GetOrCreate(ticker)
		book.mu.Lock()
		for _, o := range orders {
			if o.Price == nil {
				// Market orders never rest; a priced-less resting row is
				// corrupt state and refusing to start beats guessing.
				book.mu.Unlock()
				return fmt.Errorf("resting order %s has no price", o.ID)
			}
			book.Insert(o)
			if o.Timestamp.After(book.lastTS) {
				book.lastTS = o.Timestamp
			}
			restored++
		}
		book.mu.Unlock()
	}

	log.Info("order book rebuilt",
		zap.Int("tickers", len(tickers)),
		zap.Int("orders", restored),
	)
	return nil
}
