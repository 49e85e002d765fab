package engine

import (
	"sync"
	"time"

	"github.com/google/btree"

	"stocksim/internal/domain"
)

// BookEntry represents a single order resting on the book. The embedded
// Order pointer is the in-memory mirror of the persistent row; it is
// mutated only while the book's write lock is held.
type BookEntry struct {
	Price     int64
	Timestamp time.Time
	OrderID   string
	Order     *domain.Order
}

// PriceLevel is an aggregated price level for public market data.
type PriceLevel struct {
	Price         int64
	TotalQuantity int64
	OrderCount    int
}

// lessFor builds the B-tree comparator for one side. Bids sort by
// price descending, asks ascending; within a price, earlier timestamp
// wins, then order ID as the deterministic tiebreak. Min() of either
// tree is therefore that side's best entry.
func lessFor(side domain.OrderSide) func(a, b BookEntry) bool {
	return func(a, b BookEntry) bool {
		if a.Price != b.Price {
			if side == domain.OrderSideBuy {
				return a.Price > b.Price
			}
			return a.Price < b.Price
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.OrderID < b.OrderID
	}
}

// Book maintains both sides of one ticker's resting orders, each in a
// B-tree keyed by price-time priority, plus an order-ID index for
// O(log n) cancels and reduces. It is a derived cache of the store's
// resting orders: every mutation happens under mu after the owning
// transaction has committed.
type Book struct {
	ticker string
	mu     sync.RWMutex
	sides  map[domain.OrderSide]*btree.BTreeG[BookEntry]
	index  map[string]BookEntry // order_id → entry
	lastTS time.Time            // latest timestamp issued for this ticker
}

// NewBook creates an order book for the given ticker.
func NewBook(ticker string) *Book {
	const degree = 32
	return &Book{
		ticker: ticker,
		sides: map[domain.OrderSide]*btree.BTreeG[BookEntry]{
			domain.OrderSideBuy:  btree.NewG(degree, lessFor(domain.OrderSideBuy)),
			domain.OrderSideSell: btree.NewG(degree, lessFor(domain.OrderSideSell)),
		},
		index: make(map[string]BookEntry),
	}
}

// Insert adds a resting order to the side matching its Side field.
func (b *Book) Insert(o *domain.Order) {
	entry := BookEntry{
		Price:     *o.Price,
		Timestamp: o.Timestamp,
		OrderID:   o.ID,
		Order:     o,
	}
	b.sides[o.Side].ReplaceOrInsert(entry)
	b.index[entry.OrderID] = entry
}

// Remove deletes an order from the book by ID using the secondary
// index. Unknown IDs are a no-op.
func (b *Book) Remove(orderID string) {
	entry, ok := b.index[orderID]
	if !ok {
		return
	}
	delete(b.index, orderID)
	b.sides[entry.Order.Side].Delete(entry)
}

// Reduce decrements a resting order's remaining quantity, removing the
// entry once it reaches zero. The entry's sort key is unchanged, so the
// tree does not need a reinsert.
func (b *Book) Reduce(orderID string, by int64) {
	entry, ok := b.index[orderID]
	if !ok {
		return
	}
	entry.Order.RemainingQuantity -= by
	if entry.Order.RemainingQuantity <= 0 {
		b.Remove(orderID)
	}
}

// Get returns the resting entry for an order ID.
func (b *Book) Get(orderID string) (BookEntry, bool) {
	entry, ok := b.index[orderID]
	return entry, ok
}

// Best returns the top entry of one side: highest bid or lowest ask,
// earliest first within a price.
func (b *Book) Best(side domain.OrderSide) (BookEntry, bool) {
	return b.sides[side].Min()
}

// Walk iterates one side in priority order. The callback returns true
// to continue, false to stop. The matcher walks the opposing side
// under the write lock; Walk itself does not lock.
func (b *Book) Walk(side domain.OrderSide, fn func(BookEntry) bool) {
	b.sides[side].Ascend(fn)
}

// Levels returns up to depth aggregated price levels for one side, in
// priority order. Safe for concurrent readers.
func (b *Book) Levels(side domain.OrderSide, depth int) []PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if depth <= 0 {
		return nil
	}
	var (
		levels []PriceLevel
		cur    *PriceLevel
	)
	b.sides[side].Ascend(func(e BookEntry) bool {
		if cur != nil && cur.Price == e.Price {
			cur.TotalQuantity += e.Order.RemainingQuantity
			cur.OrderCount++
			return true
		}
		if len(levels) == depth {
			return false
		}
		levels = append(levels, PriceLevel{
			Price:         e.Price,
			TotalQuantity: e.Order.RemainingQuantity,
			OrderCount:    1,
		})
		cur = &levels[len(levels)-1]
		return true
	})
	return levels
}

// Entries returns every resting entry on one side in priority order.
// Used by the non-aggregated admin book view.
func (b *Book) Entries(side domain.OrderSide) []BookEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var entries []BookEntry
	b.sides[side].Ascend(func(e BookEntry) bool {
		entries = append(entries, e)
		return true
	})
	return entries
}

// Count returns the number of individual resting orders on one side.
func (b *Book) Count(side domain.OrderSide) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sides[side].Len()
}

// Books is a thread-safe map of ticker → Book.
type Books struct {
	mu    sync.Mutex
	books map[string]*Book
}

// NewBooks creates an empty Books registry.
func NewBooks() *Books {
	return &Books{
		books: make(map[string]*Book),
	}
}

// GetOrCreate returns the book for the given ticker, creating one if
// it doesn't already exist. Creation is rare (once per listed ticker),
// so a single mutex is enough.
func (bs *Books) GetOrCreate(ticker string) *Book {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	book, ok := bs.books[ticker]
	if !ok {
		book = NewBook(ticker)
		bs.books[ticker] = book
	}
	return book
}
