package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stocksim/internal/domain"
	"stocksim/internal/store"
	"stocksim/internal/telemetry"
)

// Matcher implements price-time-priority matching with transactional
// settlement. Every submit runs inside one store transaction while
// holding the per-ticker write lock; the in-memory book is mutated only
// after the transaction commits, so the store stays authoritative.
type Matcher struct {
	store *store.Store
	books *Books
	log   *zap.Logger
	now   func() time.Time
}

// NewMatcher creates a Matcher over the given store and book registry.
func NewMatcher(st *store.Store, books *Books, log *zap.Logger) *Matcher {
	return &Matcher{
		store: st,
		books: books,
		log:   log,
		now:   time.Now,
	}
}

// plannedFill is one maker match decided during the match loop. Book
// mutations are deferred until the surrounding transaction commits.
type plannedFill struct {
	maker *domain.Order
	qty   int64
	price int64
}

// Submit validates, matches and settles an incoming order. The caller
// provides AccountID, Ticker, Side, OrderType, Price and Quantity; the
// matcher assigns ID, Timestamp, RemainingQuantity and Status.
//
// The returned trades are the fills executed for this order, in
// execution order. On error no state changes: pre-check failures reject
// before any write, and settlement failures roll the transaction back.
func (m *Matcher) Submit(ctx context.Context, order *domain.Order) ([]*domain.Trade, error) {
	book := m.books.GetOrCreate(order.Ticker)

	book.mu.Lock()
	defer book.mu.Unlock()

	order.ID = uuid.New().String()
	order.Timestamp = m.tickerTime(book)
	order.RemainingQuantity = order.Quantity
	order.Status = domain.OrderStatusOpen

	var (
		trades []*domain.Trade
		fills  []plannedFill
	)

	err := m.store.WithTx(ctx, func(tx *store.Store) error {
		taker, err := m.precheck(tx, order)
		if err != nil {
			return err
		}

		if err := tx.CreateOrder(order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		fills, err = m.planFills(tx, book, order, taker)
		if err != nil {
			return err
		}

		executedAt := order.Timestamp
		for _, f := range fills {
			trade, err := m.settle(tx, order, f, executedAt)
			if err != nil {
				return err
			}
			trades = append(trades, trade)
		}

		// Unfilled market remainder is cancelled, never posted (IOC).
		remaining := order.Quantity
		for _, f := range fills {
			remaining -= f.qty
		}
		order.RemainingQuantity = remaining
		switch {
		case remaining == 0:
			order.Status = domain.OrderStatusFilled
		case order.OrderType == domain.OrderTypeMarket:
			order.Status = domain.OrderStatusCancelled
		case remaining < order.Quantity:
			order.Status = domain.OrderStatusPartial
		default:
			order.Status = domain.OrderStatusOpen
		}

		return tx.UpdateOrderFill(order)
	})
	if err != nil {
		return nil, err
	}

	// Commit succeeded: bring the in-memory book in line with the store.
	for _, f := range fills {
		book.Reduce(f.maker.ID, f.qty)
	}
	if order.Resting() {
		book.Insert(order)
	}

	telemetry.OrderPlaced(order.Ticker, string(order.Side), string(order.OrderType))
	for _, t := range trades {
		telemetry.TradeExecuted(t.Ticker, t.Quantity)
		m.log.Info("trade executed",
			zap.String("trade_id", t.ID),
			zap.String("ticker", t.Ticker),
			zap.Int64("quantity", t.Quantity),
			zap.String("price", domain.FormatCents(t.Price)),
			zap.String("buyer_id", t.BuyerID),
			zap.String("seller_id", t.SellerID),
		)
	}

	return trades, nil
}

// precheck enforces the reservation rules before any matching:
// BUY-LIMIT needs cash for the full order net of cash already committed
// to other resting buys; SELL needs shares net of shares committed to
// other resting sells. BUY-MARKET has no placement-time check — it is
// affordability-checked per fill during the walk, and whatever cannot
// be afforded cancels with the residual. Returns the submitting account
// for that bookkeeping.
func (m *Matcher) precheck(tx *store.Store, order *domain.Order) (*domain.Account, error) {
	account, err := tx.GetAccount(order.AccountID)
	if err != nil {
		return nil, err
	}

	switch order.Side {
	case domain.OrderSideBuy:
		if order.OrderType == domain.OrderTypeLimit {
			committed, err := tx.CommittedBuyCents(order.AccountID, order.ID)
			if err != nil {
				return nil, err
			}
			required := *order.Price * order.Quantity
			if account.CashBalance-committed < required {
				return nil, domain.ErrInsufficientFunds
			}
		}
	case domain.OrderSideSell:
		held, err := tx.HoldingQuantity(order.AccountID, order.Ticker)
		if err != nil {
			return nil, err
		}
		committed, err := tx.CommittedSellShares(order.AccountID, order.Ticker, order.ID)
		if err != nil {
			return nil, err
		}
		if held-committed < order.Quantity {
			return nil, domain.ErrInsufficientShares
		}
	}

	return account, nil
}

// planFills walks the opposite side of the book in priority order and
// decides the fills for the incoming order without mutating the book.
// Fill price is always the resting (maker) order's price.
func (m *Matcher) planFills(tx *store.Store, book *Book, order *domain.Order, taker *domain.Account) ([]plannedFill, error) {
	var (
		fills     []plannedFill
		remaining = order.Quantity
	)

	// Running cash for per-fill market-buy checks; settlement in the
	// same transaction will apply the identical deltas.
	cash := taker.CashBalance
	if order.Side == domain.OrderSideBuy && order.OrderType == domain.OrderTypeMarket {
		committed, err := tx.CommittedBuyCents(order.AccountID, order.ID)
		if err != nil {
			return nil, err
		}
		cash -= committed
	}

	walk := func(entry BookEntry) bool {
		if remaining <= 0 {
			return false
		}
		maker := entry.Order

		// Limit orders stop once prices no longer cross.
		if order.OrderType == domain.OrderTypeLimit {
			if order.Side == domain.OrderSideBuy && *order.Price < entry.Price {
				return false
			}
			if order.Side == domain.OrderSideSell && entry.Price < *order.Price {
				return false
			}
		}

		qty := remaining
		if maker.RemainingQuantity < qty {
			qty = maker.RemainingQuantity
		}

		// Market buys are affordability-checked against each maker
		// price. An unaffordable maker stops the walk like an exhausted
		// book; the residual cancels after the loop.
		if order.Side == domain.OrderSideBuy && order.OrderType == domain.OrderTypeMarket {
			if cash < entry.Price*qty {
				return false
			}
			cash -= entry.Price * qty
		}

		fills = append(fills, plannedFill{maker: maker, qty: qty, price: entry.Price})
		remaining -= qty
		return true
	}

	opposite := domain.OrderSideSell
	if order.Side == domain.OrderSideSell {
		opposite = domain.OrderSideBuy
	}
	book.Walk(opposite, walk)

	return fills, nil
}

// Cancel transitions an order to CANCELLED iff it is currently resting.
// It re-reads the order under the per-ticker lock; terminal orders
// (including a second cancel) return ErrOrderNotCancellable.
func (m *Matcher) Cancel(ctx context.Context, orderID string) (*domain.Order, error) {
	existing, err := m.store.GetOrder(orderID)
	if err != nil {
		return nil, err
	}

	book := m.books.GetOrCreate(existing.Ticker)
	book.mu.Lock()
	defer book.mu.Unlock()

	var cancelled *domain.Order
	err = m.store.WithTx(ctx, func(tx *store.Store) error {
		// Re-read under lock: the order may have filled in the meantime.
		o, err := tx.GetOrder(orderID)
		if err != nil {
			return err
		}
		if !o.Resting() {
			return domain.ErrOrderNotCancellable
		}
		o.Status = domain.OrderStatusCancelled
		cancelled = o
		return tx.UpdateOrderFill(o)
	})
	if err != nil {
		return nil, err
	}

	book.Remove(orderID)
	telemetry.OrderCancelled(cancelled.Ticker)

	return cancelled, nil
}

// tickerTime returns a timestamp that is strictly increasing for the
// ticker, so price-time priority ties resolve deterministically even
// when the clock is coarse. Called with the book's write lock held.
func (m *Matcher) tickerTime(book *Book) time.Time {
	now := m.now().UTC()
	if !now.After(book.lastTS) {
		now = book.lastTS.Add(time.Microsecond)
	}
	book.lastTS = now
	return now
}
