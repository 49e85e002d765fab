package engine

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"stocksim/internal/domain"
	"stocksim/internal/store"
)

func newTestMatcher(t *testing.T) (*Matcher, *store.Store, *Books) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	books := NewBooks()
	return NewMatcher(st, books, zap.NewNop()), st, books
}

// seedAccount creates an account with cash (cents) and optional holdings.
func seedAccount(t *testing.T, st *store.Store, id string, cash int64, holdings map[string]int64) {
	t.Helper()
	if err := st.CreateAccount(&domain.Account{ID: id, APIKeyHash: "hash-" + id, CashBalance: cash}); err != nil {
		t.Fatalf("create account %s: %v", id, err)
	}
	for ticker, qty := range holdings {
		if err := st.AddShares(id, ticker, qty); err != nil {
			t.Fatalf("seed holding %s/%s: %v", id, ticker, err)
		}
	}
}

func limitOrder(account string, side domain.OrderSide, ticker string, price, qty int64) *domain.Order {
	return &domain.Order{
		AccountID: account,
		Ticker:    ticker,
		Side:      side,
		OrderType: domain.OrderTypeLimit,
		Price:     &price,
		Quantity:  qty,
	}
}

func marketOrder(account string, side domain.OrderSide, ticker string, qty int64) *domain.Order {
	return &domain.Order{
		AccountID: account,
		Ticker:    ticker,
		Side:      side,
		OrderType: domain.OrderTypeMarket,
		Quantity:  qty,
	}
}

func mustSubmit(t *testing.T, m *Matcher, o *domain.Order) []*domain.Trade {
	t.Helper()
	trades, err := m.Submit(context.Background(), o)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return trades
}

func cashOf(t *testing.T, st *store.Store, id string) int64 {
	t.Helper()
	a, err := st.GetAccount(id)
	if err != nil {
		t.Fatalf("get account %s: %v", id, err)
	}
	return a.CashBalance
}

func sharesOf(t *testing.T, st *store.Store, id, ticker string) int64 {
	t.Helper()
	qty, err := st.HoldingQuantity(id, ticker)
	if err != nil {
		t.Fatalf("holding %s/%s: %v", id, ticker, err)
	}
	return qty
}

// Simple match: treasury IPO at $100, market buy of 10 shares.
func TestSubmit_MarketBuyAgainstIPO(t *testing.T) {
	m, st, _ := newTestMatcher(t)
	seedAccount(t, st, "treasury", 0, map[string]int64{"TECH": 1_000_000})
	seedAccount(t, st, "alice", 500_000, nil) // $5,000

	ipo := limitOrder("treasury", domain.OrderSideSell, "TECH", 10000, 1000)
	mustSubmit(t, m, ipo)

	buy := marketOrder("alice", domain.OrderSideBuy, "TECH", 10)
	trades := mustSubmit(t, m, buy)

	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].Price != 10000 || trades[0].Quantity != 10 {
		t.Errorf("expected 10 @ 10000, got %d @ %d", trades[0].Quantity, trades[0].Price)
	}
	if buy.Status != domain.OrderStatusFilled {
		t.Errorf("expected FILLED, got %s", buy.Status)
	}
	if got := cashOf(t, st, "alice"); got != 400_000 {
		t.Errorf("alice cash = %d, want 400000", got)
	}
	if got := sharesOf(t, st, "alice", "TECH"); got != 10 {
		t.Errorf("alice holdings = %d, want 10", got)
	}
	if got := sharesOf(t, st, "treasury", "TECH"); got != 999_990 {
		t.Errorf("treasury holdings = %d, want 999990", got)
	}
	if got := cashOf(t, st, "treasury"); got != 100_000 {
		t.Errorf("treasury cash = %d, want 100000", got)
	}
}

// Partial fill: sell 50 resting, buy 80 at the same price.
func TestSubmit_PartialFillRests(t *testing.T) {
	m, st, books := newTestMatcher(t)
	seedAccount(t, st, "bob", 0, map[string]int64{"TECH": 50})
	seedAccount(t, st, "alice", 10_000_000, nil)

	sell := limitOrder("bob", domain.OrderSideSell, "TECH", 10500, 50)
	mustSubmit(t, m, sell)

	buy := limitOrder("alice", domain.OrderSideBuy, "TECH", 10500, 80)
	trades := mustSubmit(t, m, buy)

	if len(trades) != 1 || trades[0].Quantity != 50 || trades[0].Price != 10500 {
		t.Fatalf("expected one trade of 50 @ 10500, got %+v", trades)
	}
	if buy.Status != domain.OrderStatusPartial || buy.RemainingQuantity != 30 {
		t.Errorf("buy = %s remaining %d, want PARTIAL remaining 30", buy.Status, buy.RemainingQuantity)
	}

	sellRow, err := st.GetOrder(sell.ID)
	if err != nil {
		t.Fatalf("get sell: %v", err)
	}
	if sellRow.Status != domain.OrderStatusFilled {
		t.Errorf("sell status = %s, want FILLED", sellRow.Status)
	}

	// Remainder rests as the best (and only) bid at 105.
	book := books.GetOrCreate("TECH")
	best, ok := book.Best(domain.OrderSideBuy)
	if !ok || best.Price != 10500 || best.Order.RemainingQuantity != 30 {
		t.Errorf("expected bid 30 @ 10500 resting, got %+v ok=%v", best, ok)
	}
}

// Price-time priority: two asks at the same price fill oldest-first.
func TestSubmit_PriceTimePriority(t *testing.T) {
	m, st, _ := newTestMatcher(t)
	seedAccount(t, st, "a", 0, map[string]int64{"TECH": 5})
	seedAccount(t, st, "b", 0, map[string]int64{"TECH": 5})
	seedAccount(t, st, "buyer", 1_000_000, nil)

	first := limitOrder("a", domain.OrderSideSell, "TECH", 10000, 5)
	mustSubmit(t, m, first)
	second := limitOrder("b", domain.OrderSideSell, "TECH", 10000, 5)
	mustSubmit(t, m, second)

	buy := marketOrder("buyer", domain.OrderSideBuy, "TECH", 5)
	trades := mustSubmit(t, m, buy)

	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].SellOrderID != first.ID {
		t.Errorf("expected the older ask to fill, filled %s", trades[0].SellOrderID)
	}

	secondRow, _ := st.GetOrder(second.ID)
	if secondRow.RemainingQuantity != 5 || secondRow.Status != domain.OrderStatusOpen {
		t.Errorf("younger ask should be untouched, got %s remaining %d", secondRow.Status, secondRow.RemainingQuantity)
	}
}

// Market order walks the book across price levels.
func TestSubmit_MarketWalksBook(t *testing.T) {
	m, st, _ := newTestMatcher(t)
	seedAccount(t, st, "s1", 0, map[string]int64{"TECH": 10})
	seedAccount(t, st, "s2", 0, map[string]int64{"TECH": 5})
	seedAccount(t, st, "alice", 1_000_000, nil)

	mustSubmit(t, m, limitOrder("s1", domain.OrderSideSell, "TECH", 10000, 10))
	mustSubmit(t, m, limitOrder("s2", domain.OrderSideSell, "TECH", 10100, 5))

	buy := marketOrder("alice", domain.OrderSideBuy, "TECH", 12)
	trades := mustSubmit(t, m, buy)

	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].Quantity != 10 || trades[0].Price != 10000 {
		t.Errorf("first fill = %d @ %d, want 10 @ 10000", trades[0].Quantity, trades[0].Price)
	}
	if trades[1].Quantity != 2 || trades[1].Price != 10100 {
		t.Errorf("second fill = %d @ %d, want 2 @ 10100", trades[1].Quantity, trades[1].Price)
	}
	if buy.Status != domain.OrderStatusFilled {
		t.Errorf("status = %s, want FILLED", buy.Status)
	}
	// 10×100.00 + 2×101.00 = $1,202.
	if got := cashOf(t, st, "alice"); got != 1_000_000-120_200 {
		t.Errorf("alice cash = %d, want %d", got, 1_000_000-120_200)
	}
}

// Insufficient funds: rejected before any state change.
func TestSubmit_InsufficientFunds(t *testing.T) {
	m, st, books := newTestMatcher(t)
	seedAccount(t, st, "alice", 5_000, nil) // $50

	buy := limitOrder("alice", domain.OrderSideBuy, "TECH", 10000, 1)
	_, err := m.Submit(context.Background(), buy)
	if err != domain.ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	if _, err := st.GetOrder(buy.ID); err != domain.ErrOrderNotFound {
		t.Errorf("no order row should exist, got %v", err)
	}
	if books.GetOrCreate("TECH").Count(domain.OrderSideBuy) != 0 {
		t.Error("book must be unchanged")
	}
}

// Market buy that cannot afford even the first maker: no fills, the
// residual cancels, and the order row is still persisted. The book and
// both balances are untouched.
func TestSubmit_MarketBuyUnaffordableFirstMaker(t *testing.T) {
	m, st, books := newTestMatcher(t)
	seedAccount(t, st, "bob", 0, map[string]int64{"TECH": 10})
	seedAccount(t, st, "alice", 5_000, nil) // $50

	mustSubmit(t, m, limitOrder("bob", domain.OrderSideSell, "TECH", 10000, 10))

	buy := marketOrder("alice", domain.OrderSideBuy, "TECH", 1)
	trades := mustSubmit(t, m, buy)

	if len(trades) != 0 {
		t.Fatalf("expected no fills, got %d", len(trades))
	}
	if buy.Status != domain.OrderStatusCancelled {
		t.Errorf("status = %s, want CANCELLED", buy.Status)
	}

	row, err := st.GetOrder(buy.ID)
	if err != nil {
		t.Fatalf("order row must be persisted: %v", err)
	}
	if row.Status != domain.OrderStatusCancelled || row.RemainingQuantity != 1 {
		t.Errorf("row = %s remaining %d, want CANCELLED remaining 1", row.Status, row.RemainingQuantity)
	}

	if got := cashOf(t, st, "alice"); got != 5_000 {
		t.Errorf("alice cash must be unchanged, got %d", got)
	}
	book := books.GetOrCreate("TECH")
	if book.Count(domain.OrderSideSell) != 1 {
		t.Error("bob's ask must still rest")
	}
	ask, _ := book.Best(domain.OrderSideSell)
	if ask.Order.RemainingQuantity != 10 {
		t.Errorf("ask remaining = %d, want 10", ask.Order.RemainingQuantity)
	}
}

func TestSubmit_InsufficientShares(t *testing.T) {
	m, st, _ := newTestMatcher(t)
	seedAccount(t, st, "bob", 0, map[string]int64{"TECH": 3})

	sell := limitOrder("bob", domain.OrderSideSell, "TECH", 10000, 5)
	if _, err := m.Submit(context.Background(), sell); err != domain.ErrInsufficientShares {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
}

// Cash already committed to resting buys is unavailable for new buys.
func TestSubmit_CommittedCashCheck(t *testing.T) {
	m, st, _ := newTestMatcher(t)
	seedAccount(t, st, "alice", 100_000, nil) // $1,000

	mustSubmit(t, m, limitOrder("alice", domain.OrderSideBuy, "TECH", 10000, 8)) // commits $800

	over := limitOrder("alice", domain.OrderSideBuy, "TECH", 10000, 3) // needs $300 > $200 free
	if _, err := m.Submit(context.Background(), over); err != domain.ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	fits := limitOrder("alice", domain.OrderSideBuy, "TECH", 10000, 2)
	mustSubmit(t, m, fits)
}

// Market buy on an empty book: CANCELLED, no fills, row persisted.
func TestSubmit_MarketBuyEmptyBook(t *testing.T) {
	m, st, _ := newTestMatcher(t)
	seedAccount(t, st, "alice", 100_000, nil)

	buy := marketOrder("alice", domain.OrderSideBuy, "TECH", 10)
	trades := mustSubmit(t, m, buy)

	if len(trades) != 0 {
		t.Fatalf("expected no fills, got %d", len(trades))
	}
	if buy.Status != domain.OrderStatusCancelled {
		t.Errorf("status = %s, want CANCELLED", buy.Status)
	}

	row, err := st.GetOrder(buy.ID)
	if err != nil {
		t.Fatalf("order row must be persisted: %v", err)
	}
	if row.Status != domain.OrderStatusCancelled || row.RemainingQuantity != 10 {
		t.Errorf("row = %s remaining %d, want CANCELLED remaining 10", row.Status, row.RemainingQuantity)
	}
	if got := cashOf(t, st, "alice"); got != 100_000 {
		t.Errorf("cash must be unchanged, got %d", got)
	}
}

// Limit buy below every ask rests at its price.
func TestSubmit_LimitBelowMarketRests(t *testing.T) {
	m, st, books := newTestMatcher(t)
	seedAccount(t, st, "bob", 0, map[string]int64{"TECH": 10})
	seedAccount(t, st, "alice", 1_000_000, nil)

	mustSubmit(t, m, limitOrder("bob", domain.OrderSideSell, "TECH", 10000, 10))

	buy := limitOrder("alice", domain.OrderSideBuy, "TECH", 9900, 10)
	trades := mustSubmit(t, m, buy)

	if len(trades) != 0 {
		t.Fatalf("expected no fills, got %d", len(trades))
	}
	if buy.Status != domain.OrderStatusOpen {
		t.Errorf("status = %s, want OPEN", buy.Status)
	}

	book := books.GetOrCreate("TECH")
	best, ok := book.Best(domain.OrderSideBuy)
	if !ok || best.Price != 9900 {
		t.Errorf("expected bid resting at 9900, got %+v ok=%v", best, ok)
	}
	// Book must not be crossed.
	ask, _ := book.Best(domain.OrderSideSell)
	if best.Price >= ask.Price {
		t.Errorf("crossed book: bid %d >= ask %d", best.Price, ask.Price)
	}
}

// Limit buy priced exactly at the best ask matches.
func TestSubmit_LimitAtAskMatches(t *testing.T) {
	m, st, _ := newTestMatcher(t)
	seedAccount(t, st, "bob", 0, map[string]int64{"TECH": 10})
	seedAccount(t, st, "alice", 1_000_000, nil)

	mustSubmit(t, m, limitOrder("bob", domain.OrderSideSell, "TECH", 10000, 10))

	buy := limitOrder("alice", domain.OrderSideBuy, "TECH", 10000, 10)
	trades := mustSubmit(t, m, buy)

	if len(trades) != 1 || trades[0].Price != 10000 {
		t.Fatalf("expected fill at 10000, got %+v", trades)
	}
	if buy.Status != domain.OrderStatusFilled {
		t.Errorf("status = %s, want FILLED", buy.Status)
	}
}

// Self-trade: same account on both sides nets to zero delta.
func TestSubmit_SelfTradeNetsToZero(t *testing.T) {
	m, st, _ := newTestMatcher(t)
	seedAccount(t, st, "alice", 100_000, map[string]int64{"TECH": 10})

	mustSubmit(t, m, limitOrder("alice", domain.OrderSideSell, "TECH", 10000, 5))
	buy := limitOrder("alice", domain.OrderSideBuy, "TECH", 10000, 5)
	trades := mustSubmit(t, m, buy)

	if len(trades) != 1 {
		t.Fatalf("self-trade must settle, got %d trades", len(trades))
	}
	if trades[0].BuyerID != "alice" || trades[0].SellerID != "alice" {
		t.Errorf("both sides must be alice, got %s/%s", trades[0].BuyerID, trades[0].SellerID)
	}
	if got := cashOf(t, st, "alice"); got != 100_000 {
		t.Errorf("cash delta must be zero, got %d", got)
	}
	if got := sharesOf(t, st, "alice", "TECH"); got != 10 {
		t.Errorf("share delta must be zero, got %d", got)
	}
}

// Selling an entire position deletes the holding row.
func TestSubmit_SellAllDeletesHolding(t *testing.T) {
	m, st, _ := newTestMatcher(t)
	seedAccount(t, st, "bob", 0, map[string]int64{"TECH": 10})
	seedAccount(t, st, "alice", 1_000_000, nil)

	mustSubmit(t, m, limitOrder("alice", domain.OrderSideBuy, "TECH", 10000, 10))
	sell := marketOrder("bob", domain.OrderSideSell, "TECH", 10)
	trades := mustSubmit(t, m, sell)

	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if _, err := st.GetHolding("bob", "TECH"); err != domain.ErrHoldingNotFound {
		t.Errorf("holding row must be deleted, got %v", err)
	}
}

func TestCancel_SecondCancelConflicts(t *testing.T) {
	m, st, books := newTestMatcher(t)
	seedAccount(t, st, "alice", 1_000_000, nil)

	buy := limitOrder("alice", domain.OrderSideBuy, "TECH", 10000, 10)
	mustSubmit(t, m, buy)

	cancelled, err := m.Cancel(context.Background(), buy.ID)
	if err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Errorf("status = %s, want CANCELLED", cancelled.Status)
	}
	if cancelled.RemainingQuantity != 10 {
		t.Errorf("remaining must be preserved for fill accounting, got %d", cancelled.RemainingQuantity)
	}
	if books.GetOrCreate("TECH").Count(domain.OrderSideBuy) != 0 {
		t.Error("cancelled order must leave the book")
	}

	if _, err := m.Cancel(context.Background(), buy.ID); err != domain.ErrOrderNotCancellable {
		t.Errorf("second cancel should conflict, got %v", err)
	}

	row, _ := st.GetOrder(buy.ID)
	if row.Status != domain.OrderStatusCancelled {
		t.Errorf("state must be unchanged, got %s", row.Status)
	}
}

func TestCancel_FilledOrderConflicts(t *testing.T) {
	m, st, _ := newTestMatcher(t)
	seedAccount(t, st, "bob", 0, map[string]int64{"TECH": 5})
	seedAccount(t, st, "alice", 1_000_000, nil)

	sell := limitOrder("bob", domain.OrderSideSell, "TECH", 10000, 5)
	mustSubmit(t, m, sell)
	mustSubmit(t, m, limitOrder("alice", domain.OrderSideBuy, "TECH", 10000, 5))

	if _, err := m.Cancel(context.Background(), sell.ID); err != domain.ErrOrderNotCancellable {
		t.Errorf("cancelling a filled order should conflict, got %v", err)
	}
}

func TestCancel_UnknownOrder(t *testing.T) {
	m, _, _ := newTestMatcher(t)
	if _, err := m.Cancel(context.Background(), "nope"); err != domain.ErrOrderNotFound {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

// Cancelled resting cash is released for subsequent orders.
func TestCancel_ReleasesCommittedCash(t *testing.T) {
	m, st, _ := newTestMatcher(t)
	seedAccount(t, st, "alice", 100_000, nil)

	first := limitOrder("alice", domain.OrderSideBuy, "TECH", 10000, 10) // commits all $1,000
	mustSubmit(t, m, first)

	blocked := limitOrder("alice", domain.OrderSideBuy, "TECH", 10000, 1)
	if _, err := m.Submit(context.Background(), blocked); err != domain.ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds while cash is committed, got %v", err)
	}

	if _, err := m.Cancel(context.Background(), first.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	mustSubmit(t, m, limitOrder("alice", domain.OrderSideBuy, "TECH", 10000, 10))
}
