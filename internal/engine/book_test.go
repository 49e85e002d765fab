package engine

import (
	"testing"
	"time"

	"stocksim/internal/domain"
)

func entryOrder(id string, side domain.OrderSide, price, remaining int64, ts time.Time) *domain.Order {
	return &domain.Order{
		ID:                id,
		AccountID:         "acct",
		Ticker:            "TEST",
		Side:              side,
		OrderType:         domain.OrderTypeLimit,
		Price:             &price,
		Quantity:          remaining,
		RemainingQuantity: remaining,
		Status:            domain.OrderStatusOpen,
		Timestamp:         ts,
	}
}

func TestBook_BestAndRemove(t *testing.T) {
	book := NewBook("TEST")
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	book.Insert(entryOrder("b1", domain.OrderSideBuy, 9900, 5, base))
	book.Insert(entryOrder("b2", domain.OrderSideBuy, 10000, 5, base.Add(time.Second)))
	book.Insert(entryOrder("a1", domain.OrderSideSell, 10200, 5, base))
	book.Insert(entryOrder("a2", domain.OrderSideSell, 10100, 5, base.Add(time.Second)))

	best, ok := book.Best(domain.OrderSideBuy)
	if !ok || best.OrderID != "b2" {
		t.Errorf("best bid = %v, want b2 (highest price)", best.OrderID)
	}
	best, ok = book.Best(domain.OrderSideSell)
	if !ok || best.OrderID != "a2" {
		t.Errorf("best ask = %v, want a2 (lowest price)", best.OrderID)
	}

	book.Remove("b2")
	best, ok = book.Best(domain.OrderSideBuy)
	if !ok || best.OrderID != "b1" {
		t.Errorf("after remove, best bid = %v, want b1", best.OrderID)
	}

	// Removing an unknown ID is a no-op.
	book.Remove("nope")
	if book.Count(domain.OrderSideBuy) != 1 || book.Count(domain.OrderSideSell) != 2 {
		t.Errorf("counts = %d/%d, want 1/2",
			book.Count(domain.OrderSideBuy), book.Count(domain.OrderSideSell))
	}
}

func TestBook_SamePriceFIFO(t *testing.T) {
	book := NewBook("TEST")
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	book.Insert(entryOrder("late", domain.OrderSideSell, 10000, 5, base.Add(time.Minute)))
	book.Insert(entryOrder("early", domain.OrderSideSell, 10000, 5, base))

	best, ok := book.Best(domain.OrderSideSell)
	if !ok || best.OrderID != "early" {
		t.Errorf("best ask = %v, want the earlier order", best.OrderID)
	}
}

func TestBook_Reduce(t *testing.T) {
	book := NewBook("TEST")
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	book.Insert(entryOrder("a1", domain.OrderSideSell, 10000, 5, base))

	book.Reduce("a1", 3)
	best, ok := book.Best(domain.OrderSideSell)
	if !ok || best.Order.RemainingQuantity != 2 {
		t.Errorf("remaining = %d, want 2", best.Order.RemainingQuantity)
	}

	// Reducing to zero removes the entry.
	book.Reduce("a1", 2)
	if _, ok := book.Best(domain.OrderSideSell); ok {
		t.Error("entry should be gone after reducing to zero")
	}
	if book.Count(domain.OrderSideSell) != 0 {
		t.Errorf("ask count = %d, want 0", book.Count(domain.OrderSideSell))
	}
}

func TestBook_LevelsAggregation(t *testing.T) {
	book := NewBook("TEST")
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	book.Insert(entryOrder("a1", domain.OrderSideSell, 10000, 5, base))
	book.Insert(entryOrder("a2", domain.OrderSideSell, 10000, 7, base.Add(time.Second)))
	book.Insert(entryOrder("a3", domain.OrderSideSell, 10100, 2, base))
	book.Insert(entryOrder("a4", domain.OrderSideSell, 10200, 1, base))

	levels := book.Levels(domain.OrderSideSell, 2)
	if len(levels) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(levels))
	}
	if levels[0].Price != 10000 || levels[0].TotalQuantity != 12 || levels[0].OrderCount != 2 {
		t.Errorf("level 0 = %+v, want 12 @ 10000 across 2 orders", levels[0])
	}
	if levels[1].Price != 10100 || levels[1].TotalQuantity != 2 {
		t.Errorf("level 1 = %+v, want 2 @ 10100", levels[1])
	}

	if got := book.Levels(domain.OrderSideSell, 0); got != nil {
		t.Errorf("depth 0 should return nil, got %v", got)
	}
}
