package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"stocksim/internal/domain"
	"stocksim/internal/store"
)

// settle executes one fill inside the submit transaction: buyer cash
// down, seller cash up, shares from seller to buyer, maker row update,
// trade insert. The pre-checks in Submit make step failures impossible;
// if one occurs anyway it surfaces as ErrSettlementFailed and the whole
// submit rolls back. Self-trades settle normally — the two cash updates
// and two holding updates net out on the same rows.
func (m *Matcher) settle(tx *store.Store, taker *domain.Order, f plannedFill, executedAt time.Time) (*domain.Trade, error) {
	var buyOrder, sellOrder *domain.Order
	if taker.Side == domain.OrderSideBuy {
		buyOrder, sellOrder = taker, f.maker
	} else {
		buyOrder, sellOrder = f.maker, taker
	}

	amount := f.price * f.qty

	buyer, err := tx.GetAccount(buyOrder.AccountID)
	if err != nil {
		return nil, fmt.Errorf("%w: load buyer: %v", domain.ErrSettlementFailed, err)
	}
	if buyer.CashBalance < amount {
		return nil, fmt.Errorf("%w: buyer %s cash %d < %d", domain.ErrSettlementFailed,
			buyer.ID, buyer.CashBalance, amount)
	}

	if err := tx.AddCash(buyOrder.AccountID, -amount); err != nil {
		return nil, fmt.Errorf("%w: debit buyer: %v", domain.ErrSettlementFailed, err)
	}
	if err := tx.AddCash(sellOrder.AccountID, amount); err != nil {
		return nil, fmt.Errorf("%w: credit seller: %v", domain.ErrSettlementFailed, err)
	}

	// Seller first: on a self-trade the decrement must see the pre-fill
	// quantity before the buyer side re-adds it.
	if err := tx.AddShares(sellOrder.AccountID, taker.Ticker, -f.qty); err != nil {
		return nil, fmt.Errorf("%w: debit seller shares: %v", domain.ErrSettlementFailed, err)
	}
	if err := tx.AddShares(buyOrder.AccountID, taker.Ticker, f.qty); err != nil {
		return nil, fmt.Errorf("%w: credit buyer shares: %v", domain.ErrSettlementFailed, err)
	}

	// Persist the maker's fill. The in-memory mirror is only mutated
	// after commit, so compute the new remaining without touching it.
	makerRow := *f.maker
	makerRow.RemainingQuantity -= f.qty
	if makerRow.RemainingQuantity == 0 {
		makerRow.Status = domain.OrderStatusFilled
	} else {
		makerRow.Status = domain.OrderStatusPartial
	}
	if err := tx.UpdateOrderFill(&makerRow); err != nil {
		return nil, fmt.Errorf("%w: update maker: %v", domain.ErrSettlementFailed, err)
	}

	trade := &domain.Trade{
		ID:          uuid.New().String(),
		Ticker:      taker.Ticker,
		Price:       f.price,
		Quantity:    f.qty,
		BuyerID:     buyOrder.AccountID,
		SellerID:    sellOrder.AccountID,
		BuyOrderID:  buyOrder.ID,
		SellOrderID: sellOrder.ID,
		Timestamp:   executedAt,
	}
	if err := tx.CreateTrade(trade); err != nil {
		return nil, fmt.Errorf("%w: insert trade: %v", domain.ErrSettlementFailed, err)
	}

	return trade, nil
}
