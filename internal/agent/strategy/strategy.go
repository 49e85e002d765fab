// Package strategy defines the trading strategies agents run: the
// Strategy interface, the market snapshot they decide against, the
// built-in registry, and the YAML rule DSL compiler.
package strategy

import (
	"time"

	"stocksim/internal/agent/client"
	"stocksim/internal/domain"
)

// ActionType is the kind of intent a strategy produces.
type ActionType string

const (
	ActionBuy    ActionType = "BUY"
	ActionSell   ActionType = "SELL"
	ActionCancel ActionType = "CANCEL"
)

// Action is one order intent produced by a strategy tick. Price is in
// cents and nil for market orders; OrderID is set for cancels only.
type Action struct {
	Type      ActionType
	Ticker    string
	Quantity  int64
	Price     *int64
	OrderType domain.OrderType
	OrderID   string
}

// Buy builds a buy intent.
func Buy(ticker string, quantity int64, price *int64, orderType domain.OrderType) Action {
	return Action{Type: ActionBuy, Ticker: ticker, Quantity: quantity, Price: price, OrderType: orderType}
}

// Sell builds a sell intent.
func Sell(ticker string, quantity int64, price *int64, orderType domain.OrderType) Action {
	return Action{Type: ActionSell, Ticker: ticker, Quantity: quantity, Price: price, OrderType: orderType}
}

// Cancel builds a cancel intent for one of the agent's open orders.
func Cancel(orderID string) Action {
	return Action{Type: ActionCancel, OrderID: orderID}
}

// MarketContext is the snapshot a strategy evaluates against: public
// market state plus the agent's own account, gathered once per tick.
type MarketContext struct {
	Now          time.Time
	CashCents    int64
	Holdings     map[string]int64 // ticker → shares
	Companies    []client.Company
	OrderBooks   map[string]*client.OrderBook
	OpenOrders   []client.Order
	RecentTrades map[string][]client.Trade // newest first
}

// LastPrice returns the ticker's most recent trade price in cents.
func (c *MarketContext) LastPrice(ticker string) (int64, bool) {
	trades := c.RecentTrades[ticker]
	if len(trades) == 0 {
		return 0, false
	}
	cents, err := domain.ParseCents(trades[0].Price)
	if err != nil {
		return 0, false
	}
	return cents, true
}

// BestBid returns the ticker's best bid price in cents.
func (c *MarketContext) BestBid(ticker string) (int64, bool) {
	return bestLevel(c.OrderBooks[ticker], true)
}

// BestAsk returns the ticker's best ask price in cents.
func (c *MarketContext) BestAsk(ticker string) (int64, bool) {
	return bestLevel(c.OrderBooks[ticker], false)
}

func bestLevel(book *client.OrderBook, bid bool) (int64, bool) {
	if book == nil {
		return 0, false
	}
	levels := book.Asks
	if bid {
		levels = book.Bids
	}
	if len(levels) == 0 {
		return 0, false
	}
	cents, err := levels[0].PriceCents()
	if err != nil {
		return 0, false
	}
	return cents, true
}

// Holding returns the agent's shares in a ticker, 0 when none.
func (c *MarketContext) Holding(ticker string) int64 {
	return c.Holdings[ticker]
}

// OpenOrderCount returns the agent's OPEN/PARTIAL orders for a ticker.
func (c *MarketContext) OpenOrderCount(ticker string) int {
	n := 0
	for _, o := range c.OpenOrders {
		if o.Ticker == ticker {
			n++
		}
	}
	return n
}

// ReferencePrice is the price used to size buys: best ask, falling
// back to the last trade.
func (c *MarketContext) ReferencePrice(ticker string) (int64, bool) {
	if ask, ok := c.BestAsk(ticker); ok {
		return ask, true
	}
	return c.LastPrice(ticker)
}

// Strategy decides the actions for one tick against a snapshot.
// Implementations keep their own state (cooldowns, RNG) and are used by
// a single agent goroutine, so they need not be safe for concurrent use.
type Strategy interface {
	Decide(ctx *MarketContext) []Action
}
