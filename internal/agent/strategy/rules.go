package strategy

import (
	"math"
	"sort"
	"time"

	"stocksim/internal/domain"
)

// tickerAllCap bounds how many companies a `ticker: all` rule evaluates
// per tick.
const tickerAllCap = 64

// priceChangeWindow is the number of recent trades averaged for the
// price_change_pct metric: (last − avg) / avg × 100.
const priceChangeWindow = 20

// RuleBased executes a compiled DSL document. Cooldown state lives on
// the value, keyed by (rule index, ticker).
type RuleBased struct {
	doc       *Document
	ruleOrder []int // rule indexes sorted by (priority desc, document order)
	lastFired map[int]map[string]time.Time
}

func newRuleBased(doc *Document) *RuleBased {
	order := make([]int, len(doc.Rules))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return doc.Rules[order[a]].Priority > doc.Rules[order[b]].Priority
	})

	return &RuleBased{
		doc:       doc,
		ruleOrder: order,
		lastFired: make(map[int]map[string]time.Time),
	}
}

// Name returns the document's strategy name.
func (s *RuleBased) Name() string {
	return s.doc.Name
}

// Decide evaluates every rule in (priority desc, document order) order
// against the snapshot and returns the produced actions.
func (s *RuleBased) Decide(ctx *MarketContext) []Action {
	tickers := make([]string, 0, len(ctx.Companies))
	for _, c := range ctx.Companies {
		tickers = append(tickers, c.Ticker)
		if len(tickers) == tickerAllCap {
			break
		}
	}

	var actions []Action
	for _, idx := range s.ruleOrder {
		rule := &s.doc.Rules[idx]

		ruleTickers := tickers
		if rule.Ticker != "all" {
			ruleTickers = []string{rule.Ticker}
		}

		for _, ticker := range ruleTickers {
			if s.onCooldown(idx, ticker, ctx.Now, rule.CooldownSeconds) {
				continue
			}
			if !s.conditionsMet(rule, ctx, ticker) {
				continue
			}
			fired := s.runActions(rule, ctx, ticker)
			if len(fired) > 0 {
				actions = append(actions, fired...)
				s.markFired(idx, ticker, ctx.Now)
			}
		}
	}
	return actions
}

func (s *RuleBased) onCooldown(rule int, ticker string, now time.Time, cooldownSeconds int64) bool {
	byTicker, ok := s.lastFired[rule]
	if !ok {
		return false
	}
	last, ok := byTicker[ticker]
	if !ok {
		return false
	}
	return now.Sub(last) < time.Duration(cooldownSeconds)*time.Second
}

func (s *RuleBased) markFired(rule int, ticker string, now time.Time) {
	if s.lastFired[rule] == nil {
		s.lastFired[rule] = make(map[string]time.Time)
	}
	s.lastFired[rule][ticker] = now
}

// conditionsMet evaluates the rule's conjunction. A clause whose metric
// has no value (no trades yet, empty book side) is false.
func (s *RuleBased) conditionsMet(rule *Rule, ctx *MarketContext, ticker string) bool {
	for _, cond := range rule.When {
		value, ok := metricValue(cond.Metric, ctx, ticker)
		if !ok {
			return false
		}
		if !compare(value, cond.Operator, cond.Value) {
			return false
		}
	}
	return true
}

// metricValue extracts a metric in dollars (prices and values) or
// counts. The bool result is false when the metric is null.
func metricValue(metric string, ctx *MarketContext, ticker string) (float64, bool) {
	switch metric {
	case "price":
		cents, ok := ctx.LastPrice(ticker)
		return dollars(cents), ok
	case "bid_price":
		cents, ok := ctx.BestBid(ticker)
		return dollars(cents), ok
	case "ask_price":
		cents, ok := ctx.BestAsk(ticker)
		return dollars(cents), ok
	case "spread_pct":
		bid, hasBid := ctx.BestBid(ticker)
		ask, hasAsk := ctx.BestAsk(ticker)
		if !hasBid || !hasAsk || bid+ask == 0 {
			return 0, false
		}
		mid := float64(bid+ask) / 2
		return float64(ask-bid) / mid * 100, true
	case "my_cash":
		return dollars(ctx.CashCents), true
	case "my_holdings":
		return float64(ctx.Holding(ticker)), true
	case "my_position_value":
		cents, ok := ctx.LastPrice(ticker)
		if !ok {
			return 0, true
		}
		return dollars(ctx.Holding(ticker) * cents), true
	case "my_open_orders":
		return float64(ctx.OpenOrderCount(ticker)), true
	case "price_change_pct":
		return priceChangePct(ctx, ticker)
	default:
		return 0, false
	}
}

// priceChangePct compares the last trade price against the average of
// the most recent priceChangeWindow trades. With no trades the metric
// has no value; with a single trade there is no meaningful reference,
// so the change is 0.
func priceChangePct(ctx *MarketContext, ticker string) (float64, bool) {
	trades := ctx.RecentTrades[ticker]
	if len(trades) == 0 {
		return 0, false
	}
	if len(trades) < 2 {
		return 0, true
	}

	n := len(trades)
	if n > priceChangeWindow {
		n = priceChangeWindow
	}

	current, ok := ctx.LastPrice(ticker)
	if !ok {
		return 0, false
	}

	var sum int64
	for i := 0; i < n; i++ {
		cents, err := domain.ParseCents(trades[i].Price)
		if err != nil {
			return 0, false
		}
		sum += cents
	}
	avg := float64(sum) / float64(n)
	if avg <= 0 {
		return 0, true
	}
	return (float64(current) - avg) / avg * 100, true
}

func compare(a float64, op string, b float64) bool {
	switch op {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	case "==":
		return a == b
	case "!=":
		return a != b
	}
	return false
}

func dollars(cents int64) float64 {
	return float64(cents) / 100
}

// runActions executes a fired rule's action list in order, sizing and
// clamping each per the strategy settings.
func (s *RuleBased) runActions(rule *Rule, ctx *MarketContext, ticker string) []Action {
	var out []Action

	for _, ta := range rule.Then {
		target := ticker
		if ta.Ticker != "" {
			target = ta.Ticker
		}

		if ta.Action == "cancel_orders" {
			for _, o := range ctx.OpenOrders {
				if o.Ticker == target {
					out = append(out, Cancel(o.ID))
				}
			}
			continue
		}

		action, ok := s.sizeTrade(&ta, ctx, target)
		if ok {
			out = append(out, action)
		}
	}
	return out
}

// sizeTrade resolves one buy/sell action's quantity and price. Returns
// ok=false when clamping leaves nothing to trade; a skipped action is
// not an error.
func (s *RuleBased) sizeTrade(ta *TradeAction, ctx *MarketContext, ticker string) (Action, bool) {
	isBuy := ta.Action == "buy"

	ref, hasRef := referenceCents(ctx, ticker, isBuy)

	// Resolve the order price first; it is also the clamping price.
	var price *int64
	orderType := domain.OrderTypeMarket
	if ta.OrderType == "limit" {
		orderType = domain.OrderTypeLimit
		switch {
		case ta.Price != nil:
			p := int64(math.Round(*ta.Price * 100))
			price = &p
		case hasRef:
			p := ref
			if ta.PriceOffsetPct != nil {
				p = int64(math.Round(float64(ref) * (1 + *ta.PriceOffsetPct)))
			}
			if p < 1 {
				p = 1
			}
			price = &p
		default:
			return Action{}, false // no reference price to peg against
		}
	}

	clampPrice := ref
	if price != nil {
		clampPrice = *price
	}
	if clampPrice <= 0 {
		// No price to clamp against. An explicit-quantity market sell
		// can still go through: the exchange checks holdings, not cash.
		if !isBuy && orderType == domain.OrderTypeMarket && ta.Quantity != nil {
			return Sell(ticker, *ta.Quantity, nil, orderType), true
		}
		return Action{}, false
	}

	qty := s.quantityFor(ta, ctx, ticker, isBuy, clampPrice)
	qty = s.clamp(qty, clampPrice, ctx, isBuy)
	if qty < 1 {
		return Action{}, false
	}

	if isBuy {
		return Buy(ticker, qty, price, orderType), true
	}
	return Sell(ticker, qty, price, orderType), true
}

// referenceCents is the touch on the appropriate side, falling back to
// the last trade: asks for buys, bids for sells.
func referenceCents(ctx *MarketContext, ticker string, isBuy bool) (int64, bool) {
	if isBuy {
		return ctx.ReferencePrice(ticker)
	}
	if bid, ok := ctx.BestBid(ticker); ok {
		return bid, true
	}
	return ctx.LastPrice(ticker)
}

func (s *RuleBased) quantityFor(ta *TradeAction, ctx *MarketContext, ticker string, isBuy bool, price int64) int64 {
	if ta.Quantity != nil {
		return *ta.Quantity
	}

	if !isBuy {
		held := ctx.Holding(ticker)
		if ta.QuantityAll {
			return held
		}
		return int64(float64(held) * *ta.QuantityPct)
	}

	budget := s.buyBudget(ctx)
	if budget <= 0 || price <= 0 {
		return 0
	}
	if ta.QuantityAll {
		return budget / price
	}
	return int64(float64(budget) * *ta.QuantityPct / float64(price))
}

// buyBudget is the cash available for one buy: balance minus the
// reserve, capped at max_order_value.
func (s *RuleBased) buyBudget(ctx *MarketContext) int64 {
	budget := ctx.CashCents - int64(s.doc.Settings.MinCashReserve*100)
	if maxValue := int64(s.doc.Settings.MaxOrderValue * 100); maxValue > 0 && budget > maxValue {
		budget = maxValue
	}
	return budget
}

// clamp enforces the strategy settings on a derived quantity:
// price × qty ≤ max_order_value, and buys keep post-trade cash at or
// above min_cash_reserve.
func (s *RuleBased) clamp(qty, price int64, ctx *MarketContext, isBuy bool) int64 {
	if qty <= 0 || price <= 0 {
		return 0
	}
	if maxValue := int64(s.doc.Settings.MaxOrderValue * 100); maxValue > 0 && price*qty > maxValue {
		qty = maxValue / price
	}
	if isBuy {
		available := ctx.CashCents - int64(s.doc.Settings.MinCashReserve*100)
		if price*qty > available {
			qty = available / price
		}
	}
	return qty
}
