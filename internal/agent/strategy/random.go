package strategy

import (
	"fmt"
	"math/rand"
	"time"

	"stocksim/internal/domain"
)

// RandomStrategy makes random buy/sell decisions. It exists to put
// baseline activity on the book and to exercise the whole pipeline.
type RandomStrategy struct {
	maxOrderValue   int64 // cents
	priceOffsetPct  float64
	cancelProb      float64
	marketOrderProb float64
	rng             *rand.Rand
}

// NewRandomStrategy builds a RandomStrategy from registry parameters.
func NewRandomStrategy(params map[string]any) (*RandomStrategy, error) {
	s := &RandomStrategy{
		maxOrderValue:   100000, // $1000
		priceOffsetPct:  0.02,
		cancelProb:      0.1,
		marketOrderProb: 0.3,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if v, ok := params["max_order_value"]; ok {
		f, err := toFloat(v)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("max_order_value must be a positive number")
		}
		s.maxOrderValue = int64(f * 100)
	}
	if v, ok := params["price_offset_pct"]; ok {
		f, err := toFloat(v)
		if err != nil || f <= 0 || f > 0.5 {
			return nil, fmt.Errorf("price_offset_pct must be in (0, 0.5]")
		}
		s.priceOffsetPct = f
	}
	if v, ok := params["cancel_probability"]; ok {
		f, err := toFloat(v)
		if err != nil || f < 0 || f > 1 {
			return nil, fmt.Errorf("cancel_probability must be in [0, 1]")
		}
		s.cancelProb = f
	}
	if v, ok := params["market_order_probability"]; ok {
		f, err := toFloat(v)
		if err != nil || f < 0 || f > 1 {
			return nil, fmt.Errorf("market_order_probability must be in [0, 1]")
		}
		s.marketOrderProb = f
	}

	return s, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

// Decide generates at most one random action per tick.
func (s *RandomStrategy) Decide(ctx *MarketContext) []Action {
	// Maybe cancel an existing order instead of trading.
	if len(ctx.OpenOrders) > 0 && s.rng.Float64() < s.cancelProb {
		o := ctx.OpenOrders[s.rng.Intn(len(ctx.OpenOrders))]
		return []Action{Cancel(o.ID)}
	}

	if len(ctx.Companies) == 0 {
		return nil
	}
	ticker := ctx.Companies[s.rng.Intn(len(ctx.Companies))].Ticker

	// Price the ticker: last trade, else the mid, else either touch.
	price, ok := ctx.LastPrice(ticker)
	if !ok {
		bid, hasBid := ctx.BestBid(ticker)
		ask, hasAsk := ctx.BestAsk(ticker)
		switch {
		case hasBid && hasAsk:
			price = (bid + ask) / 2
		case hasAsk:
			price = ask
		case hasBid:
			price = bid
		default:
			return nil // no price information at all
		}
	}
	if price <= 0 {
		return nil
	}

	useMarket := s.rng.Float64() < s.marketOrderProb

	if s.rng.Float64() < 0.5 {
		// Buy up to 10% of cash, capped by max_order_value.
		maxSpend := ctx.CashCents / 10
		if maxSpend > s.maxOrderValue {
			maxSpend = s.maxOrderValue
		}
		if maxSpend <= price {
			return nil
		}
		qty := 1 + s.rng.Int63n(maxSpend/price)
		if useMarket {
			return []Action{Buy(ticker, qty, nil, domain.OrderTypeMarket)}
		}
		limit := applyOffset(price, -s.priceOffsetPct)
		return []Action{Buy(ticker, qty, &limit, domain.OrderTypeLimit)}
	}

	held := ctx.Holding(ticker)
	if held <= 0 {
		return nil
	}
	qty := 1 + s.rng.Int63n(held)
	if useMarket {
		return []Action{Sell(ticker, qty, nil, domain.OrderTypeMarket)}
	}
	limit := applyOffset(price, s.priceOffsetPct)
	return []Action{Sell(ticker, qty, &limit, domain.OrderTypeLimit)}
}

// applyOffset shifts a cent price by a fraction, truncating toward zero
// to the cent and never returning less than 1.
func applyOffset(price int64, offset float64) int64 {
	shifted := int64(float64(price) * (1 + offset))
	if shifted < 1 {
		return 1
	}
	return shifted
}
