package strategy

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// The rule DSL: a YAML document of IF-THEN rules. Example:
//
//	name: Dip Buyer
//	settings:
//	  max_order_value: 1000
//	  min_cash_reserve: 500
//	rules:
//	  - name: buy the dip
//	    ticker: all
//	    when:
//	      - {metric: price_change_pct, operator: "<", value: -5}
//	    then:
//	      - {action: buy, quantity_pct: 0.5}
//	    cooldown_seconds: 300
//	    priority: 10

// CompilationError is a DSL document rejection with a human-readable
// reason.
type CompilationError struct {
	Message string
}

func (e *CompilationError) Error() string {
	return e.Message
}

func compileErrorf(format string, args ...any) *CompilationError {
	return &CompilationError{Message: fmt.Sprintf(format, args...)}
}

// Settings bound every order the strategy produces.
type Settings struct {
	MaxOrderValue  float64 `yaml:"max_order_value"`  // dollars, 0 = unlimited
	MinCashReserve float64 `yaml:"min_cash_reserve"` // dollars
}

// Condition is one clause of a rule's conjunction.
type Condition struct {
	Metric   string  `yaml:"metric"`
	Operator string  `yaml:"operator"`
	Value    float64 `yaml:"value"`
}

// TradeAction is one consequence of a firing rule.
type TradeAction struct {
	Action         string   `yaml:"action"`
	Ticker         string   `yaml:"ticker"` // optional override of the rule ticker
	Quantity       *int64   `yaml:"quantity"`
	QuantityPct    *float64 `yaml:"quantity_pct"`
	QuantityAll    bool     `yaml:"quantity_all"`
	Price          *float64 `yaml:"price"` // dollars
	PriceOffsetPct *float64 `yaml:"price_offset_pct"`
	OrderType      string   `yaml:"order_type"` // "limit" (default) or "market"
}

// Rule is one IF-THEN rule.
type Rule struct {
	Name            string        `yaml:"name"`
	Description     string        `yaml:"description"`
	Ticker          string        `yaml:"ticker"` // "all" or a symbol
	When            []Condition   `yaml:"when"`
	Then            []TradeAction `yaml:"then"`
	CooldownSeconds int64         `yaml:"cooldown_seconds"`
	Priority        int           `yaml:"priority"`
}

// Document is the whole strategy DSL document.
type Document struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Settings    Settings `yaml:"settings"`
	Rules       []Rule   `yaml:"rules"`
}

var validMetrics = map[string]bool{
	"price":             true,
	"price_change_pct":  true,
	"bid_price":         true,
	"ask_price":         true,
	"spread_pct":        true,
	"my_cash":           true,
	"my_holdings":       true,
	"my_position_value": true,
	"my_open_orders":    true,
}

var validOperators = map[string]bool{
	"<": true, "<=": true, ">": true, ">=": true, "==": true, "!=": true,
}

var validActions = map[string]bool{
	"buy": true, "sell": true, "cancel_orders": true,
}

// CompileYAML parses and validates a DSL document and returns the
// executable strategy. Cooldown state starts empty, so editing and
// recompiling a strategy resets all cooldowns.
func CompileYAML(source string) (*RuleBased, error) {
	doc, err := parseDocument(source)
	if err != nil {
		return nil, err
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}
	return newRuleBased(doc), nil
}

func parseDocument(source string) (*Document, error) {
	dec := yaml.NewDecoder(strings.NewReader(source))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, compileErrorf("invalid YAML: %v", err)
	}

	if doc.Name == "" {
		doc.Name = "Unnamed Strategy"
	}
	for i := range doc.Rules {
		rule := &doc.Rules[i]
		if rule.Name == "" {
			rule.Name = fmt.Sprintf("rule %d", i+1)
		}
		if rule.Ticker == "" {
			rule.Ticker = "all"
		}
		if rule.CooldownSeconds == 0 {
			rule.CooldownSeconds = 60
		}
		for j := range rule.Then {
			if rule.Then[j].OrderType == "" {
				rule.Then[j].OrderType = "limit"
			}
		}
	}
	return &doc, nil
}

func validateDocument(doc *Document) error {
	if len(doc.Rules) == 0 {
		return compileErrorf("strategy must have at least one rule")
	}
	if doc.Settings.MaxOrderValue < 0 || doc.Settings.MinCashReserve < 0 {
		return compileErrorf("settings must not be negative")
	}

	for _, rule := range doc.Rules {
		if len(rule.When) == 0 {
			return compileErrorf("rule %q must have at least one condition", rule.Name)
		}
		if len(rule.Then) == 0 {
			return compileErrorf("rule %q must have at least one action", rule.Name)
		}
		if rule.CooldownSeconds < 0 {
			return compileErrorf("rule %q: cooldown_seconds must not be negative", rule.Name)
		}

		seesHoldings := false
		for _, cond := range rule.When {
			if !validMetrics[cond.Metric] {
				return compileErrorf("rule %q: unknown metric %q", rule.Name, cond.Metric)
			}
			if !validOperators[cond.Operator] {
				return compileErrorf("rule %q: unknown operator %q", rule.Name, cond.Operator)
			}
			if cond.Metric == "my_holdings" {
				seesHoldings = true
			}
		}

		for _, action := range rule.Then {
			if !validActions[action.Action] {
				return compileErrorf("rule %q: unknown action %q", rule.Name, action.Action)
			}
			if action.Action == "cancel_orders" {
				continue
			}

			sizings := 0
			if action.Quantity != nil {
				sizings++
				if *action.Quantity <= 0 {
					return compileErrorf("rule %q: quantity must be positive", rule.Name)
				}
			}
			if action.QuantityPct != nil {
				sizings++
				if *action.QuantityPct <= 0 || *action.QuantityPct > 1 {
					return compileErrorf("rule %q: quantity_pct must be in (0, 1]", rule.Name)
				}
			}
			if action.QuantityAll {
				sizings++
			}
			if sizings == 0 {
				return compileErrorf("rule %q: %s action needs quantity, quantity_pct or quantity_all",
					rule.Name, action.Action)
			}
			if sizings > 1 {
				return compileErrorf("rule %q: quantity, quantity_pct and quantity_all are mutually exclusive",
					rule.Name)
			}

			if action.Action == "sell" && (action.QuantityPct != nil || action.QuantityAll) && !seesHoldings {
				return compileErrorf("rule %q: sell with quantity_pct/quantity_all requires a my_holdings condition",
					rule.Name)
			}

			if action.Price != nil && action.PriceOffsetPct != nil {
				return compileErrorf("rule %q: price and price_offset_pct are mutually exclusive", rule.Name)
			}
			if action.Price != nil && *action.Price <= 0 {
				return compileErrorf("rule %q: price must be positive", rule.Name)
			}

			switch action.OrderType {
			case "limit", "market":
			default:
				return compileErrorf("rule %q: order_type must be limit or market", rule.Name)
			}
			if action.OrderType == "market" && (action.Price != nil || action.PriceOffsetPct != nil) {
				return compileErrorf("rule %q: market actions must not set a price", rule.Name)
			}
		}
	}
	return nil
}
