// Package strategy maps alert codes to BUY/SELL actions for the backtest
// engine.
package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Action is the side of a strategy rule.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Rule binds one alert code to an action with a position-sizing percentage.
type Rule struct {
	Action  Action
	Signal  string
	SizePct decimal.Decimal
}

// RuleSet is the full rule mapping of one strategy, unique per
// (action, signal).
type RuleSet struct {
	Name string
	buy  map[string]Rule
	sell map[string]Rule
}

// NewRuleSet builds a RuleSet from a list of rules. Duplicate
// (action, signal) pairs are rejected.
func NewRuleSet(name string, rules []Rule) (*RuleSet, error) {
	rs := &RuleSet{
		Name: name,
		buy:  make(map[string]Rule),
		sell: make(map[string]Rule),
	}
	for _, r := range rules {
		var m map[string]Rule
		switch r.Action {
		case ActionBuy:
			m = rs.buy
		case ActionSell:
			m = rs.sell
		default:
			return nil, fmt.Errorf("unknown action %q for signal %s", r.Action, r.Signal)
		}
		if _, dup := m[r.Signal]; dup {
			return nil, fmt.Errorf("duplicate rule %s/%s", r.Action, r.Signal)
		}
		m[r.Signal] = r
	}
	return rs, nil
}

// FirstBuyMatch scans codes in order and returns the first one with a BUY
// rule.
func (rs *RuleSet) FirstBuyMatch(codes []string) (string, bool) {
	for _, c := range codes {
		if _, ok := rs.buy[c]; ok {
			return c, true
		}
	}
	return "", false
}

// FirstSellMatch scans codes in order and returns the first one with a SELL
// rule.
func (rs *RuleSet) FirstSellMatch(codes []string) (string, bool) {
	for _, c := range codes {
		if _, ok := rs.sell[c]; ok {
			return c, true
		}
	}
	return "", false
}
