package payment

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// PredicateKind tags the supported balance comparisons.
type PredicateKind int

const (
	Unsupported PredicateKind = iota
	BalanceAtLeast
	BalanceAbove
	BalanceAtMost
	BalanceBelow
)

func (k PredicateKind) operator() string {
	switch k {
	case BalanceAtLeast:
		return ">="
	case BalanceAbove:
		return ">"
	case BalanceAtMost:
		return "<="
	case BalanceBelow:
		return "<"
	default:
		return "?"
	}
}

// Predicate is a parsed condition of the form `balance <op> <threshold>`.
type Predicate struct {
	Kind      PredicateKind
	Threshold decimal.Decimal
}

var predicatePattern = regexp.MustCompile(`^(?i:balance)\s*(>=|<=|>|<)\s*([0-9]+(?:\.[0-9]+)?)$`)

// ParsePredicate never fails: anything outside the grammar maps to Unsupported.
func ParsePredicate(expression string) Predicate {
	m := predicatePattern.FindStringSubmatch(strings.TrimSpace(expression))
	if m == nil {
		return Predicate{Kind: Unsupported}
	}
	threshold, err := decimal.NewFromString(m[2])
	if err != nil || threshold.IsNegative() {
		return Predicate{Kind: Unsupported}
	}

	var kind PredicateKind
	switch m[1] {
	case ">=":
		kind = BalanceAtLeast
	case ">":
		kind = BalanceAbove
	case "<=":
		kind = BalanceAtMost
	case "<":
		kind = BalanceBelow
	}
	return Predicate{Kind: kind, Threshold: threshold}
}

// Supported reports whether the predicate can ever evaluate to true.
func (p Predicate) Supported() bool {
	return p.Kind != Unsupported
}

// Eval applies the predicate to a balance. Unsupported is always false.
func (p Predicate) Eval(balance decimal.Decimal) bool {
	switch p.Kind {
	case BalanceAtLeast:
		return balance.GreaterThanOrEqual(p.Threshold)
	case BalanceAbove:
		return balance.GreaterThan(p.Threshold)
	case BalanceAtMost:
		return balance.LessThanOrEqual(p.Threshold)
	case BalanceBelow:
		return balance.LessThan(p.Threshold)
	default:
		return false
	}
}

func (p Predicate) String() string {
	if !p.Supported() {
		return "unsupported"
	}
	return fmt.Sprintf("balance %s %s", p.Kind.operator(), p.Threshold.String())
}
