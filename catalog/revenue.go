package catalog

import (
	"github.com/shopspring/decimal"
)

// DefaultCommissionRate applies when a request carries no explicit rate.
var DefaultCommissionRate = decimal.NewFromInt(2)

var hundred = decimal.NewFromInt(100)

// RevenueDelta derives the revenue contribution of one transaction event:
// price × rate / 100, rounded half-up to 2 decimal places. A nil rate means
// the configured default. The rate is consumed here and must never be
// persisted anywhere.
func RevenueDelta(price decimal.Decimal, rate *decimal.Decimal) (decimal.Decimal, error) {
	r := DefaultCommissionRate
	if rate != nil {
		r = *rate
	}
	if r.IsNegative() || r.GreaterThan(hundred) {
		return decimal.Zero, Validationf("commission rate %s out of range [0, 100]", r)
	}
	if price.IsNegative() {
		return decimal.Zero, Validationf("price %s must not be negative", price)
	}
	return price.Mul(r).Div(hundred).Round(2), nil
}

// AccumulateRevenue adds a derived delta onto the persisted cumulative
// figure. Deliberately additive: applying the same delta twice records two
// transaction events, so callers invoke it once per real-world event.
func AccumulateRevenue(current, delta decimal.Decimal) decimal.Decimal {
	return current.Add(delta)
}
