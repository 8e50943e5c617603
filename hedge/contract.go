package hedge

import "github.com/shopspring/decimal"

// Contract describes the futures instrument the legs trade.
type Contract struct {
	Code       string
	Multiplier decimal.Decimal // units per lot, e.g. 10 tonnes
	MarginRate decimal.Decimal // e.g. 0.10
	FeePerLot  decimal.Decimal // charged on open and on close
}

// LotMargin is the margin one lot requires at price.
func (c Contract) LotMargin(price decimal.Decimal) decimal.Decimal {
	return price.Mul(c.Multiplier).Mul(c.MarginRate)
}

// Margin is price * lots * multiplier * margin rate.
func (c Contract) Margin(price decimal.Decimal, lots int64) decimal.Decimal {
	return c.LotMargin(price).Mul(decimal.NewFromInt(lots))
}

// RoundTripFee is the open plus close fee for lots.
func (c Contract) RoundTripFee(lots int64) decimal.Decimal {
	return c.FeePerLot.Mul(decimal.NewFromInt(2 * lots))
}

// AffordableLots returns the largest lot count, at most want, whose margin
// at price fits in cash. The rounded-down count is checked again against
// cash before it is returned.
func (c Contract) AffordableLots(want int64, price, cash decimal.Decimal) int64 {
	per := c.LotMargin(price)
	if want <= 0 || !per.IsPositive() || !cash.IsPositive() {
		return 0
	}
	if c.Margin(price, want).LessThanOrEqual(cash) {
		return want
	}
	lots := cash.Div(per).Floor().IntPart()
	if lots > want {
		lots = want
	}
	for lots > 0 && c.Margin(price, lots).GreaterThan(cash) {
		lots--
	}
	return lots
}
