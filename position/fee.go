package position

import "github.com/shopspring/decimal"

// FeeModel is a proportional commission: fee = trade value * Rate.
type FeeModel struct {
	Rate decimal.Decimal
}

func (f FeeModel) Fee(value decimal.Decimal) decimal.Decimal {
	return value.Abs().Mul(f.Rate)
}
