package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar carries the close and the precomputed indicator values of one
// instrument for a single simulation step.
type Bar struct {
	Close     decimal.Decimal
	PrevClose decimal.Decimal

	FastMA  decimal.Decimal
	SlowMA  decimal.Decimal
	MACross Cross

	ATR decimal.Decimal

	MACD       decimal.Decimal
	MACDSignal decimal.Decimal
	MACDCross  Cross
}

// CrossGap is the relative distance of the fast MA above the slow MA.
// Zero when the slow MA is not positive.
func (b Bar) CrossGap() decimal.Decimal {
	if !b.SlowMA.IsPositive() {
		return decimal.Zero
	}
	return b.FastMA.Sub(b.SlowMA).Div(b.SlowMA)
}

// WithinLimit reports whether the close is inside the daily price-limit band
// around the previous close. A zero limit or an unknown previous close
// disables the check.
func (b Bar) WithinLimit(limit decimal.Decimal) bool {
	if !limit.IsPositive() || !b.PrevClose.IsPositive() {
		return true
	}
	one := decimal.NewFromInt(1)
	upper := b.PrevClose.Mul(one.Add(limit))
	lower := b.PrevClose.Mul(one.Sub(limit))
	return b.Close.GreaterThanOrEqual(lower) && b.Close.LessThanOrEqual(upper)
}

// Step is everything the risk engine reads for one market bar.
type Step struct {
	Time       time.Time
	Underlying Bar

	// Hedge is nil when the hedge instrument has no bar for this step.
	Hedge *Bar
	// HedgeContract is the hedge contract code trading on this step.
	HedgeContract string
}

// HasHedge reports whether hedge reference data is present.
func (s Step) HasHedge() bool { return s.Hedge != nil }
