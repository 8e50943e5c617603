// Package position tracks the long position held in the underlying
// instrument.
package position

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tracker holds quantity and weighted-average cost. AvgCost is defined iff
// Quantity != 0.
type Tracker struct {
	quantity   int64
	avgCost    decimal.Decimal
	entryPrice decimal.Decimal
	entryTime  time.Time
}

// Realized is the outcome of a reduction.
type Realized struct {
	Quantity int64
	Price    decimal.Decimal
	AvgCost  decimal.Decimal // average cost before the reduction
	PnL      decimal.Decimal // (price - avg cost) * quantity, before fees
	Fee      decimal.Decimal
	Proceeds decimal.Decimal // price * quantity - fee
	Closed   bool
}

func (t *Tracker) Quantity() int64 { return t.quantity }
func (t *Tracker) Flat() bool      { return t.quantity == 0 }

// AvgCost returns the average cost and whether one is defined.
func (t *Tracker) AvgCost() (decimal.Decimal, bool) {
	return t.avgCost, t.quantity != 0
}

// EntryPrice is the fill price of the most recent add.
func (t *Tracker) EntryPrice() decimal.Decimal { return t.entryPrice }

// EntryTime is when the position was opened from flat.
func (t *Tracker) EntryTime() time.Time { return t.entryTime }

// OpenOrAdd applies a buy fill. Callers guarantee qty > 0.
func (t *Tracker) OpenOrAdd(price decimal.Decimal, qty int64, at time.Time) {
	if t.quantity == 0 {
		t.avgCost = price
		t.entryTime = at
	} else {
		held := decimal.NewFromInt(t.quantity)
		added := decimal.NewFromInt(qty)
		t.avgCost = held.Mul(t.avgCost).Add(added.Mul(price)).Div(held.Add(added))
	}
	t.quantity += qty
	t.entryPrice = price
}

// ReduceOrClose applies a sell fill of qty shares (clamped to the held
// quantity). A full exit clears cost, entry price and entry time.
func (t *Tracker) ReduceOrClose(price decimal.Decimal, qty int64, fees FeeModel) Realized {
	if qty > t.quantity {
		qty = t.quantity
	}
	q := decimal.NewFromInt(qty)
	value := price.Mul(q)
	fee := fees.Fee(value)

	r := Realized{
		Quantity: qty,
		Price:    price,
		AvgCost:  t.avgCost,
		PnL:      price.Sub(t.avgCost).Mul(q),
		Fee:      fee,
		Proceeds: value.Sub(fee),
	}

	t.quantity -= qty
	if t.quantity == 0 {
		t.avgCost = decimal.Zero
		t.entryPrice = decimal.Zero
		t.entryTime = time.Time{}
		r.Closed = true
	}
	return r
}

// MarketValue is quantity * price.
func (t *Tracker) MarketValue(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(t.quantity))
}

// UnrealizedPnL is (price - avg cost) * quantity, zero when flat.
func (t *Tracker) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	if t.quantity == 0 {
		return decimal.Zero
	}
	return price.Sub(t.avgCost).Mul(decimal.NewFromInt(t.quantity))
}

// SameCycle reports whether at falls in the settlement cycle (calendar day)
// the position was opened in. Shares bought in a cycle cannot be sold in it.
func (t *Tracker) SameCycle(at time.Time) bool {
	if t.quantity == 0 || t.entryTime.IsZero() {
		return false
	}
	return sameDay(t.entryTime, at)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}
