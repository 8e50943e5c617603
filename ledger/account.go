// Package ledger holds the capital pools the strategy trades against.
package ledger

import (
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var hundred = decimal.NewFromInt(100)

// Account is one independent capital pool. Cash is never observed negative:
// a mutation that would take it below zero floors it at zero and counts an
// anomaly. Account is not safe for concurrent use.
type Account struct {
	Name string

	initial   decimal.Decimal
	cash      decimal.Decimal
	peak      decimal.Decimal
	value     decimal.Decimal
	maxDD     decimal.Decimal
	anomalies int

	log logrus.FieldLogger
}

// Snapshot is a point-in-time view of an account.
type Snapshot struct {
	Name        string
	Initial     decimal.Decimal
	Cash        decimal.Decimal
	Value       decimal.Decimal
	Peak        decimal.Decimal
	Drawdown    decimal.Decimal
	MaxDrawdown decimal.Decimal
	ReturnPct   decimal.Decimal
	Anomalies   int
}

func NewAccount(name string, initial decimal.Decimal, log logrus.FieldLogger) *Account {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Account{
		Name:    name,
		initial: initial,
		cash:    initial,
		peak:    initial,
		value:   initial,
		log:     log.WithField("account", name),
	}
}

func (a *Account) Initial() decimal.Decimal { return a.initial }
func (a *Account) Cash() decimal.Decimal    { return a.cash }
func (a *Account) Peak() decimal.Decimal    { return a.peak }
func (a *Account) Anomalies() int           { return a.anomalies }

// Value is the total value passed to the most recent Mark.
func (a *Account) Value() decimal.Decimal { return a.value }

// Debit removes amount from cash. It returns false when cash had to be
// clamped at zero.
func (a *Account) Debit(amount decimal.Decimal, reason string) bool {
	return a.Apply(amount.Neg(), reason)
}

// Credit adds amount to cash. A negative amount behaves like a debit.
func (a *Account) Credit(amount decimal.Decimal, reason string) bool {
	return a.Apply(amount, reason)
}

// Apply adds delta to cash, flooring the result at zero.
func (a *Account) Apply(delta decimal.Decimal, reason string) bool {
	before := a.cash
	after := before.Add(delta)
	if after.IsNegative() {
		a.anomalies++
		a.log.WithFields(logrus.Fields{
			"before": before.StringFixed(2),
			"delta":  delta.StringFixed(2),
			"after":  after.StringFixed(2),
			"reason": reason,
		}).Error("cash would go negative, clamped to zero; check sizing and fees")
		a.cash = decimal.Zero
		return false
	}
	a.cash = after
	a.log.WithFields(logrus.Fields{
		"before": before.StringFixed(2),
		"delta":  delta.StringFixed(2),
		"after":  after.StringFixed(2),
		"reason": reason,
	}).Debug("cash moved")
	return true
}

// Mark records the current total value (cash plus open-position
// mark-to-market), raises the peak if needed and returns the drawdown.
func (a *Account) Mark(value decimal.Decimal) decimal.Decimal {
	a.value = value
	if value.GreaterThan(a.peak) {
		a.peak = value
	}
	dd := a.Drawdown(value)
	if dd.GreaterThan(a.maxDD) {
		a.maxDD = dd
	}
	return dd
}

// Drawdown is (peak - value) / peak, or zero when the peak is not positive
// or value is at or above the peak.
func (a *Account) Drawdown(value decimal.Decimal) decimal.Decimal {
	if !a.peak.IsPositive() || value.GreaterThanOrEqual(a.peak) {
		return decimal.Zero
	}
	return a.peak.Sub(value).Div(a.peak)
}

// ReturnPct is the percentage gain of value over the initial balance.
func (a *Account) ReturnPct(value decimal.Decimal) decimal.Decimal {
	if !a.initial.IsPositive() {
		return decimal.Zero
	}
	return value.Div(a.initial).Sub(decimal.NewFromInt(1)).Mul(hundred)
}

func (a *Account) Snapshot() Snapshot {
	return Snapshot{
		Name:        a.Name,
		Initial:     a.initial,
		Cash:        a.cash,
		Value:       a.value,
		Peak:        a.peak,
		Drawdown:    a.Drawdown(a.value),
		MaxDrawdown: a.maxDD,
		ReturnPct:   a.ReturnPct(a.value),
		Anomalies:   a.anomalies,
	}
}
