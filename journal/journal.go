// Package journal records what happened during a run: every fill, the
// per-step value of each account and the run summary.
package journal

import (
	"time"

	"github.com/shopspring/decimal"
)

// FillRecord is one settled fill, written once per Filled notification.
type FillRecord struct {
	RunID      string
	Handle     string
	Time       time.Time
	Slot       string
	Account    string
	Instrument string // hedge fills carry the contract code traded
	Side       string
	Quantity   int64
	Price      decimal.Decimal
	Reason     string

	Realized decimal.Decimal
	Fees     decimal.Decimal
	Net      decimal.Decimal

	CashAfter     decimal.Decimal
	PositionValue decimal.Decimal // market value or reserved margin after the fill
	PositionRatio decimal.Decimal // position value / account value
	AvgCost       decimal.Decimal
}

// EquitySnapshot is one account's state at the end of a step.
type EquitySnapshot struct {
	RunID    string
	Time     time.Time
	Account  string
	Cash     decimal.Decimal
	Value    decimal.Decimal
	Peak     decimal.Decimal
	Drawdown decimal.Decimal
}

type Journal interface {
	RecordFill(FillRecord) error
	RecordEquity(EquitySnapshot) error
	RecordRun(RunRecord) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordFill(FillRecord) error       { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) RecordRun(RunRecord) error         { return nil }
func (Nop) Close() error                      { return nil }
