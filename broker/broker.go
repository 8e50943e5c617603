// Package broker defines the order-execution collaborator the strategy
// dispatches to and the notifications it reports back.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Side of an order.
type Side int8

const (
	Buy  Side = +1
	Sell Side = -1
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the side that closes a position opened on s.
func (s Side) Opposite() Side { return -s }

// Sign is +1 for Buy and -1 for Sell as a decimal.
func (s Side) Sign() decimal.Decimal { return decimal.NewFromInt(int64(s)) }

// Status is the terminal status of an order.
type Status int

const (
	Filled Status = iota
	Canceled
	MarginRejected
	Rejected
)

func (s Status) String() string {
	switch s {
	case Filled:
		return "filled"
	case Canceled:
		return "canceled"
	case MarginRejected:
		return "margin-rejected"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Handle correlates a notification with the dispatch that produced it.
type Handle string

type Order struct {
	Instrument string
	Side       Side
	Quantity   int64
	Time       time.Time
}

// Notification reports the terminal status of an order. FillPrice and
// FillQty are only meaningful when Status is Filled.
type Notification struct {
	Handle    Handle
	Order     Order
	Status    Status
	FillPrice decimal.Decimal
	FillQty   int64
	Time      time.Time
	Message   string
}

// Executor accepts orders and later reports their outcome.
type Executor interface {
	Submit(ctx context.Context, o Order) (Handle, error)
	// Poll returns the notifications that have become available since the
	// previous call, in submission order.
	Poll(ctx context.Context) ([]Notification, error)
}

// MarketAware executors are told each step's closing prices before the
// strategy evaluates the step.
type MarketAware interface {
	OnStep(at time.Time, closes map[string]decimal.Decimal)
}

// Flusher executors can force every outstanding order due now, so the next
// Poll reports it. Used to close out at the end of a run.
type Flusher interface {
	Flush()
}
