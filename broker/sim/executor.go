// Package sim is a deterministic order executor for backtests. Orders fill
// in full at the instrument's close of the step they become due.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/hedgesim/broker"
	"github.com/rustyeddy/hedgesim/internal/id"
)

var ErrBadQuantity = errors.New("order quantity must be positive")

// RejectFunc lets a caller refuse an order at fill time. It returns the
// terminal status to report, or broker.Filled to let the fill through.
type RejectFunc func(o broker.Order) (broker.Status, string)

type pending struct {
	handle broker.Handle
	order  broker.Order
	due    int
}

// Executor implements broker.Executor and broker.MarketAware.
type Executor struct {
	mu     sync.Mutex
	delay  int
	step   int
	now    time.Time
	closes map[string]decimal.Decimal
	queue  []pending
	reject RejectFunc
}

type Option func(*Executor)

// WithDelay makes orders fill n steps after submission. Zero fills at the
// close of the submitting step.
func WithDelay(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.delay = n
		}
	}
}

func WithRejects(fn RejectFunc) Option {
	return func(e *Executor) { e.reject = fn }
}

func NewExecutor(opts ...Option) *Executor {
	e := &Executor{closes: make(map[string]decimal.Decimal)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnStep advances the executor to the next step and replaces the known
// closes. Instruments missing from closes have no price on this step.
func (e *Executor) OnStep(at time.Time, closes map[string]decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.step++
	e.now = at
	e.closes = make(map[string]decimal.Decimal, len(closes))
	for k, v := range closes {
		e.closes[k] = v
	}
}

func (e *Executor) Submit(ctx context.Context, o broker.Order) (broker.Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if o.Quantity <= 0 {
		return "", fmt.Errorf("submit %s %s: %w", o.Side, o.Instrument, ErrBadQuantity)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if o.Time.IsZero() {
		o.Time = e.now
	}
	h := broker.Handle(id.At(o.Time))
	e.queue = append(e.queue, pending{handle: h, order: o, due: e.step + e.delay})
	return h, nil
}

// Poll settles every queued order that is due on the current step.
func (e *Executor) Poll(ctx context.Context) ([]broker.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var out []broker.Notification
	keep := e.queue[:0]
	for _, p := range e.queue {
		if p.due > e.step {
			keep = append(keep, p)
			continue
		}
		out = append(out, e.settleLocked(p))
	}
	e.queue = keep
	return out, nil
}

// Flush makes every queued order due on the current step.
func (e *Executor) Flush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.queue {
		e.queue[i].due = e.step
	}
}

// Outstanding is the number of orders not yet reported.
func (e *Executor) Outstanding() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

func (e *Executor) settleLocked(p pending) broker.Notification {
	n := broker.Notification{
		Handle: p.handle,
		Order:  p.order,
		Time:   e.now,
	}

	price, ok := e.closes[p.order.Instrument]
	if !ok || !price.IsPositive() {
		n.Status = broker.Rejected
		n.Message = fmt.Sprintf("no price for %s", p.order.Instrument)
		return n
	}

	if e.reject != nil {
		if st, msg := e.reject(p.order); st != broker.Filled {
			n.Status = st
			n.Message = msg
			return n
		}
	}

	n.Status = broker.Filled
	n.FillPrice = price
	n.FillQty = p.order.Quantity
	return n
}
