// Package book is the trading context: both capital pools, the primary
// position, the hedge legs, the trailing stop, the last marks and the
// registry of outstanding orders. One Book is passed explicitly to the risk
// engine and the settlement handler. A Book is not safe for concurrent use.
package book

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/hedgesim/broker"
	"github.com/rustyeddy/hedgesim/hedge"
	"github.com/rustyeddy/hedgesim/indicators"
	"github.com/rustyeddy/hedgesim/ledger"
	"github.com/rustyeddy/hedgesim/market"
	"github.com/rustyeddy/hedgesim/position"
)

var (
	// ErrDuplicateAction is returned when a slot already has an order
	// outstanding. Nothing is sent to the executor.
	ErrDuplicateAction = errors.New("slot already has an outstanding order")
	// ErrUnknownOrder is returned for a handle the book never dispatched.
	ErrUnknownOrder = errors.New("unknown order handle")
)

// Slot identifies one independently controlled position.
type Slot string

const (
	Primary    Slot = "primary"
	LossOffset Slot = "loss-offset"
	Momentum   Slot = "momentum"
)

// Slots lists every slot in dispatch order.
var Slots = []Slot{Primary, LossOffset, Momentum}

// Intent says whether an order opens or closes its slot's position.
type Intent int

const (
	Enter Intent = iota
	Exit
)

func (i Intent) String() string {
	if i == Exit {
		return "exit"
	}
	return "enter"
}

// Request is one order the risk engine wants dispatched.
type Request struct {
	Slot     Slot
	Intent   Intent
	Side     broker.Side
	Quantity int64
	Reason   string

	// Plan is set for hedge entries.
	Plan hedge.Plan
}

// OrderRef is what the book remembers about a dispatched order, so that a
// notification is routed by handle and never by instrument or side.
type OrderRef struct {
	Handle  broker.Handle
	Request Request
	Order   broker.Order
}

// Params are the static instrument facts a Book is built with.
type Params struct {
	UnderlyingCode    string
	UnderlyingBalance decimal.Decimal
	HedgeBalance      decimal.Decimal
	LotSize           int64
	Fees              position.FeeModel
	Contract          hedge.Contract
	TrailPercent      float64
}

type Book struct {
	Underlying *ledger.Account
	Hedge      *ledger.Account
	Position   *position.Tracker
	Trail      *indicators.TrailingStop

	LossLeg     *hedge.Leg
	MomentumLeg *hedge.Leg

	UnderlyingCode string
	LotSize        int64
	Fees           position.FeeModel
	Contract       hedge.Contract

	primary        broker.Handle
	orders         map[broker.Handle]OrderRef
	lastUnderlying decimal.Decimal
	lastHedge      decimal.Decimal
	hedgeContract  string
	lastTime       time.Time

	log logrus.FieldLogger
}

func New(p Params, log logrus.FieldLogger) *Book {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Book{
		Underlying:     ledger.NewAccount("underlying", p.UnderlyingBalance, log),
		Hedge:          ledger.NewAccount("hedge", p.HedgeBalance, log),
		Position:       &position.Tracker{},
		Trail:          indicators.NewTrailingStop(p.TrailPercent / 100),
		LossLeg:        hedge.NewLeg(string(LossOffset), hedge.LossOffset, broker.Sell),
		MomentumLeg:    hedge.NewLeg(string(Momentum), hedge.Momentum, broker.Sell),
		UnderlyingCode: p.UnderlyingCode,
		LotSize:        p.LotSize,
		Fees:           p.Fees,
		Contract:       p.Contract,
		orders:         make(map[broker.Handle]OrderRef),
		log:            log,
	}
}

// Leg returns the hedge leg controlling slot, or nil for the primary slot.
func (b *Book) Leg(s Slot) *hedge.Leg {
	switch s {
	case LossOffset:
		return b.LossLeg
	case Momentum:
		return b.MomentumLeg
	}
	return nil
}

// Pending reports whether slot has an order outstanding.
func (b *Book) Pending(s Slot) bool {
	if s == Primary {
		return b.primary != ""
	}
	return b.Leg(s).Pending()
}

// Outstanding is the number of orders awaiting a terminal notification.
func (b *Book) Outstanding() int { return len(b.orders) }

// Dispatch submits req and moves the slot into its pending state. A slot
// that is already pending yields ErrDuplicateAction without touching the
// executor. The slot transition and the registry entry are recorded only
// once the executor has accepted the order.
func (b *Book) Dispatch(ctx context.Context, exec broker.Executor, req Request, at time.Time) (broker.Handle, error) {
	if b.Pending(req.Slot) {
		return "", fmt.Errorf("dispatch %s %s: %w", req.Slot, req.Intent, ErrDuplicateAction)
	}
	if leg := b.Leg(req.Slot); leg != nil {
		if req.Intent == Enter && leg.State() != hedge.Idle {
			return "", fmt.Errorf("dispatch %s entry: %w", req.Slot, hedge.ErrBusy)
		}
		if req.Intent == Exit && leg.State() != hedge.Open {
			return "", fmt.Errorf("dispatch %s exit: %w", req.Slot, hedge.ErrNotOpen)
		}
	}

	order := broker.Order{
		Instrument: b.instrumentFor(req.Slot),
		Side:       req.Side,
		Quantity:   req.Quantity,
		Time:       at,
	}
	h, err := exec.Submit(ctx, order)
	if err != nil {
		return "", fmt.Errorf("submit %s %s: %w", req.Slot, req.Intent, err)
	}

	if leg := b.Leg(req.Slot); leg != nil {
		if req.Intent == Enter {
			err = leg.BeginEntry(h, req.Plan)
		} else {
			err = leg.BeginExit(h, req.Reason)
		}
		if err != nil {
			return "", err
		}
	} else {
		b.primary = h
	}

	b.orders[h] = OrderRef{Handle: h, Request: req, Order: order}
	b.log.WithFields(logrus.Fields{
		"slot":   req.Slot,
		"handle": h,
		"side":   req.Side,
		"qty":    req.Quantity,
		"reason": req.Reason,
	}).Info("order dispatched")
	return h, nil
}

// Lookup returns the dispatch record for h.
func (b *Book) Lookup(h broker.Handle) (OrderRef, error) {
	ref, ok := b.orders[h]
	if !ok {
		return OrderRef{}, fmt.Errorf("lookup %q: %w", h, ErrUnknownOrder)
	}
	return ref, nil
}

// Release forgets h and clears the primary guard if h held it. Leg state is
// advanced by the settlement handler through the leg itself.
func (b *Book) Release(h broker.Handle) {
	delete(b.orders, h)
	if b.primary == h {
		b.primary = ""
	}
}

func (b *Book) instrumentFor(s Slot) string {
	if s == Primary {
		return b.UnderlyingCode
	}
	return b.Contract.Code
}

// Observe records the step's closes as the last marks and advances the
// trailing stop while long. A step without a hedge bar keeps the previous
// hedge mark.
func (b *Book) Observe(s market.Step) {
	b.lastTime = s.Time
	b.lastUnderlying = s.Underlying.Close
	if s.HasHedge() {
		b.lastHedge = s.Hedge.Close
	}
	if s.HedgeContract != "" {
		b.hedgeContract = s.HedgeContract
	}
	if !b.Position.Flat() {
		b.Trail.Update(s.Underlying.Close.InexactFloat64())
	}
}

func (b *Book) LastUnderlying() decimal.Decimal { return b.lastUnderlying }
func (b *Book) LastHedge() decimal.Decimal      { return b.lastHedge }
func (b *Book) HedgeContract() string           { return b.hedgeContract }
func (b *Book) LastTime() time.Time             { return b.lastTime }

// Closes maps each instrument to its last close, for MarketAware executors.
func (b *Book) Closes(s market.Step) map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{b.UnderlyingCode: s.Underlying.Close}
	if s.HasHedge() {
		out[b.Contract.Code] = s.Hedge.Close
	}
	return out
}

// PositionValue is the underlying position at the last mark.
func (b *Book) PositionValue() decimal.Decimal {
	return b.Position.MarketValue(b.lastUnderlying)
}

// UnderlyingValue is cash plus the position at the last mark.
func (b *Book) UnderlyingValue() decimal.Decimal {
	return b.Underlying.Cash().Add(b.PositionValue())
}

// HedgeExposure is the reserved margin plus floating P&L of open legs.
func (b *Book) HedgeExposure() decimal.Decimal {
	v := decimal.Zero
	for _, leg := range []*hedge.Leg{b.LossLeg, b.MomentumLeg} {
		if leg.IsOpen() {
			v = v.Add(leg.MarkValue(b.lastHedge, b.Contract))
		}
	}
	return v
}

// CommittedMargin is hedge cash promised to entries that have been
// dispatched but not yet filled.
func (b *Book) CommittedMargin() decimal.Decimal {
	return b.LossLeg.Committed().Add(b.MomentumLeg.Committed())
}

// HedgeValue is hedge cash plus every open leg's margin and floating P&L.
func (b *Book) HedgeValue() decimal.Decimal {
	return b.Hedge.Cash().Add(b.HedgeExposure())
}

// MarkAccounts revalues both accounts at the last marks, updating peaks.
func (b *Book) MarkAccounts() {
	b.Underlying.Mark(b.UnderlyingValue())
	b.Hedge.Mark(b.HedgeValue())
}

// TotalValue is the sum of both accounts at the last marks.
func (b *Book) TotalValue() decimal.Decimal {
	return b.UnderlyingValue().Add(b.HedgeValue())
}

// Summary is the end-of-run view of the book.
type Summary struct {
	Underlying ledger.Snapshot
	Hedge      ledger.Snapshot
	Total      decimal.Decimal
	Initial    decimal.Decimal
	ReturnPct  decimal.Decimal
	Quantity   int64
	OpenLegs   int
}

func (b *Book) Summary() Summary {
	b.MarkAccounts()
	s := Summary{
		Underlying: b.Underlying.Snapshot(),
		Hedge:      b.Hedge.Snapshot(),
		Total:      b.TotalValue(),
		Initial:    b.Underlying.Initial().Add(b.Hedge.Initial()),
		Quantity:   b.Position.Quantity(),
	}
	if s.Initial.IsPositive() {
		s.ReturnPct = s.Total.Div(s.Initial).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100))
	}
	for _, leg := range []*hedge.Leg{b.LossLeg, b.MomentumLeg} {
		if leg.IsOpen() {
			s.OpenLegs++
		}
	}
	return s
}
