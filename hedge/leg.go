// Package hedge implements the independent hedge legs traded in the futures
// instrument. Each leg is a four-state machine:
//
//	Idle -> PendingEntry -> Open -> PendingExit -> Idle
//
// with failed orders reverting PendingEntry to Idle and PendingExit to Open.
package hedge

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/hedgesim/broker"
)

var (
	ErrBusy        = errors.New("leg has an outstanding order or position")
	ErrNotOpen     = errors.New("leg is not open")
	ErrWrongHandle = errors.New("notification does not match the leg's outstanding order")
)

type State int

const (
	Idle State = iota
	PendingEntry
	Open
	PendingExit
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PendingEntry:
		return "pending-entry"
	case Open:
		return "open"
	case PendingExit:
		return "pending-exit"
	default:
		return "unknown"
	}
}

// Policy selects the entry trigger and the exit thresholds of a leg.
type Policy int

const (
	// LossOffset legs are opened after a primary stop-loss and target a
	// profit in currency terms.
	LossOffset Policy = iota
	// Momentum legs are opened on an overheated MACD reversal and exit on
	// fixed ATR price levels.
	Momentum
)

func (p Policy) String() string {
	if p == Momentum {
		return "momentum"
	}
	return "loss-offset"
}

// Plan is what the risk engine decided when dispatching an entry. It becomes
// the leg's thresholds when the entry fills.
type Plan struct {
	Lots     int64
	Contract string
	Reason   string
	// Margin is reserved against hedge cash from dispatch, debited at fill
	// and released unchanged on exit. Zero means margin at the fill price.
	Margin decimal.Decimal

	// LossOffset
	MaxLoss      decimal.Decimal
	TargetProfit decimal.Decimal

	// Momentum
	ATR         decimal.Decimal
	ATRMultiple decimal.Decimal
}

// Closed describes a completed exit.
type Closed struct {
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	Lots       int64
	Contract   string
	EntryTime  time.Time
	Margin     decimal.Decimal
	Realized   decimal.Decimal
	Fees       decimal.Decimal
	Net        decimal.Decimal
	Reason     string
}

// Leg owns all leg-local state. Nothing here is shared between legs.
type Leg struct {
	Name      string
	Policy    Policy
	Direction broker.Side

	state  State
	handle broker.Handle
	plan   Plan

	entryPrice decimal.Decimal
	entryTime  time.Time
	lots       int64
	contract   string
	margin     decimal.Decimal

	stopLoss     decimal.Decimal
	takeProfit   decimal.Decimal
	targetProfit decimal.Decimal
	maxLoss      decimal.Decimal

	exitReason string
}

func NewLeg(name string, policy Policy, dir broker.Side) *Leg {
	return &Leg{Name: name, Policy: policy, Direction: dir}
}

func (l *Leg) State() State { return l.state }

// Pending is true from dispatch until the executor reports terminal status.
func (l *Leg) Pending() bool { return l.state == PendingEntry || l.state == PendingExit }

// IsOpen is true from the confirmed entry fill to the confirmed exit fill.
func (l *Leg) IsOpen() bool { return l.state == Open || l.state == PendingExit }

func (l *Leg) Handle() broker.Handle         { return l.handle }
func (l *Leg) EntryPrice() decimal.Decimal   { return l.entryPrice }
func (l *Leg) EntryTime() time.Time          { return l.entryTime }
func (l *Leg) Lots() int64                   { return l.lots }
func (l *Leg) Contract() string              { return l.contract }
func (l *Leg) StopLoss() decimal.Decimal     { return l.stopLoss }
func (l *Leg) TakeProfit() decimal.Decimal   { return l.takeProfit }
func (l *Leg) TargetProfit() decimal.Decimal { return l.targetProfit }
func (l *Leg) MaxLoss() decimal.Decimal      { return l.maxLoss }
func (l *Leg) PendingPlan() Plan             { return l.plan }
func (l *Leg) ExitReason() string            { return l.exitReason }

// BeginEntry moves Idle -> PendingEntry.
func (l *Leg) BeginEntry(h broker.Handle, p Plan) error {
	if l.state != Idle {
		return fmt.Errorf("%s entry in state %s: %w", l.Name, l.state, ErrBusy)
	}
	l.state = PendingEntry
	l.handle = h
	l.plan = p
	return nil
}

// ConfirmEntry moves PendingEntry -> Open using the fill price as the entry
// price. Momentum thresholds are fixed here for the leg's whole life.
func (l *Leg) ConfirmEntry(h broker.Handle, price decimal.Decimal, lots int64, at time.Time) error {
	if l.state != PendingEntry || h != l.handle {
		return fmt.Errorf("%s confirm entry %s in state %s: %w", l.Name, h, l.state, ErrWrongHandle)
	}
	l.state = Open
	l.handle = ""
	l.entryPrice = price
	l.entryTime = at
	l.lots = lots
	l.contract = l.plan.Contract
	if lots == l.plan.Lots {
		l.margin = l.plan.Margin
	}

	switch l.Policy {
	case LossOffset:
		l.maxLoss = l.plan.MaxLoss
		l.targetProfit = l.plan.TargetProfit
	case Momentum:
		dist := l.plan.ATR.Mul(l.plan.ATRMultiple)
		// Stop sits against the position, take in its favour.
		l.stopLoss = price.Sub(dist.Mul(l.Direction.Sign()))
		l.takeProfit = price.Add(dist.Mul(l.Direction.Sign()))
	}
	l.plan = Plan{}
	return nil
}

// BeginExit moves Open -> PendingExit.
func (l *Leg) BeginExit(h broker.Handle, reason string) error {
	switch l.state {
	case Open:
	case PendingEntry, PendingExit:
		return fmt.Errorf("%s exit in state %s: %w", l.Name, l.state, ErrBusy)
	default:
		return fmt.Errorf("%s exit in state %s: %w", l.Name, l.state, ErrNotOpen)
	}
	l.state = PendingExit
	l.handle = h
	l.exitReason = reason
	return nil
}

// ConfirmExit moves PendingExit -> Idle and clears every piece of entry data
// so nothing leaks into the next life cycle.
func (l *Leg) ConfirmExit(h broker.Handle, price decimal.Decimal, c Contract) (Closed, error) {
	if l.state != PendingExit || h != l.handle {
		return Closed{}, fmt.Errorf("%s confirm exit %s in state %s: %w", l.Name, h, l.state, ErrWrongHandle)
	}

	realized := l.PnL(price, c)
	fees := c.RoundTripFee(l.lots)
	out := Closed{
		EntryPrice: l.entryPrice,
		ExitPrice:  price,
		Lots:       l.lots,
		Contract:   l.contract,
		EntryTime:  l.entryTime,
		Margin:     l.Margin(c),
		Realized:   realized,
		Fees:       fees,
		Net:        realized.Sub(fees),
		Reason:     l.exitReason,
	}

	l.reset()
	return out, nil
}

// Revert handles a canceled or rejected order: a failed entry returns the
// leg to Idle, a failed exit returns it to Open.
func (l *Leg) Revert(h broker.Handle) error {
	if h != l.handle {
		return fmt.Errorf("%s revert %s: %w", l.Name, h, ErrWrongHandle)
	}
	switch l.state {
	case PendingEntry:
		l.reset()
	case PendingExit:
		l.state = Open
		l.handle = ""
		l.exitReason = ""
	default:
		return fmt.Errorf("%s revert in state %s: %w", l.Name, l.state, ErrWrongHandle)
	}
	return nil
}

// PnL is the floating profit of the open leg at price: (price - entry) for a
// long, (entry - price) for a short, times lots and multiplier.
func (l *Leg) PnL(price decimal.Decimal, c Contract) decimal.Decimal {
	if !l.IsOpen() {
		return decimal.Zero
	}
	return price.Sub(l.entryPrice).
		Mul(l.Direction.Sign()).
		Mul(decimal.NewFromInt(l.lots)).
		Mul(c.Multiplier)
}

// Margin is the margin the open leg holds: the planned margin, or the
// margin at the leg's own entry price when none was planned.
func (l *Leg) Margin(c Contract) decimal.Decimal {
	if !l.IsOpen() {
		return decimal.Zero
	}
	if l.margin.IsPositive() {
		return l.margin
	}
	return c.Margin(l.entryPrice, l.lots)
}

// Committed is the planned margin of an entry still waiting for its fill.
func (l *Leg) Committed() decimal.Decimal {
	if l.state != PendingEntry {
		return decimal.Zero
	}
	return l.plan.Margin
}

// MarkValue is what the open leg contributes to account value: reserved
// margin plus floating P&L.
func (l *Leg) MarkValue(price decimal.Decimal, c Contract) decimal.Decimal {
	return l.Margin(c).Add(l.PnL(price, c))
}

func (l *Leg) reset() {
	*l = Leg{Name: l.Name, Policy: l.Policy, Direction: l.Direction}
}
