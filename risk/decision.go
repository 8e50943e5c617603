package risk

import (
	"fmt"

	"github.com/rustyeddy/hedgesim/book"
)

// Violation codes.
const (
	CrossGapTooSmall   = "CROSS_GAP_TOO_SMALL"
	BelowMinLot        = "BELOW_MIN_LOT"
	InsufficientCash   = "INSUFFICIENT_CASH"
	InsufficientMargin = "INSUFFICIENT_MARGIN"
	DrawdownCeiling    = "DRAWDOWN_CEILING"
	PriceLimit         = "PRICE_LIMIT"
	NoHedgeData        = "NO_HEDGE_DATA"
)

type Violation struct {
	Code string
	Msg  string
}

// Decision is the engine's verdict for one slot. A nil Request means hold.
// Violations explain why a wanted action was refused.
type Decision struct {
	Slot       book.Slot
	Allowed    bool
	Request    *book.Request
	Violations []Violation

	// AfterPrimary marks an action that is only valid if the primary
	// request of the same step was dispatched.
	AfterPrimary bool
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
	d.Request = nil
}

func (d *Decision) addf(code, format string, args ...any) {
	d.add(code, fmt.Sprintf(format, args...))
}

func (d *Decision) allow(r book.Request) {
	d.Allowed = true
	d.Request = &r
}

// Decisions holds at most one decision per slot.
type Decisions map[book.Slot]*Decision

func (ds Decisions) get(s book.Slot) *Decision {
	d, ok := ds[s]
	if !ok {
		d = &Decision{Slot: s}
		ds[s] = d
	}
	return d
}

// Requests returns the allowed requests in dispatch order.
func (ds Decisions) Requests() []*Decision {
	var out []*Decision
	for _, s := range book.Slots {
		if d, ok := ds[s]; ok && d.Request != nil {
			out = append(out, d)
		}
	}
	return out
}

// Refused returns every decision that carries a violation.
func (ds Decisions) Refused() []*Decision {
	var out []*Decision
	for _, s := range book.Slots {
		if d, ok := ds[s]; ok && len(d.Violations) > 0 {
			out = append(out, d)
		}
	}
	return out
}
