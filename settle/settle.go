// Package settle applies executor notifications to the book. Each call
// performs the ledger mutation and the state transition together, so no
// intermediate state is observable between steps.
package settle

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/hedgesim/book"
	"github.com/rustyeddy/hedgesim/broker"
	"github.com/rustyeddy/hedgesim/journal"
	"github.com/rustyeddy/hedgesim/ledger"
)

// Outcome is what a single notification did.
type Outcome struct {
	Handle  broker.Handle
	Slot    book.Slot
	Intent  book.Intent
	Status  broker.Status
	Account string
	Delta   decimal.Decimal // change in the account's cash

	// Clamped is set when the cash movement hit the zero floor.
	Clamped bool

	// Fill is nil unless Status is Filled.
	Fill *journal.FillRecord
}

type Handler struct {
	log logrus.FieldLogger
}

func NewHandler(log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{log: log}
}

// Apply routes n by the handle recorded at dispatch.
func (h *Handler) Apply(b *book.Book, n broker.Notification) (Outcome, error) {
	ref, err := b.Lookup(n.Handle)
	if err != nil {
		return Outcome{}, err
	}
	req := ref.Request
	out := Outcome{
		Handle: n.Handle,
		Slot:   req.Slot,
		Intent: req.Intent,
		Status: n.Status,
	}
	log := h.log.WithFields(logrus.Fields{
		"slot":   req.Slot,
		"intent": req.Intent,
		"handle": n.Handle,
	})

	if n.Status != broker.Filled {
		if leg := b.Leg(req.Slot); leg != nil {
			if err := leg.Revert(n.Handle); err != nil {
				return out, err
			}
		}
		b.Release(n.Handle)
		out.Account = accountFor(b, req.Slot).Name
		log.WithFields(logrus.Fields{"status": n.Status, "message": n.Message}).
			Warn("order not filled, slot reverted")
		return out, nil
	}

	qty := n.FillQty
	if qty <= 0 {
		qty = ref.Order.Quantity
	}

	acct := accountFor(b, req.Slot)
	before := acct.Cash()
	var fill journal.FillRecord
	switch {
	case req.Slot == book.Primary && req.Intent == book.Enter:
		fill, out.Clamped = h.primaryBuy(b, n, qty)
	case req.Slot == book.Primary:
		fill, out.Clamped = h.primarySell(b, n, qty)
	case req.Intent == book.Enter:
		fill, out.Clamped, err = h.hedgeEntry(b, req.Slot, n, qty)
	default:
		fill, out.Clamped, err = h.hedgeExit(b, req.Slot, n)
	}
	if err != nil {
		return out, err
	}

	b.Release(n.Handle)
	b.MarkAccounts()

	fill.Handle = string(n.Handle)
	fill.Time = n.Time
	fill.Slot = string(req.Slot)
	fill.Account = acct.Name
	fill.Side = ref.Order.Side.String()
	fill.Quantity = qty
	fill.Price = n.FillPrice
	if fill.Reason == "" {
		fill.Reason = req.Reason
	}
	fill.CashAfter = acct.Cash()

	out.Account = acct.Name
	out.Delta = acct.Cash().Sub(before)
	out.Fill = &fill

	log.WithFields(logrus.Fields{
		"price": n.FillPrice,
		"qty":   qty,
		"net":   fill.Net.StringFixed(2),
		"cash":  fill.CashAfter.StringFixed(2),
	}).Info("fill settled")
	return out, nil
}

func accountFor(b *book.Book, s book.Slot) *ledger.Account {
	if s == book.Primary {
		return b.Underlying
	}
	return b.Hedge
}

func ratio(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole)
}

func (h *Handler) primaryBuy(b *book.Book, n broker.Notification, qty int64) (journal.FillRecord, bool) {
	value := n.FillPrice.Mul(decimal.NewFromInt(qty))
	fee := b.Fees.Fee(value)

	b.Position.OpenOrAdd(n.FillPrice, qty, n.Time)
	ok := b.Underlying.Debit(value.Add(fee), "primary buy")
	b.Trail.Reset(n.FillPrice.InexactFloat64())

	pos := b.Position.MarketValue(n.FillPrice)
	avg, _ := b.Position.AvgCost()
	return journal.FillRecord{
		Instrument:    b.UnderlyingCode,
		Fees:          fee,
		Net:           fee.Neg(),
		PositionValue: pos,
		PositionRatio: ratio(pos, b.Underlying.Cash().Add(pos)),
		AvgCost:       avg,
	}, !ok
}

func (h *Handler) primarySell(b *book.Book, n broker.Notification, qty int64) (journal.FillRecord, bool) {
	r := b.Position.ReduceOrClose(n.FillPrice, qty, b.Fees)
	ok := b.Underlying.Credit(r.Proceeds, "primary sell")
	if r.Closed {
		b.Trail.Stop()
	}

	pos := b.Position.MarketValue(n.FillPrice)
	return journal.FillRecord{
		Instrument:    b.UnderlyingCode,
		Realized:      r.PnL,
		Fees:          r.Fee,
		Net:           r.PnL.Sub(r.Fee),
		PositionValue: pos,
		PositionRatio: ratio(pos, b.Underlying.Cash().Add(pos)),
		AvgCost:       r.AvgCost,
	}, !ok
}

func (h *Handler) hedgeEntry(b *book.Book, s book.Slot, n broker.Notification, lots int64) (journal.FillRecord, bool, error) {
	leg := b.Leg(s)
	plan := leg.PendingPlan()
	if err := leg.ConfirmEntry(n.Handle, n.FillPrice, lots, n.Time); err != nil {
		return journal.FillRecord{}, false, fmt.Errorf("settle %s entry: %w", s, err)
	}
	margin := leg.Margin(b.Contract)
	ok := b.Hedge.Debit(margin, string(s)+" margin")

	return journal.FillRecord{
		Instrument:    leg.Contract(),
		Reason:        plan.Reason,
		PositionValue: margin,
		PositionRatio: ratio(margin, b.Hedge.Cash().Add(b.HedgeExposure())),
		AvgCost:       n.FillPrice,
	}, !ok, nil
}

func (h *Handler) hedgeExit(b *book.Book, s book.Slot, n broker.Notification) (journal.FillRecord, bool, error) {
	leg := b.Leg(s)
	closed, err := leg.ConfirmExit(n.Handle, n.FillPrice, b.Contract)
	if err != nil {
		return journal.FillRecord{}, false, fmt.Errorf("settle %s exit: %w", s, err)
	}
	ok := b.Hedge.Credit(closed.Margin.Add(closed.Net), string(s)+" exit")

	return journal.FillRecord{
		Instrument: closed.Contract,
		Reason:     closed.Reason,
		Realized:   closed.Realized,
		Fees:       closed.Fees,
		Net:        closed.Net,
		AvgCost:    closed.EntryPrice,
	}, !ok, nil
}
