package risk

import (
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/hedgesim/book"
	"github.com/rustyeddy/hedgesim/broker"
	"github.com/rustyeddy/hedgesim/hedge"
	"github.com/rustyeddy/hedgesim/market"
)

// Exit and entry reasons.
const (
	ReasonGoldenCross = "golden-cross"
	ReasonDeathCross  = "death-cross"
	ReasonStopLoss    = "stop-loss"
	ReasonTakeProfit  = "take-profit"
	ReasonTrailing    = "trailing-stop"
	ReasonLossOffset  = "loss-offset"
	ReasonMomentum    = "macd-reversal"
	ReasonCloseOut    = "close-out"
)

// Engine evaluates one step at a time. It holds no trading state of its
// own; everything it reads comes from the Book.
type Engine struct {
	p   Policy
	log logrus.FieldLogger
}

func NewEngine(p Policy, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{p: p, log: log}
}

func (e *Engine) Policy() Policy { return e.p }

// Evaluate returns at most one decision per slot. Hedge legs are managed
// first and are unaffected by the primary pre-checks. A primary stop-loss
// exit also yields the loss-offset entry for the same step.
func (e *Engine) Evaluate(b *book.Book, s market.Step) Decisions {
	ds := Decisions{}

	e.hedges(b, s, ds)

	if !s.Underlying.WithinLimit(e.p.PriceLimit) {
		ds.get(book.Primary).addf(PriceLimit, "close %s outside %s band of %s",
			s.Underlying.Close, e.p.PriceLimit, s.Underlying.PrevClose)
		return ds
	}

	if b.Pending(book.Primary) {
		return ds
	}
	if b.Position.Flat() {
		e.primaryEntry(b, s, ds)
		return ds
	}

	loss, ok := e.primaryExit(b, s, ds)
	if ok {
		e.lossOffsetEntry(b, s, loss, ds)
	}
	return ds
}

func (e *Engine) primaryEntry(b *book.Book, s market.Step, ds Decisions) {
	bar := s.Underlying
	if bar.MACross != market.Golden {
		return
	}
	d := ds.get(book.Primary)

	gap := bar.CrossGap()
	if gap.LessThanOrEqual(e.p.CrossoverThreshold) {
		d.addf(CrossGapTooSmall, "gap %s <= threshold %s", gap.StringFixed(5), e.p.CrossoverThreshold)
		return
	}

	if e.p.MaxDrawdown.IsPositive() {
		dd := b.Underlying.Drawdown(b.UnderlyingValue())
		if dd.GreaterThanOrEqual(e.p.MaxDrawdown) {
			d.addf(DrawdownCeiling, "drawdown %s >= ceiling %s", dd.StringFixed(4), e.p.MaxDrawdown)
			return
		}
	}

	r := SizeEntry(e.p, SizeInputs{
		Cash:          b.Underlying.Cash(),
		PositionValue: b.PositionValue(),
		Price:         bar.Close,
		ATR:           bar.ATR,
		LotSize:       b.LotSize,
	})
	if r.Shares == 0 {
		d.addf(r.Code, "cash %s budget %s per-share risk %s at %s",
			b.Underlying.Cash().StringFixed(2), r.RiskBudget.StringFixed(2), r.PerShareRisk.StringFixed(4), bar.Close)
		return
	}
	d.allow(book.Request{
		Slot:     book.Primary,
		Intent:   book.Enter,
		Side:     broker.Buy,
		Quantity: r.Shares,
		Reason:   ReasonGoldenCross,
	})
}

// primaryExit picks the first matching exit rule. For a stop-loss it also
// returns the loss magnitude to hand to the loss-offset leg.
func (e *Engine) primaryExit(b *book.Book, s market.Step, ds Decisions) (decimal.Decimal, bool) {
	if b.Position.SameCycle(s.Time) {
		return decimal.Zero, false
	}
	bar := s.Underlying
	entry := b.Position.EntryPrice()
	dist := bar.ATR.Mul(e.p.ATRMultiplier)

	var reason string
	switch {
	case e.p.EnableDeathCross && bar.MACross == market.Death:
		reason = ReasonDeathCross
	case bar.Close.LessThan(entry.Sub(dist)):
		reason = ReasonStopLoss
	case bar.Close.GreaterThan(entry.Add(dist)):
		reason = ReasonTakeProfit
	case e.p.EnableTrailingStop && b.Trail.Tracking() &&
		bar.Close.LessThan(decimal.NewFromFloat(b.Trail.Level())):
		reason = ReasonTrailing
	default:
		return decimal.Zero, false
	}

	ds.get(book.Primary).allow(book.Request{
		Slot:     book.Primary,
		Intent:   book.Exit,
		Side:     broker.Sell,
		Quantity: b.Position.Quantity(),
		Reason:   reason,
	})
	if reason != ReasonStopLoss {
		return decimal.Zero, false
	}
	avg, _ := b.Position.AvgCost()
	loss := avg.Sub(bar.Close).Mul(decimal.NewFromInt(b.Position.Quantity()))
	return loss.Abs(), true
}

func (e *Engine) lossOffsetEntry(b *book.Book, s market.Step, loss decimal.Decimal, ds Decisions) {
	lp := e.p.LossHedge
	leg := b.LossLeg
	if !lp.Enabled || leg.State() != hedge.Idle || !loss.IsPositive() {
		return
	}
	d := ds.get(book.LossOffset)
	if !s.HasHedge() {
		e.missingHedge(s, book.LossOffset)
		d.add(NoHedgeData, "no hedge bar for loss-offset entry")
		return
	}

	price := s.Hedge.Close
	free := freeMargin(b, ds)
	lots := HedgeLots(b.Contract, lp.Lots, price, free)
	if lots < 1 {
		d.addf(InsufficientMargin, "lot margin %s exceeds free hedge cash %s",
			b.Contract.LotMargin(price).StringFixed(2), free.StringFixed(2))
		return
	}
	if lots < lp.Lots {
		e.log.WithFields(logrus.Fields{"slot": book.LossOffset, "want": lp.Lots, "lots": lots}).
			Warn("hedge size reduced to fit margin")
	}

	d.AfterPrimary = true
	d.allow(book.Request{
		Slot:     book.LossOffset,
		Intent:   book.Enter,
		Side:     leg.Direction,
		Quantity: lots,
		Reason:   ReasonLossOffset,
		Plan: hedge.Plan{
			Lots:         lots,
			Contract:     e.contract(b, s),
			Reason:       ReasonLossOffset,
			Margin:       b.Contract.Margin(price, lots),
			MaxLoss:      loss,
			TargetProfit: loss.Mul(one.Add(lp.ProfitMultiplier)),
		},
	})
}

func (e *Engine) hedges(b *book.Book, s market.Step, ds Decisions) {
	if !s.HasHedge() {
		if b.LossLeg.State() == hedge.Open || b.MomentumLeg.State() != hedge.Idle ||
			e.p.MomentumHedge.Enabled && momentumSignal(s.Underlying) {
			e.missingHedge(s, "")
		}
		return
	}
	price := s.Hedge.Close

	if leg := b.LossLeg; leg.State() == hedge.Open {
		pnl := leg.PnL(price, b.Contract)
		switch {
		case pnl.GreaterThanOrEqual(leg.TargetProfit()):
			e.legExit(ds, leg, book.LossOffset, ReasonTakeProfit)
		case pnl.LessThanOrEqual(leg.MaxLoss().Neg()):
			e.legExit(ds, leg, book.LossOffset, ReasonStopLoss)
		}
	}

	leg := b.MomentumLeg
	switch leg.State() {
	case hedge.Open:
		sign := leg.Direction.Sign()
		switch {
		case price.Sub(leg.StopLoss()).Mul(sign).LessThanOrEqual(decimal.Zero):
			e.legExit(ds, leg, book.Momentum, ReasonStopLoss)
		case price.Sub(leg.TakeProfit()).Mul(sign).GreaterThanOrEqual(decimal.Zero):
			e.legExit(ds, leg, book.Momentum, ReasonTakeProfit)
		}
	case hedge.Idle:
		mp := e.p.MomentumHedge
		if !mp.Enabled || !momentumSignal(s.Underlying) {
			return
		}
		d := ds.get(book.Momentum)
		free := freeMargin(b, ds)
		lots := HedgeLots(b.Contract, mp.Lots, price, free)
		if lots < 1 {
			d.addf(InsufficientMargin, "lot margin %s exceeds free hedge cash %s",
				b.Contract.LotMargin(price).StringFixed(2), free.StringFixed(2))
			return
		}
		d.allow(book.Request{
			Slot:     book.Momentum,
			Intent:   book.Enter,
			Side:     leg.Direction,
			Quantity: lots,
			Reason:   ReasonMomentum,
			Plan: hedge.Plan{
				Lots:        lots,
				Contract:    e.contract(b, s),
				Reason:      ReasonMomentum,
				Margin:      b.Contract.Margin(price, lots),
				ATR:         s.Hedge.ATR,
				ATRMultiple: mp.ATRMultiplier,
			},
		})
	}
}

// freeMargin is hedge cash not yet promised to an entry waiting for its
// fill or to an entry decided earlier in the same evaluation.
func freeMargin(b *book.Book, ds Decisions) decimal.Decimal {
	free := b.Hedge.Cash().Sub(b.CommittedMargin())
	for _, d := range ds {
		if d.Allowed && d.Request != nil && d.Request.Intent == book.Enter && d.Slot != book.Primary {
			free = free.Sub(d.Request.Plan.Margin)
		}
	}
	return free
}

// momentumSignal is a MACD death cross while both lines are still above
// zero, i.e. a reversal from an overheated market.
func momentumSignal(bar market.Bar) bool {
	return bar.MACDCross == market.Death && bar.MACD.IsPositive() && bar.MACDSignal.IsPositive()
}

func (e *Engine) legExit(ds Decisions, leg *hedge.Leg, slot book.Slot, reason string) {
	ds.get(slot).allow(book.Request{
		Slot:     slot,
		Intent:   book.Exit,
		Side:     leg.Direction.Opposite(),
		Quantity: leg.Lots(),
		Reason:   reason,
	})
}

func (e *Engine) contract(b *book.Book, s market.Step) string {
	if s.HedgeContract != "" {
		return s.HedgeContract
	}
	return b.Contract.Code
}

func (e *Engine) missingHedge(s market.Step, slot book.Slot) {
	e.log.WithFields(logrus.Fields{"time": s.Time, "slot": slot}).
		Warn("no hedge bar for this step, hedge actions skipped")
}

// CloseOut returns exit requests for everything still open and not pending.
// Used at the end of a run.
func CloseOut(b *book.Book) []book.Request {
	var out []book.Request
	if !b.Position.Flat() && !b.Pending(book.Primary) {
		out = append(out, book.Request{
			Slot: book.Primary, Intent: book.Exit, Side: broker.Sell,
			Quantity: b.Position.Quantity(), Reason: ReasonCloseOut,
		})
	}
	for _, slot := range []book.Slot{book.LossOffset, book.Momentum} {
		leg := b.Leg(slot)
		if leg.State() == hedge.Open {
			out = append(out, book.Request{
				Slot: slot, Intent: book.Exit, Side: leg.Direction.Opposite(),
				Quantity: leg.Lots(), Reason: ReasonCloseOut,
			})
		}
	}
	return out
}
