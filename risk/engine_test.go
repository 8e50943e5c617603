package risk

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/hedgesim/book"
	"github.com/rustyeddy/hedgesim/broker"
	"github.com/rustyeddy/hedgesim/hedge"
	"github.com/rustyeddy/hedgesim/market"
	"github.com/rustyeddy/hedgesim/position"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type stubExec struct{ n int }

func (s *stubExec) Submit(context.Context, broker.Order) (broker.Handle, error) {
	s.n++
	return broker.Handle(fmt.Sprintf("h%d", s.n)), nil
}
func (s *stubExec) Poll(context.Context) ([]broker.Notification, error) { return nil, nil }

var day0 = time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, p Policy) (*Engine, *book.Book) {
	t.Helper()
	log, _ := test.NewNullLogger()
	b := book.New(book.Params{
		UnderlyingCode:    "159985",
		UnderlyingBalance: d("100000"),
		HedgeBalance:      d("100000"),
		LotSize:           100,
		Fees:              position.FeeModel{Rate: d("0.00025")},
		Contract: hedge.Contract{
			Code: "M", Multiplier: d("10"), MarginRate: d("0.10"), FeePerLot: d("1.51"),
		},
		TrailPercent: p.TrailPercent.InexactFloat64(),
	}, log)
	return NewEngine(p, log), b
}

func golden(close string) market.Bar {
	c := d(close)
	// fast 100.5 over slow 100: gap 0.5%
	return market.Bar{Close: c, PrevClose: c, FastMA: d("100.5"), SlowMA: d("100"), MACross: market.Golden, ATR: d("2")}
}

// hold opens a long position the way settlement would.
func hold(b *book.Book, price string, qty int64, at time.Time) {
	b.Position.OpenOrAdd(d(price), qty, at)
	b.Underlying.Debit(d(price).Mul(decimal.NewFromInt(qty)), "test")
	b.Trail.Reset(d(price).InexactFloat64())
}

func TestSizeEntry(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()

	tests := []struct {
		name   string
		in     SizeInputs
		shares int64
		code   string
	}{
		{"atr bound", SizeInputs{Cash: d("100000"), Price: d("100"), ATR: d("2"), LotSize: 100}, 600, ""},
		{"trail bound", SizeInputs{Cash: d("100000"), Price: d("100"), ATR: d("0.5"), LotSize: 100}, 900, ""},
		{"cash bound", SizeInputs{Cash: d("10000"), Price: d("100"), ATR: d("0.01"), LotSize: 100}, 0, BelowMinLot},
		{"below lot", SizeInputs{Cash: d("5000"), Price: d("100"), ATR: d("2"), LotSize: 100}, 0, BelowMinLot},
		{"no lot size", SizeInputs{Cash: d("5000"), Price: d("100"), ATR: d("2")}, 0, BelowMinLot},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := SizeEntry(p, tt.in)
			assert.Equal(t, tt.shares, r.Shares)
			assert.Equal(t, tt.code, r.Code)
		})
	}
}

func TestSizeEntryCostBufferClamp(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()
	p.CashReserve = decimal.Zero
	p.RiskRatio = decimal.NewFromInt(1)

	// 1000 shares at 100 would need 100030 with the buffer.
	r := SizeEntry(p, SizeInputs{Cash: d("100000"), Price: d("100"), ATR: d("0.01"), LotSize: 100})
	assert.Equal(t, int64(900), r.Shares)

	r = SizeEntry(p, SizeInputs{Cash: d("10000"), Price: d("100"), ATR: d("0.01"), LotSize: 100})
	assert.Equal(t, int64(0), r.Shares)
	assert.Equal(t, InsufficientCash, r.Code)
}

func TestPrimaryEntryScenario(t *testing.T) {
	t.Parallel()
	e, b := newFixture(t, DefaultPolicy())

	ds := e.Evaluate(b, market.Step{Time: day0, Underlying: golden("100")})
	reqs := ds.Requests()
	require.Len(t, reqs, 1)
	r := reqs[0].Request
	assert.Equal(t, book.Primary, r.Slot)
	assert.Equal(t, book.Enter, r.Intent)
	assert.Equal(t, broker.Buy, r.Side)
	assert.Equal(t, int64(600), r.Quantity)
}

func TestPrimaryEntryRefusals(t *testing.T) {
	t.Parallel()

	t.Run("gap too small", func(t *testing.T) {
		e, b := newFixture(t, DefaultPolicy())
		bar := golden("100")
		bar.FastMA = d("100.2")
		ds := e.Evaluate(b, market.Step{Time: day0, Underlying: bar})
		assert.Empty(t, ds.Requests())
		require.Len(t, ds.Refused(), 1)
		assert.Equal(t, CrossGapTooSmall, ds[book.Primary].Violations[0].Code)
	})

	t.Run("drawdown ceiling", func(t *testing.T) {
		e, b := newFixture(t, DefaultPolicy())
		b.Underlying.Debit(d("20000"), "loss")
		b.Observe(market.Step{Time: day0, Underlying: golden("100")})
		ds := e.Evaluate(b, market.Step{Time: day0, Underlying: golden("100")})
		assert.Empty(t, ds.Requests())
		assert.Equal(t, DrawdownCeiling, ds[book.Primary].Violations[0].Code)
	})

	t.Run("price limit", func(t *testing.T) {
		e, b := newFixture(t, DefaultPolicy())
		bar := golden("112")
		bar.PrevClose = d("100")
		ds := e.Evaluate(b, market.Step{Time: day0, Underlying: bar})
		assert.Empty(t, ds.Requests())
		assert.Equal(t, PriceLimit, ds[book.Primary].Violations[0].Code)
	})

	t.Run("pending slot", func(t *testing.T) {
		e, b := newFixture(t, DefaultPolicy())
		s := market.Step{Time: day0, Underlying: golden("100")}
		req := e.Evaluate(b, s).Requests()[0].Request
		_, err := b.Dispatch(context.Background(), &stubExec{}, *req, day0)
		require.NoError(t, err)

		// Same step again while the order is outstanding.
		assert.Empty(t, e.Evaluate(b, s).Requests())
	})
}

func TestPrimaryExitRules(t *testing.T) {
	t.Parallel()
	next := day0.AddDate(0, 0, 1)

	tests := []struct {
		name   string
		mutate func(p *Policy)
		bar    market.Bar
		reason string
	}{
		{"death cross", nil, market.Bar{Close: d("100"), MACross: market.Death, ATR: d("2")}, ReasonDeathCross},
		{"death cross disabled", func(p *Policy) { p.EnableDeathCross = false },
			market.Bar{Close: d("100"), MACross: market.Death, ATR: d("2")}, ""},
		{"stop loss", nil, market.Bar{Close: d("97.9"), ATR: d("2")}, ReasonStopLoss},
		{"take profit", nil, market.Bar{Close: d("102.1"), ATR: d("2")}, ReasonTakeProfit},
		{"trailing", nil, market.Bar{Close: d("97.9"), ATR: d("5")}, ReasonTrailing},
		{"just above trail", nil, market.Bar{Close: d("98.01"), ATR: d("5")}, ""},
		{"trailing disabled", func(p *Policy) { p.EnableTrailingStop = false },
			market.Bar{Close: d("97.9"), ATR: d("5")}, ""},
		{"inside the bands", nil, market.Bar{Close: d("99"), ATR: d("2")}, ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := DefaultPolicy()
			p.LossHedge.Enabled = false
			if tt.mutate != nil {
				tt.mutate(&p)
			}
			e, b := newFixture(t, p)
			hold(b, "100", 600, day0)

			ds := e.Evaluate(b, market.Step{Time: next, Underlying: tt.bar})
			if tt.reason == "" {
				assert.Empty(t, ds.Requests())
				return
			}
			reqs := ds.Requests()
			require.Len(t, reqs, 1)
			assert.Equal(t, book.Exit, reqs[0].Request.Intent)
			assert.Equal(t, int64(600), reqs[0].Request.Quantity)
			assert.Equal(t, tt.reason, reqs[0].Request.Reason)
		})
	}
}

func TestNoExitInEntryCycle(t *testing.T) {
	t.Parallel()
	e, b := newFixture(t, DefaultPolicy())
	hold(b, "100", 600, day0)

	ds := e.Evaluate(b, market.Step{Time: day0.Add(time.Hour), Underlying: market.Bar{Close: d("90"), ATR: d("2")}})
	assert.Empty(t, ds.Requests())
}

func TestStopLossTriggersLossOffset(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()
	e, b := newFixture(t, p)
	hold(b, "100", 1000, day0)

	hb := market.Bar{Close: d("3000"), ATR: d("30")}
	ds := e.Evaluate(b, market.Step{
		Time:          day0.AddDate(0, 0, 1),
		Underlying:    market.Bar{Close: d("95"), ATR: d("2")},
		Hedge:         &hb,
		HedgeContract: "M2405",
	})
	reqs := ds.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, ReasonStopLoss, reqs[0].Request.Reason)

	lo := reqs[1]
	assert.Equal(t, book.LossOffset, lo.Slot)
	assert.True(t, lo.AfterPrimary)
	assert.Equal(t, broker.Sell, lo.Request.Side)
	assert.Equal(t, int64(10), lo.Request.Quantity)
	assert.True(t, d("5000").Equal(lo.Request.Plan.MaxLoss))
	assert.True(t, d("10000").Equal(lo.Request.Plan.TargetProfit))
	assert.Equal(t, "M2405", lo.Request.Plan.Contract)
}

func TestLossOffsetSkippedWithoutHedgeBar(t *testing.T) {
	t.Parallel()
	e, b := newFixture(t, DefaultPolicy())
	hold(b, "100", 1000, day0)

	ds := e.Evaluate(b, market.Step{Time: day0.AddDate(0, 0, 1), Underlying: market.Bar{Close: d("95"), ATR: d("2")}})
	require.Len(t, ds.Requests(), 1)
	assert.Equal(t, NoHedgeData, ds[book.LossOffset].Violations[0].Code)
}

func TestLossOffsetInsufficientMargin(t *testing.T) {
	t.Parallel()
	e, b := newFixture(t, DefaultPolicy())
	hold(b, "100", 1000, day0)
	b.Hedge.Debit(d("92000"), "drain") // 8000 left, one lot needs 9000

	hb := market.Bar{Close: d("9000")}
	ds := e.Evaluate(b, market.Step{Time: day0.AddDate(0, 0, 1), Underlying: market.Bar{Close: d("95"), ATR: d("2")}, Hedge: &hb})
	require.Len(t, ds.Requests(), 1)
	assert.Equal(t, InsufficientMargin, ds[book.LossOffset].Violations[0].Code)
}

// overheated is a stop-loss bar for a position held at 100 that is also a
// momentum reversal signal.
func overheated() market.Bar {
	return market.Bar{Close: d("95"), ATR: d("2"), MACD: d("0.5"), MACDSignal: d("0.6"), MACDCross: market.Death}
}

func plannedMargin(ds Decisions) decimal.Decimal {
	total := decimal.Zero
	for _, r := range ds.Requests() {
		if r.Request.Intent == book.Enter && r.Slot != book.Primary {
			total = total.Add(r.Request.Plan.Margin)
		}
	}
	return total
}

func TestHedgeEntriesShareHedgeCash(t *testing.T) {
	t.Parallel()
	e, b := newFixture(t, DefaultPolicy())
	hold(b, "100", 1000, day0)
	b.Hedge.Debit(d("92000"), "drain") // 8000 left, one lot needs 3000

	hb := market.Bar{Close: d("3000"), ATR: d("30")}
	ds := e.Evaluate(b, market.Step{Time: day0.AddDate(0, 0, 1), Underlying: overheated(), Hedge: &hb})

	mom := ds[book.Momentum]
	require.NotNil(t, mom.Request)
	assert.Equal(t, int64(2), mom.Request.Quantity)
	assert.True(t, d("6000").Equal(mom.Request.Plan.Margin))

	assert.Nil(t, ds[book.LossOffset].Request)
	assert.Equal(t, InsufficientMargin, ds[book.LossOffset].Violations[0].Code)
	assert.True(t, plannedMargin(ds).LessThanOrEqual(b.Hedge.Cash()))
}

func TestPendingEntryHoldsHedgeCash(t *testing.T) {
	t.Parallel()
	e, b := newFixture(t, DefaultPolicy())
	b.Hedge.Debit(d("92000"), "drain")

	_, err := b.Dispatch(context.Background(), &stubExec{}, book.Request{
		Slot: book.LossOffset, Intent: book.Enter, Side: broker.Sell, Quantity: 2,
		Plan: hedge.Plan{Lots: 2, Margin: d("6000"), MaxLoss: d("500"), TargetProfit: d("1000")},
	}, day0)
	require.NoError(t, err)
	require.True(t, d("6000").Equal(b.CommittedMargin()))

	hb := market.Bar{Close: d("3000"), ATR: d("30")}
	ds := e.Evaluate(b, market.Step{
		Time:       day0.AddDate(0, 0, 1),
		Underlying: market.Bar{Close: d("100"), MACD: d("0.5"), MACDSignal: d("0.6"), MACDCross: market.Death},
		Hedge:      &hb,
	})
	assert.Nil(t, ds[book.Momentum].Request)
	assert.Equal(t, InsufficientMargin, ds[book.Momentum].Violations[0].Code)

	// with room for both, momentum only gets what the pending entry left
	e, b = newFixture(t, DefaultPolicy())
	b.Hedge.Debit(d("89000"), "drain") // 11000 left
	_, err = b.Dispatch(context.Background(), &stubExec{}, book.Request{
		Slot: book.LossOffset, Intent: book.Enter, Side: broker.Sell, Quantity: 2,
		Plan: hedge.Plan{Lots: 2, Margin: d("6000")},
	}, day0)
	require.NoError(t, err)
	ds = e.Evaluate(b, market.Step{
		Time:       day0.AddDate(0, 0, 1),
		Underlying: market.Bar{Close: d("100"), MACD: d("0.5"), MACDSignal: d("0.6"), MACDCross: market.Death},
		Hedge:      &hb,
	})
	require.NotNil(t, ds[book.Momentum].Request)
	assert.Equal(t, int64(1), ds[book.Momentum].Request.Quantity)
	assert.True(t, b.CommittedMargin().Add(plannedMargin(ds)).LessThanOrEqual(b.Hedge.Cash()))
}

func openLeg(t *testing.T, b *book.Book, slot book.Slot, plan hedge.Plan, price string) {
	t.Helper()
	h, err := b.Dispatch(context.Background(), &stubExec{}, book.Request{
		Slot: slot, Intent: book.Enter, Side: broker.Sell, Quantity: plan.Lots, Plan: plan,
	}, day0)
	require.NoError(t, err)
	require.NoError(t, b.Leg(slot).ConfirmEntry(h, d(price), plan.Lots, day0))
	b.Release(h)
}

func TestLossOffsetExit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		price  string
		reason string
	}{
		{"target reached", "2900", ReasonTakeProfit}, // (3000-2900)*10*10 = 10000
		{"max loss hit", "3050", ReasonStopLoss},     // -5000
		{"in between", "2950", ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, b := newFixture(t, DefaultPolicy())
			openLeg(t, b, book.LossOffset, hedge.Plan{Lots: 10, MaxLoss: d("5000"), TargetProfit: d("10000")}, "3000")

			hb := market.Bar{Close: d(tt.price)}
			ds := e.Evaluate(b, market.Step{Time: day0.AddDate(0, 0, 1), Underlying: market.Bar{Close: d("100")}, Hedge: &hb})
			if tt.reason == "" {
				assert.Empty(t, ds.Requests())
				return
			}
			reqs := ds.Requests()
			require.Len(t, reqs, 1)
			assert.Equal(t, book.LossOffset, reqs[0].Slot)
			assert.Equal(t, broker.Buy, reqs[0].Request.Side)
			assert.Equal(t, tt.reason, reqs[0].Request.Reason)
		})
	}
}

func TestMomentumEntryAndExit(t *testing.T) {
	t.Parallel()

	t.Run("overheated reversal enters", func(t *testing.T) {
		e, b := newFixture(t, DefaultPolicy())
		hb := market.Bar{Close: d("3000"), ATR: d("40")}
		ds := e.Evaluate(b, market.Step{
			Time:       day0,
			Underlying: market.Bar{Close: d("100"), MACD: d("0.5"), MACDSignal: d("0.6"), MACDCross: market.Death},
			Hedge:      &hb,
		})
		reqs := ds.Requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, book.Momentum, reqs[0].Slot)
		assert.True(t, d("40").Equal(reqs[0].Request.Plan.ATR))
		assert.True(t, d("2").Equal(reqs[0].Request.Plan.ATRMultiple))
		assert.Equal(t, "M", reqs[0].Request.Plan.Contract)
	})

	t.Run("negative MACD does not enter", func(t *testing.T) {
		e, b := newFixture(t, DefaultPolicy())
		hb := market.Bar{Close: d("3000"), ATR: d("40")}
		ds := e.Evaluate(b, market.Step{
			Time:       day0,
			Underlying: market.Bar{Close: d("100"), MACD: d("-0.5"), MACDSignal: d("0.6"), MACDCross: market.Death},
			Hedge:      &hb,
		})
		assert.Empty(t, ds.Requests())
	})

	exits := []struct {
		name   string
		price  string
		reason string
	}{
		{"stop", "3080", ReasonStopLoss},
		{"take", "2920", ReasonTakeProfit},
		{"hold", "3010", ""},
	}
	for _, tt := range exits {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			e, b := newFixture(t, DefaultPolicy())
			openLeg(t, b, book.Momentum, hedge.Plan{Lots: 10, ATR: d("40"), ATRMultiple: d("2")}, "3000")
			require.True(t, d("3080").Equal(b.MomentumLeg.StopLoss()))

			hb := market.Bar{Close: d(tt.price)}
			ds := e.Evaluate(b, market.Step{Time: day0.AddDate(0, 0, 1), Underlying: market.Bar{Close: d("100")}, Hedge: &hb})
			if tt.reason == "" {
				assert.Empty(t, ds.Requests())
				return
			}
			require.Len(t, ds.Requests(), 1)
			assert.Equal(t, tt.reason, ds[book.Momentum].Request.Reason)
		})
	}
}

func TestCloseOut(t *testing.T) {
	t.Parallel()
	_, b := newFixture(t, DefaultPolicy())
	assert.Empty(t, CloseOut(b))

	hold(b, "100", 600, day0)
	openLeg(t, b, book.Momentum, hedge.Plan{Lots: 3, ATR: d("40"), ATRMultiple: d("2")}, "3000")

	reqs := CloseOut(b)
	require.Len(t, reqs, 2)
	assert.Equal(t, book.Primary, reqs[0].Slot)
	assert.Equal(t, book.Momentum, reqs[1].Slot)
	assert.Equal(t, int64(3), reqs[1].Quantity)
	assert.Equal(t, broker.Buy, reqs[1].Side)
}
