package hedge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/hedgesim/broker"
)

var at = time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)

func exactlyOneState(t *testing.T, l *Leg) {
	t.Helper()
	flags := []bool{
		l.State() == Idle,
		l.State() == PendingEntry,
		l.State() == Open,
		l.State() == PendingExit,
	}
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, l.Pending(), l.State() == PendingEntry || l.State() == PendingExit)
	if l.IsOpen() {
		assert.True(t, l.EntryPrice().IsPositive(), "open leg without entry price")
	}
}

func TestLossOffsetLifecycle(t *testing.T) {
	t.Parallel()

	c := meal()
	l := NewLeg("loss-offset", LossOffset, broker.Sell)
	exactlyOneState(t, l)

	require.NoError(t, l.BeginEntry("h1", Plan{
		Lots:         4,
		Contract:     "M2409",
		MaxLoss:      d("5000"),
		TargetProfit: d("10000"),
	}))
	exactlyOneState(t, l)
	assert.Equal(t, PendingEntry, l.State())
	assert.ErrorIs(t, l.BeginEntry("h2", Plan{}), ErrBusy)
	assert.ErrorIs(t, l.BeginExit("h2", "nope"), ErrBusy)

	require.NoError(t, l.ConfirmEntry("h1", d("3000"), 4, at))
	exactlyOneState(t, l)
	assert.Equal(t, "M2409", l.Contract())
	assert.True(t, l.MaxLoss().Equal(d("5000")))
	assert.True(t, l.TargetProfit().Equal(d("10000")))
	assert.True(t, l.Margin(c).Equal(d("12000")))

	// short gains when price falls
	assert.True(t, l.PnL(d("2900"), c).Equal(d("4000")))
	assert.True(t, l.PnL(d("3100"), c).Equal(d("-4000")))
	assert.True(t, l.MarkValue(d("2900"), c).Equal(d("16000")))

	require.NoError(t, l.BeginExit("h3", "take-profit"))
	exactlyOneState(t, l)
	assert.ErrorIs(t, l.BeginExit("h4", "again"), ErrBusy)

	closed, err := l.ConfirmExit("h3", d("2750"), c)
	require.NoError(t, err)
	assert.True(t, closed.Realized.Equal(d("10000")))
	assert.True(t, closed.Fees.Equal(d("12.08")))
	assert.True(t, closed.Net.Equal(d("9987.92")))
	assert.True(t, closed.Margin.Equal(d("12000")))
	assert.Equal(t, "take-profit", closed.Reason)

	exactlyOneState(t, l)
	assert.Equal(t, Idle, l.State())
	assert.True(t, l.EntryPrice().IsZero())
	assert.True(t, l.MaxLoss().IsZero())
	assert.Empty(t, l.Contract())
	assert.Zero(t, l.Lots())
}

func TestMomentumThresholdsFixedAtEntry(t *testing.T) {
	t.Parallel()

	short := NewLeg("momentum", Momentum, broker.Sell)
	require.NoError(t, short.BeginEntry("h1", Plan{Lots: 2, ATR: d("40"), ATRMultiple: d("2")}))
	require.NoError(t, short.ConfirmEntry("h1", d("3000"), 2, at))
	assert.True(t, short.StopLoss().Equal(d("3080")))
	assert.True(t, short.TakeProfit().Equal(d("2920")))

	long := NewLeg("momentum-long", Momentum, broker.Buy)
	require.NoError(t, long.BeginEntry("h1", Plan{Lots: 2, ATR: d("40"), ATRMultiple: d("2")}))
	require.NoError(t, long.ConfirmEntry("h1", d("3000"), 2, at))
	assert.True(t, long.StopLoss().Equal(d("2920")))
	assert.True(t, long.TakeProfit().Equal(d("3080")))
}

func TestRevert(t *testing.T) {
	t.Parallel()

	l := NewLeg("loss-offset", LossOffset, broker.Sell)
	require.NoError(t, l.BeginEntry("h1", Plan{Lots: 1, MaxLoss: d("100")}))
	assert.ErrorIs(t, l.Revert("other"), ErrWrongHandle)
	require.NoError(t, l.Revert("h1"))
	assert.Equal(t, Idle, l.State())
	assert.True(t, l.PendingPlan().MaxLoss.IsZero())

	require.NoError(t, l.BeginEntry("h2", Plan{Lots: 1, MaxLoss: d("100")}))
	require.NoError(t, l.ConfirmEntry("h2", d("3000"), 1, at))
	require.NoError(t, l.BeginExit("h3", "stop-loss"))
	require.NoError(t, l.Revert("h3"))
	assert.Equal(t, Open, l.State())
	assert.True(t, l.EntryPrice().Equal(d("3000")))
	assert.Empty(t, l.ExitReason())
}

func TestWrongHandleIsRefused(t *testing.T) {
	t.Parallel()

	l := NewLeg("momentum", Momentum, broker.Sell)
	assert.ErrorIs(t, l.BeginExit("h0", "x"), ErrNotOpen)
	require.NoError(t, l.BeginEntry("h1", Plan{Lots: 1}))
	assert.ErrorIs(t, l.ConfirmEntry("h9", d("1"), 1, at), ErrWrongHandle)
	_, err := l.ConfirmExit("h1", d("1"), meal())
	assert.ErrorIs(t, err, ErrWrongHandle)
}

func TestPlannedMarginHeldUntilExit(t *testing.T) {
	t.Parallel()

	c := meal()
	l := NewLeg("momentum", Momentum, broker.Sell)
	assert.True(t, l.Committed().IsZero())

	require.NoError(t, l.BeginEntry("h1", Plan{Lots: 2, Margin: d("6000"), ATR: d("40"), ATRMultiple: d("2")}))
	assert.True(t, l.Committed().Equal(d("6000")))

	// filled higher than planned; the reserved amount is what stays held
	require.NoError(t, l.ConfirmEntry("h1", d("3100"), 2, at))
	assert.True(t, l.Committed().IsZero())
	assert.True(t, l.Margin(c).Equal(d("6000")))

	require.NoError(t, l.BeginExit("h2", "take-profit"))
	closed, err := l.ConfirmExit("h2", d("3100"), c)
	require.NoError(t, err)
	assert.True(t, closed.Margin.Equal(d("6000")))
	assert.True(t, closed.Realized.IsZero())
	assert.True(t, l.Margin(c).IsZero())
}

func TestPartialFillUsesFillMargin(t *testing.T) {
	t.Parallel()

	l := NewLeg("loss-offset", LossOffset, broker.Sell)
	require.NoError(t, l.BeginEntry("h1", Plan{Lots: 4, Margin: d("12000")}))
	require.NoError(t, l.ConfirmEntry("h1", d("3000"), 1, at))
	assert.True(t, l.Margin(meal()).Equal(d("3000")))
}

func TestRevertDropsCommitment(t *testing.T) {
	t.Parallel()

	l := NewLeg("loss-offset", LossOffset, broker.Sell)
	require.NoError(t, l.BeginEntry("h1", Plan{Lots: 1, Margin: d("3000")}))
	require.NoError(t, l.Revert("h1"))
	assert.True(t, l.Committed().IsZero())
}
