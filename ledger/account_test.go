package ledger

import (
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newAccount(initial string) *Account {
	return NewAccount("test", d(initial), quietLogger())
}

func TestDebitCredit(t *testing.T) {
	t.Parallel()

	a := newAccount("100000")
	assert.True(t, a.Debit(d("12000.50"), "margin"))
	assert.True(t, a.Credit(d("500.25"), "pnl"))
	assert.True(t, a.Cash().Equal(d("88499.75")))
	assert.Zero(t, a.Anomalies())
}

func TestNegativeCashIsClamped(t *testing.T) {
	t.Parallel()

	a := newAccount("1000")
	ok := a.Debit(d("1000.01"), "oversized buy")

	assert.False(t, ok)
	assert.True(t, a.Cash().IsZero())
	assert.Equal(t, 1, a.Anomalies())
}

func TestPeakIsMonotonic(t *testing.T) {
	t.Parallel()

	a := newAccount("100")
	values := []string{"110", "90", "120", "60", "119.99", "121"}
	prev := a.Peak()
	for _, v := range values {
		a.Mark(d(v))
		assert.True(t, a.Peak().GreaterThanOrEqual(prev), "peak went down at %s", v)
		prev = a.Peak()
	}
	assert.True(t, a.Peak().Equal(d("121")))
}

func TestDrawdown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		peak  string
		value string
		want  string
	}{
		{"at peak", "100", "100", "0"},
		{"above peak", "100", "150", "0"},
		{"quarter down", "200", "150", "0.25"},
		{"wiped out", "200", "0", "1"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := newAccount(tt.peak)
			assert.True(t, a.Drawdown(d(tt.value)).Equal(d(tt.want)))
		})
	}
}

func TestDrawdownZeroPeak(t *testing.T) {
	t.Parallel()

	a := newAccount("0")
	assert.True(t, a.Drawdown(d("-5")).IsZero())
	assert.True(t, a.ReturnPct(d("10")).IsZero())
}

func TestSnapshotTracksMaxDrawdown(t *testing.T) {
	t.Parallel()

	a := newAccount("1000")
	a.Mark(d("800"))
	a.Mark(d("1100"))
	a.Mark(d("990"))

	s := a.Snapshot()
	assert.True(t, s.Peak.Equal(d("1100")))
	assert.True(t, s.MaxDrawdown.Equal(d("0.2")))
	assert.True(t, s.Drawdown.Equal(d("0.1")))
	assert.True(t, s.ReturnPct.Equal(d("-1")))
}
