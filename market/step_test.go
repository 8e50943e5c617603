package market

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCrossOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                           string
		prevFast, prevSlow, fast, slow float64
		want                           Cross
	}{
		{"golden from below", 9, 10, 11, 10, Golden},
		{"golden from touching", 10, 10, 10.5, 10, Golden},
		{"death from above", 11, 10, 9, 10, Death},
		{"death from touching", 10, 10, 9.5, 10, Death},
		{"stays above", 11, 10, 12, 10, NoCross},
		{"stays below", 9, 10, 8, 10, NoCross},
		{"lands on slow", 9, 10, 10, 10, NoCross},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CrossOf(tt.prevFast, tt.prevSlow, tt.fast, tt.slow))
		})
	}

	assert.Equal(t, "golden", Golden.String())
	assert.Equal(t, "death", Death.String())
	assert.Equal(t, "none", NoCross.String())
}

func TestCrossGap(t *testing.T) {
	t.Parallel()

	assert.True(t, d("0.005").Equal(Bar{FastMA: d("100.5"), SlowMA: d("100")}.CrossGap()))
	assert.True(t, d("-0.01").Equal(Bar{FastMA: d("99"), SlowMA: d("100")}.CrossGap()))
	assert.True(t, Bar{FastMA: d("1")}.CrossGap().IsZero())
}

func TestWithinLimit(t *testing.T) {
	t.Parallel()
	limit := d("0.10")

	tests := []struct {
		name      string
		close     string
		prevClose string
		limit     decimal.Decimal
		want      bool
	}{
		{"inside band", "105", "100", limit, true},
		{"at upper bound", "110", "100", limit, true},
		{"at lower bound", "90", "100", limit, true},
		{"above band", "110.01", "100", limit, false},
		{"below band", "89.99", "100", limit, false},
		{"unknown previous close", "200", "0", limit, true},
		{"limit disabled", "200", "100", decimal.Zero, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := Bar{Close: d(tt.close), PrevClose: d(tt.prevClose)}
			assert.Equal(t, tt.want, b.WithinLimit(tt.limit))
		})
	}
}

func TestStepHasHedge(t *testing.T) {
	t.Parallel()
	assert.False(t, Step{}.HasHedge())
	assert.True(t, Step{Hedge: &Bar{}}.HasHedge())
}
