package journal

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun() RunRecord {
	return RunRecord{
		RunID:      "5b0c8f1e-run",
		Created:    time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		Dataset:    "testdata",
		Underlying: "159985",
		Hedge:      "M",
		Config:     []byte("strategy:\n  fast_period: 5\n"),
		Start:      time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC),
		Steps:      242,
		UnderlyingAccount: AccountSummary{
			Initial: d("100000"), Final: d("104000"), Peak: d("106000"),
			ReturnPct: d("4"), MaxDrawdown: d("0.0321"),
		},
		HedgeAccount: AccountSummary{
			Initial: d("100000"), Final: d("99000"), Peak: d("101000"),
			ReturnPct: d("-1"), MaxDrawdown: d("0.0198"),
		},
		TotalInitial:   d("200000"),
		TotalFinal:     d("203000"),
		TotalReturnPct: d("1.5"),
		PrimaryFills:   8,
		HedgeFills:     4,
		Rejected:       1,
	}
}

func TestRunWriteOrg(t *testing.T) {
	t.Parallel()

	run := sampleRun()
	run.Notes = []string{"loss hedge offset two stop-losses"}

	var buf bytes.Buffer
	require.NoError(t, run.WriteOrg(&buf))
	out := buf.String()

	assert.Contains(t, out, "* BACKTEST: dual-MA hedge 159985 / M")
	assert.Contains(t, out, ":RUN_ID:      5b0c8f1e-run")
	assert.Contains(t, out, ":START_DATE:  2023-01-03")
	assert.Contains(t, out, ":END_BAL:     203000.00")
	assert.Contains(t, out, "| underlying | 100000.00 | 104000.00 | 106000.00 | 4.00 | 3.21 |")
	assert.Contains(t, out, "| Hedge fills   | 4 |")
	assert.Contains(t, out, "fast_period: 5")
	assert.Contains(t, out, "- loss hedge offset two stop-losses")
}

func TestRunWriteOrgFile(t *testing.T) {
	t.Parallel()

	run := sampleRun()
	run.RunID = ""
	run.Config = nil
	path := filepath.Join(t.TempDir(), "run.org")
	require.NoError(t, run.WriteOrgFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "(run-id?)")
	assert.NotContains(t, string(data), "** Configuration")
}

func TestFormatFillOrg(t *testing.T) {
	t.Parallel()

	r := FillRecord{
		Handle:     "01HQZX5K8M2N3P4Q5R6S7T8V9W",
		Time:       time.Date(2024, 3, 15, 15, 0, 0, 0, time.UTC),
		Slot:       "momentum",
		Account:    "hedge",
		Instrument: "M2405",
		Side:       "sell",
		Quantity:   10,
		Price:      d("3012.5"),
		Realized:   d("-500"),
		Reason:     "macd-reversal",
	}

	out := FormatFillOrg(r)
	assert.Contains(t, out, "** momentum sell M2405 (6S7T8V9W)")
	assert.Contains(t, out, ":HANDLE: 01HQZX5K8M2N3P4Q5R6S7T8V9W")
	assert.Contains(t, out, ":TIME: 2024-03-15T15:00:00Z")
	assert.Contains(t, out, ":PRICE: 3012.500")
	assert.Contains(t, out, ":REALIZED: -500.00")
	assert.Contains(t, out, ":END:")

	two := FormatFillsOrg([]FillRecord{r, r})
	assert.Equal(t, 2, strings.Count(two, ":PROPERTIES:"))
	assert.Empty(t, FormatFillsOrg(nil))
}

func TestShortID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"ulid keeps the tail", "01HQZX5K8M2N3P4Q5R6S7T8V9W", "6S7T8V9W"},
		{"exactly 8 characters", "12345678", "12345678"},
		{"less than 8 characters", "short", "short"},
		{"empty string", "", ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, shortID(tt.input))
		})
	}
}
