package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var (
	fillHeader   = []string{"run_id", "handle", "time", "slot", "account", "instrument", "side", "quantity", "price", "reason", "realized", "fees", "net", "cash_after", "position_value", "position_ratio", "avg_cost"}
	equityHeader = []string{"run_id", "time", "account", "cash", "value", "peak", "drawdown"}
)

// CSVJournal writes fills and equity to two CSV files. Run summaries are
// only kept by the SQLite journal.
type CSVJournal struct {
	fills  *csv.Writer
	equity *csv.Writer
	ff, ef *os.File
}

func NewCSV(fillsPath, equityPath string) (*CSVJournal, error) {
	ff, err := os.Create(fillsPath)
	if err != nil {
		return nil, fmt.Errorf("create fills journal: %w", err)
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		ff.Close()
		return nil, fmt.Errorf("create equity journal: %w", err)
	}

	j := &CSVJournal{csv.NewWriter(ff), csv.NewWriter(ef), ff, ef}
	if err := j.write(j.fills, fillHeader); err != nil {
		return nil, err
	}
	if err := j.write(j.equity, equityHeader); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *CSVJournal) write(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSVJournal) RecordFill(r FillRecord) error {
	return j.write(j.fills, []string{
		r.RunID,
		r.Handle,
		r.Time.Format(time.RFC3339),
		r.Slot,
		r.Account,
		r.Instrument,
		r.Side,
		strconv.FormatInt(r.Quantity, 10),
		r.Price.String(),
		r.Reason,
		money(r.Realized),
		money(r.Fees),
		money(r.Net),
		money(r.CashAfter),
		money(r.PositionValue),
		r.PositionRatio.StringFixed(4),
		r.AvgCost.String(),
	})
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	return j.write(j.equity, []string{
		e.RunID,
		e.Time.Format(time.RFC3339),
		e.Account,
		money(e.Cash),
		money(e.Value),
		money(e.Peak),
		e.Drawdown.StringFixed(6),
	})
}

func (j *CSVJournal) RecordRun(RunRecord) error { return nil }

func (j *CSVJournal) Close() error {
	j.fills.Flush()
	if err := j.fills.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}

	if err := j.ff.Close(); err != nil {
		return err
	}
	return j.ef.Close()
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
