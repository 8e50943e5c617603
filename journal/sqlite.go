package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordFill(r FillRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO fills
		(handle, run_id, time, slot, account, instrument, side, quantity, price, reason,
		 realized, fees, net, cash_after, position_value, position_ratio, avg_cost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Handle, r.RunID, r.Time, r.Slot, r.Account, r.Instrument, r.Side, r.Quantity, r.Price, r.Reason,
		r.Realized, r.Fees, r.Net, r.CashAfter, r.PositionValue, r.PositionRatio, r.AvgCost,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(run_id, time, account, cash, value, peak, drawdown)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Time, e.Account, e.Cash, e.Value, e.Peak, e.Drawdown,
	)
	return err
}

func (j *SQLite) RecordRun(r RunRecord) error {
	u, h := r.UnderlyingAccount, r.HedgeAccount
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO runs
		(run_id, created, dataset, underlying, hedge, start_time, end_time, steps, config,
		 underlying_initial, underlying_final, underlying_peak, underlying_return_pct, underlying_max_dd,
		 hedge_initial, hedge_final, hedge_peak, hedge_return_pct, hedge_max_dd,
		 total_initial, total_final, total_return_pct,
		 primary_fills, hedge_fills, rejected, anomalies)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created, r.Dataset, r.Underlying, r.Hedge, r.Start, r.End, r.Steps, r.Config,
		u.Initial, u.Final, u.Peak, u.ReturnPct, u.MaxDrawdown,
		h.Initial, h.Final, h.Peak, h.ReturnPct, h.MaxDrawdown,
		r.TotalInitial, r.TotalFinal, r.TotalReturnPct,
		r.PrimaryFills, r.HedgeFills, r.Rejected, r.Anomalies,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
