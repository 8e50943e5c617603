package journal

import (
	"database/sql"
	"errors"
	"fmt"
)

var ErrRunNotFound = errors.New("run not found")

// GetRun returns the summary of a single run.
func (j *SQLite) GetRun(runID string) (RunRecord, error) {
	var r RunRecord
	u, h := &r.UnderlyingAccount, &r.HedgeAccount

	row := j.db.QueryRow(`
		SELECT run_id, created, dataset, underlying, hedge, start_time, end_time, steps, config,
		 underlying_initial, underlying_final, underlying_peak, underlying_return_pct, underlying_max_dd,
		 hedge_initial, hedge_final, hedge_peak, hedge_return_pct, hedge_max_dd,
		 total_initial, total_final, total_return_pct,
		 primary_fills, hedge_fills, rejected, anomalies
		FROM runs
		WHERE run_id = ?`, runID)

	err := row.Scan(
		&r.RunID, &r.Created, &r.Dataset, &r.Underlying, &r.Hedge, &r.Start, &r.End, &r.Steps, &r.Config,
		&u.Initial, &u.Final, &u.Peak, &u.ReturnPct, &u.MaxDrawdown,
		&h.Initial, &h.Final, &h.Peak, &h.ReturnPct, &h.MaxDrawdown,
		&r.TotalInitial, &r.TotalFinal, &r.TotalReturnPct,
		&r.PrimaryFills, &r.HedgeFills, &r.Rejected, &r.Anomalies,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, fmt.Errorf("run %q: %w", runID, ErrRunNotFound)
		}
		return RunRecord{}, err
	}
	return r, nil
}

// LatestRunID returns the most recently created run.
func (j *SQLite) LatestRunID() (string, error) {
	var id string
	err := j.db.QueryRow(`SELECT run_id FROM runs ORDER BY created DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRunNotFound
	}
	return id, err
}

// ListFills returns the fills of a run in time order.
func (j *SQLite) ListFills(runID string) ([]FillRecord, error) {
	rows, err := j.db.Query(`
		SELECT handle, run_id, time, slot, account, instrument, side, quantity, price, reason,
		 realized, fees, net, cash_after, position_value, position_ratio, avg_cost
		FROM fills
		WHERE run_id = ?
		ORDER BY time ASC, handle ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FillRecord
	for rows.Next() {
		var r FillRecord
		if err := rows.Scan(
			&r.Handle, &r.RunID, &r.Time, &r.Slot, &r.Account, &r.Instrument, &r.Side, &r.Quantity, &r.Price, &r.Reason,
			&r.Realized, &r.Fees, &r.Net, &r.CashAfter, &r.PositionValue, &r.PositionRatio, &r.AvgCost,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquity returns the equity curve of one account of a run.
func (j *SQLite) ListEquity(runID, account string) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT run_id, time, account, cash, value, peak, drawdown
		FROM equity
		WHERE run_id = ? AND account = ?
		ORDER BY time ASC`, runID, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.RunID, &e.Time, &e.Account, &e.Cash, &e.Value, &e.Peak, &e.Drawdown); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
