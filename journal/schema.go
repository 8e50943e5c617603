package journal

// Money columns are TEXT so decimals round-trip exactly.
const Schema = `
CREATE TABLE IF NOT EXISTS fills (
	handle TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	slot TEXT NOT NULL,
	account TEXT NOT NULL,
	instrument TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price TEXT NOT NULL,
	reason TEXT NOT NULL,
	realized TEXT NOT NULL,
	fees TEXT NOT NULL,
	net TEXT NOT NULL,
	cash_after TEXT NOT NULL,
	position_value TEXT NOT NULL,
	position_ratio TEXT NOT NULL,
	avg_cost TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fills_run ON fills(run_id, time);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	account TEXT NOT NULL,
	cash TEXT NOT NULL,
	value TEXT NOT NULL,
	peak TEXT NOT NULL,
	drawdown TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_run ON equity(run_id, account, time);

CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	dataset TEXT NOT NULL,
	underlying TEXT NOT NULL,
	hedge TEXT NOT NULL,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	steps INTEGER NOT NULL,
	config BLOB,
	underlying_initial TEXT NOT NULL,
	underlying_final TEXT NOT NULL,
	underlying_peak TEXT NOT NULL,
	underlying_return_pct TEXT NOT NULL,
	underlying_max_dd TEXT NOT NULL,
	hedge_initial TEXT NOT NULL,
	hedge_final TEXT NOT NULL,
	hedge_peak TEXT NOT NULL,
	hedge_return_pct TEXT NOT NULL,
	hedge_max_dd TEXT NOT NULL,
	total_initial TEXT NOT NULL,
	total_final TEXT NOT NULL,
	total_return_pct TEXT NOT NULL,
	primary_fills INTEGER NOT NULL,
	hedge_fills INTEGER NOT NULL,
	rejected INTEGER NOT NULL,
	anomalies INTEGER NOT NULL
);
`
