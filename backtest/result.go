package backtest

import (
	"fmt"
	"io"
	"time"

	"github.com/rustyeddy/hedgesim/book"
	"github.com/rustyeddy/hedgesim/journal"
	"github.com/rustyeddy/hedgesim/ledger"
	"github.com/rustyeddy/hedgesim/sim"
)

// Result summarizes a backtest run.
type Result struct {
	RunID   string
	Created time.Time
	Dataset string

	Underlying string
	Hedge      string
	Config     []byte

	Start time.Time
	End   time.Time

	Stats   sim.Stats
	Summary book.Summary
	Notes   []string
}

func accountSummary(s ledger.Snapshot) journal.AccountSummary {
	return journal.AccountSummary{
		Initial:     s.Initial,
		Final:       s.Value,
		Peak:        s.Peak,
		ReturnPct:   s.ReturnPct,
		MaxDrawdown: s.MaxDrawdown,
	}
}

// Record converts the result into the journal's run record.
func (r Result) Record() journal.RunRecord {
	return journal.RunRecord{
		RunID:             r.RunID,
		Created:           r.Created,
		Dataset:           r.Dataset,
		Underlying:        r.Underlying,
		Hedge:             r.Hedge,
		Config:            r.Config,
		Start:             r.Start,
		End:               r.End,
		Steps:             r.Stats.Steps,
		UnderlyingAccount: accountSummary(r.Summary.Underlying),
		HedgeAccount:      accountSummary(r.Summary.Hedge),
		TotalInitial:      r.Summary.Initial,
		TotalFinal:        r.Summary.Total,
		TotalReturnPct:    r.Summary.ReturnPct,
		PrimaryFills:      r.Stats.PrimaryFills,
		HedgeFills:        r.Stats.HedgeFills,
		Rejected:          r.Stats.Rejected,
		Anomalies:         r.Summary.Underlying.Anomalies + r.Summary.Hedge.Anomalies,
		Notes:             r.Notes,
	}
}

func printAccount(w io.Writer, name string, s ledger.Snapshot) {
	fmt.Fprintf(w, "%-11s %14s %14s %14s %9s%% %9s%%\n",
		name,
		s.Initial.StringFixed(2),
		s.Value.StringFixed(2),
		s.Peak.StringFixed(2),
		s.ReturnPct.StringFixed(2),
		s.MaxDrawdown.Shift(2).StringFixed(2),
	)
}

// PrintResult writes a human readable report of r.
func PrintResult(w io.Writer, r Result) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Run ID:        %s\n", r.RunID)
	if r.Dataset != "" {
		fmt.Fprintf(w, "Dataset:       %s\n", r.Dataset)
	}
	fmt.Fprintf(w, "Underlying:    %s\n", r.Underlying)
	fmt.Fprintf(w, "Hedge:         %s\n", r.Hedge)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", r.Start.Format("2006-01-02"))
	fmt.Fprintf(w, "End:           %s\n", r.End.Format("2006-01-02"))
	fmt.Fprintf(w, "Steps:         %d\n", r.Stats.Steps)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Accounts")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "%-11s %14s %14s %14s %10s %10s\n", "Account", "Initial", "Final", "Peak", "Return", "Max DD")
	printAccount(w, "underlying", r.Summary.Underlying)
	printAccount(w, "hedge", r.Summary.Hedge)
	fmt.Fprintf(w, "%-11s %14s %14s %14s %9s%%\n",
		"total", r.Summary.Initial.StringFixed(2), r.Summary.Total.StringFixed(2), "", r.Summary.ReturnPct.StringFixed(2))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Activity")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Dispatches:    %d\n", r.Stats.Dispatches)
	fmt.Fprintf(w, "Primary fills: %d\n", r.Stats.PrimaryFills)
	fmt.Fprintf(w, "Hedge fills:   %d\n", r.Stats.HedgeFills)
	fmt.Fprintf(w, "Rejected:      %d\n", r.Stats.Rejected)
	fmt.Fprintf(w, "Refusals:      %d\n", r.Stats.Refusals)

	if len(r.Notes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Observations")
		fmt.Fprintln(w, "--------------------------------------------------")
		for _, note := range r.Notes {
			fmt.Fprintf(w, "- %s\n", note)
		}
	}
	fmt.Fprintln(w)
}
