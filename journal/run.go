package journal

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
)

// AccountSummary is the end-of-run view of one account.
type AccountSummary struct {
	Initial     decimal.Decimal
	Final       decimal.Decimal
	Peak        decimal.Decimal
	ReturnPct   decimal.Decimal
	MaxDrawdown decimal.Decimal // fraction, e.g. 0.12
}

// RunRecord mirrors the runs table.
type RunRecord struct {
	RunID   string
	Created time.Time
	Dataset string

	Underlying string
	Hedge      string
	Config     []byte

	Start time.Time
	End   time.Time
	Steps int

	UnderlyingAccount AccountSummary
	HedgeAccount      AccountSummary

	TotalInitial   decimal.Decimal
	TotalFinal     decimal.Decimal
	TotalReturnPct decimal.Decimal

	PrimaryFills int
	HedgeFills   int
	Rejected     int
	Anomalies    int

	Notes []string
}

var runOrgFuncs = template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"pct":   func(d decimal.Decimal) string { return d.Mul(decimal.NewFromInt(100)).StringFixed(2) },
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var runOrg = template.Must(template.New("run").Funcs(runOrgFuncs).Parse(RunOrgTemplate))

// WriteOrg renders the run as an Org-mode entry.
func (r *RunRecord) WriteOrg(w io.Writer) error {
	if err := runOrg.Execute(w, r); err != nil {
		return fmt.Errorf("render run %s: %w", r.RunID, err)
	}
	return nil
}

// WriteOrgFile renders the run into path.
func (r *RunRecord) WriteOrgFile(path string) error {
	buf := new(bytes.Buffer)
	if err := r.WriteOrg(buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

const RunOrgTemplate = `* BACKTEST: dual-MA hedge {{.Underlying}} / {{.Hedge}}
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:DATASET:     {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:UNDERLYING:  {{.Underlying}}
:HEDGE:       {{.Hedge}}
:START_DATE:  {{.Start.Format "2006-01-02"}}
:END_DATE:    {{.End.Format "2006-01-02"}}
:STEPS:       {{.Steps}}
:START_BAL:   {{money .TotalInitial}}
:END_BAL:     {{money .TotalFinal}}
:RETURN_PCT:  {{money .TotalReturnPct}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Accounts
| Account    | Initial | Final | Peak | Return % | Max DD % |
|------------+---------+-------+------+----------+----------|
| underlying | {{money .UnderlyingAccount.Initial}} | {{money .UnderlyingAccount.Final}} | {{money .UnderlyingAccount.Peak}} | {{money .UnderlyingAccount.ReturnPct}} | {{pct .UnderlyingAccount.MaxDrawdown}} |
| hedge      | {{money .HedgeAccount.Initial}} | {{money .HedgeAccount.Final}} | {{money .HedgeAccount.Peak}} | {{money .HedgeAccount.ReturnPct}} | {{pct .HedgeAccount.MaxDrawdown}} |
| total      | {{money .TotalInitial}} | {{money .TotalFinal}} | | {{money .TotalReturnPct}} | |

** Activity
| Item          | Count |
|---------------+-------|
| Primary fills | {{.PrimaryFills}} |
| Hedge fills   | {{.HedgeFills}} |
| Rejected      | {{.Rejected}} |
| Anomalies     | {{.Anomalies}} |
{{- if .Config }}

** Configuration
#+begin_src yaml
{{printf "%s" .Config}}
#+end_src
{{- end }}
{{- if .Notes }}

** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}
`
