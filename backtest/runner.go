// Package backtest drives a sim.Engine over a historical feed and reports
// the outcome.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/hedgesim/journal"
	"github.com/rustyeddy/hedgesim/sim"
)

// RunnerOptions controls how the runner behaves.
type RunnerOptions struct {
	// CloseAtEnd exits the primary position and open hedge legs at the
	// final step. Otherwise they are valued at the last marks.
	CloseAtEnd bool

	Dataset    string
	Underlying string
	Hedge      string
	// Config is stored with the run record as-is.
	Config []byte
}

// Runner drives an engine forward using a feed.
type Runner struct {
	Engine  *sim.Engine
	Feed    Feed
	Journal journal.Journal
	Options RunnerOptions
	Log     logrus.FieldLogger
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// Run executes the backtest loop, one engine step per feed step, then
// closes out if configured and records the run in the journal.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Engine == nil {
		return Result{}, errors.New("backtest: Engine is required")
	}
	if r.Feed == nil {
		return Result{}, errors.New("backtest: Feed is required")
	}
	defer r.Feed.Close()

	log := r.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("run", r.Engine.RunID())

	var start, end time.Time
	for {
		s, ok, err := r.Feed.Next()
		if err != nil {
			return Result{}, fmt.Errorf("read feed: %w", err)
		}
		if !ok {
			break
		}
		if start.IsZero() {
			start = s.Time
		}
		end = s.Time

		if err := r.Engine.Step(ctx, s); err != nil {
			return Result{}, fmt.Errorf("step %s: %w", s.Time.Format("2006-01-02"), err)
		}
	}

	if r.Options.CloseAtEnd && !end.IsZero() {
		if err := r.Engine.CloseOut(ctx); err != nil {
			return Result{}, fmt.Errorf("close out: %w", err)
		}
	}

	res := r.result(start, end)
	log.WithFields(logrus.Fields{
		"steps":  res.Stats.Steps,
		"total":  res.Summary.Total.StringFixed(2),
		"return": res.Summary.ReturnPct.StringFixed(2),
	}).Info("backtest finished")

	if r.Journal != nil {
		if err := r.Journal.RecordRun(res.Record()); err != nil {
			return res, fmt.Errorf("journal run: %w", err)
		}
	}
	return res, nil
}

func (r *Runner) result(start, end time.Time) Result {
	b := r.Engine.Book()
	res := Result{
		RunID:      r.Engine.RunID(),
		Created:    time.Now().UTC(),
		Dataset:    r.Options.Dataset,
		Underlying: r.Options.Underlying,
		Hedge:      r.Options.Hedge,
		Config:     r.Options.Config,
		Start:      start,
		End:        end,
		Stats:      r.Engine.Stats(),
		Summary:    b.Summary(),
	}

	if q := res.Summary.Quantity; q > 0 {
		res.Notes = append(res.Notes, fmt.Sprintf("%d shares still held, valued at %s", q, b.LastUnderlying().StringFixed(3)))
	}
	if n := res.Summary.OpenLegs; n > 0 {
		res.Notes = append(res.Notes, fmt.Sprintf("%d hedge leg(s) still open, valued at %s", n, b.LastHedge().StringFixed(2)))
	}
	if n := b.Outstanding(); n > 0 {
		res.Notes = append(res.Notes, fmt.Sprintf("%d order(s) never reported", n))
	}
	return res
}
