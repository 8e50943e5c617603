// Package sim drives one trading book through a sequence of market steps.
//
// Each Step settles whatever the executor reports as due, revalues both
// accounts, asks the risk engine for decisions, dispatches at most one order
// per slot, settles anything that filled immediately and journals the
// per-account equity. An Engine is not safe for concurrent use; the metrics
// it feeds are.
package sim

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/hedgesim/book"
	"github.com/rustyeddy/hedgesim/broker"
	"github.com/rustyeddy/hedgesim/internal/metrics"
	"github.com/rustyeddy/hedgesim/journal"
	"github.com/rustyeddy/hedgesim/ledger"
	"github.com/rustyeddy/hedgesim/market"
	"github.com/rustyeddy/hedgesim/risk"
	"github.com/rustyeddy/hedgesim/settle"
)

// Stats counts what happened during a run.
type Stats struct {
	Steps        int
	Dispatches   int
	PrimaryFills int
	HedgeFills   int
	Rejected     int
	Refusals     int
	Duplicates   int
}

type Engine struct {
	book    *book.Book
	risk    *risk.Engine
	settle  *settle.Handler
	exec    broker.Executor
	journal journal.Journal
	metrics *metrics.Metrics
	log     logrus.FieldLogger

	runID     string
	stats     Stats
	anomalies map[string]int
	last      market.Step
}

type Option func(*Engine)

func WithJournal(j journal.Journal) Option  { return func(e *Engine) { e.journal = j } }
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = l }
}
func WithRunID(id string) Option { return func(e *Engine) { e.runID = id } }

func NewEngine(b *book.Book, r *risk.Engine, exec broker.Executor, opts ...Option) *Engine {
	e := &Engine{
		book:      b,
		risk:      r,
		exec:      exec,
		journal:   journal.Nop{},
		log:       logrus.StandardLogger(),
		anomalies: map[string]int{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New(nil)
	}
	e.settle = settle.NewHandler(e.log)
	return e
}

func (e *Engine) Book() *book.Book { return e.book }
func (e *Engine) Stats() Stats     { return e.stats }
func (e *Engine) RunID() string    { return e.runID }

// Step advances the simulation by one market step.
func (e *Engine) Step(ctx context.Context, s market.Step) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.last = s
	e.stats.Steps++
	e.metrics.Steps.Inc()

	if ma, ok := e.exec.(broker.MarketAware); ok {
		ma.OnStep(s.Time, e.book.Closes(s))
	}
	e.book.Observe(s)

	if err := e.drain(ctx); err != nil {
		return err
	}
	e.book.MarkAccounts()

	ds := e.risk.Evaluate(e.book, s)
	for _, d := range ds.Refused() {
		for _, v := range d.Violations {
			e.stats.Refusals++
			e.metrics.Refused(string(d.Slot), v.Code)
			e.log.WithFields(logrus.Fields{"slot": d.Slot, "code": v.Code, "time": s.Time}).Info(v.Msg)
		}
	}

	primarySent := false
	for _, d := range ds.Requests() {
		if d.AfterPrimary && !primarySent {
			e.log.WithField("slot", d.Slot).Warn("primary exit not dispatched, hedge entry skipped")
			continue
		}
		if err := e.dispatch(ctx, *d.Request, s); err != nil {
			continue
		}
		if d.Slot == book.Primary {
			primarySent = true
		}
	}

	if err := e.drain(ctx); err != nil {
		return err
	}
	return e.record(s)
}

// Dispatch sends one request outside the risk engine. ErrDuplicateAction is
// returned when the slot is pending.
func (e *Engine) Dispatch(ctx context.Context, r book.Request) error {
	return e.dispatch(ctx, r, e.last)
}

func (e *Engine) dispatch(ctx context.Context, r book.Request, s market.Step) error {
	_, err := e.book.Dispatch(ctx, e.exec, r, s.Time)
	switch {
	case errors.Is(err, book.ErrDuplicateAction):
		e.stats.Duplicates++
		e.log.WithField("slot", r.Slot).Warn(err)
		return err
	case err != nil:
		e.log.WithField("slot", r.Slot).WithError(err).Error("dispatch failed")
		return err
	}
	e.stats.Dispatches++
	e.metrics.Dispatched(string(r.Slot), r.Intent.String())
	return nil
}

// drain settles every notification the executor has ready.
func (e *Engine) drain(ctx context.Context) error {
	notes, err := e.exec.Poll(ctx)
	if err != nil {
		return fmt.Errorf("poll executor: %w", err)
	}
	for _, n := range notes {
		out, err := e.settle.Apply(e.book, n)
		if errors.Is(err, book.ErrUnknownOrder) {
			e.log.WithField("handle", n.Handle).Warn("notification for an unknown order ignored")
			continue
		}
		if err != nil {
			return fmt.Errorf("settle %s: %w", n.Handle, err)
		}

		e.metrics.Notified(string(out.Slot), out.Status.String())
		if out.Fill == nil {
			e.stats.Rejected++
			continue
		}
		if out.Slot == book.Primary {
			e.stats.PrimaryFills++
		} else {
			e.stats.HedgeFills++
		}
		out.Fill.RunID = e.runID
		if err := e.journal.RecordFill(*out.Fill); err != nil {
			return fmt.Errorf("journal fill: %w", err)
		}
	}
	return nil
}

func (e *Engine) record(s market.Step) error {
	e.book.MarkAccounts()
	for _, a := range []*ledger.Account{e.book.Underlying, e.book.Hedge} {
		snap := a.Snapshot()
		if n := snap.Anomalies - e.anomalies[a.Name]; n > 0 {
			for i := 0; i < n; i++ {
				e.metrics.Anomaly(a.Name)
			}
			e.anomalies[a.Name] = snap.Anomalies
		}
		e.metrics.Account(a.Name, snap.Cash, snap.Value, snap.Drawdown)
		if err := e.journal.RecordEquity(journal.EquitySnapshot{
			RunID:    e.runID,
			Time:     s.Time,
			Account:  a.Name,
			Cash:     snap.Cash,
			Value:    snap.Value,
			Peak:     snap.Peak,
			Drawdown: snap.Drawdown,
		}); err != nil {
			return fmt.Errorf("journal equity: %w", err)
		}
	}
	return nil
}

// CloseOut exits the primary position and every open hedge leg at the last
// step's closes. Executors that can flush are forced to report before it
// returns; anything still pending stays valued at the last marks.
func (e *Engine) CloseOut(ctx context.Context) error {
	reqs := risk.CloseOut(e.book)
	if len(reqs) == 0 {
		return nil
	}
	for _, r := range reqs {
		_ = e.dispatch(ctx, r, e.last)
	}
	if f, ok := e.exec.(broker.Flusher); ok {
		f.Flush()
	}
	if err := e.drain(ctx); err != nil {
		return err
	}
	if n := e.book.Outstanding(); n > 0 {
		e.log.WithField("outstanding", n).Warn("orders still pending at close-out")
	}
	return e.record(e.last)
}
