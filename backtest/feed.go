package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/hedgesim/indicators"
	"github.com/rustyeddy/hedgesim/market"
)

// Feed yields market steps one at a time. Implementations should be
// deterministic and return (ok=false, err=nil) at the end of the data.
type Feed interface {
	Next() (s market.Step, ok bool, err error)
	Close() error
}

// FeedParams sets the indicator periods a feed computes.
type FeedParams struct {
	FastPeriod int
	SlowPeriod int
	ATRPeriod  int

	MACDFast   int
	MACDSlow   int
	MACDSignal int
}

// BarBuilder turns a candle stream into bars with indicator values.
// Values stay zero until the indicator has warmed up, and a crossover
// needs both the previous and the current value.
type BarBuilder struct {
	fast, slow *indicators.SimpleMA
	atr        *indicators.ATR
	macd       *indicators.MACD

	prevClose float64
	prevFast  float64
	prevSlow  float64
	prevMACD  float64
	prevSig   float64
	maReady   bool
	macdReady bool
}

func NewBarBuilder(p FeedParams) *BarBuilder {
	return &BarBuilder{
		fast: indicators.NewMA(p.FastPeriod),
		slow: indicators.NewMA(p.SlowPeriod),
		atr:  indicators.NewATR(p.ATRPeriod),
		macd: indicators.NewMACD(p.MACDFast, p.MACDSlow, p.MACDSignal),
	}
}

// Next folds c into the indicators and returns its bar.
func (b *BarBuilder) Next(c market.Candle) market.Bar {
	for _, ind := range []indicators.Indicator{b.fast, b.slow, b.atr, b.macd} {
		ind.Update(c)
	}

	bar := market.Bar{Close: decimal.NewFromFloat(c.Close)}
	if b.prevClose > 0 {
		bar.PrevClose = decimal.NewFromFloat(b.prevClose)
	}
	b.prevClose = c.Close

	if b.atr.Ready() {
		bar.ATR = decimal.NewFromFloat(b.atr.Value())
	}

	if b.fast.Ready() && b.slow.Ready() {
		fast, slow := b.fast.Value(), b.slow.Value()
		bar.FastMA = decimal.NewFromFloat(fast)
		bar.SlowMA = decimal.NewFromFloat(slow)
		if b.maReady {
			bar.MACross = market.CrossOf(b.prevFast, b.prevSlow, fast, slow)
		}
		b.prevFast, b.prevSlow, b.maReady = fast, slow, true
	}

	if b.macd.Ready() {
		line, sig := b.macd.Value(), b.macd.Signal()
		bar.MACD = decimal.NewFromFloat(line)
		bar.MACDSignal = decimal.NewFromFloat(sig)
		if b.macdReady {
			bar.MACDCross = market.CrossOf(b.prevMACD, b.prevSig, line, sig)
		}
		b.prevMACD, b.prevSig, b.macdReady = line, sig, true
	}
	return bar
}

// CSVFeed pairs an underlying candle series with a hedge series by
// trading day. Days the hedge series does not cover produce steps with no
// hedge bar.
type CSVFeed struct {
	underlying []market.Candle
	hedge      map[string]market.Candle
	hedgeCode  string

	ub, hb *BarBuilder
	idx    int
}

// NewCSVFeed loads both OHLC files. hedgeCode is the contract code used
// when the hedge file has no contract column.
func NewCSVFeed(underlyingPath, hedgePath, hedgeCode string, p FeedParams) (*CSVFeed, error) {
	u, err := LoadCandles(underlyingPath, "")
	if err != nil {
		return nil, fmt.Errorf("underlying data: %w", err)
	}
	h, err := LoadCandles(hedgePath, hedgeCode)
	if err != nil {
		return nil, fmt.Errorf("hedge data: %w", err)
	}
	return NewFeed(u, h, hedgeCode, p), nil
}

// NewFeed builds a feed over candles already in memory.
func NewFeed(underlying, hedge []market.Candle, hedgeCode string, p FeedParams) *CSVFeed {
	f := &CSVFeed{
		underlying: underlying,
		hedge:      make(map[string]market.Candle, len(hedge)),
		hedgeCode:  hedgeCode,
		ub:         NewBarBuilder(p),
		hb:         NewBarBuilder(p),
	}
	for _, c := range hedge {
		f.hedge[dayKey(c.Time)] = c
	}
	return f
}

func (f *CSVFeed) Close() error { return nil }

func (f *CSVFeed) Next() (market.Step, bool, error) {
	if f.idx >= len(f.underlying) {
		return market.Step{}, false, nil
	}
	c := f.underlying[f.idx]
	f.idx++

	s := market.Step{Time: c.Time, Underlying: f.ub.Next(c)}
	if hc, ok := f.hedge[dayKey(c.Time)]; ok {
		bar := f.hb.Next(hc)
		s.Hedge = &bar
		s.HedgeContract = hc.Contract
		if s.HedgeContract == "" {
			s.HedgeContract = f.hedgeCode
		}
	}
	return s, true, nil
}

func dayKey(t time.Time) string { return t.Format("2006-01-02") }

// LoadCandles reads an OHLC CSV file. See ReadCandles.
func LoadCandles(path, instrument string) ([]market.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCandles(f, instrument)
}

// ReadCandles parses OHLC rows with a header naming the columns:
//
//	date,open,high,low,close[,volume][,contract]
//
// "time" or "datetime" may stand in for "date". Rows must be in time order.
func ReadCandles(r io.Reader, instrument string) ([]market.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cols, err := columns(header)
	if err != nil {
		return nil, err
	}

	var out []market.Candle
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}

		c, err := parseCandleRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		c.Instrument = instrument
		if n := len(out); n > 0 && !c.Time.After(out[n-1].Time) {
			return nil, fmt.Errorf("line %d: time %s not after %s", line, c.Time.Format(time.RFC3339), out[n-1].Time.Format(time.RFC3339))
		}
		out = append(out, c)
	}
}

func columns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		switch name {
		case "time", "datetime":
			name = "date"
		}
		cols[name] = i
	}
	for _, need := range []string{"date", "open", "high", "low", "close"} {
		if _, ok := cols[need]; !ok {
			return nil, fmt.Errorf("missing %q column", need)
		}
	}
	return cols, nil
}

func parseCandleRow(row []string, cols map[string]int) (market.Candle, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	t, err := parseTime(field("date"))
	if err != nil {
		return market.Candle{}, err
	}
	c := market.Candle{Time: t, Contract: field("contract")}

	for _, p := range []struct {
		name string
		dst  *float64
	}{
		{"open", &c.Open},
		{"high", &c.High},
		{"low", &c.Low},
		{"close", &c.Close},
	} {
		v, err := strconv.ParseFloat(field(p.name), 64)
		if err != nil {
			return market.Candle{}, fmt.Errorf("bad %s %q: %w", p.name, field(p.name), err)
		}
		*p.dst = v
	}
	if c.Close <= 0 {
		return market.Candle{}, fmt.Errorf("close must be positive, got %v", c.Close)
	}

	if v := field("volume"); v != "" {
		vol, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return market.Candle{}, fmt.Errorf("bad volume %q: %w", v, err)
		}
		c.Volume = vol
	}
	return c, nil
}

var timeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"20060102",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}
