package indicators

import (
	"fmt"

	"github.com/rustyeddy/hedgesim/market"
)

// MACD is the difference of a fast and a slow EMA of closes, with a signal
// line that is an EMA of the MACD line.
type MACD struct {
	fast, slow int
	fastEMA    *ExponentialMA
	slowEMA    *ExponentialMA
	signal     *ExponentialMA
	line       float64
}

func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:    fast,
		slow:    slow,
		fastEMA: NewEMA(fast),
		slowEMA: NewEMA(slow),
		signal:  NewEMA(signal),
	}
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD(%d,%d,%d)", m.fast, m.slow, m.signal.period)
}

func (m *MACD) Warmup() int {
	return max(m.fast, m.slow) + m.signal.period - 1
}

func (m *MACD) Reset() {
	m.fastEMA.Reset()
	m.slowEMA.Reset()
	m.signal.Reset()
	m.line = 0
}

func (m *MACD) Update(c market.Candle) {
	m.fastEMA.Update(c)
	m.slowEMA.Update(c)
	if !m.fastEMA.Ready() || !m.slowEMA.Ready() {
		return
	}
	m.line = m.fastEMA.Value() - m.slowEMA.Value()
	m.signal.Add(m.line)
}

func (m *MACD) Ready() bool {
	return m.signal.Ready()
}

// Value is the MACD line.
func (m *MACD) Value() float64 {
	if !m.Ready() {
		return 0
	}
	return m.line
}

// Signal is the EMA of the MACD line.
func (m *MACD) Signal() float64 {
	return m.signal.Value()
}
