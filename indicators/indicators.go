// Package indicators provides the streaming indicators the bar feed uses to
// precompute moving averages, ATR and MACD for each step.
package indicators

import "github.com/rustyeddy/hedgesim/market"

// Indicator computes a single streaming value from candles.
// It is deterministic and safe to use in replay and backtests.
type Indicator interface {
	// Name returns a stable identifier like "MA(5)" or "ATR(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next *closed* candle and updates internal state.
	Update(c market.Candle)

	// Ready reports whether Value() is meaningful (warmup completed).
	Ready() bool
}

type ValueF64 interface {
	// Value returns the current indicator value. If !Ready(), it returns 0;
	// callers should always check Ready().
	Value() float64
}
