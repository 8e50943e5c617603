package market

import "time"

// Candle is one OHLC bar as read from a data file.
type Candle struct {
	Instrument string
	Time       time.Time

	Open  float64
	High  float64
	Low   float64
	Close float64

	Volume float64 // optional

	// Contract is the tradeable contract code for continuous futures series,
	// e.g. "M2405" for a soybean-meal main-contract series. Empty for equities.
	Contract string
}
