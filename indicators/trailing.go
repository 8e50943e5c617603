package indicators

// TrailingStop follows the highest price seen since it was reset and sits a
// fixed fraction below it. It is driven by fills rather than candles: reset
// on entry, updated with each close while tracking, stopped on exit.
type TrailingStop struct {
	trail    float64 // e.g. 0.02 for 2%
	maxPrice float64
	tracking bool
}

func NewTrailingStop(trail float64) *TrailingStop {
	return &TrailingStop{trail: trail}
}

// Reset starts tracking from price.
func (t *TrailingStop) Reset(price float64) {
	t.maxPrice = price
	t.tracking = true
}

// Update raises the high-water price.
func (t *TrailingStop) Update(price float64) {
	if t.tracking && price > t.maxPrice {
		t.maxPrice = price
	}
}

// Stop ends tracking.
func (t *TrailingStop) Stop() {
	t.tracking = false
	t.maxPrice = 0
}

func (t *TrailingStop) Tracking() bool    { return t.tracking }
func (t *TrailingStop) MaxPrice() float64 { return t.maxPrice }

// Level is the current stop price, zero when not tracking.
func (t *TrailingStop) Level() float64 {
	if !t.tracking {
		return 0
	}
	return t.maxPrice * (1 - t.trail)
}
