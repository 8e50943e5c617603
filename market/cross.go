package market

// Cross is the direction of a line crossing another on the current bar.
type Cross int8

const (
	NoCross Cross = 0
	Golden  Cross = +1 // fast crossed above slow
	Death   Cross = -1 // fast crossed below slow
)

func (c Cross) String() string {
	switch c {
	case Golden:
		return "golden"
	case Death:
		return "death"
	default:
		return "none"
	}
}

// CrossOf compares the previous and current values of two lines.
// A cross requires the lines to be on opposite sides (or touching) on the
// previous bar and strictly apart on the current bar.
func CrossOf(prevFast, prevSlow, fast, slow float64) Cross {
	switch {
	case prevFast <= prevSlow && fast > slow:
		return Golden
	case prevFast >= prevSlow && fast < slow:
		return Death
	default:
		return NoCross
	}
}
