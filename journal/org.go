package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatFillOrg renders a FillRecord as an Org-mode block. Structured facts
// live in the PROPERTIES drawer for easy search.
func FormatFillOrg(r FillRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** %s %s %s (%s)\n", r.Slot, r.Side, r.Instrument, shortID(r.Handle))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":HANDLE: %s\n", r.Handle)
	fmt.Fprintf(&b, ":TIME: %s\n", r.Time.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":ACCOUNT: %s\n", r.Account)
	fmt.Fprintf(&b, ":INSTRUMENT: %s\n", r.Instrument)
	fmt.Fprintf(&b, ":QUANTITY: %d\n", r.Quantity)
	fmt.Fprintf(&b, ":PRICE: %s\n", r.Price.StringFixed(3))
	fmt.Fprintf(&b, ":REALIZED: %s\n", r.Realized.StringFixed(2))
	fmt.Fprintf(&b, ":FEES: %s\n", r.Fees.StringFixed(2))
	fmt.Fprintf(&b, ":NET: %s\n", r.Net.StringFixed(2))
	fmt.Fprintf(&b, ":CASH_AFTER: %s\n", r.CashAfter.StringFixed(2))
	fmt.Fprintf(&b, ":REASON: %s\n", r.Reason)
	b.WriteString(":END:\n")
	return b.String()
}

// FormatFillsOrg renders multiple fills separated by blank lines.
func FormatFillsOrg(fills []FillRecord) string {
	var b strings.Builder
	for i, r := range fills {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatFillOrg(r))
	}
	return b.String()
}

// shortID keeps the random tail of a ULID handle; the leading characters
// are the timestamp and repeat within a bar.
func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}
