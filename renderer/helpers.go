// Package renderer turns the engine's report structures into markdown,
// for terminal display or for dropping into a filing note.
package renderer

import (
	"bytes"
	"io"

	"github.com/shopspring/decimal"
)

// ConditionalBlock lets a section be fully written and then decide
// whether to print it. If the block function returns true the content is
// copied to w, otherwise it is discarded.
func ConditionalBlock(w io.Writer, block func(io.Writer) bool) {
	bw := &bytes.Buffer{}
	if block(bw) {
		io.Copy(w, bw)
	}
}

// kr formats a NOK figure for a report cell: two decimals, no currency
// symbol (the column header carries the unit).
func kr(v decimal.Decimal) string {
	return v.StringFixed(2)
}

// signed is kr with an explicit sign; zero renders as "-".
func signed(v decimal.Decimal) string {
	if v.IsZero() {
		return "-"
	}
	if v.IsPositive() {
		return "+" + kr(v)
	}
	return kr(v)
}
