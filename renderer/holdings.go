package renderer

import (
	"fmt"
	"io"
	"strings"

	"github.com/nordtax/espp"
)

// HoldingsMarkdown renders a holdings snapshot for review before it is
// carried into the next year.
func HoldingsMarkdown(h *espp.Holdings) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Holdings %d", h.Year)
	if h.Broker != "" {
		fmt.Fprintf(&b, " (%s)", h.Broker)
	}
	fmt.Fprint(&b, "\n\n")

	ConditionalBlock(&b, func(w io.Writer) bool {
		if len(h.Stocks) == 0 {
			return false
		}
		fmt.Fprintln(w, "| Symbol | Acquired | Qty | Cost/share | Deduction NOK/share | Source |")
		fmt.Fprintln(w, "|:---|:---|---:|---:|---:|:---|")
		for _, s := range h.Stocks {
			fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s |\n",
				s.Symbol, s.Date, s.Qty, s.PurchasePrice, kr(s.TaxDeduction), s.Source)
		}
		fmt.Fprintln(w)
		return true
	})

	ConditionalBlock(&b, func(w io.Writer) bool {
		if len(h.Cash) == 0 {
			return false
		}
		fmt.Fprint(w, "## Cash\n\n")
		fmt.Fprintln(w, "| Received | Amount | NOK |")
		fmt.Fprintln(w, "|:---|---:|---:|")
		for _, c := range h.Cash {
			fmt.Fprintf(w, "| %s | %s | %s |\n", c.Date, c.Amount, kr(c.Amount.NOKValue()))
		}
		fmt.Fprintln(w)
		return true
	})

	return b.String()
}
