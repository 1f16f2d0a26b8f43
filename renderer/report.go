package renderer

import (
	"fmt"
	"io"
	"strings"

	"github.com/nordtax/espp"
)

// ReportMarkdown renders the full tax report for one year.
func ReportMarkdown(r *espp.TaxReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Tax Report %d", r.Year)
	if r.Broker != "" {
		fmt.Fprintf(&b, " (%s)", r.Broker)
	}
	fmt.Fprint(&b, "\n\n")

	ConditionalBlock(&b, func(w io.Writer) bool {
		if len(r.Sales) == 0 {
			return false
		}
		fmt.Fprint(w, "## Sales\n\n")
		fmt.Fprintln(w, "| Date | Symbol | Qty | Acquired | Cost/share | Sale/share | Gain NOK | Deduction used |")
		fmt.Fprintln(w, "|:---|:---|---:|:---|---:|---:|---:|---:|")
		for _, s := range r.Sales {
			for _, f := range s.From {
				fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s | %s | %s |\n",
					s.Date, s.Symbol, f.Qty, f.PurchaseDate,
					f.PurchasePrice, f.SalePrice,
					signed(f.GainNOK), kr(f.DeductionUsedNOK))
			}
		}
		fmt.Fprintf(w, "| **Total** | | | | | | **%s** | **%s** |\n\n",
			signed(r.Totals.GainNOK), kr(r.Totals.DeductionUsedNOK))
		return true
	})

	ConditionalBlock(&b, func(w io.Writer) bool {
		if len(r.Dividends) == 0 {
			return false
		}
		fmt.Fprint(w, "## Dividends\n\n")
		fmt.Fprintln(w, "| Symbol | Gross NOK | Deduction used | Net NOK | Source tax NOK |")
		fmt.Fprintln(w, "|:---|---:|---:|---:|---:|")
		for _, d := range r.Dividends {
			fmt.Fprintf(w, "| %s | %s | %s | %s | %s |\n",
				d.Symbol, kr(d.GrossNOK), kr(d.DeductionUsedNOK), kr(d.NetNOK), kr(d.SourceTaxNOK))
		}
		fmt.Fprintln(w)
		return true
	})

	ConditionalBlock(&b, func(w io.Writer) bool {
		if len(r.CurrencyGains) == 0 {
			return false
		}
		fmt.Fprint(w, "## Currency Gains on Transfers\n\n")
		fmt.Fprintln(w, "| Date | Amount | From | Received NOK | Gain NOK | Reported |")
		fmt.Fprintln(w, "|:---|---:|:---|---:|---:|:---|")
		for _, g := range r.CurrencyGains {
			reported := "currency gain"
			if g.Aggregated {
				reported = "with " + g.Source + " gain"
			}
			fmt.Fprintf(w, "| %s | %s | %s %s | %s | %s | %s |\n",
				g.Date, g.Amount, g.Source, g.SourceDate,
				kr(g.ReceivedNOK), signed(g.GainNOK), reported)
		}
		fmt.Fprintln(w)
		return true
	})

	ConditionalBlock(&b, func(w io.Writer) bool {
		if len(r.Wealth) == 0 {
			return false
		}
		fmt.Fprint(w, "## Year-End Wealth\n\n")
		fmt.Fprintln(w, "| Symbol | Qty | Market value | Value NOK |")
		fmt.Fprintln(w, "|:---|---:|---:|---:|")
		for _, item := range r.Wealth {
			fmt.Fprintf(w, "| %s | %s | %s | %s |\n",
				item.Symbol, item.Qty, item.FMV, kr(item.ValueNOK))
		}
		fmt.Fprintln(w)
		return true
	})

	fmt.Fprint(&b, "## Totals\n\n")
	fmt.Fprintln(&b, "| | NOK |")
	fmt.Fprintln(&b, "|:---|---:|")
	fmt.Fprintf(&b, "| Capital gain | %s |\n", signed(r.Totals.GainNOK))
	fmt.Fprintf(&b, "| Dividends (net of deduction) | %s |\n", kr(r.Totals.DividendNOK))
	fmt.Fprintf(&b, "| Source tax withheld | %s |\n", kr(r.Totals.SourceTaxNOK))
	fmt.Fprintf(&b, "| Currency gain | %s |\n", signed(r.Totals.CurrencyGainNOK))
	fmt.Fprintf(&b, "| Wealth basis | %s |\n", kr(r.Totals.WealthNOK))
	fmt.Fprintf(&b, "| Deduction used | %s |\n", kr(r.Totals.DeductionUsedNOK))
	fmt.Fprintf(&b, "| Deduction accrued | %s |\n", kr(r.Totals.DeductionAccruedNOK))
	fmt.Fprintf(&b, "| Deduction carried forward | %s |\n", kr(r.Totals.DeductionCarriedNOK))
	fmt.Fprintln(&b)

	ConditionalBlock(&b, func(w io.Writer) bool {
		if len(r.Warnings) == 0 {
			return false
		}
		fmt.Fprint(w, "## Warnings\n\n")
		for _, warning := range r.Warnings {
			fmt.Fprintf(w, "- %s\n", warning)
		}
		fmt.Fprintln(w)
		return true
	})

	return b.String()
}
