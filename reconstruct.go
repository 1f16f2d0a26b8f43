package espp

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ReconstructHoldings rebuilds a year-end holdings snapshot from a
// multi-year transaction history, for accounts with no snapshot on file.
// It replays each year in lenient mode, carrying the produced snapshot
// into the next year, and finishes with the conservative deduction
// reset: lots acquired before the most recent dividend in the history
// have their carried deduction zeroed, because an unknown part of that
// balance was already spent against dividends the history may not fully
// explain. Resetting forfeits deduction the taxpayer may have been
// entitled to; it never understates tax.
func ReconstructHoldings(txs []Transaction, wires Wires, rates RateProvider, throughYear int, opts Options) (*Holdings, []Warning, error) {
	if len(txs) == 0 {
		return nil, nil, fmt.Errorf("cannot reconstruct holdings from an empty history")
	}
	SortTransactions(txs)
	firstYear := txs[0].When().Year()
	if throughYear < firstYear {
		return nil, nil, fmt.Errorf("history starts in %d, cannot reconstruct year %d", firstYear, throughYear)
	}

	opts.Lenient = true
	var holdings *Holdings
	var warnings []Warning
	var lastDividend Date
	for year := firstYear; year <= throughYear; year++ {
		var slice []Transaction
		for _, tx := range txs {
			if tx.When().Year() != year {
				continue
			}
			slice = append(slice, tx)
			if d, ok := tx.(*Dividend); ok && d.Date.After(lastDividend) {
				lastDividend = d.Date
			}
		}
		var yearWires Wires
		for _, w := range wires {
			if w.Date.Year() == year {
				yearWires = append(yearWires, w)
			}
		}

		report, next, err := Replay(year, holdings, slice, yearWires, rates, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("reconstructing year %d: %w", year, err)
		}
		warnings = append(warnings, report.Warnings...)
		holdings = next
	}

	if !lastDividend.IsZero() {
		for i := range holdings.Stocks {
			s := &holdings.Stocks[i]
			if s.TaxDeduction.IsPositive() && s.Date.Before(lastDividend) {
				warnings = append(warnings, Warning{
					Date:   s.Date,
					Symbol: s.Symbol,
					Message: fmt.Sprintf("carried deduction of %s NOK/share reset: lot predates the last known dividend (%s) and part of the balance may already be spent",
						s.TaxDeduction, lastDividend),
				})
				s.TaxDeduction = decimal.Decimal{}
			}
		}
	}
	return holdings, warnings, nil
}
