package espp

import (
	_ "embed"
	"fmt"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

// The tax-free deduction ("skjerming") is an annually accrued per-lot
// allowance. Every lot still held at year end earns
// rate[year] x NOK cost basis per share, added to its running balance.
// The balance offsets dividend tax first and capital-gains tax on a
// later sale, but never turns a gain into a loss, and whatever is left
// on a sold lot is forfeited with it.

//go:embed skjerming.toml
var skjermingTOML []byte

var deductionRates = loadDeductionRates()

func loadDeductionRates() map[int]decimal.Decimal {
	var doc struct {
		Rates map[string]float64 `toml:"rates"`
	}
	if err := toml.Unmarshal(skjermingTOML, &doc); err != nil {
		panic(fmt.Sprintf("embedded skjerming table is invalid: %v", err))
	}
	rates := make(map[int]decimal.Decimal, len(doc.Rates))
	for yearstr, pct := range doc.Rates {
		year, err := strconv.Atoi(yearstr)
		if err != nil {
			panic(fmt.Sprintf("embedded skjerming table has invalid year %q", yearstr))
		}
		rates[year] = decimal.NewFromFloat(pct)
	}
	return rates
}

// DeductionRate returns the deduction rate for a year, in percent.
// The deduction was introduced in 2006; earlier years have rate zero.
// A missing later year means the table needs updating and is an error,
// not a silent zero.
func DeductionRate(year int) (decimal.Decimal, error) {
	if year < 2006 {
		return decimal.Decimal{}, nil
	}
	rate, ok := deductionRates[year]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("no tax deduction rate for year %d; the rate table needs updating", year)
	}
	return rate, nil
}

var hundred = decimal.NewFromInt(100)

// accrueDeduction adds the year's deduction to every lot still open at
// year end, lots acquired on December 31 included. It returns the total
// accrued in NOK and a warning per placeholder-cost lot skipped.
func accrueDeduction(ledger *LotLedger, year int) (decimal.Decimal, []Warning, error) {
	rate, err := DeductionRate(year)
	if err != nil {
		return decimal.Decimal{}, nil, err
	}
	var total decimal.Decimal
	var warnings []Warning
	for _, symbol := range ledger.Symbols() {
		for _, lot := range ledger.Lots(symbol) {
			if lot.Qty.IsZero() {
				continue
			}
			if lot.Price.IsUnknown() {
				warnings = append(warnings, Warning{
					Date:    lot.Date,
					Symbol:  symbol,
					Message: "no deduction accrued: lot has placeholder cost basis",
				})
				continue
			}
			perShare := lot.Price.NOKValue().Mul(rate).Div(hundred)
			lot.TaxDeduction = lot.TaxDeduction.Add(perShare)
			total = total.Add(perShare.Mul(lot.Qty.Decimal()))
		}
	}
	return total, warnings, nil
}

// applyDeductionToGain offsets a positive NOK gain with an available
// deduction balance. It returns the reduced gain and the balance used.
// A gain is floored at zero: deduction never creates a reportable loss,
// and it never reduces an actual loss.
func applyDeductionToGain(gain, available decimal.Decimal) (reduced, used decimal.Decimal) {
	if !gain.IsPositive() || !available.IsPositive() {
		return gain, decimal.Decimal{}
	}
	if available.GreaterThanOrEqual(gain) {
		return decimal.Decimal{}, gain
	}
	return gain.Sub(available), available
}
