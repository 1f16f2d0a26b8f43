package espp

import "github.com/shopspring/decimal"

// Small constructors used throughout the tests.

func usd(v float64) Amount { return A(v, "USD") }

func day(s string) Date { return MustParse(s) }

// flatRates answers every date with the same rate, which keeps test
// fixtures short when the date does not matter.
type flatRates struct {
	fx  map[string]float64 // currency -> NOK rate
	fmv map[string]float64 // symbol -> native price
}

func (f flatRates) ExchangeRate(currency string, on Date) (decimal.Decimal, error) {
	if currency == "NOK" {
		return decimal.NewFromInt(1), nil
	}
	if rate, ok := f.fx[currency]; ok {
		return decimal.NewFromFloat(rate), nil
	}
	return decimal.Decimal{}, &MissingRateError{Key: currency, Date: on}
}

func (f flatRates) MarketValue(symbol string, on Date) (decimal.Decimal, error) {
	if fmv, ok := f.fmv[symbol]; ok {
		return decimal.NewFromFloat(fmv), nil
	}
	return decimal.Decimal{}, &MissingRateError{Key: symbol, Date: on}
}
