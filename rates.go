package espp

import "github.com/shopspring/decimal"

// RateProvider resolves exchange rates and fair market values. Lookups
// are synchronous and pure: implementations are expected to be backed by
// a pre-populated cache, and the engine calls them with no fallback: a
// miss surfaces as a MissingRateError on the offending transaction.
type RateProvider interface {
	// ExchangeRate returns the NOK value of one unit of currency on the
	// given date (the Central Bank day rate).
	ExchangeRate(currency string, on Date) (decimal.Decimal, error)
	// MarketValue returns the fair market value of one share of symbol
	// on the given date, in the security's native currency.
	MarketValue(symbol string, on Date) (decimal.Decimal, error)
}

// StaticRates is a RateProvider over fixed tables, keyed by
// currency-or-symbol and ISO date. Used in tests and for manually
// supplied rates.
type StaticRates struct {
	Exchange map[string]map[string]decimal.Decimal // currency -> date -> NOK rate
	FMV      map[string]map[string]decimal.Decimal // symbol -> date -> native price
}

func (s *StaticRates) ExchangeRate(currency string, on Date) (decimal.Decimal, error) {
	if currency == "NOK" {
		return decimal.NewFromInt(1), nil
	}
	if byDate, ok := s.Exchange[currency]; ok {
		if rate, ok := byDate[on.String()]; ok {
			return rate, nil
		}
	}
	return decimal.Decimal{}, &MissingRateError{Key: currency, Date: on}
}

func (s *StaticRates) MarketValue(symbol string, on Date) (decimal.Decimal, error) {
	if byDate, ok := s.FMV[symbol]; ok {
		if fmv, ok := byDate[on.String()]; ok {
			return fmv, nil
		}
	}
	return decimal.Decimal{}, &MissingRateError{Key: symbol, Date: on}
}

var _ RateProvider = (*StaticRates)(nil)
