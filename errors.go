package espp

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// The engine distinguishes data-consistency errors (surfaced with both
// expected and observed values, never auto-corrected) from
// input-completeness warnings (attached to the report, non-fatal). A
// consistency error stops the replay at the offending transaction: a tax
// filing computed from inconsistent inputs would be wrong, so the engine
// never guesses.

// InsufficientSharesError is returned when a sale or transfer consumes
// more shares than the ledger holds for a symbol. It signals a corrupted
// or incomplete holdings history.
type InsufficientSharesError struct {
	Symbol    string
	Date      Date
	Requested Quantity
	Held      Quantity
}

func (e *InsufficientSharesError) Error() string {
	return fmt.Sprintf("%s %s: selling %s shares but only %s held",
		e.Date, e.Symbol, e.Requested, e.Held)
}

// DividendReconciliationError is returned when the share count implied
// by a dividend does not match the ledger position on the ex-date.
type DividendReconciliationError struct {
	Symbol   string
	ExDate   Date
	Expected Quantity // shares the dividend was paid for
	Held     Quantity // shares the ledger holds
}

func (e *DividendReconciliationError) Error() string {
	return fmt.Sprintf("%s %s: dividend paid for %s shares but ledger holds %s",
		e.ExDate, e.Symbol, e.Expected, e.Held)
}

// MissingRateError is returned when the rate provider has no exchange
// rate or market value for the requested key and date.
type MissingRateError struct {
	Key  string // currency code or stock symbol
	Date Date
}

func (e *MissingRateError) Error() string {
	return fmt.Sprintf("no rate for %s on %s", e.Key, e.Date)
}

// ExpectedSourceTaxMismatchError is returned when the withholding tax on
// a dividend deviates from the treaty rate.
type ExpectedSourceTaxMismatchError struct {
	Symbol   string
	Expected decimal.Decimal // treaty rate, e.g. 0.15
	Observed decimal.Decimal // tax / gross dividend
}

func (e *ExpectedSourceTaxMismatchError) Error() string {
	return fmt.Sprintf("%s: source tax withheld at %s, expected %s",
		e.Symbol, e.Observed.Mul(decimal.NewFromInt(100)).StringFixed(1)+"%",
		e.Expected.Mul(decimal.NewFromInt(100)).StringFixed(1)+"%")
}

// PlaceholderCostError is returned when a gain computation touches a lot
// whose cost basis is the unknown-cost placeholder and no manual cost
// override was supplied.
type PlaceholderCostError struct {
	Symbol string
	Date   Date // acquisition date of the placeholder lot
}

func (e *PlaceholderCostError) Error() string {
	return fmt.Sprintf("%s lot acquired %s has no known cost basis; supply a manual cost to compute gains", e.Symbol, e.Date)
}

// Warning is an input-completeness note attached to the report for user
// review. Warnings never abort a run.
type Warning struct {
	Date    Date   `json:"date,omitempty"`
	Symbol  string `json:"symbol,omitempty"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	s := w.Message
	if w.Symbol != "" {
		s = w.Symbol + ": " + s
	}
	if !w.Date.IsZero() {
		s = w.Date.String() + " " + s
	}
	return s
}
