package espp

import (
	"github.com/shopspring/decimal"
)

// SaleFragment is the realized slice of one lot consumed by a sale:
// quantity taken, both cost bases, the per-share sale price, and the
// deduction balance spent bringing the gain down.
type SaleFragment struct {
	Symbol           string          `json:"symbol"`
	Qty              Quantity        `json:"qty"`
	PurchaseDate     Date            `json:"purchase_date"`
	PurchasePrice    Amount          `json:"purchase_price"` // per share
	SalePrice        Amount          `json:"sale_price"`     // per share, FX at sale date
	GainNOK          decimal.Decimal `json:"gain_nok"`       // after deduction, total for Qty
	GainNative       decimal.Decimal `json:"gain_native"`    // source currency, total for Qty
	DeductionUsedNOK decimal.Decimal `json:"tax_deduction_used"`
	Source           LotSource       `json:"source,omitempty"`
}

// SaleReport is one SELL transaction with the lot fragments it consumed.
type SaleReport struct {
	Date             Date            `json:"date"`
	Symbol           string          `json:"symbol"`
	Qty              Quantity        `json:"qty"`
	Amount           Amount          `json:"amount"` // total proceeds
	Fee              *Amount         `json:"fee,omitempty"`
	From             []SaleFragment  `json:"from_positions"`
	GainNOK          decimal.Decimal `json:"gain_nok"` // sum over fragments, after deduction
	DeductionUsedNOK decimal.Decimal `json:"tax_deduction_used"`
}

// DividendReport aggregates a symbol's dividends for the year.
type DividendReport struct {
	Symbol           string          `json:"symbol"`
	GrossNOK         decimal.Decimal `json:"gross_nok"`
	NetNOK           decimal.Decimal `json:"net_nok"` // gross less deduction used
	SourceTaxNOK     decimal.Decimal `json:"source_tax_nok"`
	DeductionUsedNOK decimal.Decimal `json:"tax_deduction_used"`
}

// WealthItem is one symbol's year-end market value, the wealth-tax basis.
type WealthItem struct {
	Symbol   string          `json:"symbol"`
	Qty      Quantity        `json:"qty"`
	FMV      decimal.Decimal `json:"fmv"` // per share, native currency
	ValueNOK decimal.Decimal `json:"value_nok"`
}

// Totals are the aggregate figures that land on the tax return.
type Totals struct {
	GainNOK             decimal.Decimal `json:"gain_nok"` // net capital gain incl. aggregated currency gains
	DividendNOK         decimal.Decimal `json:"dividend_nok"`
	SourceTaxNOK        decimal.Decimal `json:"source_tax_nok"` // basis for the credit deduction
	CurrencyGainNOK     decimal.Decimal `json:"currency_gain_nok"` // independent transfers only
	WealthNOK           decimal.Decimal `json:"wealth_nok"`
	DeductionUsedNOK    decimal.Decimal `json:"tax_deduction_used_nok"`
	DeductionAccruedNOK decimal.Decimal `json:"tax_deduction_accrued_nok"`
	DeductionCarriedNOK decimal.Decimal `json:"tax_deduction_carried_nok"`
}

// TaxReport is the pure projection built alongside the replay. It is
// handed off read-only; events are never mutated after creation, except
// that a failed run returns the report built so far next to the error.
type TaxReport struct {
	Year          int               `json:"year"`
	Broker        string            `json:"broker,omitempty"`
	Sales         []*SaleReport     `json:"sales,omitempty"`
	Dividends     []*DividendReport `json:"dividends,omitempty"`
	CurrencyGains []CurrencyGain    `json:"currency_gains,omitempty"`
	Wealth        []WealthItem      `json:"wealth,omitempty"`
	Warnings      []Warning         `json:"warnings,omitempty"`
	Totals        Totals            `json:"totals"`
}

func (r *TaxReport) warn(w Warning) {
	r.Warnings = append(r.Warnings, w)
}

func (r *TaxReport) warnAll(ws []Warning) {
	r.Warnings = append(r.Warnings, ws...)
}

// dividend returns the per-symbol dividend aggregate, creating it on
// first use.
func (r *TaxReport) dividend(symbol string) *DividendReport {
	for _, d := range r.Dividends {
		if d.Symbol == symbol {
			return d
		}
	}
	d := &DividendReport{Symbol: symbol}
	r.Dividends = append(r.Dividends, d)
	return d
}
