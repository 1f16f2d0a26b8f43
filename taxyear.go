package espp

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// State is the lifecycle of a tax-year run.
type State int

const (
	StateInit State = iota
	StateReplaying
	StateReconciled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateReplaying:
		return "replaying"
	case StateReconciled:
		return "reconciled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options tune a tax-year run.
type Options struct {
	Broker string

	// AggregationWindow is the merge window in days for currency gains
	// on wires; zero means DefaultAggregationWindow.
	AggregationWindow int

	// ExpectedSourceTaxRate is the treaty withholding rate on dividends;
	// zero means 15%. A withholding outside SourceTaxTolerance of this
	// rate fails the run.
	ExpectedSourceTaxRate decimal.Decimal
	SourceTaxTolerance    decimal.Decimal // zero means 0.005

	// ManualCosts overrides the per-share cost basis of placeholder
	// lots, keyed by symbol. Without an override, any gain computation
	// touching a placeholder lot fails.
	ManualCosts map[string]Amount

	// ExpectedBalance seeds synthetic opening lots when no prior
	// holdings snapshot exists. An explicit, auditable placeholder.
	ExpectedBalance map[string]Quantity

	// SeedCurrency denominates seeded placeholder lots without a manual
	// cost override; empty means USD.
	SeedCurrency string

	// Lenient relaxes reconciliation failures to warnings. Used only
	// when reconstructing holdings from incomplete history; a real tax
	// run is always strict.
	Lenient bool
}

func (o Options) expectedSourceTaxRate() decimal.Decimal {
	if o.ExpectedSourceTaxRate.IsZero() {
		return decimal.NewFromFloat(0.15)
	}
	return o.ExpectedSourceTaxRate
}

func (o Options) seedCurrency() string {
	if o.SeedCurrency == "" {
		return "USD"
	}
	return o.SeedCurrency
}

func (o Options) sourceTaxTolerance() decimal.Decimal {
	if o.SourceTaxTolerance.IsZero() {
		return decimal.NewFromFloat(0.005)
	}
	return o.SourceTaxTolerance
}

// shareMark is one point of the running per-symbol share count.
type shareMark struct {
	on    Date
	total Quantity
}

// shareCount tracks the share balance per symbol by date, independent of
// lot state. Dividends reconcile against it: the count at the ex-date
// must explain the dividend paid.
type shareCount struct {
	marks map[string][]shareMark
}

func newShareCount() *shareCount {
	return &shareCount{marks: make(map[string][]shareMark)}
}

func (s *shareCount) add(symbol string, on Date, delta Quantity) {
	prev := Quantity{}
	if marks := s.marks[symbol]; len(marks) > 0 {
		prev = marks[len(marks)-1].total
	}
	s.marks[symbol] = append(s.marks[symbol], shareMark{on: on, total: prev.Add(delta)})
}

// at returns the total shares held at end of day on.
func (s *shareCount) at(symbol string, on Date) Quantity {
	var last Quantity
	for _, m := range s.marks[symbol] {
		if m.on.After(on) {
			break
		}
		last = m.total
	}
	return last
}

// TaxYear replays one year of normalized transactions against the
// opening holdings and produces the tax report and the next snapshot.
// One run is single-threaded and owns all its state; FIFO consumption is
// a sequential invariant, so a run is never parallelized internally.
type TaxYear struct {
	year  int
	state State

	opening *Holdings
	txs     []Transaction
	wires   Wires
	rates   RateProvider
	opts    Options

	ledger  *LotLedger
	cash    *Cash
	shares  *shareCount
	report  *TaxReport
	wireTxs []*Wire

	divGrossNative map[string]decimal.Decimal // per symbol, source currency
	taxNative      map[string]decimal.Decimal
}

// NewTaxYear prepares a run. opening may be nil when Options.ExpectedBalance
// seeds the ledger instead.
func NewTaxYear(year int, opening *Holdings, txs []Transaction, wires Wires, rates RateProvider, opts Options) *TaxYear {
	return &TaxYear{
		year:           year,
		state:          StateInit,
		opening:        opening,
		txs:            txs,
		wires:          wires,
		rates:          rates,
		opts:           opts,
		divGrossNative: make(map[string]decimal.Decimal),
		taxNative:      make(map[string]decimal.Decimal),
	}
}

// State returns the run's lifecycle state.
func (y *TaxYear) State() State { return y.state }

// Replay is the one-call form: it runs a whole (holdings, transactions)
// pair to completion. See TaxYear.Run.
func Replay(year int, opening *Holdings, txs []Transaction, wires Wires, rates RateProvider, opts Options) (*TaxReport, *Holdings, error) {
	return NewTaxYear(year, opening, txs, wires, rates, opts).Run()
}

// Run executes the replay. On a data-consistency error the run stops at
// the offending transaction and returns the report built so far next to
// the error, so the caller can show exactly where reconciliation failed.
// There is no retry: these are deterministic data problems.
func (y *TaxYear) Run() (*TaxReport, *Holdings, error) {
	if err := y.init(); err != nil {
		y.state = StateFailed
		return y.report, nil, err
	}
	y.state = StateReplaying
	for _, tx := range y.txs {
		if err := y.apply(tx); err != nil {
			y.state = StateFailed
			return y.report, nil, fmt.Errorf("replay stopped at %s %s: %w", tx.When(), tx.What(), err)
		}
	}
	holdings, err := y.reconcile()
	if err != nil {
		y.state = StateFailed
		return y.report, nil, err
	}
	y.state = StateReconciled
	return y.report, holdings, nil
}

func (y *TaxYear) init() error {
	y.report = &TaxReport{Year: y.year, Broker: y.opts.Broker}
	y.ledger = NewLotLedger()
	y.shares = newShareCount()

	var openingCash []CashEntry
	switch {
	case y.opening != nil:
		if y.opening.Year >= y.year {
			return fmt.Errorf("opening holdings are from %d, cannot run year %d", y.opening.Year, y.year)
		}
		y.opening.sort()
		for _, s := range y.opening.Stocks {
			lot := s.lot()
			if lot.Price.IsUnknown() {
				if mc, ok := y.opts.ManualCosts[s.Symbol]; ok {
					mc, err := y.withNOK(mc, s.Date)
					if err != nil {
						return err
					}
					lot.Price = mc
					y.report.warn(Warning{Date: s.Date, Symbol: s.Symbol,
						Message: fmt.Sprintf("manual cost basis %s applied to placeholder lot", mc)})
				} else {
					y.report.warn(Warning{Date: s.Date, Symbol: s.Symbol,
						Message: "lot has placeholder cost basis; gains touching it cannot be computed"})
				}
			}
			y.ledger.Open(lot)
			y.shares.add(s.Symbol, s.Date, s.Qty)
		}
		openingCash = y.opening.Cash
	case len(y.opts.ExpectedBalance) > 0:
		// No snapshot: seed one synthetic lot per symbol at the end of
		// the previous year. Auditable placeholder, not an inference.
		seeded := NewDate(y.year-1, 12, 31)
		for symbol, qty := range y.opts.ExpectedBalance {
			price := UnknownAmount(y.opts.seedCurrency())
			if mc, ok := y.opts.ManualCosts[symbol]; ok {
				mc, err := y.withNOK(mc, seeded)
				if err != nil {
					return err
				}
				price = mc
			}
			y.ledger.Open(Lot{Symbol: symbol, Date: seeded, Qty: qty, Price: price, Source: SourceManual})
			y.shares.add(symbol, seeded, qty)
			y.report.warn(Warning{Date: seeded, Symbol: symbol,
				Message: fmt.Sprintf("opening balance of %s shares seeded from expected-balance assertion", qty)})
		}
	case !y.opts.Lenient:
		y.report.warn(Warning{Message: "no prior holdings; requires the complete transaction history"})
	}

	SortTransactions(y.txs)
	for _, tx := range y.txs {
		if !y.opts.Lenient && tx.When().Year() != y.year {
			return fmt.Errorf("transaction dated %s is outside tax year %d", tx.When(), y.year)
		}
		switch v := tx.(type) {
		case *Deposit:
			y.shares.add(v.Symbol, v.Date, v.Qty)
		case *Buy:
			y.shares.add(v.Symbol, v.Date, v.Qty)
		case *Sell:
			y.shares.add(v.Symbol, v.Date, v.Qty.Neg())
		case *Transfer:
			y.shares.add(v.Symbol, v.Date, v.Qty.Neg())
		}
	}

	y.cash = NewCash(y.year, openingCash, y.opts.AggregationWindow)
	return nil
}

func (y *TaxYear) apply(tx Transaction) error {
	switch v := tx.(type) {
	case *Deposit:
		return y.deposit(v)
	case *Buy:
		return y.buy(v)
	case *Sell:
		return y.sell(v)
	case *Transfer:
		if !v.Qty.IsPositive() {
			return fmt.Errorf("transfer of %s %s shares: quantity must be positive", v.Qty, v.Symbol)
		}
		_, err := y.ledger.Consume(v.Symbol, v.Qty, v.Date)
		if err != nil {
			return err
		}
		if v.Fee != nil {
			y.cash.Spend(v.Date, *v.Fee, "transfer fee", TransferNo)
		}
		return nil
	case *Dividend:
		return y.dividend(v)
	case *DividendReinv:
		amount, err := y.withNOK(v.Amount, v.Date)
		if err != nil {
			return err
		}
		y.cash.Spend(v.Date, amount, "dividend reinvested", TransferNo)
		return nil
	case *Tax:
		return y.sourceTax(v)
	case *TaxSub:
		return y.sourceTaxRefund(v)
	case *Fee:
		amount, err := y.withNOK(v.Amount, v.Date)
		if err != nil {
			return err
		}
		y.cash.Spend(v.Date, amount, "fee", TransferNo)
		return nil
	case *CashAdjust:
		amount, err := y.withNOK(v.Amount, v.Date)
		if err != nil {
			return err
		}
		if amount.IsPositive() {
			y.cash.Receive(v.Date, amount, v.Description)
		} else if amount.IsNegative() {
			y.cash.Spend(v.Date, amount, v.Description, TransferNo)
		}
		return nil
	case *Wire:
		y.wireTxs = append(y.wireTxs, v)
		return nil
	default:
		return fmt.Errorf("unhandled transaction type %T", tx)
	}
}

// withNOK ensures an amount carries its NOK witness, resolving the
// Central Bank rate at the given date when the importer did not.
func (y *TaxYear) withNOK(a Amount, on Date) (Amount, error) {
	if a.HasNOK() || a.IsUnknown() {
		return a, nil
	}
	rate, err := y.rates.ExchangeRate(a.Currency(), on)
	if err != nil {
		return a, err
	}
	return a.WithRate(rate), nil
}

func (y *TaxYear) deposit(v *Deposit) error {
	acquired := v.PurchaseDate
	if acquired.IsZero() {
		acquired = v.Date
	}
	price := v.PurchasePrice
	switch {
	case price.IsUnknown():
		if mc, ok := y.opts.ManualCosts[v.Symbol]; ok {
			price = mc
			y.report.warn(Warning{Date: acquired, Symbol: v.Symbol,
				Message: fmt.Sprintf("manual cost basis %s applied to deposited lot", mc)})
		} else {
			y.report.warn(Warning{Date: acquired, Symbol: v.Symbol,
				Message: "deposited lot has placeholder cost basis"})
		}
	case v.Source == SourceESPP:
		// ESPP cost basis is the fair market value on the purchase
		// date, not the discounted employee price: the discount is
		// already taxed as ordinary income.
		fmv, err := y.rates.MarketValue(v.Symbol, acquired)
		if err != nil {
			return err
		}
		price = A(fmv, price.Currency())
	}
	if !price.IsUnknown() && !price.HasNOK() {
		rate, err := y.rates.ExchangeRate(price.Currency(), acquired)
		if err != nil {
			return err
		}
		price = price.WithRate(rate)
	}

	lot := y.ledger.Open(Lot{
		Symbol: v.Symbol,
		Date:   acquired,
		Qty:    v.Qty,
		Price:  price,
		Source: v.Source,
	})

	// Shares bought in the last days of a year often arrive in the
	// broker account in January. The acquisition year still grants a
	// full year's deduction.
	if acquired.Year() == y.year-1 && v.Date.Year() == y.year && !price.IsUnknown() {
		rate, err := DeductionRate(y.year - 1)
		if err != nil {
			return err
		}
		lot.TaxDeduction = lot.TaxDeduction.Add(price.NOKValue().Mul(rate).Div(hundred))
	}
	return nil
}

func (y *TaxYear) buy(v *Buy) error {
	price, err := y.withNOK(v.PurchasePrice, v.Date)
	if err != nil {
		return err
	}
	y.ledger.Open(Lot{
		Symbol: v.Symbol,
		Date:   v.Date,
		Qty:    v.Qty,
		Price:  price,
		Source: SourceManual,
	})
	y.cash.Spend(v.Date, price.Mul(v.Qty), "buy", TransferNo)
	return nil
}

func (y *TaxYear) sell(v *Sell) error {
	if !v.Qty.IsPositive() {
		return fmt.Errorf("sale of %s %s shares: quantity must be positive", v.Qty, v.Symbol)
	}
	proceeds, err := y.withNOK(v.Amount, v.Date)
	if err != nil {
		return err
	}
	perShare := proceeds.Div(v.Qty)

	fragments, err := y.ledger.Consume(v.Symbol, v.Qty, v.Date)
	if err != nil {
		return err
	}

	sr := &SaleReport{Date: v.Date, Symbol: v.Symbol, Qty: v.Qty, Amount: proceeds, Fee: v.Fee}
	for _, frag := range fragments {
		price := frag.Price
		if price.IsUnknown() {
			mc, ok := y.opts.ManualCosts[v.Symbol]
			if !ok {
				if y.opts.Lenient {
					y.report.warn(Warning{Date: v.Date, Symbol: v.Symbol,
						Message: "gain skipped: sold lot has placeholder cost basis"})
					continue
				}
				return &PlaceholderCostError{Symbol: v.Symbol, Date: frag.Date}
			}
			price = mc
			if !price.HasNOK() {
				rate, err := y.rates.ExchangeRate(price.Currency(), frag.Date)
				if err != nil {
					return err
				}
				price = price.WithRate(rate)
			}
		}

		gainPS := perShare.NOKValue().Sub(price.NOKValue())
		reducedPS, usedPS := applyDeductionToGain(gainPS, frag.TaxDeduction)
		taken := frag.Taken.Decimal()
		f := SaleFragment{
			Symbol:           frag.Symbol,
			Qty:              frag.Taken,
			PurchaseDate:     frag.Date,
			PurchasePrice:    price,
			SalePrice:        perShare,
			GainNOK:          reducedPS.Mul(taken),
			GainNative:       perShare.Value().Sub(price.Value()).Mul(taken),
			DeductionUsedNOK: usedPS.Mul(taken),
			Source:           frag.Source,
		}
		// Whatever balance the sold shares still carried is forfeited
		// with them; only retained lots carry deduction forward.
		sr.From = append(sr.From, f)
		sr.GainNOK = sr.GainNOK.Add(f.GainNOK)
		sr.DeductionUsedNOK = sr.DeductionUsedNOK.Add(f.DeductionUsedNOK)
	}
	y.report.Sales = append(y.report.Sales, sr)

	y.cash.Receive(v.Date, proceeds, "sale")
	if v.Fee != nil {
		y.cash.Spend(v.Date, *v.Fee, "sale fee", TransferNo)
	}
	return nil
}

func (y *TaxYear) dividend(v *Dividend) error {
	amount, err := y.withNOK(v.Amount, v.Date)
	if err != nil {
		return err
	}
	exDate := v.ExDate
	if exDate.IsZero() {
		exDate = v.Date
	}
	// Entitlement requires holding the shares the day before the ex-date.
	held := y.shares.at(v.Symbol, exDate.Add(-1))

	if held.IsZero() {
		if y.opts.Lenient {
			y.report.warn(Warning{Date: v.Date, Symbol: v.Symbol,
				Message: "dividend received with no shares held; skipped"})
			return nil
		}
		return &DividendReconciliationError{Symbol: v.Symbol, ExDate: exDate, Expected: expectedShares(amount, v.DPS), Held: held}
	}
	if v.DPS.IsPositive() {
		expected := amount.Value().Div(v.DPS)
		if expected.Sub(held.Decimal()).Abs().GreaterThan(decimal.NewFromFloat(0.01)) {
			if !y.opts.Lenient {
				return &DividendReconciliationError{Symbol: v.Symbol, ExDate: exDate, Expected: Q(expected), Held: held}
			}
			y.report.warn(Warning{Date: v.Date, Symbol: v.Symbol,
				Message: fmt.Sprintf("dividend implies %s shares but ledger holds %s", expected.Round(2), held)})
		}
	}

	dpsNOK := amount.NOKValue().Div(held.Decimal())
	var used decimal.Decimal
	for _, lot := range y.ledger.Lots(v.Symbol) {
		if lot.Qty.IsZero() || lot.Date.After(exDate) {
			continue
		}
		avail := lot.TaxDeduction
		if !avail.IsPositive() {
			continue
		}
		if avail.GreaterThan(dpsNOK) {
			used = used.Add(dpsNOK.Mul(lot.Qty.Decimal()))
			lot.TaxDeduction = avail.Sub(dpsNOK)
		} else {
			used = used.Add(avail.Mul(lot.Qty.Decimal()))
			lot.TaxDeduction = decimal.Decimal{}
		}
	}

	d := y.report.dividend(v.Symbol)
	d.GrossNOK = d.GrossNOK.Add(amount.NOKValue())
	d.DeductionUsedNOK = d.DeductionUsedNOK.Add(used)
	y.divGrossNative[v.Symbol] = y.divGrossNative[v.Symbol].Add(amount.Value())

	y.cash.Receive(v.Date, amount, "dividend")
	return nil
}

func expectedShares(amount Amount, dps decimal.Decimal) Quantity {
	if dps.IsPositive() {
		return Q(amount.Value().Div(dps))
	}
	return Quantity{}
}

func (y *TaxYear) sourceTax(v *Tax) error {
	amount, err := y.withNOK(v.Amount, v.Date)
	if err != nil {
		return err
	}
	y.cash.Spend(v.Date, amount.Abs(), "tax", TransferNo)
	y.taxNative[v.Symbol] = y.taxNative[v.Symbol].Add(amount.Value().Abs())
	d := y.report.dividend(v.Symbol)
	d.SourceTaxNOK = d.SourceTaxNOK.Add(amount.NOKValue().Abs())
	return nil
}

func (y *TaxYear) sourceTaxRefund(v *TaxSub) error {
	amount, err := y.withNOK(v.Amount, v.Date)
	if err != nil {
		return err
	}
	y.cash.Receive(v.Date, amount.Abs(), "tax refund")
	y.taxNative[v.Symbol] = y.taxNative[v.Symbol].Sub(amount.Value().Abs())
	d := y.report.dividend(v.Symbol)
	d.SourceTaxNOK = d.SourceTaxNOK.Sub(amount.NOKValue().Abs())
	return nil
}

func (y *TaxYear) reconcile() (*Holdings, error) {
	// Withholding sanity: dividends from US brokers should be taxed at
	// the treaty rate. Anything else points at broken import data.
	expectedRate := y.opts.expectedSourceTaxRate()
	tolerance := y.opts.sourceTaxTolerance()
	for _, symbol := range sortedKeys(y.divGrossNative) {
		gross := y.divGrossNative[symbol]
		tax := y.taxNative[symbol]
		if !gross.IsPositive() || !tax.IsPositive() {
			continue
		}
		observed := tax.Div(gross)
		if observed.Sub(expectedRate).Abs().GreaterThan(tolerance) {
			err := &ExpectedSourceTaxMismatchError{Symbol: symbol, Expected: expectedRate, Observed: observed}
			if !y.opts.Lenient {
				return nil, err
			}
			y.report.warn(Warning{Symbol: symbol, Message: err.Error()})
		}
	}

	y.report.warnAll(y.cash.Wire(y.wireTxs, y.wires))
	summary, err := y.cash.Settle()
	if err != nil {
		return nil, err
	}
	y.report.CurrencyGains = summary.Transfers
	y.report.warnAll(summary.UnmatchedWires)

	accrued, warns, err := accrueDeduction(y.ledger, y.year)
	if err != nil {
		return nil, err
	}
	y.report.warnAll(warns)

	eoy := NewDate(y.year, 12, 31)
	for _, symbol := range y.ledger.Symbols() {
		qty := y.ledger.Held(symbol)
		if qty.IsZero() {
			continue
		}
		fmv, err := y.rates.MarketValue(symbol, eoy)
		if err != nil {
			return nil, err
		}
		currency := "USD"
		if lots := y.ledger.Lots(symbol); len(lots) > 0 && lots[0].Price.Currency() != "" {
			currency = lots[0].Price.Currency()
		}
		fx, err := y.rates.ExchangeRate(currency, eoy)
		if err != nil {
			return nil, err
		}
		item := WealthItem{Symbol: symbol, Qty: qty, FMV: fmv,
			ValueNOK: qty.Decimal().Mul(fmv).Mul(fx)}
		y.report.Wealth = append(y.report.Wealth, item)
		y.report.Totals.WealthNOK = y.report.Totals.WealthNOK.Add(item.ValueNOK)
	}

	t := &y.report.Totals
	for _, sr := range y.report.Sales {
		t.GainNOK = t.GainNOK.Add(sr.GainNOK)
		t.DeductionUsedNOK = t.DeductionUsedNOK.Add(sr.DeductionUsedNOK)
	}
	for _, d := range y.report.Dividends {
		d.NetNOK = d.GrossNOK.Sub(d.DeductionUsedNOK)
		t.DividendNOK = t.DividendNOK.Add(d.NetNOK)
		t.SourceTaxNOK = t.SourceTaxNOK.Add(d.SourceTaxNOK)
		t.DeductionUsedNOK = t.DeductionUsedNOK.Add(d.DeductionUsedNOK)
	}
	// Aggregated currency gains merge into the capital gain; independent
	// ones are their own line.
	t.GainNOK = t.GainNOK.Add(summary.AggregatedNOK)
	t.CurrencyGainNOK = summary.GainNOK
	t.DeductionAccruedNOK = accrued
	for _, symbol := range y.ledger.Symbols() {
		for _, lot := range y.ledger.Lots(symbol) {
			t.DeductionCarriedNOK = t.DeductionCarriedNOK.Add(lot.TaxDeduction.Mul(lot.Qty.Decimal()))
		}
	}

	return NewHoldings(y.ledger, summary.Holdings, y.year, y.opts.Broker), nil
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
