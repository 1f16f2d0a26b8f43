package espp

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Lot is a discrete purchase batch of shares with its own acquisition
// date, cost basis and accrued tax-free deduction. The deduction balance
// is kept per share so splitting a lot preserves the carry-forward
// proportionally by construction.
type Lot struct {
	Symbol       string
	Date         Date     // acquisition date
	Qty          Quantity // remaining shares; a lot at zero is dropped
	Price        Amount   // per-share purchase price, source currency with NOK witness
	TaxDeduction decimal.Decimal // accrued skjerming per share, in NOK
	Source       LotSource
}

// CostNOK returns the NOK cost basis of the whole remaining lot.
func (l *Lot) CostNOK() decimal.Decimal {
	return l.Price.NOKValue().Mul(l.Qty.Decimal())
}

// Fragment is the slice of a lot consumed by one disposal: a copy of the
// per-share fields of the source lot plus the quantity taken from it.
type Fragment struct {
	Lot
	Taken Quantity
}

// LotLedger owns all open lots, one FIFO queue per symbol. It is the
// single mutable piece of state of a tax-year run; nothing else mutates
// lots.
type LotLedger struct {
	lots map[string][]*Lot
}

func NewLotLedger() *LotLedger {
	return &LotLedger{lots: make(map[string][]*Lot)}
}

// Open appends a lot to the tail of its symbol's queue and returns the
// owned copy. Lots must be opened in acquisition order; ties keep
// ingestion order.
func (g *LotLedger) Open(l Lot) *Lot {
	if l.Qty.IsNegative() {
		panic(fmt.Sprintf("negative lot quantity %s for %s", l.Qty, l.Symbol))
	}
	c := l
	g.lots[l.Symbol] = append(g.lots[l.Symbol], &c)
	return &c
}

// Held returns the total open quantity for a symbol.
func (g *LotLedger) Held(symbol string) Quantity {
	var total Quantity
	for _, l := range g.lots[symbol] {
		total = total.Add(l.Qty)
	}
	return total
}

// Symbols returns all symbols with at least one open lot, sorted.
func (g *LotLedger) Symbols() []string {
	symbols := make([]string, 0, len(g.lots))
	for s, lots := range g.lots {
		if len(lots) > 0 {
			symbols = append(symbols, s)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// Lots returns the open lots for a symbol, oldest first. Callers may
// mutate the lots (deduction accrual does); they must not reorder them.
func (g *LotLedger) Lots(symbol string) []*Lot { return g.lots[symbol] }

// Consume removes qty shares head-first (FIFO) and returns the consumed
// fragments. Each fragment keeps the source lot's acquisition date, cost
// and per-share deduction balance. Requesting more than held fails with
// InsufficientSharesError: a silent clamp would hide a corrupted
// holdings history.
func (g *LotLedger) Consume(symbol string, qty Quantity, asOf Date) ([]Fragment, error) {
	if qty.IsNegative() || qty.IsZero() {
		return nil, fmt.Errorf("consume quantity must be positive, got %s", qty)
	}
	if held := g.Held(symbol); qty.GreaterThan(held) {
		return nil, &InsufficientSharesError{Symbol: symbol, Date: asOf, Requested: qty, Held: held}
	}

	var fragments []Fragment
	remaining := qty
	queue := g.lots[symbol]
	for len(queue) > 0 && remaining.IsPositive() {
		head := queue[0]
		if head.Qty.IsZero() {
			queue = queue[1:]
			continue
		}
		if head.Date.After(asOf) {
			return nil, fmt.Errorf("%s %s: selling shares acquired in the future (%s)", asOf, symbol, head.Date)
		}
		taken := head.Qty
		if remaining.LessThan(taken) {
			taken = remaining
		}
		fragments = append(fragments, Fragment{Lot: *head, Taken: taken})
		head.Qty = head.Qty.Sub(taken)
		remaining = remaining.Sub(taken)
		if head.Qty.IsZero() {
			queue = queue[1:]
		}
	}
	g.lots[symbol] = queue
	return fragments, nil
}
