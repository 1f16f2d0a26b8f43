package espp

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"
)

// DefaultAggregationWindow is the number of days between a cash-creating
// event (sale or dividend) and a wire transfer under which the currency
// gain merges into the originating gain instead of being reported on its
// own. Boundary inclusive.
const DefaultAggregationWindow = 14

// TransferType classifies an outgoing cash entry.
type TransferType string

const (
	TransferNo        TransferType = ""          // not a transfer out of the account
	TransferMatched   TransferType = "matched"   // wire matched against a bank record
	TransferUnmatched TransferType = "unmatched" // wire with no bank record; gain not computable
)

// CashEntry is one movement on the broker cash account, in source
// currency. Positive amounts are receipts, negative amounts spends.
type CashEntry struct {
	Date        Date         `json:"date"`
	Amount      Amount       `json:"amount"`
	Description string       `json:"description,omitempty"`
	Transfer    TransferType `json:"transfer,omitempty"`
}

// WireRecord is the bank-side view of a received transfer, keyed by date
// and source-currency amount. NOK may be unknown when the user has not
// filled in the bank statement yet; gains on such transfers are blocked,
// never defaulted to zero.
type WireRecord struct {
	Date     Date            `json:"date"`
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency,omitempty"`
	NOKValue decimal.Decimal `json:"nok_value"`
	nokKnown bool
}

func (w *WireRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		Date     Date            `json:"date"`
		Value    json.RawMessage `json:"value"`
		Currency string          `json:"currency"`
		NOKValue json.RawMessage `json:"nok_value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	w.Date, w.Currency = raw.Date, raw.Currency
	value, unknown, err := decodeMaybeNaN(raw.Value)
	if err != nil {
		return fmt.Errorf("wire record %s: invalid value: %w", raw.Date, err)
	}
	if unknown {
		return fmt.Errorf("wire record %s: value in source currency is required", raw.Date)
	}
	w.Value = value
	nok, nokUnknown, err := decodeMaybeNaN(raw.NOKValue)
	if err != nil {
		return fmt.Errorf("wire record %s: invalid nok_value: %w", raw.Date, err)
	}
	w.NOKValue, w.nokKnown = nok, !nokUnknown
	return nil
}

// Wires is the full-year list of bank-side transfer records.
type Wires []WireRecord

// DecodeWires reads a JSON array of bank transfer records.
func DecodeWires(r io.Reader) (Wires, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var w Wires
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("wires document: %w", err)
	}
	return w, nil
}

// wireMatchTolerance is the allowed difference, in source currency,
// between the broker's wire amount and the bank's received amount.
var wireMatchTolerance = decimal.NewFromFloat(0.05)

// match finds the bank record for a broker wire: same day, amount equal
// within the tolerance. Consumed records are not matched twice.
func (ws Wires) match(on Date, amount decimal.Decimal, used []bool) int {
	for i, w := range ws {
		if used[i] || w.Date != on {
			continue
		}
		if w.Value.Sub(amount.Abs()).Abs().LessThanOrEqual(wireMatchTolerance) {
			return i
		}
	}
	return -1
}

// CurrencyGain is the realized gain or loss on foreign cash converted to
// NOK by a wire transfer. When the transfer happens within the
// aggregation window of the receipt that created the cash, the gain is
// aggregated into that receipt's stock or dividend gain; otherwise it is
// an independent currency gain with cost basis FX(receipt date).
type CurrencyGain struct {
	Date        Date            `json:"date"`
	Amount      Amount          `json:"amount"` // transferred slice, source currency
	CostNOK     decimal.Decimal `json:"cost_nok"`
	ReceivedNOK decimal.Decimal `json:"received_nok"`
	GainNOK     decimal.Decimal `json:"gain_nok"`
	Aggregated  bool            `json:"aggregated"`
	SourceDate  Date            `json:"source_date"`
	Source      string          `json:"source"` // description of the originating receipt
}

// CashSummary is the outcome of settling the year's cash account.
type CashSummary struct {
	Transfers      []CurrencyGain `json:"transfers,omitempty"`
	Holdings       []CashEntry    `json:"holdings,omitempty"` // remaining cash lots, carried to next year
	RemainingNOK   decimal.Decimal `json:"remaining_nok"`
	GainNOK        decimal.Decimal `json:"gain_nok"`            // independent currency gains
	AggregatedNOK  decimal.Decimal `json:"aggregated_gain_nok"` // gains folded into stock/dividend gains
	UnmatchedWires []Warning      `json:"-"`
}

// Cash is the FIFO ledger of the broker cash account for one year.
// Receipts (dividends, sale proceeds) queue up as cash lots in source
// currency; spends consume them head first.
type Cash struct {
	year    int
	window  int // aggregation window, days
	entries []CashEntry
}

// NewCash opens the year's cash account from the prior year's remaining
// cash lots. A window of zero means DefaultAggregationWindow.
func NewCash(year int, opening []CashEntry, window int) *Cash {
	if window == 0 {
		window = DefaultAggregationWindow
	}
	c := &Cash{year: year, window: window}
	c.entries = append(c.entries, opening...)
	c.sort()
	return c
}

func (c *Cash) sort() {
	sort.SliceStable(c.entries, func(i, j int) bool {
		return c.entries[i].Date.Before(c.entries[j].Date)
	})
}

// Receive queues a positive cash receipt.
func (c *Cash) Receive(on Date, amount Amount, description string) {
	if amount.IsNegative() {
		panic(fmt.Sprintf("cash receipt must be positive: %s on %s", amount, on))
	}
	c.entries = append(c.entries, CashEntry{Date: on, Amount: amount, Description: description})
	c.sort()
}

// Spend records an outgoing amount (stored negative).
func (c *Cash) Spend(on Date, amount Amount, description string, transfer TransferType) {
	if amount.IsPositive() {
		amount = amount.Neg()
	}
	c.entries = append(c.entries, CashEntry{Date: on, Amount: amount, Description: description, Transfer: transfer})
	c.sort()
}

// Balance returns the running source-currency balance.
func (c *Cash) Balance() decimal.Decimal {
	var total decimal.Decimal
	for _, e := range c.entries {
		total = total.Add(e.Amount.Value())
	}
	return total
}

// Wire settles the broker's wire transactions against the bank records.
// Matched wires spend cash at the bank's actual NOK value; unmatched
// wires spend cash with the gain computation blocked and a warning
// recorded.
func (c *Cash) Wire(wires []*Wire, received Wires) []Warning {
	var warnings []Warning
	used := make([]bool, len(received))
	for _, w := range wires {
		idx := received.match(w.Date, w.Amount.Value(), used)
		if idx >= 0 {
			used[idx] = true
			rec := received[idx]
			amount := A(rec.Value, w.Amount.Currency())
			if rec.nokKnown {
				amount = amount.WithNOK(rec.NOKValue)
				c.Spend(rec.Date, amount, "wire", TransferMatched)
			} else {
				c.Spend(rec.Date, amount, "wire", TransferUnmatched)
				warnings = append(warnings, Warning{
					Date:    w.Date,
					Message: fmt.Sprintf("wire of %s has no NOK value on the bank record; currency gain not computed", amount),
				})
			}
		} else {
			c.Spend(w.Date, w.Amount.Abs(), "wire", TransferUnmatched)
			warnings = append(warnings, Warning{
				Date:    w.Date,
				Message: fmt.Sprintf("wire of %s has no matching bank record; currency gain not computed", w.Amount.Abs()),
			})
		}
		if w.Fee != nil {
			c.Spend(w.Date, *w.Fee, "wire fee", TransferNo)
		}
	}
	return warnings
}

// Settle replays the year's cash entries, consuming receipts FIFO for
// every spend, and computes currency gains for transfers. The remaining
// receipts become the next year's opening cash lots.
func (c *Cash) Settle() (*CashSummary, error) {
	summary := &CashSummary{}

	type lot struct {
		entry     CashEntry
		remaining decimal.Decimal
	}
	var queue []lot
	for _, e := range c.entries {
		if e.Amount.IsPositive() {
			queue = append(queue, lot{entry: e, remaining: e.Amount.Value()})
		}
	}

	head := 0
	for _, e := range c.entries {
		if !e.Amount.IsNegative() {
			continue
		}
		toConsume := e.Amount.Value().Abs()
		isTransfer := e.Transfer != TransferNo
		gainComputable := e.Transfer == TransferMatched && e.Amount.HasNOK()
		for toConsume.IsPositive() && head < len(queue) {
			cur := &queue[head]
			if !cur.remaining.IsPositive() {
				head++
				continue
			}
			piece := decimal.Min(toConsume, cur.remaining)
			cur.remaining = cur.remaining.Sub(piece)
			toConsume = toConsume.Sub(piece)

			if isTransfer && gainComputable {
				costRate := cur.entry.Amount.NOKRate()
				receivedRate := e.Amount.NOKRate()
				gain := piece.Mul(receivedRate.Sub(costRate))
				aggregated := e.Date.DaysSince(cur.entry.Date) <= c.window &&
					(cur.entry.Description == "sale" || cur.entry.Description == "dividend")
				summary.Transfers = append(summary.Transfers, CurrencyGain{
					Date:        e.Date,
					Amount:      A(piece, e.Amount.Currency()),
					CostNOK:     piece.Mul(costRate),
					ReceivedNOK: piece.Mul(receivedRate),
					GainNOK:     gain,
					Aggregated:  aggregated,
					SourceDate:  cur.entry.Date,
					Source:      cur.entry.Description,
				})
				if aggregated {
					summary.AggregatedNOK = summary.AggregatedNOK.Add(gain)
				} else {
					summary.GainNOK = summary.GainNOK.Add(gain)
				}
			}
			if cur.remaining.IsZero() {
				head++
			}
		}
		if toConsume.IsPositive() {
			summary.UnmatchedWires = append(summary.UnmatchedWires, Warning{
				Date:    e.Date,
				Message: fmt.Sprintf("cash account overdrawn by %s %s; prior holdings are likely incomplete", toConsume, e.Amount.Currency()),
			})
		}
	}

	for _, l := range queue {
		if !l.remaining.IsPositive() {
			continue
		}
		remaining := l.entry
		ratio := l.remaining.Div(l.entry.Amount.Value())
		remaining.Amount = l.entry.Amount.Mul(Q(ratio))
		remaining.Transfer = TransferNo
		summary.Holdings = append(summary.Holdings, remaining)
		if remaining.Amount.HasNOK() {
			summary.RemainingNOK = summary.RemainingNOK.Add(remaining.Amount.NOKValue())
		}
	}
	return summary, nil
}
