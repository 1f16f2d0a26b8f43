package espp

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"
)

// Stock is one lot entry of a holdings snapshot: a purchase batch still
// held at year end, with its per-share cost basis in both currencies and
// the skjerming balance it carries into the next year.
//
// A purchase price of "NaN" is a valid placeholder meaning the quantity
// is known but the cost is not (incomplete broker history). Such entries
// round-trip untouched; the engine refuses to compute gains on them
// without a manual cost override.
type Stock struct {
	Symbol        string          `json:"symbol"`
	Date          Date            `json:"date"`
	Qty           Quantity        `json:"qty"`
	PurchasePrice Amount          `json:"purchase_price"` // per share
	TaxDeduction  decimal.Decimal `json:"tax_deduction"`  // per share, NOK
	Source        LotSource       `json:"source,omitempty"`
}

// Holdings is the year-end snapshot of the ledger: the sole carry-forward
// artifact between annual runs. It is immutable once written; a run
// consumes the prior year's snapshot and produces a new one.
type Holdings struct {
	Year   int         `json:"year"`
	Broker string      `json:"broker"`
	Stocks []Stock     `json:"stocks"`
	Cash   []CashEntry `json:"cash"`
}

// DecodeHoldings reads a holdings snapshot document.
func DecodeHoldings(r io.Reader) (*Holdings, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var h Holdings
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("holdings document: %w", err)
	}
	h.sort()
	return &h, nil
}

// sort orders lots by symbol then acquisition date. FIFO consumption
// depends on this order, so the replay engine re-applies it whatever
// path the snapshot arrived through.
func (h *Holdings) sort() {
	sort.SliceStable(h.Stocks, func(i, j int) bool {
		if h.Stocks[i].Symbol != h.Stocks[j].Symbol {
			return h.Stocks[i].Symbol < h.Stocks[j].Symbol
		}
		return h.Stocks[i].Date.Before(h.Stocks[j].Date)
	})
}

// Encode writes the snapshot as an indented JSON document with a
// deterministic field and entry order, so snapshots diff cleanly year
// over year.
func (h *Holdings) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(h)
}

func (h *Holdings) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("year", h.Year)
	w.Append("broker", h.Broker)
	w.Append("stocks", h.Stocks)
	w.Append("cash", h.Cash)
	return w.MarshalJSON()
}

func (s Stock) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("symbol", s.Symbol)
	w.Append("date", s.Date)
	w.Append("qty", s.Qty)
	w.Append("purchase_price", s.PurchasePrice)
	w.Append("tax_deduction", s.TaxDeduction)
	w.Optional("source", s.Source)
	return w.MarshalJSON()
}

// lot converts a snapshot entry into an open lot.
func (s Stock) lot() Lot {
	source := s.Source
	if source == "" {
		source = SourceManual
	}
	return Lot{
		Symbol:       s.Symbol,
		Date:         s.Date,
		Qty:          s.Qty,
		Price:        s.PurchasePrice,
		TaxDeduction: s.TaxDeduction,
		Source:       source,
	}
}

// NewHoldings serializes the end-of-year ledger state: every lot with a
// non-zero quantity plus the remaining cash lots. Pure; the caller
// decides persistence.
func NewHoldings(ledger *LotLedger, cash []CashEntry, year int, broker string) *Holdings {
	h := &Holdings{Year: year, Broker: broker, Cash: cash}
	for _, symbol := range ledger.Symbols() {
		for _, lot := range ledger.Lots(symbol) {
			if lot.Qty.IsZero() {
				continue
			}
			h.Stocks = append(h.Stocks, Stock{
				Symbol:        lot.Symbol,
				Date:          lot.Date,
				Qty:           lot.Qty,
				PurchasePrice: lot.Price,
				TaxDeduction:  lot.TaxDeduction,
				Source:        lot.Source,
			})
		}
	}
	if h.Stocks == nil {
		h.Stocks = []Stock{}
	}
	if h.Cash == nil {
		h.Cash = []CashEntry{}
	}
	return h
}
